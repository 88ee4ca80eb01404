package store

import "strings"

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// pageOffset returns the row offset of a 1-based page, or ok=false when the
// page lies outside 1..pages.
func pageOffset(page, pageSize int, total int64) (int, bool) {
	if page < 1 || pageSize < 1 {
		return 0, false
	}
	offset := (page - 1) * pageSize
	if int64(offset) >= total {
		return 0, false
	}
	return offset, true
}
