package main

import (
	"bytes"
	"strings"
	"testing"

	"musiclib/pkg/domain"
	"musiclib/services/library/internal/app"
)

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	printReport(&buf, app.ConsistencyReport{})
	if !strings.HasPrefix(buf.String(), "ok:") {
		t.Fatalf("unexpected clean output %q", buf.String())
	}

	buf.Reset()
	printReport(&buf, app.ConsistencyReport{PendingFiles: []string{"new.mp3"}})
	if out := buf.String(); !strings.Contains(out, "skipped recent file: new.mp3") || !strings.Contains(out, "ok:") {
		t.Fatalf("unexpected pending output %q", out)
	}

	buf.Reset()
	printReport(&buf, app.ConsistencyReport{
		DanglingRows:  []domain.Song{{ID: 7, Title: "Gone", Filename: "abc.mp3"}},
		OrphanedFiles: []string{"def.mp3"},
		Repaired:      true,
	})
	out := buf.String()
	for _, want := range []string{"song 7 (Gone) -> abc.mp3", "orphaned file: def.mp3", "1 rows deleted, 1 files removed"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}
