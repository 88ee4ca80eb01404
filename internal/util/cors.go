package util

import "net/http"

// corsAllowHeaders are the request headers the library API reads: bearer
// tokens, JSON and multipart bodies, and a caller-supplied request id.
const corsAllowHeaders = "Authorization, Content-Type, " + requestIDHeader

// WithCORS lets a browser front end on another origin call the API with
// bearer tokens and read the download file name.
func WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", corsAllowHeaders)
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Expose-Headers", requestIDHeader+", Content-Disposition")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
