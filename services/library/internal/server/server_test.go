package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"musiclib/internal/testutil"
	"musiclib/pkg/domain"
	"musiclib/pkg/mailer"
	"musiclib/pkg/store"
	"musiclib/pkg/tags"
	"musiclib/services/library/internal/app"
)

type captureMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
}

func (m *captureMailer) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *captureMailer) last(t *testing.T) mailer.Message {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatalf("no mail sent")
	}
	return m.sent[len(m.sent)-1]
}

type testServer struct {
	*httptest.Server
	mail *captureMailer
}

func newTestServer(t *testing.T, appCfg func(*app.Config), srvCfg func(*Config)) testServer {
	t.Helper()
	mail := &captureMailer{}
	cfg := app.Config{
		Store:         store.NewMemoryStore(),
		UploadDir:     t.TempDir(),
		SecretKey:     "test-secret",
		Mailer:        mail,
		PublicBaseURL: "http://music.test",
	}
	if appCfg != nil {
		appCfg(&cfg)
	}
	a, err := app.New(cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	sc := Config{App: a}
	if srvCfg != nil {
		srvCfg(&sc)
	}
	srv := httptest.NewServer(New(sc).Router())
	t.Cleanup(srv.Close)
	return testServer{Server: srv, mail: mail}
}

func (ts testServer) do(t *testing.T, method, path, token string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (ts testServer) doJSON(t *testing.T, method, path, token string, payload any) *http.Response {
	t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(data)
	}
	return ts.do(t, method, path, token, body, "application/json")
}

// signUp registers username and returns a session token.
func (ts testServer) signUp(t *testing.T, username string) string {
	t.Helper()
	resp := ts.doJSON(t, http.MethodPost, "/auth/register", "", map[string]string{
		"username":        username,
		"email":           username + "@example.com",
		"password":        "secret1",
		"confirmPassword": "secret1",
	})
	expectStatus(t, resp, http.StatusCreated)
	resp = ts.doJSON(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    username + "@example.com",
		"password": "secret1",
	})
	expectStatus(t, resp, http.StatusOK)
	var out loginResponse
	decode(t, resp, &out)
	if out.Token == "" {
		t.Fatalf("empty token for %s", username)
	}
	return out.Token
}

func (ts testServer) upload(t *testing.T, token, filename string, data []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("note", "ignored"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return ts.do(t, http.MethodPost, "/songs", token, &buf, mw.FormDataContentType())
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s: expected %d, got %d: %s", resp.Request.Method, resp.Request.URL.Path, want, resp.StatusCode, body)
	}
}

func expectError(t *testing.T, resp *http.Response, status int, code string) {
	t.Helper()
	expectStatus(t, resp, status)
	var out errorResponse
	decode(t, resp, &out)
	if out.Code != code {
		t.Fatalf("expected code %s, got %s (%s)", code, out.Code, out.Error)
	}
	if out.RequestID == "" {
		t.Fatalf("expected request id in error body")
	}
}

func decode(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	resp := ts.do(t, http.MethodGet, "/healthz", "", nil, "")
	expectStatus(t, resp, http.StatusOK)
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestSongsRequireAuth(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	expectError(t, ts.do(t, http.MethodGet, "/songs", "", nil, ""), http.StatusUnauthorized, "AUTH_INVALID_TOKEN")
	expectError(t, ts.do(t, http.MethodGet, "/songs", "not-a-token", nil, ""), http.StatusUnauthorized, "AUTH_INVALID_TOKEN")
}

func TestSongLifecycleAcrossUsers(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	alice := ts.signUp(t, "alice")
	bob := ts.signUp(t, "bob")

	data := testutil.MP3Bytes(t, &tags.Metadata{Title: "Freddie Freeloader", Artist: "Miles Davis", Album: "Kind of Blue"})
	resp := ts.upload(t, alice, "freddie.mp3", data)
	expectStatus(t, resp, http.StatusCreated)
	var song domain.Song
	decode(t, resp, &song)
	if song.ID == 0 || song.Title != "Freddie Freeloader" {
		t.Fatalf("unexpected upload result: %+v", song)
	}
	songPath := "/songs/" + itoa(song.ID)

	resp = ts.do(t, http.MethodGet, "/songs?owner=me&page=1", alice, nil, "")
	expectStatus(t, resp, http.StatusOK)
	var page struct {
		Items []domain.Song `json:"items"`
		Total int64         `json:"total"`
		Pages int           `json:"pages"`
	}
	decode(t, resp, &page)
	if page.Total != 1 || len(page.Items) != 1 || page.Pages != 1 {
		t.Fatalf("unexpected owned page: %+v", page)
	}

	resp = ts.do(t, http.MethodGet, "/songs?owner=me", bob, nil, "")
	expectStatus(t, resp, http.StatusOK)
	decode(t, resp, &page)
	if page.Total != 0 {
		t.Fatalf("bob should own nothing, got %d", page.Total)
	}

	// The shared collection and song detail are visible to everyone.
	expectStatus(t, ts.do(t, http.MethodGet, "/songs", bob, nil, ""), http.StatusOK)
	expectStatus(t, ts.do(t, http.MethodGet, songPath, bob, nil, ""), http.StatusOK)

	edit := map[string]string{"title": "So What", "artist": "Miles Davis", "album": "Kind of Blue"}
	expectError(t, ts.doJSON(t, http.MethodPut, songPath, bob, edit), http.StatusForbidden, "SONG_FORBIDDEN")
	expectError(t, ts.do(t, http.MethodDelete, songPath, bob, nil, ""), http.StatusForbidden, "SONG_FORBIDDEN")
	expectError(t, ts.do(t, http.MethodGet, songPath+"/download", bob, nil, ""), http.StatusForbidden, "SONG_FORBIDDEN")

	resp = ts.doJSON(t, http.MethodPut, songPath, alice, edit)
	expectStatus(t, resp, http.StatusOK)
	var updated app.MetadataUpdate
	decode(t, resp, &updated)
	if !updated.TagsInSync || updated.Song.Title != "So What" {
		t.Fatalf("unexpected update: %+v", updated)
	}

	resp = ts.do(t, http.MethodGet, songPath+"/download", alice, nil, "")
	expectStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); ct != "audio/mpeg" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); cd != `attachment; filename="So What.mp3"` {
		t.Fatalf("unexpected disposition %q", cd)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-cache" {
		t.Fatalf("unexpected cache control %q", cc)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read download: %v", err)
	}
	if len(body) == 0 || string(body[:3]) != "ID3" {
		t.Fatalf("expected tagged mp3 bytes, got %d bytes", len(body))
	}

	resp = ts.do(t, http.MethodDelete, songPath, alice, nil, "")
	expectStatus(t, resp, http.StatusOK)
	expectError(t, ts.do(t, http.MethodDelete, songPath, alice, nil, ""), http.StatusNotFound, "SONG_NOT_FOUND")
	expectError(t, ts.do(t, http.MethodGet, songPath, alice, nil, ""), http.StatusNotFound, "SONG_NOT_FOUND")
}

func TestUploadRejects(t *testing.T) {
	ts := newTestServer(t, func(cfg *app.Config) { cfg.MaxUploadBytes = 2048 }, nil)
	token := ts.signUp(t, "alice")

	expectError(t, ts.upload(t, token, "song.wav", testutil.MP3Frames(512)), http.StatusBadRequest, "SONG_UNSUPPORTED_FILE_TYPE")
	expectError(t, ts.upload(t, token, "", nil), http.StatusBadRequest, "SONG_FILE_REQUIRED")
	expectError(t, ts.upload(t, token, "song.mp3", testutil.MP3Frames(8192)), http.StatusRequestEntityTooLarge, "SONG_FILE_TOO_LARGE")
	expectError(t, ts.do(t, http.MethodPost, "/songs", token, strings.NewReader("{}"), "application/json"), http.StatusBadRequest, "SYSTEM_INVALID_REQUEST")

	big := bytes.Repeat([]byte{0}, 2048+multipartOverhead+1)
	expectError(t, ts.do(t, http.MethodPost, "/songs", token, bytes.NewReader(big), "multipart/form-data; boundary=x"), http.StatusRequestEntityTooLarge, "SONG_FILE_TOO_LARGE")

	resp := ts.do(t, http.MethodGet, "/songs", token, nil, "")
	expectStatus(t, resp, http.StatusOK)
	var page struct {
		Total int64 `json:"total"`
	}
	decode(t, resp, &page)
	if page.Total != 0 {
		t.Fatalf("rejected uploads must not create rows, got %d", page.Total)
	}
}

func TestSearchEndpoint(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	token := ts.signUp(t, "alice")
	resp := ts.upload(t, token, "a.mp3", testutil.MP3Bytes(t, &tags.Metadata{Title: "Intro", Artist: "Band", Album: "Midnight Sessions"}))
	expectStatus(t, resp, http.StatusCreated)

	resp = ts.do(t, http.MethodGet, "/songs/search?q=midnight", token, nil, "")
	expectStatus(t, resp, http.StatusOK)
	var result domain.SearchResult
	decode(t, resp, &result)
	if len(result.Items) != 1 || result.NoQuery {
		t.Fatalf("expected one album match, got %+v", result)
	}

	resp = ts.do(t, http.MethodGet, "/songs/search?q=+", token, nil, "")
	expectStatus(t, resp, http.StatusOK)
	result = domain.SearchResult{}
	decode(t, resp, &result)
	if !result.NoQuery || len(result.Items) != 0 {
		t.Fatalf("expected no-query result, got %+v", result)
	}
}

func TestAccountEndpoints(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	token := ts.signUp(t, "alice")
	ts.signUp(t, "bob")

	resp := ts.doJSON(t, http.MethodPost, "/auth/register", "", map[string]string{
		"username": "alice", "email": "x@example.com", "password": "secret1", "confirmPassword": "secret1",
	})
	expectError(t, resp, http.StatusConflict, "AUTH_USERNAME_TAKEN")

	resp = ts.doJSON(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "alice@example.com", "password": "nope"})
	expectError(t, resp, http.StatusUnauthorized, "AUTH_INVALID_CREDENTIALS")

	resp = ts.do(t, http.MethodGet, "/auth/me", token, nil, "")
	expectStatus(t, resp, http.StatusOK)
	var me map[string]any
	decode(t, resp, &me)
	if me["username"] != "alice" {
		t.Fatalf("unexpected me: %+v", me)
	}
	if _, ok := me["passwordHash"]; ok {
		t.Fatalf("password hash must not be serialized")
	}

	resp = ts.doJSON(t, http.MethodPatch, "/auth/me", token, map[string]string{"username": "alice", "email": "bob@example.com"})
	expectError(t, resp, http.StatusConflict, "AUTH_EMAIL_TAKEN")
	resp = ts.doJSON(t, http.MethodPatch, "/auth/me", token, map[string]string{"username": "alice2", "email": "alice@example.com"})
	expectStatus(t, resp, http.StatusOK)

	expectStatus(t, ts.do(t, http.MethodPost, "/auth/logout", token, nil, ""), http.StatusNoContent)
	expectError(t, ts.do(t, http.MethodGet, "/auth/me", token, nil, ""), http.StatusUnauthorized, "AUTH_INVALID_TOKEN")
}

func TestPasswordResetEndpoints(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	ts.signUp(t, "alice")

	expectStatus(t, ts.doJSON(t, http.MethodPost, "/password-reset", "", map[string]string{"email": "ghost@example.com"}), http.StatusAccepted)
	expectStatus(t, ts.doJSON(t, http.MethodPost, "/password-reset", "", map[string]string{"email": "alice@example.com"}), http.StatusAccepted)

	body := ts.mail.last(t).Body
	_, rest, ok := strings.Cut(body, "http://music.test/password-reset/")
	if !ok {
		t.Fatalf("reset link missing: %q", body)
	}
	token, _, _ := strings.Cut(rest, "\n")

	newPassword := map[string]string{"password": "brandnew", "confirmPassword": "brandnew"}
	expectError(t, ts.doJSON(t, http.MethodPost, "/password-reset/garbage", "", newPassword), http.StatusBadRequest, "RESET_TOKEN_INVALID")
	expectStatus(t, ts.doJSON(t, http.MethodPost, "/password-reset/"+token, "", newPassword), http.StatusNoContent)

	resp := ts.doJSON(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "alice@example.com", "password": "brandnew"})
	expectStatus(t, resp, http.StatusOK)
}

func TestDownloadName(t *testing.T) {
	cases := []struct {
		title, want string
	}{
		{"So What", "So What.mp3"},
		{"AC/DC: Live?", "AC_DC_ Live_.mp3"},
		{"  ", "song.mp3"},
		{"...", "song.mp3"},
		{"Café", "Café.mp3"},
		{"tab\there", "tabhere.mp3"},
		{`quote"d`, "quote_d.mp3"},
	}
	for _, tc := range cases {
		if got := downloadName(tc.title); got != tc.want {
			t.Fatalf("downloadName(%q)=%q, want %q", tc.title, got, tc.want)
		}
	}
}

func TestContentDisposition(t *testing.T) {
	cases := []struct {
		title, want string
	}{
		{"Intro", `attachment; filename="Intro.mp3"`},
		{"So What", `attachment; filename="So What.mp3"`},
		{"Café", `attachment; filename="Caf_.mp3"; filename*=UTF-8''Caf%C3%A9.mp3`},
		{"100% (live)", `attachment; filename="100% (live).mp3"`},
	}
	for _, tc := range cases {
		if got := contentDisposition(downloadName(tc.title)); got != tc.want {
			t.Fatalf("contentDisposition(%q)=%q, want %q", tc.title, got, tc.want)
		}
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
