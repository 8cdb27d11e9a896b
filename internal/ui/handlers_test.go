package ui

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/me/gatehouse/internal/avatar"
	"github.com/me/gatehouse/internal/password"
	"github.com/me/gatehouse/internal/ratelimit"
	"github.com/me/gatehouse/internal/session"
	"github.com/me/gatehouse/internal/store"
	"github.com/me/gatehouse/pkg/model"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testEnv struct {
	ui       *UI
	router   chi.Router
	users    *store.CSVStore
	sessions *session.Manager
	clock    *testClock
	upload   string
	logs     *bytes.Buffer
}

func setupUI(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelInfo}))

	users := store.NewCSVStore(filepath.Join(dir, "users.csv"), logger)
	hasher, err := password.NewHasher(password.SchemeSHA256, 0)
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	if _, err := store.Seed(context.Background(), users, hasher, store.DefaultSeed); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	clock := &testClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	sessions := session.NewManager(session.NewMemoryStore(), 3*time.Minute, logger, session.WithClock(clock.Now))

	upload := filepath.Join(dir, "uploads")
	avatars := avatar.NewStorage(upload, 1024, logger)
	if err := avatars.EnsureDefault(); err != nil {
		t.Fatalf("EnsureDefault: %v", err)
	}

	ui := New(users, sessions, avatars, hasher, logger, Config{})
	r := chi.NewRouter()
	r.Use(ui.SessionMiddleware)
	ui.RegisterRoutes(r)

	return &testEnv{
		ui:       ui,
		router:   r,
		users:    users,
		sessions: sessions,
		clock:    clock,
		upload:   upload,
		logs:     &logs,
	}
}

func (e *testEnv) do(req *http.Request, cookies []*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) get(path string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	return e.do(httptest.NewRequest("GET", path, nil), cookies)
}

func (e *testEnv) postLogin(username, pw string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	form := url.Values{"username": {username}, "password": {pw}}
	req := httptest.NewRequest("POST", "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return e.do(req, cookies)
}

// login signs in and returns the cookies set by the server.
func (e *testEnv) login(t *testing.T, username, pw string) []*http.Cookie {
	t.Helper()
	w := e.postLogin(username, pw, nil)
	if w.Code != http.StatusFound {
		t.Fatalf("login %s: status = %d, want 302; body=%s", username, w.Code, w.Body.String())
	}
	return w.Result().Cookies()
}

func (e *testEnv) sessionCount(t *testing.T) int {
	t.Helper()
	n, err := e.sessions.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	return n
}

func (e *testEnv) postRegister(t *testing.T, fields map[string]string, filename string, content []byte, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	if filename != "" || content != nil {
		fw, err := mw.CreateFormFile("avatar", filename)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		fw.Write(content)
	}
	mw.Close()

	req := httptest.NewRequest("POST", "/register", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return e.do(req, cookies)
}

func location(w *httptest.ResponseRecorder) string {
	return w.Header().Get("Location")
}

func TestLoginPage(t *testing.T) {
	env := setupUI(t)
	for _, path := range []string{"/", "/login"} {
		w := env.get(path, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("GET %s: status = %d, want 200", path, w.Code)
		}
		if !strings.Contains(w.Body.String(), `action="/login"`) {
			t.Errorf("GET %s: login form missing", path)
		}
	}
}

func TestLoginSuccess(t *testing.T) {
	env := setupUI(t)

	w := env.postLogin("admin", "1234", nil)
	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}
	if got := location(w); got != "/home/admin" {
		t.Errorf("Location = %q, want /home/admin", got)
	}
	if n := env.sessionCount(t); n != 1 {
		t.Errorf("sessions = %d, want 1", n)
	}

	names := map[string]string{}
	for _, c := range w.Result().Cookies() {
		names[c.Name] = c.Value
	}
	if names[SessionCookieName] == "" {
		t.Error("session_id cookie not set")
	}
	if names[UsernameCookieName] != "admin" || names[RoleCookieName] != "admin" {
		t.Errorf("cookies = %v", names)
	}
	if !strings.Contains(env.logs.String(), "user logged in") {
		t.Error("login not logged")
	}
}

func TestLoginSuccess_UserRedirect(t *testing.T) {
	env := setupUI(t)
	w := env.postLogin("user1", "4321", nil)
	if got := location(w); got != "/home/user1" {
		t.Errorf("Location = %q, want /home/user1", got)
	}
}

func TestLoginFailures(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
		want     string
	}{
		{"wrong password", "admin", "wrong_password", "Wrong password"},
		{"unknown user", "ghost", "1234", "Unknown username"},
		{"missing password", "admin", "", "Username and password are required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupUI(t)
			w := env.postLogin(tt.username, tt.password, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.want) {
				t.Errorf("body missing %q", tt.want)
			}
			if n := env.sessionCount(t); n != 0 {
				t.Errorf("sessions = %d, want 0", n)
			}
		})
	}
}

func TestLogin_StoreUnavailable(t *testing.T) {
	env := setupUI(t)
	if err := os.Remove(env.users.Path()); err != nil {
		t.Fatalf("remove users file: %v", err)
	}
	w := env.postLogin("admin", "1234", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Server error") {
		t.Errorf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestLogin_RateLimited(t *testing.T) {
	env := setupUI(t)
	env.ui.WithLoginLimiter(ratelimit.New(1, 2))

	env.postLogin("admin", "bad", nil)
	env.postLogin("admin", "bad", nil)
	w := env.postLogin("admin", "1234", nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Too many login attempts") {
		t.Error("rate limit message missing")
	}
	if n := env.sessionCount(t); n != 0 {
		t.Errorf("sessions = %d, want 0", n)
	}
}

func TestLogin_LiveSessionNotRateLimited(t *testing.T) {
	env := setupUI(t)
	env.ui.WithLoginLimiter(ratelimit.New(1, 1))

	cookies := env.login(t, "user1", "4321")
	for i := 0; i < 3; i++ {
		w := env.postLogin("user1", "4321", cookies)
		if w.Code != http.StatusFound || location(w) != "/home/user1" {
			t.Fatalf("attempt %d: status = %d, Location = %q; want 302 /home/user1", i, w.Code, location(w))
		}
	}
}

func TestAdminPage_DeniedForUser(t *testing.T) {
	env := setupUI(t)
	cookies := env.login(t, "user1", "4321")

	w := env.get("/home/admin", cookies)
	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}
	if got := location(w); got != "/403" {
		t.Errorf("Location = %q, want /403", got)
	}
	if !strings.Contains(env.logs.String(), "attempted admin access") {
		t.Error("forbidden admin access not logged")
	}
}

func TestAdminPage_GrantedForAdmin(t *testing.T) {
	env := setupUI(t)
	cookies := env.login(t, "admin", "1234")

	w := env.get("/home/admin", cookies)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "Register a new user") || !strings.Contains(body, `id="register-form"`) {
		t.Error("registration form missing")
	}
}

func TestRepeatedLogin(t *testing.T) {
	env := setupUI(t)
	cookies := env.login(t, "user1", "4321")

	w := env.get("/login", cookies)
	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}
	if got := location(w); got != "/home/user1" {
		t.Errorf("Location = %q, want /home/user1", got)
	}

	// POST /login with a live session does not create another one.
	w = env.postLogin("admin", "1234", cookies)
	if got := location(w); got != "/home/user1" {
		t.Errorf("POST Location = %q, want /home/user1", got)
	}
	if n := env.sessionCount(t); n != 1 {
		t.Errorf("sessions = %d, want 1", n)
	}
}

func TestHome(t *testing.T) {
	env := setupUI(t)
	cookies := env.login(t, "user1", "4321")

	w := env.get("/home/user1", cookies)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "Welcome, user1!") {
		t.Error("greeting missing")
	}
	if !strings.Contains(body, `src="/uploads/default.png"`) {
		t.Error("default avatar missing")
	}
}

func TestHome_OtherUser(t *testing.T) {
	env := setupUI(t)
	cookies := env.login(t, "user1", "4321")

	w := env.get("/home/someoneelse", cookies)
	if w.Code != http.StatusFound || location(w) != "/403" {
		t.Errorf("status = %d, Location = %q; want 302 /403", w.Code, location(w))
	}
}

func TestProtectedWithoutSession(t *testing.T) {
	env := setupUI(t)
	for _, path := range []string{"/home/user1", "/home/admin", "/nowhere"} {
		w := env.get(path, nil)
		if w.Code != http.StatusFound || location(w) != "/" {
			t.Errorf("GET %s: status = %d, Location = %q; want 302 /", path, w.Code, location(w))
		}
	}

	w := env.get("/home/user1", []*http.Cookie{{Name: SessionCookieName, Value: "forged"}})
	if w.Code != http.StatusFound || location(w) != "/" {
		t.Errorf("forged cookie: status = %d, Location = %q", w.Code, location(w))
	}
}

func TestSessionExpiry(t *testing.T) {
	env := setupUI(t)
	cookies := env.login(t, "user1", "4321")

	env.clock.Advance(3*time.Minute + time.Second)

	w := env.get("/home/user1", cookies)
	if w.Code != http.StatusFound || location(w) != "/" {
		t.Fatalf("status = %d, Location = %q; want 302 /", w.Code, location(w))
	}
	if n := env.sessionCount(t); n != 0 {
		t.Errorf("expired session not removed: %d left", n)
	}
	if !strings.Contains(env.logs.String(), "session expired") {
		t.Error("expiry not logged")
	}
}

func TestSessionSlidingWindow(t *testing.T) {
	env := setupUI(t)
	cookies := env.login(t, "user1", "4321")

	for i := 0; i < 4; i++ {
		env.clock.Advance(2 * time.Minute)
		w := env.get("/home/user1", cookies)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, w.Code)
		}
	}
}

func TestLogout(t *testing.T) {
	env := setupUI(t)
	cookies := env.login(t, "user1", "4321")

	w := env.get("/logout", cookies)
	if w.Code != http.StatusFound || location(w) != "/login" {
		t.Fatalf("status = %d, Location = %q; want 302 /login", w.Code, location(w))
	}
	if n := env.sessionCount(t); n != 0 {
		t.Errorf("sessions = %d, want 0", n)
	}
	cleared := 0
	for _, c := range w.Result().Cookies() {
		if c.MaxAge < 0 {
			cleared++
		}
	}
	if cleared != 3 {
		t.Errorf("cleared %d cookies, want 3", cleared)
	}

	w = env.get("/home/user1", cookies)
	if location(w) != "/" {
		t.Errorf("old cookie still valid: Location = %q", location(w))
	}

	// Logging out without a session is fine.
	if w := env.get("/logout", nil); w.Code != http.StatusFound {
		t.Errorf("anonymous logout status = %d", w.Code)
	}
}

// deletingStore drops each session as it is read, the way a logout
// running alongside the request would.
type deletingStore struct {
	*session.MemoryStore
}

func (s deletingStore) Get(ctx context.Context, token string) (*model.Session, error) {
	sess, err := s.MemoryStore.Get(ctx, token)
	s.MemoryStore.Delete(ctx, token)
	return sess, err
}

func TestSessionDeletedDuringRequest(t *testing.T) {
	env := setupUI(t)
	ctx := context.Background()

	sessions := session.NewManager(deletingStore{session.NewMemoryStore()}, 3*time.Minute, quietLogger(), session.WithClock(env.clock.Now))
	sess, err := sessions.Create(ctx, "user1", model.RoleUser)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	u := New(env.users, sessions, env.ui.avatars, env.ui.hasher, quietLogger(), Config{})
	r := chi.NewRouter()
	r.Use(u.SessionMiddleware)
	u.RegisterRoutes(r)

	req := httptest.NewRequest("GET", "/home/user1", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sess.Token})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusFound || location(w) != "/" {
		t.Errorf("status = %d, Location = %q; want 302 /", w.Code, location(w))
	}
	if n, _ := sessions.Count(ctx); n != 0 {
		t.Errorf("sessions = %d, want 0: deleted session was recreated", n)
	}
}

func TestForbiddenPage(t *testing.T) {
	env := setupUI(t)
	w := env.get("/403", nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Access denied") {
		t.Error("forbidden message missing")
	}
}

func TestNotFound(t *testing.T) {
	env := setupUI(t)
	cookies := env.login(t, "user1", "4321")

	w := env.get("/no/such/page", cookies)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if !strings.Contains(w.Body.String(), "404") {
		t.Error("404 page missing")
	}
}

func TestRegister_Success(t *testing.T) {
	env := setupUI(t)
	cookies := env.login(t, "admin", "1234")

	w := env.postRegister(t, map[string]string{"username": "alice", "password": "pw", "role": "user"}, "", nil, cookies)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "User &#39;alice&#39; created successfully.") {
		t.Errorf("success message missing: %s", w.Body.String())
	}

	u, err := env.users.GetUser(context.Background(), "alice")
	if err != nil || u == nil {
		t.Fatalf("GetUser: %v, %v", u, err)
	}
	if u.Avatar != model.DefaultAvatar || u.Role != model.RoleUser {
		t.Errorf("user = %+v", u)
	}

	// The new account can sign in.
	w = env.postLogin("alice", "pw", nil)
	if location(w) != "/home/alice" {
		t.Errorf("new user login Location = %q", location(w))
	}
}

func TestRegister_WithAvatar(t *testing.T) {
	env := setupUI(t)
	cookies := env.login(t, "admin", "1234")

	w := env.postRegister(t, map[string]string{"username": "bob", "password": "pw", "role": "admin"}, "face.PNG", []byte("png-bytes"), cookies)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "created successfully") {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	u, _ := env.users.GetUser(context.Background(), "bob")
	if u == nil || u.Avatar != "uploads/bob.png" {
		t.Fatalf("user = %+v", u)
	}
	data, err := os.ReadFile(filepath.Join(env.upload, "bob.png"))
	if err != nil || string(data) != "png-bytes" {
		t.Errorf("avatar file = %q, %v", data, err)
	}

	// An admin account lands on the admin home.
	w = env.postLogin("bob", "pw", nil)
	if location(w) != "/home/admin" {
		t.Errorf("Location = %q, want /home/admin", location(w))
	}
}

func TestRegister_Errors(t *testing.T) {
	tests := []struct {
		name     string
		fields   map[string]string
		filename string
		content  []byte
		want     string
	}{
		{"duplicate", map[string]string{"username": "user1", "password": "x", "role": "user"}, "", nil, "User already exists"},
		{"bad extension", map[string]string{"username": "carol", "password": "x", "role": "user"}, "evil.exe", []byte("x"), "Invalid file format (only .png, .jpg, .gif)"},
		{"bad role", map[string]string{"username": "carol", "password": "x", "role": "root"}, "", nil, "Invalid role"},
		{"missing password", map[string]string{"username": "carol", "role": "user"}, "", nil, "Username and password are required"},
		{"slash in name", map[string]string{"username": "a/b", "password": "x", "role": "user"}, "", nil, "Invalid username"},
		{"reserved name", map[string]string{"username": "default", "password": "x", "role": "user"}, "me.png", []byte("EVIL"), "Invalid username"},
		{"avatar too large", map[string]string{"username": "carol", "password": "x", "role": "user"}, "big.png", bytes.Repeat([]byte("x"), 2048), "Avatar file too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupUI(t)
			cookies := env.login(t, "admin", "1234")

			w := env.postRegister(t, tt.fields, tt.filename, tt.content, cookies)
			if !strings.Contains(w.Body.String(), tt.want) {
				t.Errorf("body missing %q (status %d)", tt.want, w.Code)
			}
			users, err := env.users.ListUsers(context.Background())
			if err != nil {
				t.Fatalf("ListUsers: %v", err)
			}
			if len(users) != 2 {
				t.Errorf("users = %d, want 2", len(users))
			}
		})
	}
}

func TestRegister_DefaultAvatarUntouched(t *testing.T) {
	env := setupUI(t)
	cookies := env.login(t, "admin", "1234")
	placeholder := filepath.Join(env.upload, "default.png")
	before, err := os.ReadFile(placeholder)
	if err != nil {
		t.Fatalf("read placeholder: %v", err)
	}

	env.postRegister(t, map[string]string{"username": "Default", "password": "x", "role": "user"}, "me.png", []byte("EVIL"), cookies)

	after, err := os.ReadFile(placeholder)
	if err != nil {
		t.Fatalf("read placeholder: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Error("registration replaced the shared default avatar")
	}
}

func TestRegister_RequiresAdmin(t *testing.T) {
	env := setupUI(t)

	w := env.postRegister(t, map[string]string{"username": "eve", "password": "x", "role": "admin"}, "", nil, nil)
	if location(w) != "/" {
		t.Errorf("anonymous: Location = %q, want /", location(w))
	}

	cookies := env.login(t, "user1", "4321")
	w = env.postRegister(t, map[string]string{"username": "eve", "password": "x", "role": "admin"}, "", nil, cookies)
	if location(w) != "/403" {
		t.Errorf("user: Location = %q, want /403", location(w))
	}

	if u, _ := env.users.GetUser(context.Background(), "eve"); u != nil {
		t.Error("non-admin registration created a user")
	}
}

func TestUploadsServed(t *testing.T) {
	env := setupUI(t)

	w := env.get("/uploads/default.png", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	b, _ := io.ReadAll(w.Body)
	if !bytes.HasPrefix(b, []byte("\x89PNG")) {
		t.Error("default avatar is not a PNG")
	}

	for _, path := range []string{"/uploads/../users.csv", "/uploads/.hidden", "/uploads/"} {
		if w := env.get(path, nil); w.Code == http.StatusOK {
			t.Errorf("GET %s: status 200, want refusal", path)
		}
	}
}
