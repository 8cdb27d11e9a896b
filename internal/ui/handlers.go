package ui

import (
	"bytes"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/me/gatehouse/internal/avatar"
	"github.com/me/gatehouse/internal/password"
	"github.com/me/gatehouse/internal/ratelimit"
	"github.com/me/gatehouse/internal/session"
	"github.com/me/gatehouse/internal/store"
	"github.com/me/gatehouse/pkg/model"
)

// Messages shown on the login and registration forms.
const (
	msgUnknownUser    = "Unknown username"
	msgWrongPassword  = "Wrong password"
	msgServerError    = "Server error"
	msgMissingFields  = "Username and password are required"
	msgTooManyLogins  = "Too many login attempts, try again later"
	msgUserExists     = "User already exists"
	msgInvalidRole    = "Invalid role"
	msgInvalidName    = "Invalid username"
	msgBadAvatarType  = "Invalid file format (only .png, .jpg, .gif)"
	msgAvatarFailed   = "Failed to save avatar file"
	msgInvalidRequest = "Invalid request"
)

// UI handles the web user interface.
type UI struct {
	users     store.UserStore
	sessions  *session.Manager
	avatars   *avatar.Storage
	hasher    *password.Hasher
	limiter   *ratelimit.Limiter
	logger    *slog.Logger
	staticDir string
	secure    bool // Use secure cookies (HTTPS)
}

// Config holds UI configuration.
type Config struct {
	Secure    bool   // Use secure cookies for HTTPS
	StaticDir string // Served under /static/ when set
}

// New creates a new UI handler.
func New(users store.UserStore, sessions *session.Manager, avatars *avatar.Storage, hasher *password.Hasher, logger *slog.Logger, cfg Config) *UI {
	return &UI{
		users:     users,
		sessions:  sessions,
		avatars:   avatars,
		hasher:    hasher,
		logger:    logger.With("component", "ui"),
		staticDir: cfg.StaticDir,
		secure:    cfg.Secure,
	}
}

// WithLoginLimiter throttles POST /login per client address.
func (ui *UI) WithLoginLimiter(l *ratelimit.Limiter) {
	ui.limiter = l
}

// HandleLogin renders the login page, or sends a logged-in user home.
func (ui *UI) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if sess, _ := ui.sessionFromRequest(r); sess != nil {
		http.Redirect(w, r, sess.HomePath(), http.StatusFound)
		return
	}
	ui.renderLogin(w, http.StatusOK, "")
}

// HandleLoginPost processes the login form.
func (ui *UI) HandleLoginPost(w http.ResponseWriter, r *http.Request) {
	if sess, _ := ui.sessionFromRequest(r); sess != nil {
		http.Redirect(w, r, sess.HomePath(), http.StatusFound)
		return
	}

	if !ui.limiter.Allow(clientIP(r)) {
		ui.logger.Warn("login rate limited", "remote", clientIP(r))
		ui.renderLogin(w, http.StatusTooManyRequests, msgTooManyLogins)
		return
	}

	if err := r.ParseForm(); err != nil {
		ui.renderLogin(w, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	pw := r.FormValue("password")
	if username == "" || pw == "" {
		ui.renderLogin(w, http.StatusOK, msgMissingFields)
		return
	}

	user, err := ui.users.GetUser(r.Context(), username)
	if err != nil {
		ui.logger.Error("user lookup failed", "username", username, "error", err)
		ui.renderLogin(w, http.StatusOK, msgServerError)
		return
	}
	if user == nil {
		ui.logger.Warn("failed login: unknown user", "username", username)
		ui.renderLogin(w, http.StatusOK, msgUnknownUser)
		return
	}
	if !password.Verify(user.PasswordHash, pw) {
		ui.logger.Warn("failed login: wrong password", "username", username)
		ui.renderLogin(w, http.StatusOK, msgWrongPassword)
		return
	}

	sess, err := ui.sessions.Create(r.Context(), user.Username, user.Role)
	if err != nil {
		ui.logger.Error("create session failed", "error", err)
		ui.renderLogin(w, http.StatusOK, msgServerError)
		return
	}

	SetSessionCookies(w, sess, ui.secure)

	ui.logger.Info("user logged in", "username", user.Username, "role", user.Role)
	http.Redirect(w, r, sess.HomePath(), http.StatusFound)
}

// HandleLogout clears the session and redirects to login.
func (ui *UI) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		sess, _ := ui.sessions.Lookup(r.Context(), cookie.Value)
		if sess != nil {
			if err := ui.sessions.Delete(r.Context(), sess.Token); err != nil {
				ui.logger.Error("delete session failed", "error", err)
			}
			ui.logger.Info("user logged out", "username", sess.Username)
		}
	}
	ClearSessionCookies(w)
	http.Redirect(w, r, "/login", http.StatusFound)
}

// HandleAdminHome renders the registration form.
func (ui *UI) HandleAdminHome(w http.ResponseWriter, r *http.Request) {
	ui.renderRegister(w, r, http.StatusOK, "", "")
}

// HandleRegister creates a user from the multipart registration form.
func (ui *UI) HandleRegister(w http.ResponseWriter, r *http.Request) {
	admin := SessionFromContext(r.Context())

	// Leave headroom over the avatar limit for the other form fields.
	maxBody := ui.avatars.MaxSize() + 1<<20
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := r.ParseMultipartForm(maxBody); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			ui.renderRegister(w, r, http.StatusRequestEntityTooLarge, ui.tooLargeMessage(), "")
			return
		}
		// A urlencoded body is acceptable when no avatar is sent.
		if !errors.Is(err, http.ErrNotMultipart) {
			ui.renderRegister(w, r, http.StatusBadRequest, msgInvalidRequest, "")
			return
		}
	}

	username := strings.TrimSpace(r.FormValue("username"))
	pw := r.FormValue("password")
	if username == "" || pw == "" {
		ui.renderRegister(w, r, http.StatusOK, msgMissingFields, "")
		return
	}
	if !model.ValidUsername(username) {
		ui.renderRegister(w, r, http.StatusOK, msgInvalidName, "")
		return
	}
	role, err := model.ParseRole(r.FormValue("role"))
	if err != nil {
		ui.renderRegister(w, r, http.StatusOK, msgInvalidRole, "")
		return
	}

	existing, err := ui.users.GetUser(r.Context(), username)
	if err != nil && !errors.Is(err, model.ErrStoreUnavailable) {
		ui.logger.Error("user lookup failed", "username", username, "error", err)
		ui.renderRegister(w, r, http.StatusOK, msgServerError, "")
		return
	}
	if existing != nil {
		ui.logger.Warn("registration of existing user", "admin", admin.Username, "username", username)
		ui.renderRegister(w, r, http.StatusOK, msgUserExists, "")
		return
	}

	avatarPath, msg := ui.saveAvatar(r, username)
	if msg != "" {
		ui.renderRegister(w, r, http.StatusOK, msg, "")
		return
	}

	hash, err := ui.hasher.Hash(pw)
	if err != nil {
		ui.logger.Error("hash password failed", "error", err)
		ui.renderRegister(w, r, http.StatusOK, msgServerError, "")
		return
	}

	err = ui.users.CreateUser(r.Context(), &model.User{
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		Avatar:       avatarPath,
	})
	if errors.Is(err, model.ErrUserExists) {
		ui.renderRegister(w, r, http.StatusOK, msgUserExists, "")
		return
	}
	if err != nil {
		ui.logger.Error("create user failed", "username", username, "error", err)
		ui.renderRegister(w, r, http.StatusOK, msgServerError, "")
		return
	}

	ui.logger.Info("user registered", "admin", admin.Username, "username", username, "role", role)
	ui.renderRegister(w, r, http.StatusOK, "", "User '"+username+"' created successfully.")
}

// saveAvatar stores the optional avatar upload. It returns the avatar path
// for the user table, or a form message on failure.
func (ui *UI) saveAvatar(r *http.Request, username string) (string, string) {
	if r.MultipartForm == nil {
		return model.DefaultAvatar, ""
	}
	file, header, err := r.FormFile("avatar")
	if errors.Is(err, http.ErrMissingFile) {
		return model.DefaultAvatar, ""
	}
	if err != nil {
		ui.logger.Error("read avatar upload failed", "error", err)
		return "", msgAvatarFailed
	}
	defer file.Close()

	if header.Filename == "" {
		return model.DefaultAvatar, ""
	}
	if !avatar.Allowed(header.Filename) {
		ui.logger.Warn("rejected avatar upload", "username", username, "filename", header.Filename)
		return "", msgBadAvatarType
	}

	p, err := ui.avatars.Save(username, header.Filename, file)
	switch {
	case errors.Is(err, model.ErrAvatarTooLarge):
		return "", ui.tooLargeMessage()
	case err != nil:
		ui.logger.Error("save avatar failed", "username", username, "error", err)
		return "", msgAvatarFailed
	}
	return p, ""
}

// HandleHome renders a user's own home page.
func (ui *UI) HandleHome(w http.ResponseWriter, r *http.Request) {
	sess := SessionFromContext(r.Context())
	username := chi.URLParam(r, "username")

	if sess == nil || sess.Username != username {
		who := ""
		if sess != nil {
			who = sess.Username
		}
		ui.logger.Warn("attempted access to another user's home", "username", who, "target", username)
		http.Redirect(w, r, "/403", http.StatusFound)
		return
	}

	avatarURL := "/" + model.DefaultAvatar
	user, err := ui.users.GetUser(r.Context(), username)
	switch {
	case err != nil:
		ui.logger.Error("user lookup failed", "username", username, "error", err)
	case user == nil:
		ui.logger.Error("session user missing from user table", "username", username)
	default:
		avatarURL = user.AvatarURL()
	}

	data := map[string]any{
		"Title":     "Home - Gatehouse",
		"Session":   sess,
		"Username":  username,
		"AvatarURL": avatarURL,
		"ExpiresAt": sess.Created.Add(ui.sessions.TTL()),
	}
	ui.render(w, http.StatusOK, "home", data)
}

// HandleForbidden renders the access-denied page.
func (ui *UI) HandleForbidden(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{
		"Title":   "Forbidden - Gatehouse",
		"Session": SessionFromContext(r.Context()),
	}
	ui.render(w, http.StatusForbidden, "forbidden", data)
}

// HandleNotFound renders the 404 page.
func (ui *UI) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{
		"Title":   "Not Found - Gatehouse",
		"Session": SessionFromContext(r.Context()),
		"Path":    r.URL.Path,
	}
	ui.render(w, http.StatusNotFound, "notfound", data)
}

// --- Helpers ---

func (ui *UI) renderLogin(w http.ResponseWriter, status int, msg string) {
	data := map[string]any{
		"Title": "Login - Gatehouse",
		"Error": msg,
	}
	ui.render(w, status, "login", data)
}

func (ui *UI) renderRegister(w http.ResponseWriter, r *http.Request, status int, errMsg, okMsg string) {
	data := map[string]any{
		"Title":     "Register - Gatehouse",
		"Session":   SessionFromContext(r.Context()),
		"Error":     errMsg,
		"Message":   okMsg,
		"MaxUpload": ui.avatars.MaxSize(),
	}
	ui.render(w, status, "register", data)
}

func (ui *UI) tooLargeMessage() string {
	return "Avatar file too large (max " + formatBytes(ui.avatars.MaxSize()) + ")"
}

// clientIP returns the request's remote address without the port.
// middleware.RealIP has already applied X-Forwarded-For when present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (ui *UI) render(w http.ResponseWriter, status int, template string, data map[string]any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	var buf bytes.Buffer
	if err := renderTemplate(&buf, template, data); err != nil {
		ui.logger.Error("template render failed", "template", template, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	buf.WriteTo(w)
}

