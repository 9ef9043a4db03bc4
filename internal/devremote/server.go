package devremote

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/fieldsync/api/middleware"
	"github.com/angelmondragon/fieldsync/api/responses"
	"github.com/angelmondragon/fieldsync/api/validators"
	pkgAuth "github.com/angelmondragon/fieldsync/pkg/auth"
	"github.com/angelmondragon/fieldsync/pkg/config"
	"github.com/angelmondragon/fieldsync/pkg/db/models"
	pkgerrors "github.com/angelmondragon/fieldsync/pkg/errors"
	"github.com/angelmondragon/fieldsync/pkg/logger"
)

const (
	loginPath    = "/Identity/Account/Login"
	continuePath = "/auth/continue"
)

// DefaultUser is who the dev login page signs in.
var DefaultUser = pkgAuth.SessionPayload{
	UserID: "dev-user",
	Email:  "dev@fieldsync.local",
	Roles:  []string{"technician"},
}

type Server struct {
	store *Store
	auth  config.DevAuthConfig
	logg  *logger.Logger
	now   func() time.Time
}

func NewServer(store *Store, auth config.DevAuthConfig, logg *logger.Logger) *Server {
	if store == nil {
		store = NewStore()
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Server{store: store, auth: auth, logg: logg, now: time.Now}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(s.logg),
		middleware.RequestID(s.logg),
		middleware.Logging(s.logg),
	)

	r.Head("/", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		responses.WriteSuccess(w, map[string]string{"status": "ok"})
	})

	r.Post("/auth/session", s.createSession)
	r.Get(loginPath, s.login)
	r.Get(continuePath, s.continueTo)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(s.auth, s.logg))
		r.Get("/users/me", s.me)
		r.Post("/entries", s.createEntry)
		r.Get("/entries", s.listEntries)
		r.Get("/entries/{id}", s.getEntry)
	})
	return r
}

type sessionRequest struct {
	UserID string   `json:"userId" validate:"required,max=120"`
	Email  string   `json:"email" validate:"omitempty,email"`
	Roles  []string `json:"roles"`
}

type sessionResponse struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := validators.DecodeJSONBody(r, &req); err != nil {
		responses.WriteError(r.Context(), s.logg, w, err)
		return
	}
	payload := pkgAuth.SessionPayload{UserID: req.UserID, Email: req.Email, Roles: req.Roles}
	token, expiresAt, err := s.startSession(w, payload)
	if err != nil {
		responses.WriteError(r.Context(), s.logg, w, err)
		return
	}
	responses.WriteSuccessStatus(w, http.StatusCreated, sessionResponse{Token: token, UserID: req.UserID, ExpiresAt: expiresAt})
}

// login signs in DefaultUser and returns to the local path in returnUrl.
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	if _, _, err := s.startSession(w, DefaultUser); err != nil {
		responses.WriteError(r.Context(), s.logg, w, err)
		return
	}
	returnURL := r.URL.Query().Get("returnUrl")
	if !strings.HasPrefix(returnURL, "/") || strings.HasPrefix(returnURL, "//") {
		returnURL = "/"
	}
	http.Redirect(w, r, returnURL, http.StatusFound)
}

// continueTo sends a signed-in operator back to a loopback address.
func (s *Server) continueTo(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(pkgAuth.SessionCookieName)
	if err != nil {
		http.Redirect(w, r, loginPath, http.StatusFound)
		return
	}
	if _, err := pkgAuth.ParseSessionToken(s.auth, c.Value); err != nil {
		http.Redirect(w, r, loginPath, http.StatusFound)
		return
	}

	target, err := url.Parse(r.URL.Query().Get("target"))
	if err != nil || !target.IsAbs() {
		responses.WriteError(r.Context(), s.logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid target"))
		return
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		responses.WriteError(r.Context(), s.logg, w, pkgerrors.New(pkgerrors.CodeValidation, "scheme not allowed"))
		return
	}
	switch strings.ToLower(target.Hostname()) {
	case "localhost", "127.0.0.1", "::1":
	default:
		responses.WriteError(r.Context(), s.logg, w, pkgerrors.New(pkgerrors.CodeValidation, "host not allowed"))
		return
	}
	http.Redirect(w, r, target.String(), http.StatusFound)
}

func (s *Server) startSession(w http.ResponseWriter, payload pkgAuth.SessionPayload) (string, time.Time, error) {
	now := s.now().UTC()
	token, err := pkgAuth.MintSessionToken(s.auth, now, payload)
	if err != nil {
		return "", time.Time{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint session")
	}
	expiresAt := now.Add(s.auth.TokenTTL())
	http.SetCookie(w, &http.Cookie{
		Name:     pkgAuth.SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return token, expiresAt, nil
}

type profileResponse struct {
	ID    string   `json:"id"`
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

// me answers with a bare profile object, the shape the agent expects.
func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	claims := middleware.SessionFromContext(r.Context())
	if claims == nil {
		responses.WriteError(r.Context(), s.logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session"))
		return
	}
	roles := claims.Roles
	if roles == nil {
		roles = []string{}
	}
	writeBare(w, http.StatusOK, profileResponse{ID: claims.UserID, Email: claims.Email, Roles: roles})
}

func (s *Server) createEntry(w http.ResponseWriter, r *http.Request) {
	var rec models.CapturedRecord
	if err := validators.DecodeJSONBody(r, &rec); err != nil {
		responses.WriteError(r.Context(), s.logg, w, err)
		return
	}
	if rec.ID == uuid.Nil {
		responses.WriteError(r.Context(), s.logg, w, pkgerrors.New(pkgerrors.CodeValidation, "id is required"))
		return
	}

	entry, created := s.store.Insert(Entry{
		Record:      rec,
		ReceivedAt:  s.now().UTC(),
		SubmittedBy: middleware.UserIDFromContext(r.Context()),
	})
	ctx := s.logg.WithRecordID(r.Context(), rec.ID.String())
	if !created {
		s.logg.Info(ctx, "duplicate entry ignored")
		responses.WriteError(ctx, s.logg, w, pkgerrors.New(pkgerrors.CodeConflict, "entry already exists").
			WithDetails(map[string]any{"id": rec.ID.String()}))
		return
	}
	s.logg.Info(ctx, "entry stored")
	responses.WriteSuccessStatus(w, http.StatusCreated, entry)
}

func (s *Server) listEntries(w http.ResponseWriter, _ *http.Request) {
	responses.WriteSuccess(w, s.store.Latest())
}

func (s *Server) getEntry(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		responses.WriteError(r.Context(), s.logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid id"))
		return
	}
	entry, ok := s.store.Get(id)
	if !ok {
		responses.WriteError(r.Context(), s.logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "entry not found"))
		return
	}
	responses.WriteSuccess(w, entry)
}

func writeBare(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
