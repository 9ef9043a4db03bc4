// Package identity resolves the signed-in user the agent attributes captures
// to.
package identity

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/angelmondragon/fieldsync/internal/remote"
	"github.com/angelmondragon/fieldsync/internal/settings"
	"github.com/angelmondragon/fieldsync/pkg/logger"
)

type profileFetcher interface {
	FetchProfile(ctx context.Context) (remote.Profile, int, error)
}

type connectivity interface {
	Online() bool
}

// LoginRedirector sends the operator to the remote login page.
type LoginRedirector interface {
	RedirectToLogin(ctx context.Context, loginURL string)
}

// Resolver caches the user id in memory and in the settings store and
// refreshes it from the remote profile endpoint.
type Resolver struct {
	profiles   profileFetcher
	online     connectivity
	store      settings.Store
	redirector LoginRedirector
	loginURL   string
	logg       *logger.Logger

	cached atomic.Pointer[string]
	group  singleflight.Group
}

type Params struct {
	Profiles   profileFetcher
	Online     connectivity
	Store      settings.Store
	Redirector LoginRedirector
	// LoginURL is where RedirectToLogin points the operator.
	LoginURL string
	Logger   *logger.Logger
}

func NewResolver(p Params) *Resolver {
	logg := p.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	redirector := p.Redirector
	if redirector == nil {
		redirector = NewLogRedirector(logg)
	}
	return &Resolver{
		profiles:   p.Profiles,
		online:     p.Online,
		store:      p.Store,
		redirector: redirector,
		loginURL:   p.LoginURL,
		logg:       logg,
	}
}

// Cached returns the in-memory identity without touching storage or network.
func (r *Resolver) Cached() (string, bool) {
	if id := r.cached.Load(); id != nil {
		return *id, true
	}
	return "", false
}

// CurrentIdentity returns the cached identity, falling back to the settings
// store and then to Refresh.
func (r *Resolver) CurrentIdentity(ctx context.Context) (string, bool) {
	if id, ok := r.Cached(); ok {
		return id, true
	}
	stored, ok, err := r.store.Get(ctx, settings.KeyUserID)
	if err != nil {
		r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "read cached identity failed")
	}
	if ok && strings.TrimSpace(stored) != "" {
		r.cached.Store(&stored)
		return stored, true
	}
	return r.Refresh(ctx)
}

// Refresh asks the remote for the signed-in user. It makes no request while
// offline. Concurrent callers share one request.
func (r *Resolver) Refresh(ctx context.Context) (string, bool) {
	if !r.online.Online() {
		return "", false
	}
	v, _, _ := r.group.Do("refresh", func() (any, error) {
		return r.refresh(ctx), nil
	})
	id, _ := v.(string)
	return id, id != ""
}

func (r *Resolver) refresh(ctx context.Context) string {
	profile, status, err := r.profiles.FetchProfile(ctx)
	if err == nil {
		if setErr := r.store.Set(ctx, settings.KeyUserID, profile.ID); setErr != nil {
			r.logg.Warn(r.logg.WithField(ctx, "error", setErr.Error()), "persist identity failed")
		}
		id := profile.ID
		r.cached.Store(&id)
		if c, ok := r.redirector.(interface{ Clear() }); ok {
			c.Clear()
		}
		r.logg.Info(r.logg.WithUserID(ctx, id), "identity refreshed")
		return id
	}

	if status == http.StatusUnauthorized {
		r.redirector.RedirectToLogin(ctx, r.loginURL)
		return ""
	}
	logCtx := r.logg.WithFields(ctx, map[string]any{"status": status, "error": err.Error()})
	r.logg.Warn(logCtx, "unable to refresh user profile")
	return ""
}

// LoginURL builds the remote login address that comes back to target once
// the operator has signed in.
func LoginURL(origin, loginPath, target string) string {
	returnURL := "/auth/continue?target=" + url.QueryEscape(target)
	return strings.TrimRight(origin, "/") + "/" + strings.TrimLeft(loginPath, "/") +
		"?returnUrl=" + url.QueryEscape(returnURL)
}

// LogRedirector is the headless redirector: it logs the login address and
// remembers the most recent one for the status endpoint.
type LogRedirector struct {
	logg *logger.Logger

	mu   sync.RWMutex
	last string
}

func NewLogRedirector(logg *logger.Logger) *LogRedirector {
	if logg == nil {
		logg = logger.Nop()
	}
	return &LogRedirector{logg: logg}
}

func (l *LogRedirector) RedirectToLogin(ctx context.Context, loginURL string) {
	l.mu.Lock()
	l.last = loginURL
	l.mu.Unlock()
	l.logg.Warn(l.logg.WithField(ctx, "login_url", loginURL), "remote session rejected; sign in required")
}

// Pending returns the last login address issued, or "" if none.
func (l *LogRedirector) Pending() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.last
}

// Clear forgets the pending login address.
func (l *LogRedirector) Clear() {
	l.mu.Lock()
	l.last = ""
	l.mu.Unlock()
}
