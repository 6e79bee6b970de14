package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/rl1809/food-flow/internal/core/domain"
	"github.com/rl1809/food-flow/internal/port"
)

const LoginPath = "/login"

var (
	ErrMissingCredentials = errors.New("email and password are required")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrMissingProvider    = errors.New("provider name is required")
	ErrMissingAuthCode    = errors.New("authorization code is required")
)

// AuthError is a provider or network failure of one gate operation.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

type AccessDecision int

const (
	// AccessDefer means the session is still loading and no decision can be made yet.
	AccessDefer AccessDecision = iota
	AccessGranted
	AccessRedirect
)

// SessionGate mirrors the identity provider's auth state for one client.
// The session only ever changes in response to provider events.
type SessionGate struct {
	provider port.IdentityProvider

	mu           sync.RWMutex
	identity     *domain.Identity
	initializing bool
	inFlight     int
	listeners    []func(domain.Session)

	unsubscribe port.CancelFunc
	closeOnce   sync.Once
}

// NewSessionGate subscribes to the provider's auth stream for the lifetime
// of the gate and reads the current session.
func NewSessionGate(ctx context.Context, provider port.IdentityProvider) *SessionGate {
	g := &SessionGate{
		provider:     provider,
		initializing: true,
	}
	g.unsubscribe = provider.OnAuthStateChange(g.handleAuthEvent)

	identity, err := provider.GetSession(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("session: initial session lookup failed")
	}

	g.mu.Lock()
	// An event may already have arrived; it is more recent than the lookup.
	if g.initializing {
		g.identity = identity
		g.initializing = false
	}
	g.mu.Unlock()
	g.broadcast()

	return g
}

func (g *SessionGate) handleAuthEvent(event domain.AuthEvent) {
	g.mu.Lock()
	g.identity = event.Identity
	g.initializing = false
	g.mu.Unlock()

	log.Debug().Str("event", string(event.Kind)).Msg("session: auth state changed")
	g.broadcast()
}

// OnChange registers fn to run after every session change.
func (g *SessionGate) OnChange(fn func(domain.Session)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listeners = append(g.listeners, fn)
}

func (g *SessionGate) broadcast() {
	g.mu.RLock()
	listeners := append([]func(domain.Session){}, g.listeners...)
	g.mu.RUnlock()

	session := g.Session()
	for _, fn := range listeners {
		fn(session)
	}
}

func (g *SessionGate) Session() domain.Session {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var identity *domain.Identity
	if g.identity != nil {
		id := *g.identity
		identity = &id
	}
	return domain.Session{
		Identity:  identity,
		IsLoading: g.initializing || g.inFlight > 0,
	}
}

func (g *SessionGate) begin() {
	g.mu.Lock()
	g.inFlight++
	g.mu.Unlock()
}

func (g *SessionGate) end() {
	g.mu.Lock()
	g.inFlight--
	g.mu.Unlock()
}

func (g *SessionGate) SignIn(ctx context.Context, creds domain.Credentials) (*domain.Identity, error) {
	if strings.TrimSpace(creds.Email) == "" || creds.Password == "" {
		return nil, ErrMissingCredentials
	}

	g.begin()
	defer g.end()

	identity, err := g.provider.SignInWithPassword(ctx, strings.TrimSpace(creds.Email), creds.Password)
	if err != nil {
		return nil, &AuthError{Op: "sign in", Err: err}
	}
	return identity, nil
}

// SignUp rejects mismatched passwords before contacting the provider.
func (g *SessionGate) SignUp(ctx context.Context, creds domain.Credentials) (*domain.Identity, error) {
	if strings.TrimSpace(creds.Email) == "" || creds.Password == "" {
		return nil, ErrMissingCredentials
	}
	if creds.Password != creds.ConfirmPassword {
		return nil, ErrPasswordMismatch
	}

	g.begin()
	defer g.end()

	identity, err := g.provider.SignUp(ctx, strings.TrimSpace(creds.Email), creds.Password)
	if err != nil {
		return nil, &AuthError{Op: "sign up", Err: err}
	}
	return identity, nil
}

// SignInWithProvider returns the URL to send the client to.
func (g *SessionGate) SignInWithProvider(ctx context.Context, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", ErrMissingProvider
	}

	g.begin()
	defer g.end()

	redirect, err := g.provider.SignInWithOAuth(ctx, name)
	if err != nil {
		return "", &AuthError{Op: "sign in with " + name, Err: err}
	}
	return redirect, nil
}

// CompleteProviderSignIn finishes the flow SignInWithProvider started. The
// session is updated by the provider's SIGNED_IN event.
func (g *SessionGate) CompleteProviderSignIn(ctx context.Context, code string) (*domain.Identity, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrMissingAuthCode
	}

	g.begin()
	defer g.end()

	identity, err := g.provider.ExchangeCodeForSession(ctx, code)
	if err != nil {
		return nil, &AuthError{Op: "complete sign in", Err: err}
	}
	return identity, nil
}

func (g *SessionGate) SignOut(ctx context.Context) error {
	g.begin()
	defer g.end()

	if err := g.provider.SignOut(ctx); err != nil {
		return &AuthError{Op: "sign out", Err: err}
	}
	return nil
}

// Authorize decides whether destination may be shown. On redirect the
// returned location is the login route carrying the destination.
func (g *SessionGate) Authorize(destination string) (AccessDecision, string) {
	session := g.Session()
	if session.IsLoading {
		return AccessDefer, ""
	}
	if session.Identity == nil {
		return AccessRedirect, LoginRedirect(destination)
	}
	return AccessGranted, ""
}

func (g *SessionGate) Close() {
	g.closeOnce.Do(func() {
		if g.unsubscribe != nil {
			g.unsubscribe()
		}
	})
}

// LoginRedirect builds the login location preserving destination.
func LoginRedirect(destination string) string {
	return LoginPath + "?redirect=" + url.QueryEscape(PostLoginDestination(destination))
}

// PostLoginDestination returns where to go after sign-in. Only local paths
// are honoured; anything else falls back to the home route.
func PostLoginDestination(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return "/"
	}
	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() || u.Host != "" {
		return "/"
	}
	if u.Path == LoginPath {
		return "/"
	}
	return raw
}
