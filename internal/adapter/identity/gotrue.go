// Package identity talks to a GoTrue compatible authentication API.
package identity

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"

	"github.com/rl1809/food-flow/internal/core/domain"
	"github.com/rl1809/food-flow/internal/port"
)

const refreshMargin = 30 * time.Second

// ErrNoPendingOAuth is returned by a code exchange that no OAuth sign-in
// on the same connection started.
var ErrNoPendingOAuth = errors.New("no oauth sign-in in progress")

// APIError is an error response of the authentication API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("auth api: %d %s", e.Status, e.Message)
}

type Config struct {
	BaseURL     string
	APIKey      string
	RedirectURL string
	Timeout     time.Duration
}

// Client holds what every connection shares: endpoint, key and transport.
type Client struct {
	baseURL     string
	apiKey      string
	redirectURL string
	http        *http.Client
	clock       clock.Clock
}

func NewClient(cfg Config, clk clock.Clock) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		redirectURL: cfg.RedirectURL,
		http:        &http.Client{Timeout: timeout},
		clock:       clk,
	}
}

// Connect opens a connection for one client. Its session lives in memory
// for as long as the connection does.
func (c *Client) Connect() *Connection {
	return &Connection{client: c, handlers: make(map[int]port.AuthStateHandler)}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	User         *user  `json:"user"`
}

type user struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (e errorResponse) text() string {
	for _, s := range []string{e.ErrorDescription, e.Msg, e.Message, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

func (c *Client) do(ctx context.Context, method, path, bearer string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var e errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		msg := e.text()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Connection implements port.IdentityProvider for a single client.
type Connection struct {
	client *Client

	mu           sync.Mutex
	identity     *domain.Identity
	refreshToken string
	codeVerifier string
	handlers     map[int]port.AuthStateHandler
	nextHandler  int
}

func (c *Connection) OnAuthStateChange(handler port.AuthStateHandler) port.CancelFunc {
	c.mu.Lock()
	id := c.nextHandler
	c.nextHandler++
	c.handlers[id] = handler
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.handlers, id)
			c.mu.Unlock()
		})
	}
}

func (c *Connection) emit(kind domain.AuthEventKind, identity *domain.Identity) {
	c.mu.Lock()
	handlers := make([]port.AuthStateHandler, 0, len(c.handlers))
	for _, h := range c.handlers {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(domain.AuthEvent{Kind: kind, Identity: copyIdentity(identity)})
	}
}

// GetSession returns the current identity, refreshing the access token when
// it is about to expire. A failed refresh signs the connection out.
func (c *Connection) GetSession(ctx context.Context) (*domain.Identity, error) {
	c.mu.Lock()
	identity := copyIdentity(c.identity)
	refreshToken := c.refreshToken
	c.mu.Unlock()

	if identity == nil {
		return nil, nil
	}
	if c.client.clock.Now().Add(refreshMargin).Before(identity.ExpiresAt) || refreshToken == "" {
		return identity, nil
	}

	var tok tokenResponse
	err := c.client.do(ctx, http.MethodPost, "/token?grant_type=refresh_token", "",
		map[string]string{"refresh_token": refreshToken}, &tok)
	if err != nil {
		log.Warn().Err(err).Str("user_id", identity.UserID).Msg("identity: token refresh failed")
		c.clear()
		c.emit(domain.AuthSignedOut, nil)
		return nil, fmt.Errorf("refresh session: %w", err)
	}

	refreshed := c.store(tok)
	c.emit(domain.AuthTokenRefreshed, refreshed)
	return refreshed, nil
}

func (c *Connection) SignInWithPassword(ctx context.Context, email, password string) (*domain.Identity, error) {
	var tok tokenResponse
	err := c.client.do(ctx, http.MethodPost, "/token?grant_type=password", "",
		map[string]string{"email": email, "password": password}, &tok)
	if err != nil {
		return nil, err
	}

	identity := c.store(tok)
	if identity == nil {
		return nil, errors.New("sign in response carried no session")
	}
	c.emit(domain.AuthSignedIn, identity)
	return identity, nil
}

// SignUp returns a nil identity when the account still has to be confirmed
// by e-mail.
func (c *Connection) SignUp(ctx context.Context, email, password string) (*domain.Identity, error) {
	var tok tokenResponse
	err := c.client.do(ctx, http.MethodPost, "/signup", "",
		map[string]string{"email": email, "password": password}, &tok)
	if err != nil {
		return nil, err
	}

	identity := c.store(tok)
	if identity != nil {
		c.emit(domain.AuthSignedIn, identity)
	}
	return identity, nil
}

// SignInWithOAuth starts a PKCE flow. The verifier stays on the connection
// until ExchangeCodeForSession redeems the code the provider redirects back
// with; a newer sign-in replaces it.
func (c *Connection) SignInWithOAuth(_ context.Context, provider string) (string, error) {
	verifier, err := newCodeVerifier()
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.codeVerifier = verifier
	c.mu.Unlock()

	challenge := sha256.Sum256([]byte(verifier))
	q := url.Values{}
	q.Set("provider", provider)
	if c.client.redirectURL != "" {
		q.Set("redirect_to", c.client.redirectURL)
	}
	q.Set("code_challenge", base64.RawURLEncoding.EncodeToString(challenge[:]))
	q.Set("code_challenge_method", "s256")
	return c.client.baseURL + "/authorize?" + q.Encode(), nil
}

// ExchangeCodeForSession redeems the auth code of the pending OAuth sign-in.
// The verifier is single use.
func (c *Connection) ExchangeCodeForSession(ctx context.Context, code string) (*domain.Identity, error) {
	c.mu.Lock()
	verifier := c.codeVerifier
	c.codeVerifier = ""
	c.mu.Unlock()

	if verifier == "" {
		return nil, ErrNoPendingOAuth
	}

	var tok tokenResponse
	err := c.client.do(ctx, http.MethodPost, "/token?grant_type=pkce", "",
		map[string]string{"auth_code": code, "code_verifier": verifier}, &tok)
	if err != nil {
		return nil, err
	}

	identity := c.store(tok)
	if identity == nil {
		return nil, errors.New("code exchange response carried no session")
	}
	c.emit(domain.AuthSignedIn, identity)
	return identity, nil
}

func newCodeVerifier() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate code verifier: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// SignOut always drops the local session; a failed revoke is still
// reported.
func (c *Connection) SignOut(ctx context.Context) error {
	c.mu.Lock()
	token := ""
	if c.identity != nil {
		token = c.identity.AccessToken
	}
	c.mu.Unlock()

	var err error
	if token != "" {
		err = c.client.do(ctx, http.MethodPost, "/logout", token, nil, nil)
	}

	c.clear()
	c.emit(domain.AuthSignedOut, nil)
	return err
}

func (c *Connection) store(tok tokenResponse) *domain.Identity {
	if tok.AccessToken == "" || tok.User == nil {
		return nil
	}
	identity := &domain.Identity{
		UserID:      tok.User.ID,
		Email:       tok.User.Email,
		AccessToken: tok.AccessToken,
		ExpiresAt:   c.client.clock.Now().Add(time.Duration(tok.ExpiresIn) * time.Second),
	}

	c.mu.Lock()
	c.identity = identity
	c.refreshToken = tok.RefreshToken
	c.mu.Unlock()
	return copyIdentity(identity)
}

func (c *Connection) clear() {
	c.mu.Lock()
	c.identity = nil
	c.refreshToken = ""
	c.mu.Unlock()
}

func copyIdentity(identity *domain.Identity) *domain.Identity {
	if identity == nil {
		return nil
	}
	cp := *identity
	return &cp
}
