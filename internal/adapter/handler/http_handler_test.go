package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/food-flow/internal/adapter/assistant"
	"github.com/rl1809/food-flow/internal/adapter/identity"
	"github.com/rl1809/food-flow/internal/adapter/storage"
	"github.com/rl1809/food-flow/internal/core/domain"
	"github.com/rl1809/food-flow/internal/core/service"
	"github.com/rl1809/food-flow/internal/port"
)

type stubIdentity struct {
	mu       sync.Mutex
	identity *domain.Identity
	handlers map[int]port.AuthStateHandler
	next     int

	// entered and release hold a sign in open when set.
	entered chan struct{}
	release chan struct{}
}

func (s *stubIdentity) GetSession(context.Context) (*domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity, nil
}

func (s *stubIdentity) OnAuthStateChange(h port.AuthStateHandler) port.CancelFunc {
	s.mu.Lock()
	id := s.next
	s.next++
	s.handlers[id] = h
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.handlers, id)
		s.mu.Unlock()
	}
}

func (s *stubIdentity) emit(kind domain.AuthEventKind, identity *domain.Identity) {
	s.mu.Lock()
	s.identity = identity
	handlers := make([]port.AuthStateHandler, 0, len(s.handlers))
	for _, h := range s.handlers {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()
	for _, h := range handlers {
		h(domain.AuthEvent{Kind: kind, Identity: identity})
	}
}

func (s *stubIdentity) SignInWithPassword(_ context.Context, email, password string) (*domain.Identity, error) {
	if s.entered != nil {
		close(s.entered)
		<-s.release
	}
	if password != "secret" {
		return nil, &identity.APIError{Status: http.StatusBadRequest, Message: "Invalid login credentials"}
	}
	id := &domain.Identity{UserID: "u1", Email: email}
	s.emit(domain.AuthSignedIn, id)
	return id, nil
}

func (s *stubIdentity) SignUp(context.Context, string, string) (*domain.Identity, error) {
	return nil, nil
}

func (s *stubIdentity) SignInWithOAuth(_ context.Context, provider string) (string, error) {
	return "https://auth.example.com/authorize?provider=" + provider, nil
}

func (s *stubIdentity) ExchangeCodeForSession(_ context.Context, code string) (*domain.Identity, error) {
	if code != "code-1" {
		return nil, &identity.APIError{Status: http.StatusBadRequest, Message: "invalid flow state"}
	}
	id := &domain.Identity{UserID: "u1", Email: "u1@example.com"}
	s.emit(domain.AuthSignedIn, id)
	return id, nil
}

func (s *stubIdentity) SignOut(context.Context) error {
	s.emit(domain.AuthSignedOut, nil)
	return nil
}

type stubCatalog struct{}

var margherita = domain.MenuItem{ID: "101", RestaurantID: "1", Name: "Margherita Pizza", PriceCents: 899}

func (stubCatalog) ListRestaurants(context.Context, domain.RestaurantFilter) ([]domain.Restaurant, error) {
	return []domain.Restaurant{{ID: "1", Name: "Pizza Heaven", Cuisine: "Italian"}}, nil
}

func (stubCatalog) GetRestaurant(_ context.Context, id string) (*domain.Restaurant, error) {
	if id != "1" {
		return nil, nil
	}
	return &domain.Restaurant{ID: "1", Name: "Pizza Heaven"}, nil
}

func (stubCatalog) ListMenu(context.Context, string) ([]domain.MenuItem, error) {
	return []domain.MenuItem{margherita}, nil
}

func (stubCatalog) GetMenuItem(_ context.Context, id string) (*domain.MenuItem, error) {
	if id != margherita.ID {
		return nil, nil
	}
	item := margherita
	return &item, nil
}

type stubFeeds struct{}

func (stubFeeds) ListEvents(context.Context, domain.FeedQuery) ([]domain.FeedEvent, error) {
	return nil, nil
}

func (stubFeeds) InsertEvent(_ context.Context, e domain.FeedEvent) (domain.FeedEvent, error) {
	e.ID = uuid.NewString()
	return e, nil
}

func (stubFeeds) MarkRead(context.Context, domain.FeedName, string, string) error { return nil }

func (stubFeeds) MarkAllRead(context.Context, domain.FeedName, string) error { return nil }

type stubOrders struct{}

func (stubOrders) CreateOrder(context.Context, domain.Order) error { return nil }

func (stubOrders) ListOrders(_ context.Context, userID string) ([]domain.Order, error) {
	return []domain.Order{{ID: "o1", UserID: userID}}, nil
}

type fixture struct {
	t       *testing.T
	mr      *miniredis.Miniredis
	routes  http.Handler
	mu      sync.Mutex
	idents  map[string]*stubIdentity
	checker *GRPCHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	clk := clock.NewMock()
	cache := storage.NewRedisAdapter(rdb)
	keyword := assistant.NewKeyword()

	f := &fixture{t: t, mr: mr, idents: make(map[string]*stubIdentity)}
	registry := service.NewWorkspaceRegistry(time.Hour, func(id string) port.IdentityProvider {
		f.mu.Lock()
		defer f.mu.Unlock()
		ident := &stubIdentity{handlers: make(map[int]port.AuthStateHandler)}
		f.idents[id] = ident
		return ident
	}, service.WorkspaceDeps{
		Feeds:     stubFeeds{},
		Broker:    storage.NewRedisBroker(rdb),
		Carts:     cache,
		Assistant: keyword,
		Clock:     clk,
		Pricing:   domain.DefaultPricing,
	})
	t.Cleanup(registry.Stop)

	f.checker = NewGRPCHandler(map[string]Pinger{"redis": cache}, clk)
	f.routes = NewHTTPHandler(HTTPDeps{
		Workspaces: registry,
		Catalog:    service.NewCatalogService(stubCatalog{}, cache),
		Checkout:   service.NewCheckoutService(cache, clk, 10),
		Profiles:   service.NewProfileService(nil, clk),
		Orders:     stubOrders{},
		Completion: keyword,
		Health:     f.checker,
		Clock:      clk,
	}).Routes()
	return f
}

func (f *fixture) identity(workspaceID string) *stubIdentity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.idents[workspaceID]
}

func (f *fixture) do(method, path, workspaceID string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(f.t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if workspaceID != "" {
		req.AddCookie(&http.Cookie{Name: WorkspaceCookie, Value: workspaceID})
	}
	rec := httptest.NewRecorder()
	f.routes.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func workspaceCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == WorkspaceCookie {
			return c
		}
	}
	return nil
}

func TestWorkspaceCookie(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/cart", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := workspaceCookie(rec)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	_, err := uuid.Parse(cookie.Value)
	assert.NoError(t, err)

	rec = f.do(http.MethodGet, "/api/cart", cookie.Value, nil)
	assert.Nil(t, workspaceCookie(rec))

	rec = f.do(http.MethodGet, "/api/cart", "not-a-uuid", nil)
	replaced := workspaceCookie(rec)
	require.NotNil(t, replaced)
	assert.NotEqual(t, "not-a-uuid", replaced.Value)
}

func TestCartEndpoints(t *testing.T) {
	f := newFixture(t)
	ws := uuid.NewString()

	rec := f.do(http.MethodPost, "/api/cart/items", ws, AddCartItemRequest{ItemID: "101"})
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[domain.CartSnapshot](t, rec)
	assert.Equal(t, int64(899+299), snap.TotalCents)

	rec = f.do(http.MethodPut, "/api/cart/items/101", ws, SetQuantityRequest{Quantity: 3})
	require.Equal(t, http.StatusOK, rec.Code)
	snap = decode[domain.CartSnapshot](t, rec)
	assert.Equal(t, 3, snap.ItemCount)
	assert.Equal(t, int64(2697), snap.SubtotalCents)

	notices := decode[[]domain.Notice](t, f.do(http.MethodGet, "/api/notices", ws, nil))
	require.Len(t, notices, 1)
	assert.Equal(t, "Added to cart", notices[0].Title)

	rec = f.do(http.MethodDelete, "/api/cart/items/101", ws, nil)
	snap = decode[domain.CartSnapshot](t, rec)
	assert.Empty(t, snap.Lines)
	assert.Equal(t, int64(0), snap.TotalCents)
}

func TestCartEndpoints_BadInput(t *testing.T) {
	f := newFixture(t)
	ws := uuid.NewString()

	rec := f.do(http.MethodPost, "/api/cart/items", ws, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/cart/items", ws, AddCartItemRequest{ItemID: "999"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCartSurvivesAcrossRequests(t *testing.T) {
	f := newFixture(t)
	ws := uuid.NewString()

	f.do(http.MethodPost, "/api/cart/items", ws, AddCartItemRequest{ItemID: "101"})
	assert.True(t, f.mr.Exists("cart:"+ws))

	snap := decode[domain.CartSnapshot](t, f.do(http.MethodGet, "/api/cart", ws, nil))
	assert.Equal(t, 1, snap.ItemCount)
}

func TestRequireSession_RedirectsToLogin(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/orders?page=2", uuid.NewString(), nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	body := decode[ErrorResponse](t, rec)
	assert.Equal(t, "/login?redirect=%2Fapi%2Forders%3Fpage%3D2", body.Redirect)
}

func TestRequireSession_DefersWhileSigningIn(t *testing.T) {
	f := newFixture(t)
	ws := uuid.NewString()
	f.do(http.MethodGet, "/api/auth/session", ws, nil)

	ident := f.identity(ws)
	ident.entered = make(chan struct{})
	ident.release = make(chan struct{})

	done := make(chan *httptest.ResponseRecorder)
	go func() {
		done <- f.do(http.MethodPost, "/api/auth/signin", ws, domain.Credentials{Email: "a@b.c", Password: "secret"})
	}()
	<-ident.entered

	rec := f.do(http.MethodGet, "/api/orders", ws, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	close(ident.release)
	require.Equal(t, http.StatusOK, (<-done).Code)

	rec = f.do(http.MethodGet, "/api/orders", ws, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	orders := decode[[]domain.Order](t, rec)
	require.Len(t, orders, 1)
	assert.Equal(t, "u1", orders[0].UserID)
}

func TestSignIn(t *testing.T) {
	f := newFixture(t)
	ws := uuid.NewString()

	rec := f.do(http.MethodPost, "/api/auth/signin", ws, SignInRequest{
		Credentials: domain.Credentials{Email: "a@b.c", Password: "wrong"},
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid login credentials", decode[ErrorResponse](t, rec).Error)

	rec = f.do(http.MethodPost, "/api/auth/signin", ws, SignInRequest{
		Credentials: domain.Credentials{Email: "a@b.c", Password: "secret"},
		Redirect:    "https://evil.example.com",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[SignInResponse](t, rec)
	assert.Equal(t, "u1", resp.Identity.UserID)
	assert.Equal(t, "/", resp.Redirect)

	session := decode[domain.Session](t, f.do(http.MethodGet, "/api/auth/session", ws, nil))
	require.NotNil(t, session.Identity)
	assert.False(t, session.IsLoading)

	rec = f.do(http.MethodPost, "/api/auth/signout", ws, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode[domain.Session](t, rec).Identity)
}

func TestOAuthCallback(t *testing.T) {
	f := newFixture(t)
	ws := uuid.NewString()

	rec := f.do(http.MethodGet, "/api/auth/oauth/github", ws, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/api/auth/callback", ws, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/api/auth/callback?error=access_denied&error_description=User+denied", ws, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "User denied", decode[ErrorResponse](t, rec).Error)

	rec = f.do(http.MethodGet, "/api/auth/callback?code=stale", ws, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, decode[domain.Session](t, f.do(http.MethodGet, "/api/auth/session", ws, nil)).Identity)

	rec = f.do(http.MethodGet, "/api/auth/callback?code=code-1&redirect=%2Forders", ws, nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/orders", rec.Header().Get("Location"))

	session := decode[domain.Session](t, f.do(http.MethodGet, "/api/auth/session", ws, nil))
	require.NotNil(t, session.Identity)
	assert.Equal(t, "u1", session.Identity.UserID)

	rec = f.do(http.MethodGet, "/api/orders", ws, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCheckout(t *testing.T) {
	f := newFixture(t)
	ws := uuid.NewString()

	f.do(http.MethodPost, "/api/auth/signin", ws, SignInRequest{Credentials: domain.Credentials{Email: "a@b.c", Password: "secret"}})

	rec := f.do(http.MethodPost, "/api/checkout", ws, CheckoutRequest{RequestID: "r1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.do(http.MethodPost, "/api/cart/items", ws, AddCartItemRequest{ItemID: "101"})
	rec = f.do(http.MethodPost, "/api/checkout", ws, CheckoutRequest{RequestID: "r1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decode[CheckoutResponse](t, rec)
	assert.Equal(t, int64(1198), resp.Order.TotalCents)
	assert.Equal(t, 0, resp.Tracking.StepIndex)

	snap := decode[domain.CartSnapshot](t, f.do(http.MethodGet, "/api/cart", ws, nil))
	assert.Empty(t, snap.Lines)

	f.do(http.MethodPost, "/api/cart/items", ws, AddCartItemRequest{ItemID: "101"})
	rec = f.do(http.MethodPost, "/api/checkout", ws, CheckoutRequest{RequestID: "r1"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodGet, "/api/orders/"+resp.Order.ID+"/tracking", ws, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAssistantCompletion(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/functions/assistant-chat", "", domain.AssistantRequest{Message: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No message provided", decode[ErrorResponse](t, rec).Error)

	rec = f.do(http.MethodPost, "/functions/assistant-chat", "", domain.AssistantRequest{Message: "any offers?"})
	require.Equal(t, http.StatusOK, rec.Code)
	reply := decode[domain.AssistantReply](t, rec)
	assert.Contains(t, reply.Text, "FLOW20")
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["redis"])

	f.mr.Close()
	f.checker.Check(context.Background())
	rec = f.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", decode[map[string]string](t, rec)["status"])
	last, ok := f.checker.Last()
	require.True(t, ok)
	assert.Error(t, last["redis"])
}

type countingPinger struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (p *countingPinger) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.err
}

func (p *countingPinger) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestHealthCheck_ServesCachedResults(t *testing.T) {
	pinger := &countingPinger{}
	checker := NewGRPCHandler(map[string]Pinger{"mysql": pinger}, clock.NewMock())
	h := &HTTPHandler{health: checker}

	_, ok := checker.Last()
	assert.False(t, ok)

	// Before the first periodic run the request checks inline.
	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, pinger.count())

	pinger.mu.Lock()
	pinger.err = errors.New("connection refused")
	pinger.mu.Unlock()

	for i := 0; i < 3; i++ {
		rec = httptest.NewRecorder()
		h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, 1, pinger.count(), "requests must not ping the dependencies")

	checker.Check(context.Background())
	rec = httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "connection refused", decode[map[string]string](t, rec)["mysql"])
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{service.ErrEmptyCart, http.StatusBadRequest},
		{&service.AuthError{Op: "complete sign in", Err: identity.ErrNoPendingOAuth}, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", service.ErrMissingOrder), http.StatusBadRequest},
		{service.ErrNotSignedIn, http.StatusUnauthorized},
		{service.ErrNotFound, http.StatusNotFound},
		{service.ErrDuplicateRequest, http.StatusConflict},
		{service.ErrBusy, http.StatusTooManyRequests},
		{service.ErrQueueFull, http.StatusServiceUnavailable},
		{&service.AuthError{Op: "sign in", Err: &identity.APIError{Status: 400, Message: "bad"}}, http.StatusUnauthorized},
		{&service.AuthError{Op: "sign in", Err: errors.New("dial tcp")}, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		got, _ := statusFor(tt.err)
		assert.Equal(t, tt.want, got, tt.err.Error())
	}
}
