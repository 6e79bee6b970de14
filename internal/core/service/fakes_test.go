package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/food-flow/internal/core/domain"
	"github.com/rl1809/food-flow/internal/port"
)

var errBackend = errors.New("backend unavailable")

// memFeeds is an in-memory FeedRepository. When broker is set every insert
// is published, the way the storage layer does it.
type memFeeds struct {
	mu        sync.Mutex
	rows      []domain.FeedEvent
	broker    *memBroker
	insertErr error
	listErr   error
	markErr   error
	inserts   int
	lists     int
}

func (m *memFeeds) ListEvents(_ context.Context, q domain.FeedQuery) ([]domain.FeedEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lists++
	if m.listErr != nil {
		return nil, m.listErr
	}

	var out []domain.FeedEvent
	for _, r := range m.rows {
		if q.Includes(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if q.Order == domain.Descending {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *memFeeds) InsertEvent(ctx context.Context, e domain.FeedEvent) (domain.FeedEvent, error) {
	m.mu.Lock()
	m.inserts++
	if m.insertErr != nil {
		err := m.insertErr
		m.mu.Unlock()
		return domain.FeedEvent{}, err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	m.rows = append(m.rows, e)
	broker := m.broker
	m.mu.Unlock()

	if broker != nil {
		_ = broker.Publish(ctx, e)
	}
	return e, nil
}

func (m *memFeeds) MarkRead(_ context.Context, feed domain.FeedName, ownerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return m.markErr
	}
	for i := range m.rows {
		if m.rows[i].Feed == feed && m.rows[i].OwnerID == ownerID && m.rows[i].ID == id {
			m.rows[i].IsRead = true
		}
	}
	return nil
}

func (m *memFeeds) MarkAllRead(_ context.Context, feed domain.FeedName, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return m.markErr
	}
	for i := range m.rows {
		if m.rows[i].Feed == feed && m.rows[i].OwnerID == ownerID {
			m.rows[i].IsRead = true
		}
	}
	return nil
}

func (m *memFeeds) setInsertErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertErr = err
}

func (m *memFeeds) insertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inserts
}

func (m *memFeeds) seed(events ...domain.FeedEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, events...)
}

type memSubscription struct {
	filter  domain.FeedFilter
	onEvent func(domain.FeedEvent)
}

// memBroker delivers published events synchronously.
type memBroker struct {
	mu           sync.Mutex
	subs         map[int]memSubscription
	next         int
	subscribeErr error
	subscribes   int
	cancels      int
}

func newMemBroker() *memBroker {
	return &memBroker{subs: make(map[int]memSubscription)}
}

func (b *memBroker) Subscribe(_ context.Context, filter domain.FeedFilter, onEvent func(domain.FeedEvent)) (port.CancelFunc, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subscribeErr != nil {
		return nil, b.subscribeErr
	}
	b.subscribes++
	id := b.next
	b.next++
	b.subs[id] = memSubscription{filter: filter, onEvent: onEvent}

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			b.cancels++
		})
	}, nil
}

func (b *memBroker) Publish(_ context.Context, e domain.FeedEvent) error {
	b.mu.Lock()
	var targets []func(domain.FeedEvent)
	for _, s := range b.subs {
		if s.filter.Matches(e) {
			targets = append(targets, s.onEvent)
		}
	}
	b.mu.Unlock()

	for _, fn := range targets {
		fn(e)
	}
	return nil
}

func (b *memBroker) active() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *memBroker) cancelCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancels
}

// memCarts is an in-memory CartStorage.
type memCarts struct {
	mu      sync.Mutex
	data    map[string][]byte
	loadErr error
	saveErr error
	saves   int
}

func newMemCarts() *memCarts {
	return &memCarts{data: make(map[string][]byte)}
}

func (m *memCarts) LoadCart(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.data[key], nil
}

func (m *memCarts) SaveCart(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.data[key] = append([]byte(nil), data...)
	return nil
}

// memCache is an in-memory CacheRepository.
type memCache struct {
	mu          sync.Mutex
	idempotency map[string]bool
	values      map[string][]byte
	idemErr     error
	gets        int
	released    []string

	// afterIdempotency runs once a key was set, outside the lock.
	afterIdempotency func()
}

func newMemCache() *memCache {
	return &memCache{idempotency: make(map[string]bool), values: make(map[string][]byte)}
}

func (m *memCache) SetIdempotency(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	if m.idemErr != nil {
		m.mu.Unlock()
		return false, m.idemErr
	}
	if m.idempotency[key] {
		m.mu.Unlock()
		return false, nil
	}
	m.idempotency[key] = true
	hook := m.afterIdempotency
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	return true, nil
}

func (m *memCache) ReleaseIdempotency(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.idempotency, key)
	m.released = append(m.released, key)
	return nil
}

func (m *memCache) GetJSON(_ context.Context, key string, dst any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	data, ok := m.values[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, dst)
}

func (m *memCache) SetJSON(_ context.Context, key string, value any, _ time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = data
	return nil
}

// fakeIdentity is a scriptable IdentityProvider.
type fakeIdentity struct {
	mu       sync.Mutex
	session  *domain.Identity
	getErr   error
	handlers map[int]port.AuthStateHandler
	next     int

	signIn      func(email, password string) (*domain.Identity, error)
	signUp      func(email, password string) (*domain.Identity, error)
	signOutErr  error
	exchange    func(code string) (*domain.Identity, error)
	oauthCalls  int
	signUpCalls int
}

func newFakeIdentity(session *domain.Identity) *fakeIdentity {
	return &fakeIdentity{session: session, handlers: make(map[int]port.AuthStateHandler)}
}

func (f *fakeIdentity) GetSession(context.Context) (*domain.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session, f.getErr
}

func (f *fakeIdentity) OnAuthStateChange(handler port.AuthStateHandler) port.CancelFunc {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.handlers[id] = handler
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers, id)
	}
}

func (f *fakeIdentity) emit(kind domain.AuthEventKind, identity *domain.Identity) {
	f.mu.Lock()
	f.session = identity
	handlers := make([]port.AuthStateHandler, 0, len(f.handlers))
	for _, h := range f.handlers {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()

	for _, h := range handlers {
		h(domain.AuthEvent{Kind: kind, Identity: identity})
	}
}

func (f *fakeIdentity) listeners() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

func (f *fakeIdentity) SignInWithPassword(_ context.Context, email, password string) (*domain.Identity, error) {
	if f.signIn == nil {
		return nil, errBackend
	}
	identity, err := f.signIn(email, password)
	if err != nil {
		return nil, err
	}
	f.emit(domain.AuthSignedIn, identity)
	return identity, nil
}

func (f *fakeIdentity) SignUp(_ context.Context, email, password string) (*domain.Identity, error) {
	f.mu.Lock()
	f.signUpCalls++
	f.mu.Unlock()
	if f.signUp == nil {
		return nil, nil
	}
	return f.signUp(email, password)
}

func (f *fakeIdentity) SignInWithOAuth(_ context.Context, provider string) (string, error) {
	f.mu.Lock()
	f.oauthCalls++
	f.mu.Unlock()
	return "https://auth.example.com/authorize?provider=" + provider, nil
}

func (f *fakeIdentity) ExchangeCodeForSession(_ context.Context, code string) (*domain.Identity, error) {
	if f.exchange == nil {
		return nil, errBackend
	}
	identity, err := f.exchange(code)
	if err != nil {
		return nil, err
	}
	f.emit(domain.AuthSignedIn, identity)
	return identity, nil
}

func (f *fakeIdentity) SignOut(context.Context) error {
	if f.signOutErr != nil {
		return f.signOutErr
	}
	f.emit(domain.AuthSignedOut, nil)
	return nil
}

func user(id string) *domain.Identity {
	return &domain.Identity{UserID: id, Email: id + "@example.com"}
}

// fakeAssistant records requests and answers through reply.
type fakeAssistant struct {
	mu       sync.Mutex
	requests []domain.AssistantRequest
	reply    func(req domain.AssistantRequest) (domain.AssistantReply, error)
}

func (f *fakeAssistant) Complete(_ context.Context, req domain.AssistantRequest) (domain.AssistantReply, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	reply := f.reply
	f.mu.Unlock()

	if reply == nil {
		return domain.AssistantReply{Text: fmt.Sprintf("echo: %s", req.Message)}, nil
	}
	return reply(req)
}

func (f *fakeAssistant) lastRequest() domain.AssistantRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}
