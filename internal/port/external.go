package port

import (
	"context"

	"github.com/rl1809/food-flow/internal/core/domain"
)

type AuthStateHandler func(event domain.AuthEvent)

// IdentityProvider is the external authentication service. One instance
// represents one client's connection to it.
type IdentityProvider interface {
	// GetSession returns nil when no one is signed in
	GetSession(ctx context.Context) (*domain.Identity, error)

	// OnAuthStateChange registers handler for every auth event
	OnAuthStateChange(handler AuthStateHandler) CancelFunc

	SignInWithPassword(ctx context.Context, email, password string) (*domain.Identity, error)

	// SignUp may return a nil identity when the provider requires e-mail confirmation
	SignUp(ctx context.Context, email, password string) (*domain.Identity, error)

	// SignInWithOAuth returns the URL the client must be redirected to
	SignInWithOAuth(ctx context.Context, provider string) (string, error)

	// ExchangeCodeForSession completes an OAuth sign-in with the code the
	// provider redirected back with
	ExchangeCodeForSession(ctx context.Context, code string) (*domain.Identity, error)

	SignOut(ctx context.Context) error
}

// Assistant is the text-completion service behind the chatbot.
type Assistant interface {
	Complete(ctx context.Context, req domain.AssistantRequest) (domain.AssistantReply, error)
}
