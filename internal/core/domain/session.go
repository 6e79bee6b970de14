package domain

import "time"

// Identity is an authenticated user as reported by the identity provider.
type Identity struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	AccessToken string    `json:"-"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Session is the local view of the authentication state. Identity is nil
// when nobody is signed in.
type Session struct {
	Identity  *Identity `json:"identity"`
	IsLoading bool      `json:"is_loading"`
}

func (s Session) UserID() string {
	if s.Identity == nil {
		return ""
	}
	return s.Identity.UserID
}

type AuthEventKind string

const (
	AuthInitialSession AuthEventKind = "INITIAL_SESSION"
	AuthSignedIn       AuthEventKind = "SIGNED_IN"
	AuthSignedOut      AuthEventKind = "SIGNED_OUT"
	AuthTokenRefreshed AuthEventKind = "TOKEN_REFRESHED"
)

type AuthEvent struct {
	Kind     AuthEventKind
	Identity *Identity
}

type Credentials struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password,omitempty"`
}

type Profile struct {
	ID        string    `json:"id"`
	FullName  string    `json:"full_name"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	UpdatedAt time.Time `json:"updated_at"`
}
