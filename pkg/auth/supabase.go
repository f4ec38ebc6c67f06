package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/gotrue-go/types"
	supabase "github.com/supabase-community/supabase-go"

	"voice-dashboard/pkg/domain"
	"voice-dashboard/pkg/gateway"
)

var (
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrMissingCredentials = errors.New("email and password are required")
	ErrNoSession          = errors.New("session expired, sign in again")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
	ErrBusinessName       = errors.New("business name must be at least 2 characters")
)

// MinPasswordLength is the shortest password SignUp accepts.
const MinPasswordLength = 6

// SignUpRequest is a new account. BusinessName is stored in the user
// metadata and seeds the profile.
type SignUpRequest struct {
	Email        string
	Password     string
	BusinessName string
}

// Validate checks the request the way the sign-up form does.
func (r SignUpRequest) Validate() error {
	if len([]rune(strings.TrimSpace(r.BusinessName))) < 2 {
		return ErrBusinessName
	}
	if !validEmail(strings.TrimSpace(r.Email)) {
		return ErrInvalidEmail
	}
	if len(r.Password) < MinPasswordLength {
		return ErrWeakPassword
	}
	return nil
}

func validEmail(email string) bool {
	at := strings.LastIndex(email, "@")
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t") &&
		strings.Contains(email[at+1:], ".")
}

// SupabaseProvider signs users in against Supabase Auth (GoTrue).
type SupabaseProvider struct {
	auth gotrue.Client

	// sdk, when set, is switched to the user session so REST and storage
	// requests run under the user's row-level security.
	sdk     *supabase.Client
	anonKey string

	mu      sync.RWMutex
	session *types.Session
	ident   domain.Identity

	subs subscribers
}

// NewSupabaseProvider creates a provider on an auth client.
func NewSupabaseProvider(auth gotrue.Client) (*SupabaseProvider, error) {
	if auth == nil {
		return nil, fmt.Errorf("auth client is required")
	}
	return &SupabaseProvider{auth: auth}, nil
}

// NewSupabaseProviderFromClient creates a provider that also moves sdk onto
// the signed-in session. anonKey is restored on sign-out.
func NewSupabaseProviderFromClient(sdk *supabase.Client, anonKey string) (*SupabaseProvider, error) {
	if sdk == nil {
		return nil, fmt.Errorf("supabase client is required")
	}
	p, err := NewSupabaseProvider(sdk.Auth)
	if err != nil {
		return nil, err
	}
	p.sdk = sdk
	p.anonKey = anonKey
	return p, nil
}

func (p *SupabaseProvider) Current() (domain.Identity, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ident, p.session != nil
}

// AccessToken is the JWT of the current session, empty when signed out.
func (p *SupabaseProvider) AccessToken() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.session == nil {
		return ""
	}
	return p.session.AccessToken
}

// SignIn exchanges email and password for a session and notifies subscribers.
func (p *SupabaseProvider) SignIn(ctx context.Context, email, password string) (domain.Identity, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return domain.Identity{}, ErrMissingCredentials
	}

	token, err := gateway.Call(ctx, gateway.DefaultTimeout, func(ctx context.Context) (*types.TokenResponse, error) {
		return p.auth.SignInWithEmailPassword(email, password)
	})
	if err != nil {
		log.Printf("auth: sign in %s: %v", email, err)
		if strings.Contains(err.Error(), "status code 400") {
			return domain.Identity{}, fmt.Errorf("sign in: %w", ErrInvalidCredentials)
		}
		return domain.Identity{}, fmt.Errorf("sign in: %w", err)
	}

	return p.install(token.Session), nil
}

// Resume restores a session from a refresh token saved by an earlier sign-in.
func (p *SupabaseProvider) Resume(ctx context.Context, refreshToken string) (domain.Identity, error) {
	if refreshToken == "" {
		return domain.Identity{}, ErrNoSession
	}
	token, err := gateway.Call(ctx, gateway.DefaultTimeout, func(ctx context.Context) (*types.TokenResponse, error) {
		return p.auth.RefreshToken(refreshToken)
	})
	if err != nil {
		log.Printf("auth: resume session: %v", err)
		if strings.Contains(err.Error(), "status code 400") {
			return domain.Identity{}, fmt.Errorf("resume session: %w", ErrNoSession)
		}
		return domain.Identity{}, fmt.Errorf("resume session: %w", err)
	}
	return p.install(token.Session), nil
}

// SignUp creates an account. When the project confirms emails the account
// stays signed out until the link in the confirmation mail is followed and
// signedIn is false; otherwise the new session is installed.
func (p *SupabaseProvider) SignUp(ctx context.Context, req SignUpRequest) (ident domain.Identity, signedIn bool, err error) {
	if err := req.Validate(); err != nil {
		return domain.Identity{}, false, err
	}
	email := strings.TrimSpace(req.Email)

	res, err := gateway.Call(ctx, gateway.DefaultTimeout, func(ctx context.Context) (*types.SignupResponse, error) {
		return p.auth.Signup(types.SignupRequest{
			Email:    email,
			Password: req.Password,
			Data:     map[string]interface{}{"business_name": strings.TrimSpace(req.BusinessName)},
		})
	})
	if err != nil {
		log.Printf("auth: sign up %s: %v", email, err)
		return domain.Identity{}, false, fmt.Errorf("sign up: %w", err)
	}

	if res.Session.AccessToken != "" {
		return p.install(res.Session), true, nil
	}
	return identityFromUser(res.User), false, nil
}

// ResetPassword mails a password recovery link to email.
func (p *SupabaseProvider) ResetPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if !validEmail(email) {
		return ErrInvalidEmail
	}
	_, err := gateway.Call(ctx, gateway.DefaultTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.auth.Recover(types.RecoverRequest{Email: email})
	})
	if err != nil {
		log.Printf("auth: recover %s: %v", email, err)
		return fmt.Errorf("reset password: %w", err)
	}
	return nil
}

// RefreshToken of the current session, empty when signed out. Refresh
// tokens are single use; save it again after every SignIn or Resume.
func (p *SupabaseProvider) RefreshToken() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.session == nil {
		return ""
	}
	return p.session.RefreshToken
}

func (p *SupabaseProvider) install(session types.Session) domain.Identity {
	ident := identityFromUser(session.User)

	p.mu.Lock()
	p.session = &session
	p.ident = ident
	p.mu.Unlock()

	if p.sdk != nil {
		p.sdk.UpdateAuthSession(session)
	}
	p.subs.notify(ident, true)
	return ident
}

// SignOut revokes the session server-side. The local session is dropped even
// when the revoke call fails.
func (p *SupabaseProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	session := p.session
	p.session = nil
	p.ident = domain.Identity{}
	p.mu.Unlock()

	if session == nil {
		return nil
	}

	_, err := gateway.Call(ctx, gateway.DefaultTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.auth.WithToken(session.AccessToken).Logout()
	})
	if p.sdk != nil && p.anonKey != "" {
		p.sdk.UpdateAuthSession(types.Session{AccessToken: p.anonKey})
	}
	p.subs.notify(domain.Identity{}, false)

	if err != nil {
		log.Printf("auth: sign out: %v", err)
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

func (p *SupabaseProvider) Subscribe(fn func(domain.Identity, bool)) func() {
	return p.subs.add(fn)
}

// identityFromUser reads the role from app_metadata; the top-level role of a
// GoTrue user is the database role ("authenticated"), not the app role.
func identityFromUser(u types.User) domain.Identity {
	ident := domain.Identity{ID: u.ID.String(), Email: u.Email}
	if role, ok := u.AppMetadata["role"].(string); ok {
		ident.Role = role
	}
	return ident
}

var _ gateway.IdentityProvider = (*SupabaseProvider)(nil)
