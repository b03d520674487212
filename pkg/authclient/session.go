package authclient

import (
	"context"
	"errors"
	"sync"
)

const (
	loginFallbackMessage    = "Invalid email or password"
	registerFallbackMessage = "Registration failed"
)

// Session is the client-side view of who is signed in.
// It is safe for concurrent use.
type Session struct {
	client *Client
	tokens TokenStore

	mu            sync.Mutex
	user          *User
	authenticated bool
	initialized   bool
	// initializing is closed when the running Initialize finishes.
	initializing chan struct{}
	// generation changes on every sign-in and sign-out so that a slow
	// Initialize cannot overwrite a newer state.
	generation uint64
}

func NewSession(client *Client) *Session {
	return &Session{client: client, tokens: client.tokens}
}

// Initialize restores a stored token by asking the server who it belongs to.
// Any failure drops the token and leaves the session signed out; it never
// returns the failure, so callers can always proceed once it returns.
// The lock is not held during the network call, so Logout and the accessors
// never wait on it. Concurrent calls wait for the one in flight.
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return nil
	}
	if wait := s.initializing; wait != nil {
		s.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
		}
		return nil
	}
	done := make(chan struct{})
	s.initializing = done
	defer func() {
		s.mu.Lock()
		s.initialized = true
		s.initializing = nil
		s.mu.Unlock()
		close(done)
	}()

	token, err := s.tokens.Load()
	if err != nil || token == "" {
		s.signOut()
		s.mu.Unlock()
		return nil
	}
	generation := s.generation
	s.mu.Unlock()

	user, err := s.client.Me(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != generation {
		return nil
	}
	if err != nil {
		s.signOut()
		return nil
	}
	s.user = user
	s.authenticated = true
	return nil
}

func (s *Session) Login(ctx context.Context, email, password string) error {
	resp, err := s.client.Login(ctx, email, password)
	if err != nil {
		return withFallback(err, loginFallbackMessage)
	}
	return s.adopt(resp)
}

func (s *Session) Register(ctx context.Context, req *RegisterRequest) error {
	resp, err := s.client.Register(ctx, req)
	if err != nil {
		return withFallback(err, registerFallbackMessage)
	}
	return s.adopt(resp)
}

// Logout is local only: tokens are not revoked server side.
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signOut()
}

func (s *Session) User() *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

func (s *Session) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

func (s *Session) adopt(resp *AuthResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.tokens.Save(resp.Token); err != nil {
		return err
	}
	s.user = resp.User
	s.authenticated = true
	s.initialized = true
	s.generation++
	return nil
}

// signOut expects s.mu to be held.
func (s *Session) signOut() {
	_ = s.tokens.Clear()
	s.user = nil
	s.authenticated = false
	s.generation++
}

func withFallback(err error, fallback string) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Message == "" {
			apiErr.Message = fallback
		}
		return apiErr
	}
	return &APIError{Message: fallback, Err: err}
}
