package remote

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/oauth2"
)

// CredentialSource hands out valid remote credentials. The adapter calls
// Token before requests and Refresh once, transparently, when the remote
// store reports an expired credential.
//
// Notify returns a channel that receives whenever a credential becomes
// available or changes, so the orchestrator can react instead of polling.
// Sources that cannot signal may return a nil channel; callers then fall
// back to their poll timer.
type CredentialSource interface {
	Token(ctx context.Context) (*oauth2.Token, error)
	Refresh(ctx context.Context) error
	Notify() <-chan struct{}
}

// tokenSource adapts a CredentialSource to oauth2.TokenSource for the SDK.
type tokenSource struct {
	ctx   context.Context
	creds CredentialSource
}

func (t tokenSource) Token() (*oauth2.Token, error) {
	return t.creds.Token(t.ctx)
}

// StaticCredentials wraps a fixed token, for service contexts where the
// surrounding app handles the OAuth flow and hands the core a ready token.
type StaticCredentials struct {
	mu     sync.RWMutex
	token  *oauth2.Token
	notify chan struct{}
}

// NewStaticCredentials builds a source around an access token string.
func NewStaticCredentials(accessToken string) *StaticCredentials {
	return &StaticCredentials{
		token:  &oauth2.Token{AccessToken: accessToken},
		notify: make(chan struct{}, 1),
	}
}

// Token returns the current token or ErrAuthExpired-class failure when none
// has been set yet.
func (s *StaticCredentials) Token(ctx context.Context) (*oauth2.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.token == nil || s.token.AccessToken == "" {
		return nil, fmt.Errorf("StaticCredentials: no token set")
	}
	return s.token, nil
}

// Refresh cannot mint a new token for a static credential; the owner must
// call SetToken.
func (s *StaticCredentials) Refresh(ctx context.Context) error {
	return fmt.Errorf("StaticCredentials: refresh not supported")
}

// SetToken replaces the token and signals waiters.
func (s *StaticCredentials) SetToken(accessToken string) {
	s.mu.Lock()
	s.token = &oauth2.Token{AccessToken: accessToken}
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Notify signals whenever SetToken installs a new credential.
func (s *StaticCredentials) Notify() <-chan struct{} {
	return s.notify
}

var _ CredentialSource = (*StaticCredentials)(nil)
