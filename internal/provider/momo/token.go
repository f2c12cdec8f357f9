package momo

import (
	"context"
	"sync"
	"time"
)

// tokenFetcher obtains a fresh access token and its lifetime.
type tokenFetcher func(ctx context.Context) (token string, ttl time.Duration, err error)

// tokenSource caches a short-lived bearer token alongside its expiry. A token
// is reused only while now is earlier than expiry minus the buffer, so a
// token about to lapse is never sent on a slow request. Refresh is serialized
// under the mutex; losers of the race reuse the token the winner stored.
type tokenSource struct {
	mu     sync.Mutex
	fetch  tokenFetcher
	buffer time.Duration
	now    func() time.Time

	token     string
	expiresAt time.Time
}

func newTokenSource(fetch tokenFetcher, buffer time.Duration) *tokenSource {
	return &tokenSource{
		fetch:  fetch,
		buffer: buffer,
		now:    time.Now,
	}
}

// Token returns a cached access token, refreshing when inside the buffer
// window of expiry.
func (s *tokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.now().Before(s.expiresAt.Add(-s.buffer)) {
		return s.token, nil
	}

	token, ttl, err := s.fetch(ctx)
	if err != nil {
		return "", err
	}

	s.token = token
	s.expiresAt = s.now().Add(ttl)
	return s.token, nil
}
