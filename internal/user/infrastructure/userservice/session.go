package userservice

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/dmehra2102/order-invoicing/pkg/metrics"
)

// LoginFunc exchanges service credentials for a raw access token.
type LoginFunc func(ctx context.Context) (string, error)

// Session caches the bearer credential this service presents to the user
// service. Concurrent refreshes share one login call.
type Session struct {
	log   *slog.Logger
	login LoginFunc

	mu    sync.RWMutex
	token string
	group singleflight.Group
}

func NewSession(log *slog.Logger, login LoginFunc) *Session {
	return &Session{log: log, login: login}
}

// Current returns the cached "Bearer <token>" value, or "" if none is held.
func (s *Session) Current() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Refresh replaces stale with a fresh credential. If another caller has
// already replaced stale, its credential is returned without logging in
// again. A failed login clears the credential and returns "".
func (s *Session) Refresh(ctx context.Context, stale string) string {
	if cur := s.Current(); cur != "" && cur != stale {
		return cur
	}
	v, _, _ := s.group.Do("login", func() (any, error) {
		if cur := s.Current(); cur != "" && cur != stale {
			return cur, nil
		}
		// A cancelled caller must not fail the others waiting on this flight.
		tok, err := s.login(context.WithoutCancel(ctx))

		s.mu.Lock()
		defer s.mu.Unlock()
		if err != nil {
			s.token = ""
			metrics.UserServiceLoginsTotal.WithLabelValues("failed").Inc()
			s.log.Error("user service login failed", "err", err)
			return "", nil
		}
		s.token = "Bearer " + tok
		metrics.UserServiceLoginsTotal.WithLabelValues("ok").Inc()
		return s.token, nil
	})
	return v.(string)
}
