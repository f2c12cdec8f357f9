// Package settings maintains a process-wide snapshot of the platform pricing
// settings (exchange rate, delivery fee, service charge). The snapshot is
// cache-backed and refreshed on an interval; callers read whatever was
// current at their moment of use and never block on the database for long.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/chopdirect/chopdirect/internal/cache"
	"github.com/chopdirect/chopdirect/internal/config"
	repo "github.com/chopdirect/chopdirect/internal/repository/settings"
)

const cacheKey = "settings:current"

// Snapshot is one consistent read of the pricing settings. Fees are minor
// units of the base currency; the rate is micros.
type Snapshot struct {
	ExchangeRateMicros int64 `json:"exchange_rate_micros"`
	DeliveryFee        int64 `json:"delivery_fee"`
	ServiceCharge      int64 `json:"service_charge"`
}

// Source yields the current settings snapshot.
type Source interface {
	Current(ctx context.Context) (Snapshot, error)
}

// Service implements Source over the settings repository with a cache layer
// and a background refresh ticker.
type Service struct {
	repo     *repo.Repository
	cache    cache.Store
	cacheTTL time.Duration
	interval time.Duration
	logger   *zap.Logger

	mu   sync.RWMutex
	last *Snapshot

	stop chan struct{}
	done chan struct{}
}

// NewService constructs the snapshot service.
func NewService(r *repo.Repository, store cache.Store, cfg config.Config, logger *zap.Logger) *Service {
	return &Service{
		repo:     r,
		cache:    store,
		cacheTTL: cfg.Settings.CacheTTL,
		interval: cfg.Settings.RefreshInterval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Module wires the snapshot service and its refresh loop into Fx.
var Module = fx.Options(
	fx.Provide(
		NewService,
		func(s *Service) Source { return s },
	),
	fx.Invoke(func(lc fx.Lifecycle, s *Service) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				s.startRefresh()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return s.stopRefresh(ctx)
			},
		})
	}),
)

// Current returns the freshest snapshot available: cache first, then the
// database, then the last in-memory value if the backends are down.
func (s *Service) Current(ctx context.Context) (Snapshot, error) {
	if snap, err := s.fromCache(ctx); err == nil {
		return snap, nil
	}

	snap, err := s.load(ctx)
	if err == nil {
		return snap, nil
	}

	s.mu.RLock()
	last := s.last
	s.mu.RUnlock()
	if last != nil {
		s.logger.Warn("settings read failed; serving last known snapshot", zap.Error(err))
		return *last, nil
	}
	return Snapshot{}, err
}

func (s *Service) fromCache(ctx context.Context) (Snapshot, error) {
	if s.cache == nil {
		return Snapshot{}, cache.ErrCacheMiss
	}
	raw, err := s.cache.Get(ctx, cacheKey)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// load reads the settings row and refreshes cache and memory.
func (s *Service) load(ctx context.Context) (Snapshot, error) {
	row, err := s.repo.Latest(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		ExchangeRateMicros: row.ExchangeRateMicros,
		DeliveryFee:        row.DeliveryFee,
		ServiceCharge:      row.ServiceCharge,
	}

	s.mu.Lock()
	s.last = &snap
	s.mu.Unlock()

	if s.cache != nil {
		if raw, err := json.Marshal(snap); err == nil {
			if err := s.cache.Set(ctx, cacheKey, raw, s.cacheTTL); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Warn("settings cache write failed", zap.Error(err))
			}
		}
	}
	return snap, nil
}

func (s *Service) startRefresh() {
	interval := s.interval
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				if _, err := s.load(ctx); err != nil {
					s.logger.Warn("settings refresh failed", zap.Error(err))
				}
				cancel()
			}
		}
	}()
}

func (s *Service) stopRefresh(ctx context.Context) error {
	close(s.stop)
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
