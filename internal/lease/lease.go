// Package lease guarantees at most one remediation in flight per service.
package lease

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/mirador-autopilot/internal/cache"
	"github.com/miradorstack/mirador-autopilot/internal/utils"
)

const (
	defaultTTL     = 2 * time.Minute
	releaseTimeout = 2 * time.Second
)

// Release gives a lease back. Calling it more than once is harmless.
type Release func()

// Guard hands out per-service leases. Leases are held locally and, when a shared
// provider is configured, mirrored as an expiring key so other replicas back off too.
type Guard struct {
	mu       sync.Mutex
	held     map[string]struct{}
	provider cache.Provider
	ttl      time.Duration
	prefix   string
	logger   *slog.Logger
}

// NewGuard builds a guard. A nil provider keeps leases process-local.
func NewGuard(provider cache.Provider, ttl time.Duration, prefix string, logger *slog.Logger) *Guard {
	if provider == nil {
		provider = cache.NoopProvider{}
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{held: make(map[string]struct{}), provider: provider, ttl: ttl, prefix: prefix, logger: logger}
}

// TryAcquire claims service without blocking. It returns utils.ErrInFlight when the service is already leased.
func (g *Guard) TryAcquire(ctx context.Context, service string) (Release, error) {
	g.mu.Lock()
	if _, busy := g.held[service]; busy {
		g.mu.Unlock()
		return nil, fmt.Errorf("lease %s: %w", service, utils.ErrInFlight)
	}
	g.held[service] = struct{}{}
	g.mu.Unlock()

	key := g.prefix + service
	token := []byte(uuid.NewString())
	ok, err := g.provider.SetNX(ctx, key, token, g.ttl)
	if err != nil || !ok {
		g.drop(service)
		if err != nil {
			return nil, utils.NewAppError("lease.acquire", service, err)
		}
		return nil, fmt.Errorf("lease %s held by another replica: %w", service, utils.ErrInFlight)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			rctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			defer cancel()
			if _, err := g.provider.CompareAndDelete(rctx, key, token); err != nil {
				// the key expires on its own after ttl
				g.logger.Warn("lease release failed", slog.String("service", service), slog.Any("error", err))
			}
			g.drop(service)
		})
	}, nil
}

// Held reports whether this process currently holds a lease for service.
func (g *Guard) Held(service string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.held[service]
	return ok
}

func (g *Guard) drop(service string) {
	g.mu.Lock()
	delete(g.held, service)
	g.mu.Unlock()
}
