package pricing

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/wolfman30/pro-marketplace/pkg/logging"
)

// Source loads the current pricing configuration.
type Source interface {
	Get(ctx context.Context) (Config, error)
}

// Provider caches the latest configuration snapshot. Callers take one
// snapshot per operation and pass it explicitly into Quote and the ledger.
type Provider struct {
	source  Source
	current atomic.Pointer[Config]
	logger  *logging.Logger
}

func NewProvider(source Source, initial Config, logger *logging.Logger) *Provider {
	if source == nil {
		panic("pricing: source required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	p := &Provider{source: source, logger: logger}
	p.current.Store(&initial)
	return p
}

// Snapshot returns the most recently loaded configuration.
func (p *Provider) Snapshot() Config {
	return *p.current.Load()
}

// Refresh reloads the configuration from the source. On failure the previous
// snapshot stays in effect.
func (p *Provider) Refresh(ctx context.Context) error {
	cfg, err := p.source.Get(ctx)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	p.current.Store(&cfg)
	return nil
}

// Start polls the source until ctx is cancelled.
func (p *Provider) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := p.Refresh(ctx); err != nil {
					p.logger.Warn("pricing refresh failed", "error", err)
				}
			}
		}
	}()
}
