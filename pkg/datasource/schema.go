package datasource

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const defaultSchemaTTL = 5 * time.Minute

// Describer builds the schema text injected into generation prompts.
// Descriptions are cached per source name; native sources hit their backend
// catalog otherwise, which is wasteful on every retry round.
type Describer struct {
	log   *slog.Logger
	cache *ttlcache.Cache[string, string]
}

// NewDescriber creates a describer with the given cache TTL. A zero ttl
// uses the default.
func NewDescriber(log *slog.Logger, ttl time.Duration) *Describer {
	if ttl == 0 {
		ttl = defaultSchemaTTL
	}
	cache := ttlcache.New(
		ttlcache.WithTTL[string, string](ttl),
		ttlcache.WithDisableTouchOnHit[string, string](),
	)
	go cache.Start()
	return &Describer{log: log, cache: cache}
}

// Stop releases the cache's janitor goroutine.
func (d *Describer) Stop() {
	d.cache.Stop()
}

// Describe renders the schema of every source, cached per source.
func (d *Describer) Describe(ctx context.Context, sources []Source) (string, error) {
	var sb strings.Builder
	for _, src := range sources {
		if item := d.cache.Get(src.Name()); item != nil {
			sb.WriteString(item.Value())
			continue
		}

		table, err := src.Describe(ctx)
		if err != nil {
			return "", err
		}
		text := FormatSchema(table)
		d.cache.Set(src.Name(), text, ttlcache.DefaultTTL)
		if d.log != nil {
			d.log.Debug("datasource: described source", "source", src.Name(), "columns", len(table.Columns))
		}
		sb.WriteString(text)
	}
	return sb.String(), nil
}

// Invalidate drops the cached description for a source, forcing the next
// Describe to hit the backend.
func (d *Describer) Invalidate(name string) {
	d.cache.Delete(name)
}
