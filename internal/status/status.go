// Package status rotates the bot's cosmetic presence through a configured
// list, enriched with a live member count.
package status

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tavernier-bot/tavernier/internal/config"
	"github.com/tavernier-bot/tavernier/internal/platform"
)

// Rotator cycles presences. Tick is driven by a scheduler job.
type Rotator struct {
	platform platform.Platform
	cfg      config.StatusConfig

	mu   sync.Mutex
	next int
}

// New creates a Rotator.
func New(p platform.Platform, cfg config.StatusConfig) *Rotator {
	return &Rotator{platform: p, cfg: cfg}
}

// entries returns the rotation list: configured entries plus the member
// counter.
func (r *Rotator) entries(ctx context.Context) []config.StatusEntry {
	list := make([]config.StatusEntry, 0, len(r.cfg.Entries)+1)
	if counts, err := r.platform.Presence(ctx); err == nil && counts.Total > 0 {
		list = append(list, config.StatusEntry{
			Kind: platform.PresenceWatching,
			Name: fmt.Sprintf("%d membres", counts.Total),
		})
	}
	list = append(list, r.cfg.Entries...)
	return list
}

// Tick advances the rotation by one presence.
func (r *Rotator) Tick(ctx context.Context) error {
	list := r.entries(ctx)
	if len(list) == 0 {
		return nil
	}

	r.mu.Lock()
	idx := r.next % len(list)
	r.next++
	r.mu.Unlock()

	entry := list[idx]
	if err := r.platform.SetPresence(ctx, entry.Kind, entry.Name); err != nil {
		return fmt.Errorf("failed to set presence: %w", err)
	}
	slog.Debug("status rotated", "kind", entry.Kind, "name", entry.Name)
	return nil
}
