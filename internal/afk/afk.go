// Package afk implements the away marker: the afk command prefixes the
// member's nickname with the announced away time, and the original nickname
// comes back when they disconnect from voice.
package afk

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tavernier-bot/tavernier/internal/platform"
)

// ErrNotInVoice is returned when the member is not connected to a voice
// channel. Mapped to a user-facing denial by the gateway.
var ErrNotInVoice = errors.New("afk: member is not in a voice channel")

var unitSuffixes = map[string]string{
	"secondes": "sec",
	"minutes":  "min",
	"heures":   "h",
}

// Tracker remembers the pre-away nickname of each marked member. State is
// process-local: a restart leaves the prefixed nickname in place.
type Tracker struct {
	platform platform.Platform

	mu    sync.Mutex
	nicks map[string]string // member id → nickname to restore
}

// New creates a Tracker.
func New(p platform.Platform) *Tracker {
	return &Tracker{platform: p, nicks: make(map[string]string)}
}

// Mark flags the member away for the announced duration. Marking an already
// marked member updates the prefix but keeps the first nickname to restore.
func (t *Tracker) Mark(ctx context.Context, memberID string, amount int, unit string) error {
	channelID, err := t.platform.MemberVoiceChannel(ctx, memberID)
	if err != nil {
		return err
	}
	if channelID == "" {
		return ErrNotInVoice
	}

	current, err := t.platform.MemberDisplayName(ctx, memberID)
	if err != nil {
		return err
	}

	t.mu.Lock()
	original, marked := t.nicks[memberID]
	if !marked {
		original = current
		t.nicks[memberID] = original
	}
	t.mu.Unlock()

	suffix, ok := unitSuffixes[unit]
	if !ok {
		suffix = unit
	}
	return t.platform.EditMemberNick(ctx, memberID, fmt.Sprintf("[AFK %d%s] %s", amount, suffix, original))
}

// OnVoiceState restores the nickname when a marked member disconnects.
func (t *Tracker) OnVoiceState(ctx context.Context, memberID, beforeID, afterID string) error {
	if beforeID == "" || afterID != "" {
		return nil
	}

	t.mu.Lock()
	original, marked := t.nicks[memberID]
	delete(t.nicks, memberID)
	t.mu.Unlock()

	if !marked {
		return nil
	}
	if err := t.platform.EditMemberNick(ctx, memberID, original); err != nil && !errors.Is(err, platform.ErrGone) {
		return err
	}
	return nil
}
