// Package activity owns the weekly voice-activity ledger: per-member
// accumulated time, level transitions and week-rollover correction.
package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tavernier-bot/tavernier/internal/audit"
	"github.com/tavernier-bot/tavernier/internal/config"
	"github.com/tavernier-bot/tavernier/internal/platform"
	"github.com/tavernier-bot/tavernier/internal/store"
	"github.com/tavernier-bot/tavernier/internal/week"
)

// Auditor receives level-change events. May be nil.
type Auditor interface {
	Emit(ctx context.Context, kind, actorID, targetID string, details map[string]any)
}

// Ledger tracks per-member voice activity and applies level side effects.
// All mutations go through the transition methods and persist immediately.
type Ledger struct {
	store    *store.Store
	platform platform.Platform
	cfg      config.ActivityConfig
	audit    Auditor
}

// NewLedger creates a Ledger.
func NewLedger(st *store.Store, p platform.Platform, cfg config.ActivityConfig, aud Auditor) *Ledger {
	return &Ledger{store: st, platform: p, cfg: cfg, audit: aud}
}

// fetch loads a member record, defaulting a missing document to
// level 0 / no time / epoch.
func (l *Ledger) fetch(ctx context.Context, memberID string) (*MemberRecord, error) {
	rec := &MemberRecord{MemberID: memberID}
	err := l.store.FindOne(ctx, store.CollectionMembers, memberID, rec)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	rec.MemberID = memberID
	if rec.AccumulatedSeconds < 0 {
		rec.AccumulatedSeconds = 0
	}
	return rec, nil
}

func (l *Ledger) commit(ctx context.Context, rec *MemberRecord) error {
	return l.store.Upsert(ctx, store.CollectionMembers, rec.MemberID, rec)
}

// levelFor returns the highest level whose threshold d meets.
func (l *Ledger) levelFor(d time.Duration) int {
	level := 0
	for i, th := range l.cfg.LevelThresholds {
		if d >= th {
			level = i
		}
	}
	return level
}

// minHoldThreshold is the time needed to hold any level at week close.
func (l *Ledger) minHoldThreshold() time.Duration {
	if len(l.cfg.LevelThresholds) > 1 {
		return l.cfg.LevelThresholds[1]
	}
	return 0
}

// OnVoiceEnter records the transition instant. Entering starts accrual, it
// never closes it, so no level computation happens here beyond the pending
// week-rollover correction for members who were idle across the boundary.
func (l *Ledger) OnVoiceEnter(ctx context.Context, memberID string, at time.Time) error {
	rec, err := l.fetch(ctx, memberID)
	if err != nil {
		return err
	}
	if err := l.rolloverIfDue(ctx, rec, at); err != nil {
		return err
	}
	rec.LastEventAt = at.Unix()
	return l.commit(ctx, rec)
}

// OnVoiceLeave credits the elapsed session. When the session crossed the week
// boundary the elapsed time is split at the boundary instant: the pre-boundary
// portion closes the old week (with its level re-evaluation), the remainder
// starts the new week. Level moves by at most one step per invocation.
func (l *Ledger) OnVoiceLeave(ctx context.Context, memberID string, at time.Time) error {
	rec, err := l.fetch(ctx, memberID)
	if err != nil {
		return err
	}

	boundary := week.Boundary(at, l.cfg.Weekday(), l.cfg.Location())
	last := rec.LastEvent()
	origLevel := rec.Level

	if last.IsZero() {
		// First ever event is a leave: nothing to credit.
		rec.LastEventAt = at.Unix()
		return l.commit(ctx, rec)
	}

	elapsed := at.Sub(last)
	if elapsed < 0 {
		elapsed = 0
	}

	if boundary.After(last) {
		// The member was connected across the week boundary. Close the old
		// week with the pre-boundary portion, then start the new week with
		// the remainder. A session starting exactly at the boundary (or one
		// already corrected by a rollover check) belongs to the new week.
		preRoll := boundary.Sub(last)
		if preRoll < 0 {
			preRoll = 0
		}
		oldWeek := rec.Accumulated() + preRoll
		rec.Level = l.closeWeekLevel(rec.Level, oldWeek)

		remainder := at.Sub(boundary)
		if remainder < 0 {
			remainder = 0
		}
		rec.AccumulatedSeconds = int64(remainder.Seconds())
		if rec.Level+1 < len(l.cfg.LevelThresholds) && rec.Accumulated() >= l.cfg.LevelThresholds[rec.Level+1] {
			rec.Level++
		}
	} else {
		rec.AccumulatedSeconds += int64(elapsed.Seconds())
		if rec.Level+1 < len(l.cfg.LevelThresholds) && rec.Accumulated() >= l.cfg.LevelThresholds[rec.Level+1] {
			rec.Level++
		}
	}

	// One step per invocation, in either direction.
	rec.Level = clamp(rec.Level, origLevel-1, origLevel+1)
	if rec.Level < 0 {
		rec.Level = 0
	}

	rec.LastEventAt = at.Unix()
	if err := l.commit(ctx, rec); err != nil {
		return err
	}
	return l.applyLevelChange(ctx, memberID, origLevel, rec.Level)
}

// RolloverCheck applies the pending week-rollover correction for a member
// who has been idle across the boundary. Idempotent within a week.
func (l *Ledger) RolloverCheck(ctx context.Context, memberID string, at time.Time) error {
	rec, err := l.fetch(ctx, memberID)
	if err != nil {
		return err
	}
	if err := l.rolloverIfDue(ctx, rec, at); err != nil {
		return err
	}
	return l.commit(ctx, rec)
}

// rolloverIfDue closes the old week in place when LastEventAt predates the
// current week boundary. LastEventAt moves to the boundary instant so a
// second check in the same week is a no-op.
func (l *Ledger) rolloverIfDue(ctx context.Context, rec *MemberRecord, at time.Time) error {
	last := rec.LastEvent()
	if last.IsZero() {
		return nil // new member, nothing to close
	}
	boundary := week.Boundary(at, l.cfg.Weekday(), l.cfg.Location())
	if !last.Before(boundary) {
		return nil
	}

	origLevel := rec.Level
	rec.Level = l.closeWeekLevel(rec.Level, rec.Accumulated())
	rec.AccumulatedSeconds = 0
	rec.LastEventAt = boundary.Unix()

	return l.applyLevelChange(ctx, rec.MemberID, origLevel, rec.Level)
}

// closeWeekLevel evaluates the final level for a closed week: a week that
// met the next threshold earns one level, a week below the minimum hold
// threshold loses exactly one, anything else holds.
func (l *Ledger) closeWeekLevel(level int, weekTime time.Duration) int {
	if level+1 < len(l.cfg.LevelThresholds) && weekTime >= l.cfg.LevelThresholds[level+1] {
		return level + 1
	}
	if weekTime < l.minHoldThreshold() && level > 0 {
		return level - 1
	}
	return level
}

// applyLevelChange grants the role mapped to the new level and revokes the
// one mapped to the old. Unmapped levels produce no role mutation.
func (l *Ledger) applyLevelChange(ctx context.Context, memberID string, old, new int) error {
	if old == new {
		return nil
	}
	slog.Info("activity level change", "member", memberID, "from", old, "to", new)
	if l.audit != nil {
		l.audit.Emit(ctx, audit.KindLevelChanged, "", memberID, map[string]any{"from": old, "to": new})
	}

	if role, ok := l.cfg.LevelRoles[new]; ok {
		if err := l.platform.AddRole(ctx, memberID, role); err != nil && !errors.Is(err, platform.ErrGone) {
			return fmt.Errorf("failed to grant level %d role: %w", new, err)
		}
	}
	if role, ok := l.cfg.LevelRoles[old]; ok {
		if err := l.platform.RemoveRole(ctx, memberID, role); err != nil && !errors.Is(err, platform.ErrGone) {
			return fmt.Errorf("failed to revoke level %d role: %w", old, err)
		}
	}
	return nil
}

// DisplayLevel returns the level to show for a member: the stored level, or
// the level the current accumulated time already earns, whichever is higher.
// Presentation only, never persisted.
func (l *Ledger) DisplayLevel(ctx context.Context, memberID string) (int, error) {
	rec, err := l.fetch(ctx, memberID)
	if err != nil {
		return 0, err
	}
	return max(rec.Level, l.levelFor(rec.Accumulated())), nil
}

// Record returns the current (post-rollover-check) record for a member.
func (l *Ledger) Record(ctx context.Context, memberID string, at time.Time) (*MemberRecord, error) {
	if err := l.RolloverCheck(ctx, memberID, at); err != nil {
		return nil, err
	}
	return l.fetch(ctx, memberID)
}

// Stats renders the member's progression for the stats command.
func (l *Ledger) Stats(ctx context.Context, memberID string, at time.Time) (string, error) {
	rec, err := l.Record(ctx, memberID, at)
	if err != nil {
		return "", err
	}
	display := max(rec.Level, l.levelFor(rec.Accumulated()))
	name, err := l.platform.MemberDisplayName(ctx, memberID)
	if err != nil {
		name = memberID
	}
	return fmt.Sprintf("%s — niveau %d, %s cette semaine", name, display, week.FormatDuration(rec.Accumulated())), nil
}

// Snapshot returns every member record with any pending week-rollover
// correction applied read-only: nothing is persisted and no role side
// effects run. Used by the leaderboard batch.
func (l *Ledger) Snapshot(ctx context.Context, at time.Time) ([]*MemberRecord, error) {
	docs, err := l.store.FindAll(ctx, store.CollectionMembers)
	if err != nil {
		return nil, err
	}
	boundary := week.Boundary(at, l.cfg.Weekday(), l.cfg.Location())

	out := make([]*MemberRecord, 0, len(docs))
	for id, raw := range docs {
		rec := &MemberRecord{MemberID: id}
		if err := json.Unmarshal(raw, rec); err != nil {
			slog.Warn("member record decode failed", "member", id, "error", err)
			continue
		}
		rec.MemberID = id
		if last := rec.LastEvent(); !last.IsZero() && last.Before(boundary) {
			rec.Level = l.closeWeekLevel(rec.Level, rec.Accumulated())
			rec.AccumulatedSeconds = 0
		}
		out = append(out, rec)
	}
	return out, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
