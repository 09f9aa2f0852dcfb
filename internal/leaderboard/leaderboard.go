// Package leaderboard builds the ranked weekly activity view posted on a
// schedule and served by the leaderboard command.
package leaderboard

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tavernier-bot/tavernier/internal/activity"
	"github.com/tavernier-bot/tavernier/internal/config"
	"github.com/tavernier-bot/tavernier/internal/platform"
	"github.com/tavernier-bot/tavernier/internal/week"
)

// Builder ranks member activity records.
type Builder struct {
	ledger   *activity.Ledger
	platform platform.Platform
	cfg      config.LeaderboardConfig
}

// NewBuilder creates a Builder.
func NewBuilder(l *activity.Ledger, p platform.Platform, cfg config.LeaderboardConfig) *Builder {
	return &Builder{ledger: l, platform: p, cfg: cfg}
}

// Build renders the top limit members ranked by level, then accumulated
// time. Zero or negative limit falls back to the configured one.
func (b *Builder) Build(ctx context.Context, at time.Time, limit int) (string, error) {
	if limit <= 0 {
		limit = b.cfg.Limit
	}
	recs, err := b.ledger.Snapshot(ctx, at)
	if err != nil {
		return "", fmt.Errorf("failed to snapshot member activity: %w", err)
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Level != recs[j].Level {
			return recs[i].Level > recs[j].Level
		}
		if recs[i].AccumulatedSeconds != recs[j].AccumulatedSeconds {
			return recs[i].AccumulatedSeconds > recs[j].AccumulatedSeconds
		}
		return recs[i].MemberID < recs[j].MemberID
	})
	if len(recs) > limit {
		recs = recs[:limit]
	}

	if len(recs) == 0 {
		return "Personne n'a encore été actif cette semaine !", nil
	}

	var sb strings.Builder
	sb.WriteString("**Classement d'activité de la semaine**\n")
	for i, rec := range recs {
		fmt.Fprintf(&sb, "%d. <@%s> — niveau %d (%s)\n",
			i+1, rec.MemberID, rec.Level, week.FormatDuration(rec.Accumulated()))
	}
	return sb.String(), nil
}

// Post builds the ranking and sends it to the configured channel. Used as a
// scheduler job.
func (b *Builder) Post(ctx context.Context) error {
	if b.cfg.ChannelID == "" {
		return nil
	}
	text, err := b.Build(ctx, time.Now(), b.cfg.Limit)
	if err != nil {
		return err
	}
	return b.platform.SendMessage(ctx, b.cfg.ChannelID, text)
}
