// Package infochannels keeps the member-count and online-count voice
// channels up to date and ejects anyone who connects to them.
package infochannels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tavernier-bot/tavernier/internal/config"
	"github.com/tavernier-bot/tavernier/internal/platform"
)

// Updater maintains the counter channels.
type Updater struct {
	platform platform.Platform
	cfg      config.InfochannelsConfig
}

// New creates an Updater.
func New(p platform.Platform, cfg config.InfochannelsConfig) *Updater {
	return &Updater{platform: p, cfg: cfg}
}

// IsInfoChannel reports whether channelID is one of the counter channels.
func (u *Updater) IsInfoChannel(channelID string) bool {
	return channelID != "" &&
		(channelID == u.cfg.MembersChannelID || channelID == u.cfg.OnlinesChannelID)
}

// OnVoiceEnter ejects a member who connected to a counter channel, moving
// them back where they came from.
func (u *Updater) OnVoiceEnter(ctx context.Context, memberID, beforeChannelID string) error {
	if beforeChannelID == "" {
		return u.platform.DisconnectMember(ctx, memberID)
	}
	return u.platform.MoveMember(ctx, memberID, beforeChannelID)
}

// UpdateMemberCount renames the member counter channel.
func (u *Updater) UpdateMemberCount(ctx context.Context) error {
	if u.cfg.MembersChannelID == "" {
		return nil
	}
	counts, err := u.platform.Presence(ctx)
	if err != nil {
		return fmt.Errorf("failed to read presence counts: %w", err)
	}
	name := fmt.Sprintf("Membres : %d", counts.Total)
	if err := u.platform.RenameChannel(ctx, u.cfg.MembersChannelID, name); err != nil && !errors.Is(err, platform.ErrGone) {
		return fmt.Errorf("failed to rename member counter: %w", err)
	}
	slog.Debug("member counter updated", "total", counts.Total)
	return nil
}

// UpdateOnlineCount renames the online counter channel. Used as a scheduler
// job; presence events are far too chatty to drive this directly.
func (u *Updater) UpdateOnlineCount(ctx context.Context) error {
	if u.cfg.OnlinesChannelID == "" {
		return nil
	}
	counts, err := u.platform.Presence(ctx)
	if err != nil {
		return fmt.Errorf("failed to read presence counts: %w", err)
	}
	name := fmt.Sprintf("🟢 %d ⛔ %d 🌙 %d", counts.Online, counts.DND, counts.Idle)
	if err := u.platform.RenameChannel(ctx, u.cfg.OnlinesChannelID, name); err != nil && !errors.Is(err, platform.ErrGone) {
		return fmt.Errorf("failed to rename online counter: %w", err)
	}
	return nil
}
