// Package moderation implements the permission-checked one-shot moderation
// commands: kick, ban, unban, mute and clear.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tavernier-bot/tavernier/internal/config"
	"github.com/tavernier-bot/tavernier/internal/platform"
)

// ErrMissingPermissions is returned when the actor lacks the required
// guild permission.
var ErrMissingPermissions = errors.New("moderation: missing permissions")

const defaultReason = "Non précisée..."

// Moderator executes moderation actions against the platform.
type Moderator struct {
	platform platform.Platform
	bot      config.BotConfig
}

// New creates a Moderator.
func New(p platform.Platform, bot config.BotConfig) *Moderator {
	return &Moderator{platform: p, bot: bot}
}

func (m *Moderator) require(ctx context.Context, actorID, perm string) error {
	ok, err := m.platform.HasPermission(ctx, actorID, perm)
	if err != nil {
		return err
	}
	if !ok {
		return ErrMissingPermissions
	}
	return nil
}

// Kick expels a member from the guild.
func (m *Moderator) Kick(ctx context.Context, actorID, targetID, reason string) (string, error) {
	if err := m.require(ctx, actorID, platform.PermKickMembers); err != nil {
		return "", err
	}
	if reason == "" {
		reason = defaultReason
	}
	if err := m.platform.KickMember(ctx, targetID, reason); err != nil {
		return "", fmt.Errorf("failed to kick member: %w", err)
	}
	slog.Info("member kicked", "target", targetID, "by", actorID, "reason", reason)
	return fmt.Sprintf("<@%s> a été expulsé du serveur par <@%s>\nRaison : *%s*", targetID, actorID, reason), nil
}

// Ban bans a member from the guild.
func (m *Moderator) Ban(ctx context.Context, actorID, targetID, reason string) (string, error) {
	if err := m.require(ctx, actorID, platform.PermBanMembers); err != nil {
		return "", err
	}
	if reason == "" {
		reason = defaultReason
	}
	if err := m.platform.BanMember(ctx, targetID, reason); err != nil {
		return "", fmt.Errorf("failed to ban member: %w", err)
	}
	slog.Info("member banned", "target", targetID, "by", actorID, "reason", reason)
	return fmt.Sprintf("<@%s> a été banni du serveur par <@%s>\nRaison : *%s*", targetID, actorID, reason), nil
}

// Unban revokes a ban by user tag.
func (m *Moderator) Unban(ctx context.Context, actorID, userTag string) (string, error) {
	if err := m.require(ctx, actorID, platform.PermBanMembers); err != nil {
		return "", err
	}
	if err := m.platform.UnbanMember(ctx, userTag); err != nil {
		if errors.Is(err, platform.ErrGone) {
			return fmt.Sprintf("%s n'est pas banni du serveur ou n'existe pas...", userTag), nil
		}
		return "", fmt.Errorf("failed to unban: %w", err)
	}
	slog.Info("member unbanned", "target", userTag, "by", actorID)
	return fmt.Sprintf("%s a été dé-banni par <@%s>", userTag, actorID), nil
}

// Mute grants the muted role to a member.
func (m *Moderator) Mute(ctx context.Context, actorID, targetID, reason string) (string, error) {
	if err := m.require(ctx, actorID, platform.PermManageMessages); err != nil {
		return "", err
	}
	if m.bot.MutedRoleID == "" {
		return "", errors.New("moderation: no muted role configured")
	}
	if err := m.platform.AddRole(ctx, targetID, m.bot.MutedRoleID); err != nil {
		return "", fmt.Errorf("failed to mute member: %w", err)
	}
	if reason == "" {
		reason = defaultReason
	}
	slog.Info("member muted", "target", targetID, "by", actorID, "reason", reason)
	return fmt.Sprintf("<@%s> a été rendu muet par <@%s>\nRaison : *%s*", targetID, actorID, reason), nil
}

// Clear purges up to n messages in a channel, optionally only from one
// member.
func (m *Moderator) Clear(ctx context.Context, actorID, channelID string, n int, memberID string) (string, error) {
	if err := m.require(ctx, actorID, platform.PermManageMessages); err != nil {
		return "", err
	}
	if n < 1 {
		n = 1
	}
	if n > 100 {
		n = 100
	}
	deleted, err := m.platform.PurgeMessages(ctx, channelID, n, memberID)
	if err != nil {
		return "", fmt.Errorf("failed to purge messages: %w", err)
	}
	slog.Info("messages purged", "channel", channelID, "count", deleted, "by", actorID)
	if memberID != "" {
		return fmt.Sprintf("%d messages envoyés par <@%s> ont été supprimés", deleted, memberID), nil
	}
	return fmt.Sprintf("%d messages ont été supprimés", deleted), nil
}
