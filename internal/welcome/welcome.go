// Package welcome posts the arrival message for new members.
package welcome

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tavernier-bot/tavernier/internal/config"
	"github.com/tavernier-bot/tavernier/internal/platform"
)

// Greeter sends welcome messages to the configured channel.
type Greeter struct {
	platform platform.Platform
	cfg      config.WelcomeConfig
}

// New creates a Greeter.
func New(p platform.Platform, cfg config.WelcomeConfig) *Greeter {
	return &Greeter{platform: p, cfg: cfg}
}

// OnMemberJoin posts the welcome message. Bots get their own variant.
func (g *Greeter) OnMemberJoin(ctx context.Context, memberID string, bot bool) error {
	if g.cfg.ChannelID == "" {
		return nil
	}
	var text string
	if bot {
		text = fmt.Sprintf("Nouveau bot 🤖 <@%s> vient d'être ajouté dans la Taverne !", memberID)
	} else {
		text = fmt.Sprintf("Bienvenue ! <@%s> vient d'arriver dans la Taverne !", memberID)
	}
	if err := g.platform.SendMessage(ctx, g.cfg.ChannelID, text); err != nil {
		return fmt.Errorf("failed to send welcome: %w", err)
	}
	slog.Info("member welcomed", "member", memberID, "bot", bot)
	return nil
}
