// Package gateway routes inbound platform events and slash commands to the
// feature handlers. It owns the top-level error boundary: expected failures
// become user-facing responses, anything else is captured with a stack trace
// and posted to the operator channel.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/tavernier-bot/tavernier/internal/activity"
	"github.com/tavernier-bot/tavernier/internal/afk"
	"github.com/tavernier-bot/tavernier/internal/audit"
	"github.com/tavernier-bot/tavernier/internal/bus"
	"github.com/tavernier-bot/tavernier/internal/config"
	"github.com/tavernier-bot/tavernier/internal/infochannels"
	"github.com/tavernier-bot/tavernier/internal/leaderboard"
	"github.com/tavernier-bot/tavernier/internal/moderation"
	"github.com/tavernier-bot/tavernier/internal/platform"
	"github.com/tavernier-bot/tavernier/internal/rooms"
	"github.com/tavernier-bot/tavernier/internal/welcome"
)

const apology = "Une erreur inattendue s'est produite... Le staff a été prévenu !"

// Gateway wires the event bus to the feature handlers.
type Gateway struct {
	bus      *bus.Bus
	platform platform.Platform
	cfg      *config.Config

	ledger  *activity.Ledger
	rooms   *rooms.Manager
	board   *leaderboard.Builder
	mod     *moderation.Moderator
	greeter *welcome.Greeter
	info    *infochannels.Updater
	away    *afk.Tracker
	audit   *audit.Publisher
}

// New creates a Gateway.
func New(
	b *bus.Bus,
	p platform.Platform,
	cfg *config.Config,
	ledger *activity.Ledger,
	roomMgr *rooms.Manager,
	board *leaderboard.Builder,
	mod *moderation.Moderator,
	greeter *welcome.Greeter,
	info *infochannels.Updater,
	away *afk.Tracker,
	auditPub *audit.Publisher,
) *Gateway {
	return &Gateway{
		bus:      b,
		platform: p,
		cfg:      cfg,
		ledger:   ledger,
		rooms:    roomMgr,
		board:    board,
		mod:      mod,
		greeter:  greeter,
		info:     info,
		away:     away,
		audit:    auditPub,
	}
}

// Run drains the bus until ctx is cancelled. Events are processed one at a
// time; handlers may suspend on platform or store I/O but never overlap.
func (g *Gateway) Run(ctx context.Context) error {
	slog.Info("gateway started")
	for {
		ev, err := g.bus.Consume(ctx)
		if err != nil {
			slog.Info("gateway stopped")
			return err
		}
		g.handle(ctx, ev)
	}
}

// handle dispatches one event inside the error boundary.
func (g *Gateway) handle(ctx context.Context, ev *bus.Event) {
	defer func() {
		if r := recover(); r != nil {
			g.reportUnexpected(ctx, ev, fmt.Errorf("panic: %v\n%s", r, debug.Stack()))
		}
	}()

	var err error
	switch ev.Type {
	case bus.EventVoiceState:
		err = g.onVoiceState(ctx, ev)
	case bus.EventPresence:
		err = g.rooms.OnPresence(ctx, ev.MemberID)
	case bus.EventMemberJoin:
		err = g.onMemberJoin(ctx, ev)
	case bus.EventMemberLeave:
		err = g.info.UpdateMemberCount(ctx)
	case bus.EventChannelDelete:
		g.rooms.OnChannelDelete(ctx, ev.ChannelID)
	case bus.EventCommand:
		g.handleCommand(ctx, ev)
	}
	if err != nil {
		g.reportUnexpected(ctx, ev, err)
	}
}

func (g *Gateway) onVoiceState(ctx context.Context, ev *bus.Event) error {
	// Counter channels eject whoever connects to them.
	if g.info.IsInfoChannel(ev.AfterChannelID) {
		return g.info.OnVoiceEnter(ctx, ev.MemberID, ev.BeforeChannelID)
	}

	if err := g.rooms.OnVoiceState(ctx, ev.MemberID, ev.MemberBot, ev.BeforeChannelID, ev.AfterChannelID); err != nil {
		return err
	}
	if err := g.away.OnVoiceState(ctx, ev.MemberID, ev.BeforeChannelID, ev.AfterChannelID); err != nil {
		slog.Warn("afk nickname restore failed", "member", ev.MemberID, "error", err)
	}

	// Activity accounting ignores bots and the redirect hop into a fresh
	// room, which would otherwise double-count the transition.
	if ev.MemberBot || ev.BeforeChannelID == g.cfg.Rooms.RedirectChannelID {
		return nil
	}
	switch {
	case ev.BeforeChannelID == "" && ev.AfterChannelID != "":
		return g.ledger.OnVoiceEnter(ctx, ev.MemberID, ev.At)
	case ev.BeforeChannelID != "" && ev.BeforeChannelID != ev.AfterChannelID:
		return g.ledger.OnVoiceLeave(ctx, ev.MemberID, ev.At)
	}
	return nil
}

func (g *Gateway) onMemberJoin(ctx context.Context, ev *bus.Event) error {
	if err := g.greeter.OnMemberJoin(ctx, ev.MemberID, ev.MemberBot); err != nil {
		return err
	}
	return g.info.UpdateMemberCount(ctx)
}

// reportUnexpected handles class (d) failures: log, post the diagnostic to
// the operator channel, and apologize to the triggering user if this was a
// command.
func (g *Gateway) reportUnexpected(ctx context.Context, ev *bus.Event, err error) {
	slog.Error("unexpected handler failure", "event", ev.Type, "trace", ev.TraceID, "error", err)

	if ch := g.cfg.Bot.OperatorChannelID; ch != "" {
		diag := fmt.Sprintf("⚠️ Erreur sur `%s` (trace `%s`) :\n```\n%v\n```", ev.Type, ev.TraceID, err)
		if sendErr := g.platform.SendMessage(ctx, ch, diag); sendErr != nil {
			slog.Error("operator channel report failed", "error", sendErr)
		}
	}
	if ev.Command != nil && ev.Command.Reply != nil {
		ev.Command.Reply(bus.Response{Text: apology, Private: true})
	}
}
