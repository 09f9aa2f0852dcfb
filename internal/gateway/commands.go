package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/tavernier-bot/tavernier/internal/afk"
	"github.com/tavernier-bot/tavernier/internal/audit"
	"github.com/tavernier-bot/tavernier/internal/bus"
	"github.com/tavernier-bot/tavernier/internal/moderation"
	"github.com/tavernier-bot/tavernier/internal/platform"
	"github.com/tavernier-bot/tavernier/internal/rooms"
)

// handleCommand routes a slash command and replies through cmd.Reply. Expected
// failures become private denial messages; anything else goes through the
// operator-channel boundary.
func (g *Gateway) handleCommand(ctx context.Context, ev *bus.Event) {
	cmd := ev.Command
	if cmd == nil || cmd.Reply == nil {
		slog.Warn("command event without payload", "trace", ev.TraceID)
		return
	}
	resp, err := g.runCommand(ctx, cmd, ev.At)
	if err != nil {
		if text, ok := denialFor(err); ok {
			cmd.Reply(bus.Response{Text: text, Private: true})
			return
		}
		g.reportUnexpected(ctx, ev, err)
		return
	}
	cmd.Reply(resp)
}

func (g *Gateway) runCommand(ctx context.Context, cmd *bus.Command, at time.Time) (bus.Response, error) {
	switch cmd.Name {
	case "room":
		return g.runRoomCommand(ctx, cmd)
	case "stats":
		target := cmd.Args["membre"]
		if target == "" {
			target = cmd.ActorID
		}
		text, err := g.ledger.Stats(ctx, target, at)
		return bus.Response{Text: text}, err
	case "leaderboard":
		limit, _ := strconv.Atoi(cmd.Args["limite"])
		text, err := g.board.Build(ctx, at, limit)
		return bus.Response{Text: text}, err
	case "kick":
		text, err := g.mod.Kick(ctx, cmd.ActorID, cmd.Args["membre"], cmd.Args["raison"])
		if err == nil {
			g.audit.Emit(ctx, audit.KindMemberKicked, cmd.ActorID, cmd.Args["membre"], nil)
		}
		return bus.Response{Text: text}, err
	case "ban":
		text, err := g.mod.Ban(ctx, cmd.ActorID, cmd.Args["membre"], cmd.Args["raison"])
		if err == nil {
			g.audit.Emit(ctx, audit.KindMemberBanned, cmd.ActorID, cmd.Args["membre"], nil)
		}
		return bus.Response{Text: text}, err
	case "unban":
		text, err := g.mod.Unban(ctx, cmd.ActorID, cmd.Args["utilisateur"])
		if err == nil {
			g.audit.Emit(ctx, audit.KindMemberUnbanned, cmd.ActorID, cmd.Args["utilisateur"], nil)
		}
		return bus.Response{Text: text}, err
	case "mute":
		text, err := g.mod.Mute(ctx, cmd.ActorID, cmd.Args["membre"], cmd.Args["raison"])
		if err == nil {
			g.audit.Emit(ctx, audit.KindMemberMuted, cmd.ActorID, cmd.Args["membre"], nil)
		}
		return bus.Response{Text: text}, err
	case "clear":
		n, _ := strconv.Atoi(cmd.Args["nombre"])
		text, err := g.mod.Clear(ctx, cmd.ActorID, cmd.ChannelID, n, cmd.Args["membre"])
		return bus.Response{Text: text, Private: true}, err
	case "afk":
		amount, _ := strconv.Atoi(cmd.Args["duree"])
		if amount < 1 || amount > 60 {
			return bus.Response{Text: "La durée doit être comprise entre 1 et 60.", Private: true}, nil
		}
		err := g.away.Mark(ctx, cmd.ActorID, amount, cmd.Args["unite"])
		return bus.Response{Text: "Tu es maintenant AFK, ton pseudo sera rétabli à ton retour.", Private: true}, err
	default:
		return bus.Response{Text: "Commande inconnue.", Private: true}, nil
	}
}

func (g *Gateway) runRoomCommand(ctx context.Context, cmd *bus.Command) (bus.Response, error) {
	switch cmd.Sub {
	case "info":
		text, err := g.rooms.MemberRoomInfo(ctx, cmd.ActorID)
		return bus.Response{Text: text, Private: true}, err
	case "renommer", "rename":
		name := strings.TrimSpace(cmd.Args["nom"])
		if name == "" {
			return bus.Response{Text: "Il me faut un nom pour renommer le salon !", Private: true}, nil
		}
		_, err := g.rooms.Rename(ctx, cmd.ActorID, name)
		return bus.Response{Text: fmt.Sprintf("Le salon a été renommé en **%s**.", name), Private: true}, err
	case "auto-nom", "auto-name":
		on := cmd.Args["etat"] != "off"
		_, err := g.rooms.SetAutoName(ctx, cmd.ActorID, on)
		text := "Le nom du salon suivra désormais le jeu du chef."
		if !on {
			text = "Le nom du salon ne changera plus automatiquement."
		}
		return bus.Response{Text: text, Private: true}, err
	case "verrouiller", "lock":
		_, err := g.rooms.SetLock(ctx, cmd.ActorID, true)
		return bus.Response{Text: "🔒 Le salon est maintenant verrouillé.", Private: true}, err
	case "deverrouiller", "unlock":
		_, err := g.rooms.SetLock(ctx, cmd.ActorID, false)
		return bus.Response{Text: "🔓 Le salon est maintenant ouvert à tous.", Private: true}, err
	case "chef", "leader":
		target := cmd.Args["membre"]
		_, err := g.rooms.TransferLeadership(ctx, cmd.ActorID, target)
		if err != nil {
			return bus.Response{}, err
		}
		name, _ := g.platform.MemberDisplayName(ctx, target)
		return bus.Response{Text: fmt.Sprintf("**%s** est le nouveau chef du salon !", name)}, nil
	case "blacklist":
		_, err := g.rooms.Blacklist(ctx, cmd.ActorID, cmd.Args["membre"])
		return bus.Response{Text: "Ce membre ne peut plus rejoindre le salon.", Private: true}, err
	case "whitelist":
		_, err := g.rooms.Whitelist(ctx, cmd.ActorID, cmd.Args["membre"])
		return bus.Response{Text: "Ce membre peut de nouveau rejoindre le salon.", Private: true}, err
	case "handle":
		ok, err := g.platform.HasPermission(ctx, cmd.ActorID, platform.PermAdministrator)
		if err != nil {
			return bus.Response{}, err
		}
		if !ok {
			return bus.Response{}, moderation.ErrMissingPermissions
		}
		if err := g.rooms.Reconcile(ctx); err != nil {
			return bus.Response{}, err
		}
		return bus.Response{Text: fmt.Sprintf("Vérification des salons terminée : %d salons suivis.", g.rooms.Tracked()), Private: true}, nil
	default:
		return bus.Response{Text: "Sous-commande inconnue.", Private: true}, nil
	}
}

// denialFor maps expected command failures to their user-facing message.
func denialFor(err error) (string, bool) {
	switch {
	case errors.Is(err, rooms.ErrNoRoom):
		return "Tu n'es pas dans un salon vocal éphémère !", true
	case errors.Is(err, rooms.ErrNotLeader):
		return "Seul le chef du salon peut faire ça !", true
	case errors.Is(err, rooms.ErrUnchanged):
		return "Le salon est déjà dans cet état.", true
	case errors.Is(err, rooms.ErrNotSameRoom):
		return "Ce membre n'est pas dans ton salon !", true
	case errors.Is(err, rooms.ErrSelfTarget):
		return "Tu ne peux pas te cibler toi-même !", true
	case errors.Is(err, afk.ErrNotInVoice):
		return "Tu dois être dans un salon vocal pour faire ça !", true
	case errors.Is(err, moderation.ErrMissingPermissions):
		return "Tu n'as pas la permission de faire ça !", true
	}
	return "", false
}
