package discord

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"github.com/tavernier-bot/tavernier/internal/bus"
)

var afkMinDuration = float64(1)

var commandDefs = []*discordgo.ApplicationCommand{
	{
		Name:        "room",
		Description: "Gérer ton salon vocal éphémère",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "info",
				Description: "Afficher l'état du salon",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "renommer",
				Description: "Renommer le salon",
				Options: []*discordgo.ApplicationCommandOption{
					{Type: discordgo.ApplicationCommandOptionString, Name: "nom", Description: "Nouveau nom", Required: true},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "auto-nom",
				Description: "Nommer automatiquement le salon d'après le jeu du chef",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type: discordgo.ApplicationCommandOptionString, Name: "etat", Description: "on ou off", Required: true,
						Choices: []*discordgo.ApplicationCommandOptionChoice{
							{Name: "on", Value: "on"},
							{Name: "off", Value: "off"},
						},
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "verrouiller",
				Description: "Réserver le salon aux membres présents",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "deverrouiller",
				Description: "Rouvrir le salon à tous",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "chef",
				Description: "Céder la direction du salon",
				Options: []*discordgo.ApplicationCommandOption{
					{Type: discordgo.ApplicationCommandOptionUser, Name: "membre", Description: "Nouveau chef", Required: true},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "blacklist",
				Description: "Interdire l'accès du salon à un membre",
				Options: []*discordgo.ApplicationCommandOption{
					{Type: discordgo.ApplicationCommandOptionUser, Name: "membre", Description: "Membre à bannir du salon", Required: true},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "whitelist",
				Description: "Rendre l'accès du salon à un membre",
				Options: []*discordgo.ApplicationCommandOption{
					{Type: discordgo.ApplicationCommandOptionUser, Name: "membre", Description: "Membre à réadmettre", Required: true},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "handle",
				Description: "Réconcilier les salons suivis (admin)",
			},
		},
	},
	{
		Name:        "stats",
		Description: "Afficher la progression hebdomadaire d'un membre",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionUser, Name: "membre", Description: "Membre (toi par défaut)"},
		},
	},
	{
		Name:        "leaderboard",
		Description: "Afficher le classement d'activité de la semaine",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionInteger, Name: "limite", Description: "Nombre de membres affichés"},
		},
	},
	{
		Name:        "kick",
		Description: "Expulser un membre du serveur",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionUser, Name: "membre", Description: "Membre à expulser", Required: true},
			{Type: discordgo.ApplicationCommandOptionString, Name: "raison", Description: "Raison"},
		},
	},
	{
		Name:        "ban",
		Description: "Bannir un membre du serveur",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionUser, Name: "membre", Description: "Membre à bannir", Required: true},
			{Type: discordgo.ApplicationCommandOptionString, Name: "raison", Description: "Raison"},
		},
	},
	{
		Name:        "unban",
		Description: "Révoquer le bannissement d'un utilisateur",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionString, Name: "utilisateur", Description: "Nom d'utilisateur", Required: true},
		},
	},
	{
		Name:        "mute",
		Description: "Rendre un membre muet",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionUser, Name: "membre", Description: "Membre à rendre muet", Required: true},
			{Type: discordgo.ApplicationCommandOptionString, Name: "raison", Description: "Raison"},
		},
	},
	{
		Name:        "afk",
		Description: "Changer ton pseudo pour indiquer que tu es AFK",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type: discordgo.ApplicationCommandOptionInteger, Name: "duree", Description: "Durée annoncée (1-60)", Required: true,
				MinValue: &afkMinDuration, MaxValue: 60,
			},
			{
				Type: discordgo.ApplicationCommandOptionString, Name: "unite", Description: "Unité de temps", Required: true,
				Choices: []*discordgo.ApplicationCommandOptionChoice{
					{Name: "secondes", Value: "secondes"},
					{Name: "minutes", Value: "minutes"},
					{Name: "heures", Value: "heures"},
				},
			},
		},
	},
	{
		Name:        "clear",
		Description: "Supprimer des messages du salon",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionInteger, Name: "nombre", Description: "Nombre de messages (1-100)", Required: true},
			{Type: discordgo.ApplicationCommandOptionUser, Name: "membre", Description: "Ne supprimer que les messages de ce membre"},
		},
	},
}

func (c *Client) registerCommands() error {
	appID := c.session.State.User.ID
	for _, def := range commandDefs {
		if _, err := c.session.ApplicationCommandCreate(appID, c.guildID, def); err != nil {
			return fmt.Errorf("failed to register command %s: %w", def.Name, err)
		}
	}
	slog.Info("slash commands registered", "count", len(commandDefs))
	return nil
}

func (c *Client) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand || !c.inGuild(i.GuildID) {
		return
	}
	data := i.ApplicationCommandData()

	var actorID string
	if i.Member != nil && i.Member.User != nil {
		actorID = i.Member.User.ID
	} else if i.User != nil {
		actorID = i.User.ID
	}

	cmd := &bus.Command{
		Name:      data.Name,
		Args:      make(map[string]string),
		ActorID:   actorID,
		ChannelID: i.ChannelID,
		Reply:     c.replyFunc(s, i),
	}
	opts := data.Options
	if len(opts) == 1 && opts[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		cmd.Sub = opts[0].Name
		opts = opts[0].Options
	}
	for _, opt := range opts {
		cmd.Args[opt.Name] = optionString(opt)
	}

	c.bus.Publish(&bus.Event{
		Type:    bus.EventCommand,
		TraceID: uuid.NewString(),
		Command: cmd,
		At:      time.Now(),
	})
}

// optionString flattens any option value to the string form the gateway
// expects. User options carry the user id.
func optionString(opt *discordgo.ApplicationCommandInteractionDataOption) string {
	switch opt.Type {
	case discordgo.ApplicationCommandOptionUser:
		return opt.UserValue(nil).ID
	case discordgo.ApplicationCommandOptionInteger:
		return strconv.FormatInt(opt.IntValue(), 10)
	case discordgo.ApplicationCommandOptionBoolean:
		return strconv.FormatBool(opt.BoolValue())
	default:
		return opt.StringValue()
	}
}

// replyFunc bridges a bus.Response back to the interaction. Private
// responses become ephemeral messages.
func (c *Client) replyFunc(s *discordgo.Session, i *discordgo.InteractionCreate) func(bus.Response) {
	return func(resp bus.Response) {
		data := &discordgo.InteractionResponseData{Content: resp.Text}
		if resp.Private {
			data.Flags = discordgo.MessageFlagsEphemeral
		}
		err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: data,
		})
		if err != nil {
			slog.Warn("interaction reply failed", "command", i.ApplicationCommandData().Name, "error", err)
		}
	}
}
