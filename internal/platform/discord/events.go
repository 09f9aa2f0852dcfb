package discord

import (
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"github.com/tavernier-bot/tavernier/internal/bus"
)

// inGuild filters events from other guilds the bot may be in.
func (c *Client) inGuild(guildID string) bool {
	return guildID == "" || guildID == c.guildID
}

func (c *Client) onVoiceStateUpdate(_ *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	if !c.inGuild(vs.GuildID) {
		return
	}
	var before string
	if vs.BeforeUpdate != nil {
		before = vs.BeforeUpdate.ChannelID
	}
	if before == vs.ChannelID {
		return
	}
	c.bus.Publish(&bus.Event{
		Type:            bus.EventVoiceState,
		TraceID:         uuid.NewString(),
		MemberID:        vs.UserID,
		MemberBot:       c.member(vs.UserID).Bot,
		BeforeChannelID: before,
		AfterChannelID:  vs.ChannelID,
		At:              time.Now(),
	})
}

func (c *Client) onPresenceUpdate(_ *discordgo.Session, p *discordgo.PresenceUpdate) {
	if !c.inGuild(p.GuildID) || p.User == nil {
		return
	}
	var activity string
	for _, act := range p.Activities {
		if act.Type == discordgo.ActivityTypeGame {
			activity = act.Name
			break
		}
	}
	c.bus.Publish(&bus.Event{
		Type:     bus.EventPresence,
		TraceID:  uuid.NewString(),
		MemberID: p.User.ID,
		Activity: activity,
		At:       time.Now(),
	})
}

func (c *Client) onGuildMemberAdd(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if !c.inGuild(m.GuildID) || m.User == nil {
		return
	}
	c.bus.Publish(&bus.Event{
		Type:      bus.EventMemberJoin,
		TraceID:   uuid.NewString(),
		MemberID:  m.User.ID,
		MemberBot: m.User.Bot,
		At:        time.Now(),
	})
}

func (c *Client) onGuildMemberRemove(_ *discordgo.Session, m *discordgo.GuildMemberRemove) {
	if !c.inGuild(m.GuildID) || m.User == nil {
		return
	}
	c.bus.Publish(&bus.Event{
		Type:     bus.EventMemberLeave,
		TraceID:  uuid.NewString(),
		MemberID: m.User.ID,
		At:       time.Now(),
	})
}

func (c *Client) onChannelDelete(_ *discordgo.Session, ch *discordgo.ChannelDelete) {
	if ch.Channel == nil || !c.inGuild(ch.GuildID) {
		return
	}
	c.bus.Publish(&bus.Event{
		Type:       bus.EventChannelDelete,
		TraceID:    uuid.NewString(),
		ChannelID:  ch.ID,
		CategoryID: ch.ParentID,
		At:         time.Now(),
	})
}
