// Package discord implements platform.Platform against the Discord API via
// discordgo, and feeds gateway events into the bus.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/tavernier-bot/tavernier/internal/bus"
	"github.com/tavernier-bot/tavernier/internal/platform"
)

// Client wraps a discordgo session scoped to one guild.
type Client struct {
	session *discordgo.Session
	guildID string
	bus     *bus.Bus
}

// New creates a Client. The session is not opened yet; call Open.
func New(token, guildID string, b *bus.Bus) (*Client, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildPresences
	s.State.TrackVoice = true
	s.State.TrackPresences = true
	return &Client{session: s, guildID: guildID, bus: b}, nil
}

// Open connects to the gateway, registers event handlers and the slash
// commands.
func (c *Client) Open(ctx context.Context) error {
	c.session.AddHandler(c.onVoiceStateUpdate)
	c.session.AddHandler(c.onPresenceUpdate)
	c.session.AddHandler(c.onGuildMemberAdd)
	c.session.AddHandler(c.onGuildMemberRemove)
	c.session.AddHandler(c.onChannelDelete)
	c.session.AddHandler(c.onInteractionCreate)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("failed to open gateway connection: %w", err)
	}
	if err := c.registerCommands(); err != nil {
		c.session.Close()
		return err
	}
	slog.Info("connected to discord", "user", c.session.State.User.Username, "guild", c.guildID)
	return nil
}

// Close shuts the gateway connection down.
func (c *Client) Close() error {
	return c.session.Close()
}

// asGone converts a 404 REST error into platform.ErrGone.
func asGone(err error) error {
	if err == nil {
		return nil
	}
	var rerr *discordgo.RESTError
	if errors.As(err, &rerr) && rerr.Response != nil && rerr.Response.StatusCode == http.StatusNotFound {
		return platform.ErrGone
	}
	return err
}

// principal maps the abstract overwrite principal to a discord id and type.
// The "everyone" principal is the role sharing the guild's id.
func (c *Client) principal(principalID string) (string, discordgo.PermissionOverwriteType) {
	if principalID == platform.DefaultPrincipal {
		return c.guildID, discordgo.PermissionOverwriteTypeRole
	}
	return principalID, discordgo.PermissionOverwriteTypeMember
}

const manageRoomBits = discordgo.PermissionManageChannels | discordgo.PermissionVoiceMoveMembers

// overwriteBits translates an Overwrite into discord allow/deny bitmasks.
func overwriteBits(ow platform.Overwrite) (allow, deny int64) {
	set := func(flag *bool, bit int64) {
		if flag == nil {
			return
		}
		if *flag {
			allow |= bit
		} else {
			deny |= bit
		}
	}
	set(ow.Connect, discordgo.PermissionVoiceConnect)
	set(ow.Speak, discordgo.PermissionVoiceSpeak)
	set(ow.SendMessages, discordgo.PermissionSendMessages)
	set(ow.ManageRoom, manageRoomBits)
	return allow, deny
}

func (c *Client) CreateVoiceChannel(_ context.Context, categoryID, name string, overwrites map[string]platform.Overwrite) (string, error) {
	var ows []*discordgo.PermissionOverwrite
	for principalID, ow := range overwrites {
		id, typ := c.principal(principalID)
		allow, deny := overwriteBits(ow)
		ows = append(ows, &discordgo.PermissionOverwrite{ID: id, Type: typ, Allow: allow, Deny: deny})
	}
	ch, err := c.session.GuildChannelCreateComplex(c.guildID, discordgo.GuildChannelCreateData{
		Name:                 name,
		Type:                 discordgo.ChannelTypeGuildVoice,
		ParentID:             categoryID,
		PermissionOverwrites: ows,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create voice channel: %w", err)
	}
	return ch.ID, nil
}

func (c *Client) RenameChannel(_ context.Context, channelID, name string) error {
	_, err := c.session.ChannelEdit(channelID, &discordgo.ChannelEdit{Name: name})
	return asGone(err)
}

func (c *Client) DeleteChannel(_ context.Context, channelID string) error {
	_, err := c.session.ChannelDelete(channelID)
	return asGone(err)
}

func (c *Client) ChannelName(_ context.Context, channelID string) (string, error) {
	if ch, err := c.session.State.Channel(channelID); err == nil {
		return ch.Name, nil
	}
	ch, err := c.session.Channel(channelID)
	if err != nil {
		return "", asGone(err)
	}
	return ch.Name, nil
}

func (c *Client) ChannelsInCategory(_ context.Context, categoryID string) ([]string, error) {
	channels, err := c.session.GuildChannels(c.guildID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, ch := range channels {
		if ch.ParentID == categoryID && ch.Type == discordgo.ChannelTypeGuildVoice {
			ids = append(ids, ch.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (c *Client) SetPermission(_ context.Context, channelID, principalID string, ow *platform.Overwrite) error {
	id, typ := c.principal(principalID)
	if ow == nil {
		return asGone(c.session.ChannelPermissionDelete(channelID, id))
	}
	allow, deny := overwriteBits(*ow)
	return asGone(c.session.ChannelPermissionSet(channelID, id, typ, allow, deny))
}

func (c *Client) DefaultConnectDenied(_ context.Context, channelID string) (bool, error) {
	ch, err := c.session.State.Channel(channelID)
	if err != nil {
		if ch, err = c.session.Channel(channelID); err != nil {
			return false, asGone(err)
		}
	}
	for _, ow := range ch.PermissionOverwrites {
		if ow.ID == c.guildID {
			return ow.Deny&discordgo.PermissionVoiceConnect != 0, nil
		}
	}
	return false, nil
}

func (c *Client) VoiceChannelMembers(_ context.Context, channelID string) ([]platform.Member, error) {
	guild, err := c.session.State.Guild(c.guildID)
	if err != nil {
		return nil, err
	}
	var out []platform.Member
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID != channelID {
			continue
		}
		out = append(out, c.member(vs.UserID))
	}
	return out, nil
}

func (c *Client) MemberVoiceChannel(_ context.Context, memberID string) (string, error) {
	guild, err := c.session.State.Guild(c.guildID)
	if err != nil {
		return "", err
	}
	for _, vs := range guild.VoiceStates {
		if vs.UserID == memberID {
			return vs.ChannelID, nil
		}
	}
	return "", nil
}

func (c *Client) MoveMember(_ context.Context, memberID, channelID string) error {
	return asGone(c.session.GuildMemberMove(c.guildID, memberID, &channelID))
}

func (c *Client) DisconnectMember(_ context.Context, memberID string) error {
	return asGone(c.session.GuildMemberMove(c.guildID, memberID, nil))
}

func (c *Client) AddRole(_ context.Context, memberID, roleID string) error {
	return asGone(c.session.GuildMemberRoleAdd(c.guildID, memberID, roleID))
}

func (c *Client) RemoveRole(_ context.Context, memberID, roleID string) error {
	return asGone(c.session.GuildMemberRoleRemove(c.guildID, memberID, roleID))
}

// MemberActivity returns the name of the game the member is playing, "" when
// idle or in a non-game activity.
func (c *Client) MemberActivity(_ context.Context, memberID string) (string, error) {
	presence, err := c.session.State.Presence(c.guildID, memberID)
	if err != nil {
		return "", nil
	}
	for _, act := range presence.Activities {
		if act.Type == discordgo.ActivityTypeGame {
			return act.Name, nil
		}
	}
	return "", nil
}

func (c *Client) MemberDisplayName(_ context.Context, memberID string) (string, error) {
	m, err := c.guildMember(memberID)
	if err != nil {
		return "", asGone(err)
	}
	return displayName(m), nil
}

func (c *Client) EditMemberNick(_ context.Context, memberID, nick string) error {
	return asGone(c.session.GuildMemberNickname(c.guildID, memberID, nick))
}

// HasPermission checks a guild-level permission. Administrators and the
// guild owner pass every check.
func (c *Client) HasPermission(_ context.Context, memberID string, perm string) (bool, error) {
	guild, err := c.session.State.Guild(c.guildID)
	if err != nil {
		return false, err
	}
	if guild.OwnerID == memberID {
		return true, nil
	}
	m, err := c.guildMember(memberID)
	if err != nil {
		return false, asGone(err)
	}
	var perms int64
	for _, roleID := range m.Roles {
		for _, role := range guild.Roles {
			if role.ID == roleID {
				perms |= role.Permissions
			}
		}
	}
	if perms&discordgo.PermissionAdministrator != 0 {
		return true, nil
	}
	bit, ok := permissionBits[perm]
	if !ok {
		return false, fmt.Errorf("unknown permission %q", perm)
	}
	return perms&bit != 0, nil
}

var permissionBits = map[string]int64{
	platform.PermKickMembers:    discordgo.PermissionKickMembers,
	platform.PermBanMembers:     discordgo.PermissionBanMembers,
	platform.PermManageMessages: discordgo.PermissionManageMessages,
	platform.PermAdministrator:  discordgo.PermissionAdministrator,
}

func (c *Client) KickMember(_ context.Context, memberID, reason string) error {
	return asGone(c.session.GuildMemberDeleteWithReason(c.guildID, memberID, reason))
}

func (c *Client) BanMember(_ context.Context, memberID, reason string) error {
	return asGone(c.session.GuildBanCreateWithReason(c.guildID, memberID, reason, 0))
}

// UnbanMember resolves a ban by user tag ("name" or "name#discriminator").
func (c *Client) UnbanMember(_ context.Context, userTag string) error {
	bans, err := c.session.GuildBans(c.guildID, 1000, "", "")
	if err != nil {
		return err
	}
	name, _, _ := strings.Cut(userTag, "#")
	for _, ban := range bans {
		if ban.User.Username == name || ban.User.String() == userTag {
			return asGone(c.session.GuildBanDelete(c.guildID, ban.User.ID))
		}
	}
	return platform.ErrGone
}

func (c *Client) PurgeMessages(_ context.Context, channelID string, limit int, memberID string) (int, error) {
	msgs, err := c.session.ChannelMessages(channelID, limit, "", "", "")
	if err != nil {
		return 0, asGone(err)
	}
	var ids []string
	for _, msg := range msgs {
		if memberID != "" && (msg.Author == nil || msg.Author.ID != memberID) {
			continue
		}
		ids = append(ids, msg.ID)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := c.session.ChannelMessagesBulkDelete(channelID, ids); err != nil {
		return 0, asGone(err)
	}
	return len(ids), nil
}

func (c *Client) SendMessage(_ context.Context, channelID, content string) error {
	_, err := c.session.ChannelMessageSend(channelID, content)
	return asGone(err)
}

func (c *Client) SetPresence(_ context.Context, kind, name string) error {
	typ := discordgo.ActivityTypeGame
	switch kind {
	case platform.PresenceListening:
		typ = discordgo.ActivityTypeListening
	case platform.PresenceWatching:
		typ = discordgo.ActivityTypeWatching
	}
	return c.session.UpdateStatusComplex(discordgo.UpdateStatusData{
		Activities: []*discordgo.Activity{{Name: name, Type: typ}},
	})
}

// Presence counts members by status, bots excluded.
func (c *Client) Presence(_ context.Context) (platform.PresenceCounts, error) {
	guild, err := c.session.State.Guild(c.guildID)
	if err != nil {
		return platform.PresenceCounts{}, err
	}
	var counts platform.PresenceCounts
	for _, m := range guild.Members {
		if m.User != nil && m.User.Bot {
			continue
		}
		counts.Total++
	}
	for _, p := range guild.Presences {
		if p.User == nil {
			continue
		}
		if m, err := c.session.State.Member(c.guildID, p.User.ID); err == nil && m.User != nil && m.User.Bot {
			continue
		}
		switch p.Status {
		case discordgo.StatusOnline:
			counts.Online++
		case discordgo.StatusDoNotDisturb:
			counts.DND++
		case discordgo.StatusIdle:
			counts.Idle++
		}
	}
	return counts, nil
}

// guildMember reads a member from the state cache, falling back to the API.
func (c *Client) guildMember(memberID string) (*discordgo.Member, error) {
	if m, err := c.session.State.Member(c.guildID, memberID); err == nil {
		return m, nil
	}
	return c.session.GuildMember(c.guildID, memberID)
}

// member builds a platform.Member, tolerating cache misses.
func (c *Client) member(memberID string) platform.Member {
	m, err := c.guildMember(memberID)
	if err != nil {
		return platform.Member{ID: memberID}
	}
	return platform.Member{ID: memberID, DisplayName: displayName(m), Bot: m.User != nil && m.User.Bot}
}

func displayName(m *discordgo.Member) string {
	if m.Nick != "" {
		return m.Nick
	}
	if m.User == nil {
		return ""
	}
	if m.User.GlobalName != "" {
		return m.User.GlobalName
	}
	return m.User.Username
}
