// Package platform defines the chat-platform collaborator consumed by the
// bot. The gateway, room manager and activity ledger only ever talk to this
// interface; the discord subpackage implements it against the live platform
// and platformtest provides an in-memory fake.
package platform

import (
	"context"
	"errors"
)

// ErrGone reports that the target entity (channel, member, role) vanished
// concurrently. Cleanup paths treat it as success.
var ErrGone = errors.New("platform: entity gone")

// DefaultPrincipal is the overwrite principal standing for the guild-wide
// "everyone" role.
const DefaultPrincipal = "everyone"

// Member is a guild member as seen through the platform.
type Member struct {
	ID          string
	DisplayName string
	Bot         bool
}

// Overwrite is a per-principal permission overwrite on a channel. Nil fields
// leave the permission inherited.
type Overwrite struct {
	Connect      *bool
	Speak        *bool
	SendMessages *bool
	ManageRoom   *bool
}

// Allow and Deny are shorthands for overwrite fields.
func Allow() *bool { v := true; return &v }
func Deny() *bool  { v := false; return &v }

// LeaderOverwrite grants full room management rights.
func LeaderOverwrite() Overwrite {
	return Overwrite{Connect: Allow(), ManageRoom: Allow()}
}

// PresenceCounts is a snapshot of member presence in the guild, bots excluded.
type PresenceCounts struct {
	Total   int
	Online  int
	DND     int
	Idle    int
}

// Platform is the side-effecting API of the chat platform. Implementations
// handle their own timeouts and retries; callers treat every call as a
// suspension point.
type Platform interface {
	// Channels.
	CreateVoiceChannel(ctx context.Context, categoryID, name string, overwrites map[string]Overwrite) (string, error)
	RenameChannel(ctx context.Context, channelID, name string) error
	DeleteChannel(ctx context.Context, channelID string) error
	ChannelName(ctx context.Context, channelID string) (string, error)
	ChannelsInCategory(ctx context.Context, categoryID string) ([]string, error)

	// Permission overwrites. A nil overwrite clears the principal's entry.
	SetPermission(ctx context.Context, channelID, principalID string, ow *Overwrite) error
	DefaultConnectDenied(ctx context.Context, channelID string) (bool, error)

	// Voice.
	VoiceChannelMembers(ctx context.Context, channelID string) ([]Member, error)
	MemberVoiceChannel(ctx context.Context, memberID string) (string, error) // "" when not connected
	MoveMember(ctx context.Context, memberID, channelID string) error
	DisconnectMember(ctx context.Context, memberID string) error

	// Members and roles.
	AddRole(ctx context.Context, memberID, roleID string) error
	RemoveRole(ctx context.Context, memberID, roleID string) error
	MemberActivity(ctx context.Context, memberID string) (string, error)
	MemberDisplayName(ctx context.Context, memberID string) (string, error)
	EditMemberNick(ctx context.Context, memberID, nick string) error
	HasPermission(ctx context.Context, memberID string, perm string) (bool, error)

	// Moderation.
	KickMember(ctx context.Context, memberID, reason string) error
	BanMember(ctx context.Context, memberID, reason string) error
	UnbanMember(ctx context.Context, userTag string) error
	PurgeMessages(ctx context.Context, channelID string, limit int, memberID string) (int, error)

	// Messaging and presence.
	SendMessage(ctx context.Context, channelID, content string) error
	SetPresence(ctx context.Context, kind, name string) error
	Presence(ctx context.Context) (PresenceCounts, error)
}

// Moderation permission names checked through HasPermission.
const (
	PermKickMembers    = "kick_members"
	PermBanMembers     = "ban_members"
	PermManageMessages = "manage_messages"
	PermAdministrator  = "administrator"
)

// Presence activity kinds accepted by SetPresence.
const (
	PresencePlaying   = "playing"
	PresenceListening = "listening"
	PresenceWatching  = "watching"
)
