// Package config provides configuration types and loading for tavernier.
package config

import (
	"time"
)

// Config is the root configuration struct.
// Top-level groups: Bot, Storage, Activity, Rooms, Leaderboard, Status,
// Infochannels, Welcome, Audit.
type Config struct {
	Bot          BotConfig          `json:"bot"`
	Storage      StorageConfig      `json:"storage"`
	Activity     ActivityConfig     `json:"activity"`
	Rooms        RoomsConfig        `json:"rooms"`
	Leaderboard  LeaderboardConfig  `json:"leaderboard"`
	Status       StatusConfig       `json:"status"`
	Infochannels InfochannelsConfig `json:"infochannels"`
	Welcome      WelcomeConfig      `json:"welcome"`
	Audit        AuditConfig        `json:"audit"`
}

// BotConfig groups platform connection settings.
type BotConfig struct {
	Token             string `json:"token" envconfig:"TOKEN"`
	GuildID           string `json:"guildId" envconfig:"GUILD_ID"`
	OperatorChannelID string `json:"operatorChannelId" envconfig:"OPERATOR_CHANNEL_ID"`
	MutedRoleID       string `json:"mutedRoleId" envconfig:"MUTED_ROLE_ID"`
	BotRoleID         string `json:"botRoleId" envconfig:"BOT_ROLE_ID"`
}

// StorageConfig groups persistence settings.
type StorageConfig struct {
	DBPath string `json:"dbPath" envconfig:"DB_PATH"`
}

// ActivityConfig groups the weekly voice-activity progression settings.
//
// LevelThresholds[i] is the accumulated voice time required for level i;
// index 0 is always zero. LevelRoles maps a level to the role granted at
// that level; levels without an entry produce no role mutation.
type ActivityConfig struct {
	WeekStartDay    int               `json:"weekStartDay" envconfig:"WEEK_START_DAY"` // time.Weekday, 0 = Sunday
	Timezone        string            `json:"timezone" envconfig:"TIMEZONE"`
	LevelThresholds []time.Duration   `json:"levelThresholds"`
	LevelRoles      map[int]string    `json:"levelRoles"`
}

// Weekday returns the configured week start day.
func (c ActivityConfig) Weekday() time.Weekday {
	return time.Weekday(c.WeekStartDay)
}

// Location resolves the configured timezone, falling back to UTC.
func (c ActivityConfig) Location() *time.Location {
	if loc, err := time.LoadLocation(c.Timezone); err == nil {
		return loc
	}
	return time.UTC
}

// RoomsConfig groups the ephemeral voice-room settings.
type RoomsConfig struct {
	RedirectChannelID string        `json:"redirectChannelId" envconfig:"REDIRECT_CHANNEL_ID"`
	CategoryID        string        `json:"categoryId" envconfig:"CATEGORY_ID"`
	SoloGrace         time.Duration `json:"soloGrace" envconfig:"SOLO_GRACE"`
}

// LeaderboardConfig groups the periodic leaderboard post.
type LeaderboardConfig struct {
	ChannelID string `json:"channelId" envconfig:"CHANNEL_ID"`
	Cron      string `json:"cron" envconfig:"CRON"`
	Limit     int    `json:"limit" envconfig:"LIMIT"`
}

// StatusEntry is one rotating bot presence.
type StatusEntry struct {
	Kind string `json:"kind"` // playing, listening, watching
	Name string `json:"name"`
}

// StatusConfig groups the cosmetic status rotation.
type StatusConfig struct {
	Enabled  bool          `json:"enabled" envconfig:"ENABLED"`
	Interval time.Duration `json:"interval" envconfig:"INTERVAL"`
	Entries  []StatusEntry `json:"entries"`
}

// InfochannelsConfig groups the member/online counter channels.
type InfochannelsConfig struct {
	MembersChannelID string `json:"membersChannelId" envconfig:"MEMBERS_CHANNEL_ID"`
	OnlinesChannelID string `json:"onlinesChannelId" envconfig:"ONLINES_CHANNEL_ID"`
	Cron             string `json:"cron" envconfig:"CRON"`
}

// WelcomeConfig groups the member-join welcome message.
type WelcomeConfig struct {
	ChannelID string `json:"channelId" envconfig:"CHANNEL_ID"`
}

// AuditConfig groups the optional Kafka audit-event export.
type AuditConfig struct {
	Enabled bool     `json:"enabled" envconfig:"ENABLED"`
	Brokers []string `json:"brokers"`
	Topic   string   `json:"topic" envconfig:"TOPIC"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DBPath: "", // resolved next to the config file when empty
		},
		Activity: ActivityConfig{
			WeekStartDay: int(time.Monday),
			Timezone:     "Europe/Paris",
			LevelThresholds: []time.Duration{
				0,
				2 * time.Hour,
				5 * time.Hour,
				10 * time.Hour,
				20 * time.Hour,
			},
			LevelRoles: map[int]string{},
		},
		Rooms: RoomsConfig{
			SoloGrace: 10 * time.Minute,
		},
		Leaderboard: LeaderboardConfig{
			Cron:  "0 18 * * 0", // Sunday evening
			Limit: 10,
		},
		Status: StatusConfig{
			Enabled:  true,
			Interval: 20 * time.Second,
		},
		Infochannels: InfochannelsConfig{
			Cron: "*/2 * * * *",
		},
		Audit: AuditConfig{
			Topic: "tavernier-audit",
		},
	}
}
