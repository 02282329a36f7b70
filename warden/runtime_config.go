package warden

import (
	"log/slog"
)

// RuntimeConfig is configuration that can be changed while the bot is
// running, via the admin API. A single row lives in the `config` table;
// instances reload it on notifier signal.
type RuntimeConfig struct {
	ModelUintID
	ModelUnixTime

	// Paused stops all moderation enforcement without disconnecting
	// the gateway. Messages are still logged.
	Paused bool `json:"paused" gorm:"default:false"`

	// DiscordCustomStatus sets the bot's custom status
	DiscordCustomStatus string `json:"discord_custom_status" gorm:"type:string"`

	// NotificationChannelID is an optional channel to announce
	// startup/shutdown in.
	NotificationChannelID string `json:"notification_channel_id"`

	// AdminUsername is the username for the admin API. If this and
	// AdminPassword are empty, the admin API effectively disables
	// logins.
	AdminUsername string `json:"admin_username" gorm:"type:string"`

	// AdminPassword is the argon2 hash of the admin API password.
	AdminPassword string `json:"admin_password" gorm:"type:string" log:"[redacted]"`

	// LogLevel sets the base log level for the bot
	LogLevel DBLogLevel `json:"log_level" gorm:"type:string" binding:"omitempty,oneof=DEBUG INFO WARN ERROR"`

	// DiscordLogLevel sets the log level for discord-related operations
	DiscordLogLevel DBLogLevel `json:"discord_log_level" gorm:"type:string" binding:"omitempty,oneof=DEBUG INFO WARN ERROR"`

	// APILogLevel sets the log level for the admin API
	APILogLevel DBLogLevel `json:"api_log_level" gorm:"type:string" binding:"omitempty,oneof=DEBUG INFO WARN ERROR"`

	// DatabaseLogLevel sets the log level for database operations
	DatabaseLogLevel DBLogLevel `json:"database_log_level" gorm:"type:string" binding:"omitempty,oneof=DEBUG INFO WARN ERROR"`

	// OpenAILogLevel sets the log level for moderation API calls
	OpenAILogLevel DBLogLevel `json:"openai_log_level" gorm:"type:string" binding:"omitempty,oneof=DEBUG INFO WARN ERROR"`

	// OpenAIMaxRequestsPerSecond overrides the startup limit on moderation
	// API calls. Zero leaves the configured limit in place.
	OpenAIMaxRequestsPerSecond float64 `json:"openai_max_requests_per_second" gorm:"column:openai_max_requests_per_second;default:0" binding:"omitempty,gte=0"`
}

func (RuntimeConfig) TableName() string {
	return "config"
}

// LogValue implements slog.LogValuer, redacting the password hash.
func (c RuntimeConfig) LogValue() slog.Value {
	return structToSlogValue(c)
}

// DefaultRuntimeConfig returns a RuntimeConfig with sane defaults. Used
// when no row exists yet.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		Paused:              false,
		DiscordCustomStatus: DefaultDiscordCustomStatus,
		LogLevel:            DBLogLevelInfo,
		DiscordLogLevel:     DBLogLevelInfo,
		APILogLevel:         DBLogLevelInfo,
		DatabaseLogLevel:    DBLogLevelWarn,
		OpenAILogLevel:      DBLogLevelInfo,
	}
}

// RuntimeConfigUpdate is the admin API payload for updating
// [RuntimeConfig]. Pointer fields distinguish "not provided" from zero
// values.
type RuntimeConfigUpdate struct {
	Paused                     *bool       `json:"paused,omitempty"`
	DiscordCustomStatus        *string     `json:"discord_custom_status,omitempty"`
	NotificationChannelID      *string     `json:"notification_channel_id,omitempty"`
	LogLevel                   *DBLogLevel `json:"log_level,omitempty" binding:"omitempty,oneof=DEBUG INFO WARN ERROR"`
	DiscordLogLevel            *DBLogLevel `json:"discord_log_level,omitempty" binding:"omitempty,oneof=DEBUG INFO WARN ERROR"`
	APILogLevel                *DBLogLevel `json:"api_log_level,omitempty" binding:"omitempty,oneof=DEBUG INFO WARN ERROR"`
	DatabaseLogLevel           *DBLogLevel `json:"database_log_level,omitempty" binding:"omitempty,oneof=DEBUG INFO WARN ERROR"`
	OpenAILogLevel             *DBLogLevel `json:"openai_log_level,omitempty" binding:"omitempty,oneof=DEBUG INFO WARN ERROR"`
	OpenAIMaxRequestsPerSecond *float64    `json:"openai_max_requests_per_second,omitempty" binding:"omitempty,gte=0"`
}

// apply copies the provided fields onto an existing config and returns
// the column/value map for the DB update.
func (u RuntimeConfigUpdate) apply(cfg *RuntimeConfig) map[string]any {
	updates := map[string]any{}
	if u.Paused != nil {
		cfg.Paused = *u.Paused
		updates["paused"] = *u.Paused
	}
	if u.DiscordCustomStatus != nil {
		cfg.DiscordCustomStatus = *u.DiscordCustomStatus
		updates["discord_custom_status"] = *u.DiscordCustomStatus
	}
	if u.NotificationChannelID != nil {
		cfg.NotificationChannelID = *u.NotificationChannelID
		updates["notification_channel_id"] = *u.NotificationChannelID
	}
	if u.LogLevel != nil {
		cfg.LogLevel = *u.LogLevel
		updates["log_level"] = *u.LogLevel
	}
	if u.DiscordLogLevel != nil {
		cfg.DiscordLogLevel = *u.DiscordLogLevel
		updates["discord_log_level"] = *u.DiscordLogLevel
	}
	if u.APILogLevel != nil {
		cfg.APILogLevel = *u.APILogLevel
		updates["api_log_level"] = *u.APILogLevel
	}
	if u.DatabaseLogLevel != nil {
		cfg.DatabaseLogLevel = *u.DatabaseLogLevel
		updates["database_log_level"] = *u.DatabaseLogLevel
	}
	if u.OpenAILogLevel != nil {
		cfg.OpenAILogLevel = *u.OpenAILogLevel
		updates["openai_log_level"] = *u.OpenAILogLevel
	}
	if u.OpenAIMaxRequestsPerSecond != nil {
		cfg.OpenAIMaxRequestsPerSecond = *u.OpenAIMaxRequestsPerSecond
		updates["openai_max_requests_per_second"] = *u.OpenAIMaxRequestsPerSecond
	}
	return updates
}
