package warden

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GuildConfig holds per-guild moderation settings. A row is created with
// defaults the first time a guild is seen, cached in memory, and persisted
// on every mutation.
type GuildConfig struct {
	ModelUnixTime
	GuildID string `json:"guild_id" gorm:"primaryKey"`

	RulesEnabled        bool `json:"rules_enabled" gorm:"default:true"`
	FilterEnabled       bool `json:"filter_enabled" gorm:"default:true"`
	AIModerationEnabled bool `json:"ai_moderation_enabled" gorm:"default:false"`

	// ToxicityThreshold is the minimum moderation-endpoint score that
	// triggers enforcement, 0 < t <= 1.
	ToxicityThreshold float64 `json:"toxicity_threshold" gorm:"default:0.85" binding:"omitempty,gt=0,lte=1"`

	// SpamMentionLimit is the number of user/role mentions in a single
	// message considered a mention flood.
	SpamMentionLimit int `json:"spam_mention_limit" gorm:"default:8" binding:"omitempty,gt=0"`

	// WarningThreshold is the profanity warning count that triggers an
	// automatic timeout.
	WarningThreshold int `json:"warning_threshold" gorm:"default:3" binding:"omitempty,gt=0"`

	// TimeoutDuration is how long a user is timed out after hitting
	// WarningThreshold.
	TimeoutDuration Duration `json:"timeout_duration"`

	// Severity2DeleteFirstOffense removes the first-offense leniency
	// for severity-2 rules, deleting the message even on a user's first
	// violation.
	Severity2DeleteFirstOffense bool `json:"severity2_delete_first_offense"`

	// ModLogChannelID overrides the name-based mod-log channel lookup.
	ModLogChannelID string `json:"mod_log_channel_id"`

	// BlockedWords holds additional filtered words for this guild,
	// newline-joined, merged with the built-in list.
	BlockedWords string `json:"blocked_words"`

	// BlockedDomains holds domains treated as spam links,
	// newline-joined.
	BlockedDomains string `json:"blocked_domains"`
}

func (GuildConfig) TableName() string {
	return "guild_configs"
}

// BlockedWordList returns the guild's extra filtered words.
func (g GuildConfig) BlockedWordList() []string {
	return splitConfigList(g.BlockedWords)
}

// BlockedDomainList returns the guild's blocked domains.
func (g GuildConfig) BlockedDomainList() []string {
	return splitConfigList(g.BlockedDomains)
}

func splitConfigList(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func defaultGuildConfig(guildID string) GuildConfig {
	return GuildConfig{
		GuildID:           guildID,
		RulesEnabled:      true,
		FilterEnabled:     true,
		ToxicityThreshold: DefaultToxicityThreshold,
		SpamMentionLimit:  DefaultSpamMentionLimit,
		WarningThreshold:  DefaultWarningThreshold,
		TimeoutDuration:   Duration{DefaultTimeoutDuration},
	}
}

// guildEntry pairs a cached config with the word filter compiled from it.
type guildEntry struct {
	config GuildConfig
	filter *WordFilter
}

// GuildConfigCache is the in-memory cache of guild configs, loaded at
// startup and refreshed on mutation or notifier signal.
type GuildConfigCache struct {
	mu      sync.RWMutex
	entries map[string]*guildEntry
	db      DBI
	logger  *slog.Logger
}

func newGuildConfigCache(db DBI, logger *slog.Logger) *GuildConfigCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &GuildConfigCache{
		entries: map[string]*guildEntry{},
		db:      db,
		logger:  logger.With(loggerNameKey, "guild_config"),
	}
}

// LoadAll populates the cache from the database.
func (c *GuildConfigCache) LoadAll(ctx context.Context) error {
	var configs []GuildConfig
	if err := c.db.DB().WithContext(ctx).Find(&configs).Error; err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cfg := range configs {
		entry, err := newGuildEntry(cfg)
		if err != nil {
			c.logger.Error(
				"error compiling guild word filter, using defaults",
				"guild_id", cfg.GuildID,
				tint.Err(err),
			)
			continue
		}
		c.entries[cfg.GuildID] = entry
	}
	c.logger.InfoContext(ctx, "loaded guild configs", "count", len(c.entries))
	return nil
}

func newGuildEntry(cfg GuildConfig) (*guildEntry, error) {
	filter, err := NewWordFilter(cfg.BlockedWordList())
	if err != nil {
		return nil, err
	}
	return &guildEntry{config: cfg, filter: filter}, nil
}

// Get returns the config for a guild, creating and persisting a default
// row if the guild hasn't been seen before.
func (c *GuildConfigCache) Get(
	ctx context.Context,
	guildID string,
) (GuildConfig, error) {
	c.mu.RLock()
	entry, ok := c.entries[guildID]
	c.mu.RUnlock()
	if ok {
		return entry.config, nil
	}

	cfg := defaultGuildConfig(guildID)
	// FirstOrCreate so two racing gateway events don't both insert.
	err := c.db.Transaction(
		ctx, func(tx *gorm.DB) error {
			return tx.Where(
				GuildConfig{GuildID: guildID},
			).FirstOrCreate(&cfg).Error
		},
	)
	if err != nil {
		return cfg, err
	}
	entry, entryErr := newGuildEntry(cfg)
	if entryErr != nil {
		return cfg, entryErr
	}
	c.mu.Lock()
	c.entries[guildID] = entry
	c.mu.Unlock()
	c.logger.InfoContext(ctx, "initialized guild config", "guild_id", guildID)
	return cfg, nil
}

// Filter returns the compiled word filter for a guild. Guilds without a
// cached entry get the built-in defaults.
func (c *GuildConfigCache) Filter(guildID string) *WordFilter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if entry, ok := c.entries[guildID]; ok {
		return entry.filter
	}
	return defaultWordFilter
}

// Save persists the config and replaces the cached entry, recompiling the
// guild's word filter.
func (c *GuildConfigCache) Save(
	ctx context.Context,
	cfg GuildConfig,
) error {
	entry, err := newGuildEntry(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().UnixMilli()
	cfg.UpdatedAt = now
	entry.config = cfg
	if _, err = c.db.Save(ctx, &cfg); err != nil {
		return err
	}
	c.mu.Lock()
	c.entries[cfg.GuildID] = entry
	c.mu.Unlock()
	c.logger.InfoContext(ctx, "saved guild config", "guild_id", cfg.GuildID)
	return nil
}

// Refresh reloads a single guild's config from the database, dropping the
// cached entry if the row has been deleted.
func (c *GuildConfigCache) Refresh(ctx context.Context, guildID string) error {
	var cfg GuildConfig
	rv := c.db.DB().WithContext(ctx).Where(
		"guild_id = ?", guildID,
	).Limit(1).Find(&cfg)
	if rv.Error != nil {
		return rv.Error
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if rv.RowsAffected == 0 {
		delete(c.entries, guildID)
		return nil
	}
	entry, err := newGuildEntry(cfg)
	if err != nil {
		return err
	}
	c.entries[guildID] = entry
	return nil
}

// All returns a snapshot of every cached guild config.
func (c *GuildConfigCache) All() []GuildConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	configs := make([]GuildConfig, 0, len(c.entries))
	for _, entry := range c.entries {
		configs = append(configs, entry.config)
	}
	return configs
}

// upsertClause is the ON CONFLICT clause used when seeding configs in bulk.
var upsertClause = clause.OnConflict{
	Columns:   []clause.Column{{Name: "guild_id"}},
	DoNothing: true,
}

// SeedGuilds inserts default config rows for guilds the bot is already a
// member of, skipping any that exist.
func (c *GuildConfigCache) SeedGuilds(
	ctx context.Context,
	guildIDs []string,
) error {
	if len(guildIDs) == 0 {
		return nil
	}
	configs := make([]GuildConfig, 0, len(guildIDs))
	for _, id := range guildIDs {
		configs = append(configs, defaultGuildConfig(id))
	}
	err := c.db.Transaction(
		ctx, func(tx *gorm.DB) error {
			return tx.Clauses(upsertClause).Create(&configs).Error
		},
	)
	if err != nil {
		return err
	}
	return c.LoadAll(ctx)
}
