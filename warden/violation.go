package warden

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
)

// Violation is a single recorded rule violation. Rows are append-only;
// they're only ever removed by an explicit reset for a (guild, user) pair.
type Violation struct {
	ModelUintID
	ModelUnixTime
	GuildID   string `json:"guild_id" gorm:"index:idx_violation_guild_user;not null"`
	UserID    string `json:"user_id" gorm:"index:idx_violation_guild_user;not null"`
	RuleID    string `json:"rule_id" gorm:"not null"`
	RuleName  string `json:"rule_name"`
	Severity  int    `json:"severity"`
	ChannelID string `json:"channel_id"`
	// Timestamp is when the offending message was seen, as Unix
	// milliseconds. Kept distinct from CreatedAt so the enforcement
	// time survives any backfill or migration.
	Timestamp int64 `json:"timestamp" gorm:"not null"`
}

func (Violation) TableName() string {
	return "violations"
}

// Time returns the violation timestamp as a UTC time.
func (v Violation) Time() time.Time {
	return time.UnixMilli(v.Timestamp).UTC()
}

// WarningCount tracks profanity-filter warnings for a user in a guild.
// This is intentionally separate from Violation: the word filter keeps a
// flat, unwindowed counter with its own timeout threshold.
type WarningCount struct {
	ModelUintID
	ModelUnixTime
	GuildID string `json:"guild_id" gorm:"index:idx_warning_guild_user;not null"`
	UserID  string `json:"user_id" gorm:"index:idx_warning_guild_user;not null"`
	Count   int    `json:"count" gorm:"not null;default:0"`
}

func (WarningCount) TableName() string {
	return "warning_counts"
}

// ViolationStore records and queries rule violations and profanity
// warning counts. All writes go through the shared write DB so that
// sqlite access stays serialized.
type ViolationStore struct {
	db      DBI
	logger  *slog.Logger
	nowFunc func() time.Time
}

func newViolationStore(db DBI, logger *slog.Logger) *ViolationStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ViolationStore{
		db:      db,
		logger:  logger.With(loggerNameKey, "violation_store"),
		nowFunc: func() time.Time { return time.Now().UTC() },
	}
}

// AddViolation appends a violation record and returns the user's new
// all-time violation count for the guild. The count and the insert happen
// in one transaction so concurrent events can't observe a partial write.
func (s *ViolationStore) AddViolation(
	ctx context.Context,
	guildID string,
	userID string,
	rule Rule,
	channelID string,
) (int64, error) {
	if guildID == "" || userID == "" {
		return 0, errors.New("guild ID and user ID are required")
	}
	violation := Violation{
		GuildID:   guildID,
		UserID:    userID,
		RuleID:    rule.ID,
		RuleName:  rule.Name,
		Severity:  rule.Severity,
		ChannelID: channelID,
		Timestamp: s.nowFunc().UnixMilli(),
	}
	var count int64
	err := s.db.Transaction(
		ctx, func(tx *gorm.DB) error {
			if err := tx.Create(&violation).Error; err != nil {
				return fmt.Errorf("error creating violation: %w", err)
			}
			rv := tx.Model(&Violation{}).Where(
				"guild_id = ? AND user_id = ?", guildID, userID,
			).Count(&count)
			return rv.Error
		},
	)
	if err != nil {
		return 0, err
	}
	s.logger.InfoContext(
		ctx,
		"recorded violation",
		"guild_id", guildID,
		"user_id", userID,
		"rule_id", rule.ID,
		"total_count", count,
	)
	return count, nil
}

// RecentViolations returns violations for the user newer than the given
// window, most recent first. A violation exactly `window` old is excluded.
func (s *ViolationStore) RecentViolations(
	ctx context.Context,
	guildID string,
	userID string,
	window time.Duration,
) ([]Violation, error) {
	cutoff := s.nowFunc().Add(-window).UnixMilli()
	var violations []Violation
	err := s.db.DB().WithContext(ctx).Where(
		"guild_id = ? AND user_id = ? AND timestamp > ?",
		guildID,
		userID,
		cutoff,
	).Order("timestamp desc").Find(&violations).Error
	if err != nil {
		return nil, err
	}
	return violations, nil
}

// Count returns the all-time violation count for the user in the guild.
func (s *ViolationStore) Count(
	ctx context.Context,
	guildID string,
	userID string,
) (int64, error) {
	var count int64
	err := s.db.DB().WithContext(ctx).Model(&Violation{}).Where(
		"guild_id = ? AND user_id = ?", guildID, userID,
	).Count(&count).Error
	return count, err
}

// ResetViolations deletes all violations for the user in the guild.
// Returns false if there was nothing to delete.
func (s *ViolationStore) ResetViolations(
	ctx context.Context,
	guildID string,
	userID string,
) (bool, error) {
	s.db.Lock()
	defer s.db.Unlock()
	rv := s.db.DB().WithContext(ctx).Where(
		"guild_id = ? AND user_id = ?", guildID, userID,
	).Delete(&Violation{})
	if rv.Error != nil {
		return false, rv.Error
	}
	s.logger.InfoContext(
		ctx,
		"reset violations",
		"guild_id", guildID,
		"user_id", userID,
		"deleted", rv.RowsAffected,
	)
	return rv.RowsAffected > 0, nil
}

// IncrementWarning bumps the profanity warning counter for the user and
// returns the new count.
func (s *ViolationStore) IncrementWarning(
	ctx context.Context,
	guildID string,
	userID string,
) (int, error) {
	var newCount int
	err := s.db.Transaction(
		ctx, func(tx *gorm.DB) error {
			var wc WarningCount
			rv := tx.Where(
				"guild_id = ? AND user_id = ?", guildID, userID,
			).Limit(1).Find(&wc)
			if rv.Error != nil {
				return rv.Error
			}
			if rv.RowsAffected == 0 {
				wc = WarningCount{GuildID: guildID, UserID: userID, Count: 1}
				newCount = 1
				return tx.Create(&wc).Error
			}
			wc.Count++
			newCount = wc.Count
			return tx.Model(&wc).Update("count", wc.Count).Error
		},
	)
	if err != nil {
		return 0, err
	}
	return newCount, nil
}

// WarningCountFor returns the current profanity warning count, zero when
// the user has no record.
func (s *ViolationStore) WarningCountFor(
	ctx context.Context,
	guildID string,
	userID string,
) (int, error) {
	var wc WarningCount
	rv := s.db.DB().WithContext(ctx).Where(
		"guild_id = ? AND user_id = ?", guildID, userID,
	).Limit(1).Find(&wc)
	if rv.Error != nil {
		return 0, rv.Error
	}
	return wc.Count, nil
}

// ResetWarnings zeroes the profanity warning counter. Returns false if the
// user had no warnings to clear.
func (s *ViolationStore) ResetWarnings(
	ctx context.Context,
	guildID string,
	userID string,
) (bool, error) {
	s.db.Lock()
	defer s.db.Unlock()
	rv := s.db.DB().WithContext(ctx).Model(&WarningCount{}).Where(
		"guild_id = ? AND user_id = ? AND count > 0", guildID, userID,
	).Update("count", 0)
	if rv.Error != nil {
		return false, rv.Error
	}
	return rv.RowsAffected > 0, nil
}
