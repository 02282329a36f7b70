package warden

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

// modLogChannelNames is the name preference order used to find a guild's
// moderation log channel when no explicit override is configured.
var modLogChannelNames = []string{"mod-logs", "logs"}

// dmFallbackNoticeTTL is how long the in-channel warning notice lives when
// a user can't be DMed.
const dmFallbackNoticeTTL = 15 * time.Second

var (
	// ErrPermissionDenied indicates the bot lacks the Discord permission
	// for the attempted operation.
	ErrPermissionDenied = errors.New("missing permissions")

	// ErrCannotDM indicates the target user does not accept direct
	// messages from the bot.
	ErrCannotDM = errors.New("cannot send direct message to user")
)

// discordErrKind maps discordgo REST errors onto sentinel errors so
// callers can distinguish permission failures from transient ones.
func discordErrKind(err error) error {
	if err == nil {
		return nil
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Message != nil {
		switch restErr.Message.Code {
		case discordgo.ErrCodeMissingPermissions, discordgo.ErrCodeMissingAccess:
			return fmt.Errorf("%w: %s", ErrPermissionDenied, restErr.Message.Message)
		case discordgo.ErrCodeCannotSendMessagesToThisUser:
			return fmt.Errorf("%w: %s", ErrCannotDM, restErr.Message.Message)
		}
	}
	return err
}

// ModerationActionLog records every executed enforcement step outcome for
// the admin API and mod-log embeds.
type ModerationActionLog struct {
	ModelUintID
	ModelUnixTime
	GuildID    string           `json:"guild_id" gorm:"index;not null"`
	UserID     string           `json:"user_id" gorm:"index;not null"`
	ChannelID  string           `json:"channel_id"`
	MessageID  string           `json:"message_id"`
	RuleID     string           `json:"rule_id"`
	RuleName   string           `json:"rule_name"`
	Action     ModerationAction `json:"action"`
	Content    string           `json:"content"`
	Deleted    bool             `json:"deleted"`
	UserWarned bool             `json:"user_warned"`
	ModAlerted bool             `json:"mod_alerted"`
	TimedOut   bool             `json:"timed_out"`
	Detail     string           `json:"detail"`
}

func (ModerationActionLog) TableName() string {
	return "moderation_action_logs"
}

// enforcementRequest carries everything the executor needs about the
// offending message.
type enforcementRequest struct {
	GuildID     string
	ChannelID   string
	MessageID   string
	UserID      string
	Username    string
	Content     string
	Rule        Rule
	Action      ModerationAction
	RecentCount int64
	Reason      string
}

// ActionExecutor performs the Discord side effects for a moderation
// decision. Each step is independently failure-isolated: a failed delete
// doesn't stop the warning, a blocked DM falls back to a channel notice,
// and there are no retries.
type ActionExecutor struct {
	session DiscordSessionHandler
	db      DBI
	config  *GuildConfigCache
	logger  *slog.Logger
}

func newActionExecutor(
	session DiscordSessionHandler,
	db DBI,
	config *GuildConfigCache,
	logger *slog.Logger,
) *ActionExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &ActionExecutor{
		session: session,
		db:      db,
		config:  config,
		logger:  logger.With(loggerNameKey, "executor"),
	}
}

// Execute carries out the decided action. It always returns an action log
// row describing what actually happened; errors from individual steps are
// logged and recorded, never propagated as a failure of the whole.
func (e *ActionExecutor) Execute(
	ctx context.Context,
	req enforcementRequest,
) ModerationActionLog {
	logger, ok := ContextLogger(ctx)
	if !ok || logger == nil {
		logger = e.logger
	}
	logger = logger.With(
		"guild_id", req.GuildID,
		"user_id", req.UserID,
		"rule_id", req.Rule.ID,
		"action", req.Action,
	)

	entry := ModerationActionLog{
		GuildID:   req.GuildID,
		UserID:    req.UserID,
		ChannelID: req.ChannelID,
		MessageID: req.MessageID,
		RuleID:    req.Rule.ID,
		RuleName:  req.Rule.Name,
		Action:    req.Action,
		Content:   truncate(req.Content, 512),
		Detail:    req.Reason,
	}

	if req.Action.Deletes() {
		if err := e.deleteMessage(req); err != nil {
			logger.WarnContext(ctx, "unable to delete message", tint.Err(err))
		} else {
			entry.Deleted = true
		}
	}

	if err := e.warnUser(req); err != nil {
		logger.WarnContext(ctx, "unable to warn user", tint.Err(err))
	} else {
		entry.UserWarned = true
	}

	if req.Action.Alerts() {
		sent, alertErr := e.alertModerators(ctx, req)
		if alertErr != nil {
			logger.WarnContext(ctx, "unable to alert moderators", tint.Err(alertErr))
		}
		entry.ModAlerted = sent
	}

	if _, err := e.db.Create(ctx, &entry); err != nil {
		logger.ErrorContext(ctx, "error saving action log", tint.Err(err))
	}
	logger.InfoContext(
		ctx,
		"executed moderation action",
		"deleted", entry.Deleted,
		"user_warned", entry.UserWarned,
		"mod_alerted", entry.ModAlerted,
	)
	return entry
}

func (e *ActionExecutor) deleteMessage(req enforcementRequest) error {
	err := e.session.ChannelMessageDelete(req.ChannelID, req.MessageID)
	return discordErrKind(err)
}

// warnUser DMs the offending user, falling back to a short-lived channel
// notice when DMs are closed.
func (e *ActionExecutor) warnUser(req enforcementRequest) error {
	msg := warningMessage(req)

	dmChannel, err := e.session.UserChannelCreate(req.UserID)
	if err == nil {
		_, err = e.session.ChannelMessageSend(dmChannel.ID, msg)
	}
	err = discordErrKind(err)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrCannotDM) {
		return err
	}

	notice, sendErr := e.session.ChannelMessageSend(
		req.ChannelID,
		fmt.Sprintf("<@%s> %s", req.UserID, msg),
	)
	if sendErr != nil {
		return discordErrKind(sendErr)
	}
	// The public notice self-destructs so the warning doesn't linger.
	go func(channelID, messageID string) {
		time.Sleep(dmFallbackNoticeTTL)
		if delErr := e.session.ChannelMessageDelete(channelID, messageID); delErr != nil {
			e.logger.Warn(
				"unable to delete fallback notice",
				tint.Err(discordErrKind(delErr)),
			)
		}
	}(req.ChannelID, notice.ID)
	return nil
}

func warningMessage(req enforcementRequest) string {
	var b string
	switch {
	case req.Rule.ID != "":
		b = fmt.Sprintf(
			"Your message broke rule %s (%s). %s",
			req.Rule.ID,
			req.Rule.Name,
			req.Rule.Description,
		)
	default:
		b = "Your message was removed by automated moderation."
	}
	if req.Action.Deletes() {
		b += " The message has been removed."
	}
	return b
}

// findModLogChannel resolves the guild's moderation log channel. An
// explicit GuildConfig override wins; otherwise channels are matched by
// name in preference order. No channel found is not an error.
func (e *ActionExecutor) findModLogChannel(
	ctx context.Context,
	guildID string,
) (string, bool) {
	if e.config != nil {
		cfg, err := e.config.Get(ctx, guildID)
		if err == nil && cfg.ModLogChannelID != "" {
			return cfg.ModLogChannelID, true
		}
	}
	channels, err := e.session.GuildChannels(guildID)
	if err != nil {
		e.logger.Warn("unable to list guild channels", tint.Err(discordErrKind(err)))
		return "", false
	}
	for _, name := range modLogChannelNames {
		for _, ch := range channels {
			if ch.Type == discordgo.ChannelTypeGuildText && ch.Name == name {
				return ch.ID, true
			}
		}
	}
	return "", false
}

// alertModerators posts the violation embed to the guild's mod-log
// channel. Reports whether an embed was actually sent: a guild without a
// mod-log channel is a no-op, not an error, and no alert happened.
func (e *ActionExecutor) alertModerators(
	ctx context.Context,
	req enforcementRequest,
) (bool, error) {
	channelID, found := e.findModLogChannel(ctx, req.GuildID)
	if !found {
		return false, nil
	}
	embed := &discordgo.MessageEmbed{
		Title: "Rule Violation",
		Color: 0xED4245,
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:   "User",
				Value:  fmt.Sprintf("<@%s> (%s)", req.UserID, req.Username),
				Inline: true,
			},
			{
				Name:   "Rule",
				Value:  fmt.Sprintf("%s: %s", req.Rule.ID, req.Rule.Name),
				Inline: true,
			},
			{
				Name:   "Channel",
				Value:  fmt.Sprintf("<#%s>", req.ChannelID),
				Inline: true,
			},
			{
				Name:  "Message",
				Value: truncate(req.Content, 1024),
			},
			{
				Name:   "Recent Violations",
				Value:  fmt.Sprintf("%d in the last 30 days", req.RecentCount),
				Inline: true,
			},
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if req.Reason != "" {
		embed.Description = req.Reason
	}
	if _, err := e.session.ChannelMessageSendEmbed(channelID, embed); err != nil {
		return false, discordErrKind(err)
	}
	return true, nil
}

// alertTimeout posts a mod-log notice when a user hits the profanity
// warning threshold and is timed out. Reports whether an embed was sent;
// a guild without a mod-log channel is a no-op.
func (e *ActionExecutor) alertTimeout(
	ctx context.Context,
	req enforcementRequest,
	warningCount int,
	duration time.Duration,
) (bool, error) {
	channelID, found := e.findModLogChannel(ctx, req.GuildID)
	if !found {
		return false, nil
	}
	embed := &discordgo.MessageEmbed{
		Title: "User Timed Out",
		Color: 0xED4245,
		Description: fmt.Sprintf(
			"<@%s> reached the word filter warning threshold and was timed out for %s.",
			req.UserID,
			duration,
		),
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:   "User",
				Value:  fmt.Sprintf("<@%s> (%s)", req.UserID, req.Username),
				Inline: true,
			},
			{
				Name:   "Warnings",
				Value:  fmt.Sprintf("%d", warningCount),
				Inline: true,
			},
			{
				Name:   "Channel",
				Value:  fmt.Sprintf("<#%s>", req.ChannelID),
				Inline: true,
			},
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if _, err := e.session.ChannelMessageSendEmbed(channelID, embed); err != nil {
		return false, discordErrKind(err)
	}
	return true, nil
}

// timeoutUser applies a communication timeout, used when a user hits the
// profanity warning threshold.
func (e *ActionExecutor) timeoutUser(
	ctx context.Context,
	guildID string,
	userID string,
	duration time.Duration,
) error {
	until := time.Now().UTC().Add(duration)
	err := discordErrKind(
		e.session.GuildMemberTimeout(guildID, userID, &until),
	)
	if err != nil {
		return err
	}
	e.logger.InfoContext(
		ctx,
		"timed out user",
		"guild_id", guildID,
		"user_id", userID,
		"until", until,
	)
	return nil
}
