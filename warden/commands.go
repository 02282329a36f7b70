package warden

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

var commandDefaultMemberPermissions int64 = discordgo.PermissionManageMessages

const (
	violationsSubcommandCheck = "check"
	violationsSubcommandReset = "reset"

	filterSubcommandAdd    = "add"
	filterSubcommandRemove = "remove"
	filterSubcommandList   = "list"
	filterSubcommandToggle = "toggle"

	modConfigSubcommandView = "view"
	modConfigSubcommandSet  = "set"
)

// appCommandViolations returns the definition of the `/violations` command.
func (d *Discord) appCommandViolations() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:                     DiscordSlashCommandViolations,
		Description:              "Check or reset a user's rule violations",
		DefaultMemberPermissions: &commandDefaultMemberPermissions,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        violationsSubcommandCheck,
				Description: "Show a user's recent violations",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionUser,
						Name:        "user",
						Description: "User to check",
						Required:    true,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        violationsSubcommandReset,
				Description: "Delete all of a user's violations",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionUser,
						Name:        "user",
						Description: "User to reset",
						Required:    true,
					},
				},
			},
		},
	}
}

// appCommandFilter returns the definition of the `/filter` command.
func (d *Discord) appCommandFilter() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:                     DiscordSlashCommandFilter,
		Description:              "Manage the profanity word filter",
		DefaultMemberPermissions: &commandDefaultMemberPermissions,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        filterSubcommandAdd,
				Description: "Add a word to this server's filter",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "word",
						Description: "Word to block",
						Required:    true,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        filterSubcommandRemove,
				Description: "Remove a word from this server's filter",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "word",
						Description: "Word to unblock",
						Required:    true,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        filterSubcommandList,
				Description: "List this server's extra filtered words",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        filterSubcommandToggle,
				Description: "Enable or disable the word filter",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionBoolean,
						Name:        "enabled",
						Description: "Whether the filter is active",
						Required:    true,
					},
				},
			},
		},
	}
}

// appCommandModConfig returns the definition of the `/modconfig` command.
func (d *Discord) appCommandModConfig() *discordgo.ApplicationCommand {
	minToxicity := 0.0
	return &discordgo.ApplicationCommand{
		Name:                     DiscordSlashCommandModConfig,
		Description:              "View or change moderation settings",
		DefaultMemberPermissions: &commandDefaultMemberPermissions,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        modConfigSubcommandView,
				Description: "Show the current moderation settings",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        modConfigSubcommandSet,
				Description: "Change moderation settings",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionBoolean,
						Name:        "rules_enabled",
						Description: "Enforce the rule set",
					},
					{
						Type:        discordgo.ApplicationCommandOptionBoolean,
						Name:        "ai_moderation",
						Description: "Score messages with AI moderation",
					},
					{
						Type:        discordgo.ApplicationCommandOptionNumber,
						Name:        "toxicity_threshold",
						Description: "Minimum AI toxicity score that triggers enforcement (0-1)",
						MinValue:    &minToxicity,
						MaxValue:    1,
					},
					{
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        "warning_threshold",
						Description: "Profanity warnings before an automatic timeout",
					},
					{
						Type:        discordgo.ApplicationCommandOptionBoolean,
						Name:        "strict_severity2",
						Description: "Delete severity-2 violations even on a first offense",
					},
				},
			},
		},
	}
}

// handlerInteractionCreate routes slash-command interactions.
func (d *Discord) handlerInteractionCreate() func(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
) {
	return func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
		if i.Type != discordgo.InteractionApplicationCommand {
			return
		}
		data := i.ApplicationCommandData()
		logger := d.logger.With(
			"interaction_id", i.ID,
			"command", data.Name,
			"guild_id", i.GuildID,
		)
		ctx, cancel := context.WithTimeout(d.w.ctx, 10*time.Second)
		defer cancel()
		ctx = WithLogger(ctx, logger)

		var content string
		var err error
		switch data.Name {
		case DiscordSlashCommandViolations:
			content, err = d.w.handleViolationsCommand(ctx, i)
		case DiscordSlashCommandFilter:
			content, err = d.w.handleFilterCommand(ctx, i)
		case DiscordSlashCommandModConfig:
			content, err = d.w.handleModConfigCommand(ctx, i)
		default:
			logger.Warn("unknown command")
			return
		}
		if err != nil {
			logger.Error("command failed", tint.Err(err))
			content = "Something went wrong handling that command."
		}
		respondErr := d.session.InteractionRespond(
			i.Interaction, &discordgo.InteractionResponse{
				Type: discordgo.InteractionResponseChannelMessageWithSource,
				Data: &discordgo.InteractionResponseData{
					Content: truncate(content, discordMaxMessageLength),
					Flags:   discordgo.MessageFlagsEphemeral,
				},
			},
		)
		if respondErr != nil {
			logger.Error("error responding to interaction", tint.Err(respondErr))
		}
	}
}

func interactionSubcommand(
	i *discordgo.InteractionCreate,
) (string, map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	options := i.ApplicationCommandData().Options
	if len(options) == 0 {
		return "", nil
	}
	sub := options[0]
	optionMap := make(
		map[string]*discordgo.ApplicationCommandInteractionDataOption,
		len(sub.Options),
	)
	for _, option := range sub.Options {
		optionMap[option.Name] = option
	}
	return sub.Name, optionMap
}

func (w *Warden) handleViolationsCommand(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) (string, error) {
	sub, options := interactionSubcommand(i)
	userOption, ok := options["user"]
	if !ok {
		return "A user is required.", nil
	}
	user := userOption.UserValue(nil)
	if user == nil || user.ID == "" {
		return "A user is required.", nil
	}
	userID := user.ID

	switch sub {
	case violationsSubcommandCheck:
		violations, err := w.violations.RecentViolations(
			ctx, i.GuildID, userID, w.config.Moderation.ViolationWindow,
		)
		if err != nil {
			return "", err
		}
		if len(violations) == 0 {
			return fmt.Sprintf("<@%s> has no recent violations.", userID), nil
		}
		var b strings.Builder
		fmt.Fprintf(
			&b,
			"<@%s> has %d recent violation(s):\n",
			userID,
			len(violations),
		)
		for _, v := range violations {
			fmt.Fprintf(
				&b,
				"- Rule %s (%s) <t:%d:R>\n",
				v.RuleID,
				v.RuleName,
				v.Time().Unix(),
			)
		}
		return b.String(), nil
	case violationsSubcommandReset:
		reset, err := w.violations.ResetViolations(ctx, i.GuildID, userID)
		if err != nil {
			return "", err
		}
		if _, err = w.violations.ResetWarnings(ctx, i.GuildID, userID); err != nil {
			return "", err
		}
		if !reset {
			return fmt.Sprintf("<@%s> had no violations to reset.", userID), nil
		}
		return fmt.Sprintf("Violations reset for <@%s>.", userID), nil
	default:
		return "Unknown subcommand.", nil
	}
}

func (w *Warden) handleFilterCommand(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) (string, error) {
	sub, options := interactionSubcommand(i)
	cfg, err := w.guildConfigs.Get(ctx, i.GuildID)
	if err != nil {
		return "", err
	}

	switch sub {
	case filterSubcommandAdd:
		word := strings.ToLower(
			strings.TrimSpace(options["word"].StringValue()),
		)
		if word == "" {
			return "A word is required.", nil
		}
		words := cfg.BlockedWordList()
		for _, existing := range words {
			if existing == word {
				return fmt.Sprintf("%q is already filtered.", word), nil
			}
		}
		cfg.BlockedWords = strings.Join(append(words, word), "\n")
		if err = w.guildConfigs.Save(ctx, cfg); err != nil {
			return "", err
		}
		w.dbNotifier.GuildConfigUpdated(ctx, i.GuildID)
		return fmt.Sprintf("Added %q to the filter.", word), nil
	case filterSubcommandRemove:
		word := strings.ToLower(
			strings.TrimSpace(options["word"].StringValue()),
		)
		words := cfg.BlockedWordList()
		kept := make([]string, 0, len(words))
		for _, existing := range words {
			if existing != word {
				kept = append(kept, existing)
			}
		}
		if len(kept) == len(words) {
			return fmt.Sprintf("%q wasn't in the filter.", word), nil
		}
		cfg.BlockedWords = strings.Join(kept, "\n")
		if err = w.guildConfigs.Save(ctx, cfg); err != nil {
			return "", err
		}
		w.dbNotifier.GuildConfigUpdated(ctx, i.GuildID)
		return fmt.Sprintf("Removed %q from the filter.", word), nil
	case filterSubcommandList:
		words := cfg.BlockedWordList()
		if len(words) == 0 {
			return "No extra words are filtered for this server.", nil
		}
		return fmt.Sprintf(
			"Extra filtered words: %s", strings.Join(words, ", "),
		), nil
	case filterSubcommandToggle:
		enabled := options["enabled"].BoolValue()
		cfg.FilterEnabled = enabled
		if err = w.guildConfigs.Save(ctx, cfg); err != nil {
			return "", err
		}
		w.dbNotifier.GuildConfigUpdated(ctx, i.GuildID)
		if enabled {
			return "Word filter enabled.", nil
		}
		return "Word filter disabled.", nil
	default:
		return "Unknown subcommand.", nil
	}
}

func (w *Warden) handleModConfigCommand(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) (string, error) {
	sub, options := interactionSubcommand(i)
	cfg, err := w.guildConfigs.Get(ctx, i.GuildID)
	if err != nil {
		return "", err
	}

	switch sub {
	case modConfigSubcommandView:
		return fmt.Sprintf(
			"Rules: %t\nWord filter: %t\nAI moderation: %t\n"+
				"Toxicity threshold: %.2f\nWarning threshold: %d\n"+
				"Timeout duration: %s\nStrict severity-2: %t",
			cfg.RulesEnabled,
			cfg.FilterEnabled,
			cfg.AIModerationEnabled,
			cfg.ToxicityThreshold,
			cfg.WarningThreshold,
			cfg.TimeoutDuration.String(),
			cfg.Severity2DeleteFirstOffense,
		), nil
	case modConfigSubcommandSet:
		var changed []string
		if opt, ok := options["rules_enabled"]; ok {
			cfg.RulesEnabled = opt.BoolValue()
			changed = append(changed, "rules_enabled")
		}
		if opt, ok := options["ai_moderation"]; ok {
			cfg.AIModerationEnabled = opt.BoolValue()
			changed = append(changed, "ai_moderation")
		}
		if opt, ok := options["toxicity_threshold"]; ok {
			cfg.ToxicityThreshold = opt.FloatValue()
			changed = append(changed, "toxicity_threshold")
		}
		if opt, ok := options["warning_threshold"]; ok {
			cfg.WarningThreshold = int(opt.IntValue())
			changed = append(changed, "warning_threshold")
		}
		if opt, ok := options["strict_severity2"]; ok {
			cfg.Severity2DeleteFirstOffense = opt.BoolValue()
			changed = append(changed, "strict_severity2")
		}
		if len(changed) == 0 {
			return "Nothing to change.", nil
		}
		if err = w.guildConfigs.Save(ctx, cfg); err != nil {
			return "", err
		}
		w.dbNotifier.GuildConfigUpdated(ctx, i.GuildID)
		return fmt.Sprintf("Updated: %s", strings.Join(changed, ", ")), nil
	default:
		return "Unknown subcommand.", nil
	}
}
