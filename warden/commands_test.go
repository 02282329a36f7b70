package warden

import (
	"context"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func violationsInteraction(
	sub string,
	opts []*discordgo.ApplicationCommandInteractionDataOption,
) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type:    discordgo.InteractionApplicationCommand,
			GuildID: "guild-1",
			Data: discordgo.ApplicationCommandInteractionData{
				Name: DiscordSlashCommandViolations,
				Options: []*discordgo.ApplicationCommandInteractionDataOption{
					{
						Name:    sub,
						Type:    discordgo.ApplicationCommandOptionSubCommand,
						Options: opts,
					},
				},
			},
		},
	}
}

func userOption(userID string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  "user",
		Type:  discordgo.ApplicationCommandOptionUser,
		Value: userID,
	}
}

func TestViolationsCommandCheck(t *testing.T) {
	t.Parallel()
	w, _ := testWarden(t)
	ctx := context.Background()

	rule, ok := w.rules.Get("2")
	require.True(t, ok)
	for i := 0; i < 2; i++ {
		_, err := w.violations.AddViolation(
			ctx, "guild-1", "user-1", rule, "chan-1",
		)
		require.NoError(t, err)
	}

	content, err := w.handleViolationsCommand(
		ctx, violationsInteraction(
			violationsSubcommandCheck,
			[]*discordgo.ApplicationCommandInteractionDataOption{
				userOption("user-1"),
			},
		),
	)
	require.NoError(t, err)
	assert.Contains(t, content, "<@user-1>")
	assert.Contains(t, content, "2 recent violation")
	assert.Contains(t, content, "Rule 2")
}

func TestViolationsCommandCheckNoViolations(t *testing.T) {
	t.Parallel()
	w, _ := testWarden(t)

	content, err := w.handleViolationsCommand(
		context.Background(), violationsInteraction(
			violationsSubcommandCheck,
			[]*discordgo.ApplicationCommandInteractionDataOption{
				userOption("user-1"),
			},
		),
	)
	require.NoError(t, err)
	assert.Contains(t, content, "no recent violations")
}

func TestViolationsCommandMissingOrEmptyUser(t *testing.T) {
	t.Parallel()
	w, _ := testWarden(t)
	ctx := context.Background()

	// Subcommand without a user option at all.
	content, err := w.handleViolationsCommand(
		ctx, violationsInteraction(violationsSubcommandCheck, nil),
	)
	require.NoError(t, err)
	assert.Equal(t, "A user is required.", content)

	// A user option whose value isn't a snowflake string must not panic.
	malformed := &discordgo.ApplicationCommandInteractionDataOption{
		Name: "user",
		Type: discordgo.ApplicationCommandOptionUser,
	}
	content, err = w.handleViolationsCommand(
		ctx, violationsInteraction(
			violationsSubcommandCheck,
			[]*discordgo.ApplicationCommandInteractionDataOption{malformed},
		),
	)
	require.NoError(t, err)
	assert.Equal(t, "A user is required.", content)
}

func TestViolationsCommandReset(t *testing.T) {
	t.Parallel()
	w, _ := testWarden(t)
	ctx := context.Background()

	rule, ok := w.rules.Get("2")
	require.True(t, ok)
	_, err := w.violations.AddViolation(ctx, "guild-1", "user-1", rule, "chan-1")
	require.NoError(t, err)
	_, err = w.violations.IncrementWarning(ctx, "guild-1", "user-1")
	require.NoError(t, err)

	content, err := w.handleViolationsCommand(
		ctx, violationsInteraction(
			violationsSubcommandReset,
			[]*discordgo.ApplicationCommandInteractionDataOption{
				userOption("user-1"),
			},
		),
	)
	require.NoError(t, err)
	assert.Contains(t, content, "Violations reset")

	count, err := w.violations.Count(ctx, "guild-1", "user-1")
	require.NoError(t, err)
	assert.Zero(t, count)

	warnings, err := w.violations.WarningCountFor(ctx, "guild-1", "user-1")
	require.NoError(t, err)
	assert.Zero(t, warnings)
}
