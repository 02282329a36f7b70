package warden

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type mockModerationClient struct {
	response openai.ModerationResponse
	err      error
	requests []openai.ModerationRequest
}

func (m *mockModerationClient) Moderations(
	_ context.Context,
	request openai.ModerationRequest,
) (openai.ModerationResponse, error) {
	m.requests = append(m.requests, request)
	return m.response, m.err
}

func testOpenAI(client OpenAIModerationClient) *OpenAI {
	return &OpenAI{
		client:         client,
		logger:         slog.Default(),
		requestLimiter: rate.NewLimiter(rate.Inf, 1),
		mu:             &sync.RWMutex{},
	}
}

func TestScoreMessagePicksHighestCategory(t *testing.T) {
	t.Parallel()
	client := &mockModerationClient{
		response: openai.ModerationResponse{
			Results: []openai.Result{
				{
					Flagged: true,
					CategoryScores: openai.ResultCategoryScores{
						Hate:       0.2,
						Harassment: 0.91,
						Violence:   0.4,
					},
				},
			},
		},
	}
	o := testOpenAI(client)

	score, err := o.ScoreMessage(context.Background(), "some message")
	require.NoError(t, err)
	assert.InDelta(t, 0.91, score.Score, 0.001)
	assert.Equal(t, "harassment", score.Category)
	assert.True(t, score.Flagged)

	require.Len(t, client.requests, 1)
	assert.Equal(t, "some message", client.requests[0].Input)
}

func TestScoreMessageEmptyResults(t *testing.T) {
	t.Parallel()
	o := testOpenAI(&mockModerationClient{})

	score, err := o.ScoreMessage(context.Background(), "anything")
	require.NoError(t, err)
	assert.Zero(t, score.Score)
	assert.False(t, score.Flagged)
}

func TestScoreMessageError(t *testing.T) {
	t.Parallel()
	o := testOpenAI(&mockModerationClient{err: errors.New("api down")})

	_, err := o.ScoreMessage(context.Background(), "anything")
	assert.Error(t, err)
}

func TestSetRequestLimit(t *testing.T) {
	t.Parallel()
	o := testOpenAI(&mockModerationClient{})
	o.setRequestLimit(5)
	assert.Equal(t, rate.Limit(5), o.requestLimiter.Limit())
}

func TestHasRepeatedRun(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		content string
		match   bool
	}{
		{name: "empty", content: ""},
		{name: "no run", content: "hello there"},
		{
			name:    "exactly at the limit",
			content: strings.Repeat("a", repeatedRunLimit),
			match:   true,
		},
		{
			name:    "one below the limit",
			content: strings.Repeat("a", repeatedRunLimit-1),
		},
		{
			name:    "run in the middle",
			content: "wow AAAAAAAAAAAA wow",
			match:   true,
		},
		{
			name:    "run broken up",
			content: "ababababababababababab",
		},
		{
			name:    "multibyte runes",
			content: strings.Repeat("é", repeatedRunLimit),
			match:   true,
		},
		{
			name:    "case sensitive",
			content: "aAaAaAaAaAaAaAaAaAaA",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(
				t, tc.match, hasRepeatedRun(tc.content, repeatedRunLimit),
			)
		})
	}
}

func TestCheckSpam(t *testing.T) {
	t.Parallel()
	cfg := defaultGuildConfig("g")

	testCases := []struct {
		name         string
		content      string
		mentionCount int
		cfg          GuildConfig
		spam         bool
		reason       string
	}{
		{
			name:    "clean message",
			content: "hello there, how is everyone doing",
			cfg:     cfg,
		},
		{
			name:         "mention flood at limit",
			content:      "everyone look",
			mentionCount: DefaultSpamMentionLimit,
			cfg:          cfg,
			spam:         true,
			reason:       "mention flood",
		},
		{
			name:         "mentions below limit",
			content:      "hey you two",
			mentionCount: DefaultSpamMentionLimit - 1,
			cfg:          cfg,
		},
		{
			name:    "repeated characters",
			content: "aaaaaaaaaaaaaaa",
			cfg:     cfg,
			spam:    true,
			reason:  "repeated characters",
		},
		{
			name:    "nine repeats is allowed",
			content: "hmmmmmmmmm",
			cfg:     cfg,
		},
		{
			name:    "invite link",
			content: "come hang out at discord.gg/somewhere",
			cfg:     cfg,
			spam:    true,
			reason:  "invite link",
		},
		{
			name:    "invite link long form",
			content: "see discordapp.com/invite/somewhere",
			cfg:     cfg,
			spam:    true,
			reason:  "invite link",
		},
		{
			name:    "blocked domain",
			content: "free nitro at SCAM.example",
			cfg: func() GuildConfig {
				c := cfg
				c.BlockedDomains = "scam.example"
				return c
			}(),
			spam:   true,
			reason: "blocked domain",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			verdict, spam := checkSpam(tc.content, tc.mentionCount, tc.cfg)
			assert.Equal(t, tc.spam, spam)
			if tc.reason != "" {
				assert.True(
					t,
					strings.HasPrefix(verdict.Reason, tc.reason),
					"reason %q", verdict.Reason,
				)
			}
		})
	}
}

func TestCheckSpamZeroLimitUsesDefault(t *testing.T) {
	t.Parallel()
	var cfg GuildConfig

	_, spam := checkSpam("hi", DefaultSpamMentionLimit-1, cfg)
	assert.False(t, spam)

	verdict, spam := checkSpam("hi", DefaultSpamMentionLimit, cfg)
	require.True(t, spam)
	assert.Equal(t, "mention flood", verdict.Reason)
}
