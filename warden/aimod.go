package warden

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
	"log/slog"

	"github.com/lmittmann/tint"
)

// OpenAIModerationClient is the subset of the OpenAI client used for
// content moderation. Abstracted for testing.
type OpenAIModerationClient interface {
	Moderations(
		ctx context.Context,
		request openai.ModerationRequest,
	) (response openai.ModerationResponse, err error)
}

// OpenAI wraps the moderation-endpoint client with rate limiting.
type OpenAI struct {
	client         OpenAIModerationClient
	config         *OpenAIConfig
	logger         *slog.Logger
	requestLimiter *rate.Limiter

	mu *sync.RWMutex // primarily just protects requestLimiter
}

func newOpenAI(config *OpenAIConfig, httpClient *http.Client) *OpenAI {
	o := &OpenAI{
		config: config,
		mu:     &sync.RWMutex{},
		requestLimiter: rate.NewLimiter(
			rate.Limit(config.MaxRequestsPerSecond),
			1,
		),
	}
	o.logger = slog.New(
		tint.NewHandler(
			defaultLogWriter, &tint.Options{
				Level:     config.LogLevel,
				AddSource: true,
			},
		),
	).With(loggerNameKey, "openai")

	clientCfg := openai.DefaultConfig(config.Token)
	if httpClient != nil {
		clientCfg.HTTPClient = httpClient
	}
	o.client = openai.NewClientWithConfig(clientCfg)
	return o
}

// waitOnRequestLimiter waits for the request limiter to allow the next
// request, returning any error from the limiter itself.
func (o *OpenAI) waitOnRequestLimiter(ctx context.Context) error {
	// `rate.Limiter` does not specify that it's safe to concurrently
	// call `Wait` and `SetLimit`, so grab the current limiter under
	// the read lock.
	o.mu.RLock()
	requestLimiter := o.requestLimiter
	o.mu.RUnlock()
	return requestLimiter.Wait(ctx)
}

// setRequestLimit swaps the request limiter for one with the given
// per-second limit.
func (o *OpenAI) setRequestLimit(perSecond float64) {
	o.mu.Lock()
	o.requestLimiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	o.mu.Unlock()
}

// ModerationScore is the outcome of scoring a message against the OpenAI
// moderation endpoint.
type ModerationScore struct {
	// Score is the highest category score returned.
	Score float64 `json:"score"`
	// Category is the name of the highest-scoring category.
	Category string `json:"category"`
	// Flagged is the endpoint's own over-threshold judgement.
	Flagged bool `json:"flagged"`
}

// ScoreMessage sends the content to the moderation endpoint and returns
// the highest category score. Callers compare against the guild's
// toxicity threshold.
func (o *OpenAI) ScoreMessage(
	ctx context.Context,
	content string,
) (ModerationScore, error) {
	var score ModerationScore
	if err := o.waitOnRequestLimiter(ctx); err != nil {
		return score, err
	}
	resp, err := o.client.Moderations(
		ctx, openai.ModerationRequest{
			Input: content,
			Model: openai.ModerationTextStable,
		},
	)
	if err != nil {
		o.logger.ErrorContext(ctx, "moderation request failed", tint.Err(err))
		return score, err
	}
	if len(resp.Results) == 0 {
		return score, nil
	}
	result := resp.Results[0]
	score.Flagged = result.Flagged
	for category, s := range moderationCategoryScores(result.CategoryScores) {
		if s > score.Score {
			score.Score = s
			score.Category = category
		}
	}
	o.logger.DebugContext(
		ctx,
		"scored message",
		"score", score.Score,
		"category", score.Category,
		"flagged", score.Flagged,
	)
	return score, nil
}

func moderationCategoryScores(
	cs openai.ResultCategoryScores,
) map[string]float64 {
	return map[string]float64{
		"hate":                   float64(cs.Hate),
		"hate/threatening":       float64(cs.HateThreatening),
		"harassment":             float64(cs.Harassment),
		"harassment/threatening": float64(cs.HarassmentThreatening),
		"self-harm":              float64(cs.SelfHarm),
		"sexual":                 float64(cs.Sexual),
		"sexual/minors":          float64(cs.SexualMinors),
		"violence":               float64(cs.Violence),
		"violence/graphic":       float64(cs.ViolenceGraphic),
	}
}

var inviteLinkPattern = regexp.MustCompile(
	`(?i)discord(?:\.gg|(?:app)?\.com/invite)/\w+`,
)

// repeatedRunLimit is the run length at which a stretch of identical
// characters is treated as spam.
const repeatedRunLimit = 10

// hasRepeatedRun reports whether content contains at least n consecutive
// identical runes. Go's regexp has no backreferences, so this is a plain
// scan.
func hasRepeatedRun(content string, n int) bool {
	if n < 1 {
		return false
	}
	var last rune
	run := 0
	for _, r := range content {
		if run == 0 || r != last {
			last = r
			run = 1
		} else {
			run++
		}
		if run >= n {
			return true
		}
	}
	return false
}

// SpamVerdict describes which heuristic flagged a message.
type SpamVerdict struct {
	Reason string
}

// checkSpam runs local spam heuristics against a message: mention floods,
// long character runs, invite links and guild-blocked domains. These are
// cheap and run before any moderation API call.
func checkSpam(
	content string,
	mentionCount int,
	cfg GuildConfig,
) (SpamVerdict, bool) {
	limit := cfg.SpamMentionLimit
	if limit <= 0 {
		limit = DefaultSpamMentionLimit
	}
	if mentionCount >= limit {
		return SpamVerdict{Reason: "mention flood"}, true
	}
	if hasRepeatedRun(content, repeatedRunLimit) {
		return SpamVerdict{Reason: "repeated characters"}, true
	}
	if inviteLinkPattern.MatchString(content) {
		return SpamVerdict{Reason: "invite link"}, true
	}
	lowered := strings.ToLower(content)
	for _, domain := range cfg.BlockedDomainList() {
		if strings.Contains(lowered, strings.ToLower(domain)) {
			return SpamVerdict{Reason: "blocked domain: " + domain}, true
		}
	}
	return SpamVerdict{}, false
}
