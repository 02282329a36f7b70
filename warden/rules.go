package warden

import (
	"fmt"
	"regexp"
	"strings"
)

// voiceTextChannelNames are substrings used to recognize the text channel
// attached to a voice channel. This is a name-based heuristic rather than a
// channel-type check, since most servers name these predictably.
var voiceTextChannelNames = []string{
	"voice-chat",
	"vc-text",
	"voice_text",
	"vc-chat",
}

// Rule is a single moderation rule. Patterns are compiled once at startup
// and the rule set is immutable afterward, so Match is safe for concurrent
// use from gateway event handlers.
type Rule struct {
	// ID orders the rule within its set. Numeric IDs sort ahead of
	// tagged IDs like "vc1".
	ID          string
	Name        string
	Description string

	// Patterns are tried in order. Any single match fires the rule.
	Patterns []*regexp.Regexp

	// Exception, when non-nil and matching, suppresses this rule only.
	// Later rules are still evaluated.
	Exception *regexp.Regexp

	// Severity is 1 (warn), 2 (warn, delete on repeat) or 3
	// (warn, delete and alert moderators).
	Severity int

	// VoiceOnly rules are skipped unless the message was sent in a
	// channel recognized by isVoiceTextChannel.
	VoiceOnly bool
}

// RuleSet holds an ordered list of compiled rules.
type RuleSet struct {
	rules []Rule
}

type ruleSpec struct {
	id          string
	name        string
	description string
	patterns    []string
	exception   string
	severity    int
	voiceOnly   bool
}

// newRuleSet compiles the given rule specs, preserving their order.
// Case sensitivity is controlled per pattern with an inline (?i) flag,
// since a rule like excessive-caps detection is deliberately
// case-sensitive while most others are not.
func newRuleSet(specs []ruleSpec) (*RuleSet, error) {
	rs := &RuleSet{rules: make([]Rule, 0, len(specs))}
	for _, s := range specs {
		if s.severity < 1 || s.severity > 3 {
			return nil, fmt.Errorf(
				"rule %s: severity must be 1-3, got %d", s.id, s.severity,
			)
		}
		r := Rule{
			ID:          s.id,
			Name:        s.name,
			Description: s.description,
			Severity:    s.severity,
			VoiceOnly:   s.voiceOnly,
		}
		for _, p := range s.patterns {
			compiled, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("rule %s: pattern %q: %w", s.id, p, err)
			}
			r.Patterns = append(r.Patterns, compiled)
		}
		if s.exception != "" {
			compiled, err := regexp.Compile(s.exception)
			if err != nil {
				return nil, fmt.Errorf(
					"rule %s: exception %q: %w", s.id, s.exception, err,
				)
			}
			r.Exception = compiled
		}
		rs.rules = append(rs.rules, r)
	}
	return rs, nil
}

// DefaultRuleSet returns the built-in rule set. Panics on a bad built-in
// pattern, which can only happen from a programming error.
func DefaultRuleSet() *RuleSet {
	rs, err := newRuleSet(defaultRuleSpecs)
	if err != nil {
		panic(err)
	}
	return rs
}

// defaultRuleSpecs is declared in enforcement order. Numeric rules come
// first, ascending, followed by voice-text-only rules.
var defaultRuleSpecs = []ruleSpec{
	{
		id:          "1",
		name:        "Excessive Caps",
		description: "Messages written mostly in capital letters",
		patterns:    []string{`\b[A-Z]{5,}(?:\s+[A-Z]{2,}){2,}\b`},
		severity:    1,
	},
	{
		id:          "2",
		name:        "Advertising",
		description: "Server invites and unsolicited promotion",
		patterns: []string{
			`(?i)discord\.gg/\w+`,
			`(?i)discord(?:app)?\.com/invite/\w+`,
			`(?i)\b(?:join|sub(?:scribe)? to) my (?:server|channel|discord)\b`,
		},
		exception: `(?i)discord\.gg/warden`,
		severity:  2,
	},
	{
		id:          "3",
		name:        "NSFW Content",
		description: "Sexually explicit content outside age-gated channels",
		patterns: []string{
			`(?i)\bporn(?:hub)?\b`,
			`(?i)\bonlyfans\.com/\w+`,
			`(?i)\b(?:send|post) nudes\b`,
		},
		severity: 2,
	},
	{
		id:          "4",
		name:        "Hate Speech",
		description: "Slurs and dehumanizing language",
		patterns: []string{
			`(?i)\bn[i1]gg+(?:er|a)s?\b`,
			`(?i)\bf[a@]gg?[o0]ts?\b`,
			`(?i)\btr[a@]nn(?:y|ies)\b`,
			`(?i)\bret[a@]rds?\b`,
		},
		severity: 3,
	},
	{
		id:          "5",
		name:        "Doxxing",
		description: "Posting personal or identifying information",
		patterns: []string{
			`(?i)\b(?:his|her|their) (?:home )?address is\b`,
			`(?i)\b\d{1,5} [a-z]+ (?:st(?:reet)?|ave(?:nue)?|r(?:oa)?d|blvd|lane|ln|dr(?:ive)?)\b.{0,40}\b\d{5}\b`,
			`(?i)\bdoxx?(?:ed|ing)? (?:him|her|them)\b`,
		},
		severity: 3,
	},
	{
		id:          "6",
		name:        "Harassment",
		description: "Targeted abuse and self-harm encouragement",
		patterns: []string{
			`(?i)\bkys\b`,
			`(?i)\bkill\s+your\s*self\b`,
			`(?i)\bgo\s+die\b`,
			`(?i)\bnobody (?:likes|wants) you\b`,
		},
		severity: 3,
	},
	{
		id:          "vc1",
		name:        "Music Bot Abuse",
		description: "Spamming playback commands in voice-text channels",
		patterns:    []string{`(?i)^[!./](?:play|skip|stop|queue)\b.*(?:\n[!./](?:play|skip|stop|queue)\b.*){3,}`},
		severity:    1,
		voiceOnly:   true,
	},
	{
		id:          "vc2",
		name:        "Voice Chat Disruption",
		description: "Soundboard/earrape spam coordination in voice-text channels",
		patterns: []string{
			`(?i)\bear\s*rape\b`,
			`(?i)\bmic\s*spam(?:ming)?\b`,
		},
		severity:  2,
		voiceOnly: true,
	},
}

// isVoiceTextChannel reports whether the channel name looks like the text
// channel of a voice channel.
func isVoiceTextChannel(channelName string) bool {
	name := strings.ToLower(channelName)
	for _, sub := range voiceTextChannelNames {
		if strings.Contains(name, sub) {
			return true
		}
	}
	return false
}

// Match evaluates content against the rule set in declaration order and
// returns the first rule that fires. A rule's exception pattern suppresses
// only that rule. Voice-only rules are skipped for non-voice-text channels.
func (rs *RuleSet) Match(content string, channelName string) (Rule, bool) {
	voiceText := isVoiceTextChannel(channelName)
	for _, rule := range rs.rules {
		if rule.VoiceOnly && !voiceText {
			continue
		}
		if rule.Exception != nil && rule.Exception.MatchString(content) {
			continue
		}
		for _, pattern := range rule.Patterns {
			if pattern.MatchString(content) {
				return rule, true
			}
		}
	}
	return Rule{}, false
}

// Rules returns the rules in enforcement order.
func (rs *RuleSet) Rules() []Rule {
	return rs.rules
}

// Get returns the rule with the given ID.
func (rs *RuleSet) Get(id string) (Rule, bool) {
	for _, rule := range rs.rules {
		if rule.ID == id {
			return rule, true
		}
	}
	return Rule{}, false
}
