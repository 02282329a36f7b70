package warden

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRuleSetOrder(t *testing.T) {
	rs := DefaultRuleSet()
	rules := rs.Rules()
	require.NotEmpty(t, rules)

	expectedOrder := []string{"1", "2", "3", "4", "5", "6", "vc1", "vc2"}
	require.Len(t, rules, len(expectedOrder))
	for i, id := range expectedOrder {
		assert.Equal(t, id, rules[i].ID)
	}
}

func TestRuleSetFirstMatchWins(t *testing.T) {
	// Matches both the harassment rule (6) and, potentially, others.
	// A lower-ID rule matching the same message must win.
	specs := []ruleSpec{
		{
			id:       "1",
			name:     "First",
			patterns: []string{`(?i)\bbadword\b`},
			severity: 1,
		},
		{
			id:       "2",
			name:     "Second",
			patterns: []string{`(?i)\bbadword\b`},
			severity: 3,
		},
	}
	rs, err := newRuleSet(specs)
	require.NoError(t, err)

	rule, matched := rs.Match("this has a badword in it", "general")
	require.True(t, matched)
	assert.Equal(t, "1", rule.ID)
	assert.Equal(t, 1, rule.Severity)
}

func TestRuleSetExceptionShortCircuitsSingleRule(t *testing.T) {
	specs := []ruleSpec{
		{
			id:        "1",
			name:      "Invites",
			patterns:  []string{`(?i)discord\.gg/\w+`},
			exception: `(?i)discord\.gg/allowed`,
			severity:  2,
		},
		{
			id:       "2",
			name:     "Links",
			patterns: []string{`(?i)https?://`},
			severity: 1,
		},
	}
	rs, err := newRuleSet(specs)
	require.NoError(t, err)

	// Exception suppresses rule 1 but rule 2 still fires.
	rule, matched := rs.Match(
		"join https://discord.gg/allowed now", "general",
	)
	require.True(t, matched)
	assert.Equal(t, "2", rule.ID)

	// Without the exception phrase, rule 1 fires first.
	rule, matched = rs.Match("join discord.gg/other now", "general")
	require.True(t, matched)
	assert.Equal(t, "1", rule.ID)
}

func TestRuleSetVoiceOnlyScoping(t *testing.T) {
	rs := DefaultRuleSet()

	_, matched := rs.Match("stop the ear rape please", "general")
	assert.False(t, matched, "voice-only rule should not fire in general chat")

	rule, matched := rs.Match("stop the ear rape please", "voice-chat")
	require.True(t, matched)
	assert.Equal(t, "vc2", rule.ID)
	assert.True(t, rule.VoiceOnly)
}

func TestIsVoiceTextChannel(t *testing.T) {
	testCases := []struct {
		name     string
		expected bool
	}{
		{"voice-chat", true},
		{"general-voice-chat", true},
		{"vc-text", true},
		{"VC-TEXT", true},
		{"voice_text-2", true},
		{"vc-chat", true},
		{"general", false},
		{"voicemail", false},
		{"", false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, isVoiceTextChannel(tc.name))
		})
	}
}

func TestDefaultRulesCaseInsensitive(t *testing.T) {
	rs := DefaultRuleSet()

	rule, matched := rs.Match("GO DIE loser", "general")
	require.True(t, matched)
	assert.Equal(t, "6", rule.ID)

	rule, matched = rs.Match("let's go kys", "general")
	require.True(t, matched)
	assert.Equal(t, "6", rule.ID)
	assert.Equal(t, 3, rule.Severity)
}

func TestExcessiveCapsRequiresUppercase(t *testing.T) {
	rs := DefaultRuleSet()

	rule, matched := rs.Match("STOP DOING THAT RIGHT NOW", "general")
	require.True(t, matched)
	assert.Equal(t, "1", rule.ID)

	_, matched = rs.Match("stop doing that right now", "general")
	assert.False(t, matched)
}

func TestRuleSetGet(t *testing.T) {
	rs := DefaultRuleSet()
	rule, ok := rs.Get("4")
	require.True(t, ok)
	assert.Equal(t, "Hate Speech", rule.Name)

	_, ok = rs.Get("does-not-exist")
	assert.False(t, ok)
}

func TestNewRuleSetRejectsBadInput(t *testing.T) {
	_, err := newRuleSet(
		[]ruleSpec{{id: "x", patterns: []string{`(`}, severity: 1}},
	)
	assert.Error(t, err)

	_, err = newRuleSet(
		[]ruleSpec{{id: "x", patterns: []string{`ok`}, severity: 9}},
	)
	assert.Error(t, err)
}
