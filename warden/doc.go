// Package warden implements a Discord community-moderation bot.
//
// Warden watches guild messages and enforces a fixed, ordered rule set
// (caps floods, advertising, slurs, doxxing, harassment and voice-text
// specific rules), a per-guild profanity word filter, local spam
// heuristics, and optional AI toxicity scoring via OpenAI's moderation
// endpoint.
//
// Key components of the package include:
//
//   - Warden: The main struct that encapsulates the bot's core functionality.
//   - RuleSet: Ordered, compiled moderation rules with first-match semantics.
//   - ViolationStore: Persisted rule violations and profanity warning counts.
//   - ActionExecutor: Carries out warnings, deletions, mod alerts and timeouts.
//   - GuildConfigCache: Per-guild settings, cached and persisted.
//   - API: A login-gated admin HTTP API for inspecting and tuning moderation.
//
// The bot supports three slash commands:
//
//   - /violations: Check or reset a user's recorded violations.
//   - /filter: Manage the guild's profanity word filter.
//   - /modconfig: View or change per-guild moderation settings.
//
// State lives in SQLite or Postgres via GORM; multiple instances sharing
// a Postgres database coordinate config reloads over LISTEN/NOTIFY.
package warden
