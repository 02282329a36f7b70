package warden

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGuildConfigCache(t testing.TB) (*GuildConfigCache, DBI) {
	t.Helper()
	db := testWriteDB(t)
	return newGuildConfigCache(db, slog.Default()), db
}

func TestGuildConfigGetCreatesDefaults(t *testing.T) {
	t.Parallel()
	cache, db := testGuildConfigCache(t)
	ctx := context.Background()

	cfg, err := cache.Get(ctx, "guild-1")
	require.NoError(t, err)
	assert.True(t, cfg.RulesEnabled)
	assert.True(t, cfg.FilterEnabled)
	assert.False(t, cfg.AIModerationEnabled)
	assert.Equal(t, DefaultToxicityThreshold, cfg.ToxicityThreshold)
	assert.Equal(t, DefaultSpamMentionLimit, cfg.SpamMentionLimit)
	assert.Equal(t, DefaultWarningThreshold, cfg.WarningThreshold)
	assert.Equal(t, DefaultTimeoutDuration, cfg.TimeoutDuration.Duration)

	// The default row is persisted, not just cached.
	var rows []GuildConfig
	require.NoError(t, db.DB().Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "guild-1", rows[0].GuildID)

	// A second Get hits the cache and doesn't create another row.
	_, err = cache.Get(ctx, "guild-1")
	require.NoError(t, err)
	require.NoError(t, db.DB().Find(&rows).Error)
	assert.Len(t, rows, 1)
}

func TestGuildConfigSaveRecompilesFilter(t *testing.T) {
	t.Parallel()
	cache, db := testGuildConfigCache(t)
	ctx := context.Background()

	cfg, err := cache.Get(ctx, "guild-1")
	require.NoError(t, err)

	// The stock filter doesn't know this word.
	_, hit := cache.Filter("guild-1").Check("what a florb")
	assert.False(t, hit)

	cfg.BlockedWords = "florb\nglorp"
	require.NoError(t, cache.Save(ctx, cfg))

	word, hit := cache.Filter("guild-1").Check("what a florb")
	require.True(t, hit)
	assert.Equal(t, "florb", word)

	// Built-in words still apply alongside guild extras.
	_, hit = cache.Filter("guild-1").Check("oh shit")
	assert.True(t, hit)

	var row GuildConfig
	require.NoError(
		t, db.DB().Where("guild_id = ?", "guild-1").First(&row).Error,
	)
	assert.Equal(t, []string{"florb", "glorp"}, row.BlockedWordList())
}

func TestGuildConfigFilterFallsBackToDefaults(t *testing.T) {
	t.Parallel()
	cache, _ := testGuildConfigCache(t)

	// Unknown guilds get the built-in filter. Matching is on word
	// boundaries, so the blocked word has to stand alone.
	word, hit := cache.Filter("never-seen").Check("well, shit happens")
	require.True(t, hit)
	assert.Equal(t, "shit", word)

	_, hit = cache.Filter("never-seen").Check("total bullshit, honestly")
	assert.False(t, hit)
}

func TestGuildConfigRefresh(t *testing.T) {
	t.Parallel()
	cache, db := testGuildConfigCache(t)
	ctx := context.Background()

	cfg, err := cache.Get(ctx, "guild-1")
	require.NoError(t, err)

	// Simulate another process updating the row directly.
	require.NoError(
		t,
		db.DB().Model(&GuildConfig{}).Where(
			"guild_id = ?", "guild-1",
		).Update("spam_mention_limit", 20).Error,
	)

	require.NoError(t, cache.Refresh(ctx, "guild-1"))
	cfg, err = cache.Get(ctx, "guild-1")
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.SpamMentionLimit)

	// Refreshing a deleted row drops the cached entry.
	require.NoError(
		t,
		db.DB().Where("guild_id = ?", "guild-1").Delete(&GuildConfig{}).Error,
	)
	require.NoError(t, cache.Refresh(ctx, "guild-1"))
	cache.mu.RLock()
	_, ok := cache.entries["guild-1"]
	cache.mu.RUnlock()
	assert.False(t, ok)
}

func TestGuildConfigLoadAllAndAll(t *testing.T) {
	t.Parallel()
	cache, db := testGuildConfigCache(t)
	ctx := context.Background()

	for _, id := range []string{"g1", "g2", "g3"} {
		_, err := cache.Get(ctx, id)
		require.NoError(t, err)
	}

	// A fresh cache over the same database sees all three.
	fresh := newGuildConfigCache(db, slog.Default())
	require.NoError(t, fresh.LoadAll(ctx))

	all := fresh.All()
	require.Len(t, all, 3)
	seen := map[string]bool{}
	for _, cfg := range all {
		seen[cfg.GuildID] = true
	}
	assert.True(t, seen["g1"] && seen["g2"] && seen["g3"])
}

func TestGuildConfigSeedGuilds(t *testing.T) {
	t.Parallel()
	cache, _ := testGuildConfigCache(t)
	ctx := context.Background()

	cfg, err := cache.Get(ctx, "existing")
	require.NoError(t, err)
	cfg.SpamMentionLimit = 42
	require.NoError(t, cache.Save(ctx, cfg))

	require.NoError(t, cache.SeedGuilds(ctx, []string{"existing", "new-guild"}))

	// Seeding doesn't clobber existing rows.
	cfg, err = cache.Get(ctx, "existing")
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.SpamMentionLimit)

	cfg, err = cache.Get(ctx, "new-guild")
	require.NoError(t, err)
	assert.Equal(t, DefaultSpamMentionLimit, cfg.SpamMentionLimit)
}

func TestSplitConfigList(t *testing.T) {
	t.Parallel()
	assert.Nil(t, splitConfigList(""))
	assert.Equal(
		t,
		[]string{"one", "two"},
		splitConfigList("one\n\n  two  \n"),
	)
}
