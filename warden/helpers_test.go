package warden

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// gormDB creates a temporary SQLite database for testing purposes.
func gormDB(t testing.TB) *gorm.DB {
	t.Helper()
	tmpdir := t.TempDir()
	dbfile := filepath.Join(tmpdir, fmt.Sprintf("%s.sqlite3", t.Name()))

	db, err := CreateDB(context.Background(), "sqlite", dbfile)
	if err != nil {
		t.Fatalf("error creating db: %v", err)
	}
	return db
}

func testWriteDB(t testing.TB) DBI {
	t.Helper()
	return NewDatabase(gormDB(t), slog.Default(), false)
}

func testViolationStore(t testing.TB) *ViolationStore {
	t.Helper()
	return newViolationStore(testWriteDB(t), slog.Default())
}

// restError builds a discordgo REST error with the given JSON error code,
// matching what the library produces for 4xx responses.
func restError(code int, message string) error {
	return &discordgo.RESTError{
		Message: &discordgo.APIErrorMessage{
			Code:    code,
			Message: message,
		},
	}
}

// mockDiscordSession implements DiscordSessionHandler for tests,
// recording calls and returning injected errors.
type mockDiscordSession struct {
	mu sync.Mutex

	sentMessages   map[string][]string
	sentEmbeds     map[string][]*discordgo.MessageEmbed
	deleted        [][2]string
	timeouts       map[string]time.Time
	dmChannels     map[string]string
	guildChannels  map[string][]*discordgo.Channel
	customStatuses []string

	deleteErr        error
	dmErr            error
	sendErr          error
	embedErr         error
	timeoutErr       error
	guildChannelsErr error
}

func newMockDiscordSession() *mockDiscordSession {
	return &mockDiscordSession{
		sentMessages:  map[string][]string{},
		sentEmbeds:    map[string][]*discordgo.MessageEmbed{},
		timeouts:      map[string]time.Time{},
		dmChannels:    map[string]string{},
		guildChannels: map[string][]*discordgo.Channel{},
	}
}

func (m *mockDiscordSession) Open() error  { return nil }
func (m *mockDiscordSession) Close() error { return nil }

func (m *mockDiscordSession) AddHandler(any) func() {
	return func() {}
}

func (m *mockDiscordSession) ChannelMessageSend(
	channelID string,
	message string,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.sentMessages[channelID] = append(m.sentMessages[channelID], message)
	return &discordgo.Message{
		ID:        fmt.Sprintf("msg-%d", len(m.sentMessages[channelID])),
		ChannelID: channelID,
		Content:   message,
	}, nil
}

func (m *mockDiscordSession) ChannelMessageSendEmbed(
	channelID string,
	embed *discordgo.MessageEmbed,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	m.sentEmbeds[channelID] = append(m.sentEmbeds[channelID], embed)
	return &discordgo.Message{ChannelID: channelID}, nil
}

func (m *mockDiscordSession) ChannelMessageDelete(
	channelID string,
	messageID string,
	_ ...discordgo.RequestOption,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, [2]string{channelID, messageID})
	return nil
}

func (m *mockDiscordSession) UserChannelCreate(
	recipientID string,
	_ ...discordgo.RequestOption,
) (*discordgo.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dmErr != nil {
		return nil, m.dmErr
	}
	channelID, ok := m.dmChannels[recipientID]
	if !ok {
		channelID = "dm-" + recipientID
		m.dmChannels[recipientID] = channelID
	}
	return &discordgo.Channel{
		ID:   channelID,
		Type: discordgo.ChannelTypeDM,
	}, nil
}

func (m *mockDiscordSession) GuildChannels(
	guildID string,
	_ ...discordgo.RequestOption,
) ([]*discordgo.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.guildChannelsErr != nil {
		return nil, m.guildChannelsErr
	}
	return m.guildChannels[guildID], nil
}

func (m *mockDiscordSession) GuildMemberTimeout(
	guildID string,
	userID string,
	until *time.Time,
	_ ...discordgo.RequestOption,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timeoutErr != nil {
		return m.timeoutErr
	}
	if until != nil {
		m.timeouts[guildID+":"+userID] = *until
	} else {
		delete(m.timeouts, guildID+":"+userID)
	}
	return nil
}

func (m *mockDiscordSession) ApplicationCommandBulkOverwrite(
	_ string,
	_ string,
	commands []*discordgo.ApplicationCommand,
	_ ...discordgo.RequestOption,
) ([]*discordgo.ApplicationCommand, error) {
	return commands, nil
}

func (m *mockDiscordSession) InteractionRespond(
	_ *discordgo.Interaction,
	_ *discordgo.InteractionResponse,
	_ ...discordgo.RequestOption,
) error {
	return nil
}

func (m *mockDiscordSession) UpdateCustomStatus(status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customStatuses = append(m.customStatuses, status)
	return nil
}

func (m *mockDiscordSession) SetHTTPClient(*http.Client) {}

func (m *mockDiscordSession) SetIdentify(discordgo.Identify) {}

func (m *mockDiscordSession) SetLogLevel(slog.Level) error { return nil }

func (m *mockDiscordSession) GatewayBot(
	...discordgo.RequestOption,
) (*discordgo.GatewayBotResponse, error) {
	return nil, errors.New("not implemented")
}

func (m *mockDiscordSession) messagesSentTo(channelID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.sentMessages[channelID]...)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
	assert.Equal(t, "hél", truncate("héllo", 3))
}

func TestHashAndVerifyPassword(t *testing.T) {
	hashed, err := HashPassword("hunter2")
	require.NoError(t, err)
	require.NotEmpty(t, hashed)

	valid, err := verifyPassword(hashed, "hunter2")
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = verifyPassword(hashed, "wrong")
	require.NoError(t, err)
	assert.False(t, valid)

	_, err = verifyPassword("garbage", "hunter2")
	assert.Error(t, err)
}

func TestStructToSlogValueRedaction(t *testing.T) {
	cfg := DiscordConfig{
		Token:         "secret-token",
		ApplicationID: "12345",
	}
	v := structToSlogValue(cfg)
	s := v.String()
	assert.NotContains(t, s, "secret-token")
	assert.Contains(t, s, "[redacted]")
	assert.Contains(t, s, "12345")
}
