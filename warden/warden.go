package warden

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Build metadata, set via -ldflags.
var (
	Version   = "dev"
	CommitSHA = ""
	BuildTime = ""
)

var defaultLogWriter io.Writer = os.Stdout

// Warden is the top-level bot: it owns the database, the Discord
// connection, the moderation pipeline and the admin API.
type Warden struct {
	config  *Config
	logger  *slog.Logger
	handler slog.Handler

	db      *gorm.DB
	writeDB DBI

	discord  *Discord
	api      *API
	openai   *OpenAI
	executor *ActionExecutor

	rules        *RuleSet
	violations   *ViolationStore
	guildConfigs *GuildConfigCache

	dbNotifier DBNotifier

	runtimeConfig *RuntimeConfig
	cfgMu         sync.RWMutex

	paused atomic.Bool

	// eventsInFlight counts message-create events currently being
	// processed, for draining on shutdown.
	eventsInFlight atomic.Int64

	signalStop                    chan struct{}
	triggerRuntimeConfigRefreshCh chan bool
	triggerGuildRefreshCh         chan string

	ctx       context.Context
	cancelRun context.CancelFunc
}

// New creates a Warden instance from the given config. It validates the
// config and sets up logging; everything stateful happens in [Warden.Run].
func New(config *Config) (*Warden, error) {
	if config == nil {
		return nil, errors.New("nil config")
	}
	if err := structValidator.Struct(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	handler := tint.NewHandler(
		defaultLogWriter, &tint.Options{
			Level:     config.LogLevel,
			AddSource: true,
		},
	)
	logger := slog.New(handler).With(loggerNameKey, "warden")
	slog.SetDefault(logger)

	w := &Warden{
		config:                        config,
		logger:                        logger,
		handler:                       handler,
		rules:                         DefaultRuleSet(),
		signalStop:                    make(chan struct{}, 1),
		triggerRuntimeConfigRefreshCh: make(chan bool, 1),
		triggerGuildRefreshCh:         make(chan string, 8),
	}

	discord, err := newDiscord(config.Discord)
	if err != nil {
		return nil, err
	}
	w.discord = discord
	discord.w = w
	discord.logger = slog.New(
		tint.NewHandler(
			defaultLogWriter, &tint.Options{
				Level:     config.Discord.LogLevel,
				AddSource: true,
			},
		),
	).With(loggerNameKey, "discord")

	if config.OpenAI.Token != "" {
		w.openai = newOpenAI(config.OpenAI, config.HTTPClient)
	}

	return w, nil
}

// RuntimeConfig returns a copy of the current runtime configuration.
func (w *Warden) RuntimeConfig() RuntimeConfig {
	w.cfgMu.RLock()
	defer w.cfgMu.RUnlock()
	if w.runtimeConfig == nil {
		return DefaultRuntimeConfig()
	}
	return *w.runtimeConfig
}

// init sets up the database, stores, notifier, Discord session and API.
func (w *Warden) init(ctx context.Context) error {
	db, err := CreateDB(ctx, w.config.DatabaseType, w.config.Database)
	if err != nil {
		return fmt.Errorf("error initializing database: %w", err)
	}
	w.db = db
	w.writeDB = NewDatabase(
		db,
		w.logger,
		w.config.DatabaseType == dbTypePostgres,
	)

	if err = w.loadRuntimeConfig(ctx); err != nil {
		return err
	}

	w.violations = newViolationStore(w.writeDB, w.logger)
	w.guildConfigs = newGuildConfigCache(w.writeDB, w.logger)
	if err = w.guildConfigs.LoadAll(ctx); err != nil {
		return fmt.Errorf("error loading guild configs: %w", err)
	}

	w.dbNotifier, err = newDBNotifier(w)
	if err != nil {
		return err
	}

	session, err := w.discord.newSession()
	if err != nil {
		return err
	}
	w.discord.session = session
	w.executor = newActionExecutor(session, w.writeDB, w.guildConfigs, w.logger)

	w.api, err = newAPI(w, w.config.API)
	if err != nil {
		return err
	}

	return nil
}

// loadRuntimeConfig fetches the runtime config row, creating a default
// one on first run, and applies it.
func (w *Warden) loadRuntimeConfig(ctx context.Context) error {
	var cfg RuntimeConfig
	rv := w.db.WithContext(ctx).Last(&cfg)
	if rv.Error != nil {
		if !errors.Is(rv.Error, gorm.ErrRecordNotFound) {
			return fmt.Errorf("error loading runtime config: %w", rv.Error)
		}
		cfg = DefaultRuntimeConfig()
		if _, err := w.writeDB.Create(ctx, &cfg); err != nil {
			return fmt.Errorf("error creating runtime config: %w", err)
		}
		w.logger.InfoContext(ctx, "created default runtime config")
	}
	w.cfgMu.Lock()
	w.runtimeConfig = &cfg
	w.cfgMu.Unlock()
	w.applyRuntimeConfig(ctx, cfg)
	return nil
}

// refreshRuntimeConfig reloads the runtime config from the database and
// applies it. Called on notifier signal.
func (w *Warden) refreshRuntimeConfig(ctx context.Context) error {
	var cfg RuntimeConfig
	rv := w.db.WithContext(ctx).Last(&cfg)
	if rv.Error != nil {
		return rv.Error
	}
	w.cfgMu.Lock()
	w.runtimeConfig = &cfg
	w.cfgMu.Unlock()
	w.applyRuntimeConfig(ctx, cfg)
	return nil
}

// applyRuntimeConfig pushes runtime config values into live components:
// log levels, the paused flag, the moderation request limit and the
// bot's custom status.
func (w *Warden) applyRuntimeConfig(ctx context.Context, cfg RuntimeConfig) {
	w.paused.Store(cfg.Paused)

	w.config.LogLevel.Set(cfg.LogLevel.Level())
	w.config.Discord.LogLevel.Set(cfg.DiscordLogLevel.Level())
	w.config.API.LogLevel.Set(cfg.APILogLevel.Level())
	w.config.DatabaseLogLevel.Set(cfg.DatabaseLogLevel.Level())
	w.config.OpenAI.LogLevel.Set(cfg.OpenAILogLevel.Level())

	if w.openai != nil && cfg.OpenAIMaxRequestsPerSecond > 0 {
		w.openai.setRequestLimit(cfg.OpenAIMaxRequestsPerSecond)
	}

	if w.discord != nil && w.discord.connected.Load() {
		if err := w.discord.updateCustomStatus(cfg.DiscordCustomStatus); err != nil {
			w.logger.WarnContext(
				ctx, "unable to update custom status", tint.Err(err),
			)
		}
	}
}

// Run starts the bot: connects to Discord, registers commands, starts the
// admin API and notifier listeners, and blocks until the context is
// canceled or a stop signal arrives.
func (w *Warden) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w.ctx = ctx
	w.cancelRun = cancel

	startupCtx, startupCancel := context.WithTimeout(
		ctx, w.config.StartupTimeout,
	)
	defer startupCancel()
	if err := w.init(startupCtx); err != nil {
		return err
	}

	w.discord.discordgoRemoveHandlerFuncs = []func(){
		w.discord.session.AddHandler(w.discord.handlerReady()),
		w.discord.session.AddHandler(w.discord.handlerConnect()),
		w.discord.session.AddHandler(w.discord.handlerDisconnect()),
		w.discord.session.AddHandler(w.discord.handlerGuildCreate()),
		w.discord.session.AddHandler(w.discord.handlerInteractionCreate()),
		w.discord.session.AddHandler(w.handlerMessageCreate()),
	}

	if err := w.discord.session.Open(); err != nil {
		return fmt.Errorf("error opening discord connection: %w", err)
	}

	if _, err := w.discord.registerCommands(); err != nil {
		return fmt.Errorf("error registering commands: %w", err)
	}

	runtimeConfig := w.RuntimeConfig()
	if runtimeConfig.DiscordCustomStatus != "" {
		if err := w.discord.updateCustomStatus(
			runtimeConfig.DiscordCustomStatus,
		); err != nil {
			w.logger.Warn("unable to set custom status", tint.Err(err))
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(
		func() error {
			w.logger.Info("starting API server", "listen", w.config.API.Listen)
			serveErr := w.api.Serve(gctx)
			if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
				return serveErr
			}
			return nil
		},
	)

	if w.config.DatabaseType == dbTypePostgres {
		for _, channel := range []string{
			w.dbNotifier.RuntimeConfigChannelName(),
			w.dbNotifier.GuildConfigChannelName(),
			w.dbNotifier.StopChannelName(),
		} {
			ch := channel
			g.Go(
				func() error {
					return w.dbNotifier.Listen(gctx, ch)
				},
			)
		}
	}

	g.Go(
		func() error {
			w.watchSignals(gctx)
			return nil
		},
	)

	w.logger.Info("warden running", "version", Version)

	select {
	case <-ctx.Done():
		w.logger.Warn("context canceled, shutting down")
	case <-gctx.Done():
		w.logger.Warn("run group stopped, shutting down")
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(), w.config.ShutdownTimeout,
	)
	defer shutdownCancel()
	w.shutdown(shutdownCtx)

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// watchSignals handles stop and reload signals until the context ends.
func (w *Warden) watchSignals(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.signalStop:
			w.logger.Warn("received stop signal")
			if w.cancelRun != nil {
				w.cancelRun()
			}
			return
		case <-w.triggerRuntimeConfigRefreshCh:
			if err := w.refreshRuntimeConfig(ctx); err != nil {
				w.logger.Error(
					"error refreshing runtime config", tint.Err(err),
				)
			}
		case guildID := <-w.triggerGuildRefreshCh:
			if err := w.guildConfigs.Refresh(ctx, guildID); err != nil {
				w.logger.Error(
					"error refreshing guild config",
					"guild_id", guildID,
					tint.Err(err),
				)
			}
		}
	}
}

// shutdown drains in-flight events and closes the Discord session and
// API server.
func (w *Warden) shutdown(ctx context.Context) {
	drainTicker := time.NewTicker(100 * time.Millisecond)
	defer drainTicker.Stop()
	for w.eventsInFlight.Load() > 0 {
		select {
		case <-ctx.Done():
			w.logger.Warn(
				"shutdown timeout with events in flight",
				"events_in_flight", w.eventsInFlight.Load(),
			)
			break
		case <-drainTicker.C:
		}
		if ctx.Err() != nil {
			break
		}
	}

	if w.discord != nil && w.discord.session != nil {
		for _, removeHandler := range w.discord.discordgoRemoveHandlerFuncs {
			removeHandler()
		}
		if err := w.discord.session.Close(); err != nil {
			w.logger.Error("error closing discord session", tint.Err(err))
		}
	}
	if w.api != nil && w.api.httpServer != nil {
		if err := w.api.httpServer.Shutdown(ctx); err != nil {
			w.logger.Error("error shutting down API server", tint.Err(err))
		}
	}
	w.logger.Info("shutdown complete")
}

// syntheticSpamRule is used when the spam heuristics flag a message.
var syntheticSpamRule = Rule{
	ID:          "spam",
	Name:        "Spam",
	Description: "Mention floods, repeated content and suspicious links",
	Severity:    2,
}

// syntheticAIRule is used when the AI moderation score exceeds the
// guild's toxicity threshold.
var syntheticAIRule = Rule{
	ID:          "ai",
	Name:        "AI Moderation",
	Description: "Content flagged by automated toxicity scoring",
	Severity:    3,
}

// handlerMessageCreate returns the gateway handler that feeds messages
// through the moderation pipeline: profanity filter, rule matcher, spam
// heuristics, then AI moderation. The first stage that fires wins.
func (w *Warden) handlerMessageCreate() func(
	s *discordgo.Session,
	m *discordgo.MessageCreate,
) {
	return func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m == nil || m.Author == nil || m.Author.Bot {
			return
		}
		// DMs aren't moderated.
		if m.GuildID == "" {
			return
		}
		w.discord.metricMessagesSeen.Add(1)
		if w.paused.Load() {
			return
		}

		w.eventsInFlight.Add(1)
		defer w.eventsInFlight.Add(-1)

		ctx, cancel := context.WithTimeout(w.ctx, 30*time.Second)
		defer cancel()

		logger := w.logger.With(
			"guild_id", m.GuildID,
			"channel_id", m.ChannelID,
			"user_id", m.Author.ID,
			"message_id", m.ID,
		)
		ctx = WithLogger(ctx, logger)

		cfg, err := w.guildConfigs.Get(ctx, m.GuildID)
		if err != nil {
			logger.Error("error getting guild config", tint.Err(err))
			return
		}

		channelName := w.channelName(s, m.ChannelID)

		if cfg.FilterEnabled && w.checkProfanity(ctx, m, cfg) {
			return
		}
		if cfg.RulesEnabled {
			if rule, matched := w.rules.Match(m.Content, channelName); matched {
				w.enforceRule(ctx, m, rule, cfg)
				return
			}
		}
		if verdict, spam := checkSpam(
			m.Content, len(m.Mentions), cfg,
		); spam {
			w.enforceSynthetic(ctx, m, syntheticSpamRule, cfg, verdict.Reason)
			return
		}
		if cfg.AIModerationEnabled && w.openai != nil {
			score, scoreErr := w.openai.ScoreMessage(ctx, m.Content)
			if scoreErr != nil {
				// Scoring failures never block the message.
				return
			}
			if score.Score > cfg.ToxicityThreshold {
				w.enforceSynthetic(
					ctx,
					m,
					syntheticAIRule,
					cfg,
					fmt.Sprintf(
						"%s score %.2f exceeds threshold %.2f",
						score.Category,
						score.Score,
						cfg.ToxicityThreshold,
					),
				)
			}
		}
	}
}

// channelName resolves a channel's name from the session state cache,
// falling back to the API.
func (w *Warden) channelName(s *discordgo.Session, channelID string) string {
	if s != nil && s.State != nil {
		if ch, err := s.State.Channel(channelID); err == nil && ch != nil {
			return ch.Name
		}
	}
	if s != nil {
		if ch, err := s.Channel(channelID); err == nil && ch != nil {
			return ch.Name
		}
	}
	return ""
}

// checkProfanity runs the word filter. On a hit the message is deleted,
// the warning counter bumped, and the user timed out once they reach the
// guild's warning threshold. Reports whether the filter fired.
func (w *Warden) checkProfanity(
	ctx context.Context,
	m *discordgo.MessageCreate,
	cfg GuildConfig,
) bool {
	logger, _ := ContextLogger(ctx)
	if logger == nil {
		logger = w.logger
	}
	word, hit := w.guildConfigs.Filter(m.GuildID).Check(m.Content)
	if !hit {
		return false
	}
	logger.Info("profanity filter matched", "word", word)

	newCount, err := w.violations.IncrementWarning(ctx, m.GuildID, m.Author.ID)
	if err != nil {
		logger.Error("error incrementing warning count", tint.Err(err))
	}

	entry := w.executor.Execute(
		ctx, enforcementRequest{
			GuildID:   m.GuildID,
			ChannelID: m.ChannelID,
			MessageID: m.ID,
			UserID:    m.Author.ID,
			Username:  m.Author.Username,
			Content:   m.Content,
			Rule: Rule{
				ID:          "filter",
				Name:        "Word Filter",
				Description: "Messages containing filtered words are removed.",
				Severity:    1,
			},
			Action: ActionWarnDelete,
			Reason: fmt.Sprintf("filtered word (warning %d)", newCount),
		},
	)

	threshold := cfg.WarningThreshold
	if threshold <= 0 {
		threshold = DefaultWarningThreshold
	}
	if newCount >= threshold {
		timeout := cfg.TimeoutDuration.Duration
		if timeout <= 0 {
			timeout = DefaultTimeoutDuration
		}
		if err = w.executor.timeoutUser(
			ctx, m.GuildID, m.Author.ID, timeout,
		); err != nil {
			logger.Error("error timing out user", tint.Err(err))
		} else {
			alerted, alertErr := w.executor.alertTimeout(
				ctx, enforcementRequest{
					GuildID:   m.GuildID,
					ChannelID: m.ChannelID,
					UserID:    m.Author.ID,
					Username:  m.Author.Username,
				}, newCount, timeout,
			)
			if alertErr != nil {
				logger.Warn(
					"unable to post timeout notice", tint.Err(alertErr),
				)
			}
			if _, updErr := w.writeDB.Updates(
				ctx, &entry, map[string]any{
					"timed_out":   true,
					"mod_alerted": alerted,
				},
			); updErr != nil {
				logger.Error("error updating action log", tint.Err(updErr))
			}
			// The counter resets once the timeout lands, starting the
			// next cycle from zero.
			if _, resetErr := w.violations.ResetWarnings(
				ctx, m.GuildID, m.Author.ID,
			); resetErr != nil {
				logger.Error("error resetting warnings", tint.Err(resetErr))
			}
		}
	}
	return true
}

// enforceRule records a violation for a matched rule, decides the action
// from the post-insert count, and executes it.
func (w *Warden) enforceRule(
	ctx context.Context,
	m *discordgo.MessageCreate,
	rule Rule,
	cfg GuildConfig,
) {
	logger, _ := ContextLogger(ctx)
	if logger == nil {
		logger = w.logger
	}
	count, err := w.violations.AddViolation(
		ctx, m.GuildID, m.Author.ID, rule, m.ChannelID,
	)
	if err != nil {
		logger.Error("error recording violation", tint.Err(err))
		// Enforcement proceeds; the count just reads as a first
		// offense.
		count = 1
	}

	recent, err := w.violations.RecentViolations(
		ctx, m.GuildID, m.Author.ID, w.config.Moderation.ViolationWindow,
	)
	if err != nil {
		logger.Error("error getting recent violations", tint.Err(err))
	}

	action := decideAction(rule, count, cfg.Severity2DeleteFirstOffense)
	w.executor.Execute(
		ctx, enforcementRequest{
			GuildID:     m.GuildID,
			ChannelID:   m.ChannelID,
			MessageID:   m.ID,
			UserID:      m.Author.ID,
			Username:    m.Author.Username,
			Content:     m.Content,
			Rule:        rule,
			Action:      action,
			RecentCount: int64(len(recent)),
		},
	)
}

// enforceSynthetic routes spam and AI moderation hits through the same
// record/decide/execute pipeline as the static rules.
func (w *Warden) enforceSynthetic(
	ctx context.Context,
	m *discordgo.MessageCreate,
	rule Rule,
	cfg GuildConfig,
	reason string,
) {
	logger, _ := ContextLogger(ctx)
	if logger == nil {
		logger = w.logger
	}
	count, err := w.violations.AddViolation(
		ctx, m.GuildID, m.Author.ID, rule, m.ChannelID,
	)
	if err != nil {
		logger.Error("error recording violation", tint.Err(err))
		count = 1
	}

	recent, err := w.violations.RecentViolations(
		ctx, m.GuildID, m.Author.ID, w.config.Moderation.ViolationWindow,
	)
	if err != nil {
		logger.Error("error getting recent violations", tint.Err(err))
	}

	action := decideAction(rule, count, cfg.Severity2DeleteFirstOffense)
	w.executor.Execute(
		ctx, enforcementRequest{
			GuildID:     m.GuildID,
			ChannelID:   m.ChannelID,
			MessageID:   m.ID,
			UserID:      m.Author.ID,
			Username:    m.Author.Username,
			Content:     m.Content,
			Rule:        rule,
			Action:      action,
			RecentCount: int64(len(recent)),
			Reason:      reason,
		},
	)
}
