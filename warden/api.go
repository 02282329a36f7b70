package warden

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/securecookie"
	gsessions "github.com/gorilla/sessions"
	"github.com/lmittmann/tint"
	"golang.org/x/time/rate"
)

const (
	apiPrefix             = "/api"
	apiPathLogin          = "/login"
	apiPathLogout         = "/logout"
	apiPathLoggedIn       = "/logged_in"
	apiHealthCheck        = "/healthz"
	apiPathConfig         = "/config"
	apiPathGuildConfigs   = "/guilds"
	apiPathGuildConfig    = "/guild/:id"
	apiPathViolations     = "/violations"
	apiPathResetUser      = "/guild/:id/user/:user_id/reset"
	apiPathActionLogs     = "/actions"
	apiPathQuit           = "/quit"
	apiPathRegisterCmds   = "/discord/register_commands"
	apiPathReloadConfig   = "/config/reload"
	defaultListPageLimit  = 100
	maxViolationsPageSize = 500
)

const (
	xRequestIDHeader = "X-Request-ID"
	sessionVarName   = "user"
	sessionVarField  = "username"
)

var structValidator = validator.New()

func init() {
	structValidator.SetTagName("binding")
}

// API is the admin HTTP server: login-gated endpoints for inspecting and
// mutating moderation state while the bot runs.
type API struct {
	config              *APIConfig
	httpServer          *http.Server
	listener            net.Listener
	engine              *gin.Engine
	store               CookieStore
	loginRequestLimiter *rate.Limiter
	requestMetrics      map[string]int
	requestMetricsMu    sync.Mutex
	logger              *slog.Logger

	handlers *APIHandlers
}

// newAPI initializes and returns a new instance of the API struct,
// wiring middleware, the session store and all routes.
func newAPI(w *Warden, config *APIConfig) (*API, error) {
	setupLogger := slog.New(
		tint.NewHandler(
			os.Stdout, &tint.Options{
				Level:     config.LogLevel,
				AddSource: true,
			},
		),
	)

	r := gin.New()

	api := &API{
		config:              config,
		engine:              r,
		requestMetrics:      map[string]int{},
		loginRequestLimiter: rate.NewLimiter(rate.Limit(1), 1),
	}
	apiHandlers := NewAPIHandlers(w)
	api.handlers = apiHandlers
	api.store = apiHandlers.store
	_ = r.Use(sessions.Sessions(sessionVarName, apiHandlers.store))

	if config.SSL.Cert != "" || config.SSL.Key != "" {
		tlsCfg, e := tlsConfig(
			config.SSL.Cert,
			config.SSL.Key,
			config.SSL.TLSMinVersion,
		)
		if e != nil {
			return nil, fmt.Errorf("error loading SSL certs: %w", e)
		}
		api.httpServer = &http.Server{TLSConfig: tlsCfg}
	} else {
		api.httpServer = &http.Server{}
	}

	api.httpServer.Addr = config.Listen
	api.httpServer.Handler = r
	api.httpServer.WriteTimeout = config.WriteTimeout
	api.httpServer.IdleTimeout = config.IdleTimeout
	api.httpServer.ReadTimeout = config.ReadTimeout
	api.httpServer.ReadHeaderTimeout = config.ReadHeaderTimeout
	api.logger = setupLogger.With(loggerNameKey, "api")

	corsConfig := config.CORS.GINConfig()
	if len(corsConfig.AllowOrigins) == 0 && api.config.Development {
		corsConfig.AllowOrigins = []string{"*"}
	}

	if !config.Development {
		r.Use(gin.Recovery())
	}
	r.Use(
		requestIDMiddleware(),
		ginLoggingMiddleware(),
		metricMiddleware(api),
		cors.New(corsConfig),
	)

	r.POST(apiPathLogin, apiHandlers.loginHandler)
	r.GET(apiHealthCheck, apiHandlers.healthCheck)
	r.POST(apiPathLogout, apiHandlers.logoutHandler)

	protected := r.Group(apiPrefix)
	protected.Use(authMiddleware(w))

	protected.GET(apiPathLoggedIn, apiHandlers.loggedIn)
	protected.GET(apiPathConfig, apiHandlers.getRuntimeConfig)
	protected.PATCH(apiPathConfig, apiHandlers.updateRuntimeConfig)
	protected.POST(apiPathReloadConfig, apiHandlers.reloadRuntimeConfig)
	protected.GET(apiPathGuildConfigs, apiHandlers.getGuildConfigs)
	protected.GET(apiPathGuildConfig, apiHandlers.getGuildConfig)
	protected.PATCH(apiPathGuildConfig, apiHandlers.updateGuildConfig)
	protected.GET(apiPathViolations, apiHandlers.getViolations)
	protected.POST(apiPathResetUser, apiHandlers.resetUserViolations)
	protected.GET(apiPathActionLogs, apiHandlers.getActionLogs)
	protected.POST(apiPathQuit, apiHandlers.botQuit)
	protected.POST(apiPathRegisterCmds, apiHandlers.discordRegisterCommands)

	return api, nil
}

// Serve starts the HTTP server, with TLS when certificates are
// configured.
func (a *API) Serve(ctx context.Context) error {
	if a.listener != nil {
		return a.httpServer.Serve(a.listener)
	}
	listenCfg := &net.ListenConfig{}
	ln, e := listenCfg.Listen(ctx, a.config.ListenNetwork, a.config.Listen)
	if e != nil {
		return e
	}
	if a.httpServer.TLSConfig != nil {
		ln = tls.NewListener(ln, a.httpServer.TLSConfig)
	}
	a.listener = ln
	return a.httpServer.Serve(a.listener)
}

func (a *API) getSessionUsername(c *gin.Context) (string, error) {
	session, err := a.store.Get(c.Request, sessionVarName)
	if err != nil {
		return "", err
	}
	username, ok := session.Values[sessionVarField]
	if !ok {
		return "", errors.New("username not found in session")
	}
	s, ok := username.(string)
	if !ok {
		return "", errors.New("username not a string")
	}
	if s == "" {
		return "", errors.New("empty username")
	}
	return s, nil
}

// CookieStore is the session store interface, satisfied by the gorilla
// cookie store.
type CookieStore interface {
	sessions.Store
}

func NewCookieStore(keyPairs ...[]byte) CookieStore {
	return &cookieStore{gsessions.NewCookieStore(keyPairs...)}
}

type cookieStore struct {
	*gsessions.CookieStore
}

func (c *cookieStore) Options(options sessions.Options) {
	c.CookieStore.Options = options.ToGorillaOptions()
}

// APIHandlers contains the handlers for the various API endpoints.
type APIHandlers struct {
	w      *Warden
	logger *slog.Logger
	store  CookieStore
}

// NewAPIHandlers initializes and returns a new instance of APIHandlers,
// generating a session secret when none is configured.
func NewAPIHandlers(w *Warden) *APIHandlers {
	logger := w.logger.With(loggerNameKey, "api")

	var secretKey []byte
	switch sk := w.config.API.Secret; {
	case sk == "":
		logger.Warn(
			"api secret not set, generating random secret " +
				"(sessions will not persist across restarts)",
		)
		secretKey = securecookie.GenerateRandomKey(64)
	default:
		secretKey = derive64ByteKey(sk)
	}

	store := NewCookieStore(secretKey)
	sameSite := http.SameSiteStrictMode
	if w.config.API.Development {
		sameSite = http.SameSiteNoneMode
	}
	store.Options(
		sessions.Options{
			HttpOnly: true,
			Secure:   true,
			MaxAge:   int(w.config.API.SessionMaxAge.Seconds()),
			SameSite: sameSite,
		},
	)
	return &APIHandlers{w: w, logger: logger, store: store}
}

func (h *APIHandlers) loginHandler(c *gin.Context) {
	logger := ginContextLogger(c)
	if !h.w.api.loginRequestLimiter.Allow() {
		logger.Warn("login rate limited")
		c.AbortWithStatus(http.StatusTooManyRequests)
		return
	}

	var login userLogin
	if err := c.ShouldBindJSON(&login); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, httpError{Error: err.Error()})
		return
	}

	runtimeConfig := h.w.RuntimeConfig()
	if runtimeConfig.AdminUsername == "" || runtimeConfig.AdminPassword == "" {
		logger.Warn("admin username and password not set")
		c.AbortWithStatusJSON(http.StatusUnauthorized, httpError{Error: "unauthorized"})
		return
	}
	if login.Username != runtimeConfig.AdminUsername {
		logger.Warn("admin username incorrect")
		c.AbortWithStatusJSON(http.StatusUnauthorized, httpError{Error: "unauthorized"})
		return
	}
	valid, err := verifyPassword(runtimeConfig.AdminPassword, login.Password)
	if err != nil {
		logger.Error("error verifying password", tint.Err(err))
		ginReplyError(c, "internal server error")
		return
	}
	if !valid {
		logger.Warn("invalid login attempt", "username", login.Username)
		c.AbortWithStatusJSON(http.StatusUnauthorized, httpError{Error: "unauthorized"})
		return
	}

	session, err := h.w.api.store.New(c.Request, sessionVarName)
	if err != nil || session == nil {
		logger.Error("error creating session", tint.Err(err))
		ginReplyError(c, "internal server error")
		return
	}
	sameSite := http.SameSiteStrictMode
	if h.w.api.config.Development {
		sameSite = http.SameSiteNoneMode
	}
	session.Options = &gsessions.Options{
		MaxAge:   int(h.w.api.config.SessionMaxAge.Seconds()),
		SameSite: sameSite,
		HttpOnly: true,
		Secure:   true,
	}
	session.Values[sessionVarField] = login.Username
	if err = session.Save(c.Request, c.Writer); err != nil {
		logger.Error("error saving session", tint.Err(err))
		ginReplyError(c, "internal server error")
		return
	}
	logger.Info("saved user session", "username", login.Username)
	c.JSON(http.StatusOK, loggedInResponse{Username: login.Username})
}

func (h *APIHandlers) healthCheck(c *gin.Context) {
	c.JSON(
		http.StatusOK, healthCheckResponse{
			Paused:                  h.w.paused.Load(),
			DiscordGatewayConnected: h.w.discord.connected.Load(),
			MessagesSeen:            h.w.discord.metricMessagesSeen.Load(),
		},
	)
}

func (h *APIHandlers) logoutHandler(c *gin.Context) {
	logger := ginContextLogger(c)
	session, err := h.store.Get(c.Request, sessionVarName)
	if err != nil {
		logger.Error("error getting session", tint.Err(err))
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	session.Values[sessionVarField] = ""
	if err = session.Save(c.Request, c.Writer); err != nil {
		logger.Error("error saving cookie", tint.Err(err))
	}
	ginReplyMessage(c, "logged out")
}

func (h *APIHandlers) loggedIn(c *gin.Context) {
	username, err := h.w.api.getSessionUsername(c)
	if err != nil {
		ginContextLogger(c).Warn("error getting session username", tint.Err(err))
		c.AbortWithStatusJSON(
			http.StatusUnauthorized,
			httpError{Error: "unauthorized"},
		)
		return
	}
	c.JSON(http.StatusOK, loggedInResponse{Username: username})
}

func (h *APIHandlers) getRuntimeConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.w.RuntimeConfig())
}

// updateRuntimeConfig applies a partial runtime config update, persists
// it, and signals other instances to reload.
func (h *APIHandlers) updateRuntimeConfig(c *gin.Context) {
	logger := ginContextLogger(c)

	var update RuntimeConfigUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, httpError{Error: err.Error()})
		return
	}
	if err := structValidator.Struct(update); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, httpError{Error: err.Error()})
		return
	}

	h.w.cfgMu.Lock()
	defer h.w.cfgMu.Unlock()

	cfg := *h.w.runtimeConfig
	updates := update.apply(&cfg)
	if len(updates) == 0 {
		c.JSON(http.StatusOK, cfg)
		return
	}
	ctx := c.Request.Context()
	if _, err := h.w.writeDB.Updates(ctx, h.w.runtimeConfig, updates); err != nil {
		logger.Error("error updating runtime config", tint.Err(err))
		ginReplyError(c, "error updating config")
		return
	}
	*h.w.runtimeConfig = cfg
	h.w.applyRuntimeConfig(ctx, cfg)
	h.w.dbNotifier.ReloadRuntimeConfig(ctx)

	logger.Info("updated runtime config", "config", cfg)
	c.JSON(http.StatusOK, cfg)
}

func (h *APIHandlers) reloadRuntimeConfig(c *gin.Context) {
	if err := h.w.refreshRuntimeConfig(c.Request.Context()); err != nil {
		ginReplyError(c, "error reloading config")
		return
	}
	c.JSON(http.StatusOK, h.w.RuntimeConfig())
}

func (h *APIHandlers) getGuildConfigs(c *gin.Context) {
	c.JSON(http.StatusOK, h.w.guildConfigs.All())
}

func (h *APIHandlers) getGuildConfig(c *gin.Context) {
	guildID := c.Param("id")
	cfg, err := h.w.guildConfigs.Get(c.Request.Context(), guildID)
	if err != nil {
		ginContextLogger(c).Error("error getting guild config", tint.Err(err))
		ginReplyError(c, "error getting guild config")
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// guildConfigUpdate is the admin API payload for updating a guild's
// moderation settings. Pointer fields distinguish "not provided" from
// zero values.
type guildConfigUpdate struct {
	RulesEnabled                *bool     `json:"rules_enabled,omitempty"`
	FilterEnabled               *bool     `json:"filter_enabled,omitempty"`
	AIModerationEnabled         *bool     `json:"ai_moderation_enabled,omitempty"`
	ToxicityThreshold           *float64  `json:"toxicity_threshold,omitempty" binding:"omitempty,gt=0,lte=1"`
	SpamMentionLimit            *int      `json:"spam_mention_limit,omitempty" binding:"omitempty,gt=0"`
	WarningThreshold            *int      `json:"warning_threshold,omitempty" binding:"omitempty,gt=0"`
	TimeoutDuration             *Duration `json:"timeout_duration,omitempty"`
	Severity2DeleteFirstOffense *bool     `json:"severity2_delete_first_offense,omitempty"`
	ModLogChannelID             *string   `json:"mod_log_channel_id,omitempty"`
	BlockedWords                *string   `json:"blocked_words,omitempty"`
	BlockedDomains              *string   `json:"blocked_domains,omitempty"`
}

func (u guildConfigUpdate) apply(cfg *GuildConfig) {
	if u.RulesEnabled != nil {
		cfg.RulesEnabled = *u.RulesEnabled
	}
	if u.FilterEnabled != nil {
		cfg.FilterEnabled = *u.FilterEnabled
	}
	if u.AIModerationEnabled != nil {
		cfg.AIModerationEnabled = *u.AIModerationEnabled
	}
	if u.ToxicityThreshold != nil {
		cfg.ToxicityThreshold = *u.ToxicityThreshold
	}
	if u.SpamMentionLimit != nil {
		cfg.SpamMentionLimit = *u.SpamMentionLimit
	}
	if u.WarningThreshold != nil {
		cfg.WarningThreshold = *u.WarningThreshold
	}
	if u.TimeoutDuration != nil {
		cfg.TimeoutDuration = *u.TimeoutDuration
	}
	if u.Severity2DeleteFirstOffense != nil {
		cfg.Severity2DeleteFirstOffense = *u.Severity2DeleteFirstOffense
	}
	if u.ModLogChannelID != nil {
		cfg.ModLogChannelID = *u.ModLogChannelID
	}
	if u.BlockedWords != nil {
		cfg.BlockedWords = *u.BlockedWords
	}
	if u.BlockedDomains != nil {
		cfg.BlockedDomains = *u.BlockedDomains
	}
}

func (h *APIHandlers) updateGuildConfig(c *gin.Context) {
	logger := ginContextLogger(c)
	guildID := c.Param("id")

	var update guildConfigUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, httpError{Error: err.Error()})
		return
	}
	if err := structValidator.Struct(update); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, httpError{Error: err.Error()})
		return
	}

	ctx := c.Request.Context()
	cfg, err := h.w.guildConfigs.Get(ctx, guildID)
	if err != nil {
		logger.Error("error getting guild config", tint.Err(err))
		ginReplyError(c, "error getting guild config")
		return
	}
	update.apply(&cfg)
	if err = h.w.guildConfigs.Save(ctx, cfg); err != nil {
		logger.Error("error saving guild config", tint.Err(err))
		ginReplyError(c, "error saving guild config")
		return
	}
	h.w.dbNotifier.GuildConfigUpdated(ctx, guildID)
	c.JSON(http.StatusOK, cfg)
}

func (h *APIHandlers) getViolations(c *gin.Context) {
	guildID := c.Query("guild_id")
	userID := c.Query("user_id")
	limit := queryIntDefault(c, "limit", defaultListPageLimit)
	if limit > maxViolationsPageSize {
		limit = maxViolationsPageSize
	}

	query := h.w.writeDB.DB().WithContext(c.Request.Context()).
		Model(&Violation{}).
		Order("timestamp desc").
		Limit(limit)
	if guildID != "" {
		query = query.Where("guild_id = ?", guildID)
	}
	if userID != "" {
		query = query.Where("user_id = ?", userID)
	}
	var violations []Violation
	if err := query.Find(&violations).Error; err != nil {
		ginContextLogger(c).Error("error getting violations", tint.Err(err))
		ginReplyError(c, "error getting violations")
		return
	}
	c.JSON(http.StatusOK, violations)
}

func (h *APIHandlers) resetUserViolations(c *gin.Context) {
	guildID := c.Param("id")
	userID := c.Param("user_id")
	ctx := c.Request.Context()

	reset, err := h.w.violations.ResetViolations(ctx, guildID, userID)
	if err != nil {
		ginContextLogger(c).Error("error resetting violations", tint.Err(err))
		ginReplyError(c, "error resetting violations")
		return
	}
	if _, err = h.w.violations.ResetWarnings(ctx, guildID, userID); err != nil {
		ginContextLogger(c).Error("error resetting warnings", tint.Err(err))
		ginReplyError(c, "error resetting warnings")
		return
	}
	c.JSON(http.StatusOK, gin.H{"reset": reset})
}

func (h *APIHandlers) getActionLogs(c *gin.Context) {
	guildID := c.Query("guild_id")
	userID := c.Query("user_id")
	limit := queryIntDefault(c, "limit", defaultListPageLimit)
	if limit > maxViolationsPageSize {
		limit = maxViolationsPageSize
	}

	query := h.w.writeDB.DB().WithContext(c.Request.Context()).
		Model(&ModerationActionLog{}).
		Order("created_at desc").
		Limit(limit)
	if guildID != "" {
		query = query.Where("guild_id = ?", guildID)
	}
	if userID != "" {
		query = query.Where("user_id = ?", userID)
	}
	var logs []ModerationActionLog
	if err := query.Find(&logs).Error; err != nil {
		ginContextLogger(c).Error("error getting action logs", tint.Err(err))
		ginReplyError(c, "error getting action logs")
		return
	}
	c.JSON(http.StatusOK, logs)
}

func (h *APIHandlers) botQuit(c *gin.Context) {
	logger := ginContextLogger(c)
	logger.Warn("received quit request")
	if sent := h.w.dbNotifier.Stop(c.Request.Context()); !sent {
		ginReplyError(c, "error sending stop signal")
		return
	}
	ginReplyMessage(c, "stopping")
}

func (h *APIHandlers) discordRegisterCommands(c *gin.Context) {
	created, err := h.w.discord.registerCommands()
	if err != nil {
		ginReplyError(c, "error registering commands")
		return
	}
	names := make([]string, 0, len(created))
	for _, cmd := range created {
		names = append(names, cmd.Name)
	}
	c.JSON(http.StatusOK, gin.H{"registered": names})
}

func queryIntDefault(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

type httpError struct {
	Error string `json:"error"`
}

type httpReply struct {
	Message string `json:"message"`
}

type userLogin struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loggedInResponse struct {
	Username string `json:"username"`
}

type healthCheckResponse struct {
	Paused                  bool  `json:"paused"`
	DiscordGatewayConnected bool  `json:"discord_gateway_connected"`
	MessagesSeen            int64 `json:"messages_seen"`
}

// authMiddleware returns a Gin middleware function for authentication,
// rejecting requests without a valid session.
func authMiddleware(w *Warden) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := ginContextLogger(c)

		session, err := w.api.store.Get(c.Request, sessionVarName)
		if err != nil || session == nil {
			logger.Warn("error getting session", tint.Err(err))
			c.AbortWithStatusJSON(
				http.StatusUnauthorized,
				httpError{Error: "unauthorized"},
			)
			return
		}

		username, ok := session.Values[sessionVarField]
		if !ok || username == "" {
			logger.Warn("username not found in session")
			c.AbortWithStatusJSON(
				http.StatusUnauthorized,
				httpError{Error: "unauthorized"},
			)
			return
		}

		c.Next()
	}
}

// requestIDMiddleware assigns a unique request ID to each incoming
// request, set both in the gin context and as a response header.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := generateRandomHexString(32)
		if err != nil {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		c.Set(xRequestIDHeader, id)
		if requestID, exists := c.Get(xRequestIDHeader); exists {
			c.Header(xRequestIDHeader, requestID.(string))
		}
		c.Next()
	}
}

// ginContextLogger returns the slog.Logger from the given gin context,
// or, if it doesn't exist, creates a logger with request details included,
// and sets the logger in the context so the next call to ginContextLogger
// will return the new logger.
func ginContextLogger(c *gin.Context) *slog.Logger {
	var requestLogger *slog.Logger
	logger, ok := c.Get(string(loggerContextKey))
	if ok {
		requestLogger, ok = logger.(*slog.Logger)
		if ok {
			return requestLogger
		}
	}
	requestLogger = slog.Default()
	requestID, _ := c.Get(xRequestIDHeader)
	path := c.Request.URL.Path
	raw := c.Request.URL.RawQuery
	if raw != "" {
		path = path + "?" + raw
	}

	requestLogger = requestLogger.With(
		slog.Group(
			"request",
			"method", c.Request.Method,
			"path", path,
			"remote_addr", c.Request.RemoteAddr,
			"remote_ip", c.RemoteIP(),
			"user_agent", c.Request.UserAgent(),
			"referer", c.Request.Referer(),
		),
		slog.Any(xRequestIDHeader, requestID),
	)
	c.Set(string(loggerContextKey), requestLogger)
	return requestLogger
}

// ginLoggingMiddleware returns a Gin middleware function for logging
// HTTP requests, including duration and response status.
func ginLoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestLogger := ginContextLogger(c)
		c.Next()
		latency := time.Since(start)

		var errs []error
		for _, e := range c.Errors.ByType(gin.ErrorTypePrivate) {
			errs = append(errs, *e)
		}
		if len(errs) > 0 {
			requestLogger.Error(
				fmt.Sprintf(
					"%s %s finished with errors",
					c.Request.Method,
					c.Request.URL,
				),
				"duration", latency,
				"errors", errs,
				slog.Group(
					"response",
					"status_code", c.Writer.Status(),
					"body_size", c.Writer.Size(),
				),
			)
		} else {
			requestLogger.Info(
				fmt.Sprintf("%s %s finished", c.Request.Method, c.Request.URL),
				"duration", latency,
				slog.Group(
					"response",
					"status_code", c.Writer.Status(),
					"body_size", c.Writer.Size(),
				),
			)
		}
	}
}

// metricMiddleware tracks request counts per method and path.
func metricMiddleware(a *API) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer c.Next()

		a.requestMetricsMu.Lock()
		defer a.requestMetricsMu.Unlock()

		key := fmt.Sprintf("%s %s", c.Request.Method, c.Request.URL.Path)
		_, ok := a.requestMetrics[key]
		if !ok {
			a.requestMetrics[key] = 1
			return
		}
		a.requestMetrics[key]++
	}
}

// ginReplyMessage sends a JSON response with a message,
// with HTTP status code 200, via the gin context.
func ginReplyMessage(c *gin.Context, message string) {
	c.JSON(http.StatusOK, httpReply{Message: message})
}

// ginReplyError sends a JSON response with a message,
// with HTTP status code 500, via the gin context.
func ginReplyError(c *gin.Context, err string) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, httpError{Error: err})
}
