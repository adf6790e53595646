package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/domain"
	httpHandler "github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/handler/http"
	wsHandler "github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/handler/websocket"
	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/hub"
	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/identity"
	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/infra/setup"
	redisstate "github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/infra/state/redis"
	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/presence"
	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/service"
	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/tasks"
)

// App holds the station's components so Start and Shutdown can reach
// them.
type App struct {
	Config      *Config
	Log         *logrus.Logger
	RedisClient *redis.Client
	AsynqClient *asynq.Client
	Hub         *hub.Hub
	Session     *service.Session
	Tracker     *presence.Tracker
	HttpServer  *http.Server
}

// stationView is the full local view pushed to a browser client right
// after it connects to the live socket.
type stationView struct {
	Status   service.Status          `json:"status"`
	State    domain.EventState       `json:"state"`
	Messages []domain.Message        `json:"messages"`
	Presence []domain.PresenceRecord `json:"presence"`
}

// NewApp creates and wires all station components.
func NewApp() (*App, error) {
	// 1. Configuration.
	cfg, err := LoadConfig(true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, err
	}

	// 2. Logger.
	log := logrus.New()
	if cfg.AppEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})
	}
	logLevel, _ := logrus.ParseLevel(cfg.LogLevel)
	log.SetLevel(logLevel)
	log.SetOutput(os.Stdout)
	log.Infof("Logger initialized (Level: %s, Format: %T)", logLevel.String(), log.Formatter)
	log.Info("Configuration loaded successfully")

	// 3. Device identity, resolved before anything touches the network.
	deviceID := identity.NewProvider(cfg.StateDir).DeviceID()
	log.WithField("device_id", deviceID).Info("Device identity resolved")

	// 4. Backend infrastructure.
	log.Info("Initializing infrastructure...")
	redisClient, err := setup.InitRedis(cfg.BackendAddr, cfg.BackendPassword, cfg.BackendDB)
	if err != nil {
		return nil, fmt.Errorf("failed to init backend client: %w", err)
	}
	log.Info("Backend client initialized")

	gateway := redisstate.NewGateway(redisClient, cfg.KeyPrefix, cfg.EventKey)
	presenceChannel := redisstate.NewPresenceChannel(redisClient, cfg.KeyPrefix, cfg.EventKey)
	log.Info("State gateway and presence channel initialized")

	var asynqClient *asynq.Client
	var archiver service.Archiver
	if cfg.ArchiveEnabled {
		asynqClient = asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.BackendAddr,
			Password: cfg.BackendPassword,
			DB:       cfg.BackendDB,
		})
		archiver = tasks.NewArchiveEnqueuer(asynqClient, cfg.EventKey)
		log.Info("Archive enqueuer initialized")
	}

	// 5. Services.
	log.Info("Initializing services...")
	stateService := service.NewStateService(gateway)
	logService := service.NewLogService(gateway)
	tracker := presence.NewTracker(presenceChannel, deviceID, cfg.Heartbeat)
	session := service.NewSession(gateway, tracker, stateService, logService, archiver, deviceID, cfg.RecentMessages)
	log.Info("Services initialized")

	// 6. Hub for the local live view.
	hubInstance := hub.NewHub(func() interface{} {
		return stationView{
			Status:   session.Status(),
			State:    stateService.Snapshot(),
			Messages: logService.Messages(),
			Presence: tracker.Members(),
		}
	})
	log.Info("Hub initialized")

	// Every local mutation and every remote notification lands here,
	// so the browser view stays in lockstep with the mirrors.
	wireHubEvents(hubInstance, session, stateService, logService, tracker)
	log.Info("Live view events wired")

	// 7. Handlers.
	stateHandler := httpHandler.NewStateHandler(session, stateService)
	messageHandler := httpHandler.NewMessageHandler(session, logService)
	roleHandler := httpHandler.NewRoleHandler(session, tracker)
	wifiHandler := httpHandler.NewWifiHandler(stateService)
	connectionHandler := httpHandler.NewConnectionHandler(session)
	socketHandler := wsHandler.NewWebSocketHandler(hubInstance)
	log.Info("Handlers initialized")

	// 8. Gin engine and routes.
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))

	api := router.Group("/api")
	{
		api.GET("/state", stateHandler.GetState)
		api.POST("/count", stateHandler.AdjustCount)
		api.PUT("/capacity", stateHandler.SetCapacity)
		api.PUT("/wifi", stateHandler.SetWiFi)
		api.GET("/wifi/qr", wifiHandler.QRImage)

		api.GET("/messages", messageHandler.ListMessages)
		api.POST("/messages", messageHandler.SendMessage)
		api.POST("/reset", messageHandler.FullReset)

		api.GET("/presence", roleHandler.GetPresence)
		api.PUT("/role", roleHandler.SetRole)

		api.GET("/connection", connectionHandler.Status)
		api.POST("/connection", connectionHandler.Connect)
		api.DELETE("/connection", connectionHandler.Disconnect)
	}
	router.GET("/ws", socketHandler.HandleConnection)
	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })
	log.Info("Router setup complete")

	httpServer := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	app := &App{
		Config:      cfg,
		Log:         log,
		RedisClient: redisClient,
		AsynqClient: asynqClient,
		Hub:         hubInstance,
		Session:     session,
		Tracker:     tracker,
		HttpServer:  httpServer,
	}
	log.Info("Application assembled successfully")
	return app, nil
}

// wireHubEvents forwards every mirror change to the live view.
func wireHubEvents(
	h *hub.Hub,
	session *service.Session,
	stateService *service.StateService,
	logService *service.LogService,
	tracker *presence.Tracker,
) {
	stateService.OnChange(func(state domain.EventState) {
		h.BroadcastEvent("state", state)
	})
	logService.OnAppend(func(msg domain.Message) {
		h.BroadcastEvent("message", msg)
	})
	logService.OnClear(func() {
		h.BroadcastEvent("log_cleared", nil)
	})
	session.OnStatus(func(st service.Status) {
		h.BroadcastEvent("status", st)
	})
	tracker.OnSync(func() {
		h.BroadcastEvent("presence", tracker.Members())
	})
}

// Start launches the hub loop and the HTTP server, then attempts the
// initial backend connection. A failed connect is not fatal: the
// status shows the error and the operator retries from the UI.
func (a *App) Start() {
	a.Log.Info("Starting application background routines...")
	go a.Hub.Run()
	a.Log.Info("Hub routine started")

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()

	if a.Config.AutoConnect {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := a.Session.Connect(ctx); err != nil {
				a.Log.WithError(err).Warn("Initial backend connection failed, waiting for operator retry")
			}
		}()
	}
}

// Shutdown closes the application gracefully.
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	// 1. Detach from the backend first so peers see the leave.
	a.Session.Disconnect()
	a.Log.Info("Backend session disconnected")

	// 2. HTTP server.
	a.Log.Info("Shutting down HTTP server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	} else {
		a.Log.Info("HTTP server shut down gracefully.")
	}

	// 3. Asynq client.
	if a.AsynqClient != nil {
		if err := a.AsynqClient.Close(); err != nil {
			a.Log.Errorf("Error closing Asynq client: %v", err)
		} else {
			a.Log.Info("Asynq client closed.")
		}
	}

	// 4. Backend connection.
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Log.Errorf("Error closing backend connection: %v", err)
		} else {
			a.Log.Info("Backend connection closed.")
		}
	}

	a.Log.Info("Application shutdown complete.")
}

// LoggerMiddleware logs every HTTP request with latency and status.
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path = path + "?" + c.Request.URL.RawQuery
		}
		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()

		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
			"path":        path,
		})

		if errorMessage != "" {
			entry.Error(errorMessage)
		} else {
			if statusCode >= 500 {
				entry.Error("Server error")
			} else if statusCode >= 400 {
				entry.Warn("Client error")
			} else {
				entry.Info("Request handled")
			}
		}
	}
}
