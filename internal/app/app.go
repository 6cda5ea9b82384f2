package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/qwmc/qwmc-web/internal/access"
	"github.com/qwmc/qwmc-web/internal/account"
	"github.com/qwmc/qwmc-web/internal/applications"
	"github.com/qwmc/qwmc-web/internal/config"
	"github.com/qwmc/qwmc-web/internal/db"
	"github.com/qwmc/qwmc-web/internal/http/api/admin"
	"github.com/qwmc/qwmc-web/internal/http/api/front"
	"github.com/qwmc/qwmc-web/internal/http/middleware"
	"github.com/qwmc/qwmc-web/internal/metrics"
	"github.com/qwmc/qwmc-web/internal/moderation"
	"github.com/qwmc/qwmc-web/internal/news"
	"github.com/qwmc/qwmc-web/internal/punishments"
	"github.com/qwmc/qwmc-web/internal/ratelimit"
	"github.com/qwmc/qwmc-web/internal/security"
	"github.com/qwmc/qwmc-web/internal/session"
	internalsettings "github.com/qwmc/qwmc-web/internal/settings"
	"github.com/qwmc/qwmc-web/internal/tickets"
	"github.com/qwmc/qwmc-web/internal/watcher"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const shutdownTimeout = 5 * time.Second

// Options carries resolved configuration for NewEngine.
type Options struct {
	DSN     string               // Database DSN, described by the init status route.
	Server  config.ServerConfig  // Listener and CORS settings.
	Session config.SessionConfig // Cookie signing settings.
	Metrics *metrics.Metrics     // Optional Prometheus collectors.
	Limiter *ratelimit.Manager   // Login limiter; built from settings when nil.
}

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	dsn, err := resolveDSN(config.ResolveConfigPath(cfg.ConfigPath))
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return db.Migrate(conn.WithContext(ctx))
}

// RunServer boots the site API and blocks until ctx is cancelled.
func RunServer(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := resolveDSN(configPath)
	if err != nil {
		return err
	}
	serverCfg, err := config.LoadServerConfig(configPath)
	if err != nil {
		return err
	}
	sessionCfg, err := config.LoadSessionConfig(configPath)
	if err != nil {
		return err
	}
	if sessionCfg.Secret == "" {
		secret, errSecret := security.GenerateRandomString(32)
		if errSecret != nil {
			return fmt.Errorf("generate session secret: %w", errSecret)
		}
		sessionCfg.Secret = secret
		log.Warn("no session secret configured; generated an ephemeral one, sessions will not survive a restart")
	}
	if cfg.ListenAddr != "" {
		serverCfg.Addr = cfg.ListenAddr
	}
	if serverCfg.Debug {
		log.SetLevel(log.DebugLevel)
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	if errRefresh := internalsettings.Refresh(ctx, conn); errRefresh != nil {
		return errRefresh
	}

	m, err := metrics.New(metrics.Options{})
	if err != nil {
		return err
	}
	limiter := ratelimit.NewManager(nil, nil, nil)
	defer func() {
		if errClose := limiter.Close(); errClose != nil {
			log.WithError(errClose).Warn("close login limiter")
		}
	}()
	engine, err := NewEngine(conn, Options{DSN: dsn, Server: serverCfg, Session: sessionCfg, Metrics: m, Limiter: limiter})
	if err != nil {
		return err
	}

	dbWatcher := watcher.New(conn, punishments.NewService(conn, moderation.NewService(conn)))
	dbWatcher.Start(ctx)
	defer dbWatcher.Stop()

	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
			log.Errorf("server shutdown error: %v", errShutdown)
		}
	}()

	log.Infof("starting %s on %s with config=%s", internalsettings.SiteName(), serverCfg.Addr, configPath)
	if errListen := srv.ListenAndServe(); errListen != nil && !errors.Is(errListen, http.ErrServerClosed) {
		return errListen
	}
	return nil
}

// NewEngine wires every service and route onto a gin engine.
func NewEngine(conn *gorm.DB, opts Options) (*gin.Engine, error) {
	if conn == nil {
		return nil, fmt.Errorf("nil db")
	}

	users := account.NewStore(conn)
	sessions := session.NewManager(users, opts.Session)
	guard := access.NewGuard(sessions, users)
	mod := moderation.NewService(conn)
	ticketSvc := tickets.NewService(conn)
	newsSvc := news.NewService(conn)
	punishmentSvc := punishments.NewService(conn, mod)
	applicationSvc := applications.NewService(conn, punishmentSvc)
	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.NewManager(nil, nil, nil)
	}

	engine := gin.New()
	engine.Use(middleware.Recovery())
	engine.Use(middleware.RequestID())
	engine.Use(middleware.RequestLogger())
	if opts.Metrics != nil {
		engine.Use(opts.Metrics.Handler())
		engine.GET("/metrics", gin.WrapH(opts.Metrics.Exposition()))
	}
	if len(opts.Server.AllowedOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = opts.Server.AllowedOrigins
		corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", middleware.RequestIDHeader}
		corsConfig.ExposeHeaders = []string{middleware.RequestIDHeader}
		corsConfig.AllowCredentials = true
		engine.Use(cors.New(corsConfig))
	}

	initCtrl, err := newInitController(conn, opts.DSN, sessions)
	if err != nil {
		return nil, err
	}
	initCtrl.register(engine)

	admin.RegisterAdminRoutes(engine, conn, admin.Services{
		Guard:        guard,
		Users:        users,
		Moderation:   mod,
		Tickets:      ticketSvc,
		News:         newsSvc,
		Punishments:  punishmentSvc,
		Applications: applicationSvc,
		Metrics:      opts.Metrics,
	})
	front.RegisterFrontRoutes(engine, front.Services{
		Guard:        guard,
		Users:        users,
		Sessions:     sessions,
		Limiter:      limiter,
		Moderation:   mod,
		Tickets:      ticketSvc,
		News:         newsSvc,
		Applications: applicationSvc,
		Metrics:      opts.Metrics,
	})
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	return engine, nil
}

// resolveDSN loads the configured DSN, falling back to a local SQLite file.
func resolveDSN(configPath string) (string, error) {
	dsn, err := config.LoadDatabaseDSN(configPath)
	if errors.Is(err, config.ErrMissingDatabaseDSN) {
		log.Warnf("no database dsn configured; using sqlite file %s", db.DefaultSQLitePath)
		return db.BuildSQLiteDSN(db.DefaultSQLitePath), nil
	}
	return dsn, err
}
