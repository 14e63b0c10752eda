package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
)

const (
	serviceName    = "portfolio"
	serviceVersion = "1.0.0"
)

// App wires the site's services together. Handlers hang off it as methods.
type App struct {
	cfg     *Config
	profile *Profile
	store   *Store
	chat    *ChatService
	contact *ContactService
	metrics *Metrics
	admin   *adminAuth
	salt    string

	chatLimiter    *RateLimiter
	contactLimiter *RateLimiter
	loginLimiter   *RateLimiter

	wg sync.WaitGroup
}

type AppDeps struct {
	Store     *Store
	Sessions  SessionStore
	Generator Generator
	Mailer    Mailer
	Metrics   *Metrics
}

func NewApp(cfg *Config, profile *Profile, deps AppDeps) (*App, error) {
	admin, err := newAdminAuth(cfg.Admin)
	if err != nil {
		return nil, err
	}

	app := &App{
		cfg:     cfg,
		profile: profile,
		store:   deps.Store,
		metrics: deps.Metrics,
		admin:   admin,
		salt:    randomHex(32),
	}
	app.chat = NewChatService(deps.Sessions, deps.Generator, profile, cfg.Chat, deps.Metrics, deps.Store)
	app.contact = NewContactService(deps.Store, deps.Mailer, deps.Metrics)
	app.chatLimiter = NewRateLimiter(perMinute(cfg.ChatRatePerMinute), cfg.ChatRatePerMinute, time.Hour, app.clientKey)
	app.contactLimiter = NewRateLimiter(perHour(cfg.ContactRatePerHour), cfg.ContactRatePerHour, 2*time.Hour, app.clientKey)
	app.loginLimiter = NewRateLimiter(perMinute(5), 5, time.Hour, app.clientKey)
	return app, nil
}

// background runs fn off the request path with its own deadline.
func (app *App) background(fn func(ctx context.Context)) {
	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		fn(ctx)
	}()
}

// Wait blocks until background work has finished.
func (app *App) Wait() { app.wg.Wait() }

func (app *App) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.SetFuncMap(templateFuncs())
	r.LoadHTMLGlob("templates/*")

	r.Static("/static", "./static")
	r.Use(app.visitorTrackingMiddleware())

	app.setupPageRoutes(r)
	app.setupAPIRoutes(r)
	app.setupAdminRoutes(r)

	r.GET("/health", app.health)
	r.GET("/metrics", gin.WrapH(app.metrics.Handler()))
	return r
}

func (app *App) corsMiddleware() gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	if len(app.cfg.CORSOrigins) == 1 && app.cfg.CORSOrigins[0] == "*" {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = app.cfg.CORSOrigins
		cfg.AllowCredentials = true
	}
	cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}
	return cors.New(cfg)
}

// startJobs schedules nightly retention cleanup and housekeeping of
// in-memory maps.
func (app *App) startJobs(sessions SessionStore) *cron.Cron {
	c := cron.New()

	if _, err := c.AddFunc("0 3 * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		app.cleanupOldVisitorData(ctx)
	}); err != nil {
		slog.Error("scheduling visitor cleanup", "error", err)
	}

	if _, err := c.AddFunc("@every 10m", func() {
		app.chatLimiter.sweep()
		app.contactLimiter.sweep()
		app.loginLimiter.sweep()
		if mem, ok := sessions.(*memoryStore); ok {
			if n := mem.sweep(); n > 0 {
				slog.Debug("expired chat sessions", "removed", n)
			}
		}
	}); err != nil {
		slog.Error("scheduling sweeps", "error", err)
	}

	c.Start()
	return c
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	newLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	profile, err := LoadProfile(cfg.ProfilePath)
	if err != nil {
		slog.Error("loading profile", "error", err)
		os.Exit(1)
	}
	if cfg.SMTP.ToEmail == "" {
		cfg.SMTP.ToEmail = profile.Developer.Email
	}

	store, err := OpenStore(cfg.DBPath)
	if err != nil {
		slog.Error("opening database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sessions SessionStore = newMemoryStore(cfg.Chat.SessionTTL)
	if cfg.RedisURL != "" {
		client := newRedisClient(cfg.RedisURL)
		if err := client.Ping(ctx).Err(); err != nil {
			slog.Error("connecting to redis", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		sessions = newRedisStore(client, cfg.Chat.SessionTTL)
		slog.Info("chat sessions stored in redis")
	}

	gen, err := newGenerator(ctx, cfg.Gemini, nil)
	if err != nil {
		slog.Error("creating model client", "error", err)
		os.Exit(1)
	}
	if _, ok := gen.(unavailableGenerator); ok {
		slog.Warn("GEMINI_API_KEY not set; the assistant will answer with the fallback message")
	}

	app, err := NewApp(cfg, profile, AppDeps{
		Store:     store,
		Sessions:  sessions,
		Generator: gen,
		Mailer:    newSMTPMailer(cfg.SMTP),
		Metrics:   NewMetrics(),
	})
	if err != nil {
		slog.Error("building app", "error", err)
		os.Exit(1)
	}

	app.background(app.cleanupOldVisitorData)
	jobs := app.startJobs(sessions)
	defer jobs.Stop()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("listening", "addr", srv.Addr, "model", cfg.Gemini.Model)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	app.Wait()
}
