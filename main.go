package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"lead-allocation/internal/auth"
	"lead-allocation/internal/catalog"
	"lead-allocation/internal/chat"
	"lead-allocation/internal/config"
	"lead-allocation/internal/dashboard"
	"lead-allocation/internal/kvstore"
	"lead-allocation/internal/location"
	"lead-allocation/internal/logger"
	"lead-allocation/internal/metrics"
	"lead-allocation/internal/models"
	"lead-allocation/internal/notify"
	"lead-allocation/internal/ocr"
)

type app struct {
	cfg      *config.Config
	catalog  *catalog.Catalog
	sessions *dashboard.Sessions
	records  *ocr.Recorder
	creds    auth.Credentials
	jobs     *JobStore
}

func loadCatalog(cfg *config.Config) *catalog.Catalog {
	if cfg.CatalogXLSX == "" {
		return catalog.Seed()
	}
	c, err := catalog.FromExcel(cfg.CatalogXLSX, cfg.CatalogSheet)
	if err != nil {
		logger.L().Error("catalog_load_failed", "path", cfg.CatalogXLSX, "err", err)
		os.Exit(1)
	}
	return c
}

// trackerFactory resolves positions through GeoIP when a database is
// configured. Without one every fix is the fallback point.
func trackerFactory(cfg *config.Config, geo *location.GeoIP) dashboard.TrackerFactory {
	opts := location.DefaultOptions
	opts.Timeout = cfg.LocationTimeout
	opts.MaxCacheAge = cfg.LocationMaxAge
	fallback := models.GeoPoint{Latitude: cfg.FallbackLat, Longitude: cfg.FallbackLng}

	return func(clientIP string) *location.Tracker {
		var p location.Provider
		if geo != nil {
			p = geo.ForIP(clientIP)
		}
		return location.NewTracker(p, opts, fallback, cfg.LocationRefresh)
	}
}

func newRouter(a *app) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logger.Access(logger.L()))

	store := cookie.NewStore([]byte(a.cfg.SessionSecret))
	r.Use(sessions.Sessions("leadsession", store))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "leads": a.catalog.Len()})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	r.POST("/login", a.login)
	r.GET("/logout", a.logout)

	authorized := r.Group("/")
	authorized.Use(auth.Required)
	{
		authorized.GET("/api/leads/rank", a.rank)
		authorized.GET("/api/leads/nearest", a.nearest)
		authorized.GET("/api/leads/export", a.exportRanked)

		authorized.GET("/api/dashboard", a.showDashboard)
		authorized.POST("/api/dashboard/sort", a.toggleSort)
		authorized.POST("/api/dashboard/filter", a.toggleFilter)
		authorized.POST("/api/dashboard/location", a.setLocation)

		authorized.POST("/api/ocr/parse", a.parseOCR)
		authorized.POST("/api/ocr/fields", a.editField)
		authorized.GET("/api/ocr/records", a.listRecords)
		authorized.POST("/api/ocr/records", a.saveRecord)

		authorized.GET("/api/chat", a.chatHistory)
		authorized.POST("/api/chat", a.chatSend)

		authorized.POST("/api/notifications/trigger", a.triggerNotification)
		authorized.GET("/api/notifications/pending", a.pendingNotification)
		authorized.POST("/api/notifications/accept", a.acceptNotification)
		authorized.POST("/api/notifications/reject", a.rejectNotification)
		authorized.GET("/api/notifications/declined", a.declinedLeads)

		authorized.POST("/run", a.runJob)
		authorized.GET("/logs", a.jobLogs)
		authorized.GET("/status", a.jobStatus)
		authorized.GET("/download-result/:filename", a.downloadResult)
	}
	return r
}

func main() {
	cfg := config.Load()
	log := logger.Setup()
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, dir := range []string{cfg.UploadDir, cfg.OutputDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Error("mkdir_failed", "dir", dir, "err", err)
			os.Exit(1)
		}
	}

	cat := loadCatalog(cfg)
	log.Info("catalog_loaded", "leads", cat.Len())

	kv, closeKV, err := kvstore.Open(cfg.StoreBackend)
	if err != nil {
		log.Error("store_open_failed", "backend", cfg.StoreBackend, "err", err)
		os.Exit(1)
	}
	defer closeKV()

	var pub notify.Publisher = notify.NopPublisher{}
	if cfg.AMQPURL != "" {
		conn, ch, err := notify.SetupConn(cfg.AMQPURL)
		if err != nil {
			log.Error("amqp_setup_failed", "err", err)
			os.Exit(1)
		}
		defer conn.Close()
		defer ch.Close()
		pub = notify.NewAMQPPublisher(ch)

		subCh, err := conn.Channel()
		if err != nil {
			log.Error("amqp_channel_failed", "err", err)
			os.Exit(1)
		}
		defer subCh.Close()
		if err := notify.NewAMQPSubscriber(subCh).Subscribe(ctx, notify.AllLeadsKey, notify.RecordDelivery); err != nil {
			log.Error("amqp_subscribe_failed", "err", err)
			os.Exit(1)
		}
	}

	var geo *location.GeoIP
	if cfg.GeoIPDB != "" {
		geo, err = location.OpenGeoIP(cfg.GeoIPDB)
		if err != nil {
			log.Warn("geoip_open_failed", "path", cfg.GeoIPDB, "err", err)
			geo = nil
		} else {
			defer geo.Close()
		}
	}

	a := &app{
		cfg:      cfg,
		catalog:  cat,
		sessions: dashboard.NewSessions(ctx, cat, cfg.FilterThreshold, trackerFactory(cfg, geo), chat.NewMockBackend(cfg.ChatDelay), pub),
		records:  ocr.NewRecorder(kv),
		creds:    auth.Credentials{User: cfg.LoginUser, PasswordHash: cfg.LoginPasswordHash},
		jobs:     NewJobStore(),
	}
	defer a.sessions.CloseAll()
	if cfg.SessionIdle > 0 {
		go a.sessions.ExpireEvery(ctx, time.Minute, cfg.SessionIdle)
	}
	if cfg.LoginPasswordHash == "" {
		log.Warn("login_disabled", "reason", "LOGIN_PASSWORD_HASH is empty")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(a),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("server_start", "port", cfg.Port, "store", cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server_error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server_shutdown_error", "err", err)
	}
	log.Info("server_stopped")
}
