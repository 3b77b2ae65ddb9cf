package api

import (
	"context"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/facecheck/internal/api/handlers"
	"github.com/your-org/facecheck/internal/api/ws"
	"github.com/your-org/facecheck/internal/attendance"
	"github.com/your-org/facecheck/internal/auth"
	"github.com/your-org/facecheck/internal/cooldown"
	"github.com/your-org/facecheck/internal/enroll"
	"github.com/your-org/facecheck/internal/gallery"
	"github.com/your-org/facecheck/internal/matcher"
	"github.com/your-org/facecheck/internal/recognition"
	"github.com/your-org/facecheck/internal/reload"
)

type RouterConfig struct {
	APIKey    string
	JWTSecret string

	Gallery     *gallery.Gallery
	Matcher     *matcher.Matcher
	Cooldown    *cooldown.Tracker
	Ledger      *attendance.Ledger
	Enroll      *enroll.Service
	Recognition *recognition.Service
	// Monitor is optional; without it the /v1/sync routes are not mounted.
	Monitor *reload.Monitor
	// Base is the lifetime of background work started over HTTP.
	Base context.Context
	// Hub is optional; without it /v1/ws is not mounted.
	Hub    *ws.Hub
	Checks map[string]handlers.Check
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.New(corsConfig()))

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Checks)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.Use(auth.Middleware(cfg.APIKey, cfg.JWTSecret))

	// Kiosk tier
	kiosk := v1.Group("", auth.Require(auth.RoleKiosk))
	recH := handlers.NewRecognitionHandler(cfg.Recognition, cfg.Ledger)
	kiosk.POST("/recognize", recH.Recognize)

	attH := handlers.NewAttendanceHandler(cfg.Ledger)
	kiosk.GET("/attendance/check/:id", attH.Check)
	if cfg.Hub != nil {
		kiosk.GET("/ws", cfg.Hub.HandleWS)
	}

	// Admin tier
	admin := v1.Group("", auth.Require(auth.RoleAdmin))

	idH := handlers.NewIdentityHandler(cfg.Enroll, cfg.Gallery)
	admin.POST("/identities", idH.Enroll)
	admin.GET("/identities", idH.List)
	admin.GET("/identities/:id", idH.Get)
	admin.POST("/identities/:id/face", idH.EnrollFace)
	admin.DELETE("/identities/:id", idH.Remove)

	galH := handlers.NewGalleryHandler(cfg.Gallery, cfg.Matcher, cfg.Cooldown, cfg.Enroll, cfg.Monitor)
	admin.GET("/gallery/stats", galH.Stats)
	admin.POST("/gallery/refresh", galH.Refresh)
	admin.PUT("/matcher/threshold", galH.SetThreshold)

	if cfg.Monitor != nil {
		base := cfg.Base
		if base == nil {
			base = context.Background()
		}
		syncH := handlers.NewSyncHandler(base, cfg.Monitor)
		admin.POST("/sync/start", syncH.Start)
		admin.POST("/sync/stop", syncH.Stop)
		admin.POST("/sync/check", syncH.Check)
		admin.GET("/sync/status", syncH.Status)
	}

	admin.GET("/attendance", attH.List)
	admin.GET("/attendance/today", attH.Today)
	admin.GET("/attendance/stats", attH.Stats)

	return r
}

func corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowAllOrigins = true
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization", "X-API-Key")
	return cfg
}
