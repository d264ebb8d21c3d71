package app

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/noah-isme/chronos/internal/handler"
	"github.com/noah-isme/chronos/internal/middleware"
	"github.com/noah-isme/chronos/internal/service"
	"github.com/noah-isme/chronos/pkg/config"
	"github.com/noah-isme/chronos/pkg/logger"
	corsmiddleware "github.com/noah-isme/chronos/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/chronos/pkg/middleware/requestid"
)

// NewRouter mounts the HTTP surface on a fresh gin engine.
func NewRouter(a *App) *gin.Engine {
	cfg := a.Config
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(a.Logger))
	r.Use(corsmiddleware.New(corsmiddleware.Options{AllowedOrigins: cfg.CORS.AllowedOrigins}))
	r.Use(middleware.Metrics(a.Metrics))

	metricsHandler := handler.NewMetricsHandler(a.Metrics, a.Ready)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	commands := handler.NewCommandHandler(a.Classifier, a.Executor, a.Drafts, a.Preferences, a.Validate)
	events := handler.NewEventHandler(a.Executor, a.Preferences, a.Validate)
	ledger := handler.NewLedgerHandler(a.Ledger)
	voice := handler.NewVoiceHandler(a.Transcriber)
	prefs := handler.NewPreferencesHandler(a.Preferences, a.Validate)
	tokens := handler.NewProviderAuthHandler(a.Broker, a.Validate)
	exports := handler.NewExportHandler(a.Exports, a.Validate)
	audit := func(action string) gin.HandlerFunc { return middleware.Audit(a.Logger.Named("audit"), action) }

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.WithResponseMeta())

	// Download tokens are signed, so the link works without a bearer token.
	api.GET("/exports/download/:token", exports.Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(a.Auth), middleware.RequireScope(service.ScopeCalendar))
	{
		secured.POST("/commands/classify", commands.Classify)
		secured.POST("/commands/execute", audit("execute"), commands.Execute)
		secured.POST("/drafts/time", commands.ConfirmTime)
		secured.POST("/drafts/duration", commands.ConfirmDuration)

		secured.GET("/events", events.List)
		secured.GET("/events/recent", events.Recent)
		secured.POST("/events/search", events.Search)
		secured.DELETE("/events/:provider/:id", audit("delete_event"), events.Delete)
		secured.POST("/events/:provider/:id/restore", audit("restore_event"), events.Restore)
		secured.PATCH("/events/:provider/:id", audit("modify_event"), events.Modify)

		secured.GET("/ledger", ledger.History)
		secured.POST("/ledger/undo", audit("undo"), ledger.Undo)
		secured.POST("/ledger/redo", audit("redo"), ledger.Redo)
		secured.DELETE("/ledger", audit("clear_ledger"), ledger.Clear)

		secured.POST("/voice/transcribe", voice.Transcribe)

		secured.GET("/preferences", prefs.Get)
		secured.PUT("/preferences", prefs.Update)

		secured.GET("/auth/status", tokens.Status)
		secured.PUT("/auth/:provider/token", audit("store_token"), tokens.StoreToken)
		secured.DELETE("/auth/:provider/token", audit("clear_token"), tokens.ClearToken)

		secured.POST("/exports", exports.Create)
		secured.GET("/exports/:id", exports.Status)
	}

	admin := api.Group("")
	admin.Use(middleware.JWT(a.Auth), middleware.RequireScope(service.ScopeAdmin))
	admin.GET("/stats", metricsHandler.Stats)

	return r
}
