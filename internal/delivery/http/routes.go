package http

import (
	"github.com/gin-gonic/gin"
	"github.com/watchfinder/backend/config"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.MaxMultipartMemory = cfg.Sessions.MaxUploadMB << 20

	// Global middleware
	router.Use(RecoveryMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	// Health check endpoint
	router.GET("/health", handler.HealthCheck)

	// Server-rendered search page
	router.GET("/simple", handler.SimpleForm)
	router.POST("/simple", handler.SimpleSearch)

	// Session images; /image is the legacy spelling older clients used
	router.GET("/results/image/:session_id/:platform/:filename", handler.SessionImage)
	router.GET("/image/:session_id/:platform/:filename", handler.SessionImage)

	// Search API
	router.POST("/upload_reference", handler.UploadReference)
	router.POST("/start_search", handler.StartSearch)
	router.GET("/results/latest", handler.LatestResults)
	router.GET("/api/status", handler.APIStatus)

	return router
}
