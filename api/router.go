package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/velocity-go/api/handlers"
	"github.com/yourusername/velocity-go/api/middleware"
	"github.com/yourusername/velocity-go/internal/app"
)

// SetupRouter sets up the HTTP router
func SetupRouter(service *app.Service, apiKey string, log *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS())
	router.Use(middleware.Auth(apiKey))

	healthHandler := handlers.NewHealthHandler(service)
	router.GET("/health", healthHandler.Health)

	mediaHandler := handlers.NewMediaHandler(service, log)
	router.POST("/info", mediaHandler.Info)
	router.POST("/info/raw", mediaHandler.RawInfo)
	router.GET("/formats", mediaHandler.FormatsQuery)
	router.POST("/formats", mediaHandler.Formats)
	router.POST("/stream", mediaHandler.Stream)
	router.POST("/playlist", mediaHandler.Playlist)
	router.POST("/library/:kind", mediaHandler.Library)
	router.POST("/cache/clear", mediaHandler.ClearCache)

	jobHandler := handlers.NewJobHandler(service, log)
	router.POST("/download", jobHandler.StartDownload)
	router.GET("/download/:id", jobHandler.GetJob)
	router.POST("/download/:id/cancel", jobHandler.CancelJob)
	router.GET("/jobs", jobHandler.ListJobs)
	router.GET("/jobs/stats", jobHandler.JobStats)

	return router
}
