package routes

import (
	"github.com/gin-gonic/gin"

	"voxmeter/internal/api/v1/handlers"
	"voxmeter/internal/api/v1/services"
)

// ServiceContainer holds all services needed by handlers. Jobs may be nil.
type ServiceContainer struct {
	Operations services.OperationService
	Jobs       services.JobService
	Usage      services.UsageService
	Uploads    services.UploadService
	Files      services.FileService
}

// RegisterRoutes registers all v1 API routes
func RegisterRoutes(router *gin.RouterGroup, container *ServiceContainer) {
	operationHandler := handlers.NewOperationHandler(container.Operations, container.Jobs)
	router.POST("/transcribe", operationHandler.Transcribe)
	router.POST("/translate", operationHandler.Translate)
	router.POST("/detect-language", operationHandler.DetectLanguage)
	router.POST("/split", operationHandler.Split)
	router.POST("/convert", operationHandler.Convert)

	if container.Usage != nil {
		usageHandler := handlers.NewUsageHandler(container.Usage)
		router.GET("/usage", usageHandler.Get)
	}

	if container.Files != nil {
		fileHandler := handlers.NewFileHandler(container.Files)
		router.GET("/files", fileHandler.List)
		router.GET("/files/:id", fileHandler.Get)
		router.POST("/files/:id/complete", fileHandler.Complete)
		router.DELETE("/files/:id", fileHandler.Delete)
	}

	if container.Uploads != nil {
		uploadHandler := handlers.NewUploadHandler(container.Uploads)
		router.POST("/uploads/presign", uploadHandler.Presign)
	}
}
