package api

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// RegisterRoutes wires every pipeline endpoint onto the echo instance.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.HTTPErrorHandler = ErrorHandler
	e.Use(middleware.Recover())

	e.GET("/api/health", h.HandleHealth)

	e.POST("/api/extractions", h.HandleSubmitExtraction)
	e.GET("/api/jobs/:sourceJobId", h.HandleJobStatus)

	reviews := e.Group("/api/reviews")
	reviews.GET("", h.HandleReviewQueue)
	reviews.POST("/:id/claim", h.HandleClaimReview)
	reviews.POST("/:id/correct", h.HandleCorrectReview)
	reviews.POST("/:id/approve", h.HandleApproveReview)
	reviews.POST("/:id/reject", h.HandleRejectReview)

	configs := e.Group("/api/configs")
	configs.POST("", h.HandleCreateConfig)
	configs.GET("/:org/:recordType", h.HandleGetActiveConfig)

	transfers := e.Group("/api/transfers")
	transfers.POST("/batch", h.HandleBatchTransfer)
	transfers.POST("/:id/retry", h.HandleRetryTransfer)
	transfers.POST("/:id/cancel", h.HandleCancelTransfer)
}
