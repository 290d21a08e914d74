package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// SetupRouter wires every route under /api/v1 behind the standard middleware chain.
func SetupRouter(h *Handler, mode string, log zerolog.Logger) *gin.Engine {
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)

	r := gin.New()
	r.Use(RequestIDMiddleware(log))
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	api := r.Group("/api/v1", AuthMiddleware())
	{
		rules := api.Group("/rules")
		{
			rules.GET("", h.ListRules)
			rules.POST("", h.CreateRule)
			rules.POST("/reorder", h.ReorderRules)
			rules.POST("/move", h.MoveRule)
			rules.GET("/:id", h.GetRule)
			rules.PUT("/:id", h.UpdateRule)
			rules.DELETE("/:id", h.DeleteRule)
			rules.POST("/:id/test", h.TestRule)
			rules.POST("/:id/apply", h.ApplyRule)
		}

		patterns := api.Group("/patterns")
		{
			patterns.GET("", h.ListPatterns)
			patterns.POST("", h.CreatePattern)
			patterns.POST("/match", h.MatchPattern)
			patterns.GET("/:id", h.GetPattern)
			patterns.PUT("/:id", h.UpdatePattern)
			patterns.DELETE("/:id", h.DeletePattern)
		}

		transactions := api.Group("/transactions")
		{
			transactions.POST("/:id/classify", h.ClassifyTransaction)
			transactions.POST("/:id/accept", h.AcceptSuggestion)
		}

		subscriptions := api.Group("/subscriptions")
		{
			subscriptions.GET("", h.ListSubscriptions)
			subscriptions.POST("", h.CreateSubscription)
			subscriptions.GET("/detect", h.DetectSubscriptions)
			subscriptions.GET("/upcoming", h.UpcomingRenewals)
			subscriptions.GET("/missed", h.MissedPayments)
			subscriptions.GET("/:id", h.GetSubscription)
		}

		extractions := api.Group("/extractions")
		{
			extractions.GET("", h.ListExtractions)
			extractions.POST("", h.IngestExtraction)
			extractions.POST("/bulk", h.BulkReview)
			extractions.POST("/auto-approve", h.AutoApprove)
			extractions.POST("/:id/approve", h.ApproveExtraction)
			extractions.POST("/:id/reject", h.RejectExtraction)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
