package routes

import (
	"tinking/backend/internal/api/handlers"
	"tinking/backend/internal/api/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRoutes(h *handlers.Handler, gatherer prometheus.Gatherer) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", h.HealthCheck)

		// Page side of a session
		v1.GET("/ws/recipes/:id", h.RecipeWebSocket)

		recipes := v1.Group("/recipes")
		{
			recipes.POST("", h.CreateRecipe)
			recipes.GET("/:id", h.GetRecipe)
			recipes.DELETE("/:id", h.DeleteRecipe)

			recipes.POST("/:id/steps", h.AddStep)
			recipes.PUT("/:id/steps/:index", h.UpdateStep)
			recipes.DELETE("/:id/steps/:index", h.DeleteStep)
			recipes.GET("/:id/steps/:index/preview", h.GetPreview)

			recipes.POST("/:id/steps/:index/options", h.AddOption)
			recipes.PUT("/:id/steps/:index/options/:option", h.UpdateOption)
			recipes.DELETE("/:id/steps/:index/options/:option", h.DeleteOption)

			recipes.PUT("/:id/steps/:index/records/:record", h.UpdateRecord)
			recipes.DELETE("/:id/steps/:index/records/:record", h.DeleteRecord)

			recipes.POST("/:id/steps/:index/selection", h.StartSelection)
			recipes.DELETE("/:id/selection", h.StopSelection)
			recipes.DELETE("/:id/recording", h.StopRecording)

			recipes.POST("/:id/events", h.PostEvent)
			recipes.POST("/:id/interactions", h.PostInteraction)

			recipes.POST("/:id/generate", h.GenerateScript)
			recipes.POST("/:id/tinks", h.SaveTink)
			recipes.POST("/:id/tinks/:tinkID", h.LoadTink)
		}

		v1.GET("/tinks/:id", h.GetTink)
		v1.POST("/compile", h.Compile)
	}

	return router
}
