package router

import (
	"fulfillment-service/internal/handlers"
	"fulfillment-service/internal/middleware"
	"fulfillment-service/internal/service"

	"github.com/gin-contrib/cors"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/gin-gonic/gin"
)

func Router(orders service.OrderService, carts service.CartService, verifier middleware.TokenVerifier, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
	}))

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	orderHandler := handlers.NewOrderHandler(orders, log)
	cartHandler := handlers.NewCartHandler(carts, log)

	api := r.Group("/api/v1", middleware.OptionalAuth(verifier, log))
	{
		// доступно гостю
		api.POST("/orders", orderHandler.CreateOrder)
		api.POST("/shipping/quote", orderHandler.GetShippingQuote)
	}

	authed := api.Group("", middleware.AuthRequired())
	{
		authed.GET("/orders", orderHandler.ListOrders)
		authed.GET("/orders/:id", orderHandler.GetOrder)
		authed.POST("/orders/:id/cancel", orderHandler.CancelOrder)
		authed.PATCH("/orders/:id/status", orderHandler.UpdateStatus)
		authed.DELETE("/orders/:id", orderHandler.DeleteOrder)

		authed.GET("/cart", cartHandler.GetCart)
		authed.DELETE("/cart", cartHandler.Clear)
		authed.POST("/cart/items", cartHandler.AddItem)
		authed.PATCH("/cart/items/:itemId", cartHandler.UpdateItem)
		authed.DELETE("/cart/items/:itemId", cartHandler.RemoveItem)
	}

	return r
}
