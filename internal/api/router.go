package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"checkout-scan-backend/config"
	"checkout-scan-backend/internal/mw"
	"checkout-scan-backend/internal/scan"
	"checkout-scan-backend/internal/store"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(s store.Store, sessions *scan.Manager, webpushOptions *webpush.Options, cfg *config.ServerConfig) *gin.Engine {
	r := gin.Default()

	tokenTTL := time.Duration(cfg.TokenTTLMinutes) * time.Minute
	tokens := cache.New(tokenTTL, 10*time.Minute)
	handler := NewHandler(s, sessions, webpushOptions, tokens, tokenTTL)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 10*time.Minute)
	caching := mw.Cache(cacheStore, cacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		// Detection sessions, one per operator device.
		sess := api.Group("/scan/sessions")
		{
			sess.POST("", handler.OpenSession)
			sess.GET("/:id", handler.GetSession)
			sess.DELETE("/:id", handler.CloseSession)
			sess.POST("/:id/start", handler.StartSession)
			sess.POST("/:id/stop", handler.StopSession)
			sess.POST("/:id/frames", handler.PushFrames)
			sess.POST("/:id/manual", handler.SubmitManual)
			sess.POST("/:id/retry", handler.RetryLookup)
			sess.POST("/:id/cancel", handler.CancelSession)
			sess.PUT("/:id/quantity", handler.SetQuantity)
			sess.PUT("/:id/mode", handler.SetMode)
			sess.POST("/:id/confirm", handler.ConfirmAdd)
			sess.GET("/:id/history", handler.GetHistory)
		}

		// Shopper-facing cart surface.
		api.GET("/products", caching, handler.ListProducts)
		api.GET("/carts/:code", handler.GetCart)
		api.GET("/carts/:code/items", handler.GetCartItems)
		api.POST("/carts/:code/items", handler.AddCartItem)
		api.PUT("/carts/:code/items/:item_id", handler.UpdateCartItem)
		api.DELETE("/carts/:code/items/:item_id", handler.RemoveCartItem)

		// Web push subscriptions.
		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)

		// Admin surface: catalog and cart management behind bearer tokens.
		api.POST("/admin/login", handler.Login)
		admin := api.Group("/admin")
		admin.Use(mw.TokenAuth(tokens))
		{
			admin.GET("/products", handler.ListProducts)
			admin.POST("/products", handler.CreateProduct)
			admin.PUT("/products/:id", handler.UpdateProduct)
			admin.DELETE("/products/:id", handler.DeleteProduct)
			admin.GET("/carts", handler.ListCarts)
			admin.POST("/carts", handler.CreateCart)
			admin.PUT("/carts/:id", handler.UpdateCart)
			admin.DELETE("/carts/:id", handler.DeleteCart)
		}
	}

	return r
}
