package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/patrickmn/go-cache"

	"checkout-scan-backend/internal/scan"
	"checkout-scan-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store    store.Store
	sessions *scan.Manager
	webpush  *webpush.Options
	tokens   *cache.Cache
	tokenTTL time.Duration
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, sessions *scan.Manager, webpushOptions *webpush.Options, tokens *cache.Cache, tokenTTL time.Duration) *Handler {
	return &Handler{
		store:    s,
		sessions: sessions,
		webpush:  webpushOptions,
		tokens:   tokens,
		tokenTTL: tokenTTL,
	}
}
