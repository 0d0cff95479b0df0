package httpserver

import (
	"errors"
	"io"
	"log"
	"time"

	"storefront/internal/session"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// SessionHeader carries the storefront session token on every session route.
const SessionHeader = "X-Session-Token"

// Deps groups the collaborators the router needs.
type Deps struct {
	Sessions         *session.Registry
	CORSAllowOrigins []string
}

// buildRouter wires routes for the API.
func buildRouter(logger *log.Logger, db Pinger, deps Deps) (*gin.Engine, error) {
	if deps.Sessions == nil {
		return nil, errors.New("session registry required")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.LoggerWithWriter(logger.Writer()), gin.Recovery())
	if len(deps.CORSAllowOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     deps.CORSAllowOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", SessionHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(db))

	h := &handlers{sessions: deps.Sessions, logger: logger}
	router.POST("/sessions", h.createSession)

	scoped := router.Group("/", sessionMiddleware(deps.Sessions))
	scoped.DELETE("/sessions", h.deleteSession)
	scoped.GET("/state", h.getState)
	scoped.GET("/products", h.listProducts)
	scoped.GET("/products/:productId", h.getProduct)
	scoped.POST("/catalog/reload", h.reloadCatalog)
	scoped.POST("/user/reload", h.reloadUser)
	scoped.PUT("/seller", h.setSeller)
	scoped.GET("/cart", h.getCart)
	scoped.PUT("/cart", h.replaceCart)
	scoped.POST("/cart/items", h.addToCart)
	scoped.PUT("/cart/items/:productId", h.updateCartQuantity)
	scoped.GET("/events", h.events)

	return router, nil
}
