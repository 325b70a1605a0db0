package app

import (
	"context"
	"log/slog"
	"net/http"

	"marketplace-auth/internal/auth"
	"marketplace-auth/internal/auth/credentials"
	"marketplace-auth/internal/auth/handler"
	"marketplace-auth/internal/auth/provider/google"
	"marketplace-auth/internal/auth/reconcile"
	"marketplace-auth/internal/auth/token"
	"marketplace-auth/internal/config"
	"marketplace-auth/internal/middleware"
	"marketplace-auth/internal/refreshtoken"

	"github.com/gin-gonic/gin"
)

func setupHTTP(ctx context.Context, cfg config.Config) (*gin.Engine, func() error, error) {

	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	// ----------------------------
	// Dependencies
	// ----------------------------

	signer, err := token.NewSigner(
		cfg.JWTSecret,
		cfg.JWTIssuer,
		cfg.JWTAudience,
		cfg.JWTExpireMinutes,
	)
	if err != nil {
		return nil, nil, err
	}

	exchange, err := google.NewExchange(cfg.GoogleClientID, cfg.GoogleClientSecret)
	if err != nil {
		return nil, nil, err
	}

	keyCache := google.NewKeyCache(
		google.DefaultCertsURL,
		cfg.JWKSRefreshInterval,
		cfg.JWKSMinRefreshInterval,
	)
	if err := keyCache.Start(ctx); err != nil {
		// Non-fatal: the cache retries in the background and on demand.
		slog.Warn("initial signing-key fetch failed", "error", err)
	}

	validator, err := google.NewValidator(cfg.GoogleClientID, keyCache)
	if err != nil {
		return nil, nil, err
	}

	userStore := credentials.NewStore(infra.DB)
	reconciler := reconcile.NewReconciler(userStore)
	refreshStore := refreshtoken.NewRedisStore(infra.Redis.Client)

	authService := auth.NewService(
		userStore,
		signer,
		exchange,
		validator,
		reconciler,
		refreshStore,
	)

	authHandler := handler.NewHandler(authService)

	// ----------------------------
	// Router
	// ----------------------------

	router := gin.New()
	router.Use(gin.Recovery())

	// ----------------------------
	// Public Routes
	// ----------------------------

	authHandler.RegisterRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// ----------------------------
	// Protected API Routes
	// ----------------------------

	api := router.Group("/api")
	api.Use(middleware.RequireAuth(signer))

	api.GET("/me", func(c *gin.Context) {
		claims, ok := middleware.ClaimsFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"user_id":  claims.Subject,
			"email":    claims.Email,
			"username": claims.Name,
			"roles":    claims.Roles,
		})
	})

	// ----------------------------
	// Cleanup
	// ----------------------------

	return router, func() error {
		return infra.DB.Close()
	}, nil
}
