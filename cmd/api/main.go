package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	qrcode "github.com/skip2/go-qrcode"

	"rollcall/internal/auth"
	"rollcall/internal/cloudinary"
	"rollcall/internal/config"
	"rollcall/internal/enrollclient"
	"rollcall/internal/httpmiddleware"
	"rollcall/internal/ledger"
	"rollcall/internal/metrics"
	"rollcall/internal/queue"
	"rollcall/internal/scan"
	"rollcall/internal/session"
	"rollcall/internal/store"
	"rollcall/internal/token"
)

func main() {
	cfg := config.Load()

	// Set Gin mode based on environment
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.EnsureSchema(context.Background()); err != nil {
		return err
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "rollcall:scans")
	}

	sessions := session.NewRepository(db.Client)
	issuer := session.NewIssuer(sessions, cfg.MaxSessionMinutes)
	records := ledger.NewRepository(db.Client)
	enrollment := enrollclient.New(cfg.EnrollmentURL, cfg.EnrollmentSkip)
	validator := scan.NewValidator(sessions, records, enrollment)
	ctx := context.Background()

	// Cloudinary client (nil when not configured)
	var cdnClient *cloudinary.Client
	if cfg.CloudinaryCloudName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		cdnClient = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Println("Cloudinary configured:", cfg.CloudinaryCloudName)
	} else {
		log.Println("Cloudinary not configured, QR images served inline only")
	}

	r := gin.New()

	// Recovery middleware
	r.Use(gin.Recovery())

	// Custom logger
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))

	// CORS middleware
	r.Use(corsMiddleware())

	// Security headers
	r.Use(securityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	// Dev-only token mint so the service is exercisable without the external
	// identity provider. Production deployments get tokens from that provider.
	if devMintEnabled(cfg.Env) {
		r.POST("/v1/auth/token", func(c *gin.Context) {
			var req struct {
				Subject string `json:"subject" binding:"required"`
				Role    string `json:"role" binding:"required"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			signed, exp, err := auth.Issue(req.Subject, req.Role, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
				return
			}
			c.JSON(http.StatusCreated, gin.H{"access_token": signed, "expires_at": exp.Unix()})
		})
	}

	authGroup := r.Group("/v1", auth.RequireAuth(cfg.JWTSigningKey, cfg.JWTIssuer))
	staff := authGroup.Group("", auth.RequireRole(auth.RoleTeacher, auth.RoleAdmin))

	staff.POST("/sessions", func(c *gin.Context) {
		var req struct {
			ClassID         int64  `json:"class_id" binding:"required"`
			SubjectID       int64  `json:"subject_id" binding:"required"`
			SessionType     string `json:"session_type" binding:"required"`
			DurationMinutes int    `json:"duration_minutes" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		claims := auth.FromContext(c)
		scope := token.Scope{ClassID: req.ClassID, SubjectID: req.SubjectID, SessionType: req.SessionType}
		s, err := issuer.Issue(c.Request.Context(), claims.Subject, scope, req.DurationMinutes)
		if err != nil {
			if errors.Is(err, session.ErrInvalidDuration) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_duration"})
				return
			}
			log.Printf("issue session failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		metrics.SessionsIssued.Inc()

		resp := gin.H{
			"code":        s.Code,
			"payload":     s.Payload,
			"issued_at":   s.IssuedAt,
			"valid_until": s.ValidUntil,
		}
		if cdnClient != nil {
			if png, err := qrcode.Encode(s.Payload, qrcode.Medium, 512); err == nil {
				if up, err := cdnClient.PublishQR(s.Code, png); err == nil {
					resp["qr_url"] = up.SecureURL
				} else {
					log.Printf("qr publish failed for %s: %v", s.Code, err)
				}
			}
		}
		c.JSON(http.StatusCreated, resp)
	})

	staff.DELETE("/sessions/:code", func(c *gin.Context) {
		claims := auth.FromContext(c)
		err := issuer.Cancel(c.Request.Context(), c.Param("code"), claims.Subject, claims.Role == auth.RoleAdmin)
		switch {
		case err == nil:
			metrics.SessionsCancelled.Inc()
			c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
		case errors.Is(err, session.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found", "code": "session_not_found"})
		case errors.Is(err, session.ErrForbidden):
			c.JSON(http.StatusForbidden, gin.H{"error": "not the session issuer", "code": "forbidden"})
		default:
			log.Printf("cancel session failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
	})

	staff.GET("/sessions/active", func(c *gin.Context) {
		claims := auth.FromContext(c)
		list, err := sessions.ListActive(c.Request.Context(), claims.Subject)
		if err != nil {
			log.Printf("list active failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": sessionViews(c.Request.Context(), redisClient, list)})
	})

	staff.GET("/sessions/history", func(c *gin.Context) {
		claims := auth.FromContext(c)
		limit, offset := 50, 0
		if v := c.Query("limit"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				limit = parsed
			}
		}
		if v := c.Query("offset"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				offset = parsed
			}
		}
		list, err := sessions.ListHistory(c.Request.Context(), claims.Subject, limit, offset)
		if err != nil {
			log.Printf("list history failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": sessionViews(c.Request.Context(), redisClient, list)})
	})

	staff.GET("/sessions/:code/records", func(c *gin.Context) {
		claims := auth.FromContext(c)
		s, err := sessions.GetByCode(c.Request.Context(), c.Param("code"))
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "session not found", "code": "session_not_found"})
				return
			}
			log.Printf("get session failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if claims.Role != auth.RoleAdmin && s.IssuerID != claims.Subject {
			c.JSON(http.StatusForbidden, gin.H{"error": "not the session issuer", "code": "forbidden"})
			return
		}
		recs, err := records.ListBySession(c.Request.Context(), s.Code)
		if err != nil {
			log.Printf("list records failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": recs})
	})

	authGroup.GET("/sessions/:code/qr", func(c *gin.Context) {
		s, err := sessions.GetByCode(c.Request.Context(), c.Param("code"))
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "session not found", "code": "session_not_found"})
				return
			}
			log.Printf("get session failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		png, err := qrcode.Encode(s.Payload, qrcode.Medium, 512)
		if err != nil {
			log.Printf("qr render failed for %s: %v", s.Code, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.Data(http.StatusOK, "image/png", png)
	})

	scanLimiter := httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin)
	authGroup.POST("/scans", auth.RequireRole(auth.RoleStudent), scanLimiter.GinMiddleware(), func(c *gin.Context) {
		var req struct {
			Token string `json:"token" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		claims := auth.FromContext(c)
		res, err := validator.Submit(c.Request.Context(), claims.Subject, req.Token)
		if err != nil {
			status, code := scanRejection(err)
			if status == 0 {
				metrics.Scans.WithLabelValues("internal_error").Inc()
				log.Printf("scan failed for %s: %v", claims.Subject, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
				return
			}
			metrics.Scans.WithLabelValues(code).Inc()
			c.JSON(status, gin.H{"status": code, "error": err.Error(), "code": code})
			return
		}
		metrics.Scans.WithLabelValues("success").Inc()

		if msg, merr := queue.NewScanMessage(queue.ScanEvent{
			SessionCode: res.SessionCode,
			StudentID:   claims.Subject,
			MarkedAt:    res.MarkedAt,
		}); merr == nil {
			if perr := q.Publish(ctx, msg); perr != nil {
				log.Printf("queue publish failed: %v", perr)
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status":       "success",
			"session_code": res.SessionCode,
			"marked_at":    res.MarkedAt,
		})
	})

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// devMintEnabled reports whether the local token mint route is registered.
// Production environments must only accept identity-provider tokens.
func devMintEnabled(env string) bool {
	return env != "production" && env != "prod"
}

// scanRejection maps an expected claimant-facing rejection to its HTTP status
// and stable outcome code. Returns 0 for anything that is not part of the
// taxonomy, which callers treat as an opaque internal failure.
func scanRejection(err error) (int, string) {
	switch {
	case errors.Is(err, scan.ErrInvalidToken):
		return http.StatusBadRequest, "invalid_token"
	case errors.Is(err, scan.ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, scan.ErrNotEnrolled):
		return http.StatusForbidden, "not_enrolled"
	case errors.Is(err, scan.ErrSessionCancelled):
		return http.StatusGone, "session_cancelled"
	case errors.Is(err, scan.ErrSessionExpired):
		return http.StatusGone, "session_expired"
	case errors.Is(err, scan.ErrSessionNotYetValid):
		return http.StatusGone, "session_not_yet_valid"
	case errors.Is(err, scan.ErrDuplicateScan):
		return http.StatusConflict, "duplicate_scan"
	}
	return 0, ""
}

// sessionViews shapes sessions for JSON responses, attaching the Redis
// present-count projection when available.
func sessionViews(ctx context.Context, redisClient *store.Redis, list []session.Session) []gin.H {
	now := time.Now().UTC()
	views := make([]gin.H, 0, len(list))
	for _, s := range list {
		views = append(views, gin.H{
			"code":          s.Code,
			"scope":         s.Scope,
			"issued_at":     s.IssuedAt,
			"valid_until":   s.ValidUntil,
			"status":        s.StatusAt(now),
			"present_count": redisClient.PresentCount(ctx, s.Code),
		})
	}
	return views
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
