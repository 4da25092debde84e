package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"rental-backend/docs"
	"rental-backend/internal/inventory"
	"rental-backend/internal/jobs"
	"rental-backend/internal/platform/apierr"
	"rental-backend/internal/platform/auth"
	"rental-backend/internal/platform/clock"
	"rental-backend/internal/platform/db"
	"rental-backend/internal/platform/logger"
	"rental-backend/internal/rentals"
)

func main() {
	configPath := flag.String("config", db.DefaultConfigPath, "path to config yaml")
	flag.Parse()

	// 設定読み込み
	cfg, err := db.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.Must(logger.New(cfg.Mode, cfg.Log.Level))
	defer log.Sync() //nolint:errcheck
	log.Info("starting", zap.String("mode", cfg.Mode), zap.String("version", cfg.Version))

	conn, err := db.Connect(cfg.DB)
	if err != nil {
		log.Fatal("connect db", zap.Error(err))
	}
	defer conn.Close()
	log.Info("connected to DB", zap.String("dbname", cfg.DB.DBName))

	secret := []byte(cfg.Auth.JWTSecret)
	if len(secret) == 0 {
		// dev のみ（release は LoadConfig で弾く）
		log.Warn("JWT_SECRET is empty, using an insecure development secret")
		secret = []byte("dev-only-secret")
	}

	// サービス
	authSvc := auth.NewService(conn, secret, cfg.Auth.TokenTTL, logger.Named(log, "auth"))
	invSvc := inventory.NewService(conn, logger.Named(log, "inventory"))
	rentalSvc := rentals.NewService(conn, invSvc, logger.Named(log, "rentals"))

	if cfg.Auth.AdminID != "" && cfg.Auth.AdminPassword != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := authSvc.EnsureAdmin(ctx, cfg.Auth.AdminID, cfg.Auth.AdminPassword)
		cancel()
		if err != nil {
			log.Fatal("ensure admin", zap.Error(err))
		}
	}

	sched, err := jobs.NewScheduler(cfg.Jobs, invSvc, clock.Real{}, logger.Named(log, "jobs"))
	if err != nil {
		log.Fatal("scheduler", zap.Error(err))
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(logger.GinMiddleware(logger.Named(log, "http")), gin.Recovery())
	_ = r.SetTrustedProxies(nil)

	if cfg.Mode == "dev" {
		// CORS（開発中のみ必要）
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.Server.CORSOrigins,
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length", "Location"},
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowCredentials: true,
		}))
		docs.SwaggerInfo.Version = cfg.Version
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// ヘルス
	r.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := conn.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// /api/v1（参照は公開、更新系は JWT 必須）
	api := r.Group("/api/v1")
	write := auth.RequireAuth(secret)
	auth.RegisterRoutes(api, secret, authSvc)
	inventory.RegisterRoutes(api, write, invSvc)
	rentals.RegisterRoutes(api, write, rentalSvc)

	r.NoRoute(func(c *gin.Context) {
		apierr.Write(c, apierr.NotFound("route not found"))
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 証明書が両方あれば TLS（config/tls/<mode>/ 配下）
	certFile, keyFile := "", ""
	if cfg.Certificate.Cert != "" && cfg.Certificate.Key != "" {
		certFile = fmt.Sprintf("config/tls/%s/%s", cfg.Mode, cfg.Certificate.Cert)
		keyFile = fmt.Sprintf("config/tls/%s/%s", cfg.Mode, cfg.Certificate.Key)
	}

	go func() {
		var err error
		if certFile != "" {
			log.Info("listening (TLS)", zap.String("addr", srv.Addr))
			err = srv.ListenAndServeTLS(certFile, keyFile)
		} else {
			log.Info("listening", zap.String("addr", srv.Addr))
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("serve", zap.Error(err))
		}
	}()

	sched.Start()

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sched.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", zap.Error(err))
	}
}
