package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"bizlink/global/config"
	"bizlink/logger"
	"bizlink/service/auth"
	"bizlink/service/gateway"
	"bizlink/service/gateway/handlers"
	"bizlink/service/relay"
	"bizlink/service/storage"
	"bizlink/tools/ids"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Errorf("load config: %v", err)
		os.Exit(1)
	}
	if cfg.JWTSecret == "" {
		logger.Error("JWT_SECRET is required")
		os.Exit(1)
	}
	ids.SetNodeID(cfg.NodeID)

	ctx := context.Background()

	// External relational store; the gateway keeps serving live-only without it.
	var store *storage.PgStore
	if cfg.DatabaseURL != "" {
		store, err = storage.NewPgStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Errorf("connect store: %v", err)
			os.Exit(1)
		}
		defer store.Close()
	} else {
		logger.Warn("DATABASE_URL not set, running live-only (no durability)")
	}

	var mirror *storage.PresenceMirror
	if cfg.RedisAddr != "" {
		mirror = storage.NewPresenceMirror(storage.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, cfg.GatewayID, 5*time.Minute)
		defer func() { _ = mirror.Close() }()
	}

	var rl *relay.Relay
	if cfg.NatsURL != "" {
		rl, err = relay.Connect(cfg.NatsURL, cfg.GatewayID)
		if err != nil {
			logger.Errorf("connect relay: %v", err)
			os.Exit(1)
		}
		defer rl.Close()
	}

	stores := gateway.Stores{}
	if store != nil {
		stores.Messages = store
		stores.Notifications = store
	}

	var gwRelay gateway.Relay
	if rl != nil {
		gwRelay = rl
	}
	srv := gateway.NewServer(gateway.ServerConf{
		GatewayID:     cfg.GatewayID,
		JWT:           cfg.JWTOptions(),
		SendQueueSize: cfg.SendQueueSize,
		FanoutWorkers: cfg.FanoutWorkers,
		FanoutQueue:   cfg.FanoutQueue,
	}, stores, mirror, gwRelay)
	defer srv.Close()

	handlers.RegisterAll(srv.Disp())

	if rl != nil {
		if err := rl.Start(srv); err != nil {
			logger.Errorf("start relay: %v", err)
			os.Exit(1)
		}
	}

	r := gin.Default()
	r.GET("/ws", srv.HandleWS)
	r.GET("/healthz", func(c *gin.Context) {
		degraded := srv.Health().Degraded()
		if store != nil && !degraded {
			pingCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := store.Ping(pingCtx); err != nil {
				srv.Health().MarkDown(err)
				degraded = true
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"gatewayId":   cfg.GatewayID,
			"connections": srv.Reg().ConnCount(),
			"degraded":    degraded,
		})
	})
	r.GET("/presence/:userId", func(c *gin.Context) {
		userID := c.Param("userId")
		if srv.Reg().IsOnline(userID) {
			c.JSON(http.StatusOK, gin.H{"userId": userID, "online": true, "gatewayId": cfg.GatewayID})
			return
		}
		// not on this node; the mirror knows about sibling gateways
		if mirror != nil {
			gw, online, err := mirror.Lookup(c.Request.Context(), userID)
			if err == nil && online {
				c.JSON(http.StatusOK, gin.H{"userId": userID, "online": true, "gatewayId": gw})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"userId": userID, "online": false})
	})
	if store != nil {
		authSvc := auth.NewService(store, cfg.JWTOptions())
		auth.RegisterRoutes(r.Group("/auth"), authSvc, cfg.JWTOptions())
	}

	httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: r}
	go func() {
		logger.Infof("[gateway] %s listening on %s", cfg.GatewayID, cfg.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("http server: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("[gateway] shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}
