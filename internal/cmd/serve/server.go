package serve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/BusyMan009/my-thrift-backend/internal/config"
	"github.com/BusyMan009/my-thrift-backend/internal/mail"
	routeauth "github.com/BusyMan009/my-thrift-backend/internal/plugin/route/auth"
	"github.com/BusyMan009/my-thrift-backend/internal/plugin/route/chats"
	"github.com/BusyMan009/my-thrift-backend/internal/plugin/route/comments"
	"github.com/BusyMan009/my-thrift-backend/internal/plugin/route/products"
	routesystem "github.com/BusyMan009/my-thrift-backend/internal/plugin/route/system"
	"github.com/BusyMan009/my-thrift-backend/internal/plugin/route/users"
	"github.com/BusyMan009/my-thrift-backend/internal/plugin/route/ws"
	storemetrics "github.com/BusyMan009/my-thrift-backend/internal/plugin/store/metrics"
	"github.com/BusyMan009/my-thrift-backend/internal/realtime"
	registryimages "github.com/BusyMan009/my-thrift-backend/internal/registry/images"
	registrystore "github.com/BusyMan009/my-thrift-backend/internal/registry/store"
	"github.com/BusyMan009/my-thrift-backend/internal/security"
	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

// Server holds the running server and its subsystems.
type Server struct {
	Config  *config.Config
	Store   registrystore.MarketStore
	Router  *gin.Engine
	Gateway *realtime.Gateway
	Port    int

	httpServer *http.Server
}

// Shutdown drains in-flight HTTP requests, then tears down the realtime
// gateway and the store.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.Gateway.Close()
	if closeErr := s.Store.Close(ctx); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// StartServer initializes all subsystems and starts the HTTP listener.
// Use cfg.Listener.Port=0 for a random port; the actual port is Server.Port.
func StartServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log.Info("Starting marketplace service",
		"httpPort", cfg.Listener.Port,
		"db", cfg.DatastoreType,
		"images", cfg.ImageStoreType,
		"mailer", cfg.MailerType,
	)

	// Initialize Prometheus metrics with configured constant labels.
	metricsLabels, err := security.ParseMetricsLabels(cfg.MetricsLabels)
	if err != nil {
		return nil, fmt.Errorf("invalid --metrics-labels: %w", err)
	}
	security.InitMetrics(metricsLabels)

	// Run migrations
	if err := registrystore.MigrateAll(ctx); err != nil {
		return nil, fmt.Errorf("migrations failed: %w", err)
	}

	// Initialize store
	storePlugin, err := registrystore.Select(cfg.DatastoreType)
	if err != nil {
		return nil, err
	}
	store, err := storePlugin.Loader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	store = storemetrics.Wrap(store)

	// Initialize image store (optional).
	var imageStore registryimages.ImageStore
	if cfg.ImageStoreType != "" && cfg.ImageStoreType != "none" {
		imageLoader, err := registryimages.Select(cfg.ImageStoreType)
		if err != nil {
			return nil, err
		}
		imageStore, err = imageLoader(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize image store: %w", err)
		}
	}

	mailer, err := mail.New(cfg)
	if err != nil {
		return nil, err
	}

	// Realtime gateway, optionally bridged over Redis.
	gateway := realtime.NewGateway(cfg)
	if cfg.RedisURL != "" {
		if err := gateway.StartBridge(ctx, cfg.RedisURL); err != nil {
			return nil, fmt.Errorf("failed to start realtime bridge: %w", err)
		}
	}

	// Set up gin
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.ManagementAccessLog {
		router.Use(security.AccessLogMiddleware())
	} else {
		router.Use(security.AccessLogMiddleware("/health", "/ready", "/metrics"))
	}
	router.Use(security.MetricsMiddleware())
	router.Use(maxBodySizeMiddleware(cfg.MaxBodySize))
	if cfg.CORSEnabled {
		router.Use(corsMiddleware(cfg.CORSOrigins))
	}

	// Shared token resolver and auth middleware.
	resolver := security.NewTokenResolver(cfg, store)
	auth := security.AuthMiddleware(resolver)

	routesystem.MountRoutes(router)
	routeauth.MountRoutes(router, store, cfg, resolver, mailer)
	users.MountRoutes(router, store, auth)
	products.MountRoutes(router, store, imageStore, cfg, auth)
	comments.MountRoutes(router, store, auth)
	chats.MountRoutes(router, store, gateway, auth)
	ws.MountRoutes(router, gateway, resolver, cfg)

	httpServer := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: cfg.Listener.ReadHeaderTimeout,
	}
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(cfg.Listener.Port))
	if err != nil {
		_ = store.Close(ctx)
		return nil, err
	}
	port := listener.Addr().(*net.TCPAddr).Port

	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "err", err)
		}
	}()

	log.Info("Server listening", "port", port)

	routesystem.MarkReady()
	return &Server{
		Config:     cfg,
		Store:      store,
		Router:     router,
		Gateway:    gateway,
		Port:       port,
		httpServer: httpServer,
	}, nil
}
