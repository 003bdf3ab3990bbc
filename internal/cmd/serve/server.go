package serve

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/chirino/chatmem-service/internal/config"
	"github.com/chirino/chatmem-service/internal/plugin/store/cached"
	storemetrics "github.com/chirino/chatmem-service/internal/plugin/store/metrics"
	registrycache "github.com/chirino/chatmem-service/internal/registry/cache"
	registrylifecycle "github.com/chirino/chatmem-service/internal/registry/lifecycle"
	registrymigrate "github.com/chirino/chatmem-service/internal/registry/migrate"
	registryroute "github.com/chirino/chatmem-service/internal/registry/route"
	registrystore "github.com/chirino/chatmem-service/internal/registry/store"
	"github.com/chirino/chatmem-service/internal/security"
	"github.com/gin-gonic/gin"
)

// Server holds the running server and its subsystems.
type Server struct {
	Config     *config.Config
	Store      registrystore.ConversationStore
	Router     *gin.Engine
	Running    *Listener
	Management *Listener
}

// Shutdown stops lifecycle hooks, drains both listeners and then releases the store.
func (s *Server) Shutdown(ctx context.Context) error {
	errs := []error{registrylifecycle.StopAll(ctx)}
	if s.Management != nil {
		errs = append(errs, s.Management.Close(ctx))
	}
	errs = append(errs, s.Running.Close(ctx))
	if s.Store != nil {
		errs = append(errs, s.Store.Close())
	}
	return errors.Join(errs...)
}

// StartServer initializes all subsystems and starts HTTP on a single port.
// Use cfg.Listener.Port=0 for a random port. Actual port: Server.Running.Port.
func StartServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log.Info("Starting chatmem service",
		"httpPort", cfg.Listener.Port,
		"db", cfg.ResolvedDBKind(),
	)

	// Initialize Prometheus metrics with configured constant labels.
	metricsLabels, err := security.ParseMetricsLabels(cfg.MetricsLabels)
	if err != nil {
		return nil, fmt.Errorf("invalid --metrics-labels: %w", err)
	}
	security.InitMetrics(metricsLabels)

	if cfg.CORSEnabled {
		if _, err := parseOrigins(cfg.CORSOrigins); err != nil {
			return nil, err
		}
	}

	// Run migrations
	if err := registrymigrate.RunAll(ctx); err != nil {
		return nil, fmt.Errorf("migrations failed: %w", err)
	}

	// Initialize store
	storeLoader, err := registrystore.Select(cfg.ResolvedDBKind())
	if err != nil {
		return nil, err
	}
	store, err := storeLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	store, err = withCache(ctx, cfg, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	store = storemetrics.Wrap(store)

	srv, err := startWithStore(ctx, cfg, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return srv, nil
}

// withCache puts the configured conversation cache in front of store. The
// store is returned unchanged when caching is disabled.
func withCache(ctx context.Context, cfg *config.Config, store registrystore.ConversationStore) (registrystore.ConversationStore, error) {
	kind := cfg.CacheKind
	if kind == "" {
		kind = config.CacheKindNone
	}
	loader, err := registrycache.Select(kind)
	if err != nil {
		return store, err
	}
	c, err := loader(ctx)
	if err != nil {
		return store, fmt.Errorf("failed to initialize cache: %w", err)
	}
	if !c.Available() {
		_ = c.Close()
		return store, nil
	}
	log.Info("Conversation cache enabled", "kind", kind, "ttl", cfg.CacheTTL)
	return cached.Wrap(store, c), nil
}

func startWithStore(ctx context.Context, cfg *config.Config, store registrystore.ConversationStore) (*Server, error) {
	router := NewRouter(cfg)
	mount := &registryroute.Mount{
		Router: router,
		Store:  store,
		Config: cfg,
		Auth:   security.TokenAuthMiddleware(cfg.APITokens),
	}

	// Mount main route plugins on the main router.
	for _, loader := range registryroute.MainRouteLoaders() {
		if err := loader(mount); err != nil {
			return nil, fmt.Errorf("failed to load routes: %w", err)
		}
	}

	// Mount management route plugins. If a dedicated management port is configured,
	// run them on a bare gin engine served by the management server. Otherwise,
	// mount them on the main router.
	var management *Listener
	if cfg.ManagementListenerEnabled {
		mgmtRouter := gin.New()
		mgmtRouter.Use(gin.Recovery())
		if cfg.ManagementAccessLog {
			mgmtRouter.Use(security.AccessLogMiddleware())
		}
		mgmtMount := *mount
		mgmtMount.Router = mgmtRouter
		for _, loader := range registryroute.ManagementRouteLoaders() {
			if err := loader(&mgmtMount); err != nil {
				return nil, fmt.Errorf("failed to load management routes: %w", err)
			}
		}
		// The management port reuses the API key pair and defaults to plaintext.
		mgmtCfg := cfg.ManagementListener
		mgmtCfg.TLSCertFile = cfg.Listener.TLSCertFile
		mgmtCfg.TLSKeyFile = cfg.Listener.TLSKeyFile
		if !mgmtCfg.EnablePlainText && !mgmtCfg.EnableTLS {
			mgmtCfg.EnablePlainText = true
		}
		var err error
		management, err = Listen("management", mgmtCfg, mgmtRouter)
		if err != nil {
			return nil, fmt.Errorf("failed to start management server: %w", err)
		}
		log.Info("Management server listening", "addr", management.Addr)
	} else {
		for _, loader := range registryroute.ManagementRouteLoaders() {
			if err := loader(mount); err != nil {
				return nil, fmt.Errorf("failed to load management routes: %w", err)
			}
		}
	}

	running, err := Listen("api", cfg.Listener, router)
	if err != nil {
		if management != nil {
			_ = management.Close(ctx)
		}
		return nil, err
	}

	log.Info("Server listening",
		"addr", running.Addr,
		"plaintext", cfg.Listener.EnablePlainText,
		"tls", cfg.Listener.EnableTLS,
	)

	srv := &Server{
		Config:     cfg,
		Store:      store,
		Router:     router,
		Running:    running,
		Management: management,
	}
	if err := registrylifecycle.StartAll(ctx); err != nil {
		_ = srv.Shutdown(ctx)
		return nil, fmt.Errorf("startup hooks failed: %w", err)
	}
	return srv, nil
}

// NewRouter returns the main gin engine with the middleware chain every
// request passes through. Routes are mounted by the caller.
func NewRouter(cfg *config.Config) *gin.Engine {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(security.RequestIDMiddleware())
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
	return router
}
