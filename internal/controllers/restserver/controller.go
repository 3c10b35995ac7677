// Package restserver serves the dashboard and its JSON API: station
// inventory, chronicles with trend context, standardized indicator series
// and the aggregated drought distributions.
package restserver

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/hydrometrie/watertracker/internal/indicators"
	"github.com/hydrometrie/watertracker/internal/log"
	"github.com/hydrometrie/watertracker/internal/storage/csvcache"
	"github.com/hydrometrie/watertracker/pkg/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

//go:embed all:assets
var content embed.FS

// Controller is the REST server controller.
type Controller struct {
	ctx            context.Context
	wg             *sync.WaitGroup
	configProvider config.ConfigProvider
	restConfig     config.RESTServerData
	Server         http.Server
	FS             fs.FS

	store      *csvcache.Store
	indicators *indicators.Service
	logger     *zap.SugaredLogger
	handlers   *Handlers
}

// NewController creates a REST server controller over the cache store and
// the indicator service.
func NewController(ctx context.Context, wg *sync.WaitGroup, configProvider config.ConfigProvider, rc config.RESTServerData, store *csvcache.Store, svc *indicators.Service, logger *zap.SugaredLogger) (*Controller, error) {
	ctrl := &Controller{
		ctx:            ctx,
		wg:             wg,
		configProvider: configProvider,
		restConfig:     rc,
		store:          store,
		indicators:     svc,
		logger:         logger,
	}

	if rc.ListenAddr == "" {
		logger.Info("rest.listen_addr not provided; defaulting to 0.0.0.0 (all interfaces)")
		rc.ListenAddr = "0.0.0.0"
	}
	if rc.Port == 0 {
		logger.Info("rest.port not provided; defaulting to 8080")
		rc.Port = 8080
	}
	ctrl.restConfig = rc

	ctrl.handlers = NewHandlers(ctrl)

	assetsFS, err := fs.Sub(content, "assets")
	if err != nil {
		return nil, fmt.Errorf("embedded assets: %w", err)
	}
	ctrl.FS = assetsFS

	ctrl.Server.Addr = fmt.Sprintf("%v:%v", rc.ListenAddr, rc.Port)
	ctrl.Server.Handler = ctrl.setupRouter()
	ctrl.Server.ReadHeaderTimeout = 10 * time.Second

	return ctrl, nil
}

// StartController starts the REST server.
func (c *Controller) StartController() error {
	log.Info("Starting REST server controller...")
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		if c.restConfig.Cert != "" && c.restConfig.Key != "" {
			if err := c.Server.ListenAndServeTLS(c.restConfig.Cert, c.restConfig.Key); err != http.ErrServerClosed {
				log.Errorf("REST server error: %v", err)
			}
		} else {
			if err := c.Server.ListenAndServe(); err != http.ErrServerClosed {
				log.Errorf("REST server error: %v", err)
			}
		}
	}()

	go func() {
		<-c.ctx.Done()
		log.Info("Shutting down the REST server...")
		c.Server.Shutdown(context.Background())
	}()

	return nil
}

// setupRouter configures the HTTP router with all endpoints.
func (c *Controller) setupRouter() http.Handler {
	router := mux.NewRouter()

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/departments", c.handlers.GetDepartments)
	api.HandleFunc("/stations", c.handlers.GetStations)
	// BSS codes carry slashes, stations are addressed by query parameter
	api.HandleFunc("/chronicle", c.handlers.GetChronicle)
	api.HandleFunc("/indicator", c.handlers.GetIndicator)
	api.HandleFunc("/distribution", c.handlers.GetDistribution)
	api.HandleFunc("/humidity", c.handlers.GetHumidity)
	api.HandleFunc("/bulletins", c.handlers.GetBulletin)
	api.HandleFunc("/levels", c.handlers.GetLevels)
	api.HandleFunc("/health", c.handlers.GetHealth)

	router.Handle("/metrics", promhttp.Handler())

	router.PathPrefix("/").Handler(http.FileServer(http.FS(c.FS)))

	return handlers.CompressHandler(c.metricsMiddleware(router))
}

// metricsMiddleware counts requests per route template and status code.
func (c *Controller) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		observeRequest(r.URL.Path, recorder.status)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
