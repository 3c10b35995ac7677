// Package app assembles the daemon: storage, connectors, indicator
// computation, scheduling and controllers.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/hydrometrie/watertracker/internal/indicators"
	"github.com/hydrometrie/watertracker/internal/log"
	"github.com/hydrometrie/watertracker/internal/managers"
	"github.com/hydrometrie/watertracker/internal/scheduler"
	"github.com/hydrometrie/watertracker/pkg/config"
	"go.uber.org/zap"
)

// App represents the main application
type App struct {
	configProvider config.ConfigProvider
	logger         *zap.SugaredLogger
}

// New creates a new application instance
func New(configProvider config.ConfigProvider, logger *zap.SugaredLogger) *App {
	return &App{
		configProvider: configProvider,
		logger:         logger,
	}
}

// Run starts the application and blocks until shutdown
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfgData, err := a.configProvider.LoadConfig()
	if err != nil {
		return fmt.Errorf("could not load configuration: %v", err)
	}

	// Initialize the storage manager
	storageManager, err := managers.NewStorageManager(ctx, &wg, cfgData)
	if err != nil {
		return err
	}
	store := storageManager.CacheStore()

	// Initialize the indicator service over the shared cache store
	minYears := 0
	if cfgData.Sources.Hubeau != nil {
		minYears = cfgData.Sources.Hubeau.MinYearsHistory
	}
	svc := indicators.NewService(store, 0, minYears)

	// Initialize the connector manager
	connectorManager, err := managers.NewConnectorManager(cfgData, store, storageManager.GetMeasurementDistributor())
	if err != nil {
		return err
	}
	if w := storageManager.StationWriter(); w != nil {
		connectorManager.SetStationWriter(w)
	}

	// Initialize the controller manager
	cm, err := managers.NewControllerManager(ctx, &wg, a.configProvider, store, svc, a.logger)
	if err != nil {
		return err
	}

	// Recompute indicators from whatever the cache already holds so the
	// dashboard serves data before the first refresh completes
	if err := svc.Recompute(ctx); err != nil {
		log.Warnf("initial indicator computation failed: %v", err)
	}

	if err := cm.StartControllers(); err != nil {
		return err
	}

	sched := scheduler.New(ctx)
	jobs, err := a.scheduleJobs(sched, cfgData, connectorManager, cm, svc)
	if err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	// An empty cache means a first boot: run the refresh jobs right away
	// instead of waiting for the first cron firing
	if stations, err := store.ReadStations(); err != nil || len(stations) == 0 {
		log.Info("cache holds no station inventory, priming it now")
		go func() {
			for _, job := range jobs {
				sched.RunNow(job)
			}
		}()
	}

	log.Info("Application started successfully")

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	select {
	case <-sigs:
		log.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		log.Info("context cancelled, shutting down...")
	}

	// Cancel context to signal all goroutines to stop
	cancel()

	// Wait for all workers to terminate
	log.Info("waiting for all workers to terminate...")
	wg.Wait()
	log.Info("shutdown complete")

	return nil
}

// scheduleJobs registers the per-source refresh jobs and the report
// rendering job, returning them so a first boot can run them immediately.
// Sources without a cron expression stay dormant on the schedule.
func (a *App) scheduleJobs(sched *scheduler.Scheduler, cfgData *config.ConfigData, connectorManager *managers.ConnectorManager, cm *managers.ControllerManager, svc *indicators.Service) ([]scheduler.Job, error) {
	var jobs []scheduler.Job
	recompute := func(ctx context.Context) error {
		if err := svc.Recompute(ctx); err != nil {
			return err
		}
		for _, rep := range cm.ReportControllers() {
			if err := rep.RenderAll(); err != nil {
				log.Warnf("report rendering failed: %v", err)
			}
		}
		return nil
	}

	if cfgData.Sources.Hubeau != nil || cfgData.Sources.EMI != nil {
		cron := ""
		if cfgData.Sources.Hubeau != nil {
			cron = cfgData.Sources.Hubeau.RefreshCron
		}
		if cron == "" && cfgData.Sources.EMI != nil {
			cron = cfgData.Sources.EMI.RefreshCron
		}
		job := scheduler.Job{
			Name: "chronicles",
			Cron: cron,
			Run: func(ctx context.Context) error {
				if err := connectorManager.RefreshInventory(ctx); err != nil {
					return err
				}
				if err := connectorManager.RefreshSeries(ctx); err != nil {
					return err
				}
				return recompute(ctx)
			},
		}
		if err := sched.Add(job); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if cfgData.Sources.Copernicus != nil {
		job := scheduler.Job{
			Name: "reanalysis-grid",
			Cron: cfgData.Sources.Copernicus.RefreshCron,
			Run:  connectorManager.RefreshGrid,
		}
		if err := sched.Add(job); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if cfgData.Sources.MeteoFrance != nil {
		job := scheduler.Job{
			Name: "bulletins",
			Cron: cfgData.Sources.MeteoFrance.RefreshCron,
			Run:  connectorManager.RefreshBulletins,
		}
		if err := sched.Add(job); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	for _, cc := range cfgData.Controllers {
		if cc.Type != "reports" || cc.Reports == nil || cc.Reports.RenderCron == "" {
			continue
		}
		if err := sched.Add(scheduler.Job{
			Name: "reports",
			Cron: cc.Reports.RenderCron,
			Run: func(ctx context.Context) error {
				for _, rep := range cm.ReportControllers() {
					if err := rep.RenderAll(); err != nil {
						return err
					}
				}
				return nil
			},
		}); err != nil {
			return nil, err
		}
	}

	return jobs, nil
}
