package managers

import (
	"context"
	"fmt"
	"sync"

	"github.com/hydrometrie/watertracker/internal/controllers/reports"
	"github.com/hydrometrie/watertracker/internal/controllers/restserver"
	"github.com/hydrometrie/watertracker/internal/indicators"
	"github.com/hydrometrie/watertracker/internal/storage/csvcache"
	"github.com/hydrometrie/watertracker/pkg/config"
	"go.uber.org/zap"
)

// Controller is an interface that provides standard methods for various
// controller backends
type Controller interface {
	StartController() error
}

// ControllerManager creates and starts the configured controllers
type ControllerManager struct {
	ctx    context.Context
	wg     *sync.WaitGroup
	logger *zap.SugaredLogger

	controllers []Controller
	reports     []*reports.Controller
}

// NewControllerManager creates a new controller manager
func NewControllerManager(ctx context.Context, wg *sync.WaitGroup, provider config.ConfigProvider, store *csvcache.Store, svc *indicators.Service, logger *zap.SugaredLogger) (*ControllerManager, error) {
	cfgData, err := provider.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("error loading controller configuration: %v", err)
	}

	cm := &ControllerManager{
		ctx:    ctx,
		wg:     wg,
		logger: logger,
	}

	for _, cc := range cfgData.Controllers {
		controller, err := cm.createController(provider, cc, store, svc)
		if err != nil {
			return nil, fmt.Errorf("error creating controller: %v", err)
		}
		cm.controllers = append(cm.controllers, controller)
	}

	return cm, nil
}

// StartControllers starts every configured controller
func (cm *ControllerManager) StartControllers() error {
	cm.logger.Info("Starting controller manager...")

	for _, controller := range cm.controllers {
		if err := controller.StartController(); err != nil {
			return fmt.Errorf("error starting controller: %v", err)
		}
	}

	cm.logger.Infof("Started %d controllers successfully", len(cm.controllers))
	return nil
}

// ReportControllers returns the chart report controllers so that their
// rendering can be scheduled.
func (cm *ControllerManager) ReportControllers() []*reports.Controller {
	return cm.reports
}

// createController creates a controller based on the controller configuration
func (cm *ControllerManager) createController(provider config.ConfigProvider, cc config.ControllerData, store *csvcache.Store, svc *indicators.Service) (Controller, error) {
	switch cc.Type {
	case "restserver", "rest":
		rc := config.RESTServerData{}
		if cc.RESTServer != nil {
			rc = *cc.RESTServer
		}
		return restserver.NewController(cm.ctx, cm.wg, provider, rc, store, svc, cm.logger)
	case "reports":
		rc := config.ReportsData{}
		if cc.Reports != nil {
			rc = *cc.Reports
		}
		rep, err := reports.NewController(cm.ctx, cm.wg, rc, svc, cm.logger)
		if err != nil {
			return nil, err
		}
		cm.reports = append(cm.reports, rep)
		return rep, nil
	default:
		return nil, fmt.Errorf("unknown controller type: %s", cc.Type)
	}
}
