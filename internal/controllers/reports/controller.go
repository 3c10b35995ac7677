// Package reports renders the published charts as static files: the stacked
// monthly drought distribution and per-station indicator chronicles.
package reports

import (
	"context"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sync"

	"github.com/hydrometrie/watertracker/internal/indicators"
	"github.com/hydrometrie/watertracker/internal/log"
	"github.com/hydrometrie/watertracker/internal/types"
	"github.com/hydrometrie/watertracker/pkg/config"
	"go.uber.org/zap"
)

var defaultFormats = []string{"pdf"}

// Controller renders report files on demand.
type Controller struct {
	ctx        context.Context
	wg         *sync.WaitGroup
	cfg        config.ReportsData
	indicators *indicators.Service
	logger     *zap.SugaredLogger
}

// NewController creates a reports controller.
func NewController(ctx context.Context, wg *sync.WaitGroup, rc config.ReportsData, svc *indicators.Service, logger *zap.SugaredLogger) (*Controller, error) {
	if rc.OutputDir == "" {
		rc.OutputDir = "reports"
	}
	if len(rc.Formats) == 0 {
		rc.Formats = defaultFormats
	}
	if err := os.MkdirAll(rc.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating report directory: %w", err)
	}
	return &Controller{
		ctx:        ctx,
		wg:         wg,
		cfg:        rc,
		indicators: svc,
		logger:     logger,
	}, nil
}

// StartController renders an initial set of reports in the background. The
// periodic re-render is driven by the scheduler.
func (c *Controller) StartController() error {
	log.Info("Starting reports controller...")
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.RenderAll(); err != nil {
			log.Warnf("initial report render: %v", err)
		}
	}()
	return nil
}

// RenderAll renders the distribution chart for every series kind with a
// computed distribution, in every configured format.
func (c *Controller) RenderAll() error {
	if c.indicators.ComputedAt().IsZero() {
		return fmt.Errorf("indicators not computed yet")
	}

	kinds := []types.SeriesKind{types.SeriesPiezometric, types.SeriesPrecipitation}
	rendered := 0
	for _, kind := range kinds {
		dist, ok := c.indicators.Distribution(kind)
		if !ok {
			continue
		}
		for _, format := range c.cfg.Formats {
			path := filepath.Join(c.cfg.OutputDir, fmt.Sprintf("%s-distribution.%s", kind, format))
			if err := RenderDistribution(dist, string(kind), path); err != nil {
				return fmt.Errorf("rendering %s: %w", path, err)
			}
			rendered++
			c.logger.Infof("rendered report %s", path)
		}
	}
	if rendered == 0 {
		return fmt.Errorf("no distribution available to render")
	}
	return nil
}

// RenderStation renders the indicator chronicle of one station.
func (c *Controller) RenderStation(code string) error {
	points, ok := c.indicators.StationSeries(code)
	if !ok {
		return fmt.Errorf("no indicator series for station %s", code)
	}
	for _, format := range c.cfg.Formats {
		path := filepath.Join(c.cfg.OutputDir, fmt.Sprintf("%s-indicator.%s", types.SanitizeCode(code), format))
		if err := RenderIndicatorSeries(points, code, path); err != nil {
			return err
		}
		c.logger.Infof("rendered report %s", path)
	}
	return nil
}

// parseHexColor parses a #rrggbb palette entry.
func parseHexColor(s string) color.Color {
	var r, g, b uint8
	if _, err := fmt.Sscanf(s, "#%02x%02x%02x", &r, &g, &b); err != nil {
		return color.Gray{Y: 128}
	}
	return color.RGBA{R: r, G: g, B: b, A: 255}
}
