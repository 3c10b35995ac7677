// wt-report renders the static chart reports from the local cache and exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"

	"github.com/hydrometrie/watertracker/internal/controllers/reports"
	"github.com/hydrometrie/watertracker/internal/indicators"
	"github.com/hydrometrie/watertracker/internal/log"
	"github.com/hydrometrie/watertracker/internal/storage/csvcache"
	"github.com/hydrometrie/watertracker/pkg/config"
)

func main() {
	cfgFile := flag.String("config", "config.yaml", "Path to configuration file")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	outputDir := flag.String("output", "", "Output directory (overrides configuration)")
	station := flag.String("station", "", "Render the indicator chart of a single station")
	flag.Parse()

	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	provider := config.NewYAMLProvider(*cfgFile)
	cfgData, err := provider.LoadConfig()
	if err != nil {
		log.Errorf("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	engine, err := csvcache.NewEngine(cfgData.Storage.CSVCache, cfgData.Data.Directory)
	if err != nil {
		log.Errorf("Failed to open cache: %v", err)
		os.Exit(1)
	}

	minYears := 0
	if cfgData.Sources.Hubeau != nil {
		minYears = cfgData.Sources.Hubeau.MinYearsHistory
	}
	svc := indicators.NewService(engine.Store, 0, minYears)
	if err := svc.Recompute(context.Background()); err != nil {
		log.Errorf("Indicator computation failed: %v", err)
		os.Exit(1)
	}

	rc := config.ReportsData{}
	for _, cc := range cfgData.Controllers {
		if cc.Type == "reports" && cc.Reports != nil {
			rc = *cc.Reports
			break
		}
	}
	if *outputDir != "" {
		rc.OutputDir = *outputDir
	}
	if rc.OutputDir == "" {
		rc.OutputDir = "reports"
	}

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	controller, err := reports.NewController(ctx, &wg, rc, svc, log.GetSugaredLogger())
	if err != nil {
		log.Errorf("Failed to set up report renderer: %v", err)
		os.Exit(1)
	}

	if *station != "" {
		if err := controller.RenderStation(*station); err != nil {
			log.Errorf("Rendering station report failed: %v", err)
			os.Exit(1)
		}
		fmt.Printf("Station report rendered to %s\n", rc.OutputDir)
		return
	}

	if err := controller.RenderAll(); err != nil {
		log.Errorf("Rendering reports failed: %v", err)
		os.Exit(1)
	}
	fmt.Printf("Reports rendered to %s\n", rc.OutputDir)
}
