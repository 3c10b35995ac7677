// wt-compute recomputes the standardized indicators from the local cache and
// exits. Useful after a manual fetch or when tuning the rolling scale.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/hydrometrie/watertracker/internal/indicators"
	"github.com/hydrometrie/watertracker/internal/log"
	"github.com/hydrometrie/watertracker/internal/storage/csvcache"
	"github.com/hydrometrie/watertracker/pkg/config"
)

func main() {
	cfgFile := flag.String("config", "config.yaml", "Path to configuration file")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	scale := flag.Int("scale", 0, "Rolling window in months (0 uses the default)")
	minYears := flag.Int("min-years", 0, "Minimum years of history (0 uses the default)")
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

	if *minYears == 0 && cfgData.Sources.Hubeau != nil {
		*minYears = cfgData.Sources.Hubeau.MinYearsHistory
	}

	svc := indicators.NewService(engine.Store, *scale, *minYears)
	if err := svc.Recompute(context.Background()); err != nil {
		log.Errorf("Indicator computation failed: %v", err)
		os.Exit(1)
	}

	codes, _ := engine.Store.CachedStations()
	fmt.Printf("Indicators recomputed for %d cached stations at %s\n",
		len(codes), svc.ComputedAt().Format("2006-01-02 15:04:05"))
}
