// wt-fetch runs a one-shot refresh of the upstream sources and exits. It is
// the manual counterpart of the scheduled refresh jobs in the daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/hydrometrie/watertracker/internal/log"
	"github.com/hydrometrie/watertracker/internal/managers"
	"github.com/hydrometrie/watertracker/pkg/config"
	"github.com/joho/godotenv"
)

func main() {
	cfgFile := flag.String("config", "config.yaml", "Path to configuration file")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	inventory := flag.Bool("inventory", false, "Refresh the station inventory only")
	series := flag.Bool("series", false, "Refresh station chronicles only")
	grid := flag.Bool("grid", false, "Refresh the reanalysis grid only")
	bulletins := flag.Bool("bulletins", false, "Refresh the drought bulletins only")
	timeout := flag.Duration("timeout", 45*time.Minute, "Overall fetch timeout")
	flag.Parse()

	_ = godotenv.Load()

	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// No selection flag means refresh everything
	all := !*inventory && !*series && !*grid && !*bulletins

	provider := config.NewYAMLProvider(*cfgFile)
	cfgData, err := provider.LoadConfig()
	if err != nil {
		log.Errorf("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	var wg sync.WaitGroup
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	storageManager, err := managers.NewStorageManager(ctx, &wg, cfgData)
	if err != nil {
		log.Errorf("Failed to set up storage: %v", err)
		os.Exit(1)
	}

	connectorManager, err := managers.NewConnectorManager(cfgData, storageManager.CacheStore(), storageManager.GetMeasurementDistributor())
	if err != nil {
		log.Errorf("Failed to set up connectors: %v", err)
		os.Exit(1)
	}
	if w := storageManager.StationWriter(); w != nil {
		connectorManager.SetStationWriter(w)
	}

	failed := false
	run := func(name string, fn func(context.Context) error) {
		if err := fn(ctx); err != nil {
			log.Errorf("%s refresh failed: %v", name, err)
			failed = true
		}
	}

	if all || *inventory {
		run("inventory", connectorManager.RefreshInventory)
	}
	if all || *series {
		run("chronicle", connectorManager.RefreshSeries)
	}
	if all || *grid {
		run("grid", connectorManager.RefreshGrid)
	}
	if all || *bulletins {
		run("bulletin", connectorManager.RefreshBulletins)
	}

	// Let the storage engines drain their buffers before shutting them down
	drainCtx, drainCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := storageManager.Drain(drainCtx); err != nil {
		log.Warnf("storage drain incomplete: %v", err)
	}
	drainCancel()
	cancel()
	wg.Wait()

	if failed {
		os.Exit(1)
	}
}
