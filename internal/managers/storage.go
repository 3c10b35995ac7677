// Package managers wires the configured storage backends, upstream
// connectors and controllers together.
package managers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hydrometrie/watertracker/internal/storage"
	"github.com/hydrometrie/watertracker/internal/storage/csvcache"
	"github.com/hydrometrie/watertracker/internal/storage/timescaledb"
	"github.com/hydrometrie/watertracker/internal/types"
	"github.com/hydrometrie/watertracker/pkg/config"
)

// StorageManager holds our active storage backends
type StorageManager struct {
	Engines                []StorageEngine
	MeasurementDistributor chan types.Measurement

	cache     *csvcache.Engine
	timescale *timescaledb.Storage
}

// StorageEngine holds a backend storage engine's interface as well as
// a channel for passing measurements to the engine
type StorageEngine struct {
	Engine storage.StorageEngineInterface
	C      chan<- types.Measurement
}

// NewStorageManager creates a StorageManager object, populated with all
// configured StorageEngines. The CSV cache is always enabled: it is the
// source of truth for indicator computation.
func NewStorageManager(ctx context.Context, wg *sync.WaitGroup, cfgData *config.ConfigData) (*StorageManager, error) {
	s := StorageManager{}

	// Initialize our channel for passing measurements to the distributor
	s.MeasurementDistributor = make(chan types.Measurement, 20)

	// Start our distributor to fan received measurements out to storage
	// backends
	go s.startMeasurementDistributor(ctx, wg)

	if err := s.AddEngine(ctx, wg, "csvcache", cfgData); err != nil {
		return &s, fmt.Errorf("could not add CSV cache storage backend: %v", err)
	}

	if cfgData.Storage.TimescaleDB != nil && cfgData.Storage.TimescaleDB.ConnectionString != "" {
		if err := s.AddEngine(ctx, wg, "timescaledb", cfgData); err != nil {
			return &s, fmt.Errorf("could not add TimescaleDB storage backend: %v", err)
		}
	}

	return &s, nil
}

// GetMeasurementDistributor returns the measurement distributor channel
func (s *StorageManager) GetMeasurementDistributor() chan types.Measurement {
	return s.MeasurementDistributor
}

// StationWriter returns the database backend that persists station
// metadata, or nil when only the CSV cache is configured.
func (s *StorageManager) StationWriter() StationWriter {
	if s.timescale == nil {
		return nil
	}
	return s.timescale
}

// CacheStore returns the CSV cache store shared with the indicator
// service and the REST server.
func (s *StorageManager) CacheStore() *csvcache.Store {
	if s.cache == nil {
		return nil
	}
	return s.cache.Store
}

// AddEngine adds a new StorageEngine of name engineName to our Storage object
func (s *StorageManager) AddEngine(ctx context.Context, wg *sync.WaitGroup, engineName string, cfgData *config.ConfigData) error {
	switch engineName {
	case "csvcache":
		se := StorageEngine{}
		engine, err := csvcache.NewEngine(cfgData.Storage.CSVCache, cfgData.Data.Directory)
		if err != nil {
			return err
		}
		s.cache = engine
		se.Engine = engine
		se.C = se.Engine.StartStorageEngine(ctx, wg)
		s.Engines = append(s.Engines, se)
	case "timescaledb":
		se := StorageEngine{}
		engine, err := timescaledb.New(ctx, cfgData.Storage.TimescaleDB)
		if err != nil {
			return err
		}
		s.timescale = engine
		se.Engine = engine
		se.C = se.Engine.StartStorageEngine(ctx, wg)
		s.Engines = append(s.Engines, se)
	default:
		return fmt.Errorf("unknown storage engine: %s", engineName)
	}

	return nil
}

// Drain blocks until the distributor and every engine channel are empty, or
// ctx expires. One-shot commands call this before cancelling the engines so
// buffered measurements reach storage instead of being dropped.
func (s *StorageManager) Drain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if s.buffered() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *StorageManager) buffered() int {
	n := len(s.MeasurementDistributor)
	for _, e := range s.Engines {
		n += len(e.C)
	}
	return n
}

// startMeasurementDistributor receives measurements from the connectors and
// fans them out to the various storage backends
func (s *StorageManager) startMeasurementDistributor(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	defer wg.Done()

	for {
		select {
		case m := <-s.MeasurementDistributor:
			for _, e := range s.Engines {
				e.C <- m
			}
		case <-ctx.Done():
			return
		}
	}
}
