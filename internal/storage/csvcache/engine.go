package csvcache

import (
	"context"
	"sync"
	"time"

	"github.com/hydrometrie/watertracker/internal/log"
	"github.com/hydrometrie/watertracker/internal/storage"
	"github.com/hydrometrie/watertracker/internal/types"
	"github.com/hydrometrie/watertracker/pkg/config"
)

// flushInterval bounds how long buffered measurements wait before being
// written out
const flushInterval = 5 * time.Second

// batchSize triggers an early flush when enough rows have accumulated
const batchSize = 500

// Engine is the CSV cache storage backend.
type Engine struct {
	Store *Store
}

// NewEngine sets up the CSV cache storage backend.
func NewEngine(cfg *config.CSVCacheData, dataDir string) (*Engine, error) {
	dir := dataDir
	if cfg != nil && cfg.Directory != "" {
		dir = cfg.Directory
	}
	store, err := New(dir)
	if err != nil {
		return nil, err
	}
	return &Engine{Store: store}, nil
}

// StartStorageEngine creates a goroutine loop to receive measurements and
// append them to the per-station cache files
func (e *Engine) StartStorageEngine(ctx context.Context, wg *sync.WaitGroup) chan<- types.Measurement {
	log.Info("starting CSV cache storage engine...")
	measurementChan := make(chan types.Measurement, 100)
	go e.processMeasurements(ctx, wg, measurementChan)
	go e.startHealthMonitor(ctx)
	return measurementChan
}

func (e *Engine) processMeasurements(ctx context.Context, wg *sync.WaitGroup, mchan <-chan types.Measurement) {
	wg.Add(1)
	defer wg.Done()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	var pending []types.Measurement
	flush := func() {
		if len(pending) == 0 {
			return
		}
		n, err := e.Store.Append(pending)
		if err != nil {
			log.Error("could not append measurements to CSV cache:", err)
		} else if n > 0 {
			log.Debugf("appended %d rows to CSV cache", n)
		}
		pending = pending[:0]
	}

	for {
		select {
		case m := <-mchan:
			pending = append(pending, m)
			if len(pending) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			flush()
			log.Info("cancellation request received. Cancelling measurement processor.")
			return
		}
	}
}

func (e *Engine) startHealthMonitor(ctx context.Context) {
	e.updateHealthStatus()

	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.updateHealthStatus()
		case <-ctx.Done():
			log.Info("stopping CSV cache health monitor")
			return
		}
	}
}

func (e *Engine) updateHealthStatus() {
	health := &config.StorageHealthData{
		LastCheck: time.Now(),
		Status:    "healthy",
		Message:   "CSV cache writable",
	}

	if _, err := e.Store.CachedStations(); err != nil {
		health.Status = "unhealthy"
		health.Message = "cache directory unreadable"
		health.Error = err.Error()
	}

	storage.GlobalHealthManager.UpdateHealth("csvcache", health)
}
