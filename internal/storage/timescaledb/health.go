package timescaledb

import (
	"context"
	"time"

	"github.com/hydrometrie/watertracker/internal/log"
	"github.com/hydrometrie/watertracker/internal/storage"
	"github.com/hydrometrie/watertracker/pkg/config"
)

// startHealthMonitor starts a goroutine that periodically updates the health status
func (t *Storage) startHealthMonitor(ctx context.Context) {
	go func() {
		// Run initial health check immediately
		t.updateHealthStatus()

		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				t.updateHealthStatus()
			case <-ctx.Done():
				log.Info("stopping TimescaleDB health monitor")
				return
			}
		}
	}()
}

func (t *Storage) updateHealthStatus() {
	health := &config.StorageHealthData{
		LastCheck: time.Now(),
		Status:    "healthy",
		Message:   "TimescaleDB connection active",
	}

	if t.DB == nil {
		health.Status = "unhealthy"
		health.Message = "No database connection"
		health.Error = "TimescaleDB connection is nil"
	} else {
		sqlDB, err := t.DB.DB()
		if err != nil {
			health.Status = "unhealthy"
			health.Message = "Could not get database handle"
			health.Error = err.Error()
		} else if err := sqlDB.Ping(); err != nil {
			health.Status = "unhealthy"
			health.Message = "Database ping failed"
			health.Error = err.Error()
		}
	}

	storage.GlobalHealthManager.UpdateHealth("timescaledb", health)
}
