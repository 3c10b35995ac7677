// Package timescaledb implements a TimescaleDB storage backend for
// measurements and station metadata.
package timescaledb

import (
	"context"
	"sync"
	"time"

	"github.com/hydrometrie/watertracker/internal/database"
	"github.com/hydrometrie/watertracker/internal/log"
	"github.com/hydrometrie/watertracker/internal/types"
	"github.com/hydrometrie/watertracker/pkg/config"
	"github.com/jackc/pgtype"
	"gorm.io/gorm"
)

// Storage holds the configuration for a TimescaleDB storage backend
type Storage struct {
	DB *gorm.DB
}

// MeasurementRow is the hypertable row for a raw measurement
type MeasurementRow struct {
	Time          time.Time `gorm:"column:time;not null;index"`
	StationCode   string    `gorm:"column:station_code;not null;index"`
	Kind          string    `gorm:"column:kind;not null"`
	Value         float64   `gorm:"column:value"`
	Qualification string    `gorm:"column:qualification"`
}

// TableName customizes the measurement table name
func (MeasurementRow) TableName() string {
	return "measurements"
}

// StationRow stores a station with its raw upstream metadata document
type StationRow struct {
	Code         string       `gorm:"column:code;primaryKey"`
	Department   string       `gorm:"column:department;index"`
	Commune      string       `gorm:"column:commune"`
	Kind         string       `gorm:"column:kind"`
	MeasureStart *time.Time   `gorm:"column:measure_start"`
	MeasureEnd   *time.Time   `gorm:"column:measure_end"`
	Raw          pgtype.JSONB `gorm:"type:jsonb;default:'{}';not null"`
}

// TableName customizes the station table name
func (StationRow) TableName() string {
	return "stations"
}

const createExtensionSQL = `CREATE EXTENSION IF NOT EXISTS timescaledb;`

const createHypertableSQL = `SELECT create_hypertable('measurements', 'time', if_not_exists => TRUE);`

// New sets up a new TimescaleDB storage backend
func New(ctx context.Context, c *config.TimescaleDBData) (*Storage, error) {
	t := Storage{}

	var err error
	t.DB, err = database.CreateConnection(c.ConnectionString)
	if err != nil {
		return &Storage{}, err
	}

	log.Info("migrating measurement tables...")
	if err := t.DB.WithContext(ctx).AutoMigrate(&MeasurementRow{}, &StationRow{}); err != nil {
		log.Warn("warning: could not migrate tables in database")
		return &Storage{}, err
	}

	log.Info("creating TimescaleDB extension...")
	if err := t.DB.WithContext(ctx).Exec(createExtensionSQL).Error; err != nil {
		log.Warn("warning: could not create TimescaleDB extension")
		return &Storage{}, err
	}

	log.Info("creating hypertable...")
	if err := t.DB.WithContext(ctx).Exec(createHypertableSQL).Error; err != nil {
		log.Warn("warning: could not create hypertable")
		return &Storage{}, err
	}

	return &t, nil
}

// StartStorageEngine creates a goroutine loop to receive measurements and
// send them off to TimescaleDB
func (t *Storage) StartStorageEngine(ctx context.Context, wg *sync.WaitGroup) chan<- types.Measurement {
	log.Info("starting TimescaleDB storage engine...")
	measurementChan := make(chan types.Measurement, 10)
	go t.processMeasurements(ctx, wg, measurementChan)
	t.startHealthMonitor(ctx)
	return measurementChan
}

func (t *Storage) processMeasurements(ctx context.Context, wg *sync.WaitGroup, mchan <-chan types.Measurement) {
	wg.Add(1)
	defer wg.Done()

	for {
		select {
		case m := <-mchan:
			if err := t.StoreMeasurement(m); err != nil {
				log.Error("could not store measurement:", err)
			}
		case <-ctx.Done():
			log.Info("cancellation request received. Cancelling measurement processor.")
			return
		}
	}
}

// StoreMeasurement stores a measurement in TimescaleDB
func (t *Storage) StoreMeasurement(m types.Measurement) error {
	row := MeasurementRow{
		Time:          m.Timestamp,
		StationCode:   m.StationCode,
		Kind:          string(m.Kind),
		Value:         m.Value,
		Qualification: m.Qualification,
	}
	return t.DB.Create(&row).Error
}

// UpsertStation stores or updates a station with its raw metadata document
func (t *Storage) UpsertStation(st types.Station, rawJSON []byte) error {
	raw := pgtype.JSONB{}
	if len(rawJSON) == 0 {
		rawJSON = []byte("{}")
	}
	if err := raw.Set(rawJSON); err != nil {
		return err
	}

	row := StationRow{
		Code:       st.Code,
		Department: st.Department,
		Commune:    st.Commune,
		Kind:       string(st.Kind),
		Raw:        raw,
	}
	if !st.MeasureStart.IsZero() {
		row.MeasureStart = &st.MeasureStart
	}
	if !st.MeasureEnd.IsZero() {
		row.MeasureEnd = &st.MeasureEnd
	}
	return t.DB.Save(&row).Error
}
