// Package connectors defines the interfaces implemented by the upstream data
// source clients (Hubeau, Copernicus CDS, Meteo France, EMI).
package connectors

import (
	"context"
	"time"

	"github.com/hydrometrie/watertracker/internal/types"
)

// Connector is an interface that provides standard methods for station-based
// data source backends
type Connector interface {
	// Name returns the connector identifier used in logs and metrics
	Name() string

	// FetchStations retrieves the station inventory for the configured scope
	FetchStations(ctx context.Context) ([]types.Station, error)

	// FetchSeries retrieves a station chronicle between from and to (inclusive)
	FetchSeries(ctx context.Context, stationCode string, from, to time.Time) ([]types.Measurement, error)
}

// GridConnector is implemented by sources that deliver gridded datasets
// rather than per-station chronicles
type GridConnector interface {
	// Name returns the connector identifier used in logs and metrics
	Name() string

	// FetchGrid retrieves one month of gridded values
	FetchGrid(ctx context.Context, year int, month time.Month) ([]types.GridPoint, error)
}
