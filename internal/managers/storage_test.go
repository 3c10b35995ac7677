package managers

import (
	"context"
	"testing"
	"time"

	"github.com/hydrometrie/watertracker/internal/types"
)

func TestDrainWaitsForBufferedMeasurements(t *testing.T) {
	engineChan := make(chan types.Measurement, 100)
	s := &StorageManager{
		MeasurementDistributor: make(chan types.Measurement, 20),
		Engines:                []StorageEngine{{C: engineChan}},
	}

	for i := 0; i < 5; i++ {
		s.MeasurementDistributor <- types.Measurement{Value: float64(i)}
		engineChan <- types.Measurement{Value: float64(i)}
	}

	// slow consumer, the kind Drain exists to wait for
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			time.Sleep(10 * time.Millisecond)
			<-s.MeasurementDistributor
			<-engineChan
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Drain(ctx); err != nil {
		t.Fatalf("Drain returned %v with an active consumer", err)
	}
	<-done
	if n := s.buffered(); n != 0 {
		t.Errorf("buffered = %d after drain", n)
	}
}

func TestDrainGivesUpWhenContextExpires(t *testing.T) {
	s := &StorageManager{
		MeasurementDistributor: make(chan types.Measurement, 20),
	}
	s.MeasurementDistributor <- types.Measurement{}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := s.Drain(ctx); err == nil {
		t.Fatal("Drain should report the expired context when nothing consumes")
	}
}

func TestDrainEmptyReturnsImmediately(t *testing.T) {
	s := &StorageManager{
		MeasurementDistributor: make(chan types.Measurement, 20),
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Drain(ctx); err != nil {
		t.Fatalf("Drain on empty channels returned %v", err)
	}
}
