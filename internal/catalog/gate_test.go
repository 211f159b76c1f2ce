// ABOUTME: Tests for the per-data-type refresh gate
// ABOUTME: Covers serialization, cancellation while waiting, and release

package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fleetlens-io/fleetlens/internal/types"
)

func TestRefreshGate_SerializesSameDataType(t *testing.T) {
	t.Parallel()

	gate := NewRefreshGate()
	ctx := context.Background()

	release, err := gate.Acquire(ctx, types.DataTypeGBFS)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !gate.Busy(types.DataTypeGBFS) {
		t.Error("expected gate to report busy while held")
	}

	acquired := make(chan func(), 1)
	go func() {
		second, err := gate.Acquire(ctx, types.DataTypeGBFS)
		if err != nil {
			t.Errorf("second Acquire: %v", err)
			return
		}
		acquired <- second
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire succeeded while first still held")
	case <-time.After(50 * time.Millisecond):
	}

	release()

	select {
	case second := <-acquired:
		second()
	case <-time.After(time.Second):
		t.Fatal("second acquire did not proceed after release")
	}

	if gate.Busy(types.DataTypeGBFS) {
		t.Error("expected gate idle after both releases")
	}
}

func TestRefreshGate_IndependentDataTypes(t *testing.T) {
	t.Parallel()

	gate := NewRefreshGate()

	releaseGBFS, err := gate.Acquire(context.Background(), types.DataTypeGBFS)
	if err != nil {
		t.Fatalf("Acquire gbfs: %v", err)
	}
	defer releaseGBFS()

	// A held gbfs gate must not block gtfs.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	releaseGTFS, err := gate.Acquire(ctx, types.DataTypeGTFS)
	if err != nil {
		t.Fatalf("Acquire gtfs blocked behind gbfs: %v", err)
	}
	releaseGTFS()
}

func TestRefreshGate_CanceledWhileWaiting(t *testing.T) {
	t.Parallel()

	gate := NewRefreshGate()

	release, err := gate.Acquire(context.Background(), types.DataTypeGBFS)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := gate.Acquire(ctx, types.DataTypeGBFS)
		errs <- err
	}()

	cancel()

	select {
	case err := <-errs:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiting acquire did not observe cancellation")
	}
}

func TestRefreshGate_CanceledBeforeAcquire(t *testing.T) {
	t.Parallel()

	gate := NewRefreshGate()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := gate.Acquire(ctx, types.DataTypeGBFS); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if gate.Busy(types.DataTypeGBFS) {
		t.Error("failed acquire must not mark the gate busy")
	}
}

func TestRefreshGate_ReleaseIdempotent(t *testing.T) {
	t.Parallel()

	gate := NewRefreshGate()

	release, err := gate.Acquire(context.Background(), types.DataTypeGBFS)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	release()
	release()

	// A double release must not have freed a slot a new holder owns.
	again, err := gate.Acquire(context.Background(), types.DataTypeGBFS)
	if err != nil {
		t.Fatalf("re-Acquire: %v", err)
	}
	if !gate.Busy(types.DataTypeGBFS) {
		t.Error("expected gate busy after re-acquire")
	}
	again()
}
