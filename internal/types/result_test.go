// ABOUTME: Tests for aggregation result types
// ABOUTME: Covers result helpers and JSON serialization of nil status

package types_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/fleetlens-io/fleetlens/internal/types"
)

func TestOperatorResult_Failed(t *testing.T) {
	t.Parallel()

	ok := types.OperatorResult{ResolvedName: "Oslo Bysykkel"}
	if ok.Failed() {
		t.Error("Failed() = true for result without discovery error")
	}

	failed := types.OperatorResult{DiscoveryError: "[FETCH_TIMEOUT] transient: fetch_discovery: context deadline exceeded"}
	if !failed.Failed() {
		t.Error("Failed() = false for result with discovery error")
	}
}

func TestOperatorResult_HasStatus(t *testing.T) {
	t.Parallel()

	without := types.OperatorResult{}
	if without.HasStatus() {
		t.Error("HasStatus() = true for nil status")
	}

	with := types.OperatorResult{Status: &types.NormalizedStatus{TotalVehicles: 6}}
	if !with.HasStatus() {
		t.Error("HasStatus() = false for attached status")
	}
}

func TestOperatorResult_JSON_NilStatusOmitted(t *testing.T) {
	t.Parallel()

	result := types.OperatorResult{
		Operator: types.OperatorRecord{
			SystemID:     "oslo-bysykkel",
			Name:         "Oslo Bysykkel",
			Location:     "Oslo",
			DiscoveryURL: "https://example.com/gbfs.json",
		},
		ResolvedName: "Oslo Bysykkel",
		Verdict: types.ClassificationVerdict{
			Type:     types.SystemTypeStationBased,
			Evidence: "station_information+station_status",
		},
	}

	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	// A missing status must stay missing, not serialize as zero counts.
	if strings.Contains(string(data), `"status"`) {
		t.Errorf("nil status should be omitted from JSON: %s", data)
	}
	if !strings.Contains(string(data), `"station_based"`) {
		t.Errorf("verdict should serialize: %s", data)
	}
}

func TestNormalizedStatus_JSON_LastUpdated(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 5, 12, 9, 30, 0, 0, time.UTC)
	status := types.NormalizedStatus{
		TotalVehicles:     6,
		AvailableVehicles: 5,
		StationCount:      2,
		AvailableDocks:    9,
		LastUpdated:       &ts,
		TTLSeconds:        60,
	}

	data, err := json.Marshal(status)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if !strings.Contains(string(data), "2026-05-12T09:30:00Z") {
		t.Errorf("last_updated should serialize as RFC3339: %s", data)
	}

	// Absent timestamp stays absent.
	bare, err := json.Marshal(types.NormalizedStatus{TotalVehicles: 3})
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if strings.Contains(string(bare), "last_updated") {
		t.Errorf("nil last_updated should be omitted: %s", bare)
	}
}
