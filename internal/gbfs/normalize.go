// ABOUTME: Normalizers reducing raw status feeds to canonical availability counts
// ABOUTME: Station and vehicle documents share envelope handling but differ per entry

package gbfs

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/fleetlens-io/fleetlens/internal/observability"
	"github.com/fleetlens-io/fleetlens/internal/types"
)

// NormalizeStatus reduces a raw status document to canonical counts
// according to the classification verdict. A document whose declared
// list is missing or malformed yields an error rather than zeros, so
// callers can distinguish "no data" from "none available".
func NormalizeStatus(raw []byte, verdict types.ClassificationVerdict) (*types.NormalizedStatus, error) {
	switch verdict.Type {
	case types.SystemTypeStationBased:
		return normalizeStations(raw)
	case types.SystemTypeFreeFloating:
		return normalizeVehicles(raw)
	default:
		return nil, observability.NewParseError("normalize_status",
			fmt.Errorf("no status semantics for system type %q", verdict.Type))
	}
}

func normalizeStations(raw []byte) (*types.NormalizedStatus, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, observability.NewParseError("normalize_stations", err)
	}

	list, ok := dataSection(doc)["stations"].([]any)
	if !ok {
		return nil, observability.NewParseError("normalize_stations",
			errors.New("missing or invalid stations list"))
	}

	var available, disabled, docks int
	stationIDs := make(map[string]struct{})
	anonymous := 0

	for _, entry := range list {
		st, ok := entry.(map[string]any)
		if !ok {
			anonymous++
			continue
		}

		switch id := st["station_id"].(type) {
		case string:
			if id != "" {
				stationIDs[id] = struct{}{}
			} else {
				anonymous++
			}
		case float64:
			stationIDs[strconv.FormatFloat(id, 'f', -1, 64)] = struct{}{}
		default:
			anonymous++
		}

		if counts, ok := st["vehicle_types_available"].([]any); ok && len(counts) > 0 {
			for _, c := range counts {
				if m, ok := c.(map[string]any); ok {
					available += intField(m, "count")
				}
			}
		} else {
			available += intField(st, "num_bikes_available") +
				intField(st, "num_ebikes_available") +
				intField(st, "num_vehicles_available")
		}

		disabled += intField(st, "num_bikes_disabled") +
			intField(st, "num_ebikes_disabled") +
			intField(st, "num_vehicles_disabled")

		docks += intField(st, "num_docks_available")
	}

	env := parseEnvelope(doc)
	return &types.NormalizedStatus{
		TotalVehicles:     available + disabled,
		AvailableVehicles: available,
		StationCount:      len(stationIDs) + anonymous,
		AvailableDocks:    docks,
		LastUpdated:       env.lastUpdated,
		TTLSeconds:        env.ttlSeconds,
	}, nil
}

func normalizeVehicles(raw []byte) (*types.NormalizedStatus, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, observability.NewParseError("normalize_vehicles", err)
	}

	data := dataSection(doc)
	var list []any
	found := false
	for _, key := range []string{"vehicles", "bikes"} {
		v, present := data[key]
		if !present {
			continue
		}
		l, ok := v.([]any)
		if !ok {
			return nil, observability.NewParseError("normalize_vehicles",
				fmt.Errorf("field %q is not a list", key))
		}
		list = l
		found = true
		break
	}
	if !found {
		return nil, observability.NewParseError("normalize_vehicles",
			errors.New("missing vehicles or bikes list"))
	}

	// A vehicle counts as available only when the feed explicitly says
	// it is neither disabled nor reserved. Absent flags mean unknown.
	available := 0
	for _, entry := range list {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		dis, okDis := m["is_disabled"].(bool)
		res, okRes := m["is_reserved"].(bool)
		if okDis && okRes && !dis && !res {
			available++
		}
	}

	env := parseEnvelope(doc)
	return &types.NormalizedStatus{
		TotalVehicles:     len(list),
		AvailableVehicles: available,
		LastUpdated:       env.lastUpdated,
		TTLSeconds:        env.ttlSeconds,
	}, nil
}

// dataSection returns the document's data object, or the document
// itself for feeds that skip the envelope.
func dataSection(doc map[string]any) map[string]any {
	if data, ok := doc["data"].(map[string]any); ok {
		return data
	}
	return doc
}

// intField reads a numeric field as a non-negative count. Missing,
// non-numeric, and negative values contribute zero.
func intField(m map[string]any, key string) int {
	f, ok := m[key].(float64)
	if !ok || f < 0 {
		return 0
	}
	return int(f)
}

type envelope struct {
	lastUpdated *time.Time
	ttlSeconds  int
}

// parseEnvelope reads the document-level freshness metadata. The
// last_updated field appears as an epoch number in GBFS 2.x and an
// RFC 3339 string in 3.x.
func parseEnvelope(doc map[string]any) envelope {
	var env envelope
	switch v := doc["last_updated"].(type) {
	case float64:
		if v > 0 {
			t := time.Unix(int64(v), 0).UTC()
			env.lastUpdated = &t
		}
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			u := t.UTC()
			env.lastUpdated = &u
		}
	}
	if ttl, ok := doc["ttl"].(float64); ok && ttl > 0 {
		env.ttlSeconds = int(ttl)
	}
	return env
}
