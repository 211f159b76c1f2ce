// ABOUTME: Parsers for the optional system_information and vehicle_types feeds
// ABOUTME: Tolerant map walking; structural surprises degrade to empty values

package gbfs

import (
	"encoding/json"
	"errors"

	"github.com/fleetlens-io/fleetlens/internal/observability"
)

// SystemInfo carries the contact fields published in system_information.
type SystemInfo struct {
	URL   string
	Email string
}

// ParseSystemInformation extracts the operator's website URL and contact
// email. Only invalid JSON is an error; absent fields stay empty.
func ParseSystemInformation(raw []byte) (SystemInfo, error) {
	if !json.Valid(raw) {
		return SystemInfo{}, observability.NewParseError("parse_system_information", errors.New("document is not valid JSON"))
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return SystemInfo{}, nil
	}

	data := dataSection(doc)
	var info SystemInfo
	if s, ok := data["url"].(string); ok {
		info.URL = s
	}
	if s, ok := data["email"].(string); ok {
		info.Email = s
	}
	return info, nil
}

// ParseVehicleTypes extracts the declared vehicle form factors. Only
// invalid JSON is an error; a document declaring none yields nil.
func ParseVehicleTypes(raw []byte) ([]string, error) {
	if !json.Valid(raw) {
		return nil, observability.NewParseError("parse_vehicle_types", errors.New("document is not valid JSON"))
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nil
	}

	list, ok := dataSection(doc)["vehicle_types"].([]any)
	if !ok {
		return nil, nil
	}

	var factors []string
	for _, entry := range list {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if s, ok := m["form_factor"].(string); ok && s != "" {
			factors = append(factors, s)
		}
	}
	return factors, nil
}
