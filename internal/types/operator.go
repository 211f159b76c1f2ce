// ABOUTME: Operator catalog types shared across catalog, pipeline, and API
// ABOUTME: Wire shapes for the upstream systems listing and the normalized record

package types

import (
	"errors"
	"slices"
	"strings"
)

// DataType identifies the feed convention a catalog entry publishes.
type DataType string

const (
	DataTypeGBFS   DataType = "gbfs"
	DataTypeGTFS   DataType = "gtfs"
	DataTypeGTFSRT DataType = "gtfs_rt"
)

// ValidDataTypes is the list of catalog data types this service understands.
var ValidDataTypes = []DataType{DataTypeGBFS, DataTypeGTFS, DataTypeGTFSRT}

// IsValidDataType checks if a data type string is supported.
func IsValidDataType(s string) bool {
	return slices.Contains(ValidDataTypes, DataType(s))
}

// ParseDataType normalizes and validates a data type string.
func ParseDataType(s string) (DataType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DataTypeGBFS, nil
	}
	if !IsValidDataType(s) {
		return "", errors.New("unknown data type: " + s)
	}
	return DataType(s), nil
}

// SystemEntry is one row of the upstream systems catalog, as served.
type SystemEntry struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DataType    string `json:"data_type"`
	URL         string `json:"url"`
	ProducerURL string `json:"producer_url,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
}

// SystemsPage is one page of the catalog listing.
type SystemsPage struct {
	Systems []SystemEntry `json:"systems"`
	Total   int           `json:"total,omitempty"`
}

// OperatorRecord identifies one mobility operator, normalized from a
// catalog entry. Immutable once loaded.
type OperatorRecord struct {
	// SystemID is the catalog identity of the operator.
	SystemID string `json:"system_id"`

	// Name is the catalog display name, possibly replaced later by the
	// operator's self-reported name from its discovery document.
	Name string `json:"name"`

	// Location is the inferred city, or "Unknown Location".
	Location string `json:"location"`

	// CountryCode is the inferred or catalog-supplied ISO country code.
	CountryCode string `json:"country_code,omitempty"`

	// DiscoveryURL points at the operator's discovery document.
	DiscoveryURL string `json:"discovery_url"`
}

// Validate checks that the record can drive an aggregation run.
func (r *OperatorRecord) Validate() error {
	if r.SystemID == "" {
		return errors.New("system_id is required")
	}
	if r.DiscoveryURL == "" {
		return errors.New("discovery_url is required")
	}
	return nil
}
