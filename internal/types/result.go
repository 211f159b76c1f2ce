// ABOUTME: Aggregation result types produced by the pipeline
// ABOUTME: Normalized availability counts and per-operator outcomes

package types

import "time"

// NormalizedStatus carries canonical availability counts for one operator.
// A nil *NormalizedStatus means no data; counts are never zero-filled to
// stand in for missing data.
type NormalizedStatus struct {
	// TotalVehicles is the fleet size visible in the status feed,
	// including disabled vehicles.
	TotalVehicles int `json:"total_vehicles"`

	// AvailableVehicles counts vehicles ready to rent.
	AvailableVehicles int `json:"available_vehicles"`

	// StationCount is the number of distinct stations reporting.
	// Zero for free-floating systems.
	StationCount int `json:"station_count"`

	// AvailableDocks sums open docking points. Zero for free-floating
	// systems.
	AvailableDocks int `json:"available_docks"`

	// LastUpdated is the feed's own publication timestamp, when present.
	LastUpdated *time.Time `json:"last_updated,omitempty"`

	// TTLSeconds is the feed's advertised time-to-live, when present.
	TTLSeconds int `json:"ttl_seconds,omitempty"`
}

// OperatorResult is the per-operator outcome of one aggregation run.
// Failures stay attributed to the operator that caused them; a failed
// operator never suppresses its neighbors.
type OperatorResult struct {
	Operator OperatorRecord `json:"operator"`

	// ResolvedName is the operator's self-reported name from its
	// discovery document, falling back to the catalog name.
	ResolvedName string `json:"resolved_name"`

	Verdict ClassificationVerdict `json:"verdict"`

	// Status holds normalized counts, nil when the status feed was
	// missing, unreadable, or never fetched.
	Status *NormalizedStatus `json:"status,omitempty"`

	// WebsiteURL and Email come from system_information when published.
	WebsiteURL string `json:"website_url,omitempty"`
	Email      string `json:"email,omitempty"`

	// DiscoveryError is set when discovery failed; the operator took no
	// further part in the run.
	DiscoveryError string `json:"discovery_error,omitempty"`

	// StatusError is set when the status feed fetch or normalization
	// failed for an otherwise classified operator.
	StatusError string `json:"status_error,omitempty"`
}

// Failed reports whether the operator dropped out at discovery.
func (r *OperatorResult) Failed() bool {
	return r.DiscoveryError != ""
}

// HasStatus reports whether normalized counts are attached.
func (r *OperatorResult) HasStatus() bool {
	return r.Status != nil
}
