// ABOUTME: Feed map and classification types for GBFS systems
// ABOUTME: Feed name constants, system type enum, and classification verdicts

package types

// FeedName identifies a published feed inside a discovery document.
type FeedName string

const (
	// FeedDiscovery is the discovery document itself (gbfs.json).
	FeedDiscovery FeedName = "gbfs"

	FeedSystemInformation  FeedName = "system_information"
	FeedStationInformation FeedName = "station_information"
	FeedStationStatus      FeedName = "station_status"

	// FeedVehicleStatus is the GBFS 3.x dockless status feed.
	FeedVehicleStatus FeedName = "vehicle_status"

	// FeedFreeBikeStatus is the GBFS 2.x predecessor of vehicle_status.
	FeedFreeBikeStatus FeedName = "free_bike_status"

	FeedVehicleTypes FeedName = "vehicle_types"
)

// FeedMap maps feed names to their URLs for one operator.
type FeedMap map[FeedName]string

// Has reports whether the feed is published.
func (m FeedMap) Has(name FeedName) bool {
	_, ok := m[name]
	return ok
}

// URL returns the feed URL and whether it is published.
func (m FeedMap) URL(name FeedName) (string, bool) {
	u, ok := m[name]
	return u, ok
}

// SystemType classifies an operator's deployment model.
type SystemType string

const (
	SystemTypeStationBased SystemType = "station_based"
	SystemTypeFreeFloating SystemType = "free_floating"
	SystemTypeUnknown      SystemType = "unknown"
)

// IsValid checks if the system type is a known value.
func (s SystemType) IsValid() bool {
	switch s {
	case SystemTypeStationBased, SystemTypeFreeFloating, SystemTypeUnknown:
		return true
	default:
		return false
	}
}

// ClassificationVerdict is the outcome of classifying one operator.
type ClassificationVerdict struct {
	// Type is the deployment model.
	Type SystemType `json:"type"`

	// Evidence names what drove the verdict (feeds seen, or the
	// scooter override).
	Evidence string `json:"evidence,omitempty"`
}
