// ABOUTME: Feed-presence classification of operators into station-based or free-floating
// ABOUTME: Scooter form factors force free-floating regardless of station feeds

package gbfs

import (
	"strings"

	"github.com/fleetlens-io/fleetlens/internal/types"
)

// Classify decides the system type from the declared feeds and any
// known vehicle form factors. Rules apply in order: a scooter form
// factor forces free-floating, a complete station feed pair means
// station-based even when vehicle feeds are also present, a vehicle
// feed alone means free-floating.
func Classify(feeds types.FeedMap, formFactors []string) types.ClassificationVerdict {
	for _, ff := range formFactors {
		if strings.Contains(strings.ToLower(ff), "scooter") {
			return types.ClassificationVerdict{
				Type:     types.SystemTypeFreeFloating,
				Evidence: "scooter override",
			}
		}
	}

	if feeds.Has(types.FeedStationInformation) && feeds.Has(types.FeedStationStatus) {
		return types.ClassificationVerdict{
			Type:     types.SystemTypeStationBased,
			Evidence: "station_information+station_status",
		}
	}

	if feeds.Has(types.FeedVehicleStatus) {
		return types.ClassificationVerdict{
			Type:     types.SystemTypeFreeFloating,
			Evidence: "vehicle_status",
		}
	}
	if feeds.Has(types.FeedFreeBikeStatus) {
		return types.ClassificationVerdict{
			Type:     types.SystemTypeFreeFloating,
			Evidence: "free_bike_status",
		}
	}

	return types.ClassificationVerdict{Type: types.SystemTypeUnknown}
}

// Supersedes reports whether a re-classification may replace an
// earlier verdict. With identical feeds between passes the only
// information gained is form factors, so the verdict may move toward
// free-floating but never away from it.
func Supersedes(old, updated types.ClassificationVerdict) bool {
	if old.Type == updated.Type {
		return true
	}
	return updated.Type == types.SystemTypeFreeFloating
}

// StatusFeed picks the feed that carries live availability counts for
// the classified system type. The second return is the feed's URL and
// the third reports whether any suitable feed exists.
func StatusFeed(feeds types.FeedMap, verdict types.ClassificationVerdict) (types.FeedName, string, bool) {
	switch verdict.Type {
	case types.SystemTypeStationBased:
		if url, ok := feeds.URL(types.FeedStationStatus); ok {
			return types.FeedStationStatus, url, true
		}
	case types.SystemTypeFreeFloating:
		if url, ok := feeds.URL(types.FeedVehicleStatus); ok {
			return types.FeedVehicleStatus, url, true
		}
		if url, ok := feeds.URL(types.FeedFreeBikeStatus); ok {
			return types.FeedFreeBikeStatus, url, true
		}
	}
	return "", "", false
}
