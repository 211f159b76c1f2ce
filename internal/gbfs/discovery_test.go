// ABOUTME: Tests for discovery document parsing across envelope and language shapes
// ABOUTME: Verifies entry filtering, fallback naming, and the invalid-JSON error contract

package gbfs

import (
	"reflect"
	"testing"

	"github.com/fleetlens-io/fleetlens/internal/observability"
	"github.com/fleetlens-io/fleetlens/internal/types"
)

func TestParseDiscovery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		raw       string
		fallback  string
		wantFeeds types.FeedMap
		wantName  string
	}{
		{
			name:      "enveloped_english_block",
			raw:       `{"last_updated":1700000000,"ttl":60,"data":{"en":{"name":"X","feeds":[{"name":"station_status","url":"u"}]}}}`,
			fallback:  "Fallback",
			wantFeeds: types.FeedMap{types.FeedStationStatus: "u"},
			wantName:  "X",
		},
		{
			name:     "root_level_feeds",
			raw:      `{"feeds":[{"name":"system_information","url":"s"},{"name":"free_bike_status","url":"f"}]}`,
			fallback: "Fallback",
			wantFeeds: types.FeedMap{
				types.FeedSystemInformation: "s",
				types.FeedFreeBikeStatus:    "f",
			},
			wantName: "Fallback",
		},
		{
			name:      "root_level_name_wins",
			raw:       `{"name":"Root Co","feeds":[{"name":"gbfs","url":"g"}]}`,
			fallback:  "Fallback",
			wantFeeds: types.FeedMap{types.FeedDiscovery: "g"},
			wantName:  "Root Co",
		},
		{
			name:      "empty_object",
			raw:       `{}`,
			fallback:  "Fallback",
			wantFeeds: types.FeedMap{},
			wantName:  "Fallback",
		},
		{
			name: "english_preferred_over_other_languages",
			raw: `{"data":{
				"de":{"name":"Deutsch","feeds":[{"name":"station_status","url":"de-url"}]},
				"en":{"name":"English","feeds":[{"name":"station_status","url":"en-url"}]}
			}}`,
			fallback:  "Fallback",
			wantFeeds: types.FeedMap{types.FeedStationStatus: "en-url"},
			wantName:  "English",
		},
		{
			name: "languages_scanned_in_sorted_order",
			raw: `{"data":{
				"nb":{"name":"Norsk","feeds":[{"name":"station_status","url":"nb-url"}]},
				"de":{"name":"Deutsch","feeds":[{"name":"station_status","url":"de-url"}]}
			}}`,
			fallback:  "Fallback",
			wantFeeds: types.FeedMap{types.FeedStationStatus: "de-url"},
			wantName:  "Deutsch",
		},
		{
			name: "block_with_no_usable_feeds_skipped",
			raw: `{"data":{
				"en":{"name":"English","feeds":[{"name":"station_status"},{"url":"orphan"}]},
				"fr":{"name":"Français","feeds":[{"name":"free_bike_status","url":"fr-url"}]}
			}}`,
			fallback:  "Fallback",
			wantFeeds: types.FeedMap{types.FeedFreeBikeStatus: "fr-url"},
			wantName:  "Français",
		},
		{
			name: "invalid_entries_filtered",
			raw: `{"feeds":[
				{"name":"station_status","url":"ok"},
				{"name":"","url":"empty-name"},
				{"name":"no_url"},
				{"name":"vehicle_status","url":42},
				"not-an-object"
			]}`,
			fallback:  "Fallback",
			wantFeeds: types.FeedMap{types.FeedStationStatus: "ok"},
			wantName:  "Fallback",
		},
		{
			name:      "block_name_empty_uses_fallback",
			raw:       `{"data":{"en":{"name":"","feeds":[{"name":"station_status","url":"u"}]}}}`,
			fallback:  "Fallback",
			wantFeeds: types.FeedMap{types.FeedStationStatus: "u"},
			wantName:  "Fallback",
		},
		{
			name:      "valid_json_array_is_not_an_error",
			raw:       `[1,2,3]`,
			fallback:  "Fallback",
			wantFeeds: types.FeedMap{},
			wantName:  "Fallback",
		},
		{
			name:      "valid_json_scalar_is_not_an_error",
			raw:       `"just a string"`,
			fallback:  "Fallback",
			wantFeeds: types.FeedMap{},
			wantName:  "Fallback",
		},
		{
			name: "top_level_feeds_suppress_envelope_unwrap",
			raw: `{"feeds":[{"name":"station_status","url":"root-url"}],
				"data":{"en":{"name":"Inner","feeds":[{"name":"station_status","url":"inner-url"}]}}}`,
			fallback:  "Fallback",
			wantFeeds: types.FeedMap{types.FeedStationStatus: "root-url"},
			wantName:  "Fallback",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			feeds, name, err := ParseDiscovery([]byte(tt.raw), tt.fallback)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(feeds, tt.wantFeeds) {
				t.Errorf("feeds = %v, want %v", feeds, tt.wantFeeds)
			}
			if name != tt.wantName {
				t.Errorf("name = %q, want %q", name, tt.wantName)
			}
		})
	}
}

func TestParseDiscovery_InvalidJSON(t *testing.T) {
	t.Parallel()

	feeds, name, err := ParseDiscovery([]byte(`{"feeds":`), "Fallback")
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
	if !observability.IsParseError(err) {
		t.Errorf("expected parse error, got %v", err)
	}
	if feeds != nil {
		t.Errorf("feeds = %v, want nil", feeds)
	}
	if name != "Fallback" {
		t.Errorf("name = %q, want fallback", name)
	}
}
