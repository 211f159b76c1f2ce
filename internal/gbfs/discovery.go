// ABOUTME: Discovery document parser extracting an operator's feed map and name
// ABOUTME: Handles enveloped, multi-language, and flattened root-level shapes

package gbfs

import (
	"encoding/json"
	"errors"
	"sort"

	"github.com/fleetlens-io/fleetlens/internal/observability"
	"github.com/fleetlens-io/fleetlens/internal/types"
)

// ParseDiscovery extracts the feed name-to-URL map and the operator's
// declared name from a gbfs.json-style document. Only invalid JSON is
// an error; every structural surprise degrades to an empty map with
// the fallback name, since an operator publishing no feeds is a
// legitimate outcome.
func ParseDiscovery(raw []byte, fallbackName string) (types.FeedMap, string, error) {
	if !json.Valid(raw) {
		return nil, fallbackName, observability.NewParseError("parse_discovery", errors.New("document is not valid JSON"))
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		// Valid JSON that is not an object carries no feeds.
		return types.FeedMap{}, fallbackName, nil
	}

	// Unwrap one data envelope when no feed list sits at the top level.
	if data, ok := doc["data"].(map[string]any); ok {
		if _, hasFeeds := doc["feeds"]; !hasFeeds {
			doc = data
		}
	}

	// Scan language blocks: en first, then whatever keys are present in
	// sorted order. The first language yielding usable feeds wins.
	langs := []string{"en"}
	rest := make([]string, 0, len(doc))
	for k := range doc {
		if k != "en" {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	langs = append(langs, rest...)

	for _, lang := range langs {
		block, ok := doc[lang].(map[string]any)
		if !ok {
			continue
		}
		feeds := extractFeeds(block["feeds"])
		if len(feeds) == 0 {
			continue
		}
		return feeds, nameOrFallback(block, fallbackName), nil
	}

	// Flattened shape: feeds directly at this level.
	if feeds := extractFeeds(doc["feeds"]); len(feeds) > 0 {
		return feeds, nameOrFallback(doc, fallbackName), nil
	}

	return types.FeedMap{}, fallbackName, nil
}

// extractFeeds builds a feed map from a raw feed list. An entry counts
// only when both name and url are non-empty strings.
func extractFeeds(v any) types.FeedMap {
	list, ok := v.([]any)
	if !ok {
		return nil
	}

	feeds := make(types.FeedMap)
	for _, entry := range list {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		url, _ := m["url"].(string)
		if name == "" || url == "" {
			continue
		}
		feeds[types.FeedName(name)] = url
	}
	return feeds
}

func nameOrFallback(block map[string]any, fallback string) string {
	if s, ok := block["name"].(string); ok && s != "" {
		return s
	}
	return fallback
}
