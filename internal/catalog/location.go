// ABOUTME: Best-effort city inference from operator names and producer URLs
// ABOUTME: Ordered substring table, first match wins, config may append entries

package catalog

import "strings"

// UnknownLocation is the city assigned when no rule matches.
const UnknownLocation = "Unknown Location"

// LocationRule maps a lowercase substring to a city and country.
type LocationRule struct {
	Match       string
	City        string
	CountryCode string
}

// defaultLocationRules is checked in order; earlier entries win. More
// specific matches sit before generic ones ("buenos aires" must come
// before "ecobici", which names systems in both Buenos Aires and
// Mexico City). This is a heuristic over free-text operator names, not
// an authoritative geocoder.
var defaultLocationRules = []LocationRule{
	{"oslo", "Oslo", "NO"},
	{"bergen", "Bergen", "NO"},
	{"trondheim", "Trondheim", "NO"},
	{"stockholm", "Stockholm", "SE"},
	{"copenhagen", "Copenhagen", "DK"},
	{"kobenhavn", "Copenhagen", "DK"},
	{"helsinki", "Helsinki", "FI"},
	{"berlin", "Berlin", "DE"},
	{"hamburg", "Hamburg", "DE"},
	{"munich", "Munich", "DE"},
	{"münchen", "Munich", "DE"},
	{"frankfurt", "Frankfurt", "DE"},
	{"cologne", "Cologne", "DE"},
	{"köln", "Cologne", "DE"},
	{"vienna", "Vienna", "AT"},
	{"wien", "Vienna", "AT"},
	{"zurich", "Zurich", "CH"},
	{"zürich", "Zurich", "CH"},
	{"amsterdam", "Amsterdam", "NL"},
	{"brussels", "Brussels", "BE"},
	{"bruxelles", "Brussels", "BE"},
	{"paris", "Paris", "FR"},
	{"velib", "Paris", "FR"},
	{"lyon", "Lyon", "FR"},
	{"london", "London", "GB"},
	{"dublin", "Dublin", "IE"},
	{"madrid", "Madrid", "ES"},
	{"bicimad", "Madrid", "ES"},
	{"barcelona", "Barcelona", "ES"},
	{"bicing", "Barcelona", "ES"},
	{"lisbon", "Lisbon", "PT"},
	{"lisboa", "Lisbon", "PT"},
	{"milano", "Milan", "IT"},
	{"milan", "Milan", "IT"},
	{"warsaw", "Warsaw", "PL"},
	{"warszawa", "Warsaw", "PL"},
	{"new york", "New York", "US"},
	{"citi bike", "New York", "US"},
	{"citibike", "New York", "US"},
	{"chicago", "Chicago", "US"},
	{"divvy", "Chicago", "US"},
	{"san francisco", "San Francisco", "US"},
	{"bay wheels", "San Francisco", "US"},
	{"baywheels", "San Francisco", "US"},
	{"washington", "Washington", "US"},
	{"capital bikeshare", "Washington", "US"},
	{"boston", "Boston", "US"},
	{"bluebikes", "Boston", "US"},
	{"portland", "Portland", "US"},
	{"biketown", "Portland", "US"},
	{"toronto", "Toronto", "CA"},
	{"montreal", "Montreal", "CA"},
	{"montréal", "Montreal", "CA"},
	{"bixi", "Montreal", "CA"},
	{"vancouver", "Vancouver", "CA"},
	{"buenos aires", "Buenos Aires", "AR"},
	{"ecobici", "Mexico City", "MX"},
	{"melbourne", "Melbourne", "AU"},
	{"sydney", "Sydney", "AU"},
	{"auckland", "Auckland", "NZ"},
	{"tokyo", "Tokyo", "JP"},
	{"taipei", "Taipei", "TW"},
	{"youbike", "Taipei", "TW"},
}

// Locator infers a city and country from catalog entry text.
type Locator struct {
	rules []LocationRule
}

// NewLocator builds a locator from the built-in table plus any extra
// rules. Extras are appended after the built-ins, so they extend the
// table without reordering it.
func NewLocator(extra []LocationRule) *Locator {
	rules := make([]LocationRule, 0, len(defaultLocationRules)+len(extra))
	rules = append(rules, defaultLocationRules...)
	for _, r := range extra {
		rules = append(rules, LocationRule{
			Match:       strings.ToLower(r.Match),
			City:        r.City,
			CountryCode: r.CountryCode,
		})
	}
	return &Locator{rules: rules}
}

// Infer returns the first matching rule's city and country for the
// lowercased concatenation of name and producer URL, or
// (UnknownLocation, "") when nothing matches.
func (l *Locator) Infer(name, producerURL string) (city, countryCode string) {
	haystack := strings.ToLower(name + " " + producerURL)
	for _, r := range l.rules {
		if strings.Contains(haystack, r.Match) {
			return r.City, r.CountryCode
		}
	}
	return UnknownLocation, ""
}

// Rules returns the number of active rules.
func (l *Locator) Rules() int {
	return len(l.rules)
}
