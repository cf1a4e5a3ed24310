package event

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/onnwee/nearby/internal/geo"
	"github.com/onnwee/nearby/internal/location"
	"github.com/onnwee/nearby/internal/search"
)

// Rank filters events by query, annotates them with their distance from the
// user when a coordinate is known, and stable-sorts them by mode. Events
// without a sort key go last. The input slice is not modified.
func Rank(events []DisplayEvent, pos *location.UserPosition, query string, mode SortMode) []RankedEvent {
	ranked := make([]RankedEvent, 0, len(events))
	query = strings.TrimSpace(query)
	for _, e := range events {
		if query != "" && !search.Contains(e.Title+" "+e.LocationLabel, query) {
			continue
		}
		ranked = append(ranked, RankedEvent{DisplayEvent: e})
	}

	if user, ok := pos.Known(); ok {
		for i := range ranked {
			d := geo.DistanceMeters(user, ranked[i].Location)
			ranked[i].DistanceMeters = &d
			ranked[i].Distance = geo.FormatDistance(d)
		}
	}

	key := distanceKey
	if mode == SortTime {
		key = timeKey
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return key(ranked[i]) < key(ranked[j])
	})
	return ranked
}

func distanceKey(e RankedEvent) float64 {
	if e.DistanceMeters == nil {
		return math.Inf(1)
	}
	return *e.DistanceMeters
}

func timeKey(e RankedEvent) float64 {
	minutes, ok := ParseClock(e.Time)
	if !ok {
		return math.Inf(1)
	}
	return float64(minutes)
}

// ParseClock parses "H:MM" or "HH:MM" into minutes since midnight.
func ParseClock(s string) (int, bool) {
	h, m, found := strings.Cut(strings.TrimSpace(s), ":")
	if !found || len(h) < 1 || len(h) > 2 || len(m) != 2 {
		return 0, false
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 || !isDigits(h) {
		return 0, false
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 || !isDigits(m) {
		return 0, false
	}
	return hour*60 + minute, true
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
