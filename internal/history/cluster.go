// Package history compacts raw location sequences into a reviewable
// form. Clustering is a read-side pure transform: it is recomputed on
// demand for display or export and never written back to storage.
package history

import (
	"time"

	"geotrack-cloud/internal/geo"
	tracking "geotrack-cloud/internal/tracking/domain"
)

// ClusterPoint is one element of a compacted track: either a single
// pass-through location or a synthetic aggregate of consecutive nearby
// locations. Exactly one representation is populated.
type ClusterPoint struct {
	// Original is set when the element is a lone location passed through
	// unchanged.
	Original *tracking.Location `json:"original,omitempty"`

	// Aggregate fields, set when two or more locations were merged.
	// Lat/Lon are the arithmetic mean of all members.
	Lat             float64             `json:"lat,omitempty"`
	Lon             float64             `json:"lon,omitempty"`
	StartTime       time.Time           `json:"start_time,omitempty"`
	EndTime         time.Time           `json:"end_time,omitempty"`
	OriginalPoints  []tracking.Location `json:"original_points,omitempty"`
	ThresholdMeters float64             `json:"threshold_meters,omitempty"`
}

// IsAggregate reports whether the element is a synthetic merge of two
// or more locations.
func (c ClusterPoint) IsAggregate() bool {
	return c.Original == nil
}

// Size returns the number of locations the element covers.
func (c ClusterPoint) Size() int {
	if c.Original != nil {
		return 1
	}
	return len(c.OriginalPoints)
}

// ClusterLocations compacts a time-ordered location sequence with a
// single greedy forward pass. The caller must pre-sort ascending by
// timestamp. A new cluster starts at the current point and absorbs the
// next unconsumed point while its haversine distance from the last
// absorbed point is strictly below thresholdMeters. Every input point
// lands in exactly one output element, in order; the transform is
// deterministic and idempotent for a fixed input and threshold.
func ClusterLocations(points []tracking.Location, thresholdMeters float64) []ClusterPoint {
	if len(points) == 0 {
		return nil
	}

	out := make([]ClusterPoint, 0, len(points))
	i := 0
	for i < len(points) {
		j := i + 1
		for j < len(points) {
			tail := points[j-1]
			next := points[j]
			if geo.Haversine(tail.Lat, tail.Lon, next.Lat, next.Lon) >= thresholdMeters {
				break
			}
			j++
		}

		if j-i == 1 {
			p := points[i]
			out = append(out, ClusterPoint{Original: &p})
		} else {
			out = append(out, newAggregate(points[i:j], thresholdMeters))
		}
		i = j
	}
	return out
}

// Flatten reproduces the original location sequence from a compacted
// track, in order.
func Flatten(clusters []ClusterPoint) []tracking.Location {
	var out []tracking.Location
	for _, c := range clusters {
		if c.Original != nil {
			out = append(out, *c.Original)
			continue
		}
		out = append(out, c.OriginalPoints...)
	}
	return out
}

func newAggregate(members []tracking.Location, thresholdMeters float64) ClusterPoint {
	copied := make([]tracking.Location, len(members))
	copy(copied, members)

	var sumLat, sumLon float64
	for _, m := range copied {
		sumLat += m.Lat
		sumLon += m.Lon
	}
	n := float64(len(copied))
	return ClusterPoint{
		Lat:             sumLat / n,
		Lon:             sumLon / n,
		StartTime:       copied[0].Timestamp,
		EndTime:         copied[len(copied)-1].Timestamp,
		OriginalPoints:  copied,
		ThresholdMeters: thresholdMeters,
	}
}
