package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geotrack-cloud/internal/geo"
	tracking "geotrack-cloud/internal/tracking/domain"
)

func loc(id string, lat, lon float64, ts time.Time) tracking.Location {
	return tracking.Location{ID: id, DeviceID: "dev-1", UserID: "user-1", Lat: lat, Lon: lon, Timestamp: ts}
}

func TestClusterLocationsEmpty(t *testing.T) {
	assert.Empty(t, ClusterLocations(nil, 20))
	assert.Empty(t, ClusterLocations([]tracking.Location{}, 20))
}

func TestClusterLocationsSinglePassThrough(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	points := []tracking.Location{loc("a", 50.1, 14.4, base)}

	out := ClusterLocations(points, 20)
	require.Len(t, out, 1)
	assert.False(t, out[0].IsAggregate())
	assert.Equal(t, points[0], *out[0].Original)
}

func TestClusterLocationsMergesNearbyPoints(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	// Three points each well under 5 m apart (0.00002 deg lat is ~2.2 m).
	points := []tracking.Location{
		loc("a", 50.10000, 14.40000, base),
		loc("b", 50.10002, 14.40000, base.Add(time.Minute)),
		loc("c", 50.10004, 14.40000, base.Add(2*time.Minute)),
	}

	out := ClusterLocations(points, 20)
	require.Len(t, out, 1)
	require.True(t, out[0].IsAggregate())
	assert.Len(t, out[0].OriginalPoints, 3)
	assert.InDelta(t, 50.10002, out[0].Lat, 1e-9)
	assert.InDelta(t, 14.4, out[0].Lon, 1e-9)
	assert.Equal(t, base, out[0].StartTime)
	assert.Equal(t, base.Add(2*time.Minute), out[0].EndTime)
	assert.Equal(t, 20.0, out[0].ThresholdMeters)
}

func TestClusterLocationsSplitsOnThreshold(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	points := []tracking.Location{
		loc("a", 50.1000, 14.4, base),
		loc("b", 50.1001, 14.4, base.Add(time.Minute)), // ~11 m from a
		loc("c", 50.1100, 14.4, base.Add(2*time.Minute)), // ~1.1 km jump
		loc("d", 50.1101, 14.4, base.Add(3*time.Minute)),
	}

	out := ClusterLocations(points, 20)
	require.Len(t, out, 2)
	assert.Equal(t, 2, out[0].Size())
	assert.Equal(t, 2, out[1].Size())
}

func TestClusterLocationsDistanceIsStrict(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	a := loc("a", 50.1, 14.4, base)
	b := loc("b", 50.1001, 14.4, base.Add(time.Minute))
	gap := geo.Haversine(a.Lat, a.Lon, b.Lat, b.Lon)

	// Exactly at threshold the point is not absorbed.
	out := ClusterLocations([]tracking.Location{a, b}, gap)
	require.Len(t, out, 2)

	out = ClusterLocations([]tracking.Location{a, b}, gap+0.001)
	require.Len(t, out, 1)
}

func TestClusterLocationsChainCanExceedThresholdEndToEnd(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	// Consecutive gaps ~11 m, first-to-last ~33 m: merging is judged
	// against the cluster tail, not the cluster start.
	points := []tracking.Location{
		loc("a", 50.1000, 14.4, base),
		loc("b", 50.1001, 14.4, base.Add(time.Minute)),
		loc("c", 50.1002, 14.4, base.Add(2*time.Minute)),
		loc("d", 50.1003, 14.4, base.Add(3*time.Minute)),
	}

	out := ClusterLocations(points, 15)
	require.Len(t, out, 1)
	assert.Equal(t, 4, out[0].Size())
}

func TestClusterLocationsFlattenReproducesInput(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	points := []tracking.Location{
		loc("a", 50.1000, 14.4, base),
		loc("b", 50.1001, 14.4, base.Add(time.Minute)),
		loc("c", 50.2000, 14.5, base.Add(2*time.Minute)),
		loc("d", 50.2001, 14.5, base.Add(3*time.Minute)),
		loc("e", 50.3000, 14.6, base.Add(4*time.Minute)),
	}

	out := ClusterLocations(points, 50)
	assert.Equal(t, points, Flatten(out))
}

func TestClusterLocationsIdempotent(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	points := []tracking.Location{
		loc("a", 50.1000, 14.4, base),
		loc("b", 50.1001, 14.4, base.Add(time.Minute)),
		loc("c", 50.2000, 14.5, base.Add(2*time.Minute)),
	}

	first := ClusterLocations(points, 50)
	second := ClusterLocations(points, 50)
	assert.Equal(t, first, second)
}

func TestClusterLocationsDoesNotMutateInput(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	points := []tracking.Location{
		loc("a", 50.1000, 14.4, base),
		loc("b", 50.1001, 14.4, base.Add(time.Minute)),
	}
	snapshot := append([]tracking.Location(nil), points...)

	out := ClusterLocations(points, 50)
	require.Len(t, out, 1)
	out[0].OriginalPoints[0].Lat = 0

	assert.Equal(t, snapshot, points)
}
