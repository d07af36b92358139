package history

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	tracking "geotrack-cloud/internal/tracking/domain"
)

func exportFixture() (*tracking.Device, []ClusterPoint) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	device := &tracking.Device{ID: "id-1", DeviceID: "tracker-7", UserID: "user-1"}
	points := []tracking.Location{
		loc("a", 50.1000, 14.4, base),
		loc("b", 50.1001, 14.4, base.Add(time.Minute)),
		loc("c", 50.2000, 14.5, base.Add(2*time.Minute)),
	}
	return device, ClusterLocations(points, 50)
}

func TestBuildTrackXLSX(t *testing.T) {
	device, clusters := exportFixture()

	data, err := BuildTrackXLSX(device, clusters)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	got, err := f.GetCellValue("track", "B1")
	require.NoError(t, err)
	assert.Equal(t, "tracker-7", got)

	// One header row plus one row per cluster element.
	count, err := f.GetCellValue("track", "E5")
	require.NoError(t, err)
	assert.Equal(t, "2", count)

	single, err := f.GetCellValue("track", "E6")
	require.NoError(t, err)
	assert.Equal(t, "1", single)
}

func TestBuildTrackPDF(t *testing.T) {
	device, clusters := exportFixture()

	data, err := BuildTrackPDF(device, clusters)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
}
