package historyhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"geotrack-cloud/internal/history"
	tracking "geotrack-cloud/internal/tracking/domain"
)

type stubResolver struct {
	device *tracking.Device
	err    error
}

func (s *stubResolver) GetByDeviceID(_ context.Context, _ string) (*tracking.Device, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.device, nil
}

type stubService struct {
	clusters  []history.ClusterPoint
	from, to  time.Time
	threshold float64
	err       error
}

func (s *stubService) Track(_ context.Context, _ *tracking.Device, from, to time.Time, threshold float64) ([]history.ClusterPoint, error) {
	s.from, s.to, s.threshold = from, to, threshold
	return s.clusters, s.err
}

func (s *stubService) ExportXLSX(_ context.Context, _ *tracking.Device, from, to time.Time, threshold float64) ([]byte, error) {
	s.from, s.to, s.threshold = from, to, threshold
	if s.err != nil {
		return nil, s.err
	}
	return []byte("PK"), nil
}

func (s *stubService) ExportPDF(_ context.Context, _ *tracking.Device, from, to time.Time, threshold float64) ([]byte, error) {
	s.from, s.to, s.threshold = from, to, threshold
	if s.err != nil {
		return nil, s.err
	}
	return []byte("%PDF-1.4"), nil
}

func ownedDevice() *tracking.Device {
	return &tracking.Device{ID: "dev-1", DeviceID: "tracker-7", UserID: "user-1"}
}

func newTestHandler(t *testing.T, resolver *stubResolver, service *stubService) *Handler {
	t.Helper()
	h, err := NewHandler(resolver, service, zap.NewNop())
	require.NoError(t, err)
	return h
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestTrackJSON(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	loc := tracking.Location{ID: "a", Lat: 50.0, Lon: 14.0, Timestamp: base}
	service := &stubService{clusters: []history.ClusterPoint{
		{Original: &loc},
		{
			Lat: 50.05, Lon: 14.05,
			StartTime: base.Add(time.Minute), EndTime: base.Add(3 * time.Minute),
			OriginalPoints: []tracking.Location{{ID: "b"}, {ID: "c"}},
		},
	}}
	h := newTestHandler(t, &stubResolver{device: ownedDevice()}, service)

	rec := get(h, "/api/v1/track?device_id=tracker-7&from=2026-03-01T00:00:00Z&to=2026-03-02T00:00:00Z&threshold=15")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 15.0, service.threshold)

	var resp struct {
		Track []struct {
			Lat   float64 `json:"lat"`
			Count int     `json:"count"`
		} `json:"track"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Track, 2)
	assert.Equal(t, 50.0, resp.Track[0].Lat)
	assert.Equal(t, 1, resp.Track[0].Count)
	assert.Equal(t, 2, resp.Track[1].Count)
}

func TestTrackXLSXDownload(t *testing.T) {
	h := newTestHandler(t, &stubResolver{device: ownedDevice()}, &stubService{})

	rec := get(h, "/api/v1/track.xlsx?device_id=tracker-7")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "tracker-7-track.xlsx")
}

func TestTrackPDFDownload(t *testing.T) {
	h := newTestHandler(t, &stubResolver{device: ownedDevice()}, &stubService{})

	rec := get(h, "/api/v1/track.pdf?device_id=tracker-7")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
}

func TestTrackForeignDeviceReadsAsAbsent(t *testing.T) {
	device := ownedDevice()
	device.UserID = "someone-else"
	h := newTestHandler(t, &stubResolver{device: device}, &stubService{})

	rec := get(h, "/api/v1/track?device_id=tracker-7")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTrackUnknownDevice(t *testing.T) {
	h := newTestHandler(t, &stubResolver{err: tracking.ErrNotFound}, &stubService{})
	rec := get(h, "/api/v1/track?device_id=ghost")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTrackBadRange(t *testing.T) {
	h := newTestHandler(t, &stubResolver{device: ownedDevice()}, &stubService{})

	rec := get(h, "/api/v1/track?device_id=tracker-7&from=yesterday")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(h, "/api/v1/track?device_id=tracker-7&from=2026-03-02T00:00:00Z&to=2026-03-01T00:00:00Z")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTrackDefaultThreshold(t *testing.T) {
	service := &stubService{}
	h := newTestHandler(t, &stubResolver{device: ownedDevice()}, service)

	rec := get(h, "/api/v1/track?device_id=tracker-7")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, history.DefaultThresholdMeters, service.threshold)
}
