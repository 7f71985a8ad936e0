// streamaggregator - platform-agnostic live stream ingestion engine
// SPDX-License-Identifier: Apache-2.0
// https://github.com/tomtom215/streamaggregator

package ops

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/streamaggregator/internal/catalog/model"
	"github.com/tomtom215/streamaggregator/internal/connector"
)

// fakeStore is a minimal catalog.Store double. Only the methods ops.Router
// actually calls matter for these tests; the rest are never exercised but
// must exist to satisfy the interface.
type fakeStore struct {
	pingErr error
}

func (f *fakeStore) UpsertChannel(context.Context, *model.Channel) error { return nil }
func (f *fakeStore) GetChannel(context.Context, model.Platform, string) (*model.Channel, error) {
	return nil, nil
}
func (f *fakeStore) ChannelsByPriority(context.Context, model.Platform, model.PollingPriority) ([]model.Channel, error) {
	return nil, nil
}
func (f *fakeStore) RefreshPollingPriorities(context.Context, time.Time) (int, error) { return 0, nil }
func (f *fakeStore) UpsertStream(context.Context, *model.Stream) error                { return nil }
func (f *fakeStore) ApplyStreamUpdate(context.Context, model.Platform, model.StreamUpdate) error {
	return nil
}
func (f *fakeStore) LiveStreamIDs(context.Context, model.Platform) ([]string, error) { return nil, nil }
func (f *fakeStore) MarkMissingAsEnded(context.Context, model.Platform, []string, int, time.Time) (int, error) {
	return 0, nil
}
func (f *fakeStore) ArchiveOlderThan(context.Context, time.Time) (int, error)    { return 0, nil }
func (f *fakeStore) RecordUsage(context.Context, model.ApiUsageRecord) error     { return nil }
func (f *fakeStore) RecordFollow(context.Context, model.Follow) error           { return nil }
func (f *fakeStore) RecordReport(context.Context, model.Report, int) error      { return nil }
func (f *fakeStore) SeedChannel(context.Context, model.SeedChannel) error       { return nil }
func (f *fakeStore) SeedChannels(context.Context) ([]model.SeedChannel, error)  { return nil, nil }
func (f *fakeStore) IsSeedChannel(context.Context, model.Platform, string) (bool, error) {
	return false, nil
}
func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func TestHealthzReturnsOKWhenStoreIsHealthy(t *testing.T) {
	store := &fakeStore{}
	r := Router(store, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestHealthzReturnsServiceUnavailableWhenPingFails(t *testing.T) {
	store := &fakeStore{pingErr: assertPingErr}
	r := Router(store, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

var assertPingErr = context.DeadlineExceeded

func TestMetricsRouteServesPrometheusFormat(t *testing.T) {
	r := Router(&fakeStore{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}

func TestDebugConnectorsReturnsSortedStatusSnapshot(t *testing.T) {
	helixGov := connector.NewGovernor(connector.GovernorConfig{Name: "helix", QuotaLimit: 100})
	torrentGov := connector.NewGovernor(connector.GovernorConfig{Name: "torrent"})

	governors := map[model.Platform]*connector.Governor{
		model.PlatformTorrent: torrentGov,
		model.PlatformHelix:   helixGov,
	}

	r := Router(&fakeStore{}, governors)

	req := httptest.NewRequest(http.MethodGet, "/debug/connectors", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var statuses []connector.StatusInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &statuses))
	require.Len(t, statuses, 2)
	assert.Equal(t, "helix", statuses[0].Name)
	assert.Equal(t, "torrent", statuses[1].Name)
	assert.Equal(t, 100, statuses[0].QuotaLimit)
}
