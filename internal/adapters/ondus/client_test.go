package ondus

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patricknitsch/grohe-smarthome/internal/domain"
)

var testRef = domain.ApplianceRef{LocationID: 14521, RoomID: 20119, ApplianceID: "a6c52b32-ff0d-4b93"}

const testApplianceBase = "/locations/14521/rooms/20119/appliances/a6c52b32-ff0d-4b93"

// commandServer serves a fixed command document on GET and records the body
// of the POST write-back.
type commandServer struct {
	server  *httptest.Server
	current Command
	written *Command
}

func newCommandServer(t *testing.T, current Command) *commandServer {
	t.Helper()

	cs := &commandServer{current: current}
	cs.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, testApplianceBase+"/command", r.URL.Path)

		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(cs.current)
		case http.MethodPost:
			var written Command
			require.NoError(t, json.NewDecoder(r.Body).Decode(&written))
			cs.written = &written
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))

	return cs
}

func (cs *commandServer) client() *Client {
	return NewClient(NewTransport(cs.server.Client(), &stubTokens{token: "live"}, cs.server.URL, zerolog.Nop()))
}

func TestSetValvePreservesUnrelatedCommandFields(t *testing.T) {
	t.Parallel()

	cs := newCommandServer(t, Command{
		ApplianceID: testRef.ApplianceID,
		Type:        103,
		Command: map[string]any{
			"valve_open":       true,
			"measure_now":      false,
			"temp_user_unlock": 42,
		},
	})
	defer cs.server.Close()

	require.NoError(t, cs.client().SetValve(context.Background(), testRef, false))

	require.NotNil(t, cs.written)
	assert.Equal(t, false, cs.written.Command["valve_open"])
	// Fields this client does not understand survive the round trip.
	assert.Equal(t, float64(42), cs.written.Command["temp_user_unlock"])
	assert.Equal(t, false, cs.written.Command["measure_now"])
	assert.Equal(t, testRef.ApplianceID, cs.written.ApplianceID)
}

func TestTriggerMeasurementSetsMeasureNow(t *testing.T) {
	t.Parallel()

	cs := newCommandServer(t, Command{Command: map[string]any{"valve_open": true}})
	defer cs.server.Close()

	require.NoError(t, cs.client().TriggerMeasurement(context.Background(), testRef))

	require.NotNil(t, cs.written)
	assert.Equal(t, true, cs.written.Command["measure_now"])
	assert.Equal(t, true, cs.written.Command["valve_open"])
}

func TestStartPressureTestSetsMeasureNow(t *testing.T) {
	t.Parallel()

	cs := newCommandServer(t, Command{Command: map[string]any{"valve_open": true}})
	defer cs.server.Close()

	require.NoError(t, cs.client().StartPressureTest(context.Background(), testRef))

	require.NotNil(t, cs.written)
	assert.Equal(t, true, cs.written.Command["measure_now"])
	assert.Equal(t, true, cs.written.Command["valve_open"])
}

func TestDispenseWritesTapTypeAndAmount(t *testing.T) {
	t.Parallel()

	cs := newCommandServer(t, Command{Command: map[string]any{}})
	defer cs.server.Close()

	require.NoError(t, cs.client().Dispense(context.Background(), testRef, domain.TapStill, 250))

	require.NotNil(t, cs.written)
	assert.Equal(t, float64(domain.TapStill), cs.written.Command["tap_type"])
	assert.Equal(t, float64(250), cs.written.Command["tap_amount"])
}

func TestDispenseValidatesInputs(t *testing.T) {
	t.Parallel()

	cs := newCommandServer(t, Command{})
	defer cs.server.Close()
	client := cs.client()

	err := client.Dispense(context.Background(), testRef, domain.TapType(9), 250)
	require.ErrorIs(t, err, domain.ErrInvalidTapType)

	err = client.Dispense(context.Background(), testRef, domain.TapStill, 0)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	// Validation runs before any request.
	assert.Nil(t, cs.written)
}

func TestResetConsumableMapsKindToField(t *testing.T) {
	t.Parallel()

	cs := newCommandServer(t, Command{Command: map[string]any{}})
	defer cs.server.Close()

	require.NoError(t, cs.client().ResetConsumable(context.Background(), testRef, domain.ConsumableCO2))

	require.NotNil(t, cs.written)
	assert.Equal(t, true, cs.written.Command["co2_status_reset"])
	_, hasFilter := cs.written.Command["filter_status_reset"]
	assert.False(t, hasFilter)
}

func TestResetConsumableRejectsUnknownKind(t *testing.T) {
	t.Parallel()

	cs := newCommandServer(t, Command{})
	defer cs.server.Close()

	err := cs.client().ResetConsumable(context.Background(), testRef, domain.ConsumableKind("descaler"))
	require.ErrorIs(t, err, domain.ErrInvalidKind)
}

func TestSetApplianceCommandInitializesMissingBlock(t *testing.T) {
	t.Parallel()

	cs := newCommandServer(t, Command{ApplianceID: testRef.ApplianceID})
	defer cs.server.Close()

	require.NoError(t, cs.client().SetValve(context.Background(), testRef, true))

	require.NotNil(t, cs.written)
	assert.Equal(t, true, cs.written.Command["valve_open"])
}

func TestAggregatedDataBuildsDateRangeQuery(t *testing.T) {
	t.Parallel()

	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, testApplianceBase+"/data/aggregated", r.URL.Path)
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"data":{"measurement":[{"date":"2026-03-01"}]}}`))
	}))
	defer server.Close()

	client := NewClient(NewTransport(server.Client(), &stubTokens{token: "live"}, server.URL, zerolog.Nop()))

	from := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	to := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	data, err := client.AggregatedData(context.Background(), testRef, from, to, "day")
	require.NoError(t, err)

	assert.Equal(t, "from=2026-03-01&groupBy=day&to=2026-03-02", gotQuery)
	require.Len(t, data.Data.Measurement, 1)
}

func TestApplianceReadPaths(t *testing.T) {
	t.Parallel()

	paths := make(map[string]int)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths[r.URL.Path]++
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := NewClient(NewTransport(server.Client(), &stubTokens{token: "live"}, server.URL, zerolog.Nop()))
	ctx := context.Background()

	_, err := client.ApplianceStatus(ctx, testRef)
	require.NoError(t, err)
	_, err = client.PressureMeasurement(ctx, testRef)
	require.NoError(t, err)
	_, err = client.Notifications(ctx, testRef)
	require.NoError(t, err)

	assert.Equal(t, 1, paths[testApplianceBase+"/status"])
	assert.Equal(t, 1, paths[testApplianceBase+"/pressuremeasurement"])
	assert.Equal(t, 1, paths[testApplianceBase+"/notifications"])
}
