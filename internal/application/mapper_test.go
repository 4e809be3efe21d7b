package application

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patricknitsch/grohe-smarthome/internal/adapters/ondus"
	"github.com/patricknitsch/grohe-smarthome/internal/domain"
)

func dashboardWith(appliance ondus.Appliance) ondus.Dashboard {
	return ondus.Dashboard{Locations: []ondus.Location{{
		ID:    7,
		Name:  "Home",
		Rooms: []ondus.Room{{ID: 9, Name: "Kitchen", Appliances: []ondus.Appliance{appliance}}},
	}}}
}

func TestMapSenseMeasurements(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	measuredAt := now.Add(-10 * time.Minute)

	devices := mapDashboard(dashboardWith(ondus.Appliance{
		ApplianceID: "sense-1",
		Name:        "Kitchen Sense",
		Type:        101,
		DataLatest: &ondus.ApplianceData{
			Timestamp: measuredAt,
			Measurement: map[string]any{
				"temperature": 21.5,
				"humidity":    48.0,
				"battery":     float64(87),
			},
		},
	}), false, now)

	require.Len(t, devices, 1)
	device := devices[0]

	assert.Equal(t, domain.KindSense, device.Kind)
	assert.Equal(t, domain.ApplianceRef{LocationID: 7, RoomID: 9, ApplianceID: "sense-1"}, device.Ref)
	assert.Equal(t, "Home", device.LocationName)
	assert.Equal(t, "Kitchen", device.RoomName)
	assert.Equal(t, measuredAt, device.UpdatedAt)

	require.NotNil(t, device.Measurements.TemperatureCelsius)
	assert.Equal(t, 21.5, *device.Measurements.TemperatureCelsius)
	require.NotNil(t, device.Measurements.HumidityPercent)
	assert.Equal(t, 48.0, *device.Measurements.HumidityPercent)
	require.NotNil(t, device.Measurements.BatteryPercent)
	assert.Equal(t, 87, *device.Measurements.BatteryPercent)
	assert.Nil(t, device.Measurements.FlowRateLPH)
	assert.Nil(t, device.RawFields)
}

func TestMapGuardMeasurements(t *testing.T) {
	t.Parallel()

	now := time.Now()
	devices := mapDashboard(dashboardWith(ondus.Appliance{
		ApplianceID: "guard-1",
		Type:        103,
		DataLatest: &ondus.ApplianceData{
			Measurement: map[string]any{
				"flowrate":          3.2,
				"pressure":          4.1,
				"temperature_guard": 14.0,
				"valve_open":        true,
			},
		},
	}), false, now)

	require.Len(t, devices, 1)
	m := devices[0].Measurements

	require.NotNil(t, m.FlowRateLPH)
	assert.Equal(t, 3.2, *m.FlowRateLPH)
	require.NotNil(t, m.PressureBar)
	assert.Equal(t, 4.1, *m.PressureBar)
	require.NotNil(t, m.TemperatureCelsius)
	assert.Equal(t, 14.0, *m.TemperatureCelsius)
	require.NotNil(t, m.ValveOpen)
	assert.True(t, *m.ValveOpen)
	// Missing timestamp falls back to the poll instant.
	assert.Equal(t, now, devices[0].UpdatedAt)
}

func TestMapDispenserMeasurements(t *testing.T) {
	t.Parallel()

	devices := mapDashboard(dashboardWith(ondus.Appliance{
		ApplianceID: "blue-1",
		Type:        105,
		DataLatest: &ondus.ApplianceData{
			Measurement: map[string]any{
				"remaining_filter":   float64(412),
				"remaining_co2":      float64(380),
				"water_running_time": float64(95),
			},
		},
	}), false, time.Now())

	require.Len(t, devices, 1)
	m := devices[0].Measurements

	assert.Equal(t, domain.KindBlueProfessional, devices[0].Kind)
	require.NotNil(t, m.RemainingFilterL)
	assert.Equal(t, 412, *m.RemainingFilterL)
	require.NotNil(t, m.RemainingCO2G)
	assert.Equal(t, 380, *m.RemainingCO2G)
	require.NotNil(t, m.WaterRunningTimeS)
	assert.Equal(t, 95, *m.WaterRunningTimeS)
}

func TestMapEmitsUnmappedKeysOnlyWhenRawEnabled(t *testing.T) {
	t.Parallel()

	appliance := ondus.Appliance{
		ApplianceID: "sense-1",
		Type:        101,
		DataLatest: &ondus.ApplianceData{
			Measurement: map[string]any{
				"temperature":     19.0,
				"humidity_stddev": 1.4,
				"wifi_quality":    float64(62),
			},
		},
	}

	quiet := mapDashboard(dashboardWith(appliance), false, time.Now())
	require.Len(t, quiet, 1)
	assert.Nil(t, quiet[0].RawFields)

	raw := mapDashboard(dashboardWith(appliance), true, time.Now())
	require.Len(t, raw, 1)
	// Mapped keys stay out of the raw set.
	assert.Equal(t, map[string]any{"humidity_stddev": 1.4, "wifi_quality": float64(62)}, raw[0].RawFields)
}

func TestMapUnknownKindGoesFullyRaw(t *testing.T) {
	t.Parallel()

	devices := mapDashboard(dashboardWith(ondus.Appliance{
		ApplianceID: "mystery-1",
		Type:        250,
		DataLatest: &ondus.ApplianceData{
			Measurement: map[string]any{"something": "else"},
		},
	}), false, time.Now())

	require.Len(t, devices, 1)
	assert.Equal(t, domain.KindUnknown, devices[0].Kind)
	assert.Equal(t, map[string]any{"something": "else"}, devices[0].RawFields)
	assert.Nil(t, devices[0].Measurements.TemperatureCelsius)
}

func TestMapApplianceWithoutLatestData(t *testing.T) {
	t.Parallel()

	now := time.Now()
	devices := mapDashboard(dashboardWith(ondus.Appliance{
		ApplianceID: "sense-1",
		Type:        101,
	}), true, now)

	require.Len(t, devices, 1)
	assert.Equal(t, now, devices[0].UpdatedAt)
	assert.Nil(t, devices[0].RawFields)
}
