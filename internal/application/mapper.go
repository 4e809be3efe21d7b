package application

import (
	"time"

	"github.com/patricknitsch/grohe-smarthome/internal/adapters/ondus"
	"github.com/patricknitsch/grohe-smarthome/internal/domain"
)

// Measurement keys as the cloud names them, per appliance family.
var measurementKeys = map[domain.ApplianceKind][]string{
	domain.KindSense:            {"temperature", "humidity", "battery"},
	domain.KindSenseGuard:       {"flowrate", "pressure", "temperature_guard", "valve_open"},
	domain.KindBlueHome:         {"remaining_filter", "remaining_co2", "water_running_time"},
	domain.KindBlueProfessional: {"remaining_filter", "remaining_co2", "water_running_time"},
}

// mapDashboard flattens one dashboard snapshot into device records for the
// sink. Unknown appliance kinds are passed through with raw fields only.
func mapDashboard(dashboard ondus.Dashboard, emitRaw bool, now time.Time) []domain.Device {
	var devices []domain.Device

	for _, location := range dashboard.Locations {
		for _, room := range location.Rooms {
			for _, appliance := range room.Appliances {
				devices = append(devices, mapAppliance(location, room, appliance, emitRaw, now))
			}
		}
	}

	return devices
}

func mapAppliance(location ondus.Location, room ondus.Room, appliance ondus.Appliance, emitRaw bool, now time.Time) domain.Device {
	kind := domain.KindFromCode(appliance.Type)

	device := domain.Device{
		Ref: domain.ApplianceRef{
			LocationID:  location.ID,
			RoomID:      room.ID,
			ApplianceID: appliance.ApplianceID,
		},
		Kind:         kind,
		Name:         appliance.Name,
		LocationName: location.Name,
		RoomName:     room.Name,
		SerialNumber: appliance.SerialNumber,
		UpdatedAt:    now,
	}

	if appliance.DataLatest == nil || len(appliance.DataLatest.Measurement) == 0 {
		return device
	}

	measurement := appliance.DataLatest.Measurement
	if !appliance.DataLatest.Timestamp.IsZero() {
		device.UpdatedAt = appliance.DataLatest.Timestamp
	}

	consumed := make(map[string]bool)
	for _, key := range measurementKeys[kind] {
		consumed[key] = true
	}

	switch kind {
	case domain.KindSense:
		device.Measurements.TemperatureCelsius = floatField(measurement, "temperature")
		device.Measurements.HumidityPercent = floatField(measurement, "humidity")
		device.Measurements.BatteryPercent = intField(measurement, "battery")
	case domain.KindSenseGuard:
		device.Measurements.FlowRateLPH = floatField(measurement, "flowrate")
		device.Measurements.PressureBar = floatField(measurement, "pressure")
		device.Measurements.TemperatureCelsius = floatField(measurement, "temperature_guard")
		device.Measurements.ValveOpen = boolField(measurement, "valve_open")
	case domain.KindBlueHome, domain.KindBlueProfessional:
		device.Measurements.RemainingFilterL = intField(measurement, "remaining_filter")
		device.Measurements.RemainingCO2G = intField(measurement, "remaining_co2")
		device.Measurements.WaterRunningTimeS = intField(measurement, "water_running_time")
	default:
		// Unknown kind: nothing is structured, everything goes raw.
		consumed = nil
	}

	if emitRaw || kind == domain.KindUnknown {
		raw := make(map[string]any)
		for key, value := range measurement {
			if consumed[key] {
				continue
			}
			raw[key] = value
		}
		if len(raw) > 0 {
			device.RawFields = raw
		}
	}

	return device
}

func floatField(measurement map[string]any, key string) *float64 {
	value, ok := measurement[key]
	if !ok {
		return nil
	}

	switch v := value.(type) {
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	default:
		return nil
	}
}

func intField(measurement map[string]any, key string) *int {
	value, ok := measurement[key]
	if !ok {
		return nil
	}

	switch v := value.(type) {
	case float64:
		i := int(v)
		return &i
	case int:
		return &v
	default:
		return nil
	}
}

func boolField(measurement map[string]any, key string) *bool {
	value, ok := measurement[key]
	if !ok {
		return nil
	}

	if b, ok := value.(bool); ok {
		return &b
	}

	return nil
}
