package toml

import (
	"fmt"
	"time"

	"github.com/patricknitsch/grohe-smarthome/internal/domain"
)

const currentSchemaVersion = 1

type fileSchema struct {
	Version int            `toml:"version"`
	Healthy bool           `toml:"healthy"`
	TakenAt time.Time      `toml:"taken_at"`
	Devices []deviceSchema `toml:"devices"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported snapshot schema version %d (current %d)", s.Version, currentSchemaVersion)
	}

	return nil
}

type deviceSchema struct {
	LocationID   int                `toml:"location_id"`
	RoomID       int                `toml:"room_id"`
	ApplianceID  string             `toml:"appliance_id"`
	Kind         int                `toml:"kind"`
	Name         string             `toml:"name"`
	LocationName string             `toml:"location_name"`
	RoomName     string             `toml:"room_name"`
	SerialNumber string             `toml:"serial_number,omitempty"`
	Measurements measurementsSchema `toml:"measurements"`
	RawFields    map[string]any     `toml:"raw_fields,omitempty"`
	UpdatedAt    time.Time          `toml:"updated_at"`
}

type measurementsSchema struct {
	TemperatureCelsius *float64 `toml:"temperature_celsius,omitempty"`
	HumidityPercent    *float64 `toml:"humidity_percent,omitempty"`
	BatteryPercent     *int     `toml:"battery_percent,omitempty"`
	FlowRateLPH        *float64 `toml:"flow_rate_lph,omitempty"`
	PressureBar        *float64 `toml:"pressure_bar,omitempty"`
	ValveOpen          *bool    `toml:"valve_open,omitempty"`
	RemainingFilterL   *int     `toml:"remaining_filter_l,omitempty"`
	RemainingCO2G      *int     `toml:"remaining_co2_g,omitempty"`
	WaterRunningTimeS  *int     `toml:"water_running_time_s,omitempty"`
}

func toSchema(snapshot domain.Snapshot) fileSchema {
	devices := make([]deviceSchema, 0, len(snapshot.Devices))
	for _, device := range snapshot.Devices {
		devices = append(devices, deviceSchema{
			LocationID:   device.Ref.LocationID,
			RoomID:       device.Ref.RoomID,
			ApplianceID:  device.Ref.ApplianceID,
			Kind:         int(device.Kind),
			Name:         device.Name,
			LocationName: device.LocationName,
			RoomName:     device.RoomName,
			SerialNumber: device.SerialNumber,
			Measurements: measurementsSchema(device.Measurements),
			RawFields:    device.RawFields,
			UpdatedAt:    device.UpdatedAt,
		})
	}

	return fileSchema{
		Version: currentSchemaVersion,
		Healthy: snapshot.Healthy,
		TakenAt: snapshot.TakenAt,
		Devices: devices,
	}
}

func fromSchema(file fileSchema) domain.Snapshot {
	devices := make([]domain.Device, 0, len(file.Devices))
	for _, entry := range file.Devices {
		devices = append(devices, domain.Device{
			Ref: domain.ApplianceRef{
				LocationID:  entry.LocationID,
				RoomID:      entry.RoomID,
				ApplianceID: entry.ApplianceID,
			},
			Kind:         domain.KindFromCode(entry.Kind),
			Name:         entry.Name,
			LocationName: entry.LocationName,
			RoomName:     entry.RoomName,
			SerialNumber: entry.SerialNumber,
			Measurements: domain.Measurements(entry.Measurements),
			RawFields:    entry.RawFields,
			UpdatedAt:    entry.UpdatedAt,
		})
	}

	return domain.Snapshot{
		Devices: devices,
		Healthy: file.Healthy,
		TakenAt: file.TakenAt,
	}
}
