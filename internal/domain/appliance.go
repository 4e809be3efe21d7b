package domain

import "time"

// ApplianceKind is the small integer code the cloud uses to identify a
// device family. Codes outside the known set are carried as KindUnknown.
type ApplianceKind int

const (
	KindUnknown          ApplianceKind = 0
	KindSense            ApplianceKind = 101
	KindSenseGuard       ApplianceKind = 103
	KindBlueHome         ApplianceKind = 104
	KindBlueProfessional ApplianceKind = 105
)

func KindFromCode(code int) ApplianceKind {
	switch ApplianceKind(code) {
	case KindSense, KindSenseGuard, KindBlueHome, KindBlueProfessional:
		return ApplianceKind(code)
	default:
		return KindUnknown
	}
}

func (k ApplianceKind) String() string {
	switch k {
	case KindSense:
		return "sense"
	case KindSenseGuard:
		return "sense_guard"
	case KindBlueHome:
		return "blue_home"
	case KindBlueProfessional:
		return "blue_professional"
	default:
		return "unknown"
	}
}

// IsValve reports whether the appliance carries a controllable shutoff
// valve and supports pressure measurements.
func (k ApplianceKind) IsValve() bool {
	return k == KindSenseGuard
}

// IsDispenser reports whether the appliance dispenses water and carries
// consumables (filter, CO2 cartridge).
func (k ApplianceKind) IsDispenser() bool {
	return k == KindBlueHome || k == KindBlueProfessional
}

// ApplianceRef addresses one appliance inside the location/room hierarchy
// the cloud exposes. All per-appliance endpoints are keyed by the triple.
type ApplianceRef struct {
	LocationID  int
	RoomID      int
	ApplianceID string
}

// Measurements holds the typed data points of one appliance. Which fields
// are meaningful depends on the kind; pointers distinguish "absent" from
// zero values.
type Measurements struct {
	TemperatureCelsius *float64
	HumidityPercent    *float64
	BatteryPercent     *int
	FlowRateLPH        *float64
	PressureBar        *float64
	ValveOpen          *bool
	RemainingFilterL   *int
	RemainingCO2G      *int
	WaterRunningTimeS  *int
}

// Device is the record emitted to the data-model collaborator for each
// appliance discovered in a dashboard snapshot.
type Device struct {
	Ref          ApplianceRef
	Kind         ApplianceKind
	Name         string
	LocationName string
	RoomName     string
	SerialNumber string
	Measurements Measurements
	// RawFields carries unmapped measurement values when raw emission is
	// enabled, and everything for KindUnknown appliances.
	RawFields map[string]any
	UpdatedAt time.Time
}

// Snapshot is one full dashboard poll result.
type Snapshot struct {
	Devices []Device
	Healthy bool
	TakenAt time.Time
}

// TapType selects what a dispenser pours.
type TapType int

const (
	TapStill      TapType = 1
	TapMedium     TapType = 2
	TapCarbonated TapType = 3
)

func (t TapType) Valid() bool {
	return t == TapStill || t == TapMedium || t == TapCarbonated
}

// ConsumableKind names a dispenser consumable that can be reset after
// replacement.
type ConsumableKind string

const (
	ConsumableFilter ConsumableKind = "filter"
	ConsumableCO2    ConsumableKind = "co2"
)

func (c ConsumableKind) Valid() bool {
	return c == ConsumableFilter || c == ConsumableCO2
}

// Notification is one cloud-side event message attached to an appliance.
type Notification struct {
	ID          string
	ApplianceID string
	Category    int
	Type        int
	IsRead      bool
	Timestamp   time.Time
}
