package ondus

import "time"

// Dashboard is the aggregated snapshot the cloud renders for an account:
// every location, its rooms, and the appliances inside them with their
// latest measurement set.
type Dashboard struct {
	Locations []Location `json:"locations"`
}

type Location struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Rooms []Room `json:"rooms"`
}

type Room struct {
	ID         int         `json:"id"`
	Name       string      `json:"name"`
	Appliances []Appliance `json:"appliances"`
}

type Appliance struct {
	ApplianceID  string         `json:"appliance_id"`
	Name         string         `json:"name"`
	Type         int            `json:"type"`
	SerialNumber string         `json:"serial_number"`
	DataLatest   *ApplianceData `json:"data_latest,omitempty"`
}

// ApplianceData carries the measurement block loosely typed; the mapping
// into named fields is the data-model layer's concern and unmapped keys
// must survive for raw emission.
type ApplianceData struct {
	Measurement map[string]any `json:"measurement"`
	Timestamp   time.Time      `json:"timestamp"`
}

// StatusEntry is one element of the per-appliance status list.
type StatusEntry struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// Command is the per-appliance command document. The command block is kept
// as a map so a read-merge-write preserves fields this client does not
// know about.
type Command struct {
	ApplianceID string         `json:"appliance_id,omitempty"`
	Type        int            `json:"type,omitempty"`
	Command     map[string]any `json:"command"`
}

// Command field names understood by the cloud.
const (
	commandValveOpen         = "valve_open"
	commandMeasureNow        = "measure_now"
	commandTapType           = "tap_type"
	commandTapAmount         = "tap_amount"
	commandFilterStatusReset = "filter_status_reset"
	commandCO2StatusReset    = "co2_status_reset"
)

// AggregatedData is a consumption report over a date range.
type AggregatedData struct {
	GroupBy string              `json:"group_by,omitempty"`
	Data    AggregatedDataItems `json:"data"`
}

type AggregatedDataItems struct {
	Measurement []map[string]any `json:"measurement"`
	Withdrawals []map[string]any `json:"withdrawals"`
}

// PressureMeasurement is one stored pressure-test result.
type PressureMeasurement struct {
	ID              string    `json:"id"`
	Status          string    `json:"status"`
	StartTime       time.Time `json:"start_time"`
	LeakageDetected bool      `json:"leakage"`
	PressureDropBar float64   `json:"drop_of_pressure"`
	EstimatedTimeS  int       `json:"estimated_time_of_leakage,omitempty"`
}

// Notification is one cloud event message for an appliance.
type Notification struct {
	ID          string    `json:"id"`
	ApplianceID string    `json:"appliance_id"`
	Category    int       `json:"category"`
	Type        int       `json:"type"`
	IsRead      bool      `json:"is_read"`
	Timestamp   time.Time `json:"timestamp"`
}
