package ondus

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/patricknitsch/grohe-smarthome/internal/domain"
)

// DefaultBaseURL is the REST façade all operations run against.
const DefaultBaseURL = "https://idp2-apigw.cloud.grohe.com/v3/iot"

// Client is a thin, stateless set of named operations over the
// authenticated transport. Retry and credential logic live below it.
type Client struct {
	transport *Transport
}

func NewClient(transport *Transport) *Client {
	return &Client{transport: transport}
}

func applianceBase(ref domain.ApplianceRef) string {
	return fmt.Sprintf("/locations/%d/rooms/%d/appliances/%s", ref.LocationID, ref.RoomID, url.PathEscape(ref.ApplianceID))
}

// Dashboard fetches the full locations/rooms/appliances snapshot.
func (c *Client) Dashboard(ctx context.Context) (Dashboard, error) {
	var dashboard Dashboard
	if err := c.transport.Do(ctx, http.MethodGet, "/dashboard", nil, &dashboard); err != nil {
		return Dashboard{}, err
	}
	return dashboard, nil
}

// ApplianceStatus reads the status list of one appliance.
func (c *Client) ApplianceStatus(ctx context.Context, ref domain.ApplianceRef) ([]StatusEntry, error) {
	var entries []StatusEntry
	if err := c.transport.Do(ctx, http.MethodGet, applianceBase(ref)+"/status", nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// ApplianceCommand reads the current command document of one appliance.
func (c *Client) ApplianceCommand(ctx context.Context, ref domain.ApplianceRef) (Command, error) {
	var command Command
	if err := c.transport.Do(ctx, http.MethodGet, applianceBase(ref)+"/command", nil, &command); err != nil {
		return Command{}, err
	}
	return command, nil
}

// SetApplianceCommand reads the current command document, lets mutate
// change the fields it cares about, and writes the merged document back so
// unrelated command fields are preserved.
func (c *Client) SetApplianceCommand(ctx context.Context, ref domain.ApplianceRef, mutate func(command map[string]any)) error {
	current, err := c.ApplianceCommand(ctx, ref)
	if err != nil {
		return fmt.Errorf("read current command: %w", err)
	}
	if current.Command == nil {
		current.Command = make(map[string]any)
	}

	mutate(current.Command)

	if err := c.transport.Do(ctx, http.MethodPost, applianceBase(ref)+"/command", current, nil); err != nil {
		return fmt.Errorf("write command: %w", err)
	}

	return nil
}

// AggregatedData fetches consumption data for a date range grouped by the
// given granularity (hour, day, month).
func (c *Client) AggregatedData(ctx context.Context, ref domain.ApplianceRef, from, to time.Time, groupBy string) (AggregatedData, error) {
	query := url.Values{}
	query.Set("from", from.Format("2006-01-02"))
	query.Set("to", to.Format("2006-01-02"))
	if groupBy != "" {
		query.Set("groupBy", groupBy)
	}

	var data AggregatedData
	path := applianceBase(ref) + "/data/aggregated?" + query.Encode()
	if err := c.transport.Do(ctx, http.MethodGet, path, nil, &data); err != nil {
		return AggregatedData{}, err
	}

	return data, nil
}

// PressureMeasurement reads stored pressure-test results. A wrapped
// ErrNotFound means the test has never been run and is a normal outcome.
func (c *Client) PressureMeasurement(ctx context.Context, ref domain.ApplianceRef) ([]PressureMeasurement, error) {
	var measurements []PressureMeasurement
	if err := c.transport.Do(ctx, http.MethodGet, applianceBase(ref)+"/pressuremeasurement", nil, &measurements); err != nil {
		return nil, err
	}
	return measurements, nil
}

// Notifications reads the event messages of one appliance.
func (c *Client) Notifications(ctx context.Context, ref domain.ApplianceRef) ([]Notification, error) {
	var notifications []Notification
	if err := c.transport.Do(ctx, http.MethodGet, applianceBase(ref)+"/notifications", nil, &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

// SetValve opens or closes the shutoff valve of a valve controller.
func (c *Client) SetValve(ctx context.Context, ref domain.ApplianceRef, open bool) error {
	return c.SetApplianceCommand(ctx, ref, func(command map[string]any) {
		command[commandValveOpen] = open
	})
}

// TriggerMeasurement asks a valve controller to take a fresh measurement
// instead of waiting for its own reporting schedule.
func (c *Client) TriggerMeasurement(ctx context.Context, ref domain.ApplianceRef) error {
	return c.SetApplianceCommand(ctx, ref, func(command map[string]any) {
		command[commandMeasureNow] = true
	})
}

// StartPressureTest triggers a pressure measurement on a valve controller.
// The cloud drives on-demand measurements and pressure tests through the
// same command field.
func (c *Client) StartPressureTest(ctx context.Context, ref domain.ApplianceRef) error {
	return c.TriggerMeasurement(ctx, ref)
}

// Dispense pours the given amount (in ml) of the given tap type from a
// dispenser.
func (c *Client) Dispense(ctx context.Context, ref domain.ApplianceRef, tap domain.TapType, amountML int) error {
	if !tap.Valid() {
		return domain.ErrInvalidTapType
	}
	if amountML <= 0 {
		return domain.ErrInvalidAmount
	}

	return c.SetApplianceCommand(ctx, ref, func(command map[string]any) {
		command[commandTapType] = int(tap)
		command[commandTapAmount] = amountML
	})
}

// ResetConsumable marks a replaced dispenser consumable as fresh.
func (c *Client) ResetConsumable(ctx context.Context, ref domain.ApplianceRef, kind domain.ConsumableKind) error {
	if !kind.Valid() {
		return domain.ErrInvalidKind
	}

	return c.SetApplianceCommand(ctx, ref, func(command map[string]any) {
		switch kind {
		case domain.ConsumableFilter:
			command[commandFilterStatusReset] = true
		case domain.ConsumableCO2:
			command[commandCO2StatusReset] = true
		}
	})
}
