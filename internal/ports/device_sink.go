package ports

import (
	"context"

	"github.com/patricknitsch/grohe-smarthome/internal/domain"
)

// DeviceSink receives poll results for mapping into the host's data model.
type DeviceSink interface {
	// ApplyDevice is called once per appliance after each successful
	// dashboard poll.
	ApplyDevice(ctx context.Context, device domain.Device) error
	// SetConnectionHealth is called after every cycle with the outcome of
	// the primary dashboard call.
	SetConnectionHealth(ctx context.Context, healthy bool) error
}
