// Package application drives the polling of the cloud API: which endpoint
// is called on which cycle, and how to back off when calls fail.
package application

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/patricknitsch/grohe-smarthome/internal/adapters/ondus"
	"github.com/patricknitsch/grohe-smarthome/internal/domain"
	"github.com/patricknitsch/grohe-smarthome/internal/ports"
)

// Tier divisors: a secondary operation runs when the cycle counter is a
// multiple of its divisor.
const (
	statusDivisor    = 5
	commandDivisor   = 3
	aggregateDivisor = 5
	pressureDivisor  = 10

	// Once the doubled interval reaches this cap the scheduler stops
	// retrying within the hour and waits for the next noon/midnight
	// boundary instead.
	backoffCap = time.Hour

	// maxBackoffShift bounds the exponent so the doubling cannot overflow.
	maxBackoffShift = 20

	defaultHistoryLookback = 365 * 24 * time.Hour
)

// EndpointClient is the set of remote operations the poller drives.
type EndpointClient interface {
	Dashboard(ctx context.Context) (ondus.Dashboard, error)
	ApplianceStatus(ctx context.Context, ref domain.ApplianceRef) ([]ondus.StatusEntry, error)
	ApplianceCommand(ctx context.Context, ref domain.ApplianceRef) (ondus.Command, error)
	TriggerMeasurement(ctx context.Context, ref domain.ApplianceRef) error
	AggregatedData(ctx context.Context, ref domain.ApplianceRef, from, to time.Time, groupBy string) (ondus.AggregatedData, error)
	PressureMeasurement(ctx context.Context, ref domain.ApplianceRef) ([]ondus.PressureMeasurement, error)
	Notifications(ctx context.Context, ref domain.ApplianceRef) ([]ondus.Notification, error)
}

// PollerConfig carries the tuning knobs of the scheduler.
type PollerConfig struct {
	// Interval between cycles while the connection is healthy.
	Interval time.Duration
	// EmitRawFields forwards unmapped measurement values on each device.
	EmitRawFields bool
	// HistoryLookback bounds the once-a-day full aggregate query. Zero
	// means one year.
	HistoryLookback time.Duration
}

// Poller runs the recurring cycle. All state is owned by the single
// polling goroutine; cycles never overlap because the next one is
// scheduled only after the current one completes.
type Poller struct {
	client EndpointClient
	sink   ports.DeviceSink
	clock  ports.Clock
	log    zerolog.Logger
	cfg    PollerConfig

	cycle              int
	failures           int
	lastDailyAggregate string // local calendar date, YYYY-MM-DD
}

func NewPoller(client EndpointClient, sink ports.DeviceSink, clock ports.Clock, log zerolog.Logger, cfg PollerConfig) *Poller {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if cfg.HistoryLookback <= 0 {
		cfg.HistoryLookback = defaultHistoryLookback
	}

	return &Poller{
		client: client,
		sink:   sink,
		clock:  clock,
		log:    log.With().Str("component", "poller").Logger(),
		cfg:    cfg,
	}
}

// Run executes cycles until the context is cancelled. The pending delay is
// abandoned on shutdown; no further requests are issued.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info().Dur("interval", p.cfg.Interval).Msg("polling started")

	for {
		delay := p.RunCycle(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			p.log.Info().Msg("polling stopped")
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// RunCycle executes one full cycle and returns the delay until the next.
func (p *Poller) RunCycle(ctx context.Context) time.Duration {
	p.cycle++

	dashboard, err := p.client.Dashboard(ctx)
	if err != nil {
		return p.onPrimaryFailure(ctx, err)
	}

	now := p.clock.Now()
	devices := mapDashboard(dashboard, p.cfg.EmitRawFields, now)
	for _, device := range devices {
		if err := p.sink.ApplyDevice(ctx, device); err != nil {
			p.log.Warn().Err(err).Str("appliance", device.Ref.ApplianceID).Msg("sink rejected device")
		}
	}

	p.runSecondary(ctx, devices, now)

	p.failures = 0
	if err := p.sink.SetConnectionHealth(ctx, true); err != nil {
		p.log.Warn().Err(err).Msg("sink rejected health signal")
	}

	p.log.Debug().Int("cycle", p.cycle).Int("devices", len(devices)).Msg("cycle completed")

	return p.cfg.Interval
}

// runSecondary invokes the tiered operations due this cycle. Their
// failures are logged and do not influence backoff; the corresponding
// data simply stays unrefreshed for the cycle.
func (p *Poller) runSecondary(ctx context.Context, devices []domain.Device, now time.Time) {
	// The once-a-day historical aggregate is decided per cycle, before the
	// device loop, so every applicable device shares the same run.
	today := now.Format("2006-01-02")
	historicalDue := p.lastDailyAggregate != today
	historicalRan := false
	historicalFailed := false

	for _, device := range devices {
		if p.due(statusDivisor) {
			p.pollStatus(ctx, device)
			p.pollNotifications(ctx, device)
		}

		if p.due(commandDivisor) && (device.Kind.IsValve() || device.Kind.IsDispenser()) {
			p.pollCommand(ctx, device)
			if device.Kind.IsValve() {
				p.triggerMeasurement(ctx, device)
			}
		}

		if device.Kind.IsValve() || device.Kind.IsDispenser() {
			if p.due(aggregateDivisor) {
				p.pollCurrentDayAggregate(ctx, device, now)
			}
			if historicalDue {
				historicalRan = true
				if !p.pollHistoricalAggregate(ctx, device, now) {
					historicalFailed = true
				}
			}
		}

		if p.due(pressureDivisor) && device.Kind.IsValve() {
			p.pollPressureMeasurement(ctx, device)
		}
	}

	// The date is recorded only after a fully successful run, so a failed
	// day is retried on the next cycle.
	if historicalRan && !historicalFailed {
		p.lastDailyAggregate = today
	}
}

func (p *Poller) due(divisor int) bool {
	return p.cycle%divisor == 0
}

func (p *Poller) pollStatus(ctx context.Context, device domain.Device) {
	entries, err := p.client.ApplianceStatus(ctx, device.Ref)
	if err != nil {
		p.log.Warn().Err(err).Str("appliance", device.Ref.ApplianceID).Msg("status poll failed")
		return
	}
	p.log.Debug().Str("appliance", device.Ref.ApplianceID).Int("entries", len(entries)).Msg("status refreshed")
}

func (p *Poller) pollNotifications(ctx context.Context, device domain.Device) {
	notifications, err := p.client.Notifications(ctx, device.Ref)
	if err != nil {
		p.log.Warn().Err(err).Str("appliance", device.Ref.ApplianceID).Msg("notifications poll failed")
		return
	}
	for _, notification := range notifications {
		if notification.IsRead {
			continue
		}
		p.log.Info().
			Str("appliance", device.Ref.ApplianceID).
			Int("category", notification.Category).
			Int("type", notification.Type).
			Time("at", notification.Timestamp).
			Msg("unread cloud notification")
	}
}

func (p *Poller) pollCommand(ctx context.Context, device domain.Device) {
	if _, err := p.client.ApplianceCommand(ctx, device.Ref); err != nil {
		p.log.Warn().Err(err).Str("appliance", device.Ref.ApplianceID).Msg("command poll failed")
	}
}

func (p *Poller) triggerMeasurement(ctx context.Context, device domain.Device) {
	if err := p.client.TriggerMeasurement(ctx, device.Ref); err != nil {
		p.log.Warn().Err(err).Str("appliance", device.Ref.ApplianceID).Msg("measurement trigger failed")
	}
}

func (p *Poller) pollCurrentDayAggregate(ctx context.Context, device domain.Device, now time.Time) {
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if _, err := p.client.AggregatedData(ctx, device.Ref, from, now, "hour"); err != nil {
		p.log.Warn().Err(err).Str("appliance", device.Ref.ApplianceID).Msg("current-day aggregate poll failed")
	}
}

// pollHistoricalAggregate runs the full aggregate query for one device and
// reports success. The once-per-local-calendar-day gating lives in
// runSecondary; tracking by date rather than cycle count keeps restarts
// and backoff pauses from doubling it up.
func (p *Poller) pollHistoricalAggregate(ctx context.Context, device domain.Device, now time.Time) bool {
	from := now.Add(-p.cfg.HistoryLookback)
	if _, err := p.client.AggregatedData(ctx, device.Ref, from, now, "day"); err != nil {
		p.log.Warn().Err(err).Str("appliance", device.Ref.ApplianceID).Msg("historical aggregate poll failed")
		return false
	}

	return true
}

func (p *Poller) pollPressureMeasurement(ctx context.Context, device domain.Device) {
	measurements, err := p.client.PressureMeasurement(ctx, device.Ref)
	if err != nil {
		// Never having run a pressure test is a normal state, not an error.
		if errors.Is(err, ondus.ErrNotFound) {
			return
		}
		p.log.Warn().Err(err).Str("appliance", device.Ref.ApplianceID).Msg("pressure measurement poll failed")
		return
	}
	p.log.Debug().Str("appliance", device.Ref.ApplianceID).Int("results", len(measurements)).Msg("pressure measurements refreshed")
}

// onPrimaryFailure marks the connection down and computes the backoff
// delay for the next cycle.
func (p *Poller) onPrimaryFailure(ctx context.Context, err error) time.Duration {
	p.failures++

	if errors.Is(err, ondus.ErrRateLimited) {
		p.log.Warn().Err(err).Int("failures", p.failures).
			Msg("cloud is rate limiting this account; consider a longer poll interval")
	} else {
		p.log.Warn().Err(err).Int("failures", p.failures).Msg("dashboard poll failed")
	}

	if err := p.sink.SetConnectionHealth(ctx, false); err != nil {
		p.log.Warn().Err(err).Msg("sink rejected health signal")
	}

	delay := p.backoffDelay()
	p.log.Info().Dur("delay", delay).Int("cycle", p.cycle).Msg("backing off")

	return delay
}

// backoffDelay doubles the configured interval per consecutive failure.
// Once the doubled value reaches the cap, the next cycle targets the next
// local noon (when before noon) or local midnight instead of retrying
// within the hour.
func (p *Poller) backoffDelay() time.Duration {
	shift := p.failures
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}

	delay := p.cfg.Interval << shift
	if delay < backoffCap {
		return delay
	}

	return p.untilNextBoundary()
}

func (p *Poller) untilNextBoundary() time.Duration {
	now := p.clock.Now()
	noon := time.Date(now.Year(), now.Month(), now.Day(), 12, 0, 0, 0, now.Location())

	var target time.Time
	if now.Before(noon) {
		target = noon
	} else {
		target = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	}

	return target.Sub(now)
}
