package grid

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ja7ad/ecotrace/pkg/store"
)

// Sink stores readings.
type Sink interface {
	SaveCarbonIntensity(ctx context.Context, ci *store.CarbonIntensity) error
	SavePowerBreakdown(ctx context.Context, pb *store.PowerBreakdown) error
}

// Observer is notified of readings and failures. May be nil.
type Observer interface {
	SetCarbonIntensity(zone string, gramsPerKWh float64)
	ObserveGridError(endpoint string)
}

// Poller fetches and stores both readings for one zone every interval.
type Poller struct {
	client   *Client
	sink     Sink
	obs      Observer
	zone     string
	interval time.Duration
	log      *zap.Logger
}

func NewPoller(client *Client, sink Sink, obs Observer, zone string, interval time.Duration, log *zap.Logger) *Poller {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Poller{client: client, sink: sink, obs: obs, zone: zone, interval: interval, log: log}
}

// Run polls until ctx ends. The first poll happens immediately.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll performs one round. Failures are logged and counted, never returned.
func (p *Poller) Poll(ctx context.Context) {
	if ci, err := FetchCarbonIntensity(ctx, p.client, p.sink, p.zone); err != nil {
		p.fail("carbon-intensity", err)
	} else {
		if p.obs != nil {
			p.obs.SetCarbonIntensity(ci.Zone, ci.CarbonIntensity)
		}
		p.log.Debug("carbon intensity stored", zap.String("zone", ci.Zone), zap.Float64("g_per_kwh", ci.CarbonIntensity))
	}

	if _, err := FetchPowerBreakdown(ctx, p.client, p.sink, p.zone); err != nil {
		p.fail("power-breakdown", err)
	}
}

func (p *Poller) fail(endpoint string, err error) {
	if p.obs != nil {
		p.obs.ObserveGridError(endpoint)
	}
	p.log.Warn("grid poll failed", zap.String("endpoint", endpoint), zap.String("zone", p.zone), zap.Error(err))
}

// FetchCarbonIntensity fetches the latest reading for zone and stores it.
func FetchCarbonIntensity(ctx context.Context, c *Client, sink Sink, zone string) (*store.CarbonIntensity, error) {
	ci, raw, err := c.CarbonIntensity(ctx, zone)
	if err != nil {
		return nil, err
	}
	rec := ci.Record(zone, raw)
	if err := sink.SaveCarbonIntensity(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// FetchPowerBreakdown fetches the latest mix for zone and stores it.
func FetchPowerBreakdown(ctx context.Context, c *Client, sink Sink, zone string) (*store.PowerBreakdown, error) {
	pb, raw, err := c.PowerBreakdown(ctx, zone)
	if err != nil {
		return nil, err
	}
	rec := pb.Record(zone, raw)
	if err := sink.SavePowerBreakdown(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}
