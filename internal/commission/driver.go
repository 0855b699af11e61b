package commission

import (
	"context"
	"log/slog"

	"zigbee-capability/internal/converter"
)

type bindKey struct {
	ep      uint8
	cluster string
}

// Driver executes commissioning steps against a device. A Driver holds no
// per-device state; concurrent runs for different devices are safe.
type Driver struct {
	logger *slog.Logger
}

// NewDriver creates a commissioning driver.
func NewDriver(logger *slog.Logger) *Driver {
	return &Driver{logger: logger.With("component", "commission")}
}

// Run executes steps sequentially, phase by phase: bind, report, write,
// read, repair. Within a phase steps keep their declaration order. A failed
// step does not stop the run; reporting steps whose cluster failed to bind
// on the same endpoint are skipped.
func (d *Driver) Run(ctx context.Context, dev converter.Device, endpoints converter.EndpointMap, steps []Step) *Result {
	res := &Result{}
	ieee := dev.IEEEAddress()

	var phases [KindRepair + 1][]Step
	for _, s := range steps {
		if s.Kind < KindBind || s.Kind > KindRepair {
			continue
		}
		phases[s.Kind] = append(phases[s.Kind], s)
	}

	bound := make(map[bindKey]bool)
	failedBind := make(map[bindKey]error)

	for kind, list := range phases {
		for _, s := range list {
			sr := StepResult{Step: s}
			if err := ctx.Err(); err != nil {
				sr.Status, sr.Err = StatusFailed, err
				res.Steps = append(res.Steps, sr)
				continue
			}

			if Kind(kind) == KindRepair {
				sr.Err = d.repair(ctx, dev, s)
				sr.Status = statusOf(sr.Err)
				d.log(ieee, sr)
				res.Steps = append(res.Steps, sr)
				continue
			}

			ep, err := converter.ResolveEndpoint(dev, endpoints, s.Endpoint)
			if err != nil {
				sr.Status, sr.Err = StatusFailed, err
				d.log(ieee, sr)
				res.Steps = append(res.Steps, sr)
				continue
			}
			sr.Endpoint = ep.ID()
			key := bindKey{ep.ID(), s.Cluster}

			switch Kind(kind) {
			case KindBind:
				if bound[key] {
					continue
				}
				if _, failed := failedBind[key]; failed {
					continue
				}
				sr.Err = converter.Transport("bind", s.Cluster, ep.Bind(ctx, s.Cluster))
				if sr.Err != nil {
					failedBind[key] = sr.Err
				} else {
					bound[key] = true
				}
			case KindReport:
				if _, failed := failedBind[key]; failed {
					sr.Status, sr.Err = StatusSkipped, ErrPreconditionFailed
					d.log(ieee, sr)
					res.Steps = append(res.Steps, sr)
					continue
				}
				sr.Err = converter.Transport("configureReporting", s.Cluster, ep.ConfigureReporting(ctx, s.Cluster, s.Reporting, s.Options))
			case KindWrite:
				sr.Err = converter.Transport("write", s.Cluster, ep.Write(ctx, s.Cluster, s.Values, s.Options))
			case KindRead:
				sr.Err = converter.Transport("read", s.Cluster, ep.Read(ctx, s.Cluster, s.Attributes, s.Options))
			}
			sr.Status = statusOf(sr.Err)
			d.log(ieee, sr)
			res.Steps = append(res.Steps, sr)
		}
	}
	return res
}

// repair applies the metadata correction in memory and persists it. On a
// failed save the previous value is restored so no unsaved change is visible.
func (d *Driver) repair(ctx context.Context, dev converter.Device, s Step) error {
	if s.PowerSource == "" || dev.PowerSource() == s.PowerSource {
		return nil
	}
	prev := dev.PowerSource()
	dev.SetPowerSource(s.PowerSource)
	if err := dev.Save(ctx); err != nil {
		dev.SetPowerSource(prev)
		return err
	}
	return nil
}

func (d *Driver) log(ieee string, sr StepResult) {
	attrs := []any{"ieee", ieee, "step", sr.Step.Kind.String(), "ep", sr.Endpoint}
	if sr.Step.Cluster != "" {
		attrs = append(attrs, "cluster", sr.Step.Cluster)
	}
	switch sr.Status {
	case StatusSucceeded:
		d.logger.Debug(successMessage[sr.Step.Kind], attrs...)
	case StatusSkipped:
		d.logger.Warn("commission: step skipped", append(attrs, "reason", sr.Err)...)
	default:
		d.logger.Warn("commission: step failed", append(attrs, "err", sr.Err)...)
	}
}

var successMessage = map[Kind]string{
	KindBind:   "bound cluster",
	KindReport: "configured reporting",
	KindWrite:  "wrote attributes",
	KindRead:   "primed attributes",
	KindRepair: "repaired device metadata",
}

func statusOf(err error) Status {
	if err != nil {
		return StatusFailed
	}
	return StatusSucceeded
}
