package commission

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zigbee-capability/internal/converter"
	"zigbee-capability/internal/converter/convertertest"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRunPhaseOrder(t *testing.T) {
	dev := convertertest.NewDevice("0x00158d0001", 1)
	steps := []Step{
		Read("", "genOnOff", "onOff"),
		Report("", "genOnOff", converter.Reporting{Attribute: "onOff", Min: 0, Max: 3600}),
		Write("", "genOnOff", map[string]any{"startUpOnOff": 255}),
		Bind("", "genOnOff"),
	}
	res := NewDriver(newTestLogger()).Run(context.Background(), dev, nil, steps)
	require.NoError(t, res.Err())
	assert.Equal(t, []string{
		"bind genOnOff@1",
		"configureReporting genOnOff@1",
		"write genOnOff@1",
		"read genOnOff@1",
	}, dev.Rec.Ops())
}

func TestBindFailureSkipsReportOnly(t *testing.T) {
	dev := convertertest.NewDevice("0x00158d0002", 1)
	dev.Rec.Fail("bind:seMetering", errors.New("timeout"))

	steps := append(BindAndReport("", "seMetering", converter.Reporting{Attribute: "currentSummDelivered", Min: 10, Max: 3600, Change: 1}),
		BindAndReport("", "genOnOff", converter.Reporting{Attribute: "onOff", Max: 3600})...)
	steps = append(steps, Read("", "genPowerCfg", "batteryPercentageRemaining"))

	res := NewDriver(newTestLogger()).Run(context.Background(), dev, nil, steps)

	assert.Equal(t, []string{
		"bind genOnOff@1",
		"configureReporting genOnOff@1",
		"read genPowerCfg@1",
	}, dev.Rec.Ops())

	var metering []StepResult
	for _, sr := range res.Steps {
		if sr.Step.Cluster == "seMetering" {
			metering = append(metering, sr)
		}
	}
	require.Len(t, metering, 2)
	assert.Equal(t, StatusFailed, metering[0].Status)
	var te *converter.TransportError
	assert.ErrorAs(t, metering[0].Err, &te)
	assert.Equal(t, StatusSkipped, metering[1].Status)
	assert.ErrorIs(t, metering[1].Err, ErrPreconditionFailed)

	var pf *PartialFailureError
	require.ErrorAs(t, res.Err(), &pf)
	assert.Equal(t, 1, pf.Failed)
	assert.Equal(t, 1, pf.Skipped)
	assert.Equal(t, 5, pf.Total)
	assert.ErrorIs(t, res.Err(), ErrPreconditionFailed)
}

func TestBindFailureScopedToEndpoint(t *testing.T) {
	dev := convertertest.NewDevice("0x00158d0003", 1, 2)
	dev.Rec.Fail("bind:genOnOff@1", errors.New("no route"))
	eps := converter.EndpointMap{"l1": 1, "l2": 2}

	var steps []Step
	for _, ep := range []string{"l1", "l2"} {
		steps = append(steps, BindAndReport(ep, "genOnOff", converter.Reporting{Attribute: "onOff", Max: 3600})...)
	}
	res := NewDriver(newTestLogger()).Run(context.Background(), dev, eps, steps)
	assert.Equal(t, []string{"bind genOnOff@2", "configureReporting genOnOff@2"}, dev.Rec.Ops())
	assert.Equal(t, 1, res.Count(StatusSkipped))
}

func TestDuplicateBindsCollapse(t *testing.T) {
	dev := convertertest.NewDevice("0x00158d0004", 1)
	steps := []Step{Bind("", "genOnOff"), Bind("default", "genOnOff"), Bind("", "genLevelCtrl")}
	res := NewDriver(newTestLogger()).Run(context.Background(), dev, nil, steps)
	assert.Equal(t, []string{"bind genOnOff@1", "bind genLevelCtrl@1"}, dev.Rec.Ops())
	assert.Len(t, res.Steps, 2)
}

func TestUnknownEndpointFailsStep(t *testing.T) {
	dev := convertertest.NewDevice("0x00158d0005", 1)
	res := NewDriver(newTestLogger()).Run(context.Background(), dev, converter.EndpointMap{"l1": 1},
		[]Step{Read("l9", "genOnOff", "onOff"), Read("l1", "genOnOff", "onOff")})
	require.Len(t, res.Steps, 2)
	assert.ErrorIs(t, res.Steps[0].Err, converter.ErrUnknownEndpoint)
	assert.Equal(t, StatusSucceeded, res.Steps[1].Status)
}

func TestRepairPowerSource(t *testing.T) {
	dev := convertertest.NewDevice("0x00158d0006", 1)
	res := NewDriver(newTestLogger()).Run(context.Background(), dev, nil,
		[]Step{RepairPowerSource(converter.PowerSourceBattery)})
	require.NoError(t, res.Err())
	assert.Equal(t, converter.PowerSourceBattery, dev.PowerSource())
	assert.Equal(t, 1, dev.Saves)
}

func TestRepairRevertsOnSaveFailure(t *testing.T) {
	dev := convertertest.NewDevice("0x00158d0007", 1)
	dev.Power = converter.PowerSourceMains
	dev.SaveErr = errors.New("disk full")
	res := NewDriver(newTestLogger()).Run(context.Background(), dev, nil,
		[]Step{RepairPowerSource(converter.PowerSourceBattery)})
	assert.Error(t, res.Err())
	assert.Equal(t, converter.PowerSourceMains, dev.PowerSource())
}

func TestCancelledContextFailsRemaining(t *testing.T) {
	dev := convertertest.NewDevice("0x00158d0008", 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := NewDriver(newTestLogger()).Run(ctx, dev, nil, []Step{Bind("", "genOnOff")})
	require.Len(t, res.Steps, 1)
	assert.ErrorIs(t, res.Steps[0].Err, context.Canceled)
	assert.Empty(t, dev.Rec.Ops())
}

func TestStepString(t *testing.T) {
	assert.Equal(t, "bind genOnOff@l1", Bind("l1", "genOnOff").String())
	assert.Equal(t, "repair powerSource=Battery", RepairPowerSource("Battery").String())
}
