package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/gekko3d/sand/rt/frame"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric %s not gathered", name)
	return nil
}

func counterFor(mf *dto.MetricFamily, label string) float64 {
	for _, m := range mf.GetMetric() {
		for _, l := range m.GetLabel() {
			if l.GetValue() == label {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestFrameStatsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	stats := NewFrameStats(reg)

	stats.ObserveFrame(frame.Report{
		Frame:     1,
		Slot:      1,
		DrawUnits: 2,
		Presented: true,
		CPUTime:   2 * time.Millisecond,
		Phases: []frame.Scope{
			{Name: "compute", Duration: time.Millisecond},
			{Name: "encode", Duration: time.Millisecond},
		},
	})
	stats.ObserveFrame(frame.Report{Frame: 2, Slot: 2, Err: errors.New("no drawable")})

	frames := gather(t, reg, "sand_frames_total")
	assert.Equal(t, 1.0, counterFor(frames, "presented"))
	assert.Equal(t, 1.0, counterFor(frames, "dropped"))

	slot := gather(t, reg, "sand_frame_slot")
	require.Len(t, slot.GetMetric(), 1)
	assert.Equal(t, 2.0, slot.GetMetric()[0].GetGauge().GetValue())

	phases := gather(t, reg, "sand_frame_phase_seconds")
	assert.Len(t, phases.GetMetric(), 2)
}

func TestFrameStatsDoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewFrameStats(reg)
	assert.Panics(t, func() { NewFrameStats(reg) })
}
