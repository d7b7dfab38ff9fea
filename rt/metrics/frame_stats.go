// Package metrics exports frame statistics to Prometheus.
package metrics

import (
	"github.com/gekko3d/sand/rt/frame"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// FrameStats implements frame.Observer.
type FrameStats struct {
	Frames    *prometheus.CounterVec
	Phases    *prometheus.HistogramVec
	CPUTime   prometheus.Histogram
	Slot      prometheus.Gauge
	DrawUnits prometheus.Gauge
}

var _ frame.Observer = (*FrameStats)(nil)

// NewFrameStats registers the collectors on reg. A nil reg uses the default
// registerer.
func NewFrameStats(reg prometheus.Registerer) *FrameStats {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &FrameStats{
		// Frames counts finished frames by outcome
		Frames: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sand_frames_total",
				Help: "Frames run by the orchestrator, by outcome",
			},
			[]string{"outcome"},
		),
		Phases: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sand_frame_phase_seconds",
				Help:    "CPU time spent per frame phase",
				Buckets: prometheus.ExponentialBuckets(0.00005, 2, 12),
			},
			[]string{"phase"},
		),
		CPUTime: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "sand_frame_cpu_seconds",
			Help:    "CPU time of a whole frame",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		Slot: f.NewGauge(prometheus.GaugeOpts{
			Name: "sand_frame_slot",
			Help: "Ring slot used by the last frame",
		}),
		DrawUnits: f.NewGauge(prometheus.GaugeOpts{
			Name: "sand_draw_units",
			Help: "Draw units encoded per frame",
		}),
	}
}

func outcome(r frame.Report) string {
	switch {
	case r.Err == nil:
		return "presented"
	case r.Presented:
		return "presented_with_error"
	}
	return "dropped"
}

func (s *FrameStats) ObserveFrame(r frame.Report) {
	s.Frames.WithLabelValues(outcome(r)).Inc()
	for _, p := range r.Phases {
		s.Phases.WithLabelValues(p.Name).Observe(p.Duration.Seconds())
	}
	s.CPUTime.Observe(r.CPUTime.Seconds())
	s.Slot.Set(float64(r.Slot))
	s.DrawUnits.Set(float64(r.DrawUnits))
}
