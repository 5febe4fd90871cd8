// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package status

import (
	"net/http"

	"github.com/Thermoquad/cn105emu/pkg/cn105"
	"github.com/Thermoquad/cn105emu/pkg/emulator"
	"github.com/Thermoquad/cn105emu/pkg/heatpump"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes emulator snapshots to Prometheus. Values are refreshed
// from the source on every scrape.
type Metrics struct {
	registry *prometheus.Registry

	frames      *prometheus.GaugeVec
	commands    *prometheus.GaugeVec
	field       *prometheus.GaugeVec
	rejected    *prometheus.GaugeVec
	flags       *prometheus.GaugeVec
	transitions *prometheus.GaugeVec
}

// NewMetrics creates the collectors on a private registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		frames: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cn105_frames",
			Help: "Frames seen on the remote link by outcome",
		}, []string{"kind"}),
		commands: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cn105_commands",
			Help: "Valid frames received per command",
		}, []string{"command"}),
		field: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cn105_state_field",
			Help: "Raw field value per state instance",
		}, []string{"instance", "field"}),
		rejected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cn105_state_rejected_writes",
			Help: "Out-of-range writes rejected per state instance",
		}, []string{"instance"}),
		flags: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cn105_reconcile_flag",
			Help: "Reconciliation flags (1 = set)",
		}, []string{"flag"}),
		transitions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cn105_reconcile_transitions",
			Help: "Reconciliation transitions by kind",
		}, []string{"kind"}),
	}
	m.registry.MustRegister(m.frames, m.commands, m.field, m.rejected, m.flags, m.transitions)
	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Update copies a snapshot into the collectors
func (m *Metrics) Update(snap emulator.Snapshot) {
	if st := snap.Stats; st != nil {
		m.frames.WithLabelValues("total").Set(float64(st.TotalFrames))
		m.frames.WithLabelValues("valid").Set(float64(st.ValidFrames))
		m.frames.WithLabelValues("checksum_error").Set(float64(st.ChecksumErrors))
		m.frames.WithLabelValues("overflow_error").Set(float64(st.OverflowErrors))
		m.frames.WithLabelValues("short").Set(float64(st.ShortFrames))
		m.frames.WithLabelValues("unknown_command").Set(float64(st.UnknownCommands))
		m.frames.WithLabelValues("keep_alive").Set(float64(st.KeepAlives))
		m.frames.WithLabelValues("reply").Set(float64(st.RepliesSent))
		for cmd, n := range st.Commands {
			m.commands.WithLabelValues(cn105.FormatCommand(cmd)).Set(float64(n))
		}
	}

	for _, s := range snap.States {
		for _, f := range heatpump.AllFields {
			m.field.WithLabelValues(s.Name, f.String()).Set(float64(s.Raw[f]))
		}
		m.rejected.WithLabelValues(s.Name).Set(float64(s.Rejected))
	}

	r := snap.Reconcile
	m.flags.WithLabelValues("remote_in_control").Set(boolGauge(r.RemoteInControl))
	m.flags.WithLabelValues("system_up").Set(boolGauge(r.SystemUp))
	m.flags.WithLabelValues("engine_up").Set(boolGauge(r.EngineUp))
	m.flags.WithLabelValues("engine_pending").Set(boolGauge(r.EnginePending))
	m.transitions.WithLabelValues("takeover").Set(float64(r.Takeovers))
	m.transitions.WithLabelValues("handback").Set(float64(r.Handbacks))
	m.transitions.WithLabelValues("engine_sync").Set(float64(r.EngineSyncs))
}

// Handler serves the registry, refreshing from src first
func (m *Metrics) Handler(src Source) http.Handler {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Update(src.Snapshot())
		h.ServeHTTP(w, r)
	})
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
