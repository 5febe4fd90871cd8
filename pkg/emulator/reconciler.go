// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package emulator

import (
	"time"

	"github.com/Thermoquad/cn105emu/pkg/heatpump"
	"github.com/sirupsen/logrus"
)

// ReconcileConfig holds the reconciliation timings
type ReconcileConfig struct {
	// GracePeriod is how long the engine must have been reporting before
	// remote changes are acted on
	GracePeriod time.Duration
	// TakeoverWindow is how long a remote change stays authoritative
	TakeoverWindow time.Duration
	// SyncInterval is the engine pull cadence
	SyncInterval time.Duration
}

// DefaultReconcileConfig returns the standard timings
func DefaultReconcileConfig() ReconcileConfig {
	return ReconcileConfig{
		GracePeriod:    15 * time.Second,
		TakeoverWindow: 30 * time.Second,
		SyncInterval:   time.Second,
	}
}

// ReconcileStatus is a read-only view of the reconciler
type ReconcileStatus struct {
	RemoteInControl  bool      `json:"remoteInControl"`
	SystemUp         bool      `json:"systemUp"`
	EngineUp         bool      `json:"engineUp"`
	EnginePending    bool      `json:"enginePending"`
	EngineUpTime     time.Time `json:"engineUpTime"`
	RemoteLastUpdate time.Time `json:"remoteLastUpdate"`
	Takeovers        uint64    `json:"takeovers"`
	Handbacks        uint64    `json:"handbacks"`
	EngineSyncs      uint64    `json:"engineSyncs"`
}

// Reconciler decides which state instance is authoritative and moves
// settings between the remote, the emulator and the engine.
//
// All methods must be called from the run loop goroutine.
type Reconciler struct {
	cfg    ReconcileConfig
	states *heatpump.Store
	engine Engine
	clock  Clock
	log    logrus.FieldLogger

	previous *heatpump.State // remote settings at the last check

	remoteInControl  bool
	systemUp         bool
	engineUp         bool
	engineUpTime     time.Time
	remoteLastUpdate time.Time
	lastSync         time.Time

	takeovers   uint64
	handbacks   uint64
	engineSyncs uint64
}

// NewReconciler creates a reconciler over states
func NewReconciler(states *heatpump.Store, engine Engine, clock Clock, cfg ReconcileConfig, log logrus.FieldLogger) *Reconciler {
	if clock == nil {
		clock = SystemClock
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Reconciler{
		cfg:      cfg,
		states:   states,
		engine:   engine,
		clock:    clock,
		log:      log,
		previous: states.Remote.Clone("remote-previous"),
	}
}

// Tick runs the remote check, and the engine sync once the sync interval
// has elapsed
func (r *Reconciler) Tick() {
	r.CheckRemote()

	now := r.clock.Now()
	if r.lastSync.IsZero() || now.Sub(r.lastSync) >= r.cfg.SyncInterval {
		r.lastSync = now
		r.SyncEngine()
	}
}

// CheckRemote compares the remote settings with the previous check and
// hands control to the remote when they changed
func (r *Reconciler) CheckRemote() {
	now := r.clock.Now()
	r.expire(now)

	remote := r.states.Remote
	diff := r.previous.Diff(remote)
	if len(diff) == 0 {
		return
	}

	if !r.systemUp {
		r.log.WithField("fields", diff).Debug("remote change before system up, dropped")
		r.previous.CopyFrom(remote)
		return
	}
	if r.engine.Pending() {
		// retried on the next check
		r.log.WithField("fields", diff).Debug("engine push still pending, deferring remote change")
		return
	}

	r.previous.CopyFrom(remote)
	r.remoteInControl = true
	r.remoteLastUpdate = now
	r.takeovers++

	r.states.Emulator.CopyFrom(remote)
	r.states.Engine.CopyFrom(remote)
	wanted := remote.Settings()
	r.engine.Want(wanted)

	r.log.WithFields(logrus.Fields{
		"fields":   diff,
		"settings": wanted.String(),
	}).Info("remote took control")
}

// SyncEngine pulls the engine settings and serves them to the remote when
// they differ from the emulator settings
func (r *Reconciler) SyncEngine() {
	now := r.clock.Now()
	r.expire(now)

	if r.remoteInControl || r.engine.Pending() {
		return
	}
	current, ok := r.engine.Current()
	if !ok || !current.Complete() {
		return
	}

	if !r.engineUp {
		r.engineUp = true
		r.engineUpTime = now
		r.log.WithField("settings", current.String()).Info("engine reporting")
	}
	if !r.systemUp && now.Sub(r.engineUpTime) >= r.cfg.GracePeriod {
		r.systemUp = true
		r.log.Info("system up, accepting remote control")
	}

	engine := r.states.Engine
	engine.ApplySettings(current)

	if diff := r.states.Emulator.Diff(engine); len(diff) > 0 {
		r.states.Emulator.CopyFrom(engine)
		r.engineSyncs++
		r.log.WithField("fields", diff).Info("engine settings served to remote")
		return
	}
	if current.RoomTemperature != 0 {
		r.states.Emulator.SetActualTemp(engine.ActualTemp())
	}
}

func (r *Reconciler) expire(now time.Time) {
	if r.remoteInControl && now.Sub(r.remoteLastUpdate) > r.cfg.TakeoverWindow {
		r.remoteInControl = false
		r.handbacks++
		r.log.Info("remote control expired, engine authoritative")
	}
}

// RemoteInControl reports whether a remote change is currently authoritative
func (r *Reconciler) RemoteInControl() bool { return r.remoteInControl }

// SystemUp reports whether the engine grace period has passed
func (r *Reconciler) SystemUp() bool { return r.systemUp }

// Status returns a copy of the reconciler flags and counters
func (r *Reconciler) Status() ReconcileStatus {
	return ReconcileStatus{
		RemoteInControl:  r.remoteInControl,
		SystemUp:         r.systemUp,
		EngineUp:         r.engineUp,
		EnginePending:    r.engine.Pending(),
		EngineUpTime:     r.engineUpTime,
		RemoteLastUpdate: r.remoteLastUpdate,
		Takeovers:        r.takeovers,
		Handbacks:        r.handbacks,
		EngineSyncs:      r.engineSyncs,
	}
}
