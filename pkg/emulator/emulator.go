// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package emulator answers a CN105 wired remote as a heat pump would and
// keeps the remote, the emulator and an external control engine in step.
package emulator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Thermoquad/cn105emu/internal/syncutil"
	"github.com/Thermoquad/cn105emu/pkg/cn105"
	"github.com/Thermoquad/cn105emu/pkg/heatpump"
	"github.com/sirupsen/logrus"
)

const (
	readBufferSize   = 256
	defaultIdleDelay = 5 * time.Millisecond
	recentFrameLimit = 32
)

// Options configure an Emulator
type Options struct {
	Reconcile ReconcileConfig
	Clock     Clock
	Logger    logrus.FieldLogger

	// Initial seeds all three states. Zero value keeps the defaults.
	Initial heatpump.Settings

	// Events receives every decoded, rejected and sent frame. Sends never
	// block; events are dropped when the channel is full.
	Events chan<- FrameEvent

	// Capture records every frame when set
	Capture *cn105.CaptureWriter

	// IdleDelay is slept by Run when a read returned no bytes
	IdleDelay time.Duration
}

// FrameEvent describes one frame seen or sent by the emulator
type FrameEvent struct {
	Direction cn105.Direction
	Frame     *cn105.Frame
	Err       error
}

// Snapshot is a consistent copy of the emulator state for observers
type Snapshot struct {
	Time      time.Time           `json:"time"`
	States    []heatpump.Snapshot `json:"states"`
	Reconcile ReconcileStatus     `json:"reconcile"`
	Stats     *cn105.Statistics   `json:"stats"`
	Recent    []string            `json:"recent"`
}

// Emulator owns the decoder, dispatcher, states and reconciler and drives
// them from a single run loop
type Emulator struct {
	conn       io.ReadWriter
	decoder    *cn105.Decoder
	dispatcher *Dispatcher
	reconciler *Reconciler
	states     *heatpump.Store
	stats      *cn105.Statistics
	clock      Clock
	log        logrus.FieldLogger
	events     chan<- FrameEvent
	capture    *cn105.CaptureWriter
	idleDelay  time.Duration

	readBuf []byte
	recent  []string

	mu       syncutil.RWMutex
	snapshot Snapshot
}

// New creates an emulator answering on conn and reconciling with engine
func New(conn io.ReadWriter, engine Engine, opts Options) *Emulator {
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Reconcile == (ReconcileConfig{}) {
		opts.Reconcile = DefaultReconcileConfig()
	}
	if opts.IdleDelay <= 0 {
		opts.IdleDelay = defaultIdleDelay
	}

	states := heatpump.NewStore(opts.Logger)
	if opts.Initial.Complete() {
		states.Seed(opts.Initial)
	}
	stats := cn105.NewStatistics()

	e := &Emulator{
		conn:       conn,
		decoder:    cn105.NewDecoder(),
		dispatcher: NewDispatcher(states, conn, stats, opts.Logger),
		reconciler: NewReconciler(states, engine, opts.Clock, opts.Reconcile, opts.Logger),
		states:     states,
		stats:      stats,
		clock:      opts.Clock,
		log:        opts.Logger,
		events:     opts.Events,
		capture:    opts.Capture,
		idleDelay:  opts.IdleDelay,
		readBuf:    make([]byte, readBufferSize),
	}
	e.dispatcher.OnRemoteChange(e.reconciler.CheckRemote)
	e.publish()
	return e
}

// States returns the state store. Only the run loop goroutine may mutate it.
func (e *Emulator) States() *heatpump.Store { return e.states }

// Reconciler returns the reconciler
func (e *Emulator) Reconciler() *Reconciler { return e.reconciler }

// Run drives the emulator until ctx is cancelled or the link fails
func (e *Emulator) Run(ctx context.Context) error {
	e.log.Info("emulator running")
	for {
		select {
		case <-ctx.Done():
			e.log.Info("emulator stopped")
			return nil
		default:
		}

		n, err := e.Step()
		if err != nil {
			return err
		}
		if n == 0 {
			select {
			case <-ctx.Done():
			case <-time.After(e.idleDelay):
			}
		}
	}
}

// Step performs one loop iteration: drain available bytes, run the
// reconciler and publish a snapshot. It returns the number of bytes read.
func (e *Emulator) Step() (int, error) {
	n, err := e.conn.Read(e.readBuf)
	if n > 0 {
		e.Feed(e.readBuf[:n])
	}
	e.reconciler.Tick()
	e.publish()

	if err != nil && !errors.Is(err, ErrNoData) {
		return n, fmt.Errorf("failed to read remote link: %w", err)
	}
	return n, nil
}

// ErrNoData may be returned by a non-blocking link when nothing is available
var ErrNoData = errors.New("no data available")

// Feed decodes bytes from the remote and dispatches every complete frame
func (e *Emulator) Feed(data []byte) {
	e.decoder.Decode(data, e.handleFrame)
}

func (e *Emulator) handleFrame(frame *cn105.Frame, decodeErr error) {
	e.stats.Update(frame, decodeErr)

	if decodeErr != nil {
		var fe *cn105.FrameError
		if errors.As(decodeErr, &fe) {
			e.log.WithField("frame", cn105.HexDump(fe.Frame.Bytes())).Warnf("bad frame from remote: %v", decodeErr)
			e.observe(cn105.DirRemoteToHeatPump, fe.Frame, decodeErr)
		}
		return
	}

	e.log.Debug(cn105.FormatFrame(frame))
	e.observe(cn105.DirRemoteToHeatPump, frame, nil)

	reply, err := e.dispatcher.Dispatch(frame)
	if err != nil {
		e.log.WithError(err).Warn("reply failed")
	}
	if reply != nil {
		e.log.Debug(cn105.FormatFrame(reply))
		e.observe(cn105.DirHeatPumpToRemote, reply, err)
	}
}

func (e *Emulator) observe(dir cn105.Direction, f *cn105.Frame, err error) {
	line := fmt.Sprintf("%s %s %s", dir, cn105.FormatCommand(f.Command()), cn105.HexDump(f.Bytes()))
	if err != nil {
		line += " (" + err.Error() + ")"
	}
	e.recent = append(e.recent, line)
	if len(e.recent) > recentFrameLimit {
		e.recent = e.recent[len(e.recent)-recentFrameLimit:]
	}

	if e.capture != nil {
		if cerr := e.capture.WriteFrame(dir, f, err == nil); cerr != nil {
			e.log.WithError(cerr).Warn("capture write failed")
		}
	}
	if e.events != nil {
		select {
		case e.events <- FrameEvent{Direction: dir, Frame: f, Err: err}:
		default:
		}
	}
}

func (e *Emulator) publish() {
	snap := Snapshot{
		Time:      e.clock.Now(),
		States:    e.states.Snapshots(),
		Reconcile: e.reconciler.Status(),
		Stats:     e.stats.Clone(),
		Recent:    append([]string(nil), e.recent...),
	}
	e.mu.Lock()
	e.snapshot = snap
	e.mu.Unlock()
}

// Snapshot returns the latest published snapshot. Safe from any goroutine.
func (e *Emulator) Snapshot() Snapshot {
	e.mu.RLock()
	snap := e.snapshot
	e.mu.RUnlock()
	snap.Stats = snap.Stats.Clone()
	return snap
}
