// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Thermoquad/cn105emu/internal/engine"
	"github.com/Thermoquad/cn105emu/pkg/cn105"
	"github.com/Thermoquad/cn105emu/pkg/emulator"
	"github.com/Thermoquad/cn105emu/pkg/heatpump"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var replayQuiet bool

var replayCmd = &cobra.Command{
	Use:   "replay <capture.cbor>",
	Short: "Feed a capture through a fresh emulator",
	Long: `Replay the remote's side of a CBOR capture (from raw_log --record or
emulate --record) into a fresh emulator driven by the capture timestamps and
a simulated engine, and print the replies it sends.

Replies recorded in the capture are compared with the emulator's and
differences are counted.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVarP(&replayQuiet, "quiet", "q", false, "Only print the summary")
}

// replayLink feeds queued bytes to the emulator and collects its writes
type replayLink struct {
	in  bytes.Buffer
	out bytes.Buffer
}

func (l *replayLink) Read(p []byte) (int, error) {
	if l.in.Len() == 0 {
		return 0, nil
	}
	return l.in.Read(p)
}

func (l *replayLink) Write(p []byte) (int, error) {
	return l.out.Write(p)
}

func (l *replayLink) takeReplies() []*cn105.Frame {
	var frames []*cn105.Frame
	cn105.NewDecoder().Decode(l.out.Bytes(), func(f *cn105.Frame, err error) {
		if err == nil {
			frames = append(frames, f)
		}
	})
	l.out.Reset()
	return frames
}

// replayResult summarises a replay
type replayResult struct {
	Requests   int
	Replies    int
	Compared   int
	Mismatches int
	Final      []heatpump.Snapshot
}

// replayOptions configure replayCapture
type replayOptions struct {
	Initial    heatpump.Settings
	Reconcile  emulator.ReconcileConfig
	ApplyDelay time.Duration
	Logger     logrus.FieldLogger
	Verbose    bool
}

func replayCapture(r io.Reader, out io.Writer, opts replayOptions) (replayResult, error) {
	var res replayResult
	reader := cn105.NewCaptureReader(r)

	var (
		clock     *emulator.ManualClock
		emu       *emulator.Emulator
		link      = &replayLink{}
		lastReply []byte
	)

	for {
		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, err
		}
		at := time.UnixMilli(rec.Time)

		if emu == nil {
			clock = emulator.NewManualClock(at)
			sim := engine.NewSim(opts.Initial, engine.SimOptions{
				ApplyDelay: opts.ApplyDelay,
				Clock:      clock,
				Logger:     opts.Logger,
			})
			emu = emulator.New(link, sim, emulator.Options{
				Reconcile: opts.Reconcile,
				Clock:     clock,
				Logger:    opts.Logger,
				Initial:   opts.Initial,
			})
		}
		if at.After(clock.Now()) {
			clock.Set(at)
		}

		switch rec.Direction {
		case cn105.DirRemoteToHeatPump:
			res.Requests++
			if opts.Verbose {
				fmt.Fprintf(out, "%s %s\n", rec.Direction, cn105.HexDump(rec.Data))
			}
			link.in.Write(rec.Data)
			for link.in.Len() > 0 {
				if _, err := emu.Step(); err != nil {
					return res, err
				}
			}
			lastReply = nil
			for _, reply := range link.takeReplies() {
				res.Replies++
				lastReply = append(lastReply, reply.Bytes()...)
				if opts.Verbose {
					fmt.Fprintf(out, "%s %s\n", cn105.DirHeatPumpToRemote, cn105.HexDump(reply.Bytes()))
				}
			}

		case cn105.DirHeatPumpToRemote:
			res.Compared++
			if !bytes.Equal(lastReply, rec.Data) {
				res.Mismatches++
				if opts.Verbose {
					fmt.Fprintf(out, "  differs from recorded %s\n", cn105.HexDump(rec.Data))
				}
			}
		}
	}

	if emu != nil {
		res.Final = emu.States().Snapshots()
	}
	return res, nil
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open capture: %w", err)
	}
	defer f.Close()

	res, err := replayCapture(f, os.Stdout, replayOptions{
		Initial:    cfg.State,
		Reconcile:  cfg.Reconcile.Timings(),
		ApplyDelay: cfg.Engine.Sim.ApplyDelay,
		Logger:     logger,
		Verbose:    !replayQuiet,
	})
	if err != nil {
		return err
	}

	fmt.Printf("\n--- Replay summary ---\n")
	fmt.Printf("%d requests, %d replies, %d recorded replies compared, %d differ\n",
		res.Requests, res.Replies, res.Compared, res.Mismatches)
	for _, s := range res.Final {
		fmt.Printf("%-9s power=%s mode=%s fan=%s set=%d room=%d vane=%s wide=%s\n",
			s.Name, s.Power, s.Mode, s.Fan, s.SetTemp, s.ActualTemp, s.Vane, s.WideVane)
	}
	return nil
}
