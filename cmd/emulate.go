// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Thermoquad/cn105emu/internal/config"
	"github.com/Thermoquad/cn105emu/internal/engine"
	"github.com/Thermoquad/cn105emu/internal/status"
	"github.com/Thermoquad/cn105emu/pkg/cn105"
	"github.com/Thermoquad/cn105emu/pkg/emulator"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	emulateTUI    bool
	emulateEngine string
	emulateStatus string
	emulateRecord string
	noStatus      bool
)

var emulateCmd = &cobra.Command{
	Use:   "emulate",
	Short: "Answer the wired remote as the heat pump",
	Long: `Open the remote link and answer every request as the indoor unit would.

The emulator keeps three views of the settings: what the remote last
commanded, what is served back to the remote, and what the external engine
reports. A change on the remote takes control for the takeover window and is
pushed to the engine; otherwise the engine's settings are mirrored to the
remote once per sync interval.

Engines:
  sim   in-memory controller (default), applies settings after a short delay
  mqtt  JSON settings on <prefix>/state, commands published to <prefix>/set

A status page with /api/state, /ws and /metrics is served unless --no-status.`,
	RunE: runEmulate,
}

func init() {
	rootCmd.AddCommand(emulateCmd)
	emulateCmd.Flags().BoolVar(&emulateTUI, "tui", false, "Use terminal UI")
	emulateCmd.Flags().StringVar(&emulateEngine, "engine", "", "Engine type (sim, mqtt); overrides config")
	emulateCmd.Flags().StringVar(&emulateStatus, "status", "", "Status server listen address; overrides config")
	emulateCmd.Flags().BoolVar(&noStatus, "no-status", false, "Disable the status server")
	emulateCmd.Flags().StringVar(&emulateRecord, "record", "", "Record all frames to a CBOR capture file")
}

// runnableEngine is an emulator engine with its own poll loop
type runnableEngine interface {
	emulator.Engine
	Run(ctx context.Context) error
}

// buildEngine creates the engine adapter selected in config
func buildEngine(c *config.Config, log logrus.FieldLogger) (runnableEngine, error) {
	switch c.Engine.Type {
	case config.EngineSim:
		return engine.NewSim(c.State, engine.SimOptions{
			Warmup:     c.Engine.Sim.Warmup,
			ApplyDelay: c.Engine.Sim.ApplyDelay,
			Logger:     log,
		}), nil
	case config.EngineMQTT:
		m := c.Engine.MQTT
		if m.Username != "" && m.Password == "" {
			pw, err := GetPassword("CN105_MQTT_PASSWORD", "MQTT password")
			if err != nil {
				return nil, err
			}
			m.Password = pw
		}
		return engine.DialMQTT(engine.MQTTOptions{
			Broker:       m.Broker,
			ClientID:     m.ClientID,
			Username:     m.Username,
			Password:     m.Password,
			TopicPrefix:  m.TopicPrefix,
			QoS:          m.QoS,
			ApplyTimeout: m.ApplyTimeout,
			Logger:       log,
		}), nil
	}
	return nil, fmt.Errorf("unknown engine type %q", c.Engine.Type)
}

func runEmulate(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("engine") {
		cfg.Engine.Type = emulateEngine
	}
	if cmd.Flags().Changed("status") {
		cfg.Status.ListenAddr = emulateStatus
		cfg.Status.Enabled = true
	}
	if noStatus {
		cfg.Status.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	conn, connInfo, err := OpenConnection(cfg.Link)
	if err != nil {
		return err
	}
	defer conn.Close()

	eng, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}

	var capture *cn105.CaptureWriter
	if emulateRecord != "" {
		f, err := os.Create(emulateRecord)
		if err != nil {
			return fmt.Errorf("failed to create capture file: %w", err)
		}
		defer f.Close()
		capture = cn105.NewCaptureWriter(f)
	}

	var events chan emulator.FrameEvent
	if emulateTUI {
		events = make(chan emulator.FrameEvent, 256)
		// logrus output would tear the alternate screen
		logger.SetOutput(io.Discard)
	}

	emu := emulator.New(conn, eng, emulator.Options{
		Reconcile: cfg.Reconcile.Timings(),
		Logger:    logger,
		Initial:   cfg.State,
		Events:    events,
		Capture:   capture,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger.WithFields(logrus.Fields{
		"link":   connInfo,
		"engine": cfg.Engine.Type,
	}).Info("starting emulator")

	go func() {
		if err := eng.Run(ctx); err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("engine stopped")
			cancel()
		}
	}()

	if cfg.Status.Enabled {
		srv := status.New(cfg.Status.ListenAddr, emu, logger)
		go func() {
			if err := srv.Run(ctx); err != nil {
				logger.WithError(err).Error("status server stopped")
			}
		}()
	}

	emuErr := make(chan error, 1)
	go func() {
		emuErr <- emu.Run(ctx)
		cancel()
	}()

	if emulateTUI {
		p := tea.NewProgram(newEmulateModel(connInfo, cfg, emu, events), tea.WithContext(ctx))
		if _, err := p.Run(); err != nil && ctx.Err() == nil {
			return err
		}
		cancel()
	}

	if err := <-emuErr; err != nil {
		return err
	}
	if !emulateTUI {
		fmt.Print(emu.Snapshot().Stats.String())
	}
	return nil
}
