// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thermoquad/cn105emu/pkg/cn105"
	"github.com/spf13/cobra"
)

var (
	rawLogRecord        string
	rawLogStatsInterval int
	rawLogDirection     string
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw frame log in human-readable format",
	Long: `Continuously decode and display CN105 frames as they arrive, without replying.

Each frame is shown with timestamp, command, hex dump and decoded payload
fields. Frames failing the checksum or exceeding the frame capacity are
reported as errors.

Use --record to write every frame to a CBOR capture file for later replay,
and --stats-interval to print periodic statistics.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().StringVar(&rawLogRecord, "record", "", "Record frames to a CBOR capture file")
	rawLogCmd.Flags().IntVar(&rawLogStatsInterval, "stats-interval", 0, "Print statistics every N seconds (0 = only on exit)")
	rawLogCmd.Flags().StringVar(&rawLogDirection, "direction", "remote", "Which side is being monitored for captures (remote, heatpump)")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	dir := cn105.DirRemoteToHeatPump
	switch rawLogDirection {
	case "remote":
	case "heatpump":
		dir = cn105.DirHeatPumpToRemote
	default:
		return fmt.Errorf("unknown direction %q", rawLogDirection)
	}

	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection(cfg.Link)
	if err != nil {
		return err
	}
	defer conn.Close()

	var capture *cn105.CaptureWriter
	if rawLogRecord != "" {
		f, err := os.Create(rawLogRecord)
		if err != nil {
			return fmt.Errorf("failed to create capture file: %w", err)
		}
		defer f.Close()
		capture = cn105.NewCaptureWriter(f)
	}

	fmt.Printf("cn105emu - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats := cn105.NewStatistics()
	err = monitorFrames(ctx, conn, os.Stdout, stats, capture, dir, time.Duration(rawLogStatsInterval)*time.Second)
	fmt.Print("\n" + stats.String())
	return err
}

// monitorFrames decodes frames from r and prints them until ctx is done or
// the link closes
func monitorFrames(ctx context.Context, r io.Reader, out io.Writer, stats *cn105.Statistics,
	capture *cn105.CaptureWriter, dir cn105.Direction, statsEvery time.Duration) error {
	decoder := cn105.NewDecoder()
	buf := make([]byte, 128)
	lastStats := time.Now()

	for ctx.Err() == nil {
		n, err := r.Read(buf)
		if err != nil {
			// For WebSocket connections, a read error usually means
			// the connection is permanently closed - exit gracefully
			if errors.Is(err, ErrConnectionClosed) || errors.Is(err, io.EOF) {
				logger.Info("connection closed")
				return nil
			}
			return fmt.Errorf("read error: %w", err)
		}

		decoder.Decode(buf[:n], func(frame *cn105.Frame, decodeErr error) {
			stats.Update(frame, decodeErr)
			if decodeErr != nil {
				fmt.Fprintf(out, "[ERROR] %v\n", decodeErr)
				var fe *cn105.FrameError
				if capture != nil && errors.As(decodeErr, &fe) {
					capture.WriteFrame(dir, fe.Frame, false)
				}
				return
			}
			if cn105.IsKeepAlive(frame) {
				stats.RecordKeepAlive()
			}
			fmt.Fprint(out, cn105.FormatFrame(frame))
			if capture != nil {
				if err := capture.WriteFrame(dir, frame, true); err != nil {
					logger.WithError(err).Warn("capture write failed")
				}
			}
		})

		if statsEvery > 0 && time.Since(lastStats) >= statsEvery {
			fmt.Fprint(out, stats.String())
			lastStats = time.Now()
		}
	}
	return nil
}
