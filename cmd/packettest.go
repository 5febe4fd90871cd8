// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/cn105emu/pkg/cn105"
	"github.com/spf13/cobra"
)

var (
	packetTestTimeout int
)

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test connection by waiting for a valid CN105 frame",
	Long: `Wait for a valid CN105 frame on the connection until timeout.

This command connects to a serial port or WebSocket and waits for any valid
CN105 frame. It ignores invalid bytes and waits for a complete frame with a
good header and checksum.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error

Useful for checking wiring and parity settings before running the emulator.`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection(cfg.Link)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("cn105emu - Packet Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", packetTestTimeout)
	fmt.Printf("Waiting for valid CN105 frame...\n\n")

	invalid := 0
	frame, err := awaitFrame(conn, cn105.NewDecoder(), time.Duration(packetTestTimeout)*time.Second, nil,
		func(error) { invalid++ })

	switch {
	case err == nil:
		if invalid > 0 {
			fmt.Printf("(skipped %d invalid frames before sync)\n", invalid)
		}
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Printf("  Command: %s (0x%02X)\n", cn105.FormatCommand(frame.Command()), frame.Command())
		fmt.Printf("  Length: %d bytes (payload %d)\n", frame.Len(), frame.PayloadLength())
		fmt.Printf("  Checksum: 0x%02X\n", frame.At(frame.Len()-1))
		os.Exit(0)

	case errors.Is(err, ErrReplyTimeout):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", packetTestTimeout)
		os.Exit(1)

	default:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)
	}

	return nil
}
