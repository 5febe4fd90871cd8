// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Thermoquad/cn105emu/pkg/cn105"
	"github.com/spf13/cobra"
)

var (
	probeTimeout   int
	probeCount     int
	probeSelectors string
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Act as a remote: connect and request info reports",
	Long: `Send a CONNECT (0x5A) followed by INFO_REQUEST (0x42) frames and wait for
the matching replies, printing each decoded reply with its round-trip time.

Point it at a real indoor unit to see what it reports, or at another
emulator to check it end to end.

Exit codes:
  0 - All requests answered
  1 - One or more requests failed/timed out
  2 - Connection error`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().IntVar(&probeTimeout, "timeout", 2, "Timeout in seconds for each reply")
	probeCmd.Flags().IntVar(&probeCount, "count", 1, "Number of request rounds")
	probeCmd.Flags().StringVar(&probeSelectors, "selectors", "02,03", "Comma separated info selectors (hex)")
}

// probeRequest is one request and the reply command it expects
type probeRequest struct {
	name  string
	frame *cn105.Frame
	reply byte
}

// connectRequest builds the remote's opening handshake
func connectRequest() *cn105.Frame {
	return cn105.BuildRequest(cn105.CmdConnect, []byte{0x00})
}

// infoRequest builds a standard-length info request for selector
func infoRequest(selector byte) *cn105.Frame {
	payload := make([]byte, cn105.StandardPayloadLen)
	payload[0] = selector
	return cn105.BuildRequest(cn105.CmdInfoRequest, payload)
}

func parseSelectors(s string) ([]byte, error) {
	var out []byte
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimPrefix(strings.TrimSpace(part), "0x")
		if part == "" {
			continue
		}
		v, err := strconv.ParseUint(part, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid selector %q: %w", part, err)
		}
		out = append(out, byte(v))
	}
	return out, nil
}

func probeRequests(selectors []byte) []probeRequest {
	reqs := []probeRequest{{name: "CONNECT", frame: connectRequest(), reply: cn105.CmdConnectAck}}
	for _, sel := range selectors {
		reqs = append(reqs, probeRequest{
			name:  fmt.Sprintf("INFO %s", cn105.FormatSelector(sel)),
			frame: infoRequest(sel),
			reply: cn105.CmdInfoReport,
		})
	}
	return reqs
}

// runProbeRound sends each request and waits for its reply. It returns the
// number of answered requests.
func runProbeRound(conn io.ReadWriter, reqs []probeRequest, timeout time.Duration, out io.Writer) int {
	decoder := cn105.NewDecoder()
	ok := 0
	for _, req := range reqs {
		fmt.Fprintf(out, "%-18s ", req.name+":")

		startTime := time.Now()
		if _, err := conn.Write(req.frame.Bytes()); err != nil {
			fmt.Fprintf(out, "SEND FAILED: %v\n", err)
			continue
		}

		reply, err := awaitFrame(conn, decoder, timeout, func(f *cn105.Frame) bool {
			return f.Command() == req.reply
		}, nil)
		if err != nil {
			fmt.Fprintf(out, "FAILED: %v\n", err)
			decoder.Reset()
			continue
		}

		rtt := time.Since(startTime)
		fmt.Fprintf(out, "%s rtt=%v\n", cn105.HexDump(reply.Bytes()), rtt.Round(time.Millisecond))
		if details := cn105.FormatPayload(reply); details != "" {
			fmt.Fprint(out, details)
		}
		ok++
	}
	return ok
}

func runProbe(cmd *cobra.Command, args []string) error {
	selectors, err := parseSelectors(probeSelectors)
	if err != nil {
		return err
	}

	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection(cfg.Link)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	reqs := probeRequests(selectors)

	fmt.Printf("cn105emu - Probe\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds per reply\n", probeTimeout)
	fmt.Printf("Rounds: %d x %d requests\n\n", probeCount, len(reqs))

	sent, answered := 0, 0
	for i := 1; i <= probeCount; i++ {
		if probeCount > 1 {
			fmt.Printf("Round %d/%d\n", i, probeCount)
		}
		answered += runProbeRound(conn, reqs, time.Duration(probeTimeout)*time.Second, os.Stdout)
		sent += len(reqs)

		// Small delay between rounds
		if i < probeCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	// Summary
	fmt.Printf("\n--- Probe statistics ---\n")
	fmt.Printf("%d requests sent, %d replies received, %.0f%% loss\n",
		sent, answered, float64(sent-answered)/float64(sent)*100)

	if answered < sent {
		os.Exit(1)
	}
	return nil
}
