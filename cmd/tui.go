// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/cn105emu/internal/config"
	"github.com/Thermoquad/cn105emu/pkg/cn105"
	"github.com/Thermoquad/cn105emu/pkg/emulator"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Frame log entry
type frameLogEntry struct {
	timestamp time.Time
	direction cn105.Direction
	message   string
	isError   bool
}

type snapshotSource interface {
	Snapshot() emulator.Snapshot
}

// TUI model for the emulate command
type emulateModel struct {
	connInfo      string
	engineType    string
	src           snapshotSource
	events        <-chan emulator.FrameEvent
	snap          emulator.Snapshot
	states        table.Model
	frameLog      []frameLogEntry
	maxLogEntries int
	paused        bool
	width         int
	height        int
	quitting      bool
}

// Messages
type tickMsg time.Time
type frameEventMsg emulator.FrameEvent

// formatUptime formats uptime in milliseconds to human-friendly string
func formatUptime(ms uint64) string {
	if ms == 0 {
		return "0 seconds"
	}

	seconds := ms / 1000
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	plural := func(n uint64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, plural(seconds, "second"))
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

var stateColumns = []table.Column{
	{Title: "Instance", Width: 10},
	{Title: "Power", Width: 6},
	{Title: "Mode", Width: 6},
	{Title: "Fan", Width: 6},
	{Title: "Set", Width: 5},
	{Title: "Room", Width: 5},
	{Title: "Vane", Width: 6},
	{Title: "Wide", Width: 6},
}

func stateRows(snap emulator.Snapshot) []table.Row {
	rows := make([]table.Row, 0, len(snap.States))
	for _, s := range snap.States {
		rows = append(rows, table.Row{
			s.Name, s.Power, s.Mode, s.Fan,
			fmt.Sprintf("%d°C", s.SetTemp), fmt.Sprintf("%d°C", s.ActualTemp),
			s.Vane, s.WideVane,
		})
	}
	return rows
}

func newEmulateModel(connInfo string, c *config.Config, src snapshotSource, events <-chan emulator.FrameEvent) emulateModel {
	snap := src.Snapshot()

	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Foreground(lipgloss.Color("12")).
		Bold(true)
	styles.Selected = lipgloss.NewStyle()

	t := table.New(
		table.WithColumns(stateColumns),
		table.WithRows(stateRows(snap)),
		table.WithHeight(6),
		table.WithFocused(false),
		table.WithStyles(styles),
	)

	return emulateModel{
		connInfo:      connInfo,
		engineType:    c.Engine.Type,
		src:           src,
		events:        events,
		snap:          snap,
		states:        t,
		frameLog:      make([]frameLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m emulateModel) Init() tea.Cmd {
	cmds := []tea.Cmd{tickCmd(), tea.EnterAltScreen}
	if m.events != nil {
		cmds = append(cmds, waitForEvent(m.events))
	}
	return tea.Batch(cmds...)
}

func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitForEvent(ch <-chan emulator.FrameEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return frameEventMsg(ev)
	}
}

func (m emulateModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "p":
			m.paused = !m.paused
		case "c":
			m.frameLog = m.frameLog[:0]
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.snap = m.src.Snapshot()
		m.states.SetRows(stateRows(m.snap))
		return m, tickCmd()

	case frameEventMsg:
		if !m.paused {
			m.addFrame(emulator.FrameEvent(msg))
		}
		return m, waitForEvent(m.events)
	}

	return m, nil
}

func (m *emulateModel) addFrame(ev emulator.FrameEvent) {
	message := cn105.FormatCommand(ev.Frame.Command()) + " " + cn105.HexDump(ev.Frame.Bytes())
	if ev.Err != nil {
		message += " (" + ev.Err.Error() + ")"
	}
	ts := ev.Frame.Timestamp()
	if ts.IsZero() {
		ts = time.Now()
	}
	m.frameLog = append(m.frameLog, frameLogEntry{
		timestamp: ts,
		direction: ev.Direction,
		message:   message,
		isError:   ev.Err != nil,
	})

	// Keep only last N entries
	if len(m.frameLog) > m.maxLogEntries {
		m.frameLog = m.frameLog[len(m.frameLog)-m.maxLogEntries:]
	}
}

func (m emulateModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	flag := func(on bool, yes, no string) string {
		if on {
			return warningStyle.Render(yes)
		}
		return statsValueStyle.Render(no)
	}

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("CN105 EMULATOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Engine: %s | 'p' pause log, 'c' clear, 'q' quit",
		m.connInfo, m.engineType)))
	s.WriteString("\n\n")

	// States
	s.WriteString(boxStyle.Render(m.states.View()))
	s.WriteString("\n")

	// Reconciliation
	r := m.snap.Reconcile
	recon := strings.Builder{}
	recon.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Control:"), flag(r.RemoteInControl, "REMOTE", "engine"),
		statsLabelStyle.Render("System:"), flag(!r.SystemUp, "starting", "up"),
		statsLabelStyle.Render("Engine:"), func() string {
			switch {
			case !r.EngineUp:
				return errorStyle.Render("no report")
			case r.EnginePending:
				return warningStyle.Render("applying")
			}
			return statsValueStyle.Render("in sync")
		}(),
	))
	if r.EngineUp && !r.EngineUpTime.IsZero() {
		up := m.snap.Time.Sub(r.EngineUpTime)
		if up < 0 {
			up = 0
		}
		recon.WriteString(fmt.Sprintf("%s %s\n",
			statsLabelStyle.Render("Engine up:"), statsValueStyle.Render(formatUptime(uint64(up.Milliseconds())))))
	}
	recon.WriteString(fmt.Sprintf("%s %d   %s %d   %s %d",
		statsLabelStyle.Render("Takeovers:"), r.Takeovers,
		statsLabelStyle.Render("Handbacks:"), r.Handbacks,
		statsLabelStyle.Render("Syncs:"), r.EngineSyncs,
	))
	s.WriteString(boxStyle.Render(recon.String()))
	s.WriteString("\n")

	// Statistics
	if st := m.snap.Stats; st != nil {
		errs := st.Errors()
		errText := statsValueStyle.Render(fmt.Sprintf("%d", errs))
		if errs > 0 {
			errText = errorStyle.Render(fmt.Sprintf("%d", errs))
		}
		s.WriteString(boxStyle.Render(fmt.Sprintf("%s %s   %s %s   %s %s   %s %s   %s %s",
			statsLabelStyle.Render("Frames:"), statsValueStyle.Render(fmt.Sprintf("%d", st.TotalFrames)),
			statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%d", st.ValidFrames)),
			statsLabelStyle.Render("Errors:"), errText,
			statsLabelStyle.Render("Replies:"), statsValueStyle.Render(fmt.Sprintf("%d", st.RepliesSent)),
			statsLabelStyle.Render("Keep-alives:"), statsValueStyle.Render(fmt.Sprintf("%d", st.KeepAlives)),
		)))
		s.WriteString("\n")
	}

	// Frame log
	title := "Frames:"
	if m.paused {
		title = "Frames (paused):"
	}
	s.WriteString(statsLabelStyle.Render(title))
	s.WriteString("\n")

	// Calculate how many log entries we can show
	logHeight := m.height - 22 // Reserve space for header, table and stats
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.frameLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.frameLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no frames yet)"))
	} else {
		for i := startIdx; i < len(m.frameLog); i++ {
			entry := m.frameLog[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			line := entry.direction.String() + " " + entry.message
			switch {
			case entry.isError:
				line = errorStyle.Render("✗ " + line)
			case entry.direction == cn105.DirHeatPumpToRemote:
				line = statsValueStyle.Render(line)
			}
			logContent.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), line))
		}
	}

	width := m.width - 4
	if width < 20 {
		width = 20
	}
	s.WriteString(boxStyle.Width(width).Render(logContent.String()))

	return s.String()
}
