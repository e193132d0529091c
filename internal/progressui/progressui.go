// Package progressui is the terminal progress view: a bubbletea model that
// renders per-task status and aggregate speed from the same wire events an
// external language binding would receive.
package progressui

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"tthsd/internal/event"
	"tthsd/internal/sink"
)

var (
	filenameStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#00d7af")).Bold(true)
	speedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#5fafff")).Bold(true)
	etaStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffaf00")).Bold(true)
	pendingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#767676"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5f5f")).Bold(true)
	msgStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffff00"))
)

// taskStatus is one row's lifecycle state, driven by startOne/endOne/err.
type taskStatus int

const (
	statusPending taskStatus = iota
	statusActive
	statusDone
	statusFailed
)

type taskRow struct {
	id       string
	showName string
	index    int
	total    int
	status   taskStatus
	errText  string
}

// Model is the bubbletea model. It never reaches into downloader internals;
// it only reacts to startOne/update/endOne/msg/err wire events, the same
// ones a remote WebSocket/TCP binding would see.
type Model struct {
	rows      []taskRow
	byID      map[string]int
	bar       progress.Model
	total     int64
	completed int64
	curSpeed  float64
	avgSpeed  float64
	pct       float64
	elapsed   float64
	lastMsg   string
	lastErr   string
	done      bool
	width     int
}

// New constructs an empty Model.
func New() Model {
	bar := progress.New(progress.WithGradient("#00d7af", "#5fafff"))
	bar.Width = 50
	return Model{bar: bar, byID: make(map[string]int), width: 80}
}

// Init starts the periodic repaint tick.
func (m Model) Init() tea.Cmd { return tick() }

func tick() tea.Cmd {
	return tea.Tick(150*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

type tickMsg time.Time

// eventMsg is what CallbackSink forwards to the running tea.Program: a
// parsed Event plus its free-form data payload, exactly as delivered to an
// in-process callback sink.
type eventMsg struct {
	Event event.Event
	Data  map[string]any
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		if m.done {
			return m, tea.Quit
		}
		return m, tick()

	case eventMsg:
		m = m.applyEvent(msg.Event, msg.Data)
		if m.done {
			return m, tea.Sequence(tea.Printf("%s", m.View()), tea.Quit)
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = m.width - 20
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m Model) applyEvent(e event.Event, data map[string]any) Model {
	switch e.Type {
	case event.StartOne:
		idx, total := intField(data, "Index"), intField(data, "Total")
		row := taskRow{id: e.ID, showName: stringField(data, "ShowName"), index: idx, total: total, status: statusActive}
		if i, ok := m.byID[e.ID]; ok {
			m.rows[i] = row
		} else {
			m.byID[e.ID] = len(m.rows)
			m.rows = append(m.rows, row)
		}

	case event.Update:
		m.total = int64Field(data, "total_bytes")
		m.completed = int64Field(data, "downloaded_bytes")
		m.curSpeed = floatField(data, "current_speed_bps")
		m.avgSpeed = floatField(data, "average_speed_bps")
		m.elapsed = floatField(data, "elapsed_seconds")
		m.pct = floatField(data, "progress_percentage")

	case event.EndOne:
		if i, ok := m.byID[e.ID]; ok && m.rows[i].status != statusFailed {
			m.rows[i].status = statusDone
		}

	case event.Err:
		if i, ok := m.byID[e.ID]; ok {
			m.rows[i].status = statusFailed
			m.rows[i].errText = stringField(data, "Error")
		}
		m.lastErr = stringField(data, "Error")

	case event.Msg:
		m.lastMsg = stringField(data, "Text")

	case event.End:
		m.done = true
	}
	return m
}

func (m Model) View() string {
	var b strings.Builder

	frac := m.pct / 100.0
	pct := m.pct
	if pct < 0 {
		pct = 0
	} else if pct > 100 {
		pct = 100
	}
	fmt.Fprintf(&b, "%s %.2f%%\n", m.bar.ViewAs(frac), pct)
	fmt.Fprintf(&b, "completed: %s / %s   speed: %s (avg %s)   elapsed: %s\n",
		formatBytes(m.completed), formatBytes(m.total),
		speedStyle.Render(formatRate(m.curSpeed)),
		speedStyle.Render(formatRate(m.avgSpeed)),
		etaStyle.Render(formatElapsed(m.elapsed)),
	)

	rows := make([]taskRow, len(m.rows))
	copy(rows, m.rows)
	sort.Slice(rows, func(i, j int) bool { return rows[i].index < rows[j].index })

	for _, r := range rows {
		label := fmt.Sprintf("[%d/%d] %s", r.index, r.total, r.showName)
		switch r.status {
		case statusDone:
			fmt.Fprintf(&b, "%s done\n", filenameStyle.Render(label))
		case statusFailed:
			fmt.Fprintf(&b, "%s %s\n", errorStyle.Render(label), errorStyle.Render(r.errText))
		case statusActive:
			fmt.Fprintf(&b, "%s running\n", label)
		default:
			fmt.Fprintf(&b, "%s\n", pendingStyle.Render(label))
		}
	}

	if m.lastMsg != "" {
		fmt.Fprintf(&b, "%s\n", msgStyle.Render(m.lastMsg))
	}
	return b.String()
}

// Controller wires a running tea.Program to the event stream delivered
// through an InProcessCallback sink.
type Controller struct {
	program *tea.Program
	runDone chan error
}

// NewController returns a Controller whose CallbackSink is safe to wire
// into a session.Config before Start is called; events delivered before
// Start launches the program are silently dropped, the same as any other
// caller-must-not-block in-process sink.
func NewController() *Controller { return &Controller{} }

// CallbackSink returns the sink.CallbackFunc the download session should be
// configured with. It parses the wire JSON and forwards it as a tea.Msg.
func (c *Controller) CallbackSink() sink.CallbackFunc {
	return func(eventJSON, dataJSON string) {
		if c.program == nil {
			return
		}
		var e event.Event
		if err := json.Unmarshal([]byte(eventJSON), &e); err != nil {
			return
		}
		var data map[string]any
		_ = json.Unmarshal([]byte(dataJSON), &data)
		c.program.Send(eventMsg{Event: e, Data: data})
	}
}

// Start launches the bubbletea program in the background and returns once
// CallbackSink is ready to forward events, so the caller can start the
// download only after the progress view is guaranteed not to drop its
// opening "start"/"startOne" events.
func (c *Controller) Start() {
	c.program = tea.NewProgram(New())
	c.runDone = make(chan error, 1)
	go func() {
		_, err := c.program.Run()
		c.runDone <- err
	}()
}

// Wait blocks until the program quits (on an "end" event or user
// interrupt) and returns any error it exited with.
func (c *Controller) Wait() error {
	return <-c.runDone
}

func stringField(data map[string]any, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func intField(data map[string]any, key string) int {
	switch v := data[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func int64Field(data map[string]any, key string) int64 {
	switch v := data[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	}
	return 0
}

func floatField(data map[string]any, key string) float64 {
	if v, ok := data[key].(float64); ok {
		return v
	}
	return 0
}

// formatBytes renders a byte count in binary (1024-based) units for the
// progress display.
func formatBytes(n int64) string {
	units := [...]string{"B", "KB", "MB", "GB", "TB"}
	f := float64(n)
	i := 0
	for f >= 1024 && i < len(units)-1 {
		f /= 1024
		i++
	}
	if i == 0 {
		return fmt.Sprintf("%d %s", n, units[i])
	}
	return fmt.Sprintf("%.2f %s", f, units[i])
}

// formatRate renders a bytes-per-second rate as "X.XX MB/s".
func formatRate(bytesPerSecond float64) string {
	if bytesPerSecond <= 0 {
		return "0.00 MB/s"
	}
	return fmt.Sprintf("%.2f MB/s", bytesPerSecond/(1024*1024))
}

// formatElapsed renders a second count using Go's compact duration
// notation ("1h2m3s").
func formatElapsed(seconds float64) string {
	return (time.Duration(seconds) * time.Second).Round(time.Second).String()
}
