// Package tui renders boot progress in the terminal while modules start.
//
// The Monitor is a bubbletea model fed by lifecycle events: Attach forwards
// broker messages into a running program, Update folds them into per-module
// rows, and View draws one line per module with a spinner for the module
// currently setting up or starting.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/latticeboot/internal/module"
	"github.com/kingrea/latticeboot/internal/pubsub"
)

const eventBuffer = 256

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	nameStyle    = lipgloss.NewStyle().Width(24)
	startedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	activeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#444444")).Padding(0, 1)
)

// EventMsg carries one broker message into the program.
type EventMsg struct {
	pubsub.Message
}

type row struct {
	name    string
	state   module.State
	began   time.Time
	elapsed time.Duration
	err     error
}

// Monitor is the boot progress model.
type Monitor struct {
	title   string
	spinner spinner.Model
	rows    []*row
	index   map[string]*row
	summary string
	failure error
	done    bool
	now     func() time.Time
}

// NewMonitor builds a monitor titled with the app id.
func NewMonitor(title string) *Monitor {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = activeStyle
	return &Monitor{
		title:   title,
		spinner: s,
		index:   map[string]*row{},
		now:     time.Now,
	}
}

// Attach forwards every lifecycle message from broker to p. Delivery never
// blocks the publisher; messages beyond the buffer are dropped.
func Attach(p *tea.Program, broker *pubsub.Broker) *pubsub.Subscription {
	queue := make(chan pubsub.Message, eventBuffer)
	sub := broker.SubscribeAll(func(msg pubsub.Message) {
		if !strings.HasPrefix(msg.Topic, module.TopicPrefix) {
			return
		}
		select {
		case queue <- msg:
		default:
		}
	})
	go func() {
		for msg := range queue {
			p.Send(EventMsg{Message: msg})
		}
	}()
	return sub
}

// Init implements tea.Model.
func (m *Monitor) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m *Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case EventMsg:
		if m.apply(msg.Message) {
			return m, tea.Quit
		}
	}
	return m, nil
}

// apply folds msg into the rows and reports whether boot has finished.
func (m *Monitor) apply(msg pubsub.Message) bool {
	switch ev := msg.Payload.(type) {
	case module.ModuleEvent:
		r := m.row(ev.Module.Name())
		switch msg.Topic {
		case module.TopicSettingUp:
			r.state = module.StateSettingUp
		case module.TopicSetUp:
			r.state = module.StateSetUp
		case module.TopicStarting:
			r.state = module.StateStarting
			r.began = m.now()
		case module.TopicStarted:
			r.state = module.StateStarted
			if !r.began.IsZero() {
				r.elapsed = m.now().Sub(r.began)
			}
		}
	case module.FailedEvent:
		if ev.Name != "" {
			r := m.row(ev.Name)
			r.state = module.StateFailed
			r.err = ev.Err
		}
		m.failure = ev.Err
		m.done = true
	case module.StartedEvent:
		m.summary = fmt.Sprintf("%s started in %s (run %s)", ev.Env, ev.Elapsed.Round(time.Millisecond), ev.RunID)
		m.done = true
	}
	return m.done
}

func (m *Monitor) row(name string) *row {
	if r, ok := m.index[name]; ok {
		return r
	}
	r := &row{name: name}
	m.index[name] = r
	m.rows = append(m.rows, r)
	return r
}

// Done reports whether boot finished, successfully or not.
func (m *Monitor) Done() bool {
	return m.done
}

// Err returns the boot failure, if any.
func (m *Monitor) Err() error {
	return m.failure
}

// View implements tea.Model.
func (m *Monitor) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("booting " + m.title))
	b.WriteString("\n\n")
	if len(m.rows) == 0 {
		b.WriteString(mutedStyle.Render("waiting for modules..."))
	}
	for _, r := range m.rows {
		b.WriteString(m.icon(r))
		b.WriteString(" ")
		b.WriteString(nameStyle.Render(r.name))
		b.WriteString(m.status(r))
		b.WriteString("\n")
	}
	switch {
	case m.failure != nil:
		b.WriteString("\n" + failedStyle.Render("boot failed: "+m.failure.Error()))
	case m.summary != "":
		b.WriteString("\n" + startedStyle.Render(m.summary))
	default:
		b.WriteString("\n" + mutedStyle.Render("q to hide"))
	}
	return boxStyle.Render(b.String())
}

func (m *Monitor) icon(r *row) string {
	switch r.state {
	case module.StateStarted:
		return startedStyle.Render("✓")
	case module.StateFailed:
		return failedStyle.Render("✗")
	case module.StateSettingUp, module.StateStarting:
		return m.spinner.View()
	}
	return mutedStyle.Render("·")
}

func (m *Monitor) status(r *row) string {
	switch r.state {
	case module.StateStarted:
		return startedStyle.Render(fmt.Sprintf("started %s", r.elapsed.Round(time.Millisecond)))
	case module.StateFailed:
		return failedStyle.Render("failed")
	case module.StateSettingUp, module.StateStarting:
		return activeStyle.Render(r.state.String())
	}
	return mutedStyle.Render(r.state.String())
}
