// Package app is the root Bubble Tea model: a status bar over the device
// console, with overlays for the device card and the session log.
package app

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dids/devterm/internal/client"
	"github.com/dids/devterm/internal/terminal"
	"github.com/dids/devterm/internal/theme"
	"github.com/dids/devterm/internal/views/console"
	"github.com/dids/devterm/internal/views/debug"
	"github.com/dids/devterm/internal/views/device"
	"github.com/dids/devterm/internal/views/status"
)

// Overlay identifies which modal is active.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayDevice
	OverlayLog
)

const (
	eventBuffer  = 64
	chromeHeight = 3 // status bar with its border, plus the help line
	cardWidth    = 72
)

// Messages delivered from the session goroutine.
type (
	screenMsg struct{}
	logMsg    struct{}
	stateMsg  struct{ state terminal.ConnState }
	closedMsg struct{}
	tickMsg   time.Time
)

// Options configures the console session.
type Options struct {
	TopicPrefix string
	Destination string
	// Log receives the process log for the log overlay. A new one is
	// created when nil.
	Log *debug.Log
}

// Model is the root Bubble Tea model.
type Model struct {
	session *terminal.Session
	resize  *terminal.ResizeNotifier
	events  chan tea.Msg
	ctx     context.Context
	cancel  context.CancelFunc

	keys    KeyMap
	width   int
	height  int
	overlay Overlay

	// Sub-views.
	console   console.Model
	statusBar status.Model
	card      device.Model
	debug     debug.Model

	// Whether a tick chain is running for the status pulse.
	animating bool
}

// New creates the root model and its session. The session starts
// connecting when the program starts.
func New(d client.Device, broker terminal.Broker, opts Options) (Model, error) {
	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan tea.Msg, eventBuffer)

	logs := opts.Log
	if logs == nil {
		logs = debug.NewLog(nil)
	}
	logs.SetOnChange(func() { trySend(events, logMsg{}) })

	screen := console.NewScreen(func() { trySend(events, screenMsg{}) })
	resize := terminal.NewResizeNotifier()

	sessOpts := []terminal.Option{
		terminal.WithResizer(resize),
		terminal.WithCloseFunc(func() { send(ctx, events, closedMsg{}) }),
		terminal.WithStateFunc(func(st terminal.ConnState) { send(ctx, events, stateMsg{state: st}) }),
	}
	if opts.TopicPrefix != "" {
		sessOpts = append(sessOpts, terminal.WithTopicPrefix(opts.TopicPrefix))
	}
	if opts.Destination != "" {
		sessOpts = append(sessOpts, terminal.WithDestination(opts.Destination))
	}
	session, err := terminal.New(d, broker, screen, sessOpts...)
	if err != nil {
		cancel()
		return Model{}, err
	}

	return Model{
		session:   session,
		resize:    resize,
		events:    events,
		ctx:       ctx,
		cancel:    cancel,
		keys:      DefaultKeyMap(),
		console:   console.New(screen),
		statusBar: status.New(d),
		card:      device.New(d),
		debug:     debug.New(logs),
		animating: true,
	}, nil
}

// Session returns the model's terminal session.
func (m Model) Session() *terminal.Session { return m.session }

// Init opens the session and starts listening for its events.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.start(), m.waitEvent(), tick())
}

func (m Model) start() tea.Cmd {
	return func() tea.Msg {
		m.session.Open()
		go m.session.Run(m.ctx)
		return nil
	}
}

func (m Model) waitEvent() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-m.events:
			return msg
		case <-m.ctx.Done():
			return nil
		}
	}
}

func tick() tea.Cmd {
	return tea.Tick(status.TickInterval(), func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.console.SetSize(msg.Width, m.bodyHeight())
		m.primeCard()
		m.resize.Notify()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case screenMsg:
		m.console.Sync()
		return m, m.waitEvent()

	case logMsg:
		return m, m.waitEvent()

	case stateMsg:
		prev := m.statusBar.State
		m.statusBar.State = msg.state.String()
		log.Printf("state %s -> %s", prev, m.statusBar.State)
		cmds := []tea.Cmd{m.waitEvent()}
		if m.statusBar.Animating() && !m.animating {
			m.animating = true
			cmds = append(cmds, tick())
		}
		return m, tea.Batch(cmds...)

	case tickMsg:
		if !m.statusBar.Animating() {
			m.animating = false
			return m, nil
		}
		m.statusBar.Tick()
		return m, tick()

	case closedMsg:
		m.cancel()
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.session.Close()
		m.cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Device):
		m.toggle(OverlayDevice)
		return m, nil

	case key.Matches(msg, m.keys.Log):
		m.toggle(OverlayLog)
		return m, nil

	case key.Matches(msg, m.keys.PageUp):
		if m.overlay == OverlayLog {
			m.debug.ScrollUp(10)
		} else {
			m.console.PageUp()
		}
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		if m.overlay == OverlayLog {
			m.debug.ScrollDown(10)
		} else {
			m.console.PageDown()
		}
		return m, nil
	}

	if m.overlay != OverlayNone {
		if key.Matches(msg, m.keys.Close) {
			m.toggle(m.overlay)
		}
		return m, nil
	}
	if data, ok := keyData(msg); ok {
		m.session.Input(data)
	}
	return m, nil
}

func (m *Model) toggle(o Overlay) {
	if m.overlay == o {
		m.overlay = OverlayNone
	} else {
		m.overlay = o
		m.debug.Offset = 0
		m.primeCard()
	}
	m.console.Focused = m.overlay == OverlayNone
	m.console.Sync()
}

// primeCard renders the device card ahead of View so the cache survives.
func (m *Model) primeCard() {
	if m.overlay == OverlayDevice && m.width > 0 {
		m.card.View(min(m.width, cardWidth), m.bodyHeight())
	}
}

func (m Model) bodyHeight() int {
	return max(1, m.height-chromeHeight)
}

// View renders the UI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	var body string
	h := m.bodyHeight()
	switch m.overlay {
	case OverlayDevice:
		body = lipgloss.Place(m.width, h, lipgloss.Center, lipgloss.Center,
			m.card.View(min(m.width, cardWidth), h))
	case OverlayLog:
		body = lipgloss.Place(m.width, h, lipgloss.Center, lipgloss.Center,
			m.debug.View(m.width, h))
	default:
		body = m.console.View()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.statusBar.View(),
		body,
		theme.StyleDimmed.Render(m.helpLine()),
	)
}

func (m Model) helpLine() string {
	bindings := []key.Binding{m.keys.Quit, m.keys.Device, m.keys.Log, m.keys.PageUp, m.keys.PageDown}
	if m.overlay != OverlayNone {
		bindings = append(bindings, m.keys.Close)
	}
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		parts = append(parts, h.Key+":"+h.Desc)
	}
	return " " + strings.Join(parts, "  ")
}

// trySend delivers msg unless the buffer is full. Used for redraw hints,
// where any one pending message is as good as several.
func trySend(ch chan<- tea.Msg, msg tea.Msg) {
	select {
	case ch <- msg:
	default:
	}
}

func send(ctx context.Context, ch chan<- tea.Msg, msg tea.Msg) {
	select {
	case ch <- msg:
	case <-ctx.Done():
	}
}
