// Package tui is the live dashboard shown by `formflow watch --tui`.
//
// It follows the bubbletea model: Init schedules a snapshot of stage
// counts and ledger levels, Update folds snapshots, watcher events and
// keys into the model, and View renders it.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/leapstack-labs/formflow/internal/ledger"
	"github.com/leapstack-labs/formflow/internal/workspace"
)

const (
	refreshInterval = 2 * time.Second
	maxEvents       = 8
)

// Source provides the data the dashboard shows.
type Source interface {
	StageCounts() (map[workspace.Stage]int, error)
	LoadLedger() (*ledger.Ledger, error)
	Limits() ledger.Limits
}

// ProcessedMsg reports completed workbooks picked up by the watcher.
type ProcessedMsg struct {
	Files []string
	At    time.Time
}

// ErrMsg reports a watcher failure.
type ErrMsg struct {
	Err error
}

type snapshotMsg struct {
	counts map[workspace.Stage]int
	levels []ledger.Level
	err    error
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	stageStyle   = lipgloss.NewStyle().Padding(0, 1).Border(lipgloss.RoundedBorder())
	sectionStyle = lipgloss.NewStyle().MarginTop(1)
)

// Dashboard is the watch dashboard model.
type Dashboard struct {
	src        Source
	experiment string

	levels  table.Model
	counts  map[workspace.Stage]int
	service int
	events  []string
	err     error

	width  int
	height int
}

// New creates a dashboard over src.
func New(src Source, experiment string) *Dashboard {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Material", Width: 20},
			{Title: "Type", Width: 12},
			{Title: "Ch", Width: 3},
			{Title: "ID", Width: 8},
			{Title: "Amount", Width: 10},
			{Title: "Fill", Width: 6},
			{Title: "", Width: 8},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	return &Dashboard{src: src, experiment: experiment, levels: t}
}

// Init is called once when the program starts.
func (d *Dashboard) Init() tea.Cmd {
	return d.fetch()
}

// Update is called when a message is received.
func (d *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		d.width = msg.Width
		d.height = msg.Height
		d.levels.SetHeight(max(3, msg.Height-14))
		return d, nil

	case snapshotMsg:
		d.err = msg.err
		if msg.err == nil {
			d.counts = msg.counts
			d.setLevels(msg.levels)
		}
		return d, d.scheduleRefresh()

	case ProcessedMsg:
		for _, f := range msg.Files {
			d.events = append(d.events, fmt.Sprintf("%s  %s", msg.At.Format("15:04:05"), f))
		}
		if len(d.events) > maxEvents {
			d.events = d.events[len(d.events)-maxEvents:]
		}
		return d, d.fetch()

	case ErrMsg:
		d.err = msg.Err
		return d, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return d, tea.Quit
		case "r":
			return d, d.fetch()
		}
	}

	var cmd tea.Cmd
	d.levels, cmd = d.levels.Update(msg)
	return d, cmd
}

func (d *Dashboard) setLevels(levels []ledger.Level) {
	rows := make([]table.Row, 0, len(levels))
	d.service = 0
	for _, lv := range levels {
		fill, flag := "", ""
		if lv.Capacity > 0 {
			fill = fmt.Sprintf("%.0f%%", 100*lv.Fraction())
		}
		if lv.NeedsService() {
			flag = "SERVICE"
			d.service++
		}
		rows = append(rows, table.Row{
			lv.Material,
			string(lv.Type),
			fmt.Sprint(lv.Channel),
			lv.ID,
			fmt.Sprintf("%.4f", lv.Amount),
			fill,
			flag,
		})
	}
	d.levels.SetRows(rows)
}

// View renders the dashboard.
func (d *Dashboard) View() string {
	var b strings.Builder

	title := "formflow watch"
	if d.experiment != "" {
		title += " · " + d.experiment
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")

	stages := make([]string, 0, len(workspace.Stages))
	for _, s := range workspace.Stages {
		stages = append(stages, stageStyle.Render(fmt.Sprintf("%s %d", s, d.counts[s])))
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, stages...))
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render(titleStyle.Render("Ledger")))
	if d.service > 0 {
		b.WriteString("  " + warnStyle.Render(fmt.Sprintf("%d channel(s) need service", d.service)))
	}
	b.WriteString("\n")
	b.WriteString(d.levels.View())
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render(titleStyle.Render("Processed")))
	b.WriteString("\n")
	if len(d.events) == 0 {
		b.WriteString(mutedStyle.Render("waiting for completed workbooks"))
		b.WriteString("\n")
	}
	for _, e := range d.events {
		b.WriteString(e)
		b.WriteString("\n")
	}

	if d.err != nil {
		b.WriteString(errStyle.Render("error: " + d.err.Error()))
		b.WriteString("\n")
	}

	b.WriteString(mutedStyle.Render("r refresh · ↑/↓ scroll · q quit"))
	return b.String()
}

func (d *Dashboard) fetch() tea.Cmd {
	return func() tea.Msg {
		return d.snapshot()
	}
}

func (d *Dashboard) scheduleRefresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg {
		return d.snapshot()
	})
}

func (d *Dashboard) snapshot() snapshotMsg {
	counts, err := d.src.StageCounts()
	if err != nil {
		return snapshotMsg{err: err}
	}
	l, err := d.src.LoadLedger()
	if err != nil {
		// FE-less projects have no ledger; show stages only.
		return snapshotMsg{counts: counts}
	}
	return snapshotMsg{counts: counts, levels: ledger.Levels(l, d.src.Limits())}
}
