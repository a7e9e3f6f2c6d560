package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-copybot/internal/domain"
	"github.com/rovshanmuradov/solana-copybot/internal/export"
	"github.com/rovshanmuradov/solana-copybot/internal/storage"
	"github.com/rovshanmuradov/solana-copybot/internal/ui/style"
)

// View selects the table shown.
type View int

const (
	ViewPositions View = iota
	ViewHistory
	ViewWallets
	viewCount
)

func (v View) String() string {
	switch v {
	case ViewPositions:
		return "Positions"
	case ViewHistory:
		return "History"
	case ViewWallets:
		return "Wallets"
	}
	return "?"
}

type snapshotMsg struct {
	snap Snapshot
	err  error
}

type tickMsg time.Time

type exportMsg struct {
	path string
	err  error
}

// Dashboard is a read-only bubbletea model over the bot's storage.
type Dashboard struct {
	source   Source
	reporter PnLReporter
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger

	exporter  *export.Exporter
	exportDir string

	keys  KeyMap
	help  help.Model
	table table.Model
	view  View

	snap    Snapshot
	loaded  bool
	err     error
	loading bool
	notice  string
	width   int
	height  int
}

// NewDashboard creates the model. interval is the auto-refresh period.
func NewDashboard(source Source, reporter PnLReporter, interval time.Duration, logger *zap.Logger) *Dashboard {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	t := table.New(
		table.WithColumns(columnsFor(ViewPositions)),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(style.Base01).
		BorderBottom(true).
		Foreground(style.Magenta).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(style.Base03).
		Background(style.Cyan).
		Bold(false)
	t.SetStyles(styles)

	return &Dashboard{
		source:   source,
		reporter: reporter,
		interval: interval,
		now:      time.Now,
		logger:   logger.Named("dashboard"),
		keys:     DefaultKeyMap(),
		help:     help.New(),
		table:    t,
		view:     ViewPositions,
	}
}

// EnableExport turns on the export key. Files land in dir.
func (m *Dashboard) EnableExport(exporter *export.Exporter, dir string) {
	m.exporter = exporter
	m.exportDir = dir
}

// Init implements tea.Model.
func (m *Dashboard) Init() tea.Cmd {
	return tea.Batch(m.refresh(), m.tick())
}

func (m *Dashboard) refresh() tea.Cmd {
	m.loading = true
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		snap, err := Load(ctx, m.source, m.reporter, m.now())
		return snapshotMsg{snap: snap, err: err}
	}
}

func (m *Dashboard) export() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		results, err := m.source.ListTradeResults(ctx, storage.ResultFilter{})
		if err != nil {
			return exportMsg{err: fmt.Errorf("failed to list trades: %w", err)}
		}
		path, err := m.exporter.Export(results, export.Options{Format: export.FormatCSV, OutputDir: m.exportDir})
		return exportMsg{path: path, err: err}
	}
}

func (m *Dashboard) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update implements tea.Model.
func (m *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		// Header, PnL panel, tabs, status and help take about 12 lines.
		if h := msg.Height - 12; h > 3 {
			m.table.SetHeight(h)
		}
		m.rebuild()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Refresh):
			return m, m.refresh()
		case key.Matches(msg, m.keys.Export):
			if m.exporter == nil {
				return m, nil
			}
			m.notice = "exporting..."
			return m, m.export()
		case key.Matches(msg, m.keys.Tab):
			m.view = (m.view + 1) % viewCount
			m.rebuild()
			return m, nil
		case key.Matches(msg, m.keys.ShiftTab):
			m.view = (m.view + viewCount - 1) % viewCount
			m.rebuild()
			return m, nil
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		}

	case snapshotMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			m.logger.Warn("Dashboard refresh failed", zap.Error(msg.err))
			return m, nil
		}
		m.err = nil
		m.snap = msg.snap
		m.loaded = true
		m.rebuild()
		return m, nil

	case exportMsg:
		if msg.err != nil {
			m.notice = "export failed: " + msg.err.Error()
			m.logger.Warn("Export failed", zap.Error(msg.err))
		} else {
			m.notice = "exported " + msg.path
		}
		return m, nil

	case tickMsg:
		if m.loading {
			return m, m.tick()
		}
		return m, tea.Batch(m.refresh(), m.tick())
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// rebuild swaps columns and rows for the current view. Rows are cleared
// first so they never have fewer cells than the columns.
func (m *Dashboard) rebuild() {
	m.table.SetRows(nil)
	m.table.SetColumns(columnsFor(m.view))
	m.table.SetRows(rowsFor(m.view, m.snap))
	if m.table.Cursor() >= len(m.table.Rows()) {
		m.table.SetCursor(0)
	}
}

// View implements tea.Model.
func (m *Dashboard) View() string {
	var b strings.Builder

	b.WriteString(style.Title.Render("🪞 Solana Copy Bot"))
	b.WriteString("\n")
	b.WriteString(style.Panel.Render(m.pnlLine()))
	b.WriteString("\n")
	b.WriteString(m.tabs())
	b.WriteString("\n")
	b.WriteString(m.table.View())
	b.WriteString("\n")
	b.WriteString(m.status())
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m *Dashboard) pnlLine() string {
	if !m.loaded {
		return style.Muted.Render("loading...")
	}
	s := m.snap.PnL
	parts := []string{
		"Realized " + style.PnL(s.Realized).Render(s.Realized.Round(6).String()+" SOL"),
		"Unrealized " + style.PnL(s.Unrealized).Render(s.Unrealized.Round(6).String()+" SOL"),
		"Total " + style.PnL(s.Total).Render(s.Total.Round(6).String()+" SOL"),
		fmt.Sprintf("Open %d/%d", s.OpenPositions, s.Positions),
		fmt.Sprintf("Win %.0f%% (%dW/%dL)", s.WinRate*100, s.Wins, s.Losses),
	}
	for _, o := range s.Others {
		parts = append(parts, domain.MintSymbol(o.QuoteMint)+" "+
			style.PnL(o.Total).Render(o.Total.Round(2).String()))
	}
	line := strings.Join(parts, "  │  ")
	if s.MarkUnavailable {
		line += "  " + style.Warn.Render("⚠ partial marks")
	}
	return line
}

func (m *Dashboard) tabs() string {
	tabs := make([]string, 0, viewCount)
	for v := View(0); v < viewCount; v++ {
		label := fmt.Sprintf("%s (%d)", v, m.count(v))
		if v == m.view {
			tabs = append(tabs, style.ActiveTab.Render(label))
		} else {
			tabs = append(tabs, style.Tab.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m *Dashboard) count(v View) int {
	switch v {
	case ViewPositions:
		return len(m.snap.Live)
	case ViewHistory:
		return len(m.snap.Closed)
	case ViewWallets:
		return len(m.snap.Wallets)
	}
	return 0
}

func (m *Dashboard) status() string {
	if m.err != nil {
		return style.Error.Render("✗ " + m.err.Error())
	}
	if !m.loaded {
		return style.Muted.Render("waiting for first refresh")
	}
	line := "updated " + m.snap.At.Format("15:04:05")
	if m.notice != "" {
		line += "  " + m.notice
	}
	return style.Muted.Render(line)
}

func columnsFor(v View) []table.Column {
	const token = 12
	switch v {
	case ViewHistory:
		return []table.Column{
			{Title: "ID", Width: 10},
			{Title: "Token", Width: token},
			{Title: "Source", Width: 12},
			{Title: "Size", Width: 16},
			{Title: "Entry", Width: 14},
			{Title: "Cost", Width: 12},
			{Title: "Closed", Width: 16},
		}
	case ViewWallets:
		return []table.Column{
			{Title: "Name", Width: 16},
			{Title: "Address", Width: 44},
			{Title: "Copy", Width: 6},
			{Title: "Alerts", Width: 10},
			{Title: "Last tx", Width: 14},
		}
	default:
		return []table.Column{
			{Title: "ID", Width: 10},
			{Title: "Token", Width: token},
			{Title: "Source", Width: 12},
			{Title: "Remaining", Width: 16},
			{Title: "Entry", Width: 14},
			{Title: "TP %", Width: 6},
			{Title: "SL %", Width: 6},
			{Title: "Status", Width: 8},
		}
	}
}

func rowsFor(v View, snap Snapshot) []table.Row {
	switch v {
	case ViewHistory:
		rows := make([]table.Row, 0, len(snap.Closed))
		for _, p := range snap.Closed {
			closed := ""
			if p.ClosedAt != nil {
				closed = p.ClosedAt.Format("01-02 15:04")
			}
			rows = append(rows, table.Row{
				shortID(p.ID), domain.ShortAddress(p.Token), sourceLabel(p.Source),
				p.EntrySize.String(), p.EntryPrice.Round(9).String(), p.EntryCost.String(), closed,
			})
		}
		return rows
	case ViewWallets:
		rows := make([]table.Row, 0, len(snap.Wallets))
		for _, w := range snap.Wallets {
			enabled := "on"
			if !w.Enabled {
				enabled = "off"
			}
			rows = append(rows, table.Row{
				w.DisplayName(), w.Address, enabled, alerts(w.Overrides), domain.ShortAddress(w.Cursor.Signature),
			})
		}
		return rows
	default:
		rows := make([]table.Row, 0, len(snap.Live))
		for _, p := range snap.Live {
			rows = append(rows, table.Row{
				shortID(p.ID), domain.ShortAddress(p.Token), sourceLabel(p.Source),
				p.RemainingSize.String(), p.EntryPrice.Round(9).String(),
				p.TakeProfitPct.String(), p.StopLossPct.String(), string(p.Status),
			})
		}
		return rows
	}
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func sourceLabel(s string) string {
	if s == domain.SourceManual {
		return s
	}
	return domain.ShortAddress(s)
}

func alerts(o domain.WalletOverrides) string {
	switch {
	case o.AlertOnBuy && o.AlertOnSell:
		return "buy,sell"
	case o.AlertOnBuy:
		return "buy"
	case o.AlertOnSell:
		return "sell"
	}
	return "-"
}
