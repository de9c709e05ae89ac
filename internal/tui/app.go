package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"agentdeck/internal/api"
	"agentdeck/internal/engine"
	"agentdeck/internal/model"
	"agentdeck/internal/open"
)

// — state ———————————————————————————————————————————————————————————————————

type appState int

const (
	stateNormal appState = iota
	stateNewRun
	stateLoginToken
	stateLoginOrg
)

// — styles ——————————————————————————————————————————————————————————————————

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginLeft(2)

	dimStyle  = lipgloss.NewStyle().Faint(true)
	boldStyle = lipgloss.NewStyle().Bold(true)
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	blueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))

	helpStyle = lipgloss.NewStyle().
			Faint(true).
			PaddingLeft(2)

	detailHeadStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	labelStyle = lipgloss.NewStyle().Faint(true)

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("205")).
			Padding(1, 3).
			Width(58)
)

// — spinner —————————————————————————————————————————————————————————————————

var spinnerFrames = []string{"|", "/", "-", "\\"}

type tickMsg struct{}

func tickCmd() tea.Cmd {
	return tea.Tick(120*time.Millisecond, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

type refreshTickMsg struct{}

func refreshTickCmd(every time.Duration) tea.Cmd {
	return tea.Tick(every, func(time.Time) tea.Msg {
		return refreshTickMsg{}
	})
}

// — messages ————————————————————————————————————————————————————————————————

type recordsLoadedMsg struct {
	records []engine.Record
	err     error
}

type runCreatedMsg struct {
	run *model.AgentRun
	err error
}

type loginDoneMsg struct {
	err error
}

type diffExitedMsg struct {
	err error
}

// — list item ———————————————————————————————————————————————————————————————

type runItem struct {
	rec         engine.Record
	spinnerChar string
}

func (i runItem) Title() string {
	return iconGlyph(i.rec.Icon, i.spinnerChar) + " " + i.rec.Title
}

func (i runItem) Description() string { return i.rec.Description }
func (i runItem) FilterValue() string { return i.rec.Title }

// iconGlyph renders a record icon as a single coloured character. The
// spinner kind animates with the shared frame counter.
func iconGlyph(ic engine.Icon, spinnerChar string) string {
	var glyph string
	switch ic.Kind {
	case engine.IconSuccess:
		glyph = "✓"
	case engine.IconSpinner:
		glyph = spinnerChar
	case engine.IconError:
		glyph = "✗"
	case engine.IconClock:
		glyph = "◷"
	default:
		glyph = "·"
	}
	switch ic.Color {
	case engine.ColorGreen:
		return okStyle.Render(glyph)
	case engine.ColorBlue:
		return blueStyle.Render(glyph)
	case engine.ColorRed:
		return errStyle.Render(glyph)
	case engine.ColorYellow:
		return warnStyle.Render(glyph)
	default:
		return glyph
	}
}

// — session port ————————————————————————————————————————————————————————————

// Session is what the dashboard needs from the credential store.
type Session interface {
	IsAuthenticated() bool
	Login(token string, orgID int) error
	Logout() error
}

// — model ———————————————————————————————————————————————————————————————————

type Model struct {
	list    list.Model
	records []engine.Record
	engine  *engine.Engine
	session Session

	width   int
	height  int
	loading bool
	// statusErr is the last surfaced fetch/create error; the stale record
	// list stays visible underneath it.
	statusErr string
	authDead  bool // statusErr means the session ended, not that a fetch failed

	state        appState
	input        textinput.Model
	inputErr     string
	pendingToken string
	spinnerFrame int

	webURL       string
	autoRefresh  bool
	refreshEvery time.Duration
}

func New(eng *engine.Engine, session Session, webURL string, autoRefresh bool, refreshEvery time.Duration) Model {
	delegate := list.NewDefaultDelegate()

	l := list.New([]list.Item{}, delegate, 0, 0)
	l.Title = "Agent Runs"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	l.Styles.Title = titleStyle

	ti := textinput.New()
	ti.CharLimit = 400

	return Model{
		list:         l,
		engine:       eng,
		session:      session,
		loading:      session.IsAuthenticated(),
		input:        ti,
		webURL:       webURL,
		autoRefresh:  autoRefresh,
		refreshEvery: refreshEvery,
	}
}

// — commands ————————————————————————————————————————————————————————————————

func (m Model) fetchRecords() tea.Cmd {
	eng := m.engine
	return func() tea.Msg {
		records, err := eng.Refresh(context.Background())
		return recordsLoadedMsg{records: records, err: err}
	}
}

func (m Model) createRunCmd(prompt string) tea.Cmd {
	eng := m.engine
	return func() tea.Msg {
		run, err := eng.CreateRun(context.Background(), prompt, "", 0)
		return runCreatedMsg{run: run, err: err}
	}
}

func (m Model) loginCmd(token string, orgID int) tea.Cmd {
	session := m.session
	return func() tea.Msg {
		return loginDoneMsg{err: session.Login(token, orgID)}
	}
}

func openURLCmd(url string) tea.Cmd {
	return func() tea.Msg {
		open.URL(url)
		return nil
	}
}

func openActionCmd(action engine.Action) tea.Cmd {
	switch action.Kind {
	case engine.ActionOpenPRDiff:
		if action.LocalPath != "" && open.GHAvailable() {
			return tea.ExecProcess(open.PRDiffCmd(action.PR, action.LocalPath), func(err error) tea.Msg {
				return diffExitedMsg{err: err}
			})
		}
		return openURLCmd(action.URL)
	case engine.ActionOpenURL:
		return openURLCmd(action.URL)
	default:
		return nil
	}
}

// buildItems rebuilds the list items with the current spinner frame.
func (m *Model) buildItems() {
	char := spinnerFrames[m.spinnerFrame]
	items := make([]list.Item, len(m.records))
	for i, rec := range m.records {
		items[i] = runItem{rec: rec, spinnerChar: char}
	}
	m.list.SetItems(items)
}

// — tea.Model ———————————————————————————————————————————————————————————————

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tickCmd()}
	if m.session.IsAuthenticated() {
		cmds = append(cmds, m.fetchRecords())
	}
	if m.autoRefresh {
		cmds = append(cmds, refreshTickCmd(m.refreshEvery))
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		lw, lh := m.listDimensions()
		m.list.SetSize(lw, lh)
		return m, nil

	case tickMsg:
		m.spinnerFrame = (m.spinnerFrame + 1) % len(spinnerFrames)
		if !m.loading {
			m.buildItems()
		}
		return m, tickCmd()

	case refreshTickMsg:
		cmds := []tea.Cmd{refreshTickCmd(m.refreshEvery)}
		if m.session.IsAuthenticated() {
			cmds = append(cmds, m.fetchRecords())
		}
		return m, tea.Batch(cmds...)

	case recordsLoadedMsg:
		m.loading = false
		if msg.err != nil {
			// Stale-but-available: keep whatever list we had, surface the
			// error in the status line.
			m.statusErr, m.authDead = describeError(msg.err)
			if msg.records != nil {
				m.records = msg.records
			}
			m.buildItems()
			return m, nil
		}
		m.statusErr = ""
		m.authDead = false
		m.records = msg.records
		m.buildItems()
		return m, nil

	case runCreatedMsg:
		if msg.err != nil {
			m.inputErr = msg.err.Error()
			return m, nil
		}
		m.state = stateNormal
		m.inputErr = ""
		m.input.Reset()
		m.input.Blur()
		// CreateRun already refreshed the engine; just pick up the result.
		m.records = m.engine.Records()
		m.buildItems()
		if msg.run != nil && msg.run.WebURL != "" {
			return m, openURLCmd(msg.run.WebURL)
		}
		return m, nil

	case loginDoneMsg:
		if msg.err != nil {
			m.inputErr = msg.err.Error()
			return m, nil
		}
		m.state = stateNormal
		m.inputErr = ""
		m.pendingToken = ""
		m.input.Reset()
		m.input.Blur()
		m.statusErr = ""
		m.authDead = false
		m.loading = true
		return m, m.fetchRecords()

	case diffExitedMsg:
		// Back from the pager; pick up any state the run gained meanwhile.
		return m, m.fetchRecords()
	}

	switch m.state {
	case stateNewRun:
		return m.updateNewRun(msg)
	case stateLoginToken, stateLoginOrg:
		return m.updateLogin(msg)
	default:
		return m.updateNormal(msg)
	}
}

func (m Model) updateNormal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "r":
			if m.session.IsAuthenticated() {
				m.loading = len(m.records) == 0
				return m, m.fetchRecords()
			}
			return m, nil
		case "n":
			if !m.session.IsAuthenticated() {
				return m.beginLogin()
			}
			m.state = stateNewRun
			m.inputErr = ""
			m.input.Placeholder = "e.g. Fix the bug in the login component"
			m.input.EchoMode = textinput.EchoNormal
			m.input.Reset()
			m.input.Focus()
			return m, textinput.Blink
		case "l":
			return m.beginLogin()
		case "o":
			if rec := m.selectedRecord(); rec != nil && rec.Run != nil {
				if action := m.engine.ResolveClick(rec.Run); action.URL != "" {
					return m, openURLCmd(action.URL)
				}
			}
			return m, nil
		case "enter":
			if rec := m.selectedRecord(); rec != nil && rec.Run != nil {
				return m, openActionCmd(m.engine.ResolveClick(rec.Run))
			}
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) beginLogin() (tea.Model, tea.Cmd) {
	m.state = stateLoginToken
	m.inputErr = ""
	m.pendingToken = ""
	m.input.Placeholder = "API token from " + m.webURL + "/cli-token"
	m.input.EchoMode = textinput.EchoPassword
	m.input.Reset()
	m.input.Focus()
	return m, textinput.Blink
}

func (m Model) updateNewRun(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			m.state = stateNormal
			m.inputErr = ""
			m.input.Blur()
			return m, nil
		case "enter":
			prompt := strings.TrimSpace(m.input.Value())
			if prompt == "" {
				m.inputErr = "prompt cannot be empty"
				return m, nil
			}
			m.inputErr = ""
			return m, m.createRunCmd(prompt)
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateLogin(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			m.state = stateNormal
			m.inputErr = ""
			m.pendingToken = ""
			m.input.Blur()
			return m, nil
		case "enter":
			value := strings.TrimSpace(m.input.Value())
			if m.state == stateLoginToken {
				if value == "" {
					m.inputErr = "token cannot be empty"
					return m, nil
				}
				m.pendingToken = value
				m.state = stateLoginOrg
				m.inputErr = ""
				m.input.Placeholder = "organization id, e.g. 42"
				m.input.EchoMode = textinput.EchoNormal
				m.input.Reset()
				return m, nil
			}
			orgID, err := strconv.Atoi(value)
			if err != nil || orgID <= 0 {
				m.inputErr = "organization id must be a positive number"
				return m, nil
			}
			m.inputErr = ""
			return m, m.loginCmd(m.pendingToken, orgID)
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.width == 0 {
		return ""
	}

	if !m.session.IsAuthenticated() && m.state == stateNormal {
		return m.renderLoggedOut()
	}

	if m.loading {
		return lipgloss.NewStyle().Padding(1, 2).Render("Loading agent runs…")
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top, m.list.View(), m.renderDetail())
	base := lipgloss.JoinVertical(lipgloss.Left, body, m.renderStatus(), m.renderHelp())

	switch m.state {
	case stateNewRun:
		return m.renderNewRunOver(base)
	case stateLoginToken, stateLoginOrg:
		return m.renderLoginOver(base)
	}
	return base
}

// — layout helpers ——————————————————————————————————————————————————————————

func (m Model) listDimensions() (width, height int) {
	return m.width / 2, m.height - 3
}

func (m Model) renderLoggedOut() string {
	var b strings.Builder
	b.WriteString(detailHeadStyle.Render("Agent Runs") + "\n\n")
	b.WriteString("You are not logged in.\n\n")
	b.WriteString("Grab an API token from " + boldStyle.Render(m.webURL+"/cli-token") + "\n")
	b.WriteString("then press " + boldStyle.Render("l") + " to log in.\n")
	base := lipgloss.NewStyle().Padding(1, 2).Render(b.String())
	return lipgloss.JoinVertical(lipgloss.Left, base, m.renderHelp())
}

func (m Model) renderDetail() string {
	lw, _ := m.listDimensions()
	dw := m.width - lw
	dh := m.height - 3

	style := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), false, false, false, true).
		PaddingLeft(3).
		PaddingRight(2).
		Width(dw - 1).
		Height(dh)

	// Width of inner text area: box width minus padding
	contentWidth := (dw - 1) - 3 - 2

	rec := m.selectedRecord()
	if rec == nil {
		return style.Render(dimStyle.Render("No agent runs"))
	}
	if rec.Placeholder {
		return style.Render(dimStyle.Render(rec.Title + "\n" + rec.Description))
	}

	run := rec.Run
	row := func(lbl, val string) string {
		return labelStyle.Render(lbl) + val + "\n"
	}

	sep := dimStyle.Render(strings.Repeat("─", max(contentWidth, 1)))

	var b strings.Builder
	b.WriteString(detailHeadStyle.Render(truncate(rec.Title, contentWidth)) + "\n\n")
	b.WriteString(row("ID       ", fmt.Sprintf("%d", run.ID)))
	b.WriteString(row("Status   ", statusLabel(run.Status)))
	b.WriteString(row("Created  ", run.CreatedAt.Local().Format("2006-01-02 15:04")))
	if run.Repository != nil && run.Repository.Name != "" {
		b.WriteString(row("Repo     ", run.Repository.Name))
	}
	b.WriteString("\n" + sep + "\n\n")

	if pr := run.FirstPR(); pr != nil {
		b.WriteString(renderPR(pr, run.PRCount(), contentWidth))
	} else {
		b.WriteString(dimStyle.Render("No PRs") + "\n")
	}

	if run.WebURL != "" {
		b.WriteString("\n" + dimStyle.Render(truncate(run.WebURL, contentWidth)) + "\n")
	}

	return style.Render(b.String())
}

func renderPR(pr *model.PullRequest, count, contentWidth int) string {
	row := func(lbl, val string) string {
		return labelStyle.Render(lbl) + val + "\n"
	}

	var b strings.Builder
	b.WriteString(row("PR       ", fmt.Sprintf("#%d", pr.Number)))
	b.WriteString("         " + truncate(pr.Title, contentWidth-9) + "\n")
	if pr.RepoFullName != "" {
		b.WriteString(row("Repo     ", pr.RepoFullName))
	}
	if count > 1 {
		b.WriteString(dimStyle.Render(fmt.Sprintf("         +%d more", count-1)) + "\n")
	}
	return b.String()
}

func statusLabel(status string) string {
	switch ic := engine.StatusIcon(status); ic.Color {
	case engine.ColorGreen:
		return okStyle.Render(status)
	case engine.ColorBlue:
		return blueStyle.Render(status)
	case engine.ColorRed:
		return errStyle.Render(status)
	case engine.ColorYellow:
		return warnStyle.Render(status)
	default:
		return status
	}
}

func (m Model) renderStatus() string {
	if m.statusErr == "" {
		return ""
	}
	if m.authDead {
		return helpStyle.Render(warnStyle.Render(m.statusErr))
	}
	return helpStyle.Render(errStyle.Render(m.statusErr))
}

func (m Model) renderHelp() string {
	var text string
	switch m.state {
	case stateNewRun:
		text = "Enter create   Esc cancel"
	case stateLoginToken:
		text = "Enter next   Esc cancel"
	case stateLoginOrg:
		text = "Enter log in   Esc cancel"
	default:
		if !m.session.IsAuthenticated() {
			text = "l login   q quit"
		} else {
			text = "↑/↓ navigate   Enter open   o browser   n new run   r refresh   l login   q quit"
		}
	}
	sep := dimStyle.Render(strings.Repeat("─", max(m.width, 1)))
	return sep + "\n" + helpStyle.Render(text)
}

func (m Model) renderNewRunOver(base string) string {
	var b strings.Builder
	b.WriteString(boldStyle.Render("New Agent Run") + "\n\n")
	b.WriteString("Prompt\n")
	b.WriteString(m.input.View() + "\n")
	if m.inputErr != "" {
		b.WriteString("\n" + errStyle.Render(m.inputErr) + "\n")
	}
	b.WriteString("\n" + dimStyle.Render("Submits to the agent service · opens result in browser"))

	modal := modalStyle.Render(b.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal,
		lipgloss.WithWhitespaceBackground(lipgloss.Color("0")),
	)
}

func (m Model) renderLoginOver(base string) string {
	var b strings.Builder
	b.WriteString(boldStyle.Render("Log in") + "\n\n")
	if m.state == stateLoginToken {
		b.WriteString("API token " + dimStyle.Render("("+m.webURL+"/cli-token)") + "\n")
	} else {
		b.WriteString("Organization id\n")
	}
	b.WriteString(m.input.View() + "\n")
	if m.inputErr != "" {
		b.WriteString("\n" + errStyle.Render(m.inputErr) + "\n")
	}
	b.WriteString("\n" + dimStyle.Render("Token goes to the system keychain"))

	modal := modalStyle.Render(b.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal,
		lipgloss.WithWhitespaceBackground(lipgloss.Color("0")),
	)
}

func (m Model) selectedRecord() *engine.Record {
	if len(m.records) == 0 {
		return nil
	}
	idx := m.list.Index()
	if idx < 0 || idx >= len(m.records) {
		return nil
	}
	return &m.records[idx]
}

// describeError words the error for the status line. Auth errors read
// differently from fetch errors: retrying won't help, logging in will.
func describeError(err error) (msg string, authDead bool) {
	if errors.Is(err, api.ErrUnauthorized) {
		return "Session expired — press l to log in again", true
	}
	if errors.Is(err, api.ErrNoOrganization) {
		return "Not logged in — press l to log in", true
	}
	return "Refresh failed: " + err.Error(), false
}

func truncate(s string, width int) string {
	if width <= 1 {
		return s
	}
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}
