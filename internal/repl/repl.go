package repl

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"motorcortex/internal/config"
	"motorcortex/internal/confirm"
	"motorcortex/internal/engine"
	"motorcortex/internal/intent"
)

// SourceREPL marks commands typed at the interactive prompt.
const SourceREPL = "repl"

const defaultPlaceholder = "Type a command... (Enter to dispatch, Ctrl+C to exit)"

// Dispatcher is the engine surface the REPL drives.
type Dispatcher interface {
	Run(ctx context.Context, source, text string, uiCtx *intent.UIContext) engine.Result
	Approve(ctx context.Context, id string) engine.Result
	Deny(id string) engine.Result
	ListPending() []confirm.Pending
	LastResult() *engine.Result
}

// ContextSource supplies the UI snapshot attached to interpreted commands.
type ContextSource interface {
	Snapshot(ctx context.Context, readSelection bool) *intent.UIContext
}

const (
	roleUser  = "user"
	roleMotor = "motor"
)

type transcriptEntry struct {
	role    string
	content string
	time    time.Time
}

// Messages for tea updates.
type (
	resultMsg struct {
		input  string
		result engine.Result
	}
	errorMsg error
)

type model struct {
	textinput textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model
	styles    Styles
	renderer  *glamour.TermRenderer

	transcript []transcriptEntry
	isLoading  bool
	err        error
	width      int
	height     int
	ready      bool

	// Confirmation gate state; while open, y/n resolve the pending command.
	awaitingConfirm bool
	pendingID       string

	cfg        *config.Config
	dispatcher Dispatcher
	contexts   ContextSource
	timeout    time.Duration
}

func newModel(cfg *config.Config, dispatcher Dispatcher, contexts ContextSource) model {
	styles := DefaultStyles()

	ti := textinput.New()
	ti.Placeholder = defaultPlaceholder
	ti.Focus()
	ti.Prompt = "│ "
	ti.CharLimit = 4096
	ti.Width = 80
	ti.PromptStyle = styles.Prompt
	ti.TextStyle = styles.UserInput

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	vp := viewport.New(80, 20)
	vp.SetContent("")

	renderer := newRenderer(styles, 80)

	return model{
		textinput:  ti,
		viewport:   vp,
		spinner:    sp,
		styles:     styles,
		renderer:   renderer,
		transcript: []transcriptEntry{},
		cfg:        cfg,
		dispatcher: dispatcher,
		contexts:   contexts,
		timeout:    cfg.GetCommandTimeout(),
	}
}

func newRenderer(styles Styles, wrap int) *glamour.TermRenderer {
	if styles.Theme.IsDark {
		r, _ := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(wrap),
		)
		return r
	}
	r, _ := glamour.NewTermRenderer(
		glamour.WithStylePath("light"),
		glamour.WithWordWrap(wrap),
	)
	return r
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		spCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit

		case tea.KeyEnter:
			if !m.isLoading && !m.awaitingConfirm {
				return m.handleSubmit()
			}
		}

		if m.awaitingConfirm && !m.isLoading {
			switch msg.String() {
			case "y", "Y":
				return m.resolveConfirmation(true)
			case "n", "N":
				return m.resolveConfirmation(false)
			}
			// Other printable keys are swallowed while the gate is open.
			if msg.Type == tea.KeyRunes {
				return m, nil
			}
		}

		if !m.isLoading {
			m.textinput, tiCmd = m.textinput.Update(msg)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 3
		footerHeight := 2
		inputHeight := 3

		if !m.ready {
			m.viewport = viewport.New(msg.Width-4, msg.Height-headerHeight-footerHeight-inputHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width - 4
			m.viewport.Height = msg.Height - headerHeight - footerHeight - inputHeight
		}

		m.textinput.Width = msg.Width - 4
		m.renderer = newRenderer(m.styles, msg.Width-8)
		m.viewport.SetContent(m.renderTranscript())

	case spinner.TickMsg:
		if m.isLoading {
			m.spinner, spCmd = m.spinner.Update(msg)
			return m, spCmd
		}

	case resultMsg:
		m.isLoading = false
		m.err = nil
		m.transcript = append(m.transcript, transcriptEntry{
			role:    roleMotor,
			content: m.formatResult(msg.result),
			time:    time.Now(),
		})
		if msg.result.Status == engine.StatusPending {
			m.awaitingConfirm = true
			m.pendingID = msg.result.ID
			m.textinput.Placeholder = "y to approve, n to deny"
		}
		m.viewport.SetContent(m.renderTranscript())
		m.viewport.GotoBottom()

	case errorMsg:
		m.isLoading = false
		m.err = msg
	}

	m.viewport, vpCmd = m.viewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, spCmd)
}

func (m model) handleSubmit() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.textinput.Value())
	if input == "" {
		return m, nil
	}

	if strings.HasPrefix(input, "/") {
		return m.handleCommand(input)
	}

	m.transcript = append(m.transcript, transcriptEntry{
		role:    roleUser,
		content: input,
		time:    time.Now(),
	})
	m.textinput.Reset()
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
	m.isLoading = true

	return m, tea.Batch(
		m.spinner.Tick,
		m.processInput(input),
	)
}

func (m model) handleCommand(input string) (tea.Model, tea.Cmd) {
	parts := strings.Fields(input)
	cmd := parts[0]

	switch cmd {
	case "/quit", "/exit", "/q":
		return m, tea.Quit

	case "/clear":
		m.transcript = []transcriptEntry{}
		m.viewport.SetContent("")
		m.textinput.Reset()
		return m, nil

	case "/help":
		return m.appendReply(helpText), nil

	case "/pending":
		return m.appendReply(m.formatPending()), nil

	case "/result":
		last := m.dispatcher.LastResult()
		if last == nil {
			return m.appendReply("No commands dispatched yet."), nil
		}
		return m.appendReply(m.formatResult(*last)), nil
	}

	return m.appendReply(fmt.Sprintf("Unknown command `%s`. Try `/help`.", cmd)), nil
}

func (m model) appendReply(content string) model {
	m.transcript = append(m.transcript, transcriptEntry{
		role:    roleMotor,
		content: content,
		time:    time.Now(),
	})
	m.textinput.Reset()
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
	return m
}

const helpText = `## Commands

| Command | Description |
|---------|-------------|
| /help | Show this help |
| /pending | List commands waiting on confirmation |
| /result | Show the last dispatch outcome |
| /clear | Clear the transcript |
| /quit, /exit, /q | Leave the REPL |

## Tips
- **Enter** dispatches the typed command
- **y**/**n** answer an open confirmation
- Sensitive commands (delete, shutdown, send message) always ask first
`

func (m model) formatPending() string {
	pending := m.dispatcher.ListPending()
	if len(pending) == 0 {
		return "No pending confirmations."
	}

	var sb strings.Builder
	sb.WriteString("## Pending confirmations\n\n")
	for _, p := range pending {
		sb.WriteString(fmt.Sprintf("- `%s` \"%s\" (%s)\n", p.ID, p.Text, p.Reason))
	}
	return sb.String()
}

func (m model) processInput(input string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := m.commandContext()
		defer cancel()

		var uiCtx *intent.UIContext
		if m.contexts != nil {
			uiCtx = m.contexts.Snapshot(ctx, !engine.IsBasicShortcut(input))
		}

		result := m.dispatcher.Run(ctx, SourceREPL, input, uiCtx)
		return resultMsg{input: input, result: result}
	}
}

func (m model) resolveConfirmation(approve bool) (tea.Model, tea.Cmd) {
	id := m.pendingID
	m.awaitingConfirm = false
	m.pendingID = ""
	m.textinput.Placeholder = defaultPlaceholder

	verdict := "deny"
	if approve {
		verdict = "approve"
	}
	m.transcript = append(m.transcript, transcriptEntry{
		role:    roleUser,
		content: verdict,
		time:    time.Now(),
	})
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
	m.isLoading = true

	return m, tea.Batch(
		m.spinner.Tick,
		m.processConfirmation(id, approve),
	)
}

func (m model) processConfirmation(id string, approve bool) tea.Cmd {
	return func() tea.Msg {
		if !approve {
			return resultMsg{input: "deny", result: m.dispatcher.Deny(id)}
		}

		ctx, cancel := m.commandContext()
		defer cancel()
		return resultMsg{input: "approve", result: m.dispatcher.Approve(ctx, id)}
	}
}

func (m model) commandContext() (context.Context, context.CancelFunc) {
	if m.timeout > 0 {
		return context.WithTimeout(context.Background(), m.timeout)
	}
	return context.WithCancel(context.Background())
}

func (m model) formatResult(result engine.Result) string {
	var sb strings.Builder

	switch result.Status {
	case engine.StatusOK:
		sb.WriteString("**Done.**\n")
	case engine.StatusPending:
		sb.WriteString("**Confirmation required.** ")
		sb.WriteString(result.Reason)
		sb.WriteString("\n\nPress **y** to approve or **n** to deny.\n")
		return sb.String()
	case engine.StatusDenied:
		sb.WriteString("**Denied.** Nothing was executed.\n")
	case engine.StatusIgnored:
		sb.WriteString("**Ignored.**")
		if result.Reason != "" {
			sb.WriteString(" " + result.Reason)
		}
		sb.WriteString("\n")
	case engine.StatusTimeout:
		sb.WriteString("**Timed out.** " + result.Reason + "\n")
	case engine.StatusMissing:
		sb.WriteString("**Unknown confirmation.** " + result.Reason + "\n")
	default:
		sb.WriteString("**Error.**")
		if result.Reason != "" {
			sb.WriteString(" " + result.Reason)
		}
		sb.WriteString("\n")
	}

	for _, step := range result.Results {
		line := fmt.Sprintf("- `%s` %s", step.Intent, step.Status)
		if step.Target != "" {
			line += fmt.Sprintf(" (%s)", step.Target)
		}
		if step.ElapsedMS > 0 {
			line += fmt.Sprintf(" in %dms", step.ElapsedMS)
		}
		sb.WriteString(line + "\n")
	}

	if result.Code != "" {
		sb.WriteString(fmt.Sprintf("\nCode: `%s`\n", result.Code))
	}
	if result.Screenshot != "" {
		sb.WriteString(fmt.Sprintf("Screenshot: `%s`\n", result.Screenshot))
	}
	return sb.String()
}

func (m model) renderTranscript() string {
	var sb strings.Builder

	for _, entry := range m.transcript {
		if entry.role == roleUser {
			userStyle := m.styles.Bold.
				Foreground(m.styles.Theme.Primary).
				MarginTop(1)
			sb.WriteString(userStyle.Render("You") + "\n")
			sb.WriteString(m.styles.UserInput.Render(entry.content))
			sb.WriteString("\n\n")
		} else {
			motorStyle := m.styles.Bold.
				Foreground(m.styles.Theme.Accent).
				MarginTop(1)
			sb.WriteString(motorStyle.Render("motor") + "\n")
			sb.WriteString(m.safeRenderMarkdown(entry.content))
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

// safeRenderMarkdown renders markdown with panic recovery so a glamour
// edge case cannot take down the whole program.
func (m model) safeRenderMarkdown(content string) (result string) {
	defer func() {
		if r := recover(); r != nil {
			result = content
		}
	}()

	if m.renderer != nil && content != "" {
		rendered, err := m.renderer.Render(content)
		if err == nil {
			return rendered
		}
	}
	return content
}

func (m model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	header := m.renderHeader()

	chatView := m.styles.Content.Render(m.viewport.View())
	if m.isLoading {
		chatView += "\n" + m.styles.Spinner.Render(m.spinner.View()) + " Dispatching..."
	}
	if m.err != nil {
		chatView += "\n" + m.styles.Error.Render("Error: "+m.err.Error())
	}

	inputStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(m.styles.Theme.Accent).
		Padding(0, 1)
	inputArea := inputStyle.Render(m.textinput.View())

	footer := m.renderFooter()

	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		chatView,
		inputArea,
		footer,
	)
}

func (m model) renderHeader() string {
	title := m.styles.Header.Render(" motor ")
	version := m.styles.Badge.Render("v" + m.cfg.Version)

	var status string
	switch {
	case m.isLoading:
		status = m.styles.Warning.Render("● Dispatching")
	case m.awaitingConfirm:
		status = m.styles.Warning.Render("● Awaiting y/n")
	default:
		status = m.styles.Success.Render("● Ready")
	}

	headerLine := lipgloss.JoinHorizontal(
		lipgloss.Center,
		title,
		" ",
		version,
		"  ",
		status,
	)

	return lipgloss.JoinVertical(
		lipgloss.Left,
		headerLine,
		m.styles.RenderDivider(m.width),
	)
}

func (m model) renderFooter() string {
	help := "Enter: dispatch • /help: commands • Ctrl+C: exit"
	if m.awaitingConfirm {
		help = "y: approve • n: deny • Ctrl+C: exit"
	}
	return m.styles.Footer.Render(help)
}

// Run starts the interactive prompt and blocks until the user exits.
func Run(cfg *config.Config, dispatcher Dispatcher, contexts ContextSource) error {
	p := tea.NewProgram(
		newModel(cfg, dispatcher, contexts),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	_, err := p.Run()
	return err
}
