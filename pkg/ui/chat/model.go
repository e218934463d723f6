package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"themeforge/pkg/agent"
	"themeforge/pkg/draft"
	"themeforge/pkg/prompt"
)

type mode int

const (
	modeInteractive mode = iota
	modeOneShot
)

type generationDoneMsg struct {
	outcome agent.Outcome
	err     error
	input   string
}

type uploadDoneMsg struct {
	result draft.UploadResult
	err    error
}

type loadingMsg bool

type noticeMsg agent.Notice

type bootTickMsg struct{}

type model struct {
	ctx     context.Context
	opts    Options
	mode    mode
	oneShot *prompt.Data

	palette   palette
	spinner   spinner.Model
	input     textinput.Model
	viewport  viewport.Model
	messages  []prompt.ChatMessage
	notice    *agent.Notice
	width     int
	height    int
	isReady   bool
	isLoading bool
	spinning  bool
	lastErr   string
	booting   bool
	bootStep  int
	followLog bool

	markdown      *glamour.TermRenderer
	markdownWidth int
}

func newModel(ctx context.Context, opts Options, runMode mode, oneShot *prompt.Data) *model {
	spin := spinner.New()
	spin.Spinner = spinner.Points
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("183"))

	in := textinput.New()
	in.Prompt = ""
	in.Placeholder = "Describe a theme... (@current, @<preset>, /image <file>)"
	in.Focus()
	in.CharLimit = 0

	vp := viewport.New(80, 12)
	vp.MouseWheelEnabled = true
	vp.MouseWheelDelta = 3

	m := &model{
		ctx:       ctx,
		opts:      opts,
		mode:      runMode,
		oneShot:   oneShot,
		palette:   defaultPalette(),
		spinner:   spin,
		input:     in,
		viewport:  vp,
		width:     100,
		height:    28,
		booting:   runMode == modeInteractive,
		followLog: true,
	}
	if opts.Session != nil {
		m.messages = opts.Session.Messages()
	}
	if opts.Draft != nil {
		if doc, ok := opts.Draft.Document(); ok {
			m.input.SetValue(DocumentText(doc))
		}
	}
	return m
}

func (m *model) Init() tea.Cmd {
	cmds := []tea.Cmd{waitForLoading(m.opts.Loading), waitForNotice(m.opts.Notices)}
	if m.mode == modeOneShot && m.oneShot != nil {
		m.refreshViewport(false)
		cmds = append(cmds, m.startLoading(), m.generateCmd(*m.oneShot, ""))
		return tea.Batch(cmds...)
	}
	return tea.Batch(append(cmds, bootTickCmd())...)
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		m.resizeComponents()
		m.refreshViewport(false)
		m.isReady = true
		return m, nil
	case bootTickMsg:
		if !m.booting {
			return m, nil
		}
		m.bootStep++
		if m.bootStep < len(bootScriptLines())+1 {
			return m, bootTickCmd()
		}
		m.booting = false
		m.refreshViewport(true)
		return m, textinput.Blink
	case loadingMsg:
		m.isLoading = bool(typed)
		if m.opts.Session != nil {
			m.messages = m.opts.Session.Messages()
			m.refreshViewport(false)
		}
		next := waitForLoading(m.opts.Loading)
		if m.isLoading {
			return m, tea.Batch(next, m.startLoading())
		}
		return m, next
	case noticeMsg:
		notice := agent.Notice(typed)
		m.notice = &notice
		return m, waitForNotice(m.opts.Notices)
	case tea.MouseMsg:
		if m.mode == modeInteractive && !m.booting {
			m.handleViewportMouse(typed)
		}
		return m, nil
	case tea.KeyMsg:
		switch typed.String() {
		case "ctrl+c":
			m.cancelGeneration()
			m.saveDraft()
			return m, tea.Quit
		case "esc":
			if m.cancelGeneration() {
				return m, nil
			}
			m.saveDraft()
			return m, tea.Quit
		}

		if m.booting || m.mode == modeOneShot {
			return m, nil
		}
		if m.handleViewportKey(typed) {
			return m, nil
		}
		if typed.String() == "enter" {
			return m, m.submit()
		}
	}

	if m.mode == modeInteractive {
		m.input, cmd = m.input.Update(msg)
	}

	switch typed := msg.(type) {
	case spinner.TickMsg:
		if !m.isLoading {
			m.spinning = false
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(typed)
		return m, cmd
	case generationDoneMsg:
		return m, m.finishGeneration(typed)
	case uploadDoneMsg:
		m.finishUpload(typed)
		return m, nil
	}

	return m, cmd
}

// submit handles the enter key: slash commands run locally, anything else is
// sent as a prompt with the attached images.
func (m *model) submit() tea.Cmd {
	text := strings.TrimSpace(m.input.Value())
	if text == "" && m.readyImages() == nil {
		return nil
	}
	if isExitCommand(text) {
		m.saveDraft()
		return tea.Quit
	}
	if c, ok := parseCommand(text); ok {
		m.input.SetValue("")
		return m.runCommand(c)
	}
	if m.isLoading {
		m.setNotice(agent.NoticeWarning, "Please wait for the current generation to finish.")
		return nil
	}
	if m.opts.Images != nil && m.opts.Images.Uploading() {
		m.setNotice(agent.NoticeWarning, "Images are still uploading.")
		return nil
	}

	doc := ParseInput(text, m.opts.Resolver)
	data := prompt.Extract(doc, m.opts.Resolver)
	data.Images = m.readyImages()

	m.lastErr = ""
	m.notice = nil
	m.input.SetValue("")
	m.followLog = true
	return tea.Batch(m.startLoading(), m.generateCmd(data, text))
}

func (m *model) runCommand(c command) tea.Cmd {
	switch c.name {
	case "retry":
		index, ok := messageNumber(c.args)
		if !ok {
			m.setNotice(agent.NoticeError, "Usage: /retry N")
			return nil
		}
		if m.isLoading {
			m.setNotice(agent.NoticeWarning, "Please wait for the current generation to finish.")
			return nil
		}
		m.lastErr = ""
		return tea.Batch(m.startLoading(), func() tea.Msg {
			outcome, err := m.opts.Session.Retry(m.ctx, index)
			return generationDoneMsg{outcome: outcome, err: err}
		})
	case "restore":
		index, ok := messageNumber(c.args)
		if !ok {
			m.setNotice(agent.NoticeError, "Usage: /restore N")
			return nil
		}
		if err := m.opts.Session.RestoreCheckpoint(index); err != nil {
			m.setNotice(agent.NoticeError, describeError(err))
			return nil
		}
		m.setNotice(agent.NoticeInfo, fmt.Sprintf("Restored the theme from message %d.", index+1))
		return nil
	case "clear":
		if err := m.opts.Session.Clear(m.ctx); err != nil {
			m.setNotice(agent.NoticeError, describeError(err))
			return nil
		}
		m.messages = m.opts.Session.Messages()
		m.refreshViewport(true)
		return nil
	case "image":
		if m.opts.Uploader == nil {
			m.setNotice(agent.NoticeError, "Image uploads are not available.")
			return nil
		}
		if len(c.args) == 0 {
			m.setNotice(agent.NoticeError, "Usage: /image <file> [file...]")
			return nil
		}
		paths := c.args
		return func() tea.Msg {
			result, err := m.opts.Uploader.Upload(m.ctx, paths)
			return uploadDoneMsg{result: result, err: err}
		}
	case "unattach":
		if m.opts.Images != nil {
			if err := m.opts.Images.Clear(m.ctx); err != nil {
				m.setNotice(agent.NoticeError, describeError(err))
				return nil
			}
		}
		m.setNotice(agent.NoticeInfo, "Removed attached images.")
		return nil
	case "help":
		m.setNotice(agent.NoticeInfo, commandHelp)
		return nil
	case "cancel":
		if !m.cancelGeneration() {
			m.setNotice(agent.NoticeInfo, "Nothing to cancel.")
		}
		return nil
	default:
		m.setNotice(agent.NoticeError, fmt.Sprintf("Unknown command /%s", c.name))
		return nil
	}
}

func (m *model) generateCmd(data prompt.Data, input string) tea.Cmd {
	return func() tea.Msg {
		outcome, err := m.opts.Session.Generate(m.ctx, &data)
		return generationDoneMsg{outcome: outcome, err: err, input: input}
	}
}

func (m *model) finishGeneration(msg generationDoneMsg) tea.Cmd {
	if m.opts.Session != nil {
		m.isLoading = m.opts.Session.Loading()
		m.messages = m.opts.Session.Messages()
	}

	switch {
	case msg.err != nil:
		if !errors.Is(msg.err, agent.ErrEmptyPrompt) && !errors.Is(msg.err, agent.ErrPromptTooLong) {
			m.lastErr = describeError(msg.err)
		}
		m.restoreInput(msg.input)
	case msg.outcome.Status == agent.StatusBlocked:
		m.restoreInput(msg.input)
	case msg.outcome.Status != agent.StatusSuperseded:
		m.clearDraft()
	}

	m.refreshViewport(false)
	if m.mode == modeOneShot && msg.outcome.Status != agent.StatusSuperseded {
		return tea.Quit
	}
	return nil
}

func (m *model) finishUpload(msg uploadDoneMsg) {
	if msg.err != nil {
		m.setNotice(agent.NoticeError, describeError(msg.err))
		return
	}

	var problems []string
	for _, rejected := range msg.result.Rejected {
		problems = append(problems, fmt.Sprintf("%s: %v", rejected.Path, rejected.Err))
	}
	if msg.result.Truncated {
		problems = append(problems, "some files were skipped, image limit reached")
	}
	if len(problems) > 0 {
		m.setNotice(agent.NoticeWarning, strings.Join(problems, "; "))
		return
	}
	m.setNotice(agent.NoticeInfo, fmt.Sprintf("Attached %d image(s).", msg.result.Added))
}

func (m *model) startLoading() tea.Cmd {
	m.isLoading = true
	if m.spinning {
		return nil
	}
	m.spinning = true
	return m.spinner.Tick
}

func (m *model) cancelGeneration() bool {
	if m.opts.Session == nil || !m.opts.Session.Loading() {
		return false
	}
	return m.opts.Session.Cancel()
}

func (m *model) restoreInput(input string) {
	if input != "" && strings.TrimSpace(m.input.Value()) == "" {
		m.input.SetValue(input)
	}
}

func (m *model) readyImages() []prompt.Image {
	if m.opts.Images == nil {
		return nil
	}
	return m.opts.Images.Ready()
}

func (m *model) saveDraft() {
	if m.opts.Draft == nil || m.mode != modeInteractive {
		return
	}
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return
	}
	_ = m.opts.Draft.SetDocument(context.WithoutCancel(m.ctx), ParseInput(text, m.opts.Resolver))
}

func (m *model) clearDraft() {
	if m.mode != modeInteractive {
		return
	}
	ctx := context.WithoutCancel(m.ctx)
	if m.opts.Images != nil {
		_ = m.opts.Images.Clear(ctx)
	}
	if m.opts.Draft != nil {
		_ = m.opts.Draft.Clear(ctx)
	}
}

func (m *model) setNotice(level agent.NoticeLevel, message string) {
	m.notice = &agent.Notice{Level: level, Message: message}
}

func (m *model) View() string {
	if !m.isReady {
		m.resizeComponents()
		m.refreshViewport(false)
	}
	if m.mode == modeOneShot {
		return m.oneShotView()
	}
	if m.booting {
		return m.bootView()
	}

	header := m.palette.header.Width(m.width - 2).Render("🎨 ThemeForge")
	meta := m.palette.headerMeta.Render(fmt.Sprintf(
		"endpoint:%s · store:%s · turns:%d · images:%d",
		displayOrNA(m.opts.Info.Endpoint),
		displayOrNA(m.opts.Info.Store),
		userTurns(m.messages),
		len(m.readyImages()),
	))
	line := m.palette.divider.Width(m.width - 2).Render(strings.Repeat("─", max(8, m.width-2)))

	parts := []string{header, meta, line, m.palette.viewport.Width(m.width - 2).Render(m.viewport.View()), m.statusLine()}
	parts = append(parts,
		m.palette.inputLabel.Render("✏️  Prompt")+" "+m.palette.hint.Render("(/retry N · /restore N · /image FILE · /clear · /exit)"),
		m.palette.input.Width(m.width-2).Render(m.input.View()),
	)
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m *model) statusLine() string {
	switch {
	case m.isLoading:
		return m.palette.statusBusy.Render(fmt.Sprintf("%s generating theme... (Esc to cancel)", m.spinner.View()))
	case m.notice != nil:
		text := m.notice.Message
		if m.notice.Title != "" {
			text = m.notice.Title + ": " + text
		}
		switch m.notice.Level {
		case agent.NoticeError:
			return m.palette.statusErr.Render("🚨 " + text)
		case agent.NoticeWarning:
			return m.palette.noticeWarn.Render("⚠️  " + text)
		default:
			return m.palette.noticeInfo.Render("✅ " + text)
		}
	case m.lastErr != "":
		return m.palette.statusErr.Render("🚨 " + m.lastErr)
	default:
		return m.palette.status.Render("💡 Enter send  ·  PgUp/PgDn scroll  ·  End jump latest  ·  Ctrl+C/Esc quit")
	}
}

func (m *model) resizeComponents() {
	w := max(50, m.width-6)
	h := m.height - 10
	if m.mode == modeOneShot {
		h = m.height - 6
	}
	h = max(8, h)

	m.viewport.Width = w
	m.viewport.Height = h
	m.input.Width = w - 2
}

func (m *model) refreshViewport(forceBottom bool) {
	previousOffset := m.viewport.YOffset

	sections := make([]string, 0, len(m.messages))
	for i, msg := range m.messages {
		sections = append(sections, m.renderMessage(i, msg, m.viewport.Width))
	}

	m.viewport.SetContent(strings.Join(sections, "\n\n"))
	if m.followLog || forceBottom {
		m.viewport.GotoBottom()
		m.followLog = true
		return
	}

	maxOffset := max(0, m.viewport.TotalLineCount()-m.viewport.Height)
	m.viewport.SetYOffset(min(previousOffset, maxOffset))
}

func (m *model) renderMessage(index int, msg prompt.ChatMessage, width int) string {
	number := fmt.Sprintf("#%d", index+1)
	switch {
	case msg.Role == prompt.RoleUser:
		return m.renderCard(
			m.palette.userTitle.Render(number+" You"),
			m.palette.userBox.Width(width).Render(m.renderPrompt(msg.PromptData, width-4)),
		)
	case msg.IsError:
		return m.renderCard(
			m.palette.errorTitle.Render(number+" Error"),
			m.palette.errorBox.Width(width).Render(wordwrap.String(strings.TrimSpace(msg.Content), width-4)),
		)
	default:
		body := m.renderMarkdown(msg.Content, width-4)
		if msg.ThemeStyles != nil {
			body += "\n" + m.palette.hint.Render(fmt.Sprintf(
				"theme checkpoint · %d light / %d dark tokens · /restore %d",
				len(msg.ThemeStyles.Light), len(msg.ThemeStyles.Dark), index+1,
			))
		}
		return m.renderCard(
			m.palette.assistantTitle.Render(number+" ThemeForge"),
			m.palette.assistantBox.Width(width).Render(body),
		)
	}
}

// renderPrompt highlights the @mentions of a user prompt and lists its images.
func (m *model) renderPrompt(data *prompt.Data, width int) string {
	if data == nil {
		return ""
	}

	var b strings.Builder
	for _, segment := range prompt.RenderSegments(*data) {
		switch segment.Kind {
		case prompt.SegmentMention:
			b.WriteString(m.palette.mention.Render(segment.Text))
		case prompt.SegmentLineBreak:
			b.WriteString("\n")
		default:
			b.WriteString(segment.Text)
		}
	}

	out := wordwrap.String(strings.TrimSpace(b.String()), max(10, width))
	if n := len(data.Images); n > 0 {
		out = strings.TrimSpace(out + "\n" + m.palette.hint.Render(fmt.Sprintf("📎 %d image(s)", n)))
	}
	return out
}

func (m *model) renderMarkdown(content string, width int) string {
	content = strings.TrimSpace(content)
	if m.markdown == nil || m.markdownWidth != width {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(max(10, width)),
		)
		if err != nil {
			return wordwrap.String(content, max(10, width))
		}
		m.markdown = renderer
		m.markdownWidth = width
	}

	rendered, err := m.markdown.Render(content)
	if err != nil {
		return wordwrap.String(content, max(10, width))
	}
	return strings.Trim(rendered, "\n")
}

func (m *model) renderCard(title string, body string) string {
	return lipgloss.JoinVertical(lipgloss.Left, title, body)
}

func (m *model) oneShotView() string {
	contentWidth := max(40, m.width-6)
	var parts []string
	if m.oneShot != nil {
		parts = append(parts, m.renderCard(
			m.palette.userTitle.Render("SENT"),
			m.palette.userBox.Width(contentWidth).Render(m.renderPrompt(m.oneShot, contentWidth-4)),
		))
	}

	if m.isLoading {
		parts = append(parts, m.palette.statusBusy.Render(fmt.Sprintf("%s generating theme...", m.spinner.View())))
		return lipgloss.JoinVertical(lipgloss.Left, parts...) + "\n"
	}

	if m.lastErr != "" {
		parts = append(parts, m.renderCard(
			m.palette.errorTitle.Render("ERROR"),
			m.palette.errorBox.Width(contentWidth).Render(strings.TrimSpace(m.lastErr)),
		))
		return lipgloss.JoinVertical(lipgloss.Left, parts...) + "\n\n"
	}

	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].Role == prompt.RoleAssistant {
			parts = append(parts, m.renderMessage(i, m.messages[i], contentWidth))
			break
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...) + "\n\n"
}

func (m *model) bootView() string {
	header := m.palette.header.Width(m.width - 2).Render("🎨 ThemeForge")
	meta := m.palette.headerMeta.Render("starting up")
	line := m.palette.divider.Width(m.width - 2).Render(strings.Repeat("─", max(8, m.width-2)))

	script := bootScriptLines()
	count := min(m.bootStep, len(script))
	visible := make([]string, 0, count+1)
	for i := 0; i < count; i++ {
		visible = append(visible, m.palette.bootLine.Render(script[i]))
	}
	if m.bootStep > len(script) {
		visible = append(visible, m.palette.bootDone.Render("✅ editor ready"))
	}

	body := m.palette.viewport.Width(m.width - 2).Render(strings.Join(visible, "\n"))
	return lipgloss.JoinVertical(lipgloss.Left, header, meta, line, body)
}

func bootTickCmd() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(_ time.Time) tea.Msg {
		return bootTickMsg{}
	})
}

func waitForLoading(ch <-chan bool) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		loading, ok := <-ch
		if !ok {
			return nil
		}
		return loadingMsg(loading)
	}
}

func waitForNotice(ch <-chan agent.Notice) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		notice, ok := <-ch
		if !ok {
			return nil
		}
		return noticeMsg(notice)
	}
}

func (m *model) handleViewportKey(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "pgup", "ctrl+b", "alt+up", "ctrl+up":
		m.viewport.PageUp()
		m.followLog = false
		return true
	case "pgdown", "ctrl+f", "alt+down", "ctrl+down":
		m.viewport.PageDown()
		if m.viewport.AtBottom() {
			m.followLog = true
		}
		return true
	case "home":
		m.viewport.GotoTop()
		m.followLog = false
		return true
	case "end":
		m.viewport.GotoBottom()
		m.followLog = true
		return true
	default:
		return false
	}
}

func (m *model) handleViewportMouse(msg tea.MouseMsg) bool {
	if msg.Action != tea.MouseActionPress {
		return false
	}
	switch msg.Button {
	case tea.MouseButtonWheelUp, tea.MouseButtonWheelDown:
		m.viewport, _ = m.viewport.Update(msg)
		m.followLog = m.viewport.AtBottom()
		return true
	default:
		return false
	}
}

func bootScriptLines() []string {
	return []string{
		"[BOOT] loading theme presets",
		"[BOOT] restoring chat history",
		"[BOOT] restoring prompt draft",
		"[BOOT] connecting to generator",
	}
}

func describeError(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func displayOrNA(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "n/a"
	}
	return trimmed
}

func userTurns(messages []prompt.ChatMessage) int {
	count := 0
	for _, message := range messages {
		if message.Role == prompt.RoleUser {
			count++
		}
	}
	return count
}

func isExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "/exit", "quit", ":q":
		return true
	default:
		return false
	}
}
