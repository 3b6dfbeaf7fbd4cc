package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/epalmerini/rabbitwatch/internal/config"
	"github.com/epalmerini/rabbitwatch/internal/export"
	"github.com/epalmerini/rabbitwatch/internal/message"
	"github.com/epalmerini/rabbitwatch/internal/monitor"
)

type connectionState int

const (
	stateDisconnected connectionState = iota
	stateConnecting
	stateConnected
)

type pane int

const (
	paneDestinations pane = iota
	paneMessages
)

const (
	maxLogLines  = 100
	logPanelRows = 3
	statusTTL    = 3 * time.Second
)

type logLine struct {
	text  string
	isErr bool
}

type model struct {
	ctx       context.Context
	engine    Engine
	events    <-chan monitor.Event
	connect   func(context.Context, string) (string, error)
	profile   string
	exportDir string
	configDir string
	log       zerolog.Logger

	connState connectionState
	connError error
	broker    string

	queues, topics  []string
	destIdx         int
	monitoredQueues []string
	monitoredTopics []string
	running         bool

	messages     []message.Message
	msgIdx       int
	detailOffset int
	focus        pane
	vimKeys      VimKeyState

	searchMode    bool
	searchInput   textinput.Model
	searchQuery   string
	searchResults []int

	logs  []logLine
	stats stats

	splitRatio      float64
	savedSplitRatio float64
	compactMode     bool
	timestampRel    bool
	showHelp        bool

	spinner       spinner.Model
	width, height int
	statusMsg     string
	now           func() time.Time
}

func newModel(ctx context.Context, deps Deps, profile string) model {
	si := textinput.New()
	si.Placeholder = "Search (id: body: dest: prop: type: re:)"
	si.CharLimit = 100
	si.Width = 40

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	splitRatio := deps.Config.DefaultSplitRatio
	if splitRatio <= 0 || splitRatio >= 1 {
		splitRatio = 0.5
	}

	return model{
		ctx:             ctx,
		engine:          deps.Engine,
		events:          deps.Events,
		connect:         deps.Connect,
		profile:         profile,
		exportDir:       deps.ExportDir,
		configDir:       deps.Config.ConfigDir,
		log:             deps.Log.With().Str("component", "tui").Logger(),
		connState:       stateConnecting,
		focus:           paneDestinations,
		vimKeys:         NewVimKeyState(),
		searchInput:     si,
		splitRatio:      splitRatio,
		savedSplitRatio: splitRatio,
		compactMode:     deps.Config.CompactMode,
		spinner:         sp,
		now:             time.Now,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		connectCmd(m.ctx, m.connect, m.profile),
		waitForEvent(m.events),
		m.spinner.Tick,
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case spinner.TickMsg:
		if m.connState == stateConnecting {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}

	case connectedMsg:
		m.connState = stateConnected
		m.connError = nil
		m.broker = msg.broker
		if msg.broker != "" {
			m.appendLog("connected to "+msg.broker, false)
		}
		return m, discoverCmd(m.ctx, m.engine)

	case connectionErrorMsg:
		m.connState = stateDisconnected
		m.connError = msg.err
		m.appendLog(msg.err.Error(), true)

	case destinationsMsg:
		m.setDestinations(msg.queues, msg.topics)

	case eventMsg:
		m.handleEvent(msg.ev)
		return m, waitForEvent(m.events)

	case commandDoneMsg:
		m.refreshMonitored()
		if msg.err != nil {
			m.appendLog(msg.action+": "+msg.err.Error(), true)
			return m, nil
		}
		cmd := m.setStatusMsg(msg.action)
		return m, cmd

	case browseDoneMsg:
		if msg.res.Err != nil {
			return m, nil
		}
		cmd := m.setStatusMsg(fmt.Sprintf("browsed %s: %d messages", msg.queue, len(msg.res.Messages())))
		return m, cmd

	case clearStatusMsg:
		m.statusMsg = ""
	}

	return m, nil
}

func (m *model) handleEvent(ev monitor.Event) {
	switch ev.Kind {
	case monitor.EventDestinations:
		m.setDestinations(ev.Queues, ev.Topics)
	case monitor.EventMessages:
		m.setMessages(ev.Messages)
	case monitor.EventLog:
		m.appendLog(ev.Text, false)
	case monitor.EventError:
		m.appendLog(ev.Text, true)
	}
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.searchMode {
		switch msg.String() {
		case "ctrl+c":
			m.saveSplitRatio()
			return m, tea.Quit
		case "esc":
			m.searchMode = false
			m.searchQuery = ""
			m.searchResults = nil
			m.searchInput.Blur()
			return m, nil
		case "enter":
			m.searchMode = false
			m.searchQuery = m.searchInput.Value()
			m.searchInput.Blur()
			m.performSearch()
			return m, nil
		default:
			var cmd tea.Cmd
			m.searchInput, cmd = m.searchInput.Update(msg)
			return m, cmd
		}
	}

	if m.showHelp {
		switch msg.String() {
		case "?", "esc", "q":
			m.showHelp = false
		}
		return m, nil
	}

	switch msg.String() {
	case "ctrl+j":
		m.detailOffset++
		return m, nil
	case "ctrl+k":
		if m.detailOffset > 0 {
			m.detailOffset--
		}
		return m, nil
	}

	result := m.vimKeys.ProcessKey(msg.String())
	switch result.Action {
	case actionMoveDown:
		m.moveBy(result.Count)
	case actionMoveUp:
		m.moveBy(-result.Count)
	case actionGoTop:
		m.moveBy(-m.itemCount())
	case actionGoBottom:
		m.moveBy(m.itemCount())
	case actionNextPane:
		if m.focus == paneDestinations {
			m.focus = paneMessages
		} else {
			m.focus = paneDestinations
		}

	case actionMonitorSelected:
		if d, ok := m.selectedDestination(); ok && m.focus == paneDestinations {
			return m, startOneCmd(m.ctx, m.engine, d)
		}
	case actionMonitorAll:
		return m, startAllCmd(m.ctx, m.engine, slices.Clone(m.queues), slices.Clone(m.topics))
	case actionStop:
		return m, stopCmd(m.engine)
	case actionRediscover:
		if m.connState != stateConnected {
			m.connState = stateConnecting
			return m, tea.Batch(connectCmd(m.ctx, m.connect, m.profile), m.spinner.Tick)
		}
		return m, discoverCmd(m.ctx, m.engine)
	case actionBrowse:
		queue := m.selectedQueue()
		if queue == "" {
			cmd := m.setStatusMsg("select a queue to browse")
			return m, cmd
		}
		return m, browseCmd(m.ctx, m.engine, queue)

	case actionSearchStart:
		m.searchMode = true
		m.searchInput.SetValue("")
		m.searchInput.Focus()
		return m, textinput.Blink
	case actionSearchNext:
		m.jumpTo(nextVisible(m.searchResults, m.msgIdx))
	case actionSearchPrev:
		m.jumpTo(prevVisible(m.searchResults, m.msgIdx))

	case actionYank:
		cmd := m.yankMessage()
		return m, cmd
	case actionExport:
		cmd := m.exportMessages()
		return m, cmd

	case actionToggleCompact:
		m.compactMode = !m.compactMode
	case actionToggleTimestamp:
		m.timestampRel = !m.timestampRel
	case actionToggleHelp:
		m.showHelp = true
	case actionResizeLeft:
		if m.splitRatio > 0.2 {
			m.splitRatio -= 0.05
		}
	case actionResizeRight:
		if m.splitRatio < 0.8 {
			m.splitRatio += 0.05
		}
	case actionQuit:
		m.saveSplitRatio()
		return m, tea.Quit
	}
	return m, nil
}

func (m *model) destinations() []message.Destination {
	out := make([]message.Destination, 0, len(m.queues)+len(m.topics))
	for _, q := range m.queues {
		out = append(out, message.Destination{Name: q, Kind: message.Queue})
	}
	for _, t := range m.topics {
		out = append(out, message.Destination{Name: t, Kind: message.Topic})
	}
	return out
}

func (m *model) selectedDestination() (message.Destination, bool) {
	dests := m.destinations()
	if m.destIdx < 0 || m.destIdx >= len(dests) {
		return message.Destination{}, false
	}
	return dests[m.destIdx], true
}

func (m *model) selectedMessage() (message.Message, bool) {
	if m.msgIdx < 0 || m.msgIdx >= len(m.messages) {
		return message.Message{}, false
	}
	return m.messages[m.msgIdx], true
}

// selectedQueue is the queue under the cursor in whichever pane has focus.
func (m *model) selectedQueue() string {
	if m.focus == paneDestinations {
		if d, ok := m.selectedDestination(); ok && d.Kind == message.Queue {
			return d.Name
		}
		return ""
	}
	if msg, ok := m.selectedMessage(); ok && msg.Kind == message.Queue {
		return msg.Destination
	}
	return ""
}

func (m *model) isMonitored(d message.Destination) bool {
	if d.Kind == message.Queue {
		return slices.Contains(m.monitoredQueues, d.Name)
	}
	return slices.Contains(m.monitoredTopics, d.Name)
}

func (m *model) refreshMonitored() {
	if m.engine == nil {
		return
	}
	m.monitoredQueues, m.monitoredTopics = m.engine.Monitored()
	m.running = m.engine.Running()
}

func (m *model) setDestinations(queues, topics []string) {
	selected, hadSelection := m.selectedDestination()
	m.queues, m.topics = queues, topics
	m.destIdx = 0
	if hadSelection {
		for i, d := range m.destinations() {
			if d == selected {
				m.destIdx = i
				break
			}
		}
	}
	m.refreshMonitored()
}

// setMessages replaces the list with a new snapshot, keeping the cursor on
// the same message when it is still present.
func (m *model) setMessages(msgs []message.Message) {
	selected, hadSelection := m.selectedMessage()
	m.messages = msgs
	m.stats.observe(m.now(), msgs)
	if len(msgs) == 0 {
		m.stats.reset()
	}

	m.msgIdx = min(m.msgIdx, max(len(msgs)-1, 0))
	if hadSelection {
		for i, msg := range msgs {
			if msg.ID == selected.ID && msg.Dest() == selected.Dest() {
				m.msgIdx = i
				break
			}
		}
	}
	if m.searchQuery != "" {
		m.searchResults = computeFilteredIndices(m.messages, m.searchQuery)
	}
	m.refreshMonitored()
}

func (m *model) appendLog(text string, isErr bool) {
	m.logs = append(m.logs, logLine{text: text, isErr: isErr})
	if len(m.logs) > maxLogLines {
		m.logs = m.logs[len(m.logs)-maxLogLines:]
	}
}

func (m *model) itemCount() int {
	if m.focus == paneDestinations {
		return len(m.queues) + len(m.topics)
	}
	return len(m.messages)
}

func (m *model) moveBy(delta int) {
	n := m.itemCount()
	idx := &m.msgIdx
	if m.focus == paneDestinations {
		idx = &m.destIdx
	}
	newIdx := max(min(*idx+delta, n-1), 0)
	if newIdx != *idx && m.focus == paneMessages {
		m.detailOffset = 0
	}
	*idx = newIdx
}

func (m *model) jumpTo(idx int) {
	if idx < 0 || idx >= len(m.messages) {
		return
	}
	m.focus = paneMessages
	if idx != m.msgIdx {
		m.detailOffset = 0
	}
	m.msgIdx = idx
}

func (m *model) performSearch() {
	m.searchResults = computeFilteredIndices(m.messages, m.searchQuery)
	if len(m.searchResults) > 0 {
		m.jumpTo(m.searchResults[0])
	}
}

func (m *model) yankMessage() tea.Cmd {
	msg, ok := m.selectedMessage()
	if !ok {
		return nil
	}
	content, err := json.MarshalIndent(msg.Record(), "", "  ")
	if err != nil {
		return m.setStatusMsg("Copy failed: " + err.Error())
	}
	if err := clipboard.WriteAll(string(content)); err != nil {
		return m.setStatusMsg("Copy failed: " + err.Error())
	}
	return m.setStatusMsg("Copied to clipboard")
}

func (m *model) exportMessages() tea.Cmd {
	path, err := export.WriteFile(m.messages, m.exportDir, export.CSV)
	if err != nil {
		return m.setStatusMsg("Export failed: " + err.Error())
	}
	m.log.Info().Str("path", path).Int("messages", len(m.messages)).Msg("exported snapshot")
	return m.setStatusMsg("Exported to " + path)
}

func (m *model) saveSplitRatio() {
	if m.configDir == "" || m.splitRatio == m.savedSplitRatio {
		return
	}
	if err := config.SaveSplitRatio(m.configDir, m.splitRatio); err != nil {
		m.log.Warn().Err(err).Msg("saving split ratio")
		return
	}
	m.savedSplitRatio = m.splitRatio
}

func (m *model) setStatusMsg(msg string) tea.Cmd {
	m.statusMsg = msg
	return tea.Tick(statusTTL, func(time.Time) tea.Msg {
		return clearStatusMsg{}
	})
}

func (m model) View() string {
	if m.width == 0 {
		return m.spinner.View() + " Loading..."
	}
	if m.showHelp {
		return m.renderHelpOverlay()
	}

	// header(3) + status(1) + log(rows+2) + help(1)
	contentHeight := max(m.height-3-1-(logPanelRows+2)-1, 5)

	destWidth := min(max(m.width/4, 20), 40)
	rest := m.width - destWidth
	listWidth := max(int(float64(rest)*m.splitRatio), 20)
	detailWidth := max(rest-listWidth, 20)

	header := headerStyle.Width(max(m.width-2, 10)).Render("rabbitwatch")
	content := lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderDestinations(destWidth, contentHeight),
		m.renderMessageList(listWidth, contentHeight),
		m.renderDetailPanel(detailWidth, contentHeight),
	)

	var bottomBar string
	if m.searchMode {
		bottomBar = m.searchInput.View()
	} else {
		bottomBar = m.renderHelpBar()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.renderStatusBar(),
		content,
		m.renderLogPanel(m.width),
		bottomBar,
	)
}

func paneStyle(active bool, width, height int) lipgloss.Style {
	style := inactivePaneStyle
	if active {
		style = activePaneStyle
	}
	return style.Width(max(width-2, 1)).Height(max(height-2, 1))
}

// windowStart returns the first row to draw so that selected stays visible.
func windowStart(selected, total, rows int) int {
	if rows <= 0 || total <= rows {
		return 0
	}
	start := selected - rows/2
	return max(min(start, total-rows), 0)
}

func (m model) renderStatusBar() string {
	var conn string
	switch m.connState {
	case stateConnected:
		conn = connectedStyle.Render("● " + m.broker)
	case stateConnecting:
		conn = statusBarStyle.Render(m.spinner.View() + " Connecting...")
	default:
		text := "○ Disconnected"
		if m.connError != nil {
			text += " (" + m.connError.Error() + ")"
		}
		conn = disconnectedStyle.Render(truncate(text, max(m.width/2, 20)))
	}

	state := mutedStyle.Render("STOPPED")
	if m.running {
		state = runningStyle.Render(fmt.Sprintf("RUNNING %dq/%dt", len(m.monitoredQueues), len(m.monitoredTopics)))
	}

	parts := []string{
		conn, "  │  ", state, "  │  ",
		statusBarStyle.Render(fmt.Sprintf("Messages: %d", len(m.messages))),
		statusBarStyle.Render(formatRate(m.stats.msgPerSec(m.now()))),
		statusBarStyle.Render("avg " + formatBytes(m.stats.avgSize())),
	}
	if m.searchQuery != "" {
		if len(m.searchResults) > 0 {
			pos := sort.SearchInts(m.searchResults, m.msgIdx)
			parts = append(parts, statusBarStyle.Render(fmt.Sprintf("[%d/%d]", min(pos+1, len(m.searchResults)), len(m.searchResults))))
		} else {
			parts = append(parts, mutedStyle.Render("(no matches)"))
		}
	}
	if pending := m.vimKeys.Pending(); pending != "" {
		parts = append(parts, mutedStyle.Render(" "+pending))
	}
	if m.statusMsg != "" {
		parts = append(parts, "  "+confirmationStyle.Render(m.statusMsg))
	}
	return lipgloss.JoinHorizontal(lipgloss.Left, parts...)
}

func (m model) renderDestinations(width, height int) string {
	rows := max(height-3, 1)
	dests := m.destinations()
	inner := max(width-6, 4)

	lines := []string{paneTitleStyle.Render(fmt.Sprintf("Destinations (%d)", len(dests)))}
	if len(dests) == 0 {
		lines = append(lines, "", emptyStateStyle.Render("none discovered"), mutedStyle.Render("press r to rediscover"))
	}

	start := windowStart(m.destIdx, len(dests), rows)
	for i := start; i < len(dests) && i < start+rows; i++ {
		d := dests[i]
		marker := "  "
		if m.isMonitored(d) {
			marker = monitoredStyle.Render("● ")
		}
		kind := "Q"
		if d.Kind == message.Topic {
			kind = "T"
		}
		line := truncate(kind+" "+d.Name, inner)
		if i == m.destIdx && m.focus == paneDestinations {
			line = selectedStyle.Render(line)
		} else {
			line = normalStyle.Render(line)
		}
		lines = append(lines, marker+line)
	}

	return paneStyle(m.focus == paneDestinations, width, height).Render(strings.Join(lines, "\n"))
}

func (m model) renderMessageList(width, height int) string {
	rows := max(height-3, 1)
	inner := max(width-4, 10)
	now := m.now()

	lines := []string{paneTitleStyle.Render(fmt.Sprintf("Messages (%d)", len(m.messages)))}
	if len(m.messages) == 0 {
		hint := "press enter on a destination or a to monitor all"
		if m.running {
			hint = "waiting for messages..."
		}
		lines = append(lines, "", emptyStateStyle.Render("No messages yet"), mutedStyle.Render(hint))
	}

	start := windowStart(m.msgIdx, len(m.messages), rows)
	for i := start; i < len(m.messages) && i < start+rows; i++ {
		msg := m.messages[i]
		var prefix string
		if !m.compactMode {
			prefix = timestampStyle.Render(formatTimestamp(msg.TimestampMillis, m.timestampRel, now)) + " "
		}
		if isVisible(m.searchResults, i) {
			prefix = runningStyle.Render("*") + prefix
		}
		dest := destinationStyle.Render(truncate(msg.Destination, 16))
		used := lipgloss.Width(prefix) + lipgloss.Width(dest) + 1
		body := truncate(singleLine(msg.Body), max(inner-used, 4))

		line := normalStyle.Render(body)
		if i == m.msgIdx && m.focus == paneMessages {
			line = selectedStyle.Render(body)
		}
		lines = append(lines, prefix+dest+" "+line)
	}

	return paneStyle(m.focus == paneMessages, width, height).Render(strings.Join(lines, "\n"))
}

func (m model) detailLines() []string {
	msg, ok := m.selectedMessage()
	if !ok {
		return []string{emptyStateStyle.Render("No message selected")}
	}

	field := func(name, value string) string {
		return fieldNameStyle.Render(name+": ") + fieldValueStyle.Render(value)
	}
	lines := []string{
		field("ID", msg.ID),
		field("Destination", msg.Dest().String()),
		field("Type", msg.MessageType()),
		field("Timestamp", formatTimestamp(msg.TimestampMillis, false, m.now())),
	}

	if len(msg.Properties) > 0 {
		lines = append(lines, "", fieldNameStyle.Render("Properties"))
		keys := make([]string, 0, len(msg.Properties))
		for k := range msg.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			lines = append(lines, "  "+mutedStyle.Render(k+": ")+msg.Properties[k])
		}
	}

	lines = append(lines, "", fieldNameStyle.Render("Body"))
	lines = append(lines, strings.Split(formatBody(msg.Body), "\n")...)
	return lines
}

func (m model) renderDetailPanel(width, height int) string {
	rows := max(height-2, 1)
	lines := m.detailLines()
	offset := min(m.detailOffset, max(len(lines)-rows, 0))
	end := min(offset+rows, len(lines))
	return paneStyle(false, width, height).Render(strings.Join(lines[offset:end], "\n"))
}

func (m model) renderLogPanel(width int) string {
	start := max(len(m.logs)-logPanelRows, 0)
	lines := make([]string, 0, logPanelRows)
	for _, l := range m.logs[start:] {
		text := truncate(l.text, max(width-6, 10))
		if l.isErr {
			lines = append(lines, errorStyle.Render(text))
		} else {
			lines = append(lines, mutedStyle.Render(text))
		}
	}
	return inactivePaneStyle.Width(max(width-2, 1)).Height(logPanelRows).Render(strings.Join(lines, "\n"))
}

func (m model) renderHelpBar() string {
	items := []string{
		helpKeyStyle.Render("tab") + " pane",
		helpKeyStyle.Render("enter") + " monitor",
		helpKeyStyle.Render("a") + " all",
		helpKeyStyle.Render("x") + " stop",
		helpKeyStyle.Render("b") + " browse",
		helpKeyStyle.Render("r") + " rediscover",
		helpKeyStyle.Render("/") + " search",
		helpKeyStyle.Render("?") + " help",
		helpKeyStyle.Render("q") + " quit",
	}
	return helpStyle.Render(strings.Join(items, "  "))
}

func (m model) renderHelpOverlay() string {
	sections := []struct {
		title string
		keys  [][2]string
	}{
		{"Navigation", [][2]string{
			{"tab", "Switch between destinations and messages"},
			{"j/k", "Move down/up (counts work: 5j)"},
			{"gg/G", "Go to top/bottom"},
			{"ctrl+j/k", "Scroll message detail"},
		}},
		{"Monitoring", [][2]string{
			{"enter", "Monitor the selected destination"},
			{"a", "Monitor every discovered destination"},
			{"x", "Stop monitoring"},
			{"b", "Browse the selected queue once"},
			{"r", "Rediscover destinations (reconnects when down)"},
		}},
		{"Search", [][2]string{
			{"/", "Search (prefixes id: body: dest: prop: type: re:)"},
			{"n/N", "Next/previous match"},
		}},
		{"Actions", [][2]string{
			{"y", "Copy selected message as JSON"},
			{"e", "Export messages to CSV"},
		}},
		{"View", [][2]string{
			{"t", "Toggle compact rows"},
			{"T", "Toggle relative timestamps"},
			{"H/L", "Resize message/detail split"},
			{"?", "Close help"},
			{"q", "Quit"},
		}},
	}

	var sb strings.Builder
	sb.WriteString(headerStyle.Render("rabbitwatch keys"))
	sb.WriteString("\n\n")
	for _, s := range sections {
		sb.WriteString(paneTitleStyle.Render(s.title))
		sb.WriteString("\n")
		for _, k := range s.keys {
			sb.WriteString(fmt.Sprintf("  %s  %s\n", helpKeyStyle.Width(10).Render(k[0]), k[1]))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
