package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/muesli/reflow/wordwrap"

	"github.com/Aksor9/AI-GameMaster/pkg/queue"
	"github.com/Aksor9/AI-GameMaster/pkg/state"
)

const (
	AgentName       = "GM"
	PlaceHolderText = "Type your action here..."
)

type logEntry struct {
	Role    string // "gm", "user", "system", "error"
	Content string
}

// ConsoleUI is the BubbleTea model that runs the UI.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	config       *ConsoleConfig
	api          *APIClient
	sessionID    uuid.UUID
	clientID     string
	events       chan queue.Result
	gameState    *state.GameState
	log          []logEntry
	chatViewport viewport.Model
	metaViewport viewport.Model
	textarea     textarea.Model
	ready        bool
	width        int
	height       int
	err          error
	loading      bool

	// Quit confirmation state
	showQuitModal bool

	// Progress bar state
	progressTick int
}

type resultMsg struct {
	result queue.Result
}

type eventsClosedMsg struct{}

type actionSentMsg struct {
	err error
}

type progressTickMsg struct{}

var (
	chatPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(1).
			PaddingLeft(3).
			PaddingRight(0)

	metaPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(0).
			PaddingLeft(0).
			PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	speakerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")). // purple
			Bold(true)

	narratorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	systemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)
)

var separatorStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("240")) // dark grey

func NewConsoleUI(cfg *ConsoleConfig, api *APIClient, sessionID uuid.UUID, clientID string, events chan queue.Result) ConsoleUI {
	ta := textarea.New()
	ta.Placeholder = PlaceHolderText
	ta.Focus()
	ta.Prompt = promptStyle.Render(":: ")
	ta.CharLimit = 1000
	ta.SetWidth(50)
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	chatVp := viewport.New(50, 20)
	chatVp.MouseWheelEnabled = true

	metaVp := viewport.New(20, 20)

	return ConsoleUI{
		config:       cfg,
		api:          api,
		sessionID:    sessionID,
		clientID:     clientID,
		events:       events,
		textarea:     ta,
		chatViewport: chatVp,
		metaViewport: metaVp,
		ready:        false,
		loading:      true,
	}
}

func (m ConsoleUI) Init() tea.Cmd {
	// Kick the session out of NEW_GAME so the first world options arrive
	// without the player having to type anything.
	return tea.Batch(
		m.submitAction("START", nil, ""),
		m.waitForEvent(),
		progressTick(),
		textarea.Blink,
	)
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}

	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		mvCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.MouseMsg:
		m.chatViewport, vpCmd = m.chatViewport.Update(msg)
		m.textarea, tiCmd = m.textarea.Update(msg)
		m.metaViewport, mvCmd = m.metaViewport.Update(msg)
		return m, tea.Batch(tiCmd, vpCmd, mvCmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		chatWidth := int(float64(m.width)*0.75) - 4
		metaWidth := m.width - chatWidth - 6

		m.chatViewport.Width = chatWidth - 2
		m.chatViewport.Height = m.height - 7
		m.metaViewport.Width = metaWidth - 2
		m.metaViewport.Height = m.height - 4
		m.textarea.SetWidth(chatWidth - 4)

		m.ready = true
		m.writeChatContent()
		m.metaViewport.SetContent(m.writeMetadata())

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyEnter:
			if m.loading {
				return m, nil
			}

			input := strings.TrimSpace(m.textarea.Value())
			if input == "" {
				return m, nil
			}

			if strings.HasPrefix(input, "/") {
				return m.handleCommand(input)
			}

			m.textarea.Reset()
			m.loading = true
			m.progressTick = 0
			m.log = append(m.log, logEntry{Role: "user", Content: input})
			m.writeChatContent()

			return m, tea.Batch(m.sendInput(input), progressTick())
		}

	case actionSentMsg:
		if msg.err != nil {
			m.loading = false
			m.err = msg.err
			m.log = append(m.log, logEntry{Role: "error", Content: msg.err.Error()})
			m.writeChatContent()
		}

	case resultMsg:
		m.loading = false
		m.applyResult(msg.result.Result)
		m.writeChatContent()
		m.metaViewport.SetContent(m.writeMetadata())
		return m, m.waitForEvent()

	case eventsClosedMsg:
		m.loading = false
		m.log = append(m.log, logEntry{Role: "error", Content: "Event stream closed. Restart the console to reconnect."})
		m.writeChatContent()

	case progressTickMsg:
		if m.loading {
			m.progressTick++
			m.writeChatContent()
			return m, progressTick()
		}
	}

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.chatViewport, vpCmd = m.chatViewport.Update(msg)
	m.metaViewport, mvCmd = m.metaViewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, mvCmd)
}

// applyResult folds one worker result into the transcript and game state.
func (m *ConsoleUI) applyResult(ev queue.ResultEvent) {
	if ev.NewGameState != nil {
		m.gameState = ev.NewGameState
	}

	switch ev.EventType {
	case queue.EventWorldOptions:
		var b strings.Builder
		b.WriteString("Choose your world:\n")
		for i, w := range ev.WorldOptions {
			b.WriteString(fmt.Sprintf("\n%d. %s\n   %s\n   Hook: %s\n", i+1, w.Name, w.Description, w.MainPlotHook))
		}
		m.log = append(m.log, logEntry{Role: "gm", Content: b.String()})

	case queue.EventClassOptions:
		var b strings.Builder
		b.WriteString("Choose a class for the next character:\n")
		for i, c := range ev.ClassOptions {
			b.WriteString(fmt.Sprintf("\n%d. %s\n   %s\n   Weapon: %s\n", i+1, c.Name, c.Description, c.StartingWeapon))
		}
		m.log = append(m.log, logEntry{Role: "gm", Content: b.String()})

	case queue.EventPromptUser:
		prompt := ev.PromptUserFor
		if prompt == "" {
			prompt = ev.Narrative
		}
		m.log = append(m.log, logEntry{Role: "gm", Content: prompt})

	case queue.EventNarrativeUpdate:
		if ev.Narrative != "" {
			m.log = append(m.log, logEntry{Role: "gm", Content: ev.Narrative})
		}

	case queue.EventDiceRollRequest:
		if ev.Narrative != "" {
			m.log = append(m.log, logEntry{Role: "gm", Content: ev.Narrative})
		}
		m.log = append(m.log, logEntry{Role: "system",
			Content: "A dice roll is required. Type anything to confirm the roll, or a number 1-20 to use your own."})

	case queue.EventStateForced:
		m.log = append(m.log, logEntry{Role: "system", Content: "Session state was overwritten."})

	case queue.EventError:
		m.log = append(m.log, logEntry{Role: "error", Content: ev.Error})

	default:
		if ev.Narrative != "" {
			m.log = append(m.log, logEntry{Role: "gm", Content: ev.Narrative})
		}
	}
}

// sendInput maps free text to the action the current phase expects.
func (m ConsoleUI) sendInput(input string) tea.Cmd {
	if m.gameState != nil && m.gameState.Phase == state.PhaseAwaitingRollConfirm {
		var payload json.RawMessage
		if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= 20 {
			payload = json.RawMessage(fmt.Sprintf(`{"roll": %d}`, n))
		}
		actorID := ""
		if m.gameState.PendingAction != nil {
			actorID = m.gameState.PendingAction.ActingCharacterID
		}
		return m.submitAction(queue.ActionConfirmDiceRoll, payload, actorID)
	}

	payload, _ := json.Marshal(map[string]string{"text": input})
	actorID := ""
	if m.gameState != nil &&
		(m.gameState.Phase == state.PhaseGameInProgress || m.gameState.Phase == state.PhaseInCombat) {
		actorID = m.gameState.CurrentTurnEntityID
	}
	return m.submitAction("PLAYER_INPUT", payload, actorID)
}

func (m ConsoleUI) submitAction(actionType string, payload json.RawMessage, actorID string) tea.Cmd {
	return func() tea.Msg {
		err := m.api.SubmitAction(m.sessionID, actionRequest{
			ClientID:   m.clientID,
			ActorID:    actorID,
			ActionType: actionType,
			Payload:    payload,
			Language:   m.config.Language,
		})
		return actionSentMsg{err}
	}
}

func (m ConsoleUI) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		result, ok := <-m.events
		if !ok {
			return eventsClosedMsg{}
		}
		return resultMsg{result}
	}
}

func (m ConsoleUI) handleCommand(input string) (tea.Model, tea.Cmd) {
	cmd := strings.ToLower(strings.TrimSpace(input))

	switch cmd {
	case "/help":
		helpText := `
Commands:
• /help - Show this help
• /party - Show the party roster
• Ctrl+C - Quit game

How to play:
• Type your actions and press Enter
• During setup, answer the GM's prompts
• When a dice roll is requested, type anything to confirm the roll
`
		m.log = append(m.log, logEntry{Role: "system", Content: titleStyle.Render("Help:") + helpText})
		m.writeChatContent()

	case "/party":
		var b strings.Builder
		b.WriteString(titleStyle.Render("Party:") + "\n")
		if m.gameState == nil || len(m.gameState.Party) == 0 {
			b.WriteString("No characters yet.\n")
		} else {
			for _, pc := range m.gameState.Party {
				b.WriteString(fmt.Sprintf("• %s the %s (L%d)  HP %d/%d  XP %d\n",
					pc.Name, pc.Class, pc.Level, pc.Health, pc.MaxHealth, pc.XP))
				for _, item := range pc.Inventory {
					b.WriteString(fmt.Sprintf("    - %s\n", item.Name))
				}
			}
		}
		m.log = append(m.log, logEntry{Role: "system", Content: b.String()})
		m.writeChatContent()
	}

	m.textarea.Reset()
	return m, nil
}

// writeChatContent rebuilds the transcript for the current viewport width.
func (m *ConsoleUI) writeChatContent() {
	chatWidth := m.chatViewport.Width - 6

	var content strings.Builder
	content.WriteString(titleStyle.Render("AI GAMEMASTER") + "\n\n")
	content.WriteString("Session " + m.sessionID.String()[:8] + ". Type below to play.\n\n")
	content.WriteString(separatorStyle.Render(strings.Repeat("─", max(chatWidth-6, 1))) + "\n\n")

	for _, entry := range m.log {
		switch entry.Role {
		case "gm":
			content.WriteString(formatNarratorResponse(entry.Content, chatWidth) + "\n\n")
		case "user":
			content.WriteString(userStyle.Render("You: ") + wordwrap.String(entry.Content, chatWidth-6) + "\n\n")
		case "system":
			content.WriteString(systemStyle.Render(wordwrap.String(entry.Content, chatWidth)) + "\n\n")
		case "error":
			content.WriteString(errorStyle.Render("Error: "+wordwrap.String(entry.Content, chatWidth)) + "\n\n")
		}
	}

	if m.loading {
		content.WriteString(m.renderProgressBar())
	}

	m.chatViewport.SetContent(content.String())
	m.chatViewport.GotoBottom()
}

func (m *ConsoleUI) writeMetadata() string {
	var content strings.Builder
	content.WriteString(titleStyle.Render("GAME STATE") + "\n\n")

	content.WriteString("Session:\n")
	content.WriteString(m.sessionID.String()[:8] + "...\n\n")

	if m.gameState == nil {
		content.WriteString("Waiting for first update...\n")
		return content.String()
	}

	content.WriteString("Phase:\n")
	content.WriteString(string(m.gameState.Phase) + "\n\n")

	if m.gameState.World != nil {
		content.WriteString("World:\n")
		content.WriteString(m.gameState.World.Name + "\n\n")
	}

	if m.gameState.SceneContext.LocationName != "" {
		content.WriteString("Location:\n")
		content.WriteString(m.gameState.SceneContext.LocationName + "\n\n")
	}

	if len(m.gameState.Party) > 0 {
		content.WriteString("Party:\n")
		for _, pc := range m.gameState.Party {
			marker := "  "
			if pc.CharacterID == m.gameState.CurrentTurnEntityID {
				marker = "▶ "
			}
			content.WriteString(fmt.Sprintf("%s%s %d/%d\n", marker, pc.Name, pc.Health, pc.MaxHealth))
		}
		content.WriteString("\n")
	}

	if len(m.gameState.InitiativeOrder) > 0 {
		content.WriteString("Initiative:\n")
		for _, id := range m.gameState.InitiativeOrder {
			name := id
			if a := m.gameState.FindActor(id); a != nil {
				name = a.Name
			}
			marker := "  "
			if id == m.gameState.CurrentTurnEntityID {
				marker = "▶ "
			}
			content.WriteString(marker + name + "\n")
		}
		content.WriteString("\n")
	}

	if len(m.gameState.QuestLog) > 0 {
		content.WriteString("Quests:\n")
		for _, q := range m.gameState.QuestLog {
			content.WriteString(fmt.Sprintf("• %s (%s)\n", q.Title, q.Status))
		}
		content.WriteString("\n")
	}

	content.WriteString("Commands:\n")
	content.WriteString("• Ctrl+C: Quit\n")
	content.WriteString("• Enter: Send\n")
	content.WriteString("• /help: Help\n")
	content.WriteString("• /party: Party\n")

	return content.String()
}

func formatNarratorResponse(response string, width int) string {
	// Check if response already has a speaker prefix
	hasPrefix := false
	if idx := strings.Index(response, ":"); idx > 0 && idx <= 20 {
		speaker := response[:idx]
		if len(strings.Fields(speaker)) <= 2 {
			hasPrefix = true
		}
	}

	wrapWidth := width
	if !hasPrefix {
		narratorPrefix := AgentName + ": "
		wrapWidth = width - len(narratorPrefix)
	}

	wrappedResponse := wordwrap.String(response, wrapWidth)
	lines := strings.Split(wrappedResponse, "\n")
	var formattedLines []string

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			formattedLines = append(formattedLines, "")
			continue
		}

		if idx := strings.Index(trimmed, ":"); idx > 0 && idx <= 20 {
			speaker := trimmed[:idx]
			rest := trimmed[idx+1:]
			if len(strings.Fields(speaker)) <= 2 {
				formattedLines = append(formattedLines, speakerStyle.Render(speaker+":")+rest)
				continue
			}
		}

		formattedLines = append(formattedLines, line)
	}

	result := strings.Join(formattedLines, "\n")
	if !hasPrefix {
		result = narratorStyle.Render(AgentName+": ") + result
	}

	return result
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyEnter:
			return m, tea.Quit
		default:
			switch msg.String() {
			case "y", "Y":
				return m, tea.Quit
			case "n", "N":
				m.showQuitModal = false
				m.textarea.Focus()
				return m, textarea.Blink
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) renderQuitModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Quit Game?"))
	content.WriteString("\n\n")
	content.WriteString("Are you sure you want to quit your adventure?")
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to continue, or Ctrl+C to force quit"))

	modal := modalStyle.Width(50).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if m.showQuitModal {
		return m.renderQuitModal()
	}

	if !m.ready {
		return "\n  Initializing..."
	}

	chatWidth := int(float64(m.width)*0.75) - 4
	metaWidth := m.width - chatWidth - 6

	chatPanel := chatPanelStyle.Width(chatWidth).Height(m.height - 3).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.chatViewport.View(),
			"",
			separatorStyle.Render(strings.Repeat("─", max(chatWidth-4, 1))),
			m.textarea.View(),
		),
	)

	metaPanel := metaPanelStyle.Width(metaWidth).Height(m.height - 2).Render(
		m.metaViewport.View(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, chatPanel, metaPanel)
}

// renderProgressBar creates an animated progress bar for loading states
func (m ConsoleUI) renderProgressBar() string {
	usable := m.chatViewport.Width - 6
	if usable <= 0 {
		usable = 30 // fallback before sizing
	}

	if usable > 80 {
		usable = 80
	} else if usable < 10 {
		usable = 10
	}

	const totalFrames = 40
	frame := m.progressTick % totalFrames
	filled := (frame * usable) / totalFrames

	var bar strings.Builder
	for i := 0; i < usable; i++ {
		if i < filled {
			bar.WriteString("█")
		} else if i == filled && frame%4 < 2 {
			bar.WriteString("▓")
		} else {
			bar.WriteString("░")
		}
	}
	return separatorStyle.Render(bar.String())
}

// progressTick creates a command that sends a progress tick message
func progressTick() tea.Cmd {
	return tea.Tick(time.Millisecond*200, func(time.Time) tea.Msg {
		return progressTickMsg{}
	})
}
