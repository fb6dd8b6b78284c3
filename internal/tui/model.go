// Package tui implements the interactive question-and-answer terminal UI.
package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"eurorag/internal/service"
)

// AskPort is the TUI-facing subset of the RAG service.
type AskPort interface {
	Ask(ctx context.Context, question string) (service.Answer, error)
}

// exchange is one question with its answer or error.
type exchange struct {
	question string
	answer   service.Answer
	err      error
}

type answerMsg struct {
	exchange
}

// Model is the Bubble Tea model for the chat session.
type Model struct {
	ctx         context.Context
	service     AskPort
	input       textinput.Model
	viewport    viewport.Model
	spinner     spinner.Model
	history     []exchange
	status      string
	pending     bool
	showSources bool
	ready       bool
}

// New creates a new TUI model instance.
func New(ctx context.Context, svc AskPort) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about Bulgaria's adoption of the euro (exit, quit or bye to leave)"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		ctx:      ctx,
		service:  svc,
		input:    ti,
		viewport: vp,
		spinner:  sp,
		status:   "Welcome to the Euro adoption information assistant.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// IsExit reports whether input ends the session.
func IsExit(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "quit", "bye":
		return true
	}
	return false
}

func (m Model) ask(q string) tea.Cmd {
	return func() tea.Msg {
		a, err := m.service.Ask(m.ctx, q)
		return answerMsg{exchange{question: q, answer: a, err: err}}
	}
}

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around the transcript and query boxes
		_, rh := transcriptBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 1 + 1 + qh + 1 // header, status, input line
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.refresh()
		return m, nil
	case answerMsg:
		m.pending = false
		m.history = append(m.history, msg.exchange)
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.status = fmt.Sprintf("Answered in %s. Tab toggles sources.", msg.answer.Duration.Round(time.Millisecond))
		}
		m.refresh()
		return m, nil
	case spinner.TickMsg:
		if !m.pending {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.pending {
				return m, nil
			}
			if IsExit(q) {
				m.status = "Thank you for using the Euro information assistant. Goodbye!"
				return m, tea.Quit
			}
			m.input.SetValue("")
			m.pending = true
			m.status = "Searching the BNB sources..."
			return m, tea.Batch(m.ask(q), m.spinner.Tick)
		case "tab":
			m.showSources = !m.showSources
			m.refresh()
			return m, nil
		case "pgup", "pgdown", "up", "down":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the TUI layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Euro adoption assistant (BNB sources)")
	status := m.status
	if m.pending {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" +
		transcriptBoxStyle.Render(m.viewport.View()) + "\n" +
		queryBoxStyle.Render(m.input.View()) + "\n" +
		statusStyle.Render(status)
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	if len(m.history) == 0 {
		return "Ask a question about Bulgaria's adoption of the Euro."
	}
	var b strings.Builder
	for i, ex := range m.history {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(questionStyle.Render("> " + ex.question))
		b.WriteString("\n")
		if ex.err != nil {
			b.WriteString(errorStyle.Render(ex.err.Error()))
			continue
		}
		b.WriteString(highlightBestSentence(ex.answer.Text, ex.question))
		if m.showSources && i == len(m.history)-1 && ex.answer.Grounding != "" {
			b.WriteString("\n\n")
			b.WriteString(sourcesStyle.Render(ex.answer.Grounding))
		}
	}
	return b.String()
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	questionStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	errorStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	sourcesStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	highlightStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	unicodeWordRe      = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’]\p{L}+)*`)
	sentenceRe         = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

// highlightBestSentence emphasises the answer sentence sharing the most
// words with the question.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		return text
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return text
	}
	bestIdx := 0
	bestScore := 0
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	if bestScore == 0 {
		return text
	}
	best := strings.TrimSpace(sentences[bestIdx])
	return strings.Replace(text, best, highlightStyle.Render(best), 1)
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
