// Package tui is the interactive chat front end.
package tui

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"docqa/internal/domain"
	"docqa/internal/rag"
	"docqa/internal/session"
)

// Chain is the orchestrator surface the chat needs.
type Chain interface {
	Query(ctx context.Context, question string, returnSources bool) domain.QueryResult
	StreamQueryErr(ctx context.Context, question string) iter.Seq2[string, error]
	Sources(ctx context.Context, question string) []domain.Citation
	Info(ctx context.Context) rag.ChainInfo
}

// ChainFactory rebuilds the chain when k or temperature change.
type ChainFactory func(k int, temperature float64) (Chain, error)

type turn struct {
	question string
	answer   strings.Builder
	sources  []domain.Citation
	failed   bool
	started  time.Time
	elapsed  time.Duration
}

type (
	fragment struct {
		text string
		err  error
	}
	fragmentMsg struct {
		id int
		fragment
	}
	streamDoneMsg struct{ id int }
	sourcesMsg    struct {
		id      int
		sources []domain.Citation
	}
	answerMsg struct {
		id  int
		res domain.QueryResult
	}
)

// Model is the Bubble Tea model for the chat.
type Model struct {
	chain   Chain
	factory ChainFactory
	session *session.Session
	summary string

	input    textinput.Model
	viewport viewport.Model
	turns    []*turn
	status   string
	ready    bool

	// in-flight request; reqID guards against messages from a cancelled one
	busy   bool
	reqID  int
	ctx    context.Context
	cancel context.CancelFunc
	frags  chan fragment
}

// New creates the chat model. summary is shown under the header.
func New(chain Chain, factory ChainFactory, sess *session.Session, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question, /reset, /stream, /k N, /temp T"
	ti.Focus()
	ti.CharLimit = 0
	m := Model{
		chain:    chain,
		factory:  factory,
		session:  sess,
		summary:  summary,
		input:    ti,
		viewport: viewport.New(0, 0),
	}
	m.status = m.infoLine()
	return m
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and request events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := transcriptStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header+summary, status, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			m.stop()
			return m, tea.Quit
		case tea.KeyEsc:
			if m.busy {
				m.stop()
				m.finish(true)
				m.status = "Cancelled."
				m.refresh()
			}
			return m, nil
		case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		case tea.KeyEnter:
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy {
				return m, nil
			}
			m.input.Reset()
			if strings.HasPrefix(q, "/") {
				m.command(q)
				m.refresh()
				return m, nil
			}
			return m, m.ask(q)
		}

	case fragmentMsg:
		if msg.id != m.reqID || !m.busy {
			return m, nil
		}
		t := m.current()
		if msg.err != nil {
			if t.answer.Len() > 0 {
				t.answer.WriteString("\n")
			}
			t.answer.WriteString("Error: " + msg.err.Error())
			t.failed = true
		} else {
			t.answer.WriteString(msg.text)
		}
		m.refresh()
		return m, waitFragment(m.reqID, m.frags)

	case streamDoneMsg:
		if msg.id != m.reqID || !m.busy {
			return m, nil
		}
		t := m.current()
		if t.failed {
			m.finish(true)
			return m, nil
		}
		m.status = "Fetching sources..."
		return m, fetchSources(m.ctx, m.reqID, m.chain, t.question)

	case sourcesMsg:
		if msg.id != m.reqID || !m.busy {
			return m, nil
		}
		m.current().sources = msg.sources
		m.finish(false)
		return m, nil

	case answerMsg:
		if msg.id != m.reqID || !m.busy {
			return m, nil
		}
		t := m.current()
		if msg.res.Success {
			t.answer.WriteString(msg.res.Answer)
			t.sources = msg.res.Sources
		} else {
			t.answer.WriteString("Error: " + msg.res.Err.Error())
		}
		m.finish(!msg.res.Success)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the header, transcript, input box and status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("docqa")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(oneLine(m.summary, m.viewport.Width))
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	return header + "\n" + summary + "\n" + transcriptStyle.Render(m.viewport.View()) + "\n" + input + "\n" + status
}

func (m *Model) ask(q string) tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	m.reqID++
	m.ctx, m.cancel = ctx, cancel
	m.busy = true
	m.turns = append(m.turns, &turn{question: q, started: time.Now()})
	m.status = "Thinking... (Esc to cancel)"
	m.refresh()

	id, chain := m.reqID, m.chain
	if !m.session.Settings().Streaming {
		return func() tea.Msg {
			return answerMsg{id: id, res: chain.Query(ctx, q, true)}
		}
	}

	frags := make(chan fragment)
	m.frags = frags
	go func() {
		defer close(frags)
		for text, err := range chain.StreamQueryErr(ctx, q) {
			select {
			case frags <- fragment{text: text, err: err}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return waitFragment(id, frags)
}

func waitFragment(id int, frags <-chan fragment) tea.Cmd {
	return func() tea.Msg {
		f, ok := <-frags
		if !ok {
			return streamDoneMsg{id: id}
		}
		return fragmentMsg{id: id, fragment: f}
	}
}

func fetchSources(ctx context.Context, id int, chain Chain, q string) tea.Cmd {
	return func() tea.Msg {
		return sourcesMsg{id: id, sources: chain.Sources(ctx, q)}
	}
}

func (m *Model) current() *turn { return m.turns[len(m.turns)-1] }

func (m *Model) stop() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

func (m *Model) finish(failed bool) {
	t := m.current()
	t.elapsed = time.Since(t.started)
	t.failed = t.failed || failed
	m.stop()
	m.busy = false
	if !t.failed {
		m.session.Record(domain.QueryResult{
			Question:       t.question,
			Answer:         t.answer.String(),
			Success:        true,
			ProcessingTime: t.elapsed,
			Sources:        t.sources,
		})
		m.status = fmt.Sprintf("Answered in %.1fs with %d sources. %s", t.elapsed.Seconds(), len(t.sources), m.infoLine())
	} else {
		m.status = "Request failed. " + m.infoLine()
	}
	m.refresh()
}

func (m *Model) command(line string) {
	fields := strings.Fields(line)
	settings := m.session.Settings()
	switch fields[0] {
	case "/reset":
		m.session.Reset()
		m.turns = nil
		m.status = "Conversation cleared."
		return
	case "/stream":
		settings.Streaming = !settings.Streaming
	case "/k":
		var k int
		if len(fields) < 2 {
			m.status = "Usage: /k N (N > 0)"
			return
		}
		if _, err := fmt.Sscan(fields[1], &k); err != nil || k <= 0 {
			m.status = "Usage: /k N (N > 0)"
			return
		}
		settings.K = k
	case "/temp":
		var t float64
		if len(fields) < 2 {
			m.status = "Usage: /temp T (T >= 0)"
			return
		}
		if _, err := fmt.Sscan(fields[1], &t); err != nil || t < 0 {
			m.status = "Usage: /temp T (T >= 0)"
			return
		}
		settings.Temperature = t
	default:
		m.status = "Unknown command " + fields[0]
		return
	}
	if m.session.Update(settings) && m.factory != nil {
		chain, err := m.factory(settings.K, settings.Temperature)
		if err != nil {
			m.status = "Error: " + err.Error()
			return
		}
		m.chain = chain
	}
	m.status = m.infoLine()
}

func (m *Model) infoLine() string {
	info := m.chain.Info(context.Background())
	s := m.session.Settings()
	mode := "off"
	if s.Streaming {
		mode = "on"
	}
	return fmt.Sprintf("%s | k=%d temp=%.2f | %d chunks | embeddings %s | streaming %s",
		info.Model, info.K, info.Temperature, info.IndexedDocuments, info.EmbeddingModel, mode)
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m *Model) renderTranscript() string {
	if len(m.turns) == 0 {
		return "No questions yet."
	}
	var b strings.Builder
	for i, t := range m.turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(questionStyle.Render("You: " + t.question))
		b.WriteString("\n")
		answer := t.answer.String()
		if answer == "" {
			answer = "..."
		}
		if t.failed {
			b.WriteString(errorStyle.Render(answer))
		} else {
			b.WriteString(answer)
		}
		for _, c := range t.sources {
			b.WriteString("\n")
			b.WriteString(sourceStyle.Render(citationLabel(c)))
			b.WriteString(" ")
			b.WriteString(highlightBestSentence(c.Preview, t.question))
		}
	}
	return b.String()
}

func citationLabel(c domain.Citation) string {
	label := fmt.Sprintf("[%d] %s", c.Index, c.File)
	if c.Page != nil {
		label += fmt.Sprintf(" p.%d", *c.Page+1)
	}
	return label
}

func oneLine(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	if width > 3 && len([]rune(s)) > width {
		return string([]rune(s)[:width-3]) + "..."
	}
	return s
}

var (
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	questionStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	sourceStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)
