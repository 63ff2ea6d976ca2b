package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/wippyai/fp-bridge/host"
	"github.com/wippyai/fp-bridge/schema"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	asyncStyle = lipgloss.NewStyle().
			Italic(true).
			Foreground(lipgloss.Color("#FFD700"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateSelectFunc modelState = iota
	stateInputArgs
	stateCalling
	stateShowResult
)

type interactiveModel struct {
	err      error
	log      *zap.Logger
	session  *session
	instance *host.Instance
	opts     options
	result   string
	funcs    []*schema.Function
	inputs   []textinput.Model
	selected int
	focusIdx int
	state    modelState
	loaded   bool
}

type loadedMsg struct {
	err     error
	session *session
}

type callResultMsg struct {
	err    error
	result string
}

func newInteractiveModel(opts options, log *zap.Logger) *interactiveModel {
	return &interactiveModel{opts: opts, log: log, state: stateSelectFunc}
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.loadModule
}

func (m *interactiveModel) loadModule() tea.Msg {
	s, err := load(context.Background(), m.opts, m.log)
	return loadedMsg{session: s, err: err}
}

// exportedFuncs lists the protocol exports present in the binary.
func exportedFuncs(mod *host.Module) []*schema.Function {
	var funcs []*schema.Function
	for _, e := range mod.Exports() {
		if e.Function != nil {
			funcs = append(funcs, e.Function)
		}
	}
	return funcs
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.close()
			return m, tea.Quit

		case "q":
			if m.state != stateInputArgs {
				m.close()
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectFunc && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectFunc && m.selected < len(m.funcs)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectFunc:
				if len(m.funcs) == 0 {
					return m, nil
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					m.state = stateCalling
					return m, m.callFunction
				}
				m.state = stateInputArgs

			case stateInputArgs:
				m.state = stateCalling
				return m, m.callFunction

			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectFunc
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			}
		}

	case loadedMsg:
		m.loaded = true
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.session = msg.session
		m.funcs = exportedFuncs(msg.session.mod)

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *interactiveModel) close() {
	ctx := context.Background()
	if m.instance != nil {
		m.instance.Close(ctx)
	}
	if m.session != nil {
		m.session.Close(ctx)
	}
}

func (m *interactiveModel) prepareInputs() {
	f := m.funcs[m.selected]
	m.inputs = make([]textinput.Model, len(f.Params))
	for i, p := range f.Params {
		ti := textinput.New()
		ti.Placeholder = schema.TypeString(p.Type)
		ti.Prompt = p.Name + ": "
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) callFunction() tea.Msg {
	ctx := context.Background()

	if m.instance == nil {
		inst, err := m.session.mod.Instantiate(ctx)
		if err != nil {
			return callResultMsg{err: err}
		}
		m.instance = inst
	}

	f := m.funcs[m.selected]
	values := make([]string, len(m.inputs))
	for i, input := range m.inputs {
		values[i] = input.Value()
	}
	args, err := convertArgs(f, values)
	if err != nil {
		return callResultMsg{err: err}
	}

	result, err := callExport(ctx, m.instance, f, args)
	if err != nil {
		return callResultMsg{err: err}
	}
	return callResultMsg{result: formatResult(result)}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}
	if !m.loaded {
		return "Loading module..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("FP Runner"))
	b.WriteString(" ")
	b.WriteString(m.opts.wasmFile)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		if len(m.funcs) == 0 {
			b.WriteString("The module exports no protocol functions.\n\n")
			b.WriteString(helpStyle.Render("q quit"))
			break
		}
		b.WriteString("Select a function to call:\n\n")
		for i, f := range m.funcs {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + formatFunc(f)))
			} else {
				b.WriteString("  " + formatFunc(f))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • q quit"))

	case stateInputArgs:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(f.Name)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(schema.TypeString(f.Params[i].Type)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateCalling:
		b.WriteString(fmt.Sprintf("Calling %s...\n", funcStyle.Render(m.funcs[m.selected].Name)))

	case stateShowResult:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(f.Name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func formatFunc(f *schema.Function) string {
	var params []string
	for _, p := range f.Params {
		params = append(params, p.Name+": "+typeStyle.Render(schema.TypeString(p.Type)))
	}
	result := ""
	if f.Result != nil {
		result = " -> " + typeStyle.Render(schema.TypeString(f.Result))
	}
	prefix := ""
	if f.Async {
		prefix = asyncStyle.Render("async") + " "
	}
	return prefix + funcStyle.Render(f.Name) + "(" + strings.Join(params, ", ") + ")" + result
}

func runInteractive(opts options, log *zap.Logger) error {
	p := tea.NewProgram(newInteractiveModel(opts, log), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
