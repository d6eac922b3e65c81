package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/term"
	"github.com/mattn/go-isatty"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			PaddingLeft(2)

	matchStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("228")).
			Foreground(lipgloss.Color("0"))

	currentStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("196")).
			Foreground(lipgloss.Color("15"))
)

// chrome is the number of lines taken by the title and the help bar.
const chrome = 2

// match is one search hit, as a line number and a byte range in that line.
type match struct {
	line       int
	start, end int
}

type pager struct {
	title    string
	lines    []string
	viewport viewport.Model
	ready    bool

	searching bool
	input     textinput.Model
	query     string
	matches   []match
	current   int
}

func newPager(title, content string) *pager {
	ti := textinput.New()
	ti.Prompt = "/"
	ti.PromptStyle = helpStyle
	return &pager{
		title: title,
		lines: strings.Split(content, "\n"),
		input: ti,
	}
}

func (p *pager) Init() tea.Cmd {
	return nil
}

func (p *pager) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !p.ready {
			p.viewport = viewport.New(msg.Width, msg.Height-chrome)
			p.ready = true
		} else {
			p.viewport.Width = msg.Width
			p.viewport.Height = msg.Height - chrome
		}
		p.render()

	case tea.KeyMsg:
		if p.searching {
			return p.updateSearch(msg)
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return p, tea.Quit
		case "esc":
			p.clear()
			return p, nil
		case "/":
			p.searching = true
			p.input.Reset()
			p.input.Focus()
			return p, textinput.Blink
		case "n":
			p.jump(1)
			return p, nil
		case "N":
			p.jump(-1)
			return p, nil
		case "g", "home":
			p.viewport.GotoTop()
			return p, nil
		case "G", "end":
			p.viewport.GotoBottom()
			return p, nil
		}
	}

	var cmd tea.Cmd
	p.viewport, cmd = p.viewport.Update(msg)
	return p, cmd
}

func (p *pager) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		p.searching = false
		p.input.Blur()
		return p, nil
	case tea.KeyEnter:
		p.searching = false
		p.input.Blur()
		p.search(p.input.Value())
		return p, nil
	}
	var cmd tea.Cmd
	p.input, cmd = p.input.Update(msg)
	return p, cmd
}

// search finds every occurrence of q. The search is case-insensitive unless
// q has an upper case letter.
func (p *pager) search(q string) {
	p.query = q
	p.matches = findMatches(p.lines, q)
	p.current = 0
	// start from the first hit at or below the top of the screen
	for i, m := range p.matches {
		if m.line >= p.viewport.YOffset {
			p.current = i
			break
		}
	}
	p.render()
	p.reveal()
}

func findMatches(lines []string, q string) []match {
	if q == "" {
		return nil
	}
	fold := q == strings.ToLower(q)
	if fold {
		q = strings.ToLower(q)
	}
	var out []match
	for n, line := range lines {
		hay := line
		if fold {
			hay = strings.ToLower(line)
		}
		// lowering can change byte lengths; fall back to exact matching then
		if len(hay) != len(line) {
			hay = line
		}
		for off := 0; ; {
			i := strings.Index(hay[off:], q)
			if i < 0 {
				break
			}
			start := off + i
			out = append(out, match{line: n, start: start, end: start + len(q)})
			off = start + len(q)
		}
	}
	return out
}

func (p *pager) jump(delta int) {
	if len(p.matches) == 0 {
		return
	}
	p.current = (p.current + delta + len(p.matches)) % len(p.matches)
	p.render()
	p.reveal()
}

func (p *pager) clear() {
	p.query = ""
	p.matches = nil
	p.current = 0
	p.render()
}

// reveal scrolls so the current match is on screen.
func (p *pager) reveal() {
	if len(p.matches) == 0 {
		return
	}
	line := p.matches[p.current].line
	switch {
	case line < p.viewport.YOffset:
		p.viewport.SetYOffset(line)
	case line >= p.viewport.YOffset+p.viewport.Height:
		p.viewport.SetYOffset(line - p.viewport.Height + 1)
	}
}

// render rebuilds the viewport content with the matches highlighted.
func (p *pager) render() {
	if !p.ready {
		return
	}
	if len(p.matches) == 0 {
		p.viewport.SetContent(strings.Join(p.lines, "\n"))
		return
	}
	out := make([]string, len(p.lines))
	copy(out, p.lines)
	byLine := map[int][]int{}
	for i, m := range p.matches {
		byLine[m.line] = append(byLine[m.line], i)
	}
	for n, idx := range byLine {
		line := p.lines[n]
		var b strings.Builder
		last := 0
		for _, i := range idx {
			m := p.matches[i]
			b.WriteString(line[last:m.start])
			style := matchStyle
			if i == p.current {
				style = currentStyle
			}
			b.WriteString(style.Render(line[m.start:m.end]))
			last = m.end
		}
		b.WriteString(line[last:])
		out[n] = b.String()
	}
	p.viewport.SetContent(strings.Join(out, "\n"))
}

func (p *pager) View() string {
	if !p.ready {
		return "\nLoading..."
	}
	header := titleStyle.Render(p.title)
	if pct := p.viewport.ScrollPercent(); pct < 1 {
		header += helpStyle.Render(fmt.Sprintf("%3.f%%", pct*100))
	}
	var footer string
	switch {
	case p.searching:
		footer = p.input.View()
	case len(p.matches) > 0:
		footer = helpStyle.Render(fmt.Sprintf("%q %d/%d • n next • N previous • esc clear • q quit", p.query, p.current+1, len(p.matches)))
	case p.query != "":
		footer = helpStyle.Render(fmt.Sprintf("%q not found • / search • q quit", p.query))
	default:
		footer = helpStyle.Render("↑/k ↓/j scroll • g/G top/bottom • / search • q quit")
	}
	return header + "\n" + p.viewport.View() + "\n" + footer
}

// show writes content to stdout, or opens the pager when stdout is a terminal
// and content does not fit on one screen.
func show(title, content string) error {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		return write(os.Stdout, content)
	}
	_, height, err := term.GetSize(os.Stdout.Fd())
	if err != nil || strings.Count(content, "\n")+1 <= height-chrome {
		return write(os.Stdout, content)
	}
	_, err = tea.NewProgram(newPager(title, content), tea.WithAltScreen()).Run()
	return err
}

func write(w io.Writer, content string) error {
	_, err := io.WriteString(w, content)
	return err
}
