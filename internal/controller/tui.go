package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/term"

	m "gooze.dev/pkg/jgooze/internal/model"
)

const (
	maxBarWidth = 60
	maxRecent   = 8
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Border(lipgloss.DoubleBorder()).
			Padding(0, 2)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)

	scoreStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	statusStyles = map[m.TestStatus]lipgloss.Style{
		m.Killed:       lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		m.Timeout:      lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		m.Survived:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		m.Uncovered:    lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
		m.BuildFailure: lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		m.Skipped:      lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		m.Error:        lipgloss.NewStyle().Foreground(lipgloss.Color("160")).Bold(true),
	}
)

func styledStatus(status m.TestStatus) string {
	style, ok := statusStyles[status]
	if !ok {
		return status.String()
	}

	return style.Render(status.String())
}

// TUI implements UI using Bubble Tea for interactive display.
type TUI struct {
	output io.Writer

	mu      sync.Mutex
	program *tea.Program
	done    chan struct{}
	pager   *pagerModel
}

// NewTUI creates a new TUI.
func NewTUI(output io.Writer) *TUI {
	return &TUI{output: output}
}

// Start starts the live progress display of a test run. The other modes
// render when their results are displayed.
func (p *TUI) Start(ctx context.Context, options ...StartOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if startConfig(options).mode != ModeTest {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	model := newRunModel()
	if width, _, ok := p.size(); ok {
		model = model.resize(width)
	}

	// Cancellation reaches the workflow through ctx, so the program leaves
	// signals and keys alone.
	p.program = tea.NewProgram(model,
		tea.WithContext(ctx),
		tea.WithOutput(p.output),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
	)
	p.done = make(chan struct{})

	go func(program *tea.Program, done chan struct{}) {
		defer close(done)

		if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			slog.Warn("Progress display stopped", "error", err)
		}
	}(p.program, p.done)

	return nil
}

// Close stops the progress display, leaving its last frame on screen.
func (p *TUI) Close(context.Context) {
	p.mu.Lock()
	program, done := p.program, p.done
	p.program, p.done = nil, nil
	p.mu.Unlock()

	if program == nil {
		return
	}

	program.Quit()
	<-done
}

// Wait runs the pager of a long estimate or report until the user quits it.
func (p *TUI) Wait(ctx context.Context) {
	p.mu.Lock()
	pager := p.pager
	p.pager = nil
	p.mu.Unlock()

	if pager == nil || ctx.Err() != nil {
		return
	}

	program := tea.NewProgram(*pager, tea.WithContext(ctx), tea.WithOutput(p.output), tea.WithAltScreen())
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		slog.Warn("Pager stopped", "error", err)
	}
}

func (p *TUI) send(msg tea.Msg) {
	p.mu.Lock()
	program := p.program
	p.mu.Unlock()

	if program != nil {
		program.Send(msg)
	}
}

// size reports the terminal size when the output is a terminal.
func (p *TUI) size() (int, int, bool) {
	f, ok := p.output.(*os.File)
	if !ok {
		return 0, 0, false
	}

	width, height, err := term.GetSize(f.Fd())
	if err != nil {
		return 0, 0, false
	}

	return width, height, true
}

// page prints content at once when it fits the terminal and keeps a pager
// for Wait otherwise.
func (p *TUI) page(title, content string) error {
	pager := newPagerModel(title, strings.Split(strings.TrimRight(content, "\n"), "\n"))
	if width, height, ok := p.size(); ok {
		pager.width, pager.height = width, height
	}

	if !pager.needsPagination() {
		_, err := fmt.Fprint(p.output, pager.View())
		return err
	}

	p.mu.Lock()
	p.pager = &pager
	p.mu.Unlock()

	return nil
}

// DisplayEstimation shows the mutations found per file and operator.
func (p *TUI) DisplayEstimation(ctx context.Context, estimates []m.Estimate, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	if err != nil {
		_, _ = fmt.Fprintf(p.output, "%s %v\n", statusStyles[m.Error].Render("estimation error:"), err)
		return err
	}

	if len(estimates) == 0 {
		_, err := fmt.Fprintf(p.output, "%s\n  No source files found\n", titleStyle.Render("jgooze - Mutation Estimate"))
		return err
	}

	content := renderEstimationTable(estimates)
	if ops := operatorTotals(estimates); len(ops) > 0 {
		content += "\n" + renderOperatorTable(ops)
	}

	return p.page("jgooze - Mutation Estimate", content)
}

// DisplayConcurrencyInfo shows concurrency settings.
func (p *TUI) DisplayConcurrencyInfo(_ context.Context, threads int, shardIndex int, shardCount int) {
	p.send(concurrencyMsg{threads: threads, shardIndex: shardIndex, shardCount: shardCount})
}

// DisplayUpcomingTestsInfo sets the number of mutants the progress bar
// counts towards.
func (p *TUI) DisplayUpcomingTestsInfo(_ context.Context, total int) {
	p.send(upcomingMsg(total))
}

// DisplayStartingTestInfo shows what a worker is testing.
func (p *TUI) DisplayStartingTestInfo(_ context.Context, mutant *m.Mutant, path m.Path, workerID int) {
	line := mutant.Mutations[0].Line
	p.send(startedMsg{
		worker: workerID,
		mutant: mutant.ID,
		label:  fmt.Sprintf("mutant %d %s %s:%d", mutant.ID, operatorsOf(mutant), path, line),
	})
}

// DisplayCompletedTestInfo advances the progress bar.
func (p *TUI) DisplayCompletedTestInfo(_ context.Context, result m.Result) {
	p.send(completedMsg(result))
}

// DisplayMutationScore shows the final score below the progress bar.
func (p *TUI) DisplayMutationScore(_ context.Context, score float64) {
	p.send(scoreMsg(score))
}

// DisplayResults shows stored results. YAML is printed as is so it can be
// piped.
func (p *TUI) DisplayResults(ctx context.Context, summary Summary, format Format) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if format == FormatYAML {
		out, err := renderResultsYAML(summary)
		if err != nil {
			return err
		}

		_, err = fmt.Fprint(p.output, out)

		return err
	}

	content := renderResultsTable(summary) + "\n  " + scoreStyle.Render(fmt.Sprintf("Mutation score: %.2f%%", summary.Score*100))

	return p.page("jgooze - Mutation Testing Results", content)
}

type (
	concurrencyMsg struct {
		threads, shardIndex, shardCount int
	}
	upcomingMsg  int
	startedMsg   struct {
		worker, mutant int
		label          string
	}
	completedMsg m.Result
	scoreMsg     float64
)

// runModel is the live view of a test run.
type runModel struct {
	threads, shardIndex, shardCount int

	total, done int
	counts      map[m.TestStatus]int
	active      map[int]startedMsg
	recent      []string

	score  float64
	scored bool

	bar  progress.Model
	spin spinner.Model
}

func newRunModel() runModel {
	return runModel{
		shardCount: 1,
		counts:     make(map[m.TestStatus]int),
		active:     make(map[int]startedMsg),
		bar:        progress.New(progress.WithDefaultGradient(), progress.WithWidth(maxBarWidth)),
		spin:       spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
}

func (rm runModel) resize(width int) runModel {
	rm.bar.Width = max(10, min(maxBarWidth, width-20))
	return rm
}

func (rm runModel) Init() tea.Cmd {
	return rm.spin.Tick
}

func (rm runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return rm.resize(msg.Width), nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		rm.spin, cmd = rm.spin.Update(msg)

		return rm, cmd

	case concurrencyMsg:
		rm.threads, rm.shardIndex, rm.shardCount = msg.threads, msg.shardIndex, msg.shardCount

	case upcomingMsg:
		rm.total = int(msg)

	case startedMsg:
		rm.active[msg.worker] = msg

	case completedMsg:
		rm.complete(m.Result(msg))

	case scoreMsg:
		rm.score, rm.scored = float64(msg), true
	}

	return rm, nil
}

func (rm *runModel) complete(result m.Result) {
	rm.done++
	rm.counts[result.Status]++

	for worker, started := range rm.active {
		if started.mutant == result.MutantID {
			delete(rm.active, worker)
		}
	}

	if result.Status.Detected() {
		return
	}

	rm.recent = append(rm.recent, fmt.Sprintf("%s mutant %d %s %s:%d",
		styledStatus(result.Status), result.MutantID, result.Operator, result.Path, result.Line))
	if len(rm.recent) > maxRecent {
		rm.recent = rm.recent[len(rm.recent)-maxRecent:]
	}
}

func (rm runModel) percent() float64 {
	if rm.total == 0 {
		return 0
	}

	return float64(rm.done) / float64(rm.total)
}

func (rm runModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("jgooze - Mutation Testing"))
	b.WriteString("\n")
	b.WriteString(infoStyle.Render(fmt.Sprintf("  %d worker(s) | shard %d/%d", rm.threads, rm.shardIndex, rm.shardCount)))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "  %s %d/%d\n\n", rm.bar.ViewAs(rm.percent()), rm.done, rm.total)

	if line := rm.countsLine(); line != "" {
		fmt.Fprintf(&b, "  %s\n\n", line)
	}

	for _, worker := range slices.Sorted(maps.Keys(rm.active)) {
		fmt.Fprintf(&b, "  %s worker %d: %s\n", rm.spin.View(), worker, rm.active[worker].label)
	}

	if len(rm.recent) > 0 {
		b.WriteString("\n  Not detected:\n")

		for _, line := range rm.recent {
			fmt.Fprintf(&b, "    %s\n", line)
		}
	}

	if rm.scored {
		fmt.Fprintf(&b, "\n  %s\n", scoreStyle.Render(fmt.Sprintf("Mutation score: %.2f%%", rm.score*100)))
	}

	return b.String()
}

func (rm runModel) countsLine() string {
	var parts []string

	for _, status := range slices.Sorted(maps.Keys(rm.counts)) {
		parts = append(parts, fmt.Sprintf("%s %d", styledStatus(status), rm.counts[status]))
	}

	return strings.Join(parts, " | ")
}

// pagerModel shows lines that may not fit the terminal, scrolling with the
// keyboard.
type pagerModel struct {
	title    string
	lines    []string
	height   int
	width    int
	offset   int // Current scroll offset
	quitting bool
}

func newPagerModel(title string, lines []string) pagerModel {
	return pagerModel{title: title, lines: lines}
}

func (pm pagerModel) Init() tea.Cmd {
	return nil
}

func (pm pagerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		pm.height = msg.Height
		pm.width = msg.Width
		pm.offset = min(pm.offset, pm.maxOffset())

		return pm, nil

	case tea.KeyMsg:
		return pm.handleKeyPress(msg)
	}

	return pm, nil
}

//nolint:cyclop,exhaustive // Key handling requires multiple cases for UI navigation
func (pm pagerModel) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		pm.quitting = true
		return pm, tea.Quit
	default:
		// Handle other key types in the string switch below
	}

	switch msg.String() {
	case "q":
		pm.quitting = true
		return pm, tea.Quit

	case "down", "j":
		pm.offset = min(pm.offset+1, pm.maxOffset())

	case "up", "k":
		pm.offset = max(pm.offset-1, 0)

	case "g", "home":
		pm.offset = 0

	case "G", "end":
		pm.offset = pm.maxOffset()

	case "d", "pgdown":
		pm.offset = min(pm.offset+pm.itemsPerPage(), pm.maxOffset())

	case "u", "pgup":
		pm.offset = max(pm.offset-pm.itemsPerPage(), 0)
	}

	return pm, nil
}

// itemsPerPage calculates how many lines fit on screen.
func (pm pagerModel) itemsPerPage() int {
	if pm.height == 0 {
		return 10 // Default
	}

	// Title box (3 lines + blank) and footer (blank + position + help).
	reserved := 7

	return max(pm.height-reserved, 1)
}

// maxOffset returns the maximum scroll offset.
func (pm pagerModel) maxOffset() int {
	return max(len(pm.lines)-pm.itemsPerPage(), 0)
}

// needsPagination returns true if the lines do not fit on screen.
func (pm pagerModel) needsPagination() bool {
	return pm.height > 0 && len(pm.lines) > pm.itemsPerPage()
}

func (pm pagerModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(pm.title))
	b.WriteString("\n\n")

	if !pm.needsPagination() {
		for _, line := range pm.lines {
			fmt.Fprintf(&b, "%s\n", line)
		}

		return b.String()
	}

	start := min(pm.offset, pm.maxOffset())
	end := min(start+pm.itemsPerPage(), len(pm.lines))

	for _, line := range pm.lines[start:end] {
		fmt.Fprintf(&b, "%s\n", line)
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "  Lines %d-%d of %d\n", start+1, end, len(pm.lines))
	b.WriteString(helpStyle.Render("  ↑/k: up | ↓/j: down | d/u: page | g: top | G: bottom | q: quit"))
	b.WriteString("\n")

	return b.String()
}
