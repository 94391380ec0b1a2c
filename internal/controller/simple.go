package controller

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	m "gooze.dev/pkg/jgooze/internal/model"
)

// SimpleUI implements UI using cobra Command's output.
type SimpleUI struct {
	cmd *cobra.Command
}

// NewSimpleUI creates a new SimpleUI.
func NewSimpleUI(cmd *cobra.Command) *SimpleUI {
	return &SimpleUI{cmd: cmd}
}

// Start initializes the UI.
func (s *SimpleUI) Start(ctx context.Context, _ ...StartOption) error {
	return ctx.Err()
}

// Close finalizes the UI.
func (s *SimpleUI) Close(context.Context) {}

// Wait blocks until the UI is closed (no-op for SimpleUI).
func (s *SimpleUI) Wait(context.Context) {}

// DisplayEstimation prints the estimation results or error.
func (s *SimpleUI) DisplayEstimation(ctx context.Context, estimates []m.Estimate, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	if err != nil {
		s.printf("estimation error: %v\n", err)
		return err
	}

	s.printf("\n%s", renderEstimationTable(estimates))

	if ops := operatorTotals(estimates); len(ops) > 0 {
		s.printf("\n%s", renderOperatorTable(ops))
	}

	return nil
}

func sortedEstimates(estimates []m.Estimate) []m.Estimate {
	return slices.SortedFunc(slices.Values(estimates), func(a, b m.Estimate) int {
		return strings.Compare(string(a.Path), string(b.Path))
	})
}

func renderEstimationTable(estimates []m.Estimate) string {
	var tableBuffer bytes.Buffer

	table := tablewriter.NewWriter(&tableBuffer)
	table.SetHeader([]string{"Path", "Mutations", "Mutants", "Lines"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_CENTER, tablewriter.ALIGN_CENTER, tablewriter.ALIGN_CENTER})

	mutations, mutants := 0, 0

	for _, est := range sortedEstimates(estimates) {
		table.Append([]string{
			string(est.Path),
			strconv.Itoa(est.Mutations),
			strconv.Itoa(est.Mutants),
			strconv.Itoa(len(est.Density)),
		})

		mutations += est.Mutations
		mutants += est.Mutants
	}

	table.SetFooter([]string{
		fmt.Sprintf("Total Files %d", len(estimates)),
		strconv.Itoa(mutations),
		strconv.Itoa(mutants),
		"",
	})

	table.Render()

	return tableBuffer.String()
}

type operatorCount struct {
	name  string
	count int
}

// operatorTotals sums the mutations per operator, most frequent first.
func operatorTotals(estimates []m.Estimate) []operatorCount {
	totals := make(map[string]int)

	for _, est := range estimates {
		for op, n := range est.ByOperator {
			totals[op] += n
		}
	}

	out := make([]operatorCount, 0, len(totals))
	for _, op := range slices.Sorted(maps.Keys(totals)) {
		out = append(out, operatorCount{name: op, count: totals[op]})
	}

	slices.SortStableFunc(out, func(a, b operatorCount) int { return b.count - a.count })

	return out
}

func renderOperatorTable(ops []operatorCount) string {
	var tableBuffer bytes.Buffer

	table := tablewriter.NewWriter(&tableBuffer)
	table.SetHeader([]string{"Operator", "Mutations"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_CENTER})

	for _, op := range ops {
		table.Append([]string{op.name, strconv.Itoa(op.count)})
	}

	table.Render()

	return tableBuffer.String()
}

// DisplayConcurrencyInfo shows concurrency settings.
func (s *SimpleUI) DisplayConcurrencyInfo(ctx context.Context, threads int, shardIndex int, shardCount int) {
	if ctx.Err() != nil {
		return
	}

	s.printf("Running with %d worker(s) (Shard %d/%d)\n", threads, shardIndex, shardCount)
}

// DisplayUpcomingTestsInfo shows the number of upcoming mutants to be tested.
func (s *SimpleUI) DisplayUpcomingTestsInfo(ctx context.Context, total int) {
	if ctx.Err() != nil {
		return
	}

	s.printf("Upcoming mutants: %d\n", total)
}

// DisplayStartingTestInfo shows info about the mutant test starting.
func (s *SimpleUI) DisplayStartingTestInfo(ctx context.Context, mutant *m.Mutant, path m.Path, workerID int) {
	if ctx.Err() != nil {
		return
	}

	s.printf("[worker %d] Starting mutant %d (%s) %s\n", workerID, mutant.ID, operatorsOf(mutant), path)
}

func operatorsOf(mutant *m.Mutant) string {
	names := make([]string, 0, len(mutant.Mutations))
	for _, mu := range mutant.Mutations {
		if !slices.Contains(names, mu.Operator) {
			names = append(names, mu.Operator)
		}
	}

	return strings.Join(names, "+")
}

// DisplayCompletedTestInfo shows the outcome of one mutant. Mutants that
// were not detected also show their diff.
func (s *SimpleUI) DisplayCompletedTestInfo(ctx context.Context, result m.Result) {
	if ctx.Err() != nil {
		return
	}

	s.printf("Completed mutant %d (%s) -> %s\n", result.MutantID, result.Operator, result.Status)

	if result.Reason != "" && result.Status != m.Killed {
		s.printf("Reason: %s\n", result.Reason)
	}

	if result.Status == m.Survived || result.Status == m.Uncovered {
		s.printf("File: %s:%d\n", result.Path, result.Line)
		s.printf("%s\n", result.Diff)
	}
}

// DisplayMutationScore prints the final mutation score.
func (s *SimpleUI) DisplayMutationScore(ctx context.Context, score float64) {
	if ctx.Err() != nil {
		return
	}

	s.printf("Mutation score: %.2f%%\n", score*100)
}

// DisplayResults prints stored results as a table or as YAML.
func (s *SimpleUI) DisplayResults(ctx context.Context, summary Summary, format Format) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	out, err := renderResults(summary, format)
	if err != nil {
		return err
	}

	s.printf("%s", out)

	return nil
}

func renderResults(summary Summary, format Format) (string, error) {
	switch format {
	case FormatYAML:
		return renderResultsYAML(summary)
	case FormatTable, "":
		return renderResultsTable(summary), nil
	default:
		return "", fmt.Errorf("unknown format %q", format)
	}
}

func sortedResults(results []m.Result) []m.Result {
	return slices.SortedFunc(slices.Values(results), func(a, b m.Result) int {
		return a.MutantID - b.MutantID
	})
}

func renderResultsTable(summary Summary) string {
	var tableBuffer bytes.Buffer

	table := tablewriter.NewWriter(&tableBuffer)
	table.SetHeader([]string{"Mutant", "Path", "Line", "Operator", "Status", "Reason"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)

	for _, r := range sortedResults(summary.Results) {
		table.Append([]string{
			strconv.Itoa(r.MutantID),
			string(r.Path),
			strconv.Itoa(r.Line),
			r.Operator,
			r.Status.String(),
			r.Reason,
		})
	}

	table.SetFooter([]string{
		fmt.Sprintf("Total %d", len(summary.Results)),
		countsLine(summary.Counts),
		"",
		"",
		"Score",
		fmt.Sprintf("%.2f%%", summary.Score*100),
	})

	table.Render()

	return tableBuffer.String()
}

// countsLine lists the non zero counts in status order.
func countsLine(counts map[m.TestStatus]int) string {
	var parts []string

	for _, status := range slices.Sorted(maps.Keys(counts)) {
		if counts[status] > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", status, counts[status]))
		}
	}

	return strings.Join(parts, ", ")
}

type resultReport struct {
	Score   float64          `yaml:"score"`
	Counts  map[string]int   `yaml:"counts"`
	Results []resultDocument `yaml:"results"`
}

type resultDocument struct {
	Mutant    int    `yaml:"mutant"`
	Mutations []int  `yaml:"mutations,flow"`
	Path      string `yaml:"path"`
	Line      int    `yaml:"line"`
	Operator  string `yaml:"operator"`
	Status    string `yaml:"status"`
	Reason    string `yaml:"reason,omitempty"`
	Diff      string `yaml:"diff,omitempty"`
}

func renderResultsYAML(summary Summary) (string, error) {
	report := resultReport{
		Score:   summary.Score,
		Counts:  make(map[string]int, len(summary.Counts)),
		Results: make([]resultDocument, 0, len(summary.Results)),
	}

	for status, n := range summary.Counts {
		report.Counts[status.String()] = n
	}

	for _, r := range sortedResults(summary.Results) {
		report.Results = append(report.Results, resultDocument{
			Mutant:    r.MutantID,
			Mutations: r.MutationIDs,
			Path:      string(r.Path),
			Line:      r.Line,
			Operator:  r.Operator,
			Status:    r.Status.String(),
			Reason:    r.Reason,
			Diff:      r.Diff,
		})
	}

	out, err := yaml.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("failed to encode results: %w", err)
	}

	return string(out), nil
}

func (s *SimpleUI) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(s.cmd.OutOrStdout(), format, args...)
}
