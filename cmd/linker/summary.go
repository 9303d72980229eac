package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/nkoub/recordlinkage/internal/compare"
	"github.com/nkoub/recordlinkage/internal/pipeline"
	"github.com/nkoub/recordlinkage/internal/similarity"
)

// printSummary reports counts and per-feature statistics of a finished job.
func printSummary(w io.Writer, res *pipeline.Result) error {
	green := color.New(color.FgGreen, color.Bold).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	m := res.Matrix
	fmt.Fprintf(w, "\n%s %d rows x %d features in %s\n",
		green("✓"), m.Len(), m.Width(), res.Elapsed.Round(time.Millisecond))
	if res.Right != nil {
		fmt.Fprintf(w, "  %s: %d records, %s: %d records, %d candidate pairs\n",
			res.Left.Name(), res.Left.Len(), res.Right.Name(), res.Right.Len(), res.Candidates)
	} else {
		fmt.Fprintf(w, "  %s: %d records, %d candidate pairs\n",
			res.Left.Name(), res.Left.Len(), res.Candidates)
	}
	if res.Output != "" {
		fmt.Fprintf(w, "  written to %s\n", res.Output)
	}

	if m.Width() == 0 {
		return nil
	}
	data := pterm.TableData{{"feature", "missing", "mean", "min", "max", "distinct"}}
	for _, st := range m.Summary() {
		data = append(data, []string{
			st.Label,
			fmt.Sprint(st.Missing),
			fmt.Sprintf("%.4f", st.Mean),
			fmt.Sprintf("%.4f", st.Min),
			fmt.Sprintf("%.4f", st.Max),
			fmt.Sprint(st.Distinct),
		})
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%s\n", table)
	if m.Len() == 0 {
		fmt.Fprintln(w, gray("  no candidate pairs"))
	}
	return nil
}

func newMethodsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "methods",
		Short: "List comparison kinds and algorithms",
		Run: func(cmd *cobra.Command, args []string) {
			printMethods(cmd.OutOrStdout())
		},
	}
}

func printMethods(w io.Writer) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	kinds := []compare.Kind{compare.KindExact, compare.KindString, compare.KindNumeric, compare.KindDate}
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	fmt.Fprintf(w, "%s %s\n", cyan("kinds:"), strings.Join(names, ", "))
	fmt.Fprintf(w, "%s %s\n", cyan("string methods:"), strings.Join(similarity.Names(), ", "))
	decays := []compare.DecayMethod{compare.Step, compare.Linear, compare.Squared, compare.Exp, compare.Gauss}
	names = names[:0]
	for _, d := range decays {
		names = append(names, string(d))
	}
	fmt.Fprintf(w, "%s %s\n", cyan("numeric methods:"), strings.Join(names, ", "))
}
