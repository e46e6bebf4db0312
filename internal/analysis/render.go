package analysis

import (
	"fmt"
	"math"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Format selects how Render lays out tables.
type Format int

const (
	// ASCII renders fixed-width terminal tables.
	ASCII Format = iota
	// Markdown renders GitHub-flavoured tables.
	Markdown
)

func newTable(f Format) table.Writer {
	w := table.NewWriter()
	if f == ASCII {
		w.SetStyle(table.StyleLight)
	}
	return w
}

func render(w table.Writer, f Format) string {
	if f == Markdown {
		return w.RenderMarkdown()
	}
	return w.Render()
}

func num(v float64, prec int) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%.*f", prec, v)
}

// Render formats the report for humans: per-condition statistics, the
// test results and the headline improvements.
func (r *Report) Render(f Format) string {
	var b strings.Builder

	conds := newTable(f)
	conds.AppendHeader(table.Row{"Condition", "N", "T2U mean", "T2U std", "DQ mean", "DQ std", "Actions", "Actionable %", "Fallbacks"})
	for _, c := range r.Conditions {
		conds.AppendRow(table.Row{
			fmt.Sprintf("%s (%s)", c.Condition, c.Condition.Description()),
			c.N,
			num(c.MeanT2U, 2),
			num(c.StdT2U, 2),
			num(c.MeanDQ, 3),
			num(c.StdDQ, 3),
			num(c.MeanActions, 2),
			num(c.ActionablePct, 1),
			c.Fallbacks,
		})
	}
	conds.SetColumnConfigs(numericColumns(2, 9))
	b.WriteString(render(conds, f))
	b.WriteString("\n\n")

	if len(r.Tests) > 0 {
		tests := newTable(f)
		tests.AppendHeader(table.Row{"Metric", "Test", "Statistic", "p-value", "Alpha", "Significant"})
		for _, t := range r.Tests {
			sig := "ns"
			if t.Significant {
				sig = "***"
			}
			tests.AppendRow(table.Row{t.Metric, t.Test, num(t.Statistic, 4), num(t.PValue, 6), num(t.Alpha, 4), sig})
		}
		tests.SetColumnConfigs(numericColumns(3, 5))
		b.WriteString(render(tests, f))
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "T2U reduction (C3 vs C1): %s%%\n", num(r.Improvements.T2UReductionPct, 1))
	fmt.Fprintf(&b, "DQ improvement (C3 vs C2): %s%%\n", num(r.Improvements.DQImprovementPct, 1))
	fmt.Fprintf(&b, "Cohen's d (C3 vs C2 DQ): %s\n", num(r.Improvements.CohensD, 2))

	if len(r.Excluded) > 0 {
		fmt.Fprintf(&b, "Excluded trials: %s\n", strings.Join(r.Excluded, ", "))
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "Warning: %s\n", w)
	}
	return b.String()
}

// numericColumns right-aligns the 1-based columns from..to.
func numericColumns(from, to int) []table.ColumnConfig {
	var cfgs []table.ColumnConfig
	for n := from; n <= to; n++ {
		cfgs = append(cfgs, table.ColumnConfig{Number: n, Align: text.AlignRight})
	}
	return cfgs
}
