package analysis

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/spachava753/incidentbench/internal/models"
	"github.com/spachava753/incidentbench/internal/stats"
)

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func writeRescored(path string, scored []models.ScoredRecord) error {
	header := []string{
		"trial_id", "condition", "t2u", "dq", "validity", "specificity",
		"correctness", "action_count", "fallback",
	}
	rows := make([][]string, 0, len(scored))
	for _, s := range scored {
		rows = append(rows, []string{
			s.TrialID,
			string(s.Condition),
			ftoa(s.T2U),
			ftoa(s.DQ),
			ftoa(s.Validity),
			ftoa(s.Specificity),
			ftoa(s.Correctness),
			strconv.Itoa(s.ActionCount),
			strconv.FormatBool(s.Fallback),
		})
	}
	return writeCSV(path, header, rows)
}

func writeSummary(path string, summaries []stats.Summary) error {
	header := []string{"Condition", "N", "Mean", "Std", "CI_95_Lower", "CI_95_Upper", "Median", "Min", "Max"}
	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, []string{
			s.Group,
			strconv.Itoa(s.N),
			ftoa(s.Mean),
			ftoa(s.Std),
			ftoa(s.CILower),
			ftoa(s.CIUpper),
			ftoa(s.Median),
			ftoa(s.Min),
			ftoa(s.Max),
		})
	}
	return writeCSV(path, header, rows)
}

func writeConditionStats(path string, conds []ConditionStats) error {
	header := []string{
		"Condition", "N", "Mean_T2U", "Std_T2U", "Mean_DQ", "Std_DQ",
		"Mean_Validity", "Std_Validity", "Mean_Specificity", "Std_Specificity",
		"Mean_Correctness", "Std_Correctness", "Mean_Actions", "Std_Actions", "Actionable_Pct", "Fallbacks",
	}
	rows := make([][]string, 0, len(conds))
	for _, c := range conds {
		rows = append(rows, []string{
			string(c.Condition),
			strconv.Itoa(c.N),
			ftoa(c.MeanT2U),
			ftoa(c.StdT2U),
			ftoa(c.MeanDQ),
			ftoa(c.StdDQ),
			ftoa(c.MeanValidity),
			ftoa(c.StdValidity),
			ftoa(c.MeanSpecificity),
			ftoa(c.StdSpecificity),
			ftoa(c.MeanCorrectness),
			ftoa(c.StdCorrectness),
			ftoa(c.MeanActions),
			ftoa(c.StdActions),
			ftoa(c.ActionablePct),
			strconv.Itoa(c.Fallbacks),
		})
	}
	return writeCSV(path, header, rows)
}
