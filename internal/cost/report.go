package cost

import (
	"encoding/csv"
	"fmt"
	"io"
)

// WriteCSV writes recs followed by a summary block.
func WriteCSV(writer io.Writer, recs []Recommendation, summary Summary) error {
	w := csv.NewWriter(writer)

	header := []string{"Type", "Resource", "Resource Type", "Utilization (%)", "Monthly Savings ($)", "Reason"}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	var potential float64
	for _, rec := range recs {
		util := ""
		if rec.Utilization != nil {
			util = fmt.Sprintf("%.1f", *rec.Utilization)
		}
		row := []string{
			string(rec.Type),
			rec.ResourceID,
			string(rec.ResourceType),
			util,
			fmt.Sprintf("%.2f", rec.PotentialSavingsMonthly),
			rec.Reason,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
		potential += rec.PotentialSavingsMonthly
	}

	rows := [][]string{
		{},
		{"SUMMARY"},
		{"Resources", fmt.Sprintf("%d", summary.ResourcesCount)},
		{"Hourly Cost", fmt.Sprintf("$%.2f", summary.Hourly)},
		{"Monthly Cost", fmt.Sprintf("$%.2f", summary.Monthly)},
		{"Recommendations", fmt.Sprintf("%d", len(recs))},
		{"Potential Monthly Savings", fmt.Sprintf("$%.2f", round2(potential))},
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv summary: %w", err)
	}
	return nil
}
