// -- internal/reporting/summary.go --
package reporting

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/xkilldash9x/slotrunner/api/schemas"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	failedStyle = cellStyle.Foreground(lipgloss.Color("9"))
)

const statusColumn = 2

// WriteSummary prints one row per session followed by the batch totals.
func WriteSummary(w io.Writer, report *schemas.BatchReport) error {
	rows := make([][]string, 0, len(report.Sessions))
	for _, s := range report.Sessions {
		rows = append(rows, []string{
			strconv.Itoa(s.Profile.Line),
			s.Profile.Name,
			string(s.Status),
			strconv.Itoa(s.Count(schemas.SlotSuccess)),
			strconv.Itoa(s.Count(schemas.SlotFailed)),
			strconv.Itoa(s.Count(schemas.SlotSkipped)),
			detail(s),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("LINE", "PROFILE", "STATUS", "OK", "FAILED", "SKIPPED", "DETAIL").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == statusColumn && row >= 0 && row < len(rows) && rows[row][statusColumn] == string(schemas.StatusFailed) {
				return failedStyle
			}
			return cellStyle
		})

	if _, err := fmt.Fprintln(w, t.Render()); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	_, err := fmt.Fprintf(w, "Run %s: %d done, %d failed in %s.\n",
		report.RunID, report.Done, report.Failed, report.Finished.Sub(report.Started).Round(time.Millisecond))
	return err
}

// detail is the error for failed sessions, otherwise the slots that registered.
func detail(s schemas.SessionResult) string {
	if s.Status == schemas.StatusFailed {
		if s.SnapshotPath != "" {
			return s.Error + " (" + s.SnapshotPath + ")"
		}
		return s.Error
	}
	var ok []string
	for _, o := range s.Slots {
		if o.Result == schemas.SlotSuccess {
			label := o.Slot.Label
			if label == "" {
				label = o.Slot.Value
			}
			ok = append(ok, label)
		}
	}
	if len(ok) == 0 {
		return "-"
	}
	return strings.Join(ok, ", ")
}
