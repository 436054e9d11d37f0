// Package report renders per-user session spreadsheets and computes the
// calendar windows the scheduled reports cover.
package report

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/actiontracker/tracker-server-go/internal/model"
)

const (
	MimeType   = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	sheetName  = "Sheet1"
	timeLayout = "2006-01-02T15:04:05"
	totalsText = "TOTALS"
)

var Columns = []string{
	"Description",
	"Project name",
	"Task name",
	"Start (UTC)",
	"Start (user-local)",
	"End (UTC)",
	"End (user-local)",
	"Valid-Start (UTC)",
	"Valid-Start (user-local)",
	"Valid-End (UTC)",
	"Valid-End (user-local)",
	"Duration (HH:MM:SS)",
	"Valid-Duration (HH:MM:SS)",
	"Duration (decimal hours)",
	"Valid-Duration (decimal hours)",
	"Timezone",
	"Running flag",
	"Overtime flag",
	"Edit count",
	"Status",
	"Observation",
}

const (
	colDecimal      = 13
	colValidDecimal = 14
)

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9_\-]`)

// Rows builds the sheet body: one row per session followed by the totals row.
// A missing end is taken as now.
func Rows(sessions []model.Session, now time.Time) [][]any {
	rows := make([][]any, 0, len(sessions)+1)
	var total, totalValid float64

	for i := range sessions {
		s := &sessions[i]

		end := now
		if s.EndDate != nil {
			end = *s.EndDate
		}
		validEnd := now
		if s.ValidEndDate != nil {
			validEnd = *s.ValidEndDate
		}

		duration := effectiveDuration(s.Duration, s.StartDate, end)
		validDuration := effectiveDuration(s.ValidDuration, s.ValidStartDate, validEnd)

		hours := DecimalHours(duration)
		validHours := DecimalHours(validDuration)
		total += hours
		totalValid += validHours

		rows = append(rows, []any{
			s.Description,
			s.ProjectName,
			s.TaskName,
			formatTime(s.StartDate),
			formatLocal(s.StartDate, &s.OffsetStart),
			formatTime(&end),
			formatLocal(&end, s.OffsetEnd),
			formatTime(s.ValidStartDate),
			formatLocal(s.ValidStartDate, &s.OffsetStart),
			formatTime(&validEnd),
			formatLocal(&validEnd, s.OffsetEnd),
			FormatHMS(duration),
			FormatHMS(validDuration),
			hours,
			validHours,
			s.TimeZone,
			s.CurrentlyRunning,
			s.Overtime,
			s.UpdatingQuantity,
			string(s.Status),
			s.Observation,
		})
	}

	totals := make([]any, len(Columns))
	for i := range totals {
		totals[i] = ""
	}
	totals[0] = totalsText
	totals[colDecimal] = round2(total)
	totals[colValidDecimal] = round2(totalValid)

	return append(rows, totals)
}

// Render writes the header and Rows into a single-sheet workbook.
func Render(sessions []model.Session, now time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	header := make([]any, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	for i, row := range Rows(sessions, now) {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// Filename is reporte_<sanitized name>_<YYYYmmdd_HHMMSS>.xlsx.
func Filename(userName string, now time.Time) string {
	return fmt.Sprintf("reporte_%s_%s.xlsx", SanitizeFilename(userName), now.Format("20060102_150405"))
}

func SanitizeFilename(value string) string {
	return unsafeFilenameChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(value)), "_")
}

// FormatHMS renders d as HH:MM:SS; nil renders blank.
func FormatHMS(d *time.Duration) string {
	if d == nil {
		return ""
	}
	total := int64(d.Seconds())
	if total < 0 {
		total = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// DecimalHours converts d to hours rounded to two places; nil is zero.
func DecimalHours(d *time.Duration) float64 {
	if d == nil {
		return 0
	}
	return round2(d.Hours())
}

// LocalTime shifts t by the provider's UTC offset in seconds.
func LocalTime(t time.Time, offsetSeconds int) time.Time {
	return t.UTC().Add(time.Duration(offsetSeconds) * time.Second)
}

func effectiveDuration(stored *model.Seconds, start *time.Time, end time.Time) *time.Duration {
	if stored != nil {
		d := stored.Duration()
		return &d
	}
	if start == nil {
		return nil
	}
	d := end.Sub(*start)
	return &d
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func formatLocal(t *time.Time, offset *int) string {
	if t == nil || offset == nil {
		return ""
	}
	return LocalTime(*t, *offset).Format(timeLayout)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
