package audit

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

var csvHeader = []string{"id", "achievement_id", "auditor_id", "decision", "comment", "submitted_at", "decided_at", "processing_hours"}

// WriteCSV writes records as CSV, one row per decision.
func WriteCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, rec := range records {
		row := []string{
			rec.ID.String(),
			strconv.FormatInt(rec.AchievementID, 10),
			strconv.FormatInt(rec.AuditorID, 10),
			string(rec.Decision),
			rec.Comment,
			formatTime(rec.SubmittedAt),
			formatTime(rec.DecidedAt),
			strconv.FormatFloat(round2(rec.ProcessingTime().Hours()), 'f', 2, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
