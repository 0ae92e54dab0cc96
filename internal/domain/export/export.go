// Package export renders session sets as CSV for spreadsheet consumers.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/domain/model"
	"github.com/ManoelDaPonte/wisetwin-saas-sub001/pkg/metrics"
)

// utf8BOM makes Excel detect UTF-8 instead of falling back to the
// platform code page.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var header = []string{
	"sessionId",
	"subjectId",
	"trainingId",
	"buildName",
	"buildType",
	"buildVersion",
	"containerId",
	"startTime",
	"endTime",
	"totalDuration",
	"completionStatus",
	"totalInteractions",
	"successfulInteractions",
	"failedInteractions",
	"successRate",
}

// WriteCSV streams the sessions as one CSV document, BOM first.
func WriteCSV(w io.Writer, sessions []model.SessionRecord) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return fmt.Errorf("write byte order mark: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, session := range sessions {
		if err := cw.Write(row(session)); err != nil {
			return fmt.Errorf("write csv row for %s: %w", session.SessionID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}

	metrics.RecordExportRows(len(sessions))
	metrics.RecordExportRun()
	return nil
}

func row(s model.SessionRecord) []string {
	return []string{
		s.SessionID,
		s.SubjectID,
		s.TrainingID,
		s.Build.Name,
		s.Build.Type,
		s.Build.Version,
		s.Build.ContainerID,
		formatTime(s.StartTime),
		formatTime(s.EndTime),
		strconv.FormatFloat(s.TotalDuration, 'f', -1, 64),
		string(s.CompletionStatus),
		strconv.Itoa(s.Summary.TotalInteractions),
		strconv.Itoa(s.Summary.SuccessfulInteractions),
		strconv.Itoa(s.Summary.FailedInteractions),
		strconv.FormatFloat(s.Summary.SuccessRate, 'f', -1, 64),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
