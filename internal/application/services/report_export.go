package services

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"github.com/zatekoja/coursefeedback/backend/internal/domain/entities"
)

// ExportFormat selects the rendering of a feedback report
type ExportFormat string

const (
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatXLSX ExportFormat = "xlsx"

	reportTimeLayout = "02-01-2006 15:04"
	reportSheet      = "Feedbacks"
)

var reportHeader = []string{
	"Course ID",
	"Course Name",
	"User",
	"Email",
	"Mobile Number",
	"Feedback Block",
	"Rating",
	"Feedback",
	"Created",
	"Modified",
	"Consent to Share",
	"Approved for Display",
}

// ExportFile is a rendered report ready to be served as an attachment
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
	Rows        int
}

// ParseExportFormat accepts "", "csv" and "xlsx"; "" means csv
func ParseExportFormat(s string) (ExportFormat, bool) {
	switch ExportFormat(s) {
	case "", ExportFormatCSV:
		return ExportFormatCSV, true
	case ExportFormatXLSX:
		return ExportFormatXLSX, true
	default:
		return "", false
	}
}

// Filename of the attachment for this format
func (f ExportFormat) Filename() string {
	if f == ExportFormatXLSX {
		return "Feedbacks.xlsx"
	}
	return "Feedbacks.csv"
}

// ContentType of the attachment for this format
func (f ExportFormat) ContentType() string {
	if f == ExportFormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

func reportRecord(row *entities.FeedbackReportRow, loc *time.Location) []string {
	f := row.Feedback

	return []string{
		f.CourseKey,
		row.CourseName,
		row.UserName,
		row.Email,
		row.MobileNumber,
		deref(f.BlockName),
		entities.FormatRating(f.Rating),
		deref(f.Message),
		f.CreatedAt.In(loc).Format(reportTimeLayout),
		f.ModifiedAt.In(loc).Format(reportTimeLayout),
		yesNo(f.ConsentToShare),
		yesNo(f.IsApproved),
	}
}

func renderCSV(rows []*entities.FeedbackReportRow, loc *time.Location) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(reportHeader); err != nil {
		return nil, err
	}
	for _, row := range rows {
		if err := w.Write(reportRecord(row, loc)); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderXLSX(rows []*entities.FeedbackReportRow, loc *time.Location) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", reportSheet); err != nil {
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, err
	}

	if err := f.SetSheetRow(reportSheet, "A1", &reportHeader); err != nil {
		return nil, err
	}
	if err := f.SetRowStyle(reportSheet, 1, 1, headerStyle); err != nil {
		return nil, err
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		record := reportRecord(row, loc)
		if err := f.SetSheetRow(reportSheet, cell, &record); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	lastCol, _ := excelize.ColumnNumberToName(len(reportHeader))
	_ = f.SetColWidth(reportSheet, "A", lastCol, 20)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
