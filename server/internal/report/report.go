// Package report renders a patient's result history as a PDF document for
// the report collaborator. It formats stored rows only; classification
// happened at ingestion time and is never recomputed here.
package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/omegalab/labtriage/pkg/types"
)

// MaxRows is the number of most-recent results a report includes.
const MaxRows = 10

const colWidth = 38.0

// Render produces the PDF report for one patient. results are expected most
// recent first; at most MaxRows rows are printed.
func Render(patientID string, results []types.Result, now time.Time) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetHeaderFunc(func() {
		pdf.SetFont("Arial", "B", 16)
		pdf.CellFormat(0, 10, "LABTRIAGE DIAGNOSTICS", "", 1, "C", false, 0, "")
		pdf.SetFont("Arial", "I", 10)
		pdf.CellFormat(0, 10, "Laboratory result report", "", 1, "C", false, 0, "")
		pdf.Line(10, 25, 200, 25)
		pdf.Ln(10)
	})
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 10, fmt.Sprintf("PATIENT: %s", patientID), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 10, fmt.Sprintf("DATE: %s", now.Format("2006-01-02 15:04")), "", 1, "L", false, 0, "")
	pdf.Ln(5)

	// Table header.
	pdf.SetFillColor(230, 230, 230)
	pdf.SetFont("Arial", "B", 10)
	for _, h := range []string{"Test", "Value", "Unit", "Status", "Source"} {
		pdf.CellFormat(colWidth, 10, h, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	// Rows, PANIC in red.
	pdf.SetFont("Arial", "", 10)
	rows := results
	if len(rows) > MaxRows {
		rows = rows[:MaxRows]
	}
	for _, r := range rows {
		if r.Classification == types.ClassPanic {
			pdf.SetTextColor(255, 0, 0)
		} else {
			pdf.SetTextColor(0, 0, 0)
		}
		cells := []string{
			r.TestCode,
			fmt.Sprintf("%g", r.Value),
			r.Unit,
			string(r.Classification),
			string(r.Provenance),
		}
		for _, c := range cells {
			pdf.CellFormat(colWidth, 10, c, "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
	}

	// Signature line.
	pdf.Ln(20)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 10, "______________________________", "", 1, "R", false, 0, "")
	pdf.CellFormat(0, 10, "Reviewing clinician", "", 1, "R", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("report: render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
