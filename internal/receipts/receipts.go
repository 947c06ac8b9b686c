// Package receipts renders PDF receipts for billed appointments.
package receipts

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"careconnect-server/internal/models"
)

// Render draws a one-page receipt for a billed appointment.
func Render(appt *models.AppointmentView, currency string) ([]byte, error) {
	if appt == nil {
		return nil, errors.New("receipt: nil appointment")
	}
	if !appt.HasBeenBilled || appt.Amount == nil {
		return nil, errors.New("receipt: appointment has not been billed")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(0, 70, 127)
	pdf.CellFormat(0, 10, "CareConnect", "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "B", 12)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 10, "Payment Receipt", "1", 1, "C", false, 0, "")
	pdf.Ln(4)

	detailRow(pdf, "Receipt", appt.ID)
	if appt.PaymentID != nil {
		detailRow(pdf, "Payment reference", *appt.PaymentID)
	}
	if appt.DateBilled != nil {
		detailRow(pdf, "Billed on", appt.DateBilled.UTC().Format("2006-01-02 15:04 MST"))
	}
	detailRow(pdf, "Professional", partyName(appt.Professional))
	detailRow(pdf, "Patient", partyName(appt.Patient))
	detailRow(pdf, "Appointment", fmt.Sprintf("%s %s", appt.Date.Format(models.DateLayout), appt.Time))
	detailRow(pdf, "Type", string(appt.Type))
	detailRow(pdf, "Duration", fmt.Sprintf("%d min", appt.Duration))
	if appt.Subject != "" {
		detailRow(pdf, "Subject", appt.Subject)
	}

	pdf.Ln(6)
	pdf.SetFont("Arial", "B", 13)
	pdf.CellFormat(45, 10, "Total paid", "1", 0, "", false, 0, "")
	pdf.CellFormat(0, 10, fmt.Sprintf("%.2f %s", *appt.Amount, strings.ToUpper(currency)), "1", 1, "", false, 0, "")

	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.MultiCell(0, 5, "Thank you for using CareConnect.", "", "L", false)
	pdf.CellFormat(0, 10, "This is a computer generated receipt", "", 1, "R", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("receipt: render: %w", err)
	}
	return buf.Bytes(), nil
}

func detailRow(pdf *gofpdf.Fpdf, label, value string) {
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(45, 9, label, "1", 0, "", false, 0, "")
	pdf.CellFormat(0, 9, value, "1", 1, "", false, 0, "")
}

func partyName(ref *models.UserRef) string {
	if ref == nil {
		return "-"
	}
	if ref.FullName != "" {
		return ref.FullName
	}
	return ref.ID
}
