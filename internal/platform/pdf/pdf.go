// Package pdf renders the printable clinical documents: prescriptions, lab
// orders and nursing summaries. All documents share a letterhead, an optional
// diagonal watermark and a signature block that differs between manual and
// digital signing.
package pdf

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
)

// SignatureBlock describes how the document was signed.
type SignatureBlock struct {
	Digital      bool
	SignerName   string
	Subject      string
	Issuer       string
	SerialNumber string
	SignedAt     time.Time
}

// Header is the shared letterhead for every document.
type Header struct {
	ClinicName  string
	PatientName string
	BillingCode string
	DoctorName  string
	Date        time.Time
}

// PrescriptionItem is one medicine line on a prescription.
type PrescriptionItem struct {
	Medicine   string
	Quantity   int
	Duration   string
	Indication string
}

// Prescription is the full prescription document.
type Prescription struct {
	Header    Header
	Diagnosis string
	Items     []PrescriptionItem
	Signature SignatureBlock
	Watermark string
}

// LabGroup is one pathology's block of requested exams.
type LabGroup struct {
	Pathology string
	Exams     []string
	Note      string
}

// LabOrder lists the requested laboratory exams.
type LabOrder struct {
	Header    Header
	Groups    []LabGroup
	Exams     []string
	Notes     string
	Signature SignatureBlock
	Watermark string
}

// NursingSummary is the post-consultation instruction sheet for nursing.
type NursingSummary struct {
	Header       Header
	Instructions []string
	Watermark    string
}

type renderer struct {
	doc *fpdf.Fpdf
}

func newRenderer() *renderer {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetMargins(18, 18, 18)
	doc.SetAutoPageBreak(true, 24)
	doc.AddPage()
	return &renderer{doc: doc}
}

func (r *renderer) header(h Header, title string) {
	r.doc.SetFont("Helvetica", "B", 15)
	r.doc.CellFormat(0, 8, h.ClinicName, "", 1, "C", false, 0, "")
	r.doc.SetFont("Helvetica", "B", 11)
	r.doc.CellFormat(0, 7, title, "", 1, "C", false, 0, "")
	r.doc.Ln(2)

	r.doc.SetFont("Helvetica", "", 9)
	r.doc.CellFormat(95, 5, fmt.Sprintf("Patient: %s", h.PatientName), "", 0, "L", false, 0, "")
	r.doc.CellFormat(0, 5, fmt.Sprintf("Billing code: %s", h.BillingCode), "", 1, "R", false, 0, "")
	r.doc.CellFormat(95, 5, fmt.Sprintf("Doctor: %s", h.DoctorName), "", 0, "L", false, 0, "")
	r.doc.CellFormat(0, 5, h.Date.Format("2006-01-02"), "", 1, "R", false, 0, "")
	r.doc.SetDrawColor(120, 120, 120)
	r.doc.Line(18, r.doc.GetY()+2, 192, r.doc.GetY()+2)
	r.doc.Ln(6)
}

func (r *renderer) watermark(text string) {
	if text == "" {
		return
	}
	r.doc.SetFont("Helvetica", "B", 52)
	r.doc.SetTextColor(228, 228, 228)
	r.doc.TransformBegin()
	r.doc.TransformRotate(45, 105, 150)
	r.doc.Text(45, 155, text)
	r.doc.TransformEnd()
	r.doc.SetTextColor(0, 0, 0)
}

func (r *renderer) signature(s SignatureBlock) {
	r.doc.Ln(14)
	r.doc.SetFont("Helvetica", "", 9)
	if s.Digital {
		r.doc.SetFont("Helvetica", "B", 9)
		r.doc.CellFormat(0, 5, "Digitally signed", "", 1, "L", false, 0, "")
		r.doc.SetFont("Helvetica", "", 8)
		r.doc.CellFormat(0, 4, fmt.Sprintf("Signer: %s", s.Subject), "", 1, "L", false, 0, "")
		r.doc.CellFormat(0, 4, fmt.Sprintf("Issuer: %s", s.Issuer), "", 1, "L", false, 0, "")
		r.doc.CellFormat(0, 4, fmt.Sprintf("Serial: %s  Signed at: %s", s.SerialNumber, s.SignedAt.Format(time.RFC3339)), "", 1, "L", false, 0, "")
		return
	}
	r.doc.Line(120, r.doc.GetY()+10, 190, r.doc.GetY()+10)
	r.doc.SetY(r.doc.GetY() + 11)
	r.doc.CellFormat(0, 5, s.SignerName, "", 1, "R", false, 0, "")
}

func (r *renderer) output() ([]byte, error) {
	var buf bytes.Buffer
	if err := r.doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderPrescription produces the prescription PDF.
func RenderPrescription(p Prescription) ([]byte, error) {
	r := newRenderer()
	r.watermark(p.Watermark)
	r.header(p.Header, "MEDICAL PRESCRIPTION")

	if p.Diagnosis != "" {
		r.doc.SetFont("Helvetica", "B", 10)
		r.doc.CellFormat(0, 6, "Diagnosis", "", 1, "L", false, 0, "")
		r.doc.SetFont("Helvetica", "", 10)
		r.doc.MultiCell(0, 5, p.Diagnosis, "", "L", false)
		r.doc.Ln(3)
	}

	r.doc.SetFont("Helvetica", "B", 10)
	r.doc.CellFormat(0, 6, "Rx", "", 1, "L", false, 0, "")
	for i, item := range p.Items {
		r.doc.SetFont("Helvetica", "B", 10)
		r.doc.CellFormat(0, 5, fmt.Sprintf("%d. %s  x%d", i+1, item.Medicine, item.Quantity), "", 1, "L", false, 0, "")
		r.doc.SetFont("Helvetica", "", 9)
		line := item.Indication
		if item.Duration != "" {
			line = fmt.Sprintf("%s (%s)", line, item.Duration)
		}
		r.doc.MultiCell(0, 4.5, line, "", "L", false)
		r.doc.Ln(1)
	}

	r.signature(p.Signature)
	return r.output()
}

// RenderLabOrder produces the laboratory order PDF.
func RenderLabOrder(o LabOrder) ([]byte, error) {
	r := newRenderer()
	r.watermark(o.Watermark)
	r.header(o.Header, "LABORATORY ORDER")

	for _, g := range o.Groups {
		r.doc.SetFont("Helvetica", "B", 10)
		title := g.Pathology
		if title == "" {
			title = "Requested exams"
		}
		r.doc.CellFormat(0, 6, title, "", 1, "L", false, 0, "")
		r.doc.SetFont("Helvetica", "", 10)
		for _, exam := range g.Exams {
			r.doc.CellFormat(0, 5, "- "+exam, "", 1, "L", false, 0, "")
		}
		if g.Note != "" {
			r.doc.SetFont("Helvetica", "I", 9)
			r.doc.MultiCell(0, 4.5, g.Note, "", "L", false)
			r.doc.SetFont("Helvetica", "", 10)
		}
		r.doc.Ln(2)
	}
	if len(o.Exams) > 0 {
		r.doc.SetFont("Helvetica", "B", 10)
		r.doc.CellFormat(0, 6, "Requested exams", "", 1, "L", false, 0, "")
		r.doc.SetFont("Helvetica", "", 10)
		for _, exam := range o.Exams {
			r.doc.CellFormat(0, 5, "- "+exam, "", 1, "L", false, 0, "")
		}
	}
	if o.Notes != "" {
		r.doc.Ln(3)
		r.doc.SetFont("Helvetica", "I", 9)
		r.doc.MultiCell(0, 4.5, o.Notes, "", "L", false)
	}

	r.signature(o.Signature)
	return r.output()
}

// RenderNursingSummary produces the nursing instruction sheet. It carries no
// signature block.
func RenderNursingSummary(s NursingSummary) ([]byte, error) {
	r := newRenderer()
	r.watermark(s.Watermark)
	r.header(s.Header, "NURSING INSTRUCTIONS")

	r.doc.SetFont("Helvetica", "", 10)
	for _, line := range s.Instructions {
		r.doc.MultiCell(0, 5, "- "+line, "", "L", false)
	}
	return r.output()
}
