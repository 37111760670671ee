package consultation

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinerva/clinerva/internal/platform/pdf"
)

const draftWatermark = "DRAFT"

// PrescriptionPDF renders the prescription document. Unfinished
// consultations render with a draft watermark.
func (s *Service) PrescriptionPDF(ctx context.Context, id uuid.UUID) ([]byte, error) {
	c, header, err := s.document(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Sections.Prescription.Empty() {
		return nil, ErrSectionEmpty
	}

	p := pdf.Prescription{
		Header:    header,
		Signature: signatureBlock(c),
		Watermark: watermarkFor(c),
	}
	if !c.Sections.Diagnosis.Empty() {
		p.Diagnosis = c.Sections.Diagnosis.Text
	}
	for _, it := range c.Sections.Prescription.Items {
		p.Items = append(p.Items, pdf.PrescriptionItem{
			Medicine:   it.Medicine,
			Quantity:   it.Quantity,
			Duration:   it.Duration,
			Indication: it.Indication,
		})
	}
	out, err := pdf.RenderPrescription(p)
	if err != nil {
		return nil, err
	}
	s.flagPrinted(ctx, c, DocPrescription)
	return out, nil
}

// LabOrderPDF renders the laboratory request sheet.
func (s *Service) LabOrderPDF(ctx context.Context, id uuid.UUID) ([]byte, error) {
	c, header, err := s.document(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Sections.Exams.Empty() {
		return nil, ErrSectionEmpty
	}
	sec := c.Sections.Exams
	exams := append([]string(nil), sec.Names...)
	for _, itemID := range sec.LabItemIDs {
		name, err := s.dir.CatalogItemName(ctx, itemID)
		if err != nil {
			return nil, err
		}
		exams = append(exams, name)
	}
	var groups []pdf.LabGroup
	for _, ref := range sec.Referrals {
		g := pdf.LabGroup{Pathology: ref.Pathology, Exams: ref.Exams, Note: ref.Note}
		if g.Pathology == "" && ref.PathologyID != nil {
			g.Pathology, err = s.dir.CatalogItemName(ctx, *ref.PathologyID)
			if err != nil {
				return nil, err
			}
		}
		groups = append(groups, g)
	}
	out, err := pdf.RenderLabOrder(pdf.LabOrder{
		Header:    header,
		Groups:    groups,
		Exams:     exams,
		Notes:     sec.Notes,
		Signature: signatureBlock(c),
		Watermark: watermarkFor(c),
	})
	if err != nil {
		return nil, err
	}
	s.flagPrinted(ctx, c, DocLabOrder)
	return out, nil
}

// NursingSummaryPDF renders the instruction sheet for the nursing station.
func (s *Service) NursingSummaryPDF(ctx context.Context, id uuid.UUID) ([]byte, error) {
	c, header, err := s.document(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Sections.Nursing.Empty() {
		return nil, ErrSectionEmpty
	}
	out, err := pdf.RenderNursingSummary(pdf.NursingSummary{
		Header:       header,
		Instructions: c.Sections.Nursing.Instructions,
		Watermark:    watermarkFor(c),
	})
	if err != nil {
		return nil, err
	}
	s.flagPrinted(ctx, c, DocNursingSummary)
	return out, nil
}

// flagPrinted records that a sheet was generated. The rendered bytes were
// already handed out, so a failed flag write is only logged.
func (s *Service) flagPrinted(ctx context.Context, c *Consultation, doc string) {
	if !c.markPrinted(doc) {
		return
	}
	if err := s.repo.Update(ctx, c); err != nil {
		s.logger.Warn().Err(err).
			Str("consultation_id", c.ID.String()).
			Str("document", doc).
			Msg("record printed document")
	}
}

func (s *Service) document(ctx context.Context, id uuid.UUID) (*Consultation, pdf.Header, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, pdf.Header{}, err
	}
	patientName, billingCode, err := s.dir.PatientLabel(ctx, c.PatientID)
	if err != nil {
		return nil, pdf.Header{}, err
	}
	doctorName, err := s.dir.UserName(ctx, c.DoctorID)
	if err != nil {
		return nil, pdf.Header{}, err
	}
	return c, pdf.Header{
		ClinicName:  s.clinicName,
		PatientName: patientName,
		BillingCode: billingCode,
		DoctorName:  doctorName,
		Date:        c.StartedAt,
	}, nil
}

func signatureBlock(c *Consultation) pdf.SignatureBlock {
	if c.Signature == nil {
		return pdf.SignatureBlock{}
	}
	return pdf.SignatureBlock{
		Digital:      c.Signature.Mode == SignatureDigital,
		SignerName:   c.Signature.SignerName,
		Subject:      c.Signature.Subject,
		Issuer:       c.Signature.Issuer,
		SerialNumber: c.Signature.SerialNumber,
		SignedAt:     c.Signature.SignedAt,
	}
}

func watermarkFor(c *Consultation) string {
	if c.Status == StatusInProgress {
		return draftWatermark
	}
	return ""
}
