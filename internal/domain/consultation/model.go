package consultation

import (
	"time"

	"github.com/google/uuid"
)

// Consultation statuses.
const (
	StatusInProgress = "in_progress"
	StatusFinished   = "finished"
	StatusDelivered  = "delivered"
)

// Wizard sections. The signature section is special: it gains content only
// through the finish operation.
const (
	SectionDiagnosis    = "diagnosis"
	SectionPrescription = "prescription"
	SectionExams        = "exams"
	SectionReferrals    = "referrals"
	SectionNursing      = "nursing"
	SectionSignature    = "signature"
)

// SectionNames lists every wizard section in display order.
var SectionNames = []string{
	SectionDiagnosis,
	SectionPrescription,
	SectionExams,
	SectionReferrals,
	SectionNursing,
	SectionSignature,
}

// ValidSection maps accepted section names.
var ValidSection = map[string]bool{
	SectionDiagnosis:    true,
	SectionPrescription: true,
	SectionExams:        true,
	SectionReferrals:    true,
	SectionNursing:      true,
	SectionSignature:    true,
}

// Section states as computed by Resolve.
const (
	StateContent    = "content"
	StateOmitted    = "omitted"
	StateEdited     = "edited"
	StateUnresolved = "unresolved"
)

// Resolve classifies one section from its two independent facts: whether it
// holds content and whether its omission was explicitly confirmed. A
// confirmed-omitted section that later received content counts as edited,
// not omitted; content always wins over a stale confirmation.
func Resolve(hasContent, confirmedOmitted bool) string {
	switch {
	case hasContent && confirmedOmitted:
		return StateEdited
	case hasContent:
		return StateContent
	case confirmedOmitted:
		return StateOmitted
	default:
		return StateUnresolved
	}
}

// DiagnosisSection is the doctor's assessment.
type DiagnosisSection struct {
	Text         string      `json:"text,omitempty"`
	PathologyIDs []uuid.UUID `json:"pathology_ids,omitempty"`
}

func (d *DiagnosisSection) Empty() bool {
	return d == nil || (d.Text == "" && len(d.PathologyIDs) == 0)
}

// PrescriptionItem is one medicine line.
type PrescriptionItem struct {
	MedicineID *uuid.UUID `json:"medicine_id,omitempty"`
	Medicine   string     `json:"medicine"`
	Quantity   int        `json:"quantity"`
	Duration   string     `json:"duration,omitempty"`
	Indication string     `json:"indication,omitempty"`
	External   bool       `json:"external,omitempty"`
}

type PrescriptionSection struct {
	Items []PrescriptionItem `json:"items,omitempty"`
}

func (p *PrescriptionSection) Empty() bool {
	return p == nil || len(p.Items) == 0
}

// LabReferral groups requested exams under the pathology motivating them.
type LabReferral struct {
	PathologyID *uuid.UUID `json:"pathology_id,omitempty"`
	Pathology   string     `json:"pathology,omitempty"`
	Exams       []string   `json:"exams,omitempty"`
	Note        string     `json:"note,omitempty"`
}

// ExamsSection lists requested laboratory work: pathology-grouped referrals
// plus ad-hoc exams picked from the catalog or typed free-form.
type ExamsSection struct {
	Referrals  []LabReferral `json:"referrals,omitempty"`
	LabItemIDs []uuid.UUID   `json:"lab_item_ids,omitempty"`
	Names      []string      `json:"names,omitempty"`
	Notes      string        `json:"notes,omitempty"`
}

func (e *ExamsSection) Empty() bool {
	return e == nil || (len(e.Referrals) == 0 && len(e.LabItemIDs) == 0 && len(e.Names) == 0)
}

// Referral sends the patient to another specialty.
type Referral struct {
	Specialty string `json:"specialty"`
	Reason    string `json:"reason,omitempty"`
}

type ReferralsSection struct {
	Referrals []Referral `json:"referrals,omitempty"`
}

func (r *ReferralsSection) Empty() bool {
	return r == nil || len(r.Referrals) == 0
}

// NursingSection carries post-visit instructions for the nursing station.
type NursingSection struct {
	Instructions []string `json:"instructions,omitempty"`
}

func (n *NursingSection) Empty() bool {
	return n == nil || len(n.Instructions) == 0
}

// Sections groups the editable wizard content, stored as one document.
type Sections struct {
	Diagnosis    *DiagnosisSection    `json:"diagnosis,omitempty"`
	Prescription *PrescriptionSection `json:"prescription,omitempty"`
	Exams        *ExamsSection        `json:"exams,omitempty"`
	Referrals    *ReferralsSection    `json:"referrals,omitempty"`
	Nursing      *NursingSection      `json:"nursing,omitempty"`
}

// HasContent reports whether the named editable section holds anything.
func (s *Sections) HasContent(name string) bool {
	switch name {
	case SectionDiagnosis:
		return !s.Diagnosis.Empty()
	case SectionPrescription:
		return !s.Prescription.Empty()
	case SectionExams:
		return !s.Exams.Empty()
	case SectionReferrals:
		return !s.Referrals.Empty()
	case SectionNursing:
		return !s.Nursing.Empty()
	default:
		return false
	}
}

// Printable documents. The flags record which sheets were actually
// generated for the visit.
const (
	DocPrescription   = "prescription"
	DocLabOrder       = "lab_order"
	DocNursingSummary = "nursing_summary"
)

// Signature modes.
const (
	SignatureManual  = "manual"
	SignatureDigital = "digital"
)

// SignatureRecord is stamped onto the consultation at finish time.
type SignatureRecord struct {
	Mode         string    `json:"mode"`
	SignerName   string    `json:"signer_name"`
	Subject      string    `json:"subject,omitempty"`
	Issuer       string    `json:"issuer,omitempty"`
	SerialNumber string    `json:"serial_number,omitempty"`
	Document     string    `json:"document,omitempty"`
	SignedAt     time.Time `json:"signed_at"`
}

// Consultation is the clinical record built during one visit.
type Consultation struct {
	ID            uuid.UUID `json:"id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	DoctorID      uuid.UUID `json:"doctor_id"`
	Status        string    `json:"status"`

	Sections           Sections         `json:"sections"`
	ConfirmedOmissions []string         `json:"confirmed_omissions,omitempty"`
	OmittedFields      []string         `json:"omitted_fields,omitempty"`
	PrintedDocuments   []string         `json:"printed_documents,omitempty"`
	Signature          *SignatureRecord `json:"signature,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	DeliveredBy *uuid.UUID `json:"delivered_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// markPrinted flags a generated document, once.
func (c *Consultation) markPrinted(doc string) bool {
	for _, d := range c.PrintedDocuments {
		if d == doc {
			return false
		}
	}
	c.PrintedDocuments = append(c.PrintedDocuments, doc)
	return true
}

// confirmed reports whether a section's omission was explicitly confirmed.
func (c *Consultation) confirmed(section string) bool {
	for _, s := range c.ConfirmedOmissions {
		if s == section {
			return true
		}
	}
	return false
}

// hasContent covers all sections, signature included.
func (c *Consultation) hasContent(section string) bool {
	if section == SectionSignature {
		return c.Signature != nil
	}
	return c.Sections.HasContent(section)
}

// Resolution classifies every section. The finish gate requires that no
// section resolves to unresolved.
func (c *Consultation) Resolution() map[string]string {
	out := make(map[string]string, len(SectionNames))
	for _, name := range SectionNames {
		out[name] = Resolve(c.hasContent(name), c.confirmed(name))
	}
	return out
}

// Unresolved lists the sections still blocking the finish gate.
func (c *Consultation) Unresolved() []string {
	var out []string
	for _, name := range SectionNames {
		if Resolve(c.hasContent(name), c.confirmed(name)) == StateUnresolved {
			out = append(out, name)
		}
	}
	return out
}

// Omitted lists sections that finish should record as omitted: confirmed and
// still empty.
func (c *Consultation) Omitted() []string {
	var out []string
	for _, name := range SectionNames {
		if Resolve(c.hasContent(name), c.confirmed(name)) == StateOmitted {
			out = append(out, name)
		}
	}
	return out
}
