package patient

import (
	"time"

	"github.com/google/uuid"
)

// Patient is a clinic patient record. BillingCode is the human-facing unique
// key used at the front desk; it never changes after registration.
// Address follows the cascade used on the intake form, broadest level
// first, plus a free-form line for the street detail.
type Address struct {
	Country      string `json:"country,omitempty"`
	Department   string `json:"department,omitempty"`
	Municipality string `json:"municipality,omitempty"`
	Zone         string `json:"zone,omitempty"`
	Line         string `json:"line,omitempty"`
}

// ResponsibleParty is the contact accountable for the patient, recorded for
// minors and dependent adults.
type ResponsibleParty struct {
	Name         string `json:"name,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Relationship string `json:"relationship,omitempty"`
}

type Patient struct {
	ID          uuid.UUID  `json:"id"`
	BillingCode string     `json:"billing_code"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Sex         string     `json:"sex,omitempty"`
	BirthDate   *time.Time `json:"birth_date,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	Email       string     `json:"email,omitempty"`

	Address        Address           `json:"address"`
	Responsible    *ResponsibleParty `json:"responsible,omitempty"`
	MedicalHistory string            `json:"medical_history,omitempty"`
	Allergies      string            `json:"allergies,omitempty"`
	Notes          string            `json:"notes,omitempty"`

	Deleted       bool       `json:"deleted"`
	DeletedReason *string    `json:"deleted_reason,omitempty"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FullName joins the name parts for display and documents.
func (p *Patient) FullName() string {
	if p.FirstName == "" {
		return p.LastName
	}
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}
