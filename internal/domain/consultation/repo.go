package consultation

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists consultations and their server-side wizard drafts.
// A draft is an opaque payload keyed by consultation, last write wins.
type Repository interface {
	Create(ctx context.Context, c *Consultation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Consultation, error)
	GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Consultation, error)
	Update(ctx context.Context, c *Consultation) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Consultation, int, error)

	SaveDraft(ctx context.Context, consultationID uuid.UUID, payload []byte) error
	GetDraft(ctx context.Context, consultationID uuid.UUID) ([]byte, error)
	DeleteDraft(ctx context.Context, consultationID uuid.UUID) error
}
