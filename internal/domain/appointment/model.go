package appointment

import (
	"time"

	"github.com/google/uuid"
)

// Appointment statuses, in their normal order of progression. Cancellation
// is reachable from any non-terminal status.
const (
	StatusScheduled      = "scheduled"
	StatusConfirmedPhone = "confirmed_phone"
	StatusPaidCheckedIn  = "paid_checked_in"
	StatusInProgress     = "in_progress"
	StatusCompleted      = "completed"
	StatusCancelled      = "cancelled"
)

// transitions maps each status to the set it may move to directly.
var transitions = map[string]map[string]bool{
	StatusScheduled:      {StatusConfirmedPhone: true, StatusCancelled: true},
	StatusConfirmedPhone: {StatusPaidCheckedIn: true, StatusCancelled: true},
	StatusPaidCheckedIn:  {StatusInProgress: true, StatusCancelled: true},
	StatusInProgress:     {StatusCompleted: true, StatusCancelled: true},
	StatusCompleted:      {},
	StatusCancelled:      {},
}

// CanTransition reports whether from may move directly to to.
func CanTransition(from, to string) bool {
	return transitions[from][to]
}

// Terminal reports whether a status accepts no further changes.
func Terminal(status string) bool {
	return len(transitions[status]) == 0
}

// Appointment is one scheduled visit.
type Appointment struct {
	ID          uuid.UUID  `json:"id"`
	PatientID   uuid.UUID  `json:"patient_id"`
	DoctorID    uuid.UUID  `json:"doctor_id"`
	SpecialtyID *uuid.UUID `json:"specialty_id,omitempty"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	DurationMin int        `json:"duration_min"`
	Status      string     `json:"status"`
	Reason      string     `json:"reason,omitempty"`

	ReceiptNumber *string  `json:"receipt_number,omitempty"`
	AmountPaid    *float64 `json:"amount_paid,omitempty"`

	CancelReason   *string    `json:"cancel_reason,omitempty"`
	ConsultationID *uuid.UUID `json:"consultation_id,omitempty"`

	CreatedBy uuid.UUID `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
