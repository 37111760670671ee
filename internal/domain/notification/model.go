package notification

import (
	"time"

	"github.com/google/uuid"
)

// Notification types surfaced to staff.
const (
	TypeAppointmentCreated   = "appointment_created"
	TypeAppointmentCancelled = "appointment_cancelled"
	TypeAppointmentReminder  = "appointment_reminder"
	TypeConsultationFinished = "consultation_finished"
	TypeConsultationDelivery = "consultation_delivery"
	TypeSystem               = "system"
)

// Notification is one in-app message for a staff member.
type Notification struct {
	ID          uuid.UUID              `json:"id"`
	RecipientID uuid.UUID              `json:"recipient_id"`
	Type        string                 `json:"type"`
	Title       string                 `json:"title"`
	Body        string                 `json:"body"`
	Data        map[string]interface{} `json:"data,omitempty"`
	Read        bool                   `json:"read"`
	CreatedAt   time.Time              `json:"created_at"`
}
