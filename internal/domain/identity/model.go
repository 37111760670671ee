package identity

import (
	"time"

	"github.com/google/uuid"
)

// User is a clinic staff account. PasswordHash never leaves the server and
// CertificateID points at the encrypted signing certificate in the blob store.
type User struct {
	ID            uuid.UUID  `json:"id"`
	Email         string     `json:"email"`
	Name          string     `json:"name"`
	Role          string     `json:"role"`
	Specialty     string     `json:"specialty,omitempty"`
	PasswordHash  string     `json:"-"`
	CertificateID *string    `json:"certificate_id,omitempty"`
	Active        bool       `json:"active"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
