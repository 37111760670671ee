package audit

import (
	"time"

	"github.com/google/uuid"
)

// Common audit actions. Free-form values are allowed; these cover the
// operations every reviewer looks for first.
const (
	ActionCreate  = "create"
	ActionUpdate  = "update"
	ActionDelete  = "delete"
	ActionSign    = "sign"
	ActionDeliver = "deliver"
	ActionImport  = "import"
	ActionBackup  = "backup"
	ActionRestore = "restore"
	ActionLogin   = "login"
)

// Entry is one append-only audit record. The ULID id makes entries sortable
// by creation time without a separate sequence.
type Entry struct {
	ID         string                 `json:"id"`
	ActorID    uuid.UUID              `json:"actor_id"`
	ActorEmail string                 `json:"actor_email,omitempty"`
	Action     string                 `json:"action"`
	Entity     string                 `json:"entity"`
	EntityID   string                 `json:"entity_id,omitempty"`
	Detail     map[string]interface{} `json:"detail,omitempty"`
	IP         string                 `json:"ip,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}
