package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Catalog kinds. Each kind is its own logical collection; they share one
// storage shape because the admin screens treat them uniformly.
const (
	KindSpecialty        = "specialty"
	KindPathology        = "pathology"
	KindLabItem          = "lab-item"
	KindMedicine         = "medicine"
	KindExternalMedicine = "external-medicine"
)

// ValidKinds maps every accepted catalog kind.
var ValidKinds = map[string]bool{
	KindSpecialty:        true,
	KindPathology:        true,
	KindLabItem:          true,
	KindMedicine:         true,
	KindExternalMedicine: true,
}

// Item is one catalog entry. Price and Stock only apply to priced kinds
// (lab items and pharmacy medicines); Exams only to pathologies, where it
// names the usual workup ordered for the condition.
type Item struct {
	ID       uuid.UUID `json:"id"`
	Kind     string    `json:"kind"`
	Name     string    `json:"name"`
	Code     string    `json:"code,omitempty"`
	Strength string    `json:"strength,omitempty"`
	Unit     string    `json:"unit,omitempty"`
	Price    *float64  `json:"price,omitempty"`
	Stock    *int      `json:"stock,omitempty"`
	Exams    []string  `json:"exams,omitempty"`
	Notes    string    `json:"notes,omitempty"`
	Active   bool      `json:"active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Priced reports whether the kind carries a price and stock level.
func Priced(kind string) bool {
	return kind == KindLabItem || kind == KindMedicine
}
