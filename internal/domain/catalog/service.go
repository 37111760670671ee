package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinerva/clinerva/internal/domain/audit"
	"github.com/clinerva/clinerva/internal/platform/excel"
)

var (
	ErrItemNotFound  = errors.New("catalog item not found")
	ErrDuplicateItem = errors.New("an item with this name already exists in the catalog")
	ErrUnknownKind   = errors.New("unknown catalog kind")
)

type Service struct {
	repo   Repository
	audit  *audit.Service
	logger zerolog.Logger
}

func NewService(repo Repository, auditSvc *audit.Service, logger zerolog.Logger) *Service {
	return &Service{repo: repo, audit: auditSvc, logger: logger}
}

func (s *Service) Create(ctx context.Context, it *Item) error {
	if err := s.validate(it); err != nil {
		return err
	}
	if existing, err := s.repo.GetByName(ctx, it.Kind, it.Name); err == nil && existing != nil {
		return ErrDuplicateItem
	}
	it.Active = true
	if err := s.repo.Create(ctx, it); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.ActionCreate, "catalog_item", it.ID.String(), map[string]interface{}{
		"kind": it.Kind, "name": it.Name,
	})
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Item, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Update(ctx context.Context, it *Item) error {
	existing, err := s.repo.GetByID(ctx, it.ID)
	if err != nil {
		return err
	}
	it.Kind = existing.Kind
	if err := s.validate(it); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, it); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.ActionUpdate, "catalog_item", it.ID.String(), map[string]interface{}{
		"kind": it.Kind, "name": it.Name,
	})
	return nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	it, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.ActionDelete, "catalog_item", id.String(), map[string]interface{}{
		"kind": it.Kind, "name": it.Name,
	})
	return nil
}

func (s *Service) List(ctx context.Context, kind, query string, limit, offset int) ([]*Item, int, error) {
	if !ValidKinds[kind] {
		return nil, 0, ErrUnknownKind
	}
	return s.repo.ListByKind(ctx, kind, strings.TrimSpace(query), limit, offset)
}

// AdjustStock applies a delta to a medicine's stock level, for dispensing
// and restocking.
func (s *Service) AdjustStock(ctx context.Context, id uuid.UUID, delta int) (*Item, error) {
	it, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !Priced(it.Kind) {
		return nil, fmt.Errorf("%s items carry no stock", it.Kind)
	}
	updated, err := s.repo.AdjustStock(ctx, id, delta)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, audit.ActionUpdate, "catalog_item", id.String(), map[string]interface{}{
		"kind": it.Kind, "name": it.Name, "stock_delta": delta,
	})
	return updated, nil
}

func (s *Service) validate(it *Item) error {
	it.Name = strings.TrimSpace(it.Name)
	if !ValidKinds[it.Kind] {
		return ErrUnknownKind
	}
	if it.Name == "" {
		return fmt.Errorf("name is required")
	}
	if it.Price != nil && *it.Price < 0 {
		return fmt.Errorf("price cannot be negative")
	}
	if !Priced(it.Kind) {
		it.Price = nil
		it.Stock = nil
	}
	if it.Kind != KindPathology {
		it.Exams = nil
	}
	return nil
}

// importColumns describes the spreadsheet layout accepted per kind.
var importColumns = map[string][]excel.Column{
	KindSpecialty: {
		{Name: "name", Matches: []string{"name", "specialty", "especialidad", "nombre"}},
	},
	KindPathology: {
		{Name: "name", Matches: []string{"name", "pathology", "patolog", "diagnos", "nombre"}},
		{Name: "code", Matches: []string{"code", "icd", "cie", "codigo"}},
	},
	KindLabItem: {
		{Name: "name", Matches: []string{"name", "exam", "test", "nombre"}},
		{Name: "price", Matches: []string{"price", "precio", "cost"}},
	},
	KindMedicine: {
		{Name: "name", Matches: []string{"name", "medicine", "medicamento", "nombre"}},
		{Name: "strength", Matches: []string{"strength", "concentracion", "dose", "dosis"}},
		{Name: "price", Matches: []string{"price", "precio", "cost"}},
		{Name: "stock", Matches: []string{"stock", "qty", "cantidad", "existencia"}},
	},
	KindExternalMedicine: {
		{Name: "name", Matches: []string{"name", "medicine", "medicamento", "nombre"}},
		{Name: "notes", Matches: []string{"note", "nota", "observ"}},
	},
}

// ImportResult summarizes a spreadsheet import.
type ImportResult struct {
	Imported int      `json:"imported"`
	Updated  int      `json:"updated"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// ImportSpreadsheet loads a catalog from an uploaded workbook. Existing items
// matched by name are updated in place; malformed rows are skipped and
// reported, never aborting the whole import.
func (s *Service) ImportSpreadsheet(ctx context.Context, kind string, r io.Reader) (*ImportResult, error) {
	cols, ok := importColumns[kind]
	if !ok {
		return nil, ErrUnknownKind
	}
	rows, err := excel.ImportRows(r, cols)
	if err != nil {
		return nil, err
	}

	res := &ImportResult{}
	for i, row := range rows {
		it, err := itemFromRow(kind, row)
		if err != nil {
			res.Skipped++
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: %v", i+1, err))
			continue
		}

		if existing, err := s.repo.GetByName(ctx, kind, it.Name); err == nil && existing != nil {
			it.ID = existing.ID
			it.Active = existing.Active
			if err := s.repo.Update(ctx, it); err != nil {
				return res, err
			}
			res.Updated++
			continue
		}

		it.Active = true
		if err := s.repo.Create(ctx, it); err != nil {
			return res, err
		}
		res.Imported++
	}
	s.logger.Info().Str("kind", kind).Int("imported", res.Imported).
		Int("updated", res.Updated).Int("skipped", res.Skipped).Msg("catalog import finished")
	s.audit.Record(ctx, audit.ActionImport, "catalog", kind, map[string]interface{}{
		"imported": res.Imported, "updated": res.Updated, "skipped": res.Skipped,
	})
	return res, nil
}

func itemFromRow(kind string, row excel.Row) (*Item, error) {
	name := row["name"]
	if name == "" {
		return nil, fmt.Errorf("missing name")
	}
	it := &Item{
		Kind:     kind,
		Name:     name,
		Code:     row["code"],
		Strength: row["strength"],
		Notes:    row["notes"],
	}
	if raw, ok := row["price"]; ok {
		price, err := excel.NormalizeCurrency(raw)
		if err != nil {
			return nil, err
		}
		it.Price = &price
	}
	if raw, ok := row["stock"]; ok {
		stock, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("bad stock value %q", raw)
		}
		it.Stock = &stock
	}
	return it, nil
}
