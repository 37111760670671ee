package patient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/clinerva/clinerva/internal/domain/audit"
	"github.com/clinerva/clinerva/internal/platform/blobstore"
)

var (
	ErrPatientNotFound  = errors.New("patient not found")
	ErrBillingCodeTaken = errors.New("billing code is already registered")
	ErrPatientDeleted   = errors.New("patient record is deleted")
)

type Service struct {
	repo  Repository
	blobs blobstore.BlobStore
	audit *audit.Service
}

func NewService(repo Repository, blobs blobstore.BlobStore, auditSvc *audit.Service) *Service {
	return &Service{repo: repo, blobs: blobs, audit: auditSvc}
}

func (s *Service) Register(ctx context.Context, p *Patient) error {
	p.BillingCode = strings.TrimSpace(p.BillingCode)
	if p.BillingCode == "" {
		return fmt.Errorf("billing_code is required")
	}
	if p.FirstName == "" && p.LastName == "" {
		return fmt.Errorf("patient name is required")
	}
	if existing, err := s.repo.GetByBillingCode(ctx, p.BillingCode); err == nil && existing != nil {
		return ErrBillingCodeTaken
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.ActionCreate, "patient", p.ID.String(), map[string]interface{}{
		"billing_code": p.BillingCode,
	})
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByBillingCode(ctx context.Context, code string) (*Patient, error) {
	return s.repo.GetByBillingCode(ctx, strings.TrimSpace(code))
}

// Update changes demographic fields. The billing code is immutable; a record
// already soft-deleted rejects edits until it is restored.
func (s *Service) Update(ctx context.Context, p *Patient) error {
	existing, err := s.repo.GetByID(ctx, p.ID)
	if err != nil {
		return err
	}
	if existing.Deleted {
		return ErrPatientDeleted
	}
	p.BillingCode = existing.BillingCode
	if err := s.repo.Update(ctx, p); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.ActionUpdate, "patient", p.ID.String(), nil)
	return nil
}

// Delete soft-deletes the record; history is kept for audit and restore.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return fmt.Errorf("a deletion reason is required")
	}
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, id, reason); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.ActionDelete, "patient", id.String(), map[string]interface{}{
		"reason": reason,
	})
	return nil
}

func (s *Service) Restore(ctx context.Context, id uuid.UUID) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Restore(ctx, id); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.ActionRestore, "patient", id.String(), nil)
	return nil
}

func (s *Service) List(ctx context.Context, includeDeleted bool, limit, offset int) ([]*Patient, int, error) {
	return s.repo.List(ctx, includeDeleted, limit, offset)
}

func (s *Service) Search(ctx context.Context, query string, limit, offset int) ([]*Patient, int, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.repo.List(ctx, false, limit, offset)
	}
	return s.repo.Search(ctx, query, limit, offset)
}

// AttachHistoryFile uploads a scanned document into the patient's record.
func (s *Service) AttachHistoryFile(ctx context.Context, patientID uuid.UUID, uploadedBy uuid.UUID, fileName, contentType string, content io.Reader) (*blobstore.BlobMetadata, error) {
	p, err := s.repo.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if p.Deleted {
		return nil, ErrPatientDeleted
	}
	return s.blobs.Upload(ctx, blobstore.BlobMetadata{
		FileName:    fileName,
		ContentType: contentType,
		PatientID:   patientID.String(),
		Category:    blobstore.CategoryHistoryFile,
		CreatedBy:   uploadedBy.String(),
	}, content)
}

func (s *Service) ListHistoryFiles(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*blobstore.BlobMetadata, int, error) {
	return s.blobs.ListByPatient(ctx, patientID.String(), blobstore.CategoryHistoryFile, limit, offset)
}

func (s *Service) OpenHistoryFile(ctx context.Context, id string) (io.ReadCloser, *blobstore.BlobMetadata, error) {
	return s.blobs.Download(ctx, id)
}
