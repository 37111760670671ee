package consultation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinerva/clinerva/internal/domain/audit"
	"github.com/clinerva/clinerva/internal/domain/notification"
	"github.com/clinerva/clinerva/internal/platform/auth"
	"github.com/clinerva/clinerva/internal/platform/metrics"
	"github.com/clinerva/clinerva/internal/platform/signature"
)

var (
	ErrConsultationNotFound = errors.New("consultation not found")
	ErrNotInProgress        = errors.New("consultation is no longer in progress")
	ErrNotFinished          = errors.New("consultation has not been finished")
	ErrNotOwner             = errors.New("consultation belongs to another doctor")
	ErrUnknownSection       = errors.New("unknown section")
	ErrSectionNotEditable   = errors.New("the signature section is written by the finish operation")
	ErrSectionEmpty         = errors.New("section has no content")
	ErrNoSignatureMode      = errors.New("unknown signature mode")
	ErrDraftNotFound        = errors.New("no draft saved")
)

// UnresolvedError blocks the finish operation until every section either has
// content or a confirmed omission.
type UnresolvedError struct {
	Sections []string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("unresolved sections: %s", strings.Join(e.Sections, ", "))
}

// CertificateLoader fetches the doctor's PKCS#12 certificate bytes. The
// identity service implements it.
type CertificateLoader interface {
	LoadCertificate(ctx context.Context, userID uuid.UUID) ([]byte, error)
}

// AppointmentCompleter moves the originating appointment to completed once
// the consultation finishes. The appointment service implements it.
type AppointmentCompleter interface {
	Complete(ctx context.Context, id uuid.UUID) error
}

// Directory resolves display names for rendered documents and the staff
// audiences for notification fan-out.
type Directory interface {
	PatientLabel(ctx context.Context, id uuid.UUID) (name, billingCode string, err error)
	UserName(ctx context.Context, id uuid.UUID) (string, error)
	CatalogItemName(ctx context.Context, id uuid.UUID) (string, error)
	ActiveUsersInRole(ctx context.Context, role string) ([]uuid.UUID, error)
}

type Service struct {
	repo       Repository
	certs      CertificateLoader
	appts      AppointmentCompleter
	dir        Directory
	notifs     *notification.Service
	audit      *audit.Service
	clinicName string
	logger     zerolog.Logger
	now        func() time.Time
}

func NewService(repo Repository, certs CertificateLoader, appts AppointmentCompleter, dir Directory,
	notifs *notification.Service, auditSvc *audit.Service, clinicName string, logger zerolog.Logger) *Service {
	return &Service{
		repo:       repo,
		certs:      certs,
		appts:      appts,
		dir:        dir,
		notifs:     notifs,
		audit:      auditSvc,
		clinicName: clinicName,
		logger:     logger.With().Str("component", "consultation").Logger(),
		now:        time.Now,
	}
}

// Start opens the consultation for an attended appointment. Attending the
// same appointment again resumes the existing consultation instead of
// opening a second one.
func (s *Service) Start(ctx context.Context, appointmentID, patientID, doctorID uuid.UUID) (uuid.UUID, error) {
	if existing, err := s.repo.GetByAppointment(ctx, appointmentID); err == nil {
		return existing.ID, nil
	} else if !errors.Is(err, ErrConsultationNotFound) {
		return uuid.Nil, err
	}

	c := &Consultation{
		AppointmentID: appointmentID,
		PatientID:     patientID,
		DoctorID:      doctorID,
		Status:        StatusInProgress,
		StartedAt:     s.now(),
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return uuid.Nil, err
	}
	s.audit.Record(ctx, audit.ActionCreate, "consultation", c.ID.String(), map[string]interface{}{
		"appointment_id": appointmentID.String(),
		"patient_id":     patientID.String(),
	})
	return c.ID, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Consultation, error) {
	return s.repo.GetByAppointment(ctx, appointmentID)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Consultation, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// UpdateSection autosaves one wizard section. Only the assigned doctor may
// write, and only while the consultation is in progress.
func (s *Service) UpdateSection(ctx context.Context, id uuid.UUID, name string, content json.RawMessage, actorID uuid.UUID) (*Consultation, error) {
	c, err := s.editable(ctx, id, actorID)
	if err != nil {
		return nil, err
	}
	if err := applySection(&c.Sections, name, content); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// SaveDraft stores the wizard's working payload so a browser refresh can
// recover it. The payload is opaque to the server and the last write wins.
func (s *Service) SaveDraft(ctx context.Context, id uuid.UUID, payload json.RawMessage, actorID uuid.UUID) error {
	c, err := s.editable(ctx, id, actorID)
	if err != nil {
		return err
	}
	return s.repo.SaveDraft(ctx, c.ID, payload)
}

// Draft returns the saved working payload, or ErrDraftNotFound.
func (s *Service) Draft(ctx context.Context, id uuid.UUID, actorID uuid.UUID) (json.RawMessage, error) {
	c, err := s.editable(ctx, id, actorID)
	if err != nil {
		return nil, err
	}
	return s.repo.GetDraft(ctx, c.ID)
}

// DiscardDraft removes the saved payload.
func (s *Service) DiscardDraft(ctx context.Context, id uuid.UUID, actorID uuid.UUID) error {
	c, err := s.editable(ctx, id, actorID)
	if err != nil {
		return err
	}
	return s.repo.DeleteDraft(ctx, c.ID)
}

// ConfirmOmission records the doctor's explicit acknowledgement that a
// section is intentionally left empty.
func (s *Service) ConfirmOmission(ctx context.Context, id uuid.UUID, name string, actorID uuid.UUID) (*Consultation, error) {
	if !ValidSection[name] {
		return nil, ErrUnknownSection
	}
	c, err := s.editable(ctx, id, actorID)
	if err != nil {
		return nil, err
	}
	if !c.confirmed(name) {
		c.ConfirmedOmissions = append(c.ConfirmedOmissions, name)
		if err := s.repo.Update(ctx, c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// RetractOmission withdraws a previous confirmation.
func (s *Service) RetractOmission(ctx context.Context, id uuid.UUID, name string, actorID uuid.UUID) (*Consultation, error) {
	if !ValidSection[name] {
		return nil, ErrUnknownSection
	}
	c, err := s.editable(ctx, id, actorID)
	if err != nil {
		return nil, err
	}
	kept := c.ConfirmedOmissions[:0]
	for _, sec := range c.ConfirmedOmissions {
		if sec != name {
			kept = append(kept, sec)
		}
	}
	if len(kept) != len(c.ConfirmedOmissions) {
		c.ConfirmedOmissions = kept
		if err := s.repo.Update(ctx, c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (s *Service) editable(ctx context.Context, id, actorID uuid.UUID) (*Consultation, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != StatusInProgress {
		return nil, ErrNotInProgress
	}
	if c.DoctorID != actorID {
		return nil, ErrNotOwner
	}
	return c, nil
}

func applySection(s *Sections, name string, content json.RawMessage) error {
	switch name {
	case SectionDiagnosis:
		return decodeInto(content, &s.Diagnosis)
	case SectionPrescription:
		return decodeInto(content, &s.Prescription)
	case SectionExams:
		return decodeInto(content, &s.Exams)
	case SectionReferrals:
		return decodeInto(content, &s.Referrals)
	case SectionNursing:
		return decodeInto(content, &s.Nursing)
	case SectionSignature:
		return ErrSectionNotEditable
	default:
		return ErrUnknownSection
	}
}

func decodeInto[T any](content json.RawMessage, dst **T) error {
	if len(content) == 0 || string(content) == "null" {
		*dst = nil
		return nil
	}
	v := new(T)
	dec := json.NewDecoder(strings.NewReader(string(content)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid section payload: %w", err)
	}
	*dst = v
	return nil
}

// FinishRequest closes the wizard. SignatureMode may be empty when the
// doctor confirmed omitting the signature section.
type FinishRequest struct {
	SignatureMode       string `json:"signature_mode"`
	CertificatePassword string `json:"certificate_password,omitempty"`
	SignerName          string `json:"signer_name,omitempty"`
}

// Finish validates the gate, signs when requested, records the omitted
// fields and completes the originating appointment.
func (s *Service) Finish(ctx context.Context, id uuid.UUID, actorID uuid.UUID, req FinishRequest) (*Consultation, error) {
	c, err := s.editable(ctx, id, actorID)
	if err != nil {
		return nil, err
	}

	switch req.SignatureMode {
	case "":
		// Finishing unsigned requires a confirmed omission of the
		// signature section, enforced by the gate below.
	case SignatureManual:
		name := req.SignerName
		if name == "" {
			name, err = s.dir.UserName(ctx, c.DoctorID)
			if err != nil {
				return nil, err
			}
		}
		c.Signature = &SignatureRecord{Mode: SignatureManual, SignerName: name, SignedAt: s.now()}
	case SignatureDigital:
		rec, err := s.signDigitally(ctx, c, req.CertificatePassword)
		if err != nil {
			return nil, err
		}
		c.Signature = rec
	default:
		return nil, ErrNoSignatureMode
	}

	if unresolved := c.Unresolved(); len(unresolved) > 0 {
		return nil, &UnresolvedError{Sections: unresolved}
	}

	now := s.now()
	c.OmittedFields = c.Omitted()
	c.Status = StatusFinished
	c.FinishedAt = &now
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}

	// The record is final, the working draft is no longer useful.
	if err := s.repo.DeleteDraft(ctx, c.ID); err != nil {
		s.logger.Warn().Err(err).Str("consultation_id", c.ID.String()).Msg("discard draft after finish")
	}

	// The consultation is the record of truth. A failed appointment update
	// is repairable, so it does not undo the finish.
	if err := s.appts.Complete(ctx, c.AppointmentID); err != nil {
		s.logger.Error().Err(err).
			Str("appointment_id", c.AppointmentID.String()).
			Msg("complete appointment after finish")
	}

	metrics.ConsultationFinished()
	s.notifyFinished(ctx, c)
	action := audit.ActionUpdate
	detail := map[string]interface{}{"omitted_fields": c.OmittedFields}
	if c.Signature != nil {
		action = audit.ActionSign
		detail["signature_mode"] = c.Signature.Mode
	}
	s.audit.Record(ctx, action, "consultation", c.ID.String(), detail)
	return c, nil
}

// notifyFinished tells nursing and the front desk the documents are ready
// for delivery. A lookup or publish failure never undoes the finish.
func (s *Service) notifyFinished(ctx context.Context, c *Consultation) {
	var recipients []uuid.UUID
	for _, role := range []string{auth.RoleNurse, auth.RoleReceptionist} {
		ids, err := s.dir.ActiveUsersInRole(ctx, role)
		if err != nil {
			s.logger.Warn().Err(err).Str("role", role).Msg("resolve delivery staff")
			continue
		}
		recipients = append(recipients, ids...)
	}
	err := s.notifs.NotifyMany(ctx, recipients, notification.TypeConsultationFinished,
		"Consultation finished", "The consultation documents are ready for delivery.",
		map[string]interface{}{"consultation_id": c.ID.String()})
	if err != nil {
		s.logger.Warn().Err(err).Str("consultation_id", c.ID.String()).Msg("notify finish")
	}
}

func (s *Service) signDigitally(ctx context.Context, c *Consultation, password string) (*SignatureRecord, error) {
	p12, err := s.certs.LoadCertificate(ctx, c.DoctorID)
	if err != nil {
		return nil, err
	}
	signer, err := signature.Open(p12, password)
	if err != nil {
		return nil, err
	}
	doc, err := json.Marshal(c.Sections)
	if err != nil {
		return nil, err
	}
	signed, err := signer.Sign(doc)
	if err != nil {
		return nil, err
	}
	name, err := s.dir.UserName(ctx, c.DoctorID)
	if err != nil {
		return nil, err
	}
	return &SignatureRecord{
		Mode:         SignatureDigital,
		SignerName:   name,
		Subject:      signer.Info.Subject,
		Issuer:       signer.Info.Issuer,
		SerialNumber: signer.Info.SerialNumber,
		Document:     signed,
		SignedAt:     s.now(),
	}, nil
}

// Deliver hands the finished consultation to the patient. Nursing and admin
// staff perform delivery at the front desk.
func (s *Service) Deliver(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != StatusFinished {
		return nil, ErrNotFinished
	}
	now := s.now()
	c.Status = StatusDelivered
	c.DeliveredAt = &now
	if actorID := auth.UserIDFromContext(ctx); actorID != uuid.Nil {
		c.DeliveredBy = &actorID
	}
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}

	if err := s.notifs.Notify(ctx, &notification.Notification{
		RecipientID: c.DoctorID,
		Type:        notification.TypeConsultationDelivery,
		Title:       "Consultation delivered",
		Body:        "The consultation documents were handed to the patient.",
		Data:        map[string]interface{}{"consultation_id": c.ID.String()},
	}); err != nil {
		s.logger.Warn().Err(err).Msg("notify delivery")
	}
	s.audit.Record(ctx, audit.ActionDeliver, "consultation", c.ID.String(), nil)
	return c, nil
}
