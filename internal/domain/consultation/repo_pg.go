package consultation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinerva/clinerva/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const consultationCols = `id, appointment_id, patient_id, doctor_id, status,
	sections, confirmed_omissions, omitted_fields, printed_documents, signature,
	started_at, finished_at, delivered_at, delivered_by, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, c *Consultation) error {
	c.ID = uuid.New()
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now

	sections, omissions, omitted, printed, sig, err := encodeDocs(c)
	if err != nil {
		return err
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO consultations (id, appointment_id, patient_id, doctor_id, status,
			sections, confirmed_omissions, omitted_fields, printed_documents, signature, started_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		c.ID, c.AppointmentID, c.PatientID, c.DoctorID, c.Status,
		sections, omissions, omitted, printed, sig, c.StartedAt,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+consultationCols+` FROM consultations WHERE id = $1`, id)
	return scanConsultation(row)
}

func (r *repoPG) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Consultation, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+consultationCols+` FROM consultations WHERE appointment_id = $1`, appointmentID)
	return scanConsultation(row)
}

func (r *repoPG) Update(ctx context.Context, c *Consultation) error {
	c.UpdatedAt = time.Now()
	sections, omissions, omitted, printed, sig, err := encodeDocs(c)
	if err != nil {
		return err
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE consultations SET status=$2, sections=$3, confirmed_omissions=$4,
			omitted_fields=$5, printed_documents=$6, signature=$7, finished_at=$8,
			delivered_at=$9, delivered_by=$10, updated_at=$11
		WHERE id = $1`,
		c.ID, c.Status, sections, omissions, omitted, printed, sig,
		c.FinishedAt, c.DeliveredAt, c.DeliveredBy, c.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConsultationNotFound
	}
	return nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Consultation, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM consultations WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+consultationCols+` FROM consultations
		WHERE patient_id = $1 ORDER BY started_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Consultation
	for rows.Next() {
		c, err := scanConsultationRows(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, nil
}

func encodeDocs(c *Consultation) (sections, omissions, omitted, printed []byte, sig interface{}, err error) {
	if sections, err = json.Marshal(c.Sections); err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("encoding sections: %w", err)
	}
	if omissions, err = json.Marshal(c.ConfirmedOmissions); err != nil {
		return nil, nil, nil, nil, nil, err
	}
	if omitted, err = json.Marshal(c.OmittedFields); err != nil {
		return nil, nil, nil, nil, nil, err
	}
	if printed, err = json.Marshal(c.PrintedDocuments); err != nil {
		return nil, nil, nil, nil, nil, err
	}
	if c.Signature != nil {
		b, err := json.Marshal(c.Signature)
		if err != nil {
			return nil, nil, nil, nil, nil, err
		}
		sig = b
	}
	return sections, omissions, omitted, printed, sig, nil
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanInto(row scannable) (*Consultation, error) {
	var (
		c         Consultation
		sections  []byte
		omissions []byte
		omitted   []byte
		printed   []byte
		sig       []byte
	)
	err := row.Scan(&c.ID, &c.AppointmentID, &c.PatientID, &c.DoctorID, &c.Status,
		&sections, &omissions, &omitted, &printed, &sig,
		&c.StartedAt, &c.FinishedAt, &c.DeliveredAt, &c.DeliveredBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(sections, &c.Sections); err != nil {
		return nil, fmt.Errorf("decoding sections: %w", err)
	}
	if len(omissions) > 0 {
		if err := json.Unmarshal(omissions, &c.ConfirmedOmissions); err != nil {
			return nil, err
		}
	}
	if len(omitted) > 0 {
		if err := json.Unmarshal(omitted, &c.OmittedFields); err != nil {
			return nil, err
		}
	}
	if len(printed) > 0 {
		if err := json.Unmarshal(printed, &c.PrintedDocuments); err != nil {
			return nil, err
		}
	}
	if len(sig) > 0 {
		c.Signature = &SignatureRecord{}
		if err := json.Unmarshal(sig, c.Signature); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

func scanConsultation(row pgx.Row) (*Consultation, error) {
	c, err := scanInto(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrConsultationNotFound
	}
	return c, err
}

func scanConsultationRows(rows pgx.Rows) (*Consultation, error) {
	return scanInto(rows)
}

func (r *repoPG) SaveDraft(ctx context.Context, consultationID uuid.UUID, payload []byte) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO consultation_drafts (consultation_id, payload, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (consultation_id) DO UPDATE SET payload = $2, updated_at = now()`,
		consultationID, payload)
	return err
}

func (r *repoPG) GetDraft(ctx context.Context, consultationID uuid.UUID) ([]byte, error) {
	var payload []byte
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT payload FROM consultation_drafts WHERE consultation_id = $1`,
		consultationID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDraftNotFound
	}
	return payload, err
}

func (r *repoPG) DeleteDraft(ctx context.Context, consultationID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM consultation_drafts WHERE consultation_id = $1`, consultationID)
	return err
}
