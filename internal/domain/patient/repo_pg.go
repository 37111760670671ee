package patient

import (
	"context"
	"encoding/json"
	"errors"

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

const patientCols = `id, billing_code, first_name, last_name, sex, birth_date, phone, email,
	address, responsible, medical_history, allergies, notes,
	deleted, deleted_reason, deleted_at, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	address, responsible, err := encodeContact(p)
	if err != nil {
		return err
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO patients (id, billing_code, first_name, last_name, sex, birth_date,
			phone, email, address, responsible, medical_history, allergies, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		p.ID, p.BillingCode, p.FirstName, p.LastName, p.Sex, p.BirthDate,
		p.Phone, p.Email, address, responsible, p.MedicalHistory, p.Allergies, p.Notes,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrBillingCodeTaken
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
}

func (r *repoPG) GetByBillingCode(ctx context.Context, code string) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patients WHERE billing_code = $1`, code))
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	address, responsible, err := encodeContact(p)
	if err != nil {
		return err
	}
	_, err = r.conn(ctx).Exec(ctx, `
		UPDATE patients SET first_name=$2, last_name=$3, sex=$4, birth_date=$5, phone=$6,
			email=$7, address=$8, responsible=$9, medical_history=$10, allergies=$11,
			notes=$12, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.FirstName, p.LastName, p.Sex, p.BirthDate, p.Phone,
		p.Email, address, responsible, p.MedicalHistory, p.Allergies, p.Notes,
	)
	return err
}

func encodeContact(p *Patient) (address []byte, responsible interface{}, err error) {
	if address, err = json.Marshal(p.Address); err != nil {
		return nil, nil, err
	}
	if p.Responsible != nil {
		b, err := json.Marshal(p.Responsible)
		if err != nil {
			return nil, nil, err
		}
		responsible = b
	}
	return address, responsible, nil
}

func (r *repoPG) SoftDelete(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET deleted=TRUE, deleted_reason=$2, deleted_at=NOW(), updated_at=NOW()
		WHERE id = $1`, id, reason)
	return err
}

func (r *repoPG) Restore(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET deleted=FALSE, deleted_reason=NULL, deleted_at=NULL, updated_at=NOW()
		WHERE id = $1`, id)
	return err
}

func (r *repoPG) List(ctx context.Context, includeDeleted bool, limit, offset int) ([]*Patient, int, error) {
	where := `WHERE NOT deleted`
	if includeDeleted {
		where = ``
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients `+where).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+patientCols+` FROM patients `+where+` ORDER BY last_name, first_name LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectPatients(rows, total)
}

func (r *repoPG) Search(ctx context.Context, query string, limit, offset int) ([]*Patient, int, error) {
	pattern := "%" + query + "%"
	const where = `WHERE NOT deleted AND
		(billing_code ILIKE $1 OR first_name ILIKE $1 OR last_name ILIKE $1 OR phone ILIKE $1)`
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients `+where, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+patientCols+` FROM patients `+where+` ORDER BY last_name, first_name LIMIT $2 OFFSET $3`,
		pattern, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectPatients(rows, total)
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanInto(row scannable) (*Patient, error) {
	var (
		p           Patient
		address     []byte
		responsible []byte
	)
	err := row.Scan(&p.ID, &p.BillingCode, &p.FirstName, &p.LastName, &p.Sex, &p.BirthDate,
		&p.Phone, &p.Email, &address, &responsible, &p.MedicalHistory, &p.Allergies, &p.Notes,
		&p.Deleted, &p.DeletedReason, &p.DeletedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(address) > 0 {
		if err := json.Unmarshal(address, &p.Address); err != nil {
			return nil, err
		}
	}
	if len(responsible) > 0 {
		p.Responsible = &ResponsibleParty{}
		if err := json.Unmarshal(responsible, p.Responsible); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	p, err := scanInto(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPatientNotFound
	}
	return p, err
}

func collectPatients(rows pgx.Rows, total int) ([]*Patient, int, error) {
	var out []*Patient
	for rows.Next() {
		p, err := scanInto(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, nil
}
