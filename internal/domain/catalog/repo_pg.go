package catalog

import (
	"context"
	"errors"
	"strconv"

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

const itemCols = `id, kind, name, code, strength, unit, price, stock, exams, notes, active, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, it *Item) error {
	it.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO catalog_items (id, kind, name, code, strength, unit, price, stock, exams, notes, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		it.ID, it.Kind, it.Name, it.Code, it.Strength, it.Unit, it.Price, it.Stock, it.Exams, it.Notes, it.Active,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateItem
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Item, error) {
	return scanItem(r.conn(ctx).QueryRow(ctx, `SELECT `+itemCols+` FROM catalog_items WHERE id = $1`, id))
}

func (r *repoPG) GetByName(ctx context.Context, kind, name string) (*Item, error) {
	return scanItem(r.conn(ctx).QueryRow(ctx,
		`SELECT `+itemCols+` FROM catalog_items WHERE kind = $1 AND lower(name) = lower($2)`, kind, name))
}

func (r *repoPG) Update(ctx context.Context, it *Item) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE catalog_items SET name=$2, code=$3, strength=$4, unit=$5, price=$6, stock=$7,
			exams=$8, notes=$9, active=$10, updated_at=NOW()
		WHERE id = $1`,
		it.ID, it.Name, it.Code, it.Strength, it.Unit, it.Price, it.Stock, it.Exams, it.Notes, it.Active,
	)
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM catalog_items WHERE id = $1`, id)
	return err
}

func (r *repoPG) ListByKind(ctx context.Context, kind, query string, limit, offset int) ([]*Item, int, error) {
	where := `WHERE kind = $1`
	args := []interface{}{kind}
	if query != "" {
		where += ` AND (name ILIKE $2 OR code ILIKE $2)`
		args = append(args, "%"+query+"%")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM catalog_items `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	dataArgs := append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+itemCols+` FROM catalog_items `+where+
			` ORDER BY name LIMIT $`+strconv.Itoa(len(args)+1)+` OFFSET $`+strconv.Itoa(len(args)+2), dataArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.Kind, &it.Name, &it.Code, &it.Strength, &it.Unit,
			&it.Price, &it.Stock, &it.Exams, &it.Notes, &it.Active, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, &it)
	}
	return out, total, nil
}

func (r *repoPG) AdjustStock(ctx context.Context, id uuid.UUID, delta int) (*Item, error) {
	return scanItem(r.conn(ctx).QueryRow(ctx, `
		UPDATE catalog_items SET stock = COALESCE(stock, 0) + $2, updated_at=NOW()
		WHERE id = $1
		RETURNING `+itemCols, id, delta))
}

func scanItem(row pgx.Row) (*Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.Kind, &it.Name, &it.Code, &it.Strength, &it.Unit,
		&it.Price, &it.Stock, &it.Exams, &it.Notes, &it.Active, &it.CreatedAt, &it.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}
