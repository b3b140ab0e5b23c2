package customers

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository persists customers.
type Repository interface {
	Create(ctx context.Context, input Input) (*Customer, error)
	Get(ctx context.Context, id int64) (*Customer, error)
	List(ctx context.Context, filter ListFilter, page shared.Pagination) ([]Customer, int, error)
	Update(ctx context.Context, id int64, input Input) (*Customer, error)
	SoftDelete(ctx context.Context, id int64) error
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

const customerColumns = `id, name, email, phone, company, address, city, country, notes, created_at, updated_at, deleted_at`

func (r *pgRepository) Create(ctx context.Context, input Input) (*Customer, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO customers (name, email, phone, company, address, city, country, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING %s`, customerColumns),
		input.Name, input.Email, input.Phone, input.Company,
		input.Address, input.City, input.Country, input.Notes)
	c, err := scanCustomer(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("email %q: %w", input.Email, shared.ErrAlreadyExists)
		}
		return nil, err
	}
	return c, nil
}

func (r *pgRepository) Get(ctx context.Context, id int64) (*Customer, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s FROM customers WHERE id = $1 AND deleted_at IS NULL`, customerColumns), id)
	c, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("customer %d: %w", id, shared.ErrNotFound)
		}
		return nil, err
	}
	return c, nil
}

func (r *pgRepository) List(ctx context.Context, filter ListFilter, page shared.Pagination) ([]Customer, int, error) {
	where := "WHERE deleted_at IS NULL"
	args := []any{}
	if filter.Search != "" {
		where += " AND (name ILIKE $1 OR email ILIKE $1 OR company ILIKE $1)"
		args = append(args, "%"+filter.Search+"%")
	}

	var total int
	if err := r.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM customers %s", where), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT %s FROM customers %s
		ORDER BY name ASC LIMIT $%d OFFSET $%d`, customerColumns, where, len(args)+1, len(args)+2)
	args = append(args, page.Limit, page.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

func (r *pgRepository) Update(ctx context.Context, id int64, input Input) (*Customer, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`
		UPDATE customers SET name = $1, email = $2, phone = $3, company = $4,
			address = $5, city = $6, country = $7, notes = $8, updated_at = NOW()
		WHERE id = $9 AND deleted_at IS NULL
		RETURNING %s`, customerColumns),
		input.Name, input.Email, input.Phone, input.Company,
		input.Address, input.City, input.Country, input.Notes, id)
	c, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("customer %d: %w", id, shared.ErrNotFound)
		}
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("email %q: %w", input.Email, shared.ErrAlreadyExists)
		}
		return nil, err
	}
	return c, nil
}

func (r *pgRepository) SoftDelete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE customers SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("customer %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row rowScanner) (*Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Company,
		&c.Address, &c.City, &c.Country, &c.Notes,
		&c.CreatedAt, &c.UpdatedAt, &c.DeletedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
