package leads

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of pgxpool.Pool used by the store.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores leads and their details in Postgres.
type PostgresRepository struct {
	pool PgxPool
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool PgxPool) *PostgresRepository {
	if pool == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

const leadColumns = `id::text, form_type, source_url, ip, name, phone_number, email, is_verified, is_sent, created_at, updated_at`

// CreateIfAbsent inserts the lead and its details in one transaction. The
// unique phone_number index settles concurrent submissions: the loser sees no
// returned row and resolves to the winner's id.
func (r *PostgresRepository) CreateIfAbsent(ctx context.Context, fields Fields, extra ExtraFields) (string, bool, error) {
	existing, err := r.idByPhone(ctx, r.pool, fields.PhoneNumber)
	if err != nil {
		return "", false, persistence("lookup phone", err)
	}
	if existing != "" {
		return existing, false, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", false, persistence("begin", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var id string
	err = tx.QueryRow(ctx, `
		INSERT INTO leads (id, form_type, source_url, ip, name, phone_number, email)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (phone_number) DO NOTHING
		RETURNING id::text
	`,
		uuid.New(),
		fields.FormType,
		fields.SourceURL,
		fields.IP,
		fields.Name,
		fields.PhoneNumber,
		fields.Email,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		winner, lookupErr := r.idByPhone(ctx, tx, fields.PhoneNumber)
		if lookupErr != nil {
			return "", false, persistence("lookup phone after conflict", lookupErr)
		}
		if winner == "" {
			return "", false, persistence("insert lead", errors.New("conflicting lead vanished"))
		}
		return winner, false, nil
	}
	if err != nil {
		return "", false, persistence("insert lead", err)
	}

	for i, f := range extra.Storable() {
		if _, err := tx.Exec(ctx, `
			INSERT INTO lead_details (lead_id, position, lead_form_key, lead_form_value)
			VALUES ($1, $2, $3, $4)
		`, id, i, f.Key, f.Value); err != nil {
			return "", false, persistence(fmt.Sprintf("insert detail %q", f.Key), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", false, persistence("commit", err)
	}
	return id, true, nil
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *PostgresRepository) idByPhone(ctx context.Context, q rowQuerier, phone string) (string, error) {
	var id string
	err := q.QueryRow(ctx, `SELECT id::text FROM leads WHERE phone_number = $1`, phone).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// FetchWithDetails loads the lead and merges its details in stored order.
func (r *PostgresRepository) FetchWithDetails(ctx context.Context, id string) (LeadView, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrLeadNotFound
	}

	lead, err := scanLead(r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrLeadNotFound
	}
	if err != nil {
		return nil, persistence("select lead", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT lead_form_key, lead_form_value
		FROM lead_details
		WHERE lead_id = $1
		ORDER BY position, id
	`, id)
	if err != nil {
		return nil, persistence("select details", err)
	}
	defer rows.Close()

	var details ExtraFields
	for rows.Next() {
		var f Field
		if err := rows.Scan(&f.Key, &f.Value); err != nil {
			return nil, persistence("scan detail", err)
		}
		details = append(details, f)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("iterate details", err)
	}
	return NewView(lead, details), nil
}

// List returns leads newest first. A zero limit returns every lead.
func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]Lead, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		ORDER BY created_at DESC, id DESC
		LIMIT NULLIF($1::int, 0) OFFSET $2
	`, filter.Limit, filter.Offset)
	if err != nil {
		return nil, persistence("list leads", err)
	}
	defer rows.Close()

	out := []Lead{}
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, persistence("scan lead", err)
		}
		out = append(out, *lead)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("iterate leads", err)
	}
	return out, nil
}

// MarkSent flags the lead as delivered to the CRM webhook.
func (r *PostgresRepository) MarkSent(ctx context.Context, id string) error {
	return r.setFlag(ctx, "mark sent", `UPDATE leads SET is_sent = true, updated_at = now() WHERE id = $1`, id)
}

// MarkVerified flags the lead as channel verified.
func (r *PostgresRepository) MarkVerified(ctx context.Context, id string) error {
	return r.setFlag(ctx, "mark verified", `UPDATE leads SET is_verified = true, updated_at = now() WHERE id = $1`, id)
}

func (r *PostgresRepository) setFlag(ctx context.Context, op, query, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrLeadNotFound
	}
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return persistence(op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeadNotFound
	}
	return nil
}

func scanLead(row pgx.Row) (*Lead, error) {
	var lead Lead
	if err := row.Scan(
		&lead.ID,
		&lead.FormType,
		&lead.SourceURL,
		&lead.IP,
		&lead.Name,
		&lead.PhoneNumber,
		&lead.Email,
		&lead.IsVerified,
		&lead.IsSent,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &lead, nil
}
