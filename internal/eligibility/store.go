package eligibility

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store persists eligibility leads.
type Store interface {
	Create(ctx context.Context, lead *Lead) error
	Get(ctx context.Context, id int64) (*Lead, error)
	List(ctx context.Context) ([]Lead, error)
	Update(ctx context.Context, lead *Lead) error
	SoftDelete(ctx context.Context, id int64) error
}

const selectColumns = `id, household, citizenship, requirement, household_income, ownership_status,
	private_property_ownership, first_time_applicant, name, email, phone_number,
	verified_at, send_discord, created_at, updated_at, deleted_at`

// PostgresStore is a Store over sqlx and lib/pq.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an open sqlx handle.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	if db == nil {
		panic("eligibility: sqlx db required")
	}
	return &PostgresStore{db: db}
}

// Create inserts lead and fills its id and timestamps.
func (s *PostgresStore) Create(ctx context.Context, lead *Lead) error {
	query, args, err := sqlx.Named(`
		INSERT INTO eligibility_leads (
			household, citizenship, requirement, household_income, ownership_status,
			private_property_ownership, first_time_applicant, name, email, phone_number,
			verified_at, send_discord
		) VALUES (
			:household, :citizenship, :requirement, :household_income, :ownership_status,
			:private_property_ownership, :first_time_applicant, :name, :email, :phone_number,
			:verified_at, :send_discord
		)
		RETURNING id, created_at, updated_at
	`, lead)
	if err != nil {
		return persistence("bind insert", err)
	}
	row := s.db.QueryRowxContext(ctx, s.db.Rebind(query), args...)
	if err := row.Scan(&lead.ID, &lead.CreatedAt, &lead.UpdatedAt); err != nil {
		return persistence("insert", err)
	}
	return nil
}

// Get returns a lead that has not been soft deleted.
func (s *PostgresStore) Get(ctx context.Context, id int64) (*Lead, error) {
	var lead Lead
	err := s.db.GetContext(ctx, &lead, `SELECT `+selectColumns+` FROM eligibility_leads WHERE id = $1 AND deleted_at IS NULL`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, persistence("select", err)
	}
	return &lead, nil
}

// List returns live leads, newest first.
func (s *PostgresStore) List(ctx context.Context) ([]Lead, error) {
	leads := []Lead{}
	err := s.db.SelectContext(ctx, &leads, `SELECT `+selectColumns+` FROM eligibility_leads WHERE deleted_at IS NULL ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, persistence("list", err)
	}
	return leads, nil
}

// Update writes every mutable column of lead.
func (s *PostgresStore) Update(ctx context.Context, lead *Lead) error {
	query, args, err := sqlx.Named(`
		UPDATE eligibility_leads SET
			household = :household,
			citizenship = :citizenship,
			requirement = :requirement,
			household_income = :household_income,
			ownership_status = :ownership_status,
			private_property_ownership = :private_property_ownership,
			first_time_applicant = :first_time_applicant,
			name = :name,
			email = :email,
			phone_number = :phone_number,
			verified_at = :verified_at,
			send_discord = :send_discord,
			updated_at = now()
		WHERE id = :id AND deleted_at IS NULL
		RETURNING updated_at
	`, lead)
	if err != nil {
		return persistence("bind update", err)
	}
	err = s.db.QueryRowxContext(ctx, s.db.Rebind(query), args...).Scan(&lead.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return persistence("update", err)
	}
	return nil
}

// SoftDelete tombstones the lead.
func (s *PostgresStore) SoftDelete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE eligibility_leads SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return persistence("soft delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return persistence("soft delete", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// MemoryStore is a Store kept in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	leads  map[int64]*Lead
	now    func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		leads: make(map[int64]*Lead),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Create(ctx context.Context, lead *Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	now := s.now()
	lead.ID = s.nextID
	lead.CreatedAt = now
	lead.UpdatedAt = now
	stored := *lead
	s.leads[lead.ID] = &stored
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id int64) (*Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lead, ok := s.leads[id]
	if !ok || lead.DeletedAt != nil {
		return nil, ErrNotFound
	}
	out := *lead
	return &out, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]Lead, error) {
	s.mu.RLock()
	leads := make([]Lead, 0, len(s.leads))
	for _, lead := range s.leads {
		if lead.DeletedAt == nil {
			leads = append(leads, *lead)
		}
	}
	s.mu.RUnlock()
	sort.Slice(leads, func(i, j int) bool { return leads[i].ID > leads[j].ID })
	return leads, nil
}

func (s *MemoryStore) Update(ctx context.Context, lead *Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.leads[lead.ID]
	if !ok || current.DeletedAt != nil {
		return ErrNotFound
	}
	lead.CreatedAt = current.CreatedAt
	lead.UpdatedAt = s.now()
	stored := *lead
	s.leads[lead.ID] = &stored
	return nil
}

func (s *MemoryStore) SoftDelete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead, ok := s.leads[id]
	if !ok || lead.DeletedAt != nil {
		return ErrNotFound
	}
	now := s.now()
	lead.DeletedAt = &now
	lead.UpdatedAt = now
	return nil
}
