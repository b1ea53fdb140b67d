package eligibility

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var leadColumns = []string{
	"id", "household", "citizenship", "requirement", "household_income", "ownership_status",
	"private_property_ownership", "first_time_applicant", "name", "email", "phone_number",
	"verified_at", "send_discord", "created_at", "updated_at", "deleted_at",
}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(sqlx.NewDb(db, "postgres")), mock
}

func sampleLead() *Lead {
	return &Lead{
		Answers: qualifying(),
		Contact: Contact{Name: "Tan", Email: "tan@x.test", PhoneNumber: "91234567"},
	}
}

func TestPostgresStoreCreate(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2025, 5, 1, 7, 0, 0, 0, time.UTC)
	lead := sampleLead()

	mock.ExpectQuery(`INSERT INTO eligibility_leads`).
		WithArgs(
			lead.Household, lead.Citizenship, lead.Requirement, lead.HouseholdIncome, lead.OwnershipStatus,
			lead.PrivatePropertyOwnership, lead.FirstTimeApplicant, "Tan", "tan@x.test", "91234567",
			nil, false,
		).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(7), now, now))

	require.NoError(t, store.Create(context.Background(), lead))
	assert.Equal(t, int64(7), lead.ID)
	assert.Equal(t, now, lead.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreCreateFailure(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`INSERT INTO eligibility_leads`).WillReturnError(errors.New("connection reset"))

	err := store.Create(context.Background(), sampleLead())
	assert.True(t, errors.Is(err, ErrPersistence))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreGet(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	a := qualifying()

	mock.ExpectQuery(`FROM eligibility_leads WHERE id = \$1 AND deleted_at IS NULL`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(leadColumns).AddRow(
			int64(3), a.Household, a.Citizenship, a.Requirement, a.HouseholdIncome, a.OwnershipStatus,
			a.PrivatePropertyOwnership, a.FirstTimeApplicant, "Tan", "tan@x.test", "91234567",
			nil, true, now, now, nil,
		))

	lead, err := store.Get(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), lead.ID)
	assert.Equal(t, OwnershipMOPCompleted, lead.OwnershipStatus)
	assert.Equal(t, "tan@x.test", lead.Email)
	assert.Nil(t, lead.VerifiedAt)
	assert.True(t, lead.SendDiscord)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreGetNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`FROM eligibility_leads`).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows(leadColumns))

	_, err := store.Get(context.Background(), 9)
	assert.True(t, errors.Is(err, ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreList(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	a := qualifying()
	mock.ExpectQuery(`FROM eligibility_leads WHERE deleted_at IS NULL ORDER BY created_at DESC`).
		WillReturnRows(sqlmock.NewRows(leadColumns).
			AddRow(int64(2), a.Household, a.Citizenship, a.Requirement, a.HouseholdIncome, a.OwnershipStatus,
				a.PrivatePropertyOwnership, a.FirstTimeApplicant, "B", "b@x.test", "2", now, false, now, now, nil).
			AddRow(int64(1), a.Household, a.Citizenship, a.Requirement, a.HouseholdIncome, a.OwnershipStatus,
				a.PrivatePropertyOwnership, a.FirstTimeApplicant, "A", "a@x.test", "1", nil, false, now, now, nil))

	leads, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Equal(t, int64(2), leads[0].ID)
	require.NotNil(t, leads[0].VerifiedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreUpdate(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	lead := sampleLead()
	lead.ID = 4

	mock.ExpectQuery(`UPDATE eligibility_leads SET`).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now))
	require.NoError(t, store.Update(context.Background(), lead))
	assert.Equal(t, now, lead.UpdatedAt)

	mock.ExpectQuery(`UPDATE eligibility_leads SET`).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}))
	assert.True(t, errors.Is(store.Update(context.Background(), lead), ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreSoftDelete(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE eligibility_leads SET deleted_at = now\(\)`).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.SoftDelete(context.Background(), 5))

	mock.ExpectExec(`UPDATE eligibility_leads SET deleted_at = now\(\)`).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.True(t, errors.Is(store.SoftDelete(context.Background(), 5), ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryStoreSoftDeleteHidesLead(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	lead := sampleLead()
	require.NoError(t, store.Create(ctx, lead))

	require.NoError(t, store.SoftDelete(ctx, lead.ID))
	_, err := store.Get(ctx, lead.ID)
	assert.True(t, errors.Is(err, ErrNotFound))

	leads, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, leads)
	assert.True(t, errors.Is(store.SoftDelete(ctx, lead.ID), ErrNotFound))
}
