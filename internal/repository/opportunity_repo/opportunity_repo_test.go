package opportunity_repo_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"salesconsumer/internal/domain"
	"salesconsumer/internal/infrastructure/database/dbtest"
	"salesconsumer/internal/repository/opportunity_repo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func newOpportunity(eventID string) *domain.Opportunity {
	closeDate := time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC)
	return &domain.Opportunity{
		Audit: domain.Audit{
			EventID:  eventID,
			Metadata: json.RawMessage(`{"region":"emea","tags":["a","b"]}`),
		},
		Name:              ptr("Acme renewal"),
		Stage:             ptr("negotiation"),
		Amount:            ptr(50000.0),
		Probability:       ptr(0.75),
		ExpectedCloseDate: &closeDate,
		AccountID:         ptr("acc-9"),
	}
}

func TestOpportunityRepository_RoundTrip(t *testing.T) {
	db := dbtest.NewSQLite(t)
	repo := opportunity_repo.NewOpportunityRepository(db.Driver)
	ctx := context.Background()

	o := newOpportunity("evt-1")
	require.NoError(t, repo.InsertTx(ctx, db, o))

	got, found, err := repo.FindByEventIDTx(ctx, db, "evt-1")
	require.NoError(t, err)
	require.True(t, found)

	assert.Equal(t, o.ID, got.ID)
	assert.Equal(t, "Acme renewal", *got.Name)
	assert.Equal(t, "negotiation", *got.Stage)
	assert.InDelta(t, 50000.0, *got.Amount, 0.0001)
	assert.InDelta(t, 0.75, *got.Probability, 0.0001)
	require.NotNil(t, got.ExpectedCloseDate)
	assert.Equal(t, "2024-12-31", got.ExpectedCloseDate.Format(time.DateOnly))
	assert.Equal(t, "acc-9", *got.AccountID)
	assert.Nil(t, got.OwnerID)
	assert.JSONEq(t, `{"region":"emea","tags":["a","b"]}`, string(got.Metadata))
	assert.WithinDuration(t, o.CreatedAt, got.CreatedAt, time.Second)
}

func TestOpportunityRepository_UpdateInPlace(t *testing.T) {
	db := dbtest.NewSQLite(t)
	repo := opportunity_repo.NewOpportunityRepository(db.Driver)
	ctx := context.Background()

	o := newOpportunity("evt-1")
	require.NoError(t, repo.InsertTx(ctx, db, o))

	o.Apply(domain.OpportunityFields{EventID: "evt-1", Stage: ptr("closed_won"), Amount: ptr(61000.0)})
	require.NoError(t, repo.UpdateTx(ctx, db, o))

	list, err := repo.ListTx(ctx, db, 0, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	got := list[0]
	assert.Equal(t, o.ID, got.ID)
	assert.Equal(t, "closed_won", *got.Stage)
	assert.InDelta(t, 61000.0, *got.Amount, 0.0001)
	assert.Nil(t, got.Name)
	assert.Nil(t, got.ExpectedCloseDate)
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))
}

func TestOpportunityRepository_Errors(t *testing.T) {
	db := dbtest.NewSQLite(t)
	repo := opportunity_repo.NewOpportunityRepository(db.Driver)
	ctx := context.Background()

	require.NoError(t, repo.InsertTx(ctx, db, newOpportunity("evt-1")))
	assert.ErrorIs(t, repo.InsertTx(ctx, db, newOpportunity("evt-1")), domain.ErrDuplicateEventID)

	_, err := repo.GetByIDTx(ctx, db, "missing")
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
	assert.ErrorIs(t, repo.SoftDeleteTx(ctx, db, "missing"), domain.ErrRecordNotFound)
}
