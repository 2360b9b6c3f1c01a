package reconciler_test

import (
	"context"
	"testing"

	"salesconsumer/internal/codec"
	"salesconsumer/internal/domain"
	"salesconsumer/internal/infrastructure/database/dbtest"
	"salesconsumer/internal/reconciler"
	"salesconsumer/internal/repository/opportunity_repo"
	"salesconsumer/internal/repository/project_repo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func parse(t *testing.T, raw string) codec.Record {
	t.Helper()
	rec, err := codec.Parse([]byte(raw))
	require.NoError(t, err)
	return rec
}

func TestOpportunityReconciler_InsertThenUpdate(t *testing.T) {
	db := dbtest.NewSQLite(t)
	repo := opportunity_repo.NewOpportunityRepository(db.Driver)
	r := reconciler.NewOpportunityReconciler(repo, zaptest.NewLogger(t))
	ctx := context.Background()

	assert.Equal(t, domain.ObjectTypeOpportunity, r.ObjectType())

	outcome, err := r.Reconcile(ctx, db, parse(t, `{"object_type":"Opportunity","event_id":"E1","name":"A","stage":"open"}`))
	require.NoError(t, err)
	assert.Equal(t, reconciler.OutcomeInserted, outcome)

	outcome, err = r.Reconcile(ctx, db, parse(t, `{"object_type":"Opportunity","event_id":"E1","name":"B"}`))
	require.NoError(t, err)
	assert.Equal(t, reconciler.OutcomeUpdated, outcome)

	list, err := repo.ListTx(ctx, db, 0, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "B", *list[0].Name)
	assert.Nil(t, list[0].Stage)
}

func TestProjectReconciler_Idempotent(t *testing.T) {
	db := dbtest.NewSQLite(t)
	repo := project_repo.NewProjectRepository(db.Driver)
	r := reconciler.NewProjectReconciler(repo, zaptest.NewLogger(t))
	ctx := context.Background()

	msg := `{"object_type":"Project","event_id":"P1","name":"Build","is_active":false,"budget":10}`
	for i := 0; i < 3; i++ {
		_, err := r.Reconcile(ctx, db, parse(t, msg))
		require.NoError(t, err)
	}

	list, err := repo.ListTx(ctx, db, 0, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "P1", list[0].EventID)
	assert.False(t, list[0].IsActive)
	assert.InDelta(t, 10.0, *list[0].Budget, 0.0001)
}

func TestProjectReconciler_LegacyMessageWithoutEventID(t *testing.T) {
	db := dbtest.NewSQLite(t)
	repo := project_repo.NewProjectRepository(db.Driver)
	r := reconciler.NewProjectReconciler(repo, zaptest.NewLogger(t))
	ctx := context.Background()

	msg := `{"object_type":"Project","name":"Legacy"}`
	outcome, err := r.Reconcile(ctx, db, parse(t, msg))
	require.NoError(t, err)
	assert.Equal(t, reconciler.OutcomeInserted, outcome)

	outcome, err = r.Reconcile(ctx, db, parse(t, msg))
	require.NoError(t, err)
	assert.Equal(t, reconciler.OutcomeUpdated, outcome)
}

func TestReconciler_InvalidFieldWritesNothing(t *testing.T) {
	db := dbtest.NewSQLite(t)
	repo := opportunity_repo.NewOpportunityRepository(db.Driver)
	r := reconciler.NewOpportunityReconciler(repo, zaptest.NewLogger(t))
	ctx := context.Background()

	_, err := r.Reconcile(ctx, db, parse(t, `{"object_type":"Opportunity","event_id":"E1","amount":"abc"}`))
	require.ErrorIs(t, err, domain.ErrInvalidField)

	_, found, err := repo.FindByEventIDTx(ctx, db, "E1")
	require.NoError(t, err)
	assert.False(t, found)
}
