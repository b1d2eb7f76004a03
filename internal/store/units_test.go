package store

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/studyplan/internal/types"
)

var unitColumns = []string{"id", "round_id", "tenant_id", "number", "unit_type", "subject", "topic", "instructions", "filter_set", "match_count"}

func TestTxCreatesUnit(t *testing.T) {
	s, mock := newMockStore(t, DialectMySQL)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO rounds (id, tenant_id, number, title)")).
		WithArgs("id-1", "tenant-b", 3, "Round 3").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO study_units").
		WithArgs("id-2", "id-1", "tenant-b", "07", "reading", "Português", "Crase", "Read chapter 2", 0).
		WillReturnResult(sqlmock.NewResult(1, 1))
	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO unit_nodes (unit_id, node_id, position)"))
	prep.ExpectExec().WithArgs("id-2", "n1", 0).WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WithArgs("id-2", "n2", 1).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE study_units SET filter_set = ?, match_count = ?")).
		WithArgs(`{"subjects":["PORT"],"years":[2020,2021]}`, int64(120), "id-2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)

	roundID, err := tx.CreateRound(ctx, "tenant-b", types.RoundSpec{Number: 3, Title: "Round 3"})
	require.NoError(t, err)
	assert.Equal(t, "id-1", roundID)

	unitID, err := tx.CreateUnit(ctx, "tenant-b", roundID, types.UnitSpec{
		Number: "07", Type: "reading", Subject: "Português", Topic: "Crase", Instructions: "Read chapter 2",
	})
	require.NoError(t, err)
	assert.Equal(t, "id-2", unitID)

	require.NoError(t, tx.BindTaxonomyNodes(ctx, unitID, []string{"n1", "n2"}))
	require.NoError(t, tx.SetFilterSet(ctx, unitID,
		&types.FilterSet{Subjects: []string{"PORT"}, Years: []int{2021, 2020}}, 120))
	require.NoError(t, tx.Commit())

	// rollback after commit is harmless
	assert.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxBindNothing(t *testing.T) {
	s, mock := newMockStore(t, DialectMySQL)
	mock.ExpectBegin()
	mock.ExpectRollback()

	tx, err := s.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.BindTaxonomyNodes(context.Background(), "u", nil))
	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxRoundExists(t *testing.T) {
	tests := []struct {
		name     string
		count    int
		notFound bool
	}{
		{name: "exists", count: 1},
		{name: "missing", count: 0, notFound: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStore(t, DialectMySQL)
			mock.ExpectBegin()
			mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM rounds WHERE id = ? AND tenant_id = ?")).
				WithArgs("round-1", "tenant-b").
				WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(tt.count))

			tx, err := s.Begin(context.Background())
			require.NoError(t, err)

			err = tx.RoundExists(context.Background(), "tenant-b", "round-1")
			if tt.notFound {
				assert.ErrorIs(t, err, types.ErrNotFound)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestTxCreateRoundError(t *testing.T) {
	s, mock := newMockStore(t, DialectMySQL)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO rounds").WillReturnError(errors.New("duplicate entry"))
	mock.ExpectRollback()

	tx, err := s.Begin(context.Background())
	require.NoError(t, err)
	_, err = tx.CreateRound(context.Background(), "tenant-b", types.RoundSpec{Number: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create round 1")
	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBeginError(t *testing.T) {
	s, mock := newMockStore(t, DialectMySQL)
	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	_, err := s.Begin(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to begin transaction")
}

func TestLoadUnit(t *testing.T) {
	s, mock := newMockStore(t, DialectMySQL)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, round_id, tenant_id, number, unit_type")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(unitColumns).
			AddRow("u1", "r1", "tenant-a", "01", "questions", "Português", "", nil, `{"subjects":["PORT"],"boards":["FGV"]}`, 88))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT node_id FROM unit_nodes WHERE unit_id = ? ORDER BY position")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"node_id"}).AddRow("n2").AddRow("n1"))

	u, err := s.LoadUnit(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "r1", u.RoundID)
	assert.Equal(t, "questions", u.Spec.Type)
	assert.Equal(t, "", u.Spec.Instructions)
	assert.Equal(t, int64(88), u.MatchCount)
	assert.Equal(t, []string{"FGV"}, u.Filters.Boards)
	assert.Equal(t, []string{"n2", "n1"}, u.NodeIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadUnitWithoutFilters(t *testing.T) {
	s, mock := newMockStore(t, DialectSQLite)

	mock.ExpectQuery("SELECT id, round_id").WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(unitColumns).
			AddRow("u1", "r1", "tenant-a", "01", "questions", "", "", "notes", nil, 0))
	mock.ExpectQuery("SELECT node_id").WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"node_id"}))

	u, err := s.LoadUnit(context.Background(), "u1")
	require.NoError(t, err)
	assert.Nil(t, u.Filters)
	assert.Empty(t, u.NodeIDs)
	assert.Equal(t, "notes", u.Spec.Instructions)
}

func TestLoadUnitNotFound(t *testing.T) {
	s, mock := newMockStore(t, DialectMySQL)
	mock.ExpectQuery("SELECT id, round_id").WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(unitColumns))

	_, err := s.LoadUnit(context.Background(), "ghost")
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordAndListOutcomes(t *testing.T) {
	s, mock := newMockStore(t, DialectMySQL)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO replication_log").
		WithArgs("batch-1", 0, "tenant-b", OutcomeSuccess, "u9", `["Crase"]`, "").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO replication_log").
		WithArgs("batch-1", 1, "tenant-c", OutcomeFailure, "", nil, "create round: duplicate").
		WillReturnResult(sqlmock.NewResult(2, 1))

	require.NoError(t, s.RecordOutcome(ctx, Outcome{
		BatchID: "batch-1", TargetIndex: 0, TenantID: "tenant-b", Status: OutcomeSuccess,
		UnitID: "u9", Unmatched: []string{"Crase"},
	}))
	require.NoError(t, s.RecordOutcome(ctx, Outcome{
		BatchID: "batch-1", TargetIndex: 1, TenantID: "tenant-c", Status: OutcomeFailure,
		Reason: "create round: duplicate",
	}))

	mock.ExpectQuery("SELECT target_index, tenant_id, status").WithArgs("batch-1").
		WillReturnRows(sqlmock.NewRows([]string{"target_index", "tenant_id", "status", "unit_id", "unmatched", "reason"}).
			AddRow(0, "tenant-b", OutcomeSuccess, "u9", `["Crase"]`, "").
			AddRow(1, "tenant-c", OutcomeFailure, "", nil, "create round: duplicate"))

	outcomes, err := s.ListOutcomes(ctx, "batch-1")
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, []string{"Crase"}, outcomes[0].Unmatched)
	assert.Equal(t, "create round: duplicate", outcomes[1].Reason)
	assert.Nil(t, outcomes[1].Unmatched)
	assert.NoError(t, mock.ExpectationsWereMet())
}
