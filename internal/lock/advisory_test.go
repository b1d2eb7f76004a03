package lock

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	getLockQuery     = regexp.QuoteMeta("SELECT GET_LOCK(?, ?)")
	releaseLockQuery = regexp.QuoteMeta("SELECT RELEASE_LOCK(?)")
)

func TestAcquireAndRelease(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(getLockQuery).WithArgs("studyplan:replicate:u1", 1).
		WillReturnRows(sqlmock.NewRows([]string{"r"}).AddRow(1))
	mock.ExpectQuery(releaseLockQuery).WithArgs("studyplan:replicate:u1").
		WillReturnRows(sqlmock.NewRows([]string{"r"}).AddRow(1))

	l := NewReplicationLock(db, "u1")
	acquired, err := l.AcquireLock(context.Background(), TimeoutShort)
	require.NoError(t, err)
	assert.True(t, acquired)
	assert.True(t, l.IsHeld())

	// re-acquiring a held lock does not query again
	acquired, err = l.AcquireLock(context.Background(), TimeoutShort)
	require.NoError(t, err)
	assert.True(t, acquired)

	released, err := l.ReleaseLock(context.Background())
	require.NoError(t, err)
	assert.True(t, released)
	assert.False(t, l.IsHeld())

	released, err = l.ReleaseLock(context.Background())
	require.NoError(t, err)
	assert.False(t, released)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireLockResults(t *testing.T) {
	tests := []struct {
		name      string
		value     interface{}
		queryErr  error
		acquired  bool
		expectErr bool
		errMsg    string
	}{
		{name: "obtained", value: 1, acquired: true},
		{name: "timeout", value: 0, acquired: false},
		{name: "null", value: nil, expectErr: true, errMsg: "GET_LOCK returned NULL"},
		{name: "unexpected", value: 7, expectErr: true, errMsg: "unexpected GET_LOCK return value"},
		{name: "query error", queryErr: errors.New("server gone"), expectErr: true, errMsg: "failed to execute GET_LOCK"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			q := mock.ExpectQuery(getLockQuery).WithArgs("name", 0)
			if tt.queryErr != nil {
				q.WillReturnError(tt.queryErr)
			} else {
				q.WillReturnRows(sqlmock.NewRows([]string{"r"}).AddRow(tt.value))
			}

			l := NewAdvisoryLock(db, "name")
			acquired, err := l.AcquireLock(context.Background(), TimeoutImmediate)
			if tt.expectErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				assert.False(t, l.IsHeld())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.acquired, acquired)
			assert.Equal(t, tt.acquired, l.IsHeld())
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestReleaseLockNull(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(getLockQuery).WillReturnRows(sqlmock.NewRows([]string{"r"}).AddRow(1))
	mock.ExpectQuery(releaseLockQuery).WillReturnRows(sqlmock.NewRows([]string{"r"}).AddRow(nil))

	l := NewAdvisoryLock(db, "name")
	_, err = l.AcquireLock(context.Background(), TimeoutShort)
	require.NoError(t, err)

	_, err = l.ReleaseLock(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lock did not exist")
	assert.False(t, l.IsHeld())
}

func TestAcquireOrFail(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(getLockQuery).WillReturnRows(sqlmock.NewRows([]string{"r"}).AddRow(0))

	err = NewAdvisoryLock(db, "busy").AcquireOrFail(context.Background(), TimeoutShort)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLockTimeout))
	assert.Contains(t, err.Error(), `"busy"`)
}

func TestWithReplicationLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(getLockQuery).WithArgs("studyplan:replicate:unit-7", 5).
		WillReturnRows(sqlmock.NewRows([]string{"r"}).AddRow(1))
	mock.ExpectQuery(releaseLockQuery).WithArgs("studyplan:replicate:unit-7").
		WillReturnRows(sqlmock.NewRows([]string{"r"}).AddRow(1))

	ran := false
	fnErr := errors.New("replication failed")
	err = WithReplicationLock(context.Background(), db, "unit-7", 5, func() error {
		ran = true
		return fnErr
	})
	assert.True(t, ran)
	assert.ErrorIs(t, err, fnErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithReplicationLockSingleConnectionPool(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)

	ran := false
	err = WithReplicationLock(context.Background(), db, "unit-7", 5, func() error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, ErrPoolTooSmall)
	assert.False(t, ran)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithLockNotAcquired(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(getLockQuery).WillReturnRows(sqlmock.NewRows([]string{"r"}).AddRow(0))

	ran := false
	err = NewAdvisoryLock(db, "busy").WithLock(context.Background(), TimeoutShort, func() error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.False(t, ran)
}

func TestGenerateReplicationLockName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{input: "unit-1", expected: "studyplan:replicate:unit-1"},
		{input: "a b;c", expected: "studyplan:replicate:a_b_c"},
		{input: "", expected: "studyplan:replicate:"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, GenerateReplicationLockName(tt.input))
		})
	}

	long := GenerateReplicationLockName(strings.Repeat("x", 100))
	assert.Len(t, long, 64)
}
