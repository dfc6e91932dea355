package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleColumns = []string{"ghost_id", "idx", "x", "y", "flux"}

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "ghost_samples", sampleColumns, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"ghost_samples"}, sampleColumns).WillReturnResult(2)

	rows := [][]any{{"g1", 0, 1.5, -2.0, 0.1}, {"g1", 1, 1.6, -2.1, 0.2}}
	n, err := CopyFrom(context.Background(), mock, "ghost_samples", sampleColumns, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_ShortCopy(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"ghost_samples"}, sampleColumns).WillReturnResult(1)

	rows := [][]any{{"g1", 0, 1.5, -2.0, 0.1}, {"g1", 1, 1.6, -2.1, 0.2}}
	_, err = CopyFrom(context.Background(), mock, "ghost_samples", sampleColumns, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "copied 1 of 2 rows")
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"ghost_samples"}, sampleColumns).WillReturnError(fmt.Errorf("copy failed"))

	_, err = CopyFrom(context.Background(), mock, "ghost_samples", sampleColumns, [][]any{{"g1", 0, 0.0, 0.0, 1.0}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO ghost_samples")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_Commit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectCopyFrom(pgx.Identifier{"ghost_samples"}, sampleColumns).WillReturnResult(1)
	mock.ExpectCommit()

	err = WithTx(context.Background(), mock, func(ctx context.Context, tx pgx.Tx) error {
		_, err := CopyFrom(ctx, tx, "ghost_samples", sampleColumns, [][]any{{"g1", 0, 0.0, 0.0, 1.0}})
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RollbackOnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	err = WithTx(context.Background(), mock, func(context.Context, pgx.Tx) error {
		return fmt.Errorf("boom")
	})
	require.EqualError(t, err, "boom")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_BeginError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin().WillReturnError(fmt.Errorf("no connections"))

	err = WithTx(context.Background(), mock, func(context.Context, pgx.Tx) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db: begin tx")
}
