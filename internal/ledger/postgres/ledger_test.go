package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/linkmill/linkmill/internal/pipeline"
)

func TestLedgerAppendInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	l, err := NewWithPool(mock, "completed_links")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO completed_links").
		WithArgs("https://example.com/a", "item-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = l.Append(context.Background(), pipeline.Link{URI: "https://example.com/a", ID: "item-1"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerLoadReturnsSet(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	l, err := NewWithPool(mock, "")
	require.NoError(t, err)

	rows := pgxmock.NewRows([]string{"uri"}).
		AddRow("https://example.com/a").
		AddRow("https://example.com/b")
	mock.ExpectQuery("SELECT uri FROM completed_links").WillReturnRows(rows)

	completed, err := l.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, completed, 2)
	require.Contains(t, completed, "https://example.com/a")
	require.Contains(t, completed, "https://example.com/b")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerLoadQueryError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	l, err := NewWithPool(mock, "completed_links")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT uri FROM completed_links").
		WillReturnError(errors.New("connection refused"))

	_, err = l.Load(context.Background())
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerDiscardDeletesRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	l, err := NewWithPool(mock, "completed_links")
	require.NoError(t, err)

	mock.ExpectExec("DELETE FROM completed_links").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	require.NoError(t, l.Discard(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerExistsProbe(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	l, err := NewWithPool(mock, "completed_links")
	require.NoError(t, err)

	rows := pgxmock.NewRows([]string{"exists"}).AddRow(true)
	mock.ExpectQuery("SELECT EXISTS").WillReturnRows(rows)

	exists, err := l.Exists(context.Background())
	require.NoError(t, err)
	require.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewWithPoolRejectsBadTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(mock, "bad;table")
	require.Error(t, err)
}
