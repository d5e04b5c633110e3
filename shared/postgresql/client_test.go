package postgresql

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockClient(t *testing.T) (*Client, sqlmock.Sqlmock, *bytes.Buffer) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	out := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(out, nil))
	return NewClientFromDB(sqlx.NewDb(mockDB, "postgres"), &Config{Database: "pipeline"}, logger), mock, out
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(mock sqlmock.Sqlmock)
		wantErr string
	}{
		{
			name: "healthy",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectPing()
				mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
			},
		},
		{
			name: "ping fails",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectPing().WillReturnError(errors.New("connection refused"))
			},
			wantErr: "database health check failed",
		},
		{
			name: "query fails",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectPing()
				mock.ExpectQuery("SELECT 1").WillReturnError(errors.New("in recovery"))
			},
			wantErr: "database query health check failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, mock, _ := newMockClient(t)
			tt.setup(mock)

			err := client.HealthCheck(context.Background())
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestClose(t *testing.T) {
	client, mock, out := newMockClient(t)
	mock.ExpectClose()

	require.NoError(t, client.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Contains(t, out.String(), "PostgreSQL connection closed successfully")
}

func TestLogStats(t *testing.T) {
	client, _, out := newMockClient(t)

	client.LogStats()
	assert.Contains(t, out.String(), "PostgreSQL pool stats")
	assert.Contains(t, out.String(), "open_conns")
	assert.Same(t, client.GetDB(), client.db)
}
