package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReplicaURLs(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: nil,
		},
		{
			name:     "single URL",
			input:    "postgres://localhost:5432/db",
			expected: []string{"postgres://localhost:5432/db"},
		},
		{
			name:  "URLs with whitespace",
			input: " postgres://host1:5432/db , postgres://host2:5432/db ",
			expected: []string{
				"postgres://host1:5432/db",
				"postgres://host2:5432/db",
			},
		},
		{
			name:     "URLs with empty entries",
			input:    "postgres://host1:5432/db,,postgres://host2:5432/db,",
			expected: []string{"postgres://host1:5432/db", "postgres://host2:5432/db"},
		},
		{
			name:     "only commas and whitespace",
			input:    " , , , ",
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseReplicaURLs(tt.input))
		})
	}
}

func TestParseDialect(t *testing.T) {
	tests := []struct {
		input   string
		want    Dialect
		wantErr bool
	}{
		{input: "postgres", want: DialectPostgres},
		{input: "PostgreSQL", want: DialectPostgres},
		{input: "sqlite", want: DialectSQLite},
		{input: " sqlite3 ", want: DialectSQLite},
		{input: "mysql", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDialect(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestConnectionManager_Replica(t *testing.T) {
	t.Run("falls back to primary", func(t *testing.T) {
		primary, _ := newMockDB(t)
		cm := NewConnectionManagerFromDB(DialectPostgres, primary)

		assert.Same(t, primary, cm.Replica())
	})

	t.Run("round robin", func(t *testing.T) {
		primary, _ := newMockDB(t)
		r1, _ := newMockDB(t)
		r2, _ := newMockDB(t)
		cm := NewConnectionManagerFromDB(DialectPostgres, primary, r1, r2)

		seen := map[*sql.DB]int{}
		for i := 0; i < 10; i++ {
			seen[cm.Replica()]++
		}
		assert.Equal(t, 5, seen[r1])
		assert.Equal(t, 5, seen[r2])
		assert.Zero(t, seen[primary])
	})
}

func TestConnectionManager_HealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		primary, pm := newMockDB(t)
		replica, rm := newMockDB(t)
		pm.ExpectPing()
		rm.ExpectPing()

		cm := NewConnectionManagerFromDB(DialectPostgres, primary, replica)
		assert.NoError(t, cm.HealthCheck(context.Background()))
	})

	t.Run("primary down", func(t *testing.T) {
		primary, pm := newMockDB(t)
		pm.ExpectPing().WillReturnError(errors.New("connection refused"))

		cm := NewConnectionManagerFromDB(DialectPostgres, primary)
		err := cm.HealthCheck(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "primary unhealthy")
	})

	t.Run("all replicas down", func(t *testing.T) {
		primary, pm := newMockDB(t)
		replica, rm := newMockDB(t)
		pm.ExpectPing()
		rm.ExpectPing().WillReturnError(errors.New("connection refused"))

		cm := NewConnectionManagerFromDB(DialectPostgres, primary, replica)
		err := cm.HealthCheck(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "replica-0")
	})
}

func TestConnectionManager_RemoveUnhealthyReplicas(t *testing.T) {
	primary, _ := newMockDB(t)
	good, gm := newMockDB(t)
	bad, bm := newMockDB(t)
	gm.ExpectPing()
	bm.ExpectPing().WillReturnError(errors.New("gone"))
	bm.ExpectClose()

	cm := NewConnectionManagerFromDB(DialectPostgres, primary, good, bad)

	assert.Equal(t, 1, cm.RemoveUnhealthyReplicas(context.Background()))
	assert.Same(t, good, cm.Replica())
	assert.Len(t, cm.Stats().Replicas, 1)
}

func TestNewConnectionManager(t *testing.T) {
	t.Run("missing URL", func(t *testing.T) {
		_, err := NewConnectionManager(context.Background(), ConnectionConfig{}, nil)
		assert.Error(t, err)
	})

	t.Run("sqlite ignores replicas", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "events.db")
		cfg := DefaultConnectionConfig(DialectSQLite, "file:"+path)
		cfg.ReplicaURLs = []string{"file:" + path}

		cm, err := NewConnectionManager(context.Background(), cfg, nil)
		require.NoError(t, err)
		defer cm.Close()

		assert.Equal(t, DialectSQLite, cm.Dialect())
		assert.Same(t, cm.Primary(), cm.Replica())
		assert.NoError(t, cm.HealthCheck(context.Background()))
	})
}
