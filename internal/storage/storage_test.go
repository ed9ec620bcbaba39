package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("sqlite", func(t *testing.T) {
		store, err := New(context.Background(), Config{
			Type:   TypeSQLite,
			SQLite: SQLiteConfig{Path: filepath.Join(t.TempDir(), "a.db")},
		})
		require.NoError(t, err)
		defer store.Close()
		assert.Equal(t, TypeSQLite, store.Type())
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := New(context.Background(), Config{Type: "redis"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown storage type")
	})

	t.Run("postgres without url", func(t *testing.T) {
		_, err := New(context.Background(), Config{Type: TypePostgreSQL})
		require.Error(t, err)
	})

	t.Run("mongodb without url", func(t *testing.T) {
		_, err := New(context.Background(), Config{Type: TypeMongoDB})
		require.Error(t, err)
	})
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, TypeSQLite, cfg.Type)
	assert.Equal(t, "data/chatgateway.db", cfg.SQLite.Path)
	assert.Equal(t, 10, cfg.PostgreSQL.MaxConns)
	assert.Equal(t, "chatgateway", cfg.MongoDB.Database)
}
