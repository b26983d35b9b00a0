package db_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/syncwavelabs/syncwave/internal/config"
	"github.com/syncwavelabs/syncwave/pkg/db"
)

func TestNewGorm_FileBackendDefersConnection(t *testing.T) {
	cfg := &config.Config{
		StoreBackend: "file",
		DBHost:       "127.0.0.1",
		DBPort:       "1", // nothing listens here
		DBName:       "syncwave",
		DBUser:       "postgres",
		DBPassword:   "postgres",
		DBSSLMode:    "disable",
	}

	gdb, err := db.NewGorm(cfg)
	require.NoError(t, err, "the file backend must come up without a reachable database")
	require.NotNil(t, gdb)
}
