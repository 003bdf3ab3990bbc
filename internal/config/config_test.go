package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolvedDBKind_DefaultsToSQLite(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, DBKindSQLite, cfg.ResolvedDBKind())
}

func TestResolvedDBKind_InfersPostgresFromURL(t *testing.T) {
	cfg := Config{DBURL: "postgresql://user:pw@db:5432/chatmem"}
	require.Equal(t, DBKindPostgres, cfg.ResolvedDBKind())
}

func TestResolvedDBKind_ExplicitKindWins(t *testing.T) {
	cfg := Config{DBKind: DBKindSQLite, DBURL: "postgres://db/chatmem"}
	require.Equal(t, DBKindSQLite, cfg.ResolvedDBKind())
}
