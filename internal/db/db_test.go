package db

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/ragchat/internal/config"
)

func TestDSN(t *testing.T) {
	require.Equal(t, "postgres://x", DSN(config.DatabaseConfig{DSN: "postgres://x", Host: "ignored"}))
	require.Equal(t,
		"host=db port=5432 user=u password=p dbname=rag sslmode=disable",
		DSN(config.DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "rag"}),
	)
}

func TestSplitStatements(t *testing.T) {
	require.Equal(t, []string{"CREATE A", "CREATE B"}, splitStatements("CREATE A;\n\n  CREATE B;\n"))
	require.Empty(t, splitStatements(" ;\n"))
}

func TestMigrationFilesAreOrdered(t *testing.T) {
	files, err := migrationFiles()
	require.NoError(t, err)
	require.NotEmpty(t, files)
	require.Equal(t, "001_init.sql", files[0])
	require.IsIncreasing(t, files)
}
