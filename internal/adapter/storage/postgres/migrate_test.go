package postgres

import (
	"context"
	"strings"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations_Embedded(t *testing.T) {
	migrations, err := Migrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)

	assert.Equal(t, "0001_init", migrations[0].Version)
	for _, table := range []string{"users", "wallets", "transactions", "audit_logs"} {
		assert.Contains(t, migrations[0].SQL, "CREATE TABLE IF NOT EXISTS "+table)
	}
	assert.True(t, strings.Contains(migrations[0].SQL, "CHECK (balance >= 0)"))
}

func TestMigrate_AppliesPending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	migrations, err := Migrations()
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	for _, m := range migrations {
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(m.Version).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectBegin()
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").
			WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
		mock.ExpectExec("INSERT INTO schema_migrations").
			WithArgs(m.Version).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()
	}

	applied, err := Migrate(context.Background(), mock, zerolog.Nop())
	require.NoError(t, err)
	assert.Len(t, applied, len(migrations))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_SkipsApplied(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	migrations, err := Migrations()
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	for _, m := range migrations {
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(m.Version).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	}

	applied, err := Migrate(context.Background(), mock, zerolog.Nop())
	require.NoError(t, err)
	assert.Empty(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}
