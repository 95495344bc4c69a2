package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	in := `-- header comment
CREATE TABLE a (x String);

-- second
CREATE TABLE b (
    y String
);
`
	stmts := splitStatements(in)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (x String)", stmts[0])
	assert.Contains(t, stmts[1], "CREATE TABLE b")
}

func TestValidateNoSemicolonInStrings(t *testing.T) {
	assert.NoError(t, validateNoSemicolonInStrings(`SELECT 'a''b'; SELECT 1;`))
	assert.Error(t, validateNoSemicolonInStrings(`SELECT 'a;b'`))
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://default:@localhost:9000/prices")
	require.NoError(t, err)
	assert.Equal(t, "prices", db)

	_, err = databaseFromDSN("clickhouse://localhost:9000")
	assert.Error(t, err)
}

func TestEmbeddedFiles(t *testing.T) {
	pg, err := sqlFiles(PostgresFS, "postgres")
	require.NoError(t, err)
	assert.Equal(t, []string{"001_reference.sql", "002_panel_imports.sql"}, pg)

	ch, err := sqlFiles(ClickhouseFS, "clickhouse")
	require.NoError(t, err)
	assert.Equal(t, []string{"001_price_points.sql"}, ch)
}
