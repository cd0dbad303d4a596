package commands_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/tally/internal/commands"
	"github.com/cleared-dev/tally/internal/config"
	"github.com/cleared-dev/tally/internal/gitops"
	"github.com/cleared-dev/tally/internal/importlog"
	"github.com/cleared-dev/tally/internal/store"
)

func runTally(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.EnvStore, "")
	t.Setenv(config.EnvDatabaseURL, "")
	t.Setenv(config.EnvAddr, "")

	cmd := commands.NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func fixturePath(t *testing.T, name string) string {
	t.Helper()
	p, err := filepath.Abs(filepath.Join("../../testdata", name))
	require.NoError(t, err)
	return p
}

// initRepo runs `tally init` in a fresh directory.
func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	_, err := runTally(t, "init", dir, "--venmo-owner", "John Doe")
	require.NoError(t, err)
	return dir
}

func TestInit_CreatesStructure(t *testing.T) {
	dir := t.TempDir()
	out, err := runTally(t, "init", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Initialized tally repository")

	for _, d := range []string{"import", filepath.Join("import", "processed"), "logs", "data"} {
		info, err := os.Stat(filepath.Join(dir, d))
		require.NoError(t, err, "directory %s should exist", d)
		assert.True(t, info.IsDir(), "%s should be a directory", d)
	}

	gitignore, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	require.NoError(t, err)
	assert.Contains(t, string(gitignore), ".env")
	assert.Contains(t, string(gitignore), "data/")
}

func TestInit_Config(t *testing.T) {
	dir := initRepo(t)

	cfg, err := config.Load(filepath.Join(dir, config.FileName))
	require.NoError(t, err)
	assert.Equal(t, config.DriverFile, cfg.Store.Driver)
	assert.Equal(t, "John Doe", cfg.Venmo.Owner)
}

func TestInit_RefusesExistingRepo(t *testing.T) {
	dir := initRepo(t)
	_, err := runTally(t, "init", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestInit_Git(t *testing.T) {
	if !gitops.Available() {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	out, err := runTally(t, "init", dir, "--git")
	require.NoError(t, err)
	assert.Contains(t, out, "Committed config")
	assert.True(t, gitops.IsRepo(dir))
}

func TestImport_PersistsToFileStore(t *testing.T) {
	dir := initRepo(t)

	out, err := runTally(t, "import", "--repo", dir, fixturePath(t, "CIT.csv"))
	require.NoError(t, err)
	assert.Contains(t, out, "CIT.csv: Successfully imported 10 transactions. 0 duplicates skipped.")

	s, err := store.OpenFileStore(filepath.Join(dir, "data"))
	require.NoError(t, err)
	txns, err := s.ListTransactions(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, txns, 10)

	// The second run sees the same file and reports it without failing.
	out, err = runTally(t, "import", "--repo", dir, fixturePath(t, "CIT.csv"))
	require.NoError(t, err)
	assert.Contains(t, out, "CIT.csv: This file has already been imported.")

	entries, err := importlog.Read(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, importlog.StatusImported, entries[0].Status)
	assert.Equal(t, importlog.StatusDuplicate, entries[1].Status)
	assert.Equal(t, "cli", entries[0].Source)
}

func TestImport_ReportsSkippedRows(t *testing.T) {
	dir := initRepo(t)
	bilt := filepath.Join(t.TempDir(), "Bilt.csv")
	content := "Transaction Date,Amount,Type,Reference,Description\n" +
		"01/05/2024,-12.50,Purchase,R1,SWEETGREEN\n" +
		"01/06/2024,-3.00,Purchase\n"
	require.NoError(t, os.WriteFile(bilt, []byte(content), 0o644))

	out, err := runTally(t, "import", "--repo", dir, bilt)
	require.NoError(t, err)
	assert.Contains(t, out, "Bilt.csv: Successfully imported 1 transactions.")
	assert.Contains(t, out, "Bilt.csv: 1 rows skipped")
	// The reason is logged at the default level, so no flag is needed to see it.
	assert.Contains(t, out, "skipped row")
	assert.Contains(t, out, "row=3")
	assert.NotContains(t, out, "--verbose")
}

func TestImport_FailuresExitNonZero(t *testing.T) {
	dir := initRepo(t)
	unknown := filepath.Join(t.TempDir(), "statement.csv")
	require.NoError(t, os.WriteFile(unknown, []byte("a,b\n"), 0o644))

	out, err := runTally(t, "import", "--repo", dir, fixturePath(t, "Bilt.csv"), unknown, filepath.Join(dir, "missing.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 of 3 files failed")
	assert.Contains(t, out, "Bilt.csv: Successfully imported 3 transactions.")
	assert.Contains(t, out, "statement.csv: Unsupported institution for file: statement.csv")
	assert.Contains(t, out, "missing.csv: could not read file")
}

func TestSweep(t *testing.T) {
	dir := initRepo(t)
	for _, name := range []string{"CIT.csv", "Amex Gold.csv"} {
		data, err := os.ReadFile(fixturePath(t, name))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "import", name), data, 0o644))
	}

	out, err := runTally(t, "sweep", "--repo", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Swept 2 files: 2 imported, 0 duplicates, 0 failed (15 new transactions)")

	_, err = os.Stat(filepath.Join(dir, "import", "processed", "CIT.csv"))
	assert.NoError(t, err)

	out, err = runTally(t, "log", "--repo", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "CIT.csv")
	assert.Contains(t, out, "sweep")
	assert.Contains(t, out, "imported")
}

func TestTxnListAndEdit(t *testing.T) {
	dir := initRepo(t)
	_, err := runTally(t, "import", "--repo", dir, fixturePath(t, "Amex Gold.csv"), fixturePath(t, "Bilt.csv"))
	require.NoError(t, err)

	out, err := runTally(t, "txn", "list", "--repo", dir, "--account", "Bilt")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 4)
	assert.Contains(t, lines[0], "MERCHANT")
	assert.Contains(t, out, "SWEETGREEN")
	assert.NotContains(t, out, "REISS")

	out, err = runTally(t, "txn", "edit", "--repo", dir, "320240980880914392", "--category", "Gifts", "--note", "")
	require.NoError(t, err)
	assert.Contains(t, out, "Gifts")
	assert.Contains(t, out, "320240980880914392 *")

	s, err := store.OpenFileStore(filepath.Join(dir, "data"))
	require.NoError(t, err)
	txn, err := s.FindTransaction(context.Background(), "320240980880914392")
	require.NoError(t, err)
	assert.True(t, txn.IsManual)
	assert.Equal(t, "Gifts", txn.Category)
}

func TestTxn_Errors(t *testing.T) {
	dir := initRepo(t)

	_, err := runTally(t, "txn", "edit", "--repo", dir, "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to edit")

	_, err = runTally(t, "txn", "edit", "--repo", dir, "abc", "--note", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no transaction with id abc")

	_, err = runTally(t, "txn", "list", "--repo", dir, "--account", "Nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown account "Nope"`)
}

func TestLog_Empty(t *testing.T) {
	dir := initRepo(t)
	out, err := runTally(t, "log", "--repo", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "No imports yet")
}

func TestMigrate_RequiresPostgres(t *testing.T) {
	dir := initRepo(t)
	_, err := runTally(t, "migrate", "--repo", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver: postgres")
}

func TestExplicitConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "alt.yaml")
	cfg := config.Default()
	cfg.Store.Driver = config.DriverMemory
	require.NoError(t, config.Save(cfgPath, cfg))

	out, err := runTally(t, "import", "--repo", dir, "--config", cfgPath, fixturePath(t, "Wells Fargo.csv"))
	require.NoError(t, err)
	assert.Contains(t, out, "Successfully imported 3 transactions.")

	_, err = os.Stat(filepath.Join(dir, "data", store.TransactionsFile))
	assert.True(t, os.IsNotExist(err))

	_, err = runTally(t, "import", "--repo", dir, "--config", filepath.Join(dir, "missing.yaml"), fixturePath(t, "CIT.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config")
}

func TestInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Store.Driver = "sqlite"
	require.NoError(t, config.Save(filepath.Join(dir, config.FileName), cfg))

	_, err := runTally(t, "log", "--repo", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestVersion(t *testing.T) {
	out, err := runTally(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "tally version dev")
}
