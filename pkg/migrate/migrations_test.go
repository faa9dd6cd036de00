package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/yieldvault-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one %s migration, found %d", suffix, len(matches))
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func assertContains(t *testing.T, content string, checks []string) {
	t.Helper()
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestLedgerEntriesMigrationGuardsIdempotency(t *testing.T) {
	assertContains(t, readMigration(t, "create_ledger_entries"), []string{
		"CREATE TABLE IF NOT EXISTS ledger_entries",
		"CONSTRAINT ux_ledger_entries_idempotency_key UNIQUE (idempotency_key)",
		"FOREIGN KEY (account_id) REFERENCES accounts(id)",
		"CHECK (amount > 0)",
		"DROP TABLE IF EXISTS ledger_entries",
	})
}

func TestAccountsMigrationKeepsBalancesNonNegative(t *testing.T) {
	assertContains(t, readMigration(t, "create_accounts"), []string{
		"CHECK (available_balance >= 0)",
		"CHECK (roi_balance >= 0)",
		"CONSTRAINT ux_accounts_identity_id UNIQUE (identity_id)",
		"DROP TABLE IF EXISTS accounts",
	})
}

func TestReferralEdgesMigrationForbidsSelfReferral(t *testing.T) {
	assertContains(t, readMigration(t, "create_referral_edges"), []string{
		"CHECK (referrer_id <> referee_id)",
		"CHECK (level IN (1, 2))",
		"UNIQUE (referee_id, level)",
	})
}

func TestWithdrawalWindowMigrationOrdersBounds(t *testing.T) {
	assertContains(t, readMigration(t, "create_withdrawal_window"), []string{
		"CHECK (id = 1)",
		"CHECK (opens_at IS NULL OR closes_at IS NULL OR opens_at < closes_at)",
	})
}

func TestMigrationsDirValidates(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("ValidateDir() error: %v", err)
	}
}

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Ledger Index!")
	if err != nil {
		t.Fatalf("CreateSQLMigration() error: %v", err)
	}
	if !strings.HasSuffix(path, "_add_ledger_index.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}
}

func TestEmbeddedMigrationsValidate(t *testing.T) {
	fsys, root := migrate.Source("")
	if err := migrate.ValidateFS(fsys, root); err != nil {
		t.Fatalf("embedded migrations invalid: %v", err)
	}
}
