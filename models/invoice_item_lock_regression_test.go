package models

import (
	"strings"
	"testing"

	"gorm.io/gorm"
	"gorm.io/gorm/utils/tests"
)

// NOTE: DB-free. DryRun captures the SQL the status guards issue. The point
// is the locking clause: a snapshot read here would let an item mutation
// race a concurrent issuance and rewrite frozen totals after it commits.

func dryRunDB(t *testing.T) (*gorm.DB, *[]string) {
	t.Helper()
	db, err := gorm.Open(tests.DummyDialector{}, &gorm.Config{DryRun: true})
	if err != nil {
		t.Fatalf("open dry-run db: %v", err)
	}
	var captured []string
	err = db.Callback().Query().After("gorm:query").Register("capture_query_sql", func(d *gorm.DB) {
		captured = append(captured, d.Statement.SQL.String())
	})
	if err != nil {
		t.Fatalf("register capture callback: %v", err)
	}
	return db, &captured
}

func capturedLockingRead(captured []string) bool {
	for _, sql := range captured {
		if strings.Contains(sql, "FOR UPDATE") {
			return true
		}
	}
	return false
}

func TestLockInvoiceRowReadsForUpdate(t *testing.T) {
	db, captured := dryRunDB(t)

	_, _ = lockInvoiceRow(db, 1, 2, false)

	if len(*captured) == 0 {
		t.Fatal("no query captured")
	}
	if !capturedLockingRead(*captured) {
		t.Fatalf("invoice row read is not a locking read: %q", *captured)
	}
	if !strings.Contains((*captured)[0], "company_id") {
		t.Fatalf("invoice row read is not tenant-scoped: %q", (*captured)[0])
	}
}

func TestLockDraftInvoiceReadsForUpdate(t *testing.T) {
	db, captured := dryRunDB(t)

	// DryRun scans no row; the zero status must still refuse the mutation
	_, err := lockDraftInvoice(db, 1, 2)
	if err == nil {
		t.Fatal("expected the guard to refuse a non-draft row")
	}
	if !capturedLockingRead(*captured) {
		t.Fatalf("draft guard read is not a locking read: %q", *captured)
	}
}
