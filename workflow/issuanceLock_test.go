package workflow

import (
	"os"
	"testing"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openLockTestMySQL(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("TEST_MYSQL_DSN not set")
	}
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open mysql: %v", err)
	}
	return db
}

func lockIsFree(t *testing.T, db *gorm.DB, companyId int) bool {
	t.Helper()
	var free int
	err := db.Raw("SELECT IS_FREE_LOCK(?)", issuanceLockName(companyId)).Scan(&free).Error
	if err != nil {
		t.Fatalf("IS_FREE_LOCK: %v", err)
	}
	return free == 1
}

// The advisory lock must stay held across the whole issuance transaction,
// including its commit, and only open up once explicitly released on the
// same pinned connection. A second pool observes the lock from outside.
func TestIssuanceLockHeldUntilReleasedAfterCommit(t *testing.T) {
	holder := openLockTestMySQL(t)
	observer := openLockTestMySQL(t)
	companyId := 987654321

	err := holder.Connection(func(conn *gorm.DB) error {
		if err := AcquireIssuanceLock(conn, companyId); err != nil {
			return err
		}
		defer ReleaseIssuanceLock(conn, companyId)

		if lockIsFree(t, observer, companyId) {
			t.Error("lock should be held while acquired")
		}

		if err := conn.Transaction(func(tx *gorm.DB) error {
			return nil
		}); err != nil {
			return err
		}

		// the transaction has committed but the lock is not yet released
		if lockIsFree(t, observer, companyId) {
			t.Error("lock should still be held after the transaction committed")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("holder connection: %v", err)
	}

	if !lockIsFree(t, observer, companyId) {
		t.Error("lock should be free after release")
	}
}

func TestAcquireIssuanceLockRoundTrip(t *testing.T) {
	db := openLockTestMySQL(t)
	companyId := 987654322

	err := db.Connection(func(conn *gorm.DB) error {
		if err := AcquireIssuanceLock(conn, companyId); err != nil {
			return err
		}
		ReleaseIssuanceLock(conn, companyId)
		// released, so a fresh acquire on the same connection succeeds
		if err := AcquireIssuanceLock(conn, companyId); err != nil {
			return err
		}
		ReleaseIssuanceLock(conn, companyId)
		return nil
	})
	if err != nil {
		t.Fatalf("acquire/release: %v", err)
	}
}
