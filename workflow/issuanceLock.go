package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

// AcquireIssuanceLock serializes issuance per company across instances
// using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped. Acquire it on a connection pinned
// via db.Connection, before the issuance transaction begins, and release
// it on that same connection only after the transaction has committed.
func issuanceLockName(companyId int) string {
	return fmt.Sprintf("issuance:%d", companyId)
}

func AcquireIssuanceLock(tx *gorm.DB, companyId int) error {
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", issuanceLockName(companyId)).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire issuance lock for company_id=%d", companyId)
	}
	return nil
}

func ReleaseIssuanceLock(tx *gorm.DB, companyId int) {
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", issuanceLockName(companyId)).Scan(&_ok).Error
}
