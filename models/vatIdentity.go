package models

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/go-sql-driver/mysql"
	"github.com/nordfaktur/invoicing_backend/config"
	"github.com/nordfaktur/invoicing_backend/utils"
	"gorm.io/gorm"
)

// VatIdentity is a global, deduplicated cache of validation outcomes for one
// (country_code, vat_id) pair. It is shared across every company and client
// that references the same VAT id, and is never tenant-scoped or deleted.
type VatIdentity struct {
	ID                int               `gorm:"primary_key" json:"id"`
	CountryCode       string            `gorm:"size:2;not null;uniqueIndex:idx_vat_identity_pair" json:"country_code"`
	VatId             string            `gorm:"size:20;not null;uniqueIndex:idx_vat_identity_pair" json:"vat_id"`
	Status            VatIdentityStatus `gorm:"type:enum('pending','valid','invalid','unknown');not null;default:pending" json:"status"`
	StatusUpdatedAt   *time.Time        `json:"status_updated_at"`
	LastCheckedAt     *time.Time        `json:"last_checked_at"`
	LastEnqueuedAt    *time.Time        `json:"last_enqueued_at"`
	RegisteredName    string            `gorm:"size:255" json:"registered_name"`
	RegisteredAddress string            `gorm:"size:500" json:"registered_address"`
	LastError         string            `gorm:"size:500" json:"last_error"`
	CreatedAt         time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

const (
	// a validation result older than this is considered stale
	ValidationStaleAfter = 30 * 24 * time.Hour
	// a second enqueue within this window is suppressed
	EnqueueThrottleWindow = 10 * time.Minute
)

// NormalizeVatIdentity uppercases and trims the country code and strips all
// non-alphanumeric characters from the VAT id, so "de 123.456/789" and
// "DE123456789" resolve to one identity record.
func NormalizeVatIdentity(countryCode string, vatId string) (string, string) {
	cc := NormalizeCountryCode(countryCode)
	var b strings.Builder
	for _, r := range strings.ToUpper(vatId) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return cc, b.String()
}

// IsValidationStale reports whether a validation outcome needs refreshing.
func IsValidationStale(lastCheckedAt *time.Time, now time.Time) bool {
	return lastCheckedAt == nil || lastCheckedAt.Before(now.Add(-ValidationStaleAfter))
}

func isDuplicateKeyError(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

// ResolveOrCreateVatIdentity finds or creates the identity record for the
// normalized pair; new records start pending. No validation side effect.
// A create racing another creator loses on the unique key and re-reads the
// winner's row instead of failing.
func ResolveOrCreateVatIdentity(ctx context.Context, tx *gorm.DB, countryCode string, vatId string) (*VatIdentity, error) {
	cc, vid := NormalizeVatIdentity(countryCode, vatId)
	if cc == "" || vid == "" {
		return nil, errors.New("country code and vat id are required")
	}

	var identity VatIdentity
	err := tx.WithContext(ctx).
		Where("country_code = ? AND vat_id = ?", cc, vid).
		First(&identity).Error
	if err == nil {
		return &identity, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	identity = VatIdentity{
		CountryCode: cc,
		VatId:       vid,
		Status:      VatIdentityStatusPending,
	}
	err = tx.WithContext(ctx).Create(&identity).Error
	if err == nil {
		return &identity, nil
	}
	if !isDuplicateKeyError(err) {
		return nil, err
	}
	// lost the creation race; the row exists now
	if err := tx.WithContext(ctx).
		Where("country_code = ? AND vat_id = ?", cc, vid).
		First(&identity).Error; err != nil {
		return nil, err
	}
	return &identity, nil
}

func GetVatIdentity(ctx context.Context, id int) (*VatIdentity, error) {
	cached, err := utils.RetrieveRedis[VatIdentity](id)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return cached, nil
	}
	identity, err := utils.FetchSingleModel[VatIdentity](ctx, id)
	if err != nil {
		return nil, err
	}
	if err := utils.StoreRedis[VatIdentity](identity, id); err != nil {
		return nil, err
	}
	return identity, nil
}

// claimEnqueueSlot is the atomic compare-and-set on last_enqueued_at: a
// single conditional UPDATE whose affected-row count names the winner.
// Concurrent callers racing on the same identity cannot both see one row
// affected, so at most one validation job is scheduled per throttle window
// regardless of how many tenants share the VAT id.
func claimEnqueueSlot(ctx context.Context, tx *gorm.DB, identityId int, now time.Time) (bool, error) {
	cutoff := now.Add(-EnqueueThrottleWindow)
	res := tx.WithContext(ctx).Model(&VatIdentity{}).
		Where("id = ? AND (last_enqueued_at IS NULL OR last_enqueued_at < ?)", identityId, cutoff).
		Update("last_enqueued_at", now)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func enqueueValidation(ctx context.Context, identityId int, skipStalenessCheck bool) (bool, error) {
	db := config.GetDB()

	identity, err := utils.FetchSingleModel[VatIdentity](ctx, identityId)
	if err != nil {
		return false, err
	}

	now := time.Now().UTC()
	if !skipStalenessCheck && !IsValidationStale(identity.LastCheckedAt, now) {
		return false, nil
	}

	var scheduled bool
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		won, err := claimEnqueueSlot(ctx, tx, identityId, now)
		if err != nil {
			return err
		}
		if !won {
			return nil
		}
		// only the CAS winner writes the job record
		if err := EnqueueJob(ctx, tx, 0, JobTypeVatValidation, "vat_identities", identityId, nil); err != nil {
			return err
		}
		scheduled = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if scheduled {
		_ = utils.RemoveRedisItem[VatIdentity](identityId)
	}
	return scheduled, nil
}

// EnqueueValidationIfStale schedules an asynchronous (re)validation when the
// stored outcome is stale and the throttle window has passed. Returns whether
// a job was scheduled.
func EnqueueValidationIfStale(ctx context.Context, identityId int) (bool, error) {
	return enqueueValidation(ctx, identityId, false)
}

// ForceEnqueueValidation is the manual "recheck now" action: it skips the
// staleness check but still honors the throttle window.
func ForceEnqueueValidation(ctx context.Context, identityId int) (bool, error) {
	return enqueueValidation(ctx, identityId, true)
}

// ApplyValidationSuccess records a provider result. status_updated_at only
// moves when the status actually changed; a previous error is cleared.
func ApplyValidationSuccess(ctx context.Context, identityId int, status VatIdentityStatus, registeredName string, registeredAddress string, checkedAt time.Time) error {
	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var identity VatIdentity
		if err := tx.First(&identity, identityId).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{
			"status":             status,
			"last_checked_at":    checkedAt,
			"registered_name":    registeredName,
			"registered_address": registeredAddress,
			"last_error":         "",
		}
		if identity.Status != status {
			updates["status_updated_at"] = checkedAt
		}
		if err := tx.Model(&identity).Updates(updates).Error; err != nil {
			return err
		}
		return utils.RemoveRedisItem[VatIdentity](identityId)
	})
}

// ApplyValidationFailure marks the identity unknown and stamps
// last_checked_at so the staleness clock still advances and the record is
// not retried immediately. The record keeps its registered details.
func ApplyValidationFailure(ctx context.Context, identityId int, provErr error) error {
	db := config.GetDB()
	now := time.Now().UTC()
	errMsg := provErr.Error()
	if len(errMsg) > 500 {
		errMsg = errMsg[:500]
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var identity VatIdentity
		if err := tx.First(&identity, identityId).Error; err != nil {
			return err
		}
		updates := map[string]interface{}{
			"status":          VatIdentityStatusUnknown,
			"last_checked_at": now,
			"last_error":      errMsg,
		}
		if identity.Status != VatIdentityStatusUnknown {
			updates["status_updated_at"] = now
		}
		if err := tx.Model(&identity).Updates(updates).Error; err != nil {
			return err
		}
		return utils.RemoveRedisItem[VatIdentity](identityId)
	})
}
