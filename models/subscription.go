package models

import (
	"context"
	"errors"
	"time"

	"github.com/nordfaktur/invoicing_backend/config"
	"gorm.io/gorm"
)

type Plan struct {
	ID          int               `gorm:"primary_key" json:"id"`
	Name        string            `gorm:"size:100;not null" json:"name"`
	Permissions []*PlanPermission `json:"permissions,omitempty"`
	CreatedAt   time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

type PlanPermission struct {
	ID            int    `gorm:"primary_key" json:"id"`
	PlanId        int    `gorm:"uniqueIndex:idx_plan_permission;not null" json:"plan_id"`
	PermissionKey string `gorm:"size:50;uniqueIndex:idx_plan_permission;not null" json:"permission_key"`
}

type Subscription struct {
	ID        int                `gorm:"primary_key" json:"id"`
	CompanyId int                `gorm:"index;not null" json:"company_id"`
	PlanId    int                `gorm:"not null" json:"plan_id"`
	Plan      *Plan              `json:"plan,omitempty"`
	Status    SubscriptionStatus `gorm:"size:10;not null;default:'Active'" json:"status"`
	StartsAt  time.Time          `json:"starts_at"`
	EndsAt    *time.Time         `json:"ends_at"`
	CreatedAt time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

// HasPermission answers whether the company's plan grants a permission key.
// The check fails open: a company with no resolvable subscription or plan
// is treated as fully entitled, so a billing-data hiccup never blocks
// issuance. Only an active subscription with a plan that omits the key
// answers false.
func HasPermission(ctx context.Context, companyId int, permissionKey string) (bool, error) {
	db := config.GetDB()

	var sub Subscription
	err := db.WithContext(ctx).
		Preload("Plan.Permissions").
		Where("company_id = ? AND status = ?", companyId, SubscriptionStatusActive).
		Order("starts_at desc").
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if sub.Plan == nil {
		return true, nil
	}
	for _, perm := range sub.Plan.Permissions {
		if perm.PermissionKey == permissionKey {
			return true, nil
		}
	}
	return false, nil
}

// IssuerPermissionsForCompany bundles the permission lookups the VAT
// decision engine consumes. A lookup error degrades to granted rather than
// failing the caller.
func IssuerPermissionsForCompany(ctx context.Context, companyId int) IssuerPermissions {
	logger := config.GetLogger()

	crossBorder, err := HasPermission(ctx, companyId, PermissionCrossBorderB2B)
	if err != nil {
		config.LogError(logger, "subscription.go", "IssuerPermissionsForCompany", "HasPermission cross_border_b2b", companyId, err)
		crossBorder = true
	}
	vies, err := HasPermission(ctx, companyId, PermissionViesValidation)
	if err != nil {
		config.LogError(logger, "subscription.go", "IssuerPermissionsForCompany", "HasPermission vies_validation", companyId, err)
		vies = true
	}
	return IssuerPermissions{
		CrossBorderB2B: crossBorder,
		ViesValidation: vies,
	}
}
