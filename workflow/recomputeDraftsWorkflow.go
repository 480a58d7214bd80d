package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/nordfaktur/invoicing_backend/config"
	"github.com/nordfaktur/invoicing_backend/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const recomputeBatchSize = 100

// RecomputeDraftInvoices re-runs the VAT decision and totals over every
// draft invoice of one company, in bounded batches. Triggered after a
// company's VAT-relevant settings change. One invoice failing never aborts
// the batch; only an unloadable company is fatal (and retryable).
func RecomputeDraftInvoices(ctx context.Context, companyId int) error {
	logger := config.GetLogger()

	// best-effort dedup across instances; overlapping runs converge to the
	// same result anyway, so a lock miss just means doing the work twice
	locker := config.GetRedisLock()
	if locker != nil {
		lockKey := fmt.Sprintf("recompute-drafts:%d", companyId)
		lock, err := locker.Obtain(ctx, lockKey, 5*time.Minute, nil)
		if err == nil {
			defer lock.Release(context.WithoutCancel(ctx))
		} else if err != redislock.ErrNotObtained {
			config.LogError(logger, "recomputeDraftsWorkflow.go", "RecomputeDraftInvoices", "Obtain lock", companyId, err)
		}
	}

	company, err := models.GetCompanyById(ctx, companyId)
	if err != nil {
		return err
	}
	sellerProfile, err := company.SellerProfile(ctx)
	if err != nil {
		return err
	}
	perms := models.IssuerPermissionsForCompany(ctx, companyId)

	db := config.GetDB()
	lastId := 0
	for {
		var drafts []*models.Invoice
		err := db.WithContext(ctx).
			Where("company_id = ? AND status = ? AND id > ?", companyId, models.InvoiceStatusDraft, lastId).
			Order("id asc").
			Limit(recomputeBatchSize).
			Find(&drafts).Error
		if err != nil {
			return err
		}
		if len(drafts) == 0 {
			return nil
		}
		for _, draft := range drafts {
			lastId = draft.ID
			if err := recomputeOneDraft(ctx, companyId, draft.ID, sellerProfile, perms); err != nil {
				config.LogError(logger, "recomputeDraftsWorkflow.go", "RecomputeDraftInvoices", "recomputeOneDraft", draft.ID, err)
			}
		}
	}
}

// recomputeOneDraft re-checks the stored status under lock before touching
// anything; a request may have issued the invoice since the batch was read.
func recomputeOneDraft(ctx context.Context, companyId int, invoiceId int, sellerProfile models.SellerProfile, perms models.IssuerPermissions) error {
	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var invoice models.Invoice
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("Items").
			Where("company_id = ?", companyId).
			First(&invoice, invoiceId).Error; err != nil {
			return err
		}
		if invoice.Status != models.InvoiceStatusDraft {
			return nil
		}

		var client models.Client
		if err := tx.Where("company_id = ?", companyId).
			First(&client, invoice.ClientId).Error; err != nil {
			return err
		}
		buyerProfile, err := client.BuyerProfile(ctx)
		if err != nil {
			return err
		}

		decision := models.DecideVatTreatment(sellerProfile, buyerProfile, perms)
		totals := models.ComputeInvoiceTotals(invoice.Items, decision.Rate)

		for _, item := range invoice.Items {
			if err := tx.Model(&models.InvoiceItem{}).
				Where("id = ?", item.ID).
				Update("line_total_minor", item.LineTotalMinor).Error; err != nil {
				return err
			}
		}
		return tx.Model(&models.Invoice{}).
			Where("id = ?", invoice.ID).
			Updates(map[string]interface{}{
				"tax_treatment":   decision.Treatment,
				"vat_rate":        decision.Rate,
				"vat_reason_text": decision.Reason,
				"subtotal_minor":  totals.SubtotalMinor,
				"vat_minor":       totals.VatMinor,
				"total_minor":     totals.TotalMinor,
			}).Error
	})
}
