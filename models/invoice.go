package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nordfaktur/invoicing_backend/config"
	"github.com/nordfaktur/invoicing_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Invoice carries the financial snapshot frozen at issuance. While the
// persisted status is Draft everything may change; afterwards only status
// and due_date stay writable (see ImmutableFieldViolations).
type Invoice struct {
	ID             int           `gorm:"primary_key" json:"id"`
	CompanyId      int           `gorm:"uniqueIndex:idx_invoice_number;index" json:"company_id"`
	ClientId       int           `gorm:"index" json:"client_id"`
	Client         *Client       `json:"client,omitempty"`
	Status         InvoiceStatus `gorm:"size:10;not null;default:'Draft'" json:"status"`
	Number         *string       `gorm:"size:40;uniqueIndex:idx_invoice_number" json:"number"`
	PublicId       string        `gorm:"size:36;uniqueIndex:idx_invoice_public_id;not null" json:"public_id"`
	ShareTokenHash string        `gorm:"size:100" json:"-"`
	IssueDate      *time.Time    `gorm:"type:date" json:"issue_date"`
	DueDate        *time.Time    `gorm:"type:date" json:"due_date"`
	Currency       string        `gorm:"size:3;not null;default:'EUR'" json:"currency"`

	TaxTreatment  TaxTreatment    `gorm:"size:20" json:"tax_treatment"`
	VatRate       decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0" json:"vat_rate"`
	VatReasonText string          `gorm:"size:200" json:"vat_reason_text"`
	VatDecidedAt  *time.Time      `json:"vat_decided_at"`

	ClientVatStatusSnapshot *VatIdentityStatus `gorm:"size:10" json:"client_vat_status_snapshot"`
	ClientVatIdSnapshot     string             `gorm:"size:30" json:"client_vat_id_snapshot"`
	SellerSnapshot          string             `gorm:"type:json" json:"seller_snapshot"`
	BuyerSnapshot           string             `gorm:"type:json" json:"buyer_snapshot"`

	SubtotalMinor int64 `gorm:"not null;default:0" json:"subtotal_minor"`
	VatMinor      int64 `gorm:"not null;default:0" json:"vat_minor"`
	TotalMinor    int64 `gorm:"not null;default:0" json:"total_minor"`

	Items []*InvoiceItem `json:"items,omitempty"`

	// plain share token, only populated on create; never persisted
	ShareToken string `gorm:"-" json:"share_token,omitempty"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

type InvoiceItem struct {
	ID             int             `gorm:"primary_key" json:"id"`
	CompanyId      int             `gorm:"index" json:"company_id"`
	InvoiceId      int             `gorm:"index" json:"invoice_id"`
	Description    string          `gorm:"size:500;not null" json:"description"`
	Quantity       decimal.Decimal `gorm:"type:decimal(12,4);not null" json:"quantity"`
	UnitPriceMinor int64           `gorm:"not null" json:"unit_price_minor"`
	LineTotalMinor int64           `gorm:"not null;default:0" json:"line_total_minor"`
	Position       int             `gorm:"not null;default:0" json:"position"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewInvoice struct {
	ClientId  int              `json:"client_id" binding:"required"`
	IssueDate *time.Time       `json:"issue_date"`
	DueDate   *time.Time       `json:"due_date"`
	Currency  string           `json:"currency"`
	Items     []NewInvoiceItem `json:"items"`
}

type NewInvoiceItem struct {
	Description    string          `json:"description" binding:"required"`
	Quantity       decimal.Decimal `json:"quantity" binding:"required"`
	UnitPriceMinor int64           `json:"unit_price_minor"`
	Position       int             `json:"position"`
}

// UpdateInvoiceInput covers the draft-editable header fields. Items change
// through their own operations, status through UpdateInvoiceStatus.
type UpdateInvoiceInput struct {
	ClientId  *int       `json:"client_id"`
	IssueDate *time.Time `json:"issue_date"`
	DueDate   *time.Time `json:"due_date"`
	Currency  *string    `json:"currency"`
}

// immutableInvoiceFields maps the write-once column names to comparators
// over the persisted and the would-be-updated invoice.
var immutableInvoiceFields = []struct {
	name    string
	changed func(persisted, updated *Invoice) bool
}{
	{"issue_date", func(p, u *Invoice) bool { return !equalDatePtr(p.IssueDate, u.IssueDate) }},
	{"tax_treatment", func(p, u *Invoice) bool { return p.TaxTreatment != u.TaxTreatment }},
	{"vat_rate", func(p, u *Invoice) bool { return !p.VatRate.Equal(u.VatRate) }},
	{"vat_reason_text", func(p, u *Invoice) bool { return p.VatReasonText != u.VatReasonText }},
	{"vat_decided_at", func(p, u *Invoice) bool { return !equalTimePtr(p.VatDecidedAt, u.VatDecidedAt) }},
	{"seller_snapshot", func(p, u *Invoice) bool { return p.SellerSnapshot != u.SellerSnapshot }},
	{"client_vat_status_snapshot", func(p, u *Invoice) bool { return !equalStatusPtr(p.ClientVatStatusSnapshot, u.ClientVatStatusSnapshot) }},
	{"client_vat_id_snapshot", func(p, u *Invoice) bool { return p.ClientVatIdSnapshot != u.ClientVatIdSnapshot }},
	{"buyer_snapshot", func(p, u *Invoice) bool { return p.BuyerSnapshot != u.BuyerSnapshot }},
}

func equalDatePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func equalStatusPtr(a, b *VatIdentityStatus) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// ImmutableFieldViolations compares the persisted row against the updated
// one and names every frozen field the update would touch. It only applies
// when the persisted status is no longer Draft; the caller checks that.
func ImmutableFieldViolations(persisted, updated *Invoice) []string {
	var violations []string
	for _, field := range immutableInvoiceFields {
		if field.changed(persisted, updated) {
			violations = append(violations, field.name)
		}
	}
	return violations
}

// ImmutableFieldError formats a violation list into the error surfaced to
// the caller.
func ImmutableFieldError(violations []string) error {
	return fmt.Errorf("invoice is no longer a draft; cannot change: %v", violations)
}

func GetInvoice(ctx context.Context, id int) (*Invoice, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok {
		return nil, errors.New("company id is required")
	}
	return utils.FetchModel[Invoice](ctx, companyId, id, "Items", "Client")
}

func GetInvoicesAll(ctx context.Context) ([]*Invoice, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok {
		return nil, errors.New("company id is required")
	}
	return utils.FetchAllModels[Invoice](ctx, companyId, "Items", "Client")
}

// GetInvoiceByShareLink serves the public invoice view. The public id is an
// opaque handle and the token is only ever compared against its hash, so a
// leaked database row is not enough to open the share link.
func GetInvoiceByShareLink(ctx context.Context, publicId string, shareToken string) (*Invoice, error) {
	db := config.GetDB()

	var invoice Invoice
	err := db.WithContext(ctx).
		Preload("Items").
		Where("public_id = ?", publicId).
		First(&invoice).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := utils.CompareShareToken(invoice.ShareTokenHash, shareToken); err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &invoice, nil
}

func CreateInvoice(ctx context.Context, input *NewInvoice) (*Invoice, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == 0 {
		return nil, errors.New("company id is required")
	}
	if err := utils.ValidateResourceId[Client](ctx, companyId, input.ClientId); err != nil {
		return nil, err
	}

	currency := input.Currency
	if currency == "" {
		currency = "EUR"
	}

	shareToken := uuid.NewString()
	tokenHash, err := utils.HashShareToken(shareToken)
	if err != nil {
		return nil, err
	}

	invoice := Invoice{
		CompanyId:      companyId,
		ClientId:       input.ClientId,
		Status:         InvoiceStatusDraft,
		PublicId:       uuid.NewString(),
		ShareTokenHash: tokenHash,
		IssueDate:      input.IssueDate,
		DueDate:        input.DueDate,
		Currency:       currency,
	}
	for i, item := range input.Items {
		invoice.Items = append(invoice.Items, &InvoiceItem{
			CompanyId:      companyId,
			Description:    item.Description,
			Quantity:       item.Quantity,
			UnitPriceMinor: item.UnitPriceMinor,
			Position:       item.Position + i,
		})
	}
	totals := ComputeInvoiceTotals(invoice.Items, invoice.VatRate)
	invoice.SubtotalMinor = totals.SubtotalMinor
	invoice.VatMinor = totals.VatMinor
	invoice.TotalMinor = totals.TotalMinor

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&invoice).Error; err != nil {
			return err
		}
		return AppendEventLog(tx, EventActionCreate, "invoices", invoice.ID, nil, &invoice, "Invoice draft created.")
	})
	if err != nil {
		return nil, err
	}

	invoice.ShareToken = shareToken
	return &invoice, nil
}

// UpdateInvoice edits the header fields. The persisted status decides what
// is allowed: drafts change freely, issued invoices only accept due_date.
func UpdateInvoice(ctx context.Context, id int, input *UpdateInvoiceInput) (*Invoice, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok {
		return nil, errors.New("company id is required")
	}

	db := config.GetDB()
	var invoice Invoice
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := lockInvoiceRow(tx, companyId, id, true)
		if err != nil {
			return err
		}
		invoice = *locked
		before := invoice

		updated := invoice
		if input.ClientId != nil {
			updated.ClientId = *input.ClientId
		}
		if input.IssueDate != nil {
			updated.IssueDate = input.IssueDate
		}
		if input.DueDate != nil {
			updated.DueDate = input.DueDate
		}
		if input.Currency != nil {
			updated.Currency = *input.Currency
		}

		if before.Status != InvoiceStatusDraft {
			var violations []string
			if violations = ImmutableFieldViolations(&before, &updated); len(violations) > 0 {
				return ImmutableFieldError(violations)
			}
			if updated.ClientId != before.ClientId {
				return ImmutableFieldError([]string{"client_id"})
			}
			if updated.Currency != before.Currency {
				return ImmutableFieldError([]string{"currency"})
			}
		} else if input.ClientId != nil {
			if err := utils.ValidateResourceIdTx[Client](tx, companyId, *input.ClientId); err != nil {
				return err
			}
		}

		invoice = updated
		if err := tx.Model(&Invoice{}).
			Where("id = ?", invoice.ID).
			Updates(map[string]interface{}{
				"client_id":  invoice.ClientId,
				"issue_date": invoice.IssueDate,
				"due_date":   invoice.DueDate,
				"currency":   invoice.Currency,
			}).Error; err != nil {
			return err
		}
		return AppendEventLog(tx, EventActionUpdate, "invoices", invoice.ID, &before, &invoice, "Invoice updated.")
	})
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// UpdateInvoiceStatus performs a lifecycle transition. Draft leaves only
// through the issuance workflow, never through this path.
func UpdateInvoiceStatus(ctx context.Context, id int, to InvoiceStatus) (*Invoice, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok {
		return nil, errors.New("company id is required")
	}

	db := config.GetDB()
	var invoice Invoice
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := lockInvoiceRow(tx, companyId, id, false)
		if err != nil {
			return err
		}
		invoice = *locked
		if to == InvoiceStatusIssued && invoice.Status == InvoiceStatusDraft {
			return errors.New("drafts are issued through the issuance workflow")
		}
		if !CanTransitionInvoiceStatus(invoice.Status, to) {
			return fmt.Errorf("cannot transition invoice from %s to %s", invoice.Status, to)
		}
		before := invoice
		invoice.Status = to
		if err := tx.Model(&Invoice{}).
			Where("id = ?", invoice.ID).
			Update("status", to).Error; err != nil {
			return err
		}
		return AppendEventLog(tx, EventActionStatusChange, "invoices", invoice.ID, &before, &invoice,
			fmt.Sprintf("Invoice status changed from %s to %s.", before.Status, to))
	})
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// DeleteInvoice tombstones a draft. Issued invoices are voided, not deleted.
func DeleteInvoice(ctx context.Context, id int) (*Invoice, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok {
		return nil, errors.New("company id is required")
	}

	db := config.GetDB()
	var invoice Invoice
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := lockInvoiceRow(tx, companyId, id, false)
		if err != nil {
			return err
		}
		invoice = *locked
		if invoice.Status != InvoiceStatusDraft {
			return errors.New("only draft invoices can be deleted; void the invoice instead")
		}
		if err := tx.Delete(&invoice).Error; err != nil {
			return err
		}
		return AppendEventLog(tx, EventActionDelete, "invoices", invoice.ID, &invoice, nil, "Invoice draft deleted.")
	})
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// lockInvoiceRow reads the invoice row FOR UPDATE inside the caller's
// transaction. Under REPEATABLE READ a plain read is a consistent snapshot;
// status checks that gate mutations must block behind a concurrent issuance
// and see its committed result, so the read has to take the row lock.
func lockInvoiceRow(tx *gorm.DB, companyId int, invoiceId int, withItems bool) (*Invoice, error) {
	query := tx.Clauses(clause.Locking{Strength: "UPDATE"})
	if withItems {
		query = query.Preload("Items")
	}
	var invoice Invoice
	err := query.Where("company_id = ?", companyId).
		First(&invoice, invoiceId).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// lockDraftInvoice reloads the parent row under lock inside the caller's
// transaction and fails unless the stored status is still Draft. Item
// mutations race the issuance transaction; an in-memory status is not
// trustworthy here.
func lockDraftInvoice(tx *gorm.DB, companyId int, invoiceId int) (*Invoice, error) {
	invoice, err := lockInvoiceRow(tx, companyId, invoiceId, false)
	if err != nil {
		return nil, err
	}
	if invoice.Status != InvoiceStatusDraft {
		return nil, ImmutableFieldError([]string{"items"})
	}
	return invoice, nil
}

func CreateInvoiceItem(ctx context.Context, invoiceId int, input *NewInvoiceItem) (*InvoiceItem, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok {
		return nil, errors.New("company id is required")
	}

	db := config.GetDB()
	var item InvoiceItem
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := lockDraftInvoice(tx, companyId, invoiceId)
		if err != nil {
			return err
		}
		item = InvoiceItem{
			CompanyId:      companyId,
			InvoiceId:      invoice.ID,
			Description:    input.Description,
			Quantity:       input.Quantity,
			UnitPriceMinor: input.UnitPriceMinor,
			LineTotalMinor: LineTotalMinor(input.Quantity, input.UnitPriceMinor),
			Position:       input.Position,
		}
		if err := tx.Create(&item).Error; err != nil {
			return err
		}
		return recomputeInvoiceTotalsTx(tx, invoice)
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func UpdateInvoiceItem(ctx context.Context, id int, input *NewInvoiceItem) (*InvoiceItem, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok {
		return nil, errors.New("company id is required")
	}

	db := config.GetDB()
	var item InvoiceItem
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("company_id = ?", companyId).
			First(&item, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		invoice, err := lockDraftInvoice(tx, companyId, item.InvoiceId)
		if err != nil {
			return err
		}
		item.Description = input.Description
		item.Quantity = input.Quantity
		item.UnitPriceMinor = input.UnitPriceMinor
		item.LineTotalMinor = LineTotalMinor(input.Quantity, input.UnitPriceMinor)
		item.Position = input.Position
		if err := tx.Save(&item).Error; err != nil {
			return err
		}
		return recomputeInvoiceTotalsTx(tx, invoice)
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func DeleteInvoiceItem(ctx context.Context, id int) error {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok {
		return errors.New("company id is required")
	}

	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item InvoiceItem
		if err := tx.Where("company_id = ?", companyId).
			First(&item, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		invoice, err := lockDraftInvoice(tx, companyId, item.InvoiceId)
		if err != nil {
			return err
		}
		if err := tx.Delete(&item).Error; err != nil {
			return err
		}
		return recomputeInvoiceTotalsTx(tx, invoice)
	})
}

// recomputeInvoiceTotalsTx reloads the items and rewrites the stored totals
// from the invoice's current vat_rate, all within the caller's transaction.
func recomputeInvoiceTotalsTx(tx *gorm.DB, invoice *Invoice) error {
	var items []*InvoiceItem
	if err := tx.Where("invoice_id = ?", invoice.ID).
		Order("position asc, id asc").
		Find(&items).Error; err != nil {
		return err
	}
	totals := ComputeInvoiceTotals(items, invoice.VatRate)
	for _, item := range items {
		if err := tx.Model(&InvoiceItem{}).
			Where("id = ?", item.ID).
			Update("line_total_minor", item.LineTotalMinor).Error; err != nil {
			return err
		}
	}
	return tx.Model(&Invoice{}).
		Where("id = ?", invoice.ID).
		Updates(map[string]interface{}{
			"subtotal_minor": totals.SubtotalMinor,
			"vat_minor":      totals.VatMinor,
			"total_minor":    totals.TotalMinor,
		}).Error
}
