package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nordfaktur/invoicing_backend/config"
	"github.com/nordfaktur/invoicing_backend/models"
	"github.com/nordfaktur/invoicing_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PreconditionError is a structured issuance refusal: human-readable,
// non-retryable, and raised before any state is touched.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return e.Reason
}

func IsPreconditionError(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}

type IssueResult struct {
	Invoice         *models.Invoice          `json:"invoice"`
	Decision        models.VatDecision       `json:"decision"`
	ClientVatStatus models.VatIdentityStatus `json:"client_vat_status"`
	ClientVatId     string                   `json:"client_vat_id"`
}

// IssueInvoice checks the issuance preconditions in order (first failure
// wins, nothing mutated), runs the VAT decision, then commits number
// allocation, snapshot, totals and the status flip in one transaction.
func IssueInvoice(ctx context.Context, invoiceId int) (*IssueResult, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == 0 {
		return nil, &PreconditionError{Reason: "No company in request context."}
	}

	invoice, err := models.GetInvoice(ctx, invoiceId)
	if errors.Is(err, utils.ErrorRecordNotFound) {
		return nil, &PreconditionError{Reason: "Invoice not found for this company."}
	}
	if err != nil {
		return nil, err
	}
	if invoice.Status != models.InvoiceStatusDraft {
		return nil, &PreconditionError{Reason: fmt.Sprintf("Invoice is already %s; only drafts can be issued.", invoice.Status)}
	}

	company, err := models.CurrentCompany(ctx)
	if err != nil {
		return nil, err
	}

	accountCount, err := models.CompanyBankAccountCount(ctx, companyId)
	if err != nil {
		return nil, err
	}
	if accountCount == 0 {
		return nil, &PreconditionError{Reason: "Add a bank account before issuing invoices."}
	}
	if invoice.Currency == "" {
		return nil, &PreconditionError{Reason: "Invoice has no currency."}
	}
	hasCurrencyAccount, err := models.CompanyHasBankAccountInCurrency(ctx, companyId, invoice.Currency)
	if err != nil {
		return nil, err
	}
	if !hasCurrencyAccount {
		return nil, &PreconditionError{Reason: fmt.Sprintf("No bank account in %s; add one before issuing.", invoice.Currency)}
	}

	if missing := company.MissingLegalIdentityFields(); len(missing) > 0 {
		return nil, &PreconditionError{Reason: "Complete your company details before issuing: " + strings.Join(missing, ", ") + "."}
	}

	client, err := models.GetClient(ctx, invoice.ClientId)
	if err != nil {
		return nil, err
	}
	clientVatStatus := resolveClientVatStatus(ctx, client)
	if clientVatStatus == models.VatIdentityStatusPending || clientVatStatus == models.VatIdentityStatusUnknown {
		return nil, &PreconditionError{Reason: "Client VAT id validation is still outstanding."}
	}

	sellerProfile, err := company.SellerProfile(ctx)
	if err != nil {
		return nil, err
	}
	buyerProfile, err := client.BuyerProfile(ctx)
	if err != nil {
		return nil, err
	}
	perms := models.IssuerPermissionsForCompany(ctx, companyId)
	decision := models.DecideVatTreatment(sellerProfile, buyerProfile, perms)

	// safety override: never apply reverse charge on an invalid or missing
	// VAT id, whatever the rule engine said
	if decision.Treatment == models.TaxTreatmentEuB2bRc &&
		(clientVatStatus == models.VatIdentityStatusInvalid || client.VatId == "") {
		decision = models.VatDecision{
			Treatment: models.TaxTreatmentEuB2c,
			Rate:      sellerProfile.EffectiveVatRate(),
		}
	}

	sellerSnapshot, err := utils.MarshalToJSON(sellerSnapshotFor(company, sellerProfile))
	if err != nil {
		return nil, err
	}
	buyerSnapshot, err := utils.MarshalToJSON(buyerSnapshotFor(client, clientVatStatus))
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	var issued models.Invoice
	// the advisory lock is connection-scoped: acquire on a pinned connection
	// before the transaction begins and release only after it committed
	err = db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		if err := AcquireIssuanceLock(conn, companyId); err != nil {
			return err
		}
		defer ReleaseIssuanceLock(conn, companyId)

		return conn.Transaction(func(tx *gorm.DB) error {
			// re-read under lock; another request may have issued concurrently
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Preload("Items").
				Where("company_id = ?", companyId).
				First(&issued, invoice.ID).Error; err != nil {
				return err
			}
			if issued.Status != models.InvoiceStatusDraft {
				return &PreconditionError{Reason: fmt.Sprintf("Invoice is already %s; only drafts can be issued.", issued.Status)}
			}
			before := issued

			now := time.Now().UTC()
			issueDate := now
			if issued.IssueDate != nil {
				issueDate = *issued.IssueDate
			}

			number, err := models.NextInvoiceNumber(tx, company, issueDate)
			if err != nil {
				return err
			}

			totals := models.ComputeInvoiceTotals(issued.Items, decision.Rate)

			issued.Number = &number
			issued.IssueDate = &issueDate
			issued.TaxTreatment = decision.Treatment
			issued.VatRate = decision.Rate
			issued.VatReasonText = decision.Reason
			issued.VatDecidedAt = &now
			issued.ClientVatStatusSnapshot = &clientVatStatus
			issued.ClientVatIdSnapshot = client.VatId
			issued.SellerSnapshot = sellerSnapshot
			issued.BuyerSnapshot = buyerSnapshot
			issued.SubtotalMinor = totals.SubtotalMinor
			issued.VatMinor = totals.VatMinor
			issued.TotalMinor = totals.TotalMinor
			issued.Status = models.InvoiceStatusIssued

			if err := tx.Model(&models.Invoice{}).
				Where("id = ?", issued.ID).
				Updates(map[string]interface{}{
					"number":                     issued.Number,
					"issue_date":                 issued.IssueDate,
					"tax_treatment":              issued.TaxTreatment,
					"vat_rate":                   issued.VatRate,
					"vat_reason_text":            issued.VatReasonText,
					"vat_decided_at":             issued.VatDecidedAt,
					"client_vat_status_snapshot": issued.ClientVatStatusSnapshot,
					"client_vat_id_snapshot":     issued.ClientVatIdSnapshot,
					"seller_snapshot":            issued.SellerSnapshot,
					"buyer_snapshot":             issued.BuyerSnapshot,
					"subtotal_minor":             issued.SubtotalMinor,
					"vat_minor":                  issued.VatMinor,
					"total_minor":                issued.TotalMinor,
					"status":                     issued.Status,
				}).Error; err != nil {
				return err
			}
			for _, item := range issued.Items {
				if err := tx.Model(&models.InvoiceItem{}).
					Where("id = ?", item.ID).
					Update("line_total_minor", item.LineTotalMinor).Error; err != nil {
					return err
				}
			}

			if err := models.AppendEventLog(tx, models.EventActionIssue, "invoices", issued.ID, &before, &issued,
				fmt.Sprintf("Invoice %s issued.", number)); err != nil {
				return err
			}
			return models.EnqueueJob(ctx, tx, companyId, models.JobTypeInvoiceIssued, "invoices", issued.ID, nil)
		})
	})
	if err != nil {
		return nil, err
	}

	return &IssueResult{
		Invoice:         &issued,
		Decision:        decision,
		ClientVatStatus: clientVatStatus,
		ClientVatId:     client.VatId,
	}, nil
}

// resolveClientVatStatus maps the client's identity link onto a status: no
// VAT id counts as invalid, an unlinked id as unknown, otherwise whatever
// the registry last recorded.
func resolveClientVatStatus(ctx context.Context, client *models.Client) models.VatIdentityStatus {
	if client.VatId == "" {
		return models.VatIdentityStatusInvalid
	}
	if client.VatIdentityId == nil {
		return models.VatIdentityStatusUnknown
	}
	identity, err := models.GetVatIdentity(ctx, *client.VatIdentityId)
	if err != nil {
		config.LogError(config.GetLogger(), "issueInvoiceWorkflow.go", "resolveClientVatStatus", "GetVatIdentity", *client.VatIdentityId, err)
		return models.VatIdentityStatusUnknown
	}
	return identity.Status
}

type sellerSnapshot struct {
	Name               string `json:"name"`
	CountryCode        string `json:"country_code"`
	RegistrationNumber string `json:"registration_number"`
	TaxId              string `json:"tax_id"`
	AddressLine1       string `json:"address_line1"`
	AddressLine2       string `json:"address_line2"`
	City               string `json:"city"`
	PostalCode         string `json:"postal_code"`
	VatRate            string `json:"vat_rate"`
}

func sellerSnapshotFor(company *models.Company, profile models.SellerProfile) sellerSnapshot {
	return sellerSnapshot{
		Name:               company.Name,
		CountryCode:        company.CountryCode,
		RegistrationNumber: company.RegistrationNumber,
		TaxId:              company.TaxIdentifier,
		AddressLine1:       company.AddressLine1,
		AddressLine2:       company.AddressLine2,
		City:               company.City,
		PostalCode:         company.PostalCode,
		VatRate:            profile.EffectiveVatRate().StringFixed(2),
	}
}

type buyerSnapshot struct {
	Name         string `json:"name"`
	CountryCode  string `json:"country_code"`
	VatId        string `json:"vat_id"`
	VatStatus    string `json:"vat_status"`
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2"`
	City         string `json:"city"`
	PostalCode   string `json:"postal_code"`
}

func buyerSnapshotFor(client *models.Client, status models.VatIdentityStatus) buyerSnapshot {
	return buyerSnapshot{
		Name:         client.Name,
		CountryCode:  client.CountryCode,
		VatId:        client.VatId,
		VatStatus:    string(status),
		AddressLine1: client.AddressLine1,
		AddressLine2: client.AddressLine2,
		City:         client.City,
		PostalCode:   client.PostalCode,
	}
}
