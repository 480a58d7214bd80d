package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/nordfaktur/invoicing_backend/config"
	"github.com/nordfaktur/invoicing_backend/models"
	"github.com/nordfaktur/invoicing_backend/utils"
	"github.com/sirupsen/logrus"
)

// ProcessJobMessage routes one delivered job to its workflow. Returning an
// error makes the delivery layer nack, so the scheduler's retry policy
// applies; unknown job types are dropped instead of retried forever.
func ProcessJobMessage(ctx context.Context, logger *logrus.Logger, m config.JobMessage) error {
	switch models.JobType(m.JobType) {
	case models.JobTypeVatValidation:
		return ProcessVatValidationJob(ctx, m.ReferenceId)
	case models.JobTypeDraftRecompute:
		return RecomputeDraftInvoices(ctx, m.CompanyId)
	case models.JobTypeInvoiceIssued:
		return ProcessInvoiceIssuedJob(ctx, m.ReferenceId)
	default:
		logger.WithFields(logrus.Fields{
			"field":     "ProcessJobMessage",
			"job_type":  m.JobType,
			"record_id": m.ID,
		}).Warn("dropping job with unknown type")
		return nil
	}
}

// ProcessInvoiceIssuedJob runs the post-issuance follow-ups: the buyer's
// VAT identity gets a staleness check so long-lived clients are revalidated
// as they keep being invoiced. Idempotent; re-delivery is harmless.
func ProcessInvoiceIssuedJob(ctx context.Context, invoiceId int) error {
	logger := config.GetLogger()

	invoice, err := models.GetInvoice(ctx, invoiceId)
	if errors.Is(err, utils.ErrorRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if invoice.Status == models.InvoiceStatusDraft {
		return fmt.Errorf("invoice %d delivered as issued but is still a draft", invoiceId)
	}

	var client models.Client
	db := config.GetDB()
	if err := db.WithContext(ctx).First(&client, invoice.ClientId).Error; err != nil {
		return err
	}
	if client.VatIdentityId != nil {
		if _, err := models.EnqueueValidationIfStale(ctx, *client.VatIdentityId); err != nil {
			config.LogError(logger, "processJob.go", "ProcessInvoiceIssuedJob", "EnqueueValidationIfStale", *client.VatIdentityId, err)
		}
	}

	logger.WithFields(logrus.Fields{
		"field":      "ProcessInvoiceIssuedJob",
		"company_id": invoice.CompanyId,
		"invoice_id": invoice.ID,
		"number":     utils.DereferencePtr(invoice.Number, ""),
	}).Info("issued invoice follow-up complete")
	return nil
}
