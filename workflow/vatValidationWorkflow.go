package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/nordfaktur/invoicing_backend/config"
	"github.com/nordfaktur/invoicing_backend/models"
	"github.com/nordfaktur/invoicing_backend/utils"
	"github.com/nordfaktur/invoicing_backend/vies"
)

// ValidationProvider abstracts the external VAT-id check so the job logic
// can be exercised without network access.
type ValidationProvider interface {
	CheckVat(ctx context.Context, countryCode string, vatNumber string) (*vies.CheckResult, error)
}

var validationProvider ValidationProvider = vies.NewClient()

// SetValidationProvider swaps the provider; tests use it to inject a fake.
func SetValidationProvider(p ValidationProvider) {
	validationProvider = p
}

// ProcessVatValidationJob runs one validation attempt for an identity. A
// provider failure is recorded on the identity and returned so the outbox
// retry policy reschedules the job; a successful answer, including a clean
// "invalid", completes it.
func ProcessVatValidationJob(ctx context.Context, identityId int) error {
	logger := config.GetLogger()

	identity, err := models.GetVatIdentity(ctx, identityId)
	if errors.Is(err, utils.ErrorRecordNotFound) {
		// identity removed since enqueue; nothing to validate
		return nil
	}
	if err != nil {
		return err
	}

	result, provErr := validationProvider.CheckVat(ctx, identity.CountryCode, identity.VatId)
	if provErr != nil {
		config.LogError(logger, "vatValidationWorkflow.go", "ProcessVatValidationJob", "CheckVat", identity.ID, provErr)
		if applyErr := models.ApplyValidationFailure(ctx, identity.ID, provErr); applyErr != nil {
			config.LogError(logger, "vatValidationWorkflow.go", "ProcessVatValidationJob", "ApplyValidationFailure", identity.ID, applyErr)
		}
		return provErr
	}

	checkedAt := result.CheckedAt
	if checkedAt.IsZero() {
		checkedAt = time.Now().UTC()
	}
	return models.ApplyValidationSuccess(ctx, identity.ID,
		models.VatIdentityStatus(result.Status),
		result.CompanyName, result.CompanyAddress, checkedAt)
}
