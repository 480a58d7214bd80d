package models

type InvoiceStatus string

const (
	InvoiceStatusDraft  InvoiceStatus = "Draft"
	InvoiceStatusIssued InvoiceStatus = "Issued"
	InvoiceStatusPaid   InvoiceStatus = "Paid"
	InvoiceStatusVoided InvoiceStatus = "Voided"
)

// allowed status transitions; draft is initial. Reflexive transitions among
// non-draft states are allowed for administrative corrections.
var invoiceStatusTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceStatusDraft:  {InvoiceStatusIssued},
	InvoiceStatusIssued: {InvoiceStatusIssued, InvoiceStatusPaid, InvoiceStatusVoided},
	InvoiceStatusPaid:   {InvoiceStatusIssued, InvoiceStatusPaid, InvoiceStatusVoided},
	InvoiceStatusVoided: {InvoiceStatusIssued, InvoiceStatusPaid, InvoiceStatusVoided},
}

func CanTransitionInvoiceStatus(from, to InvoiceStatus) bool {
	for _, allowed := range invoiceStatusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

type TaxTreatment string

const (
	TaxTreatmentDomestic TaxTreatment = "DOMESTIC"
	TaxTreatmentEuB2bRc  TaxTreatment = "EU_B2B_RC"
	TaxTreatmentEuB2c    TaxTreatment = "EU_B2C"
	TaxTreatmentNonEu    TaxTreatment = "NON_EU"
)

type VatIdentityStatus string

const (
	VatIdentityStatusPending VatIdentityStatus = "pending"
	VatIdentityStatusValid   VatIdentityStatus = "valid"
	VatIdentityStatusInvalid VatIdentityStatus = "invalid"
	VatIdentityStatusUnknown VatIdentityStatus = "unknown"
)

type EventAction string

const (
	EventActionCreate       EventAction = "Create"
	EventActionUpdate       EventAction = "Update"
	EventActionDelete       EventAction = "Delete"
	EventActionRestore      EventAction = "Restore"
	EventActionIssue        EventAction = "Issue"
	EventActionStatusChange EventAction = "StatusChange"
)

// permission keys consulted by the VAT decision engine
const (
	PermissionCrossBorderB2B = "cross_border_b2b"
	PermissionViesValidation = "vies_validation"
)

type JobType string

const (
	JobTypeVatValidation  JobType = "vat_validation"
	JobTypeDraftRecompute JobType = "draft_recompute"
	JobTypeInvoiceIssued  JobType = "invoice_issued"
)

const (
	OutboxStatusPending    = "PENDING"
	OutboxStatusProcessing = "PROCESSING"
	OutboxStatusSent       = "SENT"
	OutboxStatusFailed     = "FAILED"
	OutboxStatusDead       = "DEAD"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "Active"
	SubscriptionStatusPastDue  SubscriptionStatus = "PastDue"
	SubscriptionStatusCanceled SubscriptionStatus = "Canceled"
)
