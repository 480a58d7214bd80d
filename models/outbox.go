package models

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nordfaktur/invoicing_backend/config"
	"github.com/nordfaktur/invoicing_backend/utils"
	"gorm.io/gorm"
)

// JobRecord is the transactional outbox: write paths create the record
// inside their own DB transaction and the dispatcher publishes to Pub/Sub
// after commit. A failed business transaction therefore never leaks a job.
type JobRecord struct {
	ID              int        `gorm:"primary_key" json:"id"`
	CompanyId       int        `gorm:"index" json:"company_id"`
	JobType         JobType    `gorm:"size:50;index;not null" json:"job_type"`
	ReferenceType   string     `gorm:"size:100" json:"reference_type"`
	ReferenceId     int        `gorm:"index" json:"reference_id"`
	Payload         []byte     `gorm:"type:mediumblob" json:"payload"`
	Status          string     `gorm:"size:20;index;not null;default:PENDING" json:"status"`
	Attempts        int        `gorm:"default:0" json:"attempts"`
	NextAttemptAt   *time.Time `gorm:"index" json:"next_attempt_at"`
	LockedAt        *time.Time `json:"locked_at"`
	LockedBy        *string    `gorm:"size:64" json:"locked_by"`
	LastError       *string    `gorm:"size:1000" json:"last_error"`
	PublishedAt     *time.Time `json:"published_at"`
	PubSubMessageId *string    `gorm:"size:64" json:"pub_sub_message_id"`
	CorrelationId   string     `gorm:"size:64" json:"correlation_id"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// EnqueueJob writes an outbox record inside the caller's transaction.
// companyId may be zero for global jobs (VAT identity validation is shared
// across tenants).
func EnqueueJob(ctx context.Context, tx *gorm.DB, companyId int, jobType JobType, referenceType string, referenceId int, payload []byte) error {
	record := JobRecord{
		CompanyId:     companyId,
		JobType:       jobType,
		ReferenceType: referenceType,
		ReferenceId:   referenceId,
		Payload:       payload,
		Status:        OutboxStatusPending,
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}
	return tx.Create(&record).Error
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

func ConvertToJobMessage(record JobRecord) config.JobMessage {
	return config.JobMessage{
		ID:            record.ID,
		CompanyId:     record.CompanyId,
		JobType:       string(record.JobType),
		ReferenceId:   record.ReferenceId,
		ReferenceType: record.ReferenceType,
		Payload:       record.Payload,
		EnqueuedAt:    record.CreatedAt,
		CorrelationId: record.CorrelationId,
	}
}

// Per-type retry schedules: the attempt index selects the delay before the
// next attempt; a job that has exhausted its schedule goes DEAD.
var jobBackoffSchedules = map[JobType][]time.Duration{
	JobTypeVatValidation:  {10 * time.Minute, 30 * time.Minute, 120 * time.Minute},
	JobTypeDraftRecompute: {1 * time.Minute, 5 * time.Minute, 15 * time.Minute},
	JobTypeInvoiceIssued:  {1 * time.Minute, 5 * time.Minute, 15 * time.Minute},
}

func JobBackoffSchedule(jobType JobType) []time.Duration {
	if schedule, ok := jobBackoffSchedules[jobType]; ok {
		return schedule
	}
	return jobBackoffSchedules[JobTypeDraftRecompute]
}

// JobMaxAttempts bounds total processing attempts to the schedule length.
func JobMaxAttempts(jobType JobType) int {
	return len(JobBackoffSchedule(jobType))
}

// JobRetryDelay picks the delay after a failed attempt (1-based), capped at
// the schedule's last entry.
func JobRetryDelay(jobType JobType, attempt int) time.Duration {
	schedule := JobBackoffSchedule(jobType)
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(schedule) {
		attempt = len(schedule)
	}
	return schedule[attempt-1]
}
