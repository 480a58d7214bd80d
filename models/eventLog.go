package models

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/nordfaktur/invoicing_backend/utils"
	"gorm.io/gorm"
)

// EventLog is the append-only audit trail. Rows are written by the same
// transaction that performs the mutation (delete + audit commit or roll back
// together) and are never updated or removed.
type EventLog struct {
	ID            int         `gorm:"primary_key" json:"id"`
	CompanyId     int         `gorm:"index" json:"company_id"`
	Action        EventAction `gorm:"size:20;not null" json:"action"`
	Before        string      `gorm:"type:text" json:"before"`
	After         string      `gorm:"type:text" json:"after"`
	Description   string      `gorm:"type:text;not null" json:"description"`
	ReferenceId   int         `gorm:"index" json:"reference_id"`
	ReferenceType string      `gorm:"size:100" json:"reference_type"`
	UserId        int         `gorm:"index" json:"user_id"`
	UserName      string      `gorm:"size:100" json:"user_name"`
	CreatedAt     time.Time   `gorm:"autoCreateTime" json:"created_at"`
}

// AppendEventLog writes one audit row inside the caller's transaction,
// pulling actor and tenant from the transaction's context.
func AppendEventLog(tx *gorm.DB,
	action EventAction,
	referenceType string,
	referenceId int,
	before interface{},
	after interface{},
	description string) error {

	ctx := tx.Statement.Context
	if ctx == nil {
		return errors.New("event log requires a request context")
	}

	// background jobs carry a company id but no user
	companyId, _ := utils.GetCompanyIdFromContext(ctx)
	userId, _ := utils.GetUserIdFromContext(ctx)
	userName, _ := utils.GetUserNameFromContext(ctx)

	var beforeJSON, afterJSON []byte
	if before != nil {
		beforeJSON, _ = json.Marshal(before)
	}
	if after != nil {
		afterJSON, _ = json.Marshal(after)
	}

	entry := EventLog{
		CompanyId:     companyId,
		Action:        action,
		Before:        string(beforeJSON),
		After:         string(afterJSON),
		Description:   description,
		ReferenceId:   referenceId,
		ReferenceType: referenceType,
		UserId:        userId,
		UserName:      userName,
	}
	return tx.Create(&entry).Error
}
