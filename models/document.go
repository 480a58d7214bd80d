package models

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/nordfaktur/invoicing_backend/config"
	"github.com/nordfaktur/invoicing_backend/utils"
	"gorm.io/gorm"
)

// Document is a file attached to an invoice (signed PDF, delivery note),
// stored in GCS under an unguessable object name.
type Document struct {
	ID          int       `gorm:"primary_key" json:"id"`
	CompanyId   int       `gorm:"index" json:"company_id"`
	InvoiceId   int       `gorm:"index" json:"invoice_id"`
	FileName    string    `gorm:"size:255;not null" json:"file_name"`
	ObjectName  string    `gorm:"size:255;not null" json:"object_name"`
	ContentType string    `gorm:"size:100" json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type NewDocument struct {
	InvoiceId   int    `json:"invoice_id" binding:"required"`
	FileName    string `json:"file_name" binding:"required"`
	ContentType string `json:"content_type"`
	Content     string `json:"content" binding:"required"` // base64
}

func AttachDocument(ctx context.Context, input *NewDocument) (*Document, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok {
		return nil, errors.New("company id is required")
	}
	if err := utils.ValidateResourceId[Invoice](ctx, companyId, input.InvoiceId); err != nil {
		return nil, err
	}

	objectName := fmt.Sprintf("documents/%d/%s%s",
		companyId, utils.GenerateUniqueFilename(), filepath.Ext(input.FileName))
	if err := utils.SaveBase64ToGCS(ctx, objectName, input.ContentType, input.Content); err != nil {
		return nil, err
	}

	doc := Document{
		CompanyId:   companyId,
		InvoiceId:   input.InvoiceId,
		FileName:    input.FileName,
		ObjectName:  objectName,
		ContentType: input.ContentType,
		SizeBytes:   int64(len(input.Content) * 3 / 4),
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&doc).Error; err != nil {
		// keep storage consistent with the table
		if delErr := utils.DeleteObjectFromGCS(ctx, objectName); delErr != nil {
			config.LogError(config.GetLogger(), "document.go", "AttachDocument", "DeleteObjectFromGCS", objectName, delErr)
		}
		return nil, err
	}
	return &doc, nil
}

func GetDocumentsByInvoice(ctx context.Context, invoiceId int) ([]*Document, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok {
		return nil, errors.New("company id is required")
	}
	db := config.GetDB()

	var docs []*Document
	err := db.WithContext(ctx).
		Where("company_id = ? AND invoice_id = ?", companyId, invoiceId).
		Order("created_at desc").
		Find(&docs).Error
	return docs, err
}

func DeleteDocument(ctx context.Context, id int) error {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok {
		return errors.New("company id is required")
	}
	db := config.GetDB()

	var doc Document
	err := db.WithContext(ctx).
		Where("company_id = ?", companyId).
		First(&doc, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorRecordNotFound
	}
	if err != nil {
		return err
	}

	if err := db.WithContext(ctx).Delete(&doc).Error; err != nil {
		return err
	}
	if err := utils.DeleteObjectFromGCS(ctx, doc.ObjectName); err != nil {
		config.LogError(config.GetLogger(), "document.go", "DeleteDocument", "DeleteObjectFromGCS", doc.ObjectName, err)
	}
	return nil
}
