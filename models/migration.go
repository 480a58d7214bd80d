package models

import (
	"github.com/nordfaktur/invoicing_backend/config"
)

// MigrateModels runs the schema migration for every model in dependency
// order. Called once at startup after the database connection is ready.
func MigrateModels() error {
	db := config.GetDB()
	return db.AutoMigrate(
		&Company{},
		&User{},
		&Client{},
		&BankAccount{},
		&VatIdentity{},
		&VatRateEntry{},
		&ExchangeRate{},
		&Invoice{},
		&InvoiceItem{},
		&InvoiceSequence{},
		&Plan{},
		&PlanPermission{},
		&Subscription{},
		&Document{},
		&EventLog{},
		&JobRecord{},
	)
}
