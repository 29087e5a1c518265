package db

import (
	"gorm.io/gorm"

	"github.com/angelmondragon/fundledger-backend/pkg/db/models"
)

// LedgerModels lists every table owned by the service in dependency order.
func LedgerModels() []any {
	return []any{
		&models.FundingTarget{},
		&models.Contribution{},
		&models.FundingTargetTransition{},
		&models.DeferredPaymentEvent{},
		&models.OutboxEvent{},
		&models.OutboxDLQ{},
	}
}

// AutoMigrateSQLite builds the schema from model tags. Postgres deployments use
// the goose migrations instead; this path serves the embedded dev mode and tests.
func AutoMigrateSQLite(conn *gorm.DB) error {
	return conn.AutoMigrate(LedgerModels()...)
}
