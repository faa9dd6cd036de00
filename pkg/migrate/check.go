package migrate

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/yieldvault-backend/pkg/db/models"
)

// LedgerTables lists every table the ledger services read or write.
var LedgerTables = []any{
	&models.Account{},
	&models.ReferralEdge{},
	&models.LedgerEntry{},
	&models.WithdrawalWindow{},
	&models.OutboxEvent{},
}

// CheckLedgerSchema reports every ledger table missing from conn.
func CheckLedgerSchema(ctx context.Context, conn *gorm.DB) error {
	migrator := conn.WithContext(ctx).Migrator()
	var errs error
	for _, table := range LedgerTables {
		if !migrator.HasTable(table) {
			errs = multierr.Append(errs, fmt.Errorf("missing table %T", table))
		}
	}
	return errs
}
