// Package seed bootstraps a fresh install with the default account mapping
// so posting works before any tenant configuration.
package seed

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	accountingdomain "github.com/farmbooks/farmbooks/internal/accounting/domain"
	"gorm.io/gorm"
)

// EnsureDefaultAccountMapping writes the default role-to-account bindings for
// the tenant. Existing bindings are left untouched.
func EnsureDefaultAccountMapping(db *gorm.DB, tenantID int64) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if tenantID == 0 {
		return errors.New("seed tenant id is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for role, accountID := range accountingdomain.DefaultAccounts() {
			err := tx.WithContext(ctx).Exec(`
					INSERT INTO account_mappings (id, tenant_id, role, account_id, created_at)
					VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
					ON CONFLICT (tenant_id, role) DO NOTHING
				`,
				node.Generate(),
				snowflake.ID(tenantID),
				role,
				accountID,
			).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}
