package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// AccountRole is a semantic chart-of-accounts role the posting rules resolve
// through; rules never hard-code account identifiers.
type AccountRole string

const (
	RoleAccountsPayable       AccountRole = "accountsPayable"
	RoleCash                  AccountRole = "cash"
	RoleInventory             AccountRole = "inventory"
	RolePurchasePriceVariance AccountRole = "purchasePriceVariance"
	RoleShippingExpense       AccountRole = "shippingExpense"
)

const inventoryRolePrefix = "inventory:"

// InventoryRoleFor returns the per-category inventory role key.
func InventoryRoleFor(category string) AccountRole {
	return AccountRole(inventoryRolePrefix + category)
}

// AccountMapping is one tenant-configured role-to-account binding.
type AccountMapping struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	TenantID  snowflake.ID `gorm:"not null;index;uniqueIndex:ux_account_mappings_role,priority:1"`
	Role      AccountRole  `gorm:"type:text;not null;uniqueIndex:ux_account_mappings_role,priority:2"`
	AccountID string       `gorm:"type:text;not null"`
	CreatedAt time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (AccountMapping) TableName() string { return "account_mappings" }

// AccountSet is a resolved role-to-account view consumed by the posting rules.
type AccountSet map[AccountRole]string

// Resolve returns the account bound to role.
func (a AccountSet) Resolve(role AccountRole) (string, error) {
	if id, ok := a[role]; ok && id != "" {
		return id, nil
	}
	return "", &AccountNotMappedError{Role: role}
}

// InventoryFor resolves the inventory account for an item category, falling
// back to the plain inventory role when no per-category mapping exists.
func (a AccountSet) InventoryFor(category string) (string, error) {
	if category != "" {
		if id, ok := a[InventoryRoleFor(category)]; ok && id != "" {
			return id, nil
		}
	}
	return a.Resolve(RoleInventory)
}

// DefaultAccounts is the static default mapping used when a tenant has not
// configured any bindings.
func DefaultAccounts() AccountSet {
	return AccountSet{
		RoleAccountsPayable:       "accounts-payable",
		RoleCash:                  "cash-operating",
		RoleInventory:             "feed-inventory",
		RolePurchasePriceVariance: "purchase-price-variance",
		RoleShippingExpense:       "shipping-expense",
	}
}

// LoadAccounts returns the tenant's account set: the defaults overlaid with
// any configured mappings. Read-only; safe inside a posting transaction
// before any write is issued.
func LoadAccounts(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID) (AccountSet, error) {
	var mappings []AccountMapping
	if err := tx.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Find(&mappings).Error; err != nil {
		return nil, err
	}

	accounts := DefaultAccounts()
	for _, m := range mappings {
		accounts[m.Role] = m.AccountID
	}
	return accounts, nil
}
