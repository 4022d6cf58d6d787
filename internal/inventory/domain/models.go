package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	eventdomain "github.com/farmbooks/farmbooks/internal/event/domain"
	"github.com/shopspring/decimal"
)

// MovementType classifies an inventory movement.
type MovementType string

const (
	MovementTypeReceipt  MovementType = "RECEIPT"
	MovementTypeReversal MovementType = "REVERSAL"
)

// Balance is the running quantity and weighted-average unit cost for one
// (site, item) pair. Created lazily on first movement; never deleted.
type Balance struct {
	ID       snowflake.ID `gorm:"primaryKey"`
	TenantID snowflake.ID `gorm:"not null;index;uniqueIndex:ux_inventory_balances_item,priority:1"`
	SiteID   snowflake.ID `gorm:"not null;uniqueIndex:ux_inventory_balances_item,priority:2"`
	ItemID   string       `gorm:"type:text;not null;uniqueIndex:ux_inventory_balances_item,priority:3"`

	QtyOnHand      decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	AvgCostPerUnit decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	TotalValue     decimal.Decimal `gorm:"type:decimal(20,2);not null"`

	LastMovementID *snowflake.ID `gorm:""`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (Balance) TableName() string { return "inventory_balances" }

// Movement is one append-only audit row describing a signed quantity change.
type Movement struct {
	ID       snowflake.ID `gorm:"primaryKey"`
	TenantID snowflake.ID `gorm:"not null;index"`
	SiteID   snowflake.ID `gorm:"not null;index"`
	ItemID   string       `gorm:"type:text;not null;index"`

	EventID   snowflake.ID          `gorm:"not null;index"`
	EventType eventdomain.EventType `gorm:"type:text;not null"`

	MovementType MovementType    `gorm:"type:text;not null"`
	Qty          decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	UnitCost     decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	TotalCost    decimal.Decimal `gorm:"type:decimal(20,2);not null"`

	LotNumber       string     `gorm:"type:text"`
	ExpirationDate  *time.Time `gorm:""`
	StorageLocation string     `gorm:"type:text"`

	ReversesMovementID *snowflake.ID `gorm:""`

	CreatedAt time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (Movement) TableName() string { return "inventory_movements" }

// Apply folds one signed movement into the balance using weighted-average
// costing. The same arithmetic serves receipts and reversals: a reversal
// movement carries the negated quantity and cost of its original, so
// applying it cancels the original's effect exactly.
func (b *Balance) Apply(m *Movement) {
	currentValue := b.QtyOnHand.Mul(b.AvgCostPerUnit)
	newQty := b.QtyOnHand.Add(m.Qty)
	newValue := currentValue.Add(m.TotalCost)

	avg := decimal.Zero
	if newQty.IsPositive() {
		avg = newValue.DivRound(newQty, 2)
	}

	b.QtyOnHand = newQty
	b.AvgCostPerUnit = avg
	b.TotalValue = newQty.Mul(avg).Round(2)
	id := m.ID
	b.LastMovementID = &id
}
