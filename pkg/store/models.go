package store

import "time"

// receiptRow is the gorm model for the allocation_receipts table.
type receiptRow struct {
	ID         string `gorm:"column:id;primaryKey"`
	Allocation string `gorm:"column:allocation;index"`
	Fees       string `gorm:"column:fees"` // decimal string
	Signature  string `gorm:"column:signature"`
}

func (receiptRow) TableName() string { return "allocation_receipts" }

// summaryRow is the gorm model for the allocation_summaries table.
type summaryRow struct {
	Allocation    string     `gorm:"column:allocation;primaryKey"`
	ClosedAt      *time.Time `gorm:"column:closed_at"`
	CollectedFees string     `gorm:"column:collected_fees"`
	WithdrawnFees string     `gorm:"column:withdrawn_fees"`
}

func (summaryRow) TableName() string { return "allocation_summaries" }

// voucherRow is the gorm model for the vouchers table.
type voucherRow struct {
	Allocation string `gorm:"column:allocation;primaryKey"`
	Amount     string `gorm:"column:amount"`
	Signature  string `gorm:"column:signature"`
}

func (voucherRow) TableName() string { return "vouchers" }
