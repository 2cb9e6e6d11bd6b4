package gorm

import "time"

// Status values of accounts and owners.
const (
	StatusActive = "active"
	StatusFrozen = "frozen"
	StatusClosed = "closed"
)

// OwnerEntity is the party that owns accounts.
type OwnerEntity struct {
	ID       int64  `gorm:"primaryKey;autoIncrement:false"`
	TenantID string `gorm:"size:64;not null;index"`
	Name     string `gorm:"size:255"`
	Status   string `gorm:"size:16;not null"`
}

// TableName returns the table name for OwnerEntity.
func (OwnerEntity) TableName() string { return "account_owners" }

// AccountEntity is an interest-bearing account. Version is bumped on every posting and
// guards concurrent writers.
type AccountEntity struct {
	ID           int64   `gorm:"primaryKey;autoIncrement:false"`
	TenantID     string  `gorm:"size:64;not null;index:idx_accounts_tenant_status"`
	OwnerID      int64   `gorm:"not null;index"`
	Status       string  `gorm:"size:16;not null;index:idx_accounts_tenant_status"`
	Balance      float64 `gorm:"not null"`
	AnnualRate   float64 `gorm:"not null"`
	CurrencyCode string  `gorm:"size:3;not null"`
	LastPostedOn *time.Time
	Version      int64 `gorm:"not null;default:0"`
}

// TableName returns the table name for AccountEntity.
func (AccountEntity) TableName() string { return "accounts" }

// PostingEntity is one interest posting. At most one exists per account and business date.
type PostingEntity struct {
	ID           uint      `gorm:"primaryKey"`
	AccountID    int64     `gorm:"not null;uniqueIndex:idx_postings_account_date"`
	BusinessDate time.Time `gorm:"not null;uniqueIndex:idx_postings_account_date"`
	TenantID     string    `gorm:"size:64;not null"`
	RunID        string    `gorm:"size:36;not null"`
	Amount       float64   `gorm:"not null"`
	Days         int       `gorm:"not null"`
	CurrencyCode string    `gorm:"size:3;not null"`
	CreatedAt    time.Time
}

// TableName returns the table name for PostingEntity.
func (PostingEntity) TableName() string { return "interest_postings" }
