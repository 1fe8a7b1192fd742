// models/credit_account.go
package models

import "time"

// CreditAccount mirrors the usage ledger kept for each customer account:
// how many document generations they may run in total and how many they used.
type CreditAccount struct {
	AccountRef          string    `json:"account_ref" gorm:"primaryKey"`
	Email               string    `json:"email" gorm:"uniqueIndex"`
	LifetimeGenerations int64     `json:"lifetime_generations" gorm:"not null;default:0"`
	GenerationsUsed     int64     `json:"generations_used" gorm:"not null;default:0"`
	UpdatedAt           time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// CreditGrant records an applied allowance increase under its idempotency
// key. A replayed key finds its row and changes nothing.
type CreditGrant struct {
	Key        string    `json:"key" gorm:"primaryKey"`
	AccountRef string    `json:"account_ref" gorm:"index;not null"`
	Amount     int64     `json:"amount" gorm:"not null"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
}
