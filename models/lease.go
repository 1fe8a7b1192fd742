// models/lease.go
package models

// Lease is a named lock shared by every instance on the same database.
// ExpiresAt is unix milliseconds so expiry compares as a plain integer on
// every driver.
type Lease struct {
	Name      string `json:"name" gorm:"primaryKey"`
	Holder    string `json:"holder" gorm:"not null"`
	ExpiresAt int64  `json:"expires_at" gorm:"not null;index"`
}

func (Lease) TableName() string { return "leases" }
