// Package entities defines the GORM models of the alert store.
package entities

import "time"

// Alert is a community-reported safety incident.
// ConfirmedCount and RejectedCount mirror the vote ledger and are written only
// by the tally step; ViewCount mirrors the views table.
type Alert struct {
	ID             string     `gorm:"primaryKey;type:varchar(36)"`
	Reason         string     `gorm:"type:varchar(64);not null;index"`
	Description    string     `gorm:"type:text;not null"`
	Location       string     `gorm:"type:varchar(255);not null"`
	Latitude       *float64   `gorm:"default:null"`
	Longitude      *float64   `gorm:"default:null"`
	Urgency        string     `gorm:"type:varchar(10);not null"` // 'low', 'medium', 'high'
	AuthorID       string     `gorm:"type:varchar(64);not null;index"`
	Media          []string   `gorm:"serializer:json;type:text"`
	ConfirmedCount int        `gorm:"not null;default:0"`
	RejectedCount  int        `gorm:"not null;default:0"`
	ViewCount      int        `gorm:"not null;default:0"`
	State          string     `gorm:"type:varchar(16);not null;index"` // 'pending', 'confirmed', 'fake', 'resolved'
	CreatedAt      time.Time  `gorm:"autoCreateTime;index"`
	ResolvedAt     *time.Time `gorm:"default:null"`
	LastUpdatedAt  *time.Time `gorm:"default:null"`
}

// TableName returns the table name for GORM.
func (Alert) TableName() string {
	return "alerts"
}

// Owner returns the author id, used by the authorization gate.
func (a *Alert) Owner() string {
	return a.AuthorID
}
