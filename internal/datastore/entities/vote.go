package entities

import "time"

// Vote is one actor's verdict on one alert. Rows are immutable; the composite
// unique index enforces one vote per actor per alert.
type Vote struct {
	ID        uint      `gorm:"primaryKey"`
	AlertID   string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_votes_alert_voter,priority:1"`
	VoterID   string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_votes_alert_voter,priority:2;index"`
	Verdict   bool      `gorm:"not null"` // true confirms, false rejects
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TableName returns the table name for GORM.
func (Vote) TableName() string {
	return "votes"
}

// View records that an actor has opened an alert. One row per actor per alert.
type View struct {
	ID        uint      `gorm:"primaryKey"`
	AlertID   string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_views_alert_viewer,priority:1"`
	ViewerID  string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_views_alert_viewer,priority:2"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TableName returns the table name for GORM.
func (View) TableName() string {
	return "views"
}
