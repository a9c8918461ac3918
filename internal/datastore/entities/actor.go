package entities

import "time"

// Actor is a registered community member.
type Actor struct {
	ID          string    `gorm:"primaryKey;type:varchar(64)"`
	DisplayName string    `gorm:"type:varchar(128);not null"`
	Email       *string   `gorm:"type:varchar(255);uniqueIndex"`
	Phone       string    `gorm:"type:varchar(32)"`
	IsAdmin     bool      `gorm:"not null;default:false"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for GORM.
func (Actor) TableName() string {
	return "actors"
}

// All returns every model managed by the store, in migration order.
func All() []any {
	return []any{&Actor{}, &Alert{}, &Vote{}, &View{}}
}
