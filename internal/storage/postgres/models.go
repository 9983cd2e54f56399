package postgres

import "time"

// TurnModel maps to the "turns" table. List-valued and structured fields are
// stored as JSON text so the same model works on both backends.
type TurnModel struct {
	ID             uint      `gorm:"primaryKey;autoIncrement"`
	ConversationID string    `gorm:"type:varchar(64);not null;index:idx_turns_conversation"`
	UserID         string    `gorm:"type:varchar(128);not null;index:idx_turns_user"`
	Question       string    `gorm:"type:text;not null"`
	Answer         string    `gorm:"type:text;not null"`
	Conditions     string    `gorm:"type:text"` // JSON array of strings
	Drugs          string    `gorm:"type:text"` // JSON array of strings
	Intent         string    `gorm:"type:varchar(32);not null"`
	Mode           string    `gorm:"type:varchar(16);not null"`
	TurnType       string    `gorm:"type:varchar(16);not null"`
	Visualization  string    `gorm:"type:text"` // JSON payload, empty when none
	CreatedAt      time.Time `gorm:"not null;index"`
}

func (TurnModel) TableName() string { return "turns" }
