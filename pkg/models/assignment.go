package models

// Assignment grants an employee access to one WhatsApp number
type Assignment struct {
	ID         uint `gorm:"primaryKey" json:"id"`
	UserID     uint `gorm:"not null;uniqueIndex:uq_user_number;index;constraint:OnDelete:CASCADE" json:"user_id"`
	WaNumberID uint `gorm:"column:wa_number_id;not null;uniqueIndex:uq_user_number;index;constraint:OnDelete:CASCADE" json:"wa_number_id"`

	// Relationships
	User     *User           `gorm:"foreignKey:UserID" json:"-"`
	WaNumber *WhatsAppNumber `gorm:"foreignKey:WaNumberID" json:"-"`
}

// TableName returns the table name for Assignment
func (Assignment) TableName() string {
	return "assignments"
}
