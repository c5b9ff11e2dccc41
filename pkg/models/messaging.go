package models

import (
	"time"
)

// Message directions
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Conversation statuses
const (
	ConversationOpen    = "open"
	ConversationPending = "pending"
	ConversationDone    = "done"
)

// WhatsAppNumber represents a provider-registered phone identity
type WhatsAppNumber struct {
	BaseModel
	DisplayName   string `gorm:"size:200;not null" json:"display_name" validate:"required"`
	PhoneNumberID string `gorm:"size:64;uniqueIndex;not null" json:"phone_number_id" validate:"required"` // Meta phone_number_id
	IsActive      bool   `gorm:"default:true" json:"is_active"`
}

// TableName returns the table name for WhatsAppNumber
func (WhatsAppNumber) TableName() string {
	return "wa_numbers"
}

// Conversation is the thread between one number and one customer.
// (wa_number_id, customer_wa_id) is unique.
type Conversation struct {
	BaseModel
	WaNumberID    uint       `gorm:"column:wa_number_id;not null;uniqueIndex:idx_conversation_number_customer;index;constraint:OnDelete:CASCADE" json:"wa_number_id"`
	CustomerWaID  string     `gorm:"size:64;not null;uniqueIndex:idx_conversation_number_customer" json:"customer_wa_id"`
	Status        string     `gorm:"size:16;not null;default:'open'" json:"status"` // open, pending, done
	LastInboundAt *time.Time `json:"last_inbound_at"`
	LastMessageAt *time.Time `gorm:"index" json:"last_message_at"`

	// Relations
	WaNumber *WhatsAppNumber `gorm:"foreignKey:WaNumberID" json:"-"`
}

// Message is an append-only entry of a conversation
type Message struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ConversationID uint      `gorm:"not null;index;constraint:OnDelete:CASCADE" json:"conversation_id"`
	Direction      string    `gorm:"size:3;not null" json:"direction"` // in, out
	Body           *string   `gorm:"type:text" json:"body"`
	MetaMessageID  *string   `gorm:"size:128;uniqueIndex" json:"meta_message_id"` // idempotency key for inbound
	SentAt         time.Time `gorm:"not null;index" json:"sent_at"`
	CreatedAt      time.Time `json:"created_at"`

	// Relations
	Conversation *Conversation `gorm:"foreignKey:ConversationID" json:"-"`
}
