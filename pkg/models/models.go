package models

// DashboardStats summarises the conversations visible to a principal
type DashboardStats struct {
	Conversations int64 `json:"conversations"`
	Open          int64 `json:"open"`
	InboundTotal  int64 `json:"in_total"`
}

// ConversationWithLock is a conversation annotated with its current reply lock holder
type ConversationWithLock struct {
	Conversation
	LockedBy *uint `json:"locked_by"`
}

// GetAllModels returns all models for GORM AutoMigrate
func GetAllModels() []interface{} {
	return []interface{}{
		// Identity
		&User{},

		// Messaging
		&WhatsAppNumber{},
		&Assignment{},
		&Conversation{},
		&Message{},
	}
}
