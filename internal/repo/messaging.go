package repo

import (
	"context"
	"errors"
	"time"

	"wainbox/pkg/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InboundMessage is one customer message to persist
type InboundMessage struct {
	NumberID      uint
	CustomerWaID  string
	Body          *string
	MetaMessageID *string
	SentAt        time.Time
}

// InboundResult describes what RecordInbound persisted
type InboundResult struct {
	Conversation        *models.Conversation
	Message             *models.Message
	ConversationCreated bool
	// Duplicate is true when a message with the same Meta ID already existed
	Duplicate bool
}

// ConversationRepository handles conversation data access and the
// message write paths that mutate conversation state
type ConversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository creates a new conversation repository
func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// GetByID gets a conversation by ID
func (r *ConversationRepository) GetByID(ctx context.Context, id uint) (*models.Conversation, error) {
	var conversation models.Conversation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&conversation).Error
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

// FindByNumberAndCustomer gets the conversation of a (number, customer) pair
func (r *ConversationRepository) FindByNumberAndCustomer(ctx context.Context, numberID uint, customerWaID string) (*models.Conversation, error) {
	return findConversation(r.db.WithContext(ctx), numberID, customerWaID)
}

// ListByNumber lists the conversations of a number, most recent activity first
func (r *ConversationRepository) ListByNumber(ctx context.Context, numberID uint, limit, offset int) ([]models.Conversation, error) {
	var conversations []models.Conversation
	query := r.db.WithContext(ctx).
		Where("wa_number_id = ?", numberID).
		Order("last_message_at DESC").
		Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit).Offset(offset)
	}
	err := query.Find(&conversations).Error
	return conversations, err
}

// Stats counts conversations and inbound messages across numberIDs
func (r *ConversationRepository) Stats(ctx context.Context, numberIDs []uint) (models.DashboardStats, error) {
	var stats models.DashboardStats
	if len(numberIDs) == 0 {
		return stats, nil
	}

	db := r.db.WithContext(ctx)
	if err := db.Model(&models.Conversation{}).
		Where("wa_number_id IN ?", numberIDs).
		Count(&stats.Conversations).Error; err != nil {
		return stats, err
	}

	if err := db.Model(&models.Conversation{}).
		Where("wa_number_id IN ? AND status = ?", numberIDs, models.ConversationOpen).
		Count(&stats.Open).Error; err != nil {
		return stats, err
	}

	err := db.Model(&models.Message{}).
		Joins("JOIN conversations ON conversations.id = messages.conversation_id").
		Where("conversations.wa_number_id IN ? AND messages.direction = ?", numberIDs, models.DirectionIn).
		Count(&stats.InboundTotal).Error
	return stats, err
}

// RecordInbound persists one inbound message in a single transaction:
// the conversation is resolved or created, the message is inserted
// unless its Meta ID is already stored, and the conversation timestamps
// are advanced. Timestamps never move backwards.
func (r *ConversationRepository) RecordInbound(ctx context.Context, in InboundMessage) (*InboundResult, error) {
	var result InboundResult

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conversation, created, err := findOrCreateConversation(tx, in.NumberID, in.CustomerWaID)
		if err != nil {
			return err
		}
		result.Conversation = conversation
		result.ConversationCreated = created

		message := models.Message{
			ConversationID: conversation.ID,
			Direction:      models.DirectionIn,
			Body:           in.Body,
			MetaMessageID:  in.MetaMessageID,
			SentAt:         in.SentAt,
		}

		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "meta_message_id"}},
			DoNothing: true,
		}).Create(&message)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			result.Duplicate = true
			return nil
		}
		result.Message = &message

		if err := advanceTimestamps(tx, conversation.ID, in.SentAt, true); err != nil {
			return err
		}

		return tx.Where("id = ?", conversation.ID).First(conversation).Error
	})
	if err != nil {
		return nil, err
	}

	return &result, nil
}

// RecordOutbound persists a message sent by an agent and advances last_message_at
func (r *ConversationRepository) RecordOutbound(ctx context.Context, conversationID uint, body string, metaMessageID *string, sentAt time.Time) (*models.Message, error) {
	message := models.Message{
		ConversationID: conversationID,
		Direction:      models.DirectionOut,
		Body:           &body,
		MetaMessageID:  metaMessageID,
		SentAt:         sentAt,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&message).Error; err != nil {
			return err
		}
		return advanceTimestamps(tx, conversationID, sentAt, false)
	})
	if err != nil {
		return nil, err
	}

	return &message, nil
}

func findConversation(db *gorm.DB, numberID uint, customerWaID string) (*models.Conversation, error) {
	var conversation models.Conversation
	err := db.Where("wa_number_id = ? AND customer_wa_id = ?", numberID, customerWaID).
		First(&conversation).Error
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

// findOrCreateConversation looks the pair up first and only then inserts.
// A concurrent writer may create the same pair between the lookup and the
// insert; the insert then does nothing and the row is selected again.
func findOrCreateConversation(tx *gorm.DB, numberID uint, customerWaID string) (*models.Conversation, bool, error) {
	conversation, err := findConversation(tx, numberID, customerWaID)
	if err == nil {
		return conversation, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	fresh := models.Conversation{
		WaNumberID:   numberID,
		CustomerWaID: customerWaID,
		Status:       models.ConversationOpen,
	}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&fresh)
	if res.Error != nil && !errors.Is(res.Error, gorm.ErrDuplicatedKey) {
		return nil, false, res.Error
	}
	if res.Error == nil && res.RowsAffected == 1 {
		return &fresh, true, nil
	}

	conversation, err = findConversation(tx, numberID, customerWaID)
	if err != nil {
		return nil, false, err
	}
	return conversation, false, nil
}

// advanceTimestamps moves last_message_at (and last_inbound_at for inbound
// messages) forward to at. Older values are left untouched so a delayed
// provider retry cannot rewind the messaging window.
func advanceTimestamps(tx *gorm.DB, conversationID uint, at time.Time, inbound bool) error {
	if inbound {
		err := tx.Model(&models.Conversation{}).
			Where("id = ? AND (last_inbound_at IS NULL OR last_inbound_at <= ?)", conversationID, at).
			Update("last_inbound_at", at).Error
		if err != nil {
			return err
		}
	}

	return tx.Model(&models.Conversation{}).
		Where("id = ? AND (last_message_at IS NULL OR last_message_at <= ?)", conversationID, at).
		Update("last_message_at", at).Error
}

// MessageRepository handles message data access
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// ListByConversation lists the messages of a conversation in send order
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID uint, limit, offset int) ([]models.Message, error) {
	var messages []models.Message
	query := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("sent_at ASC").
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit).Offset(offset)
	}
	err := query.Find(&messages).Error
	return messages, err
}

// CountByConversation counts the messages of a conversation
func (r *MessageRepository) CountByConversation(ctx context.Context, conversationID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ?", conversationID).
		Count(&count).Error
	return count, err
}
