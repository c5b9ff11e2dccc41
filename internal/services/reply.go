package services

import (
	"context"
	"strings"
	"time"

	"wainbox/internal/auth"
	"wainbox/internal/locks"
	"wainbox/internal/repo"
	"wainbox/pkg/models"

	"github.com/rs/zerolog/log"
)

// MessagingWindow is how long after the last inbound message free-form
// replies are accepted by the provider
const MessagingWindow = 24 * time.Hour

// Sender delivers a text message through the provider
type Sender interface {
	SendText(ctx context.Context, phoneNumberID, to, text string) (*string, error)
}

// ReplyService sends agent replies after checking access, lock ownership
// and the messaging window
type ReplyService struct {
	numbers       *repo.NumberRepository
	conversations *repo.ConversationRepository
	locks         *locks.Manager
	sender        Sender
	now           func() time.Time
}

// NewReplyService creates a new reply service
func NewReplyService(numbers *repo.NumberRepository, conversations *repo.ConversationRepository, lockManager *locks.Manager, sender Sender) *ReplyService {
	return &ReplyService{
		numbers:       numbers,
		conversations: conversations,
		locks:         lockManager,
		sender:        sender,
		now:           time.Now,
	}
}

// SendReply sends text on a conversation on behalf of principal and stores
// the outbound message. Nothing is stored when the provider call fails.
func (s *ReplyService) SendReply(ctx context.Context, conversationID uint, text string, principal *auth.Principal) (*models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ValidationError("text is required")
	}

	conversation, err := authorizeConversation(ctx, s.conversations, conversationID, principal)
	if err != nil {
		return nil, err
	}

	if err := s.checkLock(ctx, conversationID, principal.ID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if conversation.LastInboundAt == nil {
		return nil, PolicyViolation("no inbound message yet, template required")
	}
	if now.Sub(*conversation.LastInboundAt) > MessagingWindow {
		return nil, PolicyViolation("outside messaging window, template required")
	}

	number, err := s.numbers.GetByID(ctx, conversation.WaNumberID)
	if err != nil {
		return nil, StoreError("load number", err)
	}

	metaID, err := s.sender.SendText(ctx, number.PhoneNumberID, conversation.CustomerWaID, text)
	if err != nil {
		log.Error().Err(err).
			Uint("conversation_id", conversationID).
			Uint("principal_id", principal.ID).
			Msg("Failed to send WhatsApp message")
		return nil, ProviderError(err)
	}
	if metaID == nil {
		log.Warn().Uint("conversation_id", conversationID).Msg("Provider returned no message id")
	}

	// The customer already has the message; storing it must outlive the caller.
	persistCtx := context.WithoutCancel(ctx)
	message, err := s.conversations.RecordOutbound(persistCtx, conversationID, text, metaID, now)
	if err != nil {
		log.Error().Err(err).Uint("conversation_id", conversationID).Msg("Sent message could not be stored")
		return nil, StoreError("record outbound message", err)
	}

	log.Info().
		Uint("conversation_id", conversationID).
		Uint("message_id", message.ID).
		Uint("principal_id", principal.ID).
		Msg("Reply sent")
	return message, nil
}

// checkLock rejects a reply while another principal holds the conversation
// and keeps the caller's own lock alive.
func (s *ReplyService) checkLock(ctx context.Context, conversationID, principalID uint) error {
	owner, held, err := s.locks.Owner(ctx, conversationID)
	if err != nil {
		return StoreError("read lock owner", err)
	}
	if !held {
		return nil
	}
	if owner != principalID {
		return Conflict(owner)
	}

	refreshed, err := s.locks.Refresh(ctx, conversationID, principalID)
	if err != nil {
		return StoreError("refresh lock", err)
	}
	if !refreshed {
		// Expired or taken over between the read and the refresh.
		owner, held, err := s.locks.Owner(ctx, conversationID)
		if err != nil {
			return StoreError("read lock owner", err)
		}
		if held && owner != principalID {
			return Conflict(owner)
		}
	}
	return nil
}
