package services

import (
	"context"
	"errors"

	"wainbox/internal/auth"
	"wainbox/internal/locks"
	"wainbox/internal/repo"
	"wainbox/pkg/models"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// LockStatus describes the reply lock of a conversation
type LockStatus struct {
	ConversationID uint  `json:"conversation_id"`
	LockedBy       *uint `json:"locked_by"`
	TTL            int   `json:"ttl,omitempty"`
}

// InboxService answers the agent-facing inbox queries and manages reply locks
type InboxService struct {
	numbers       *repo.NumberRepository
	conversations *repo.ConversationRepository
	messages      *repo.MessageRepository
	locks         *locks.Manager
}

// NewInboxService creates a new inbox service
func NewInboxService(numbers *repo.NumberRepository, conversations *repo.ConversationRepository, messages *repo.MessageRepository, lockManager *locks.Manager) *InboxService {
	return &InboxService{
		numbers:       numbers,
		conversations: conversations,
		messages:      messages,
		locks:         lockManager,
	}
}

// VisibleNumberIDs returns the ids of every number principal may see
func (s *InboxService) VisibleNumberIDs(ctx context.Context, principal *auth.Principal) ([]uint, error) {
	if !principal.IsAdmin() {
		return principal.NumberIDs, nil
	}
	ids, err := s.numbers.AllIDs(ctx)
	if err != nil {
		return nil, StoreError("list numbers", err)
	}
	return ids, nil
}

// ListVisibleNumbers lists the active numbers principal may see
func (s *InboxService) ListVisibleNumbers(ctx context.Context, principal *auth.Principal) ([]models.WhatsAppNumber, error) {
	ids, err := s.VisibleNumberIDs(ctx, principal)
	if err != nil {
		return nil, err
	}
	numbers, err := s.numbers.ListActiveByIDs(ctx, ids)
	if err != nil {
		return nil, StoreError("list numbers", err)
	}
	return numbers, nil
}

// ListConversations lists the conversations of a number with their lock holders
func (s *InboxService) ListConversations(ctx context.Context, numberID uint, principal *auth.Principal, limit, offset int) ([]models.ConversationWithLock, error) {
	// Access is checked first so unknown and unassigned ids look the same.
	if !principal.CanAccess(numberID) {
		return nil, Forbidden("number not visible")
	}
	if _, err := s.numbers.GetByID(ctx, numberID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound("number not found")
		}
		return nil, StoreError("load number", err)
	}

	conversations, err := s.conversations.ListByNumber(ctx, numberID, limit, offset)
	if err != nil {
		return nil, StoreError("list conversations", err)
	}

	ids := make([]uint, len(conversations))
	for i, conversation := range conversations {
		ids[i] = conversation.ID
	}

	owners, err := s.locks.Owners(ctx, ids)
	if err != nil {
		// Lock holders are informational here; the list is still useful.
		log.Warn().Err(err).Uint("number_id", numberID).Msg("Failed to read lock owners")
		owners = nil
	}

	result := make([]models.ConversationWithLock, len(conversations))
	for i, conversation := range conversations {
		result[i] = models.ConversationWithLock{Conversation: conversation}
		if owner, ok := owners[conversation.ID]; ok {
			result[i].LockedBy = &owner
		}
	}
	return result, nil
}

// ListMessages lists the messages of a conversation in send order
func (s *InboxService) ListMessages(ctx context.Context, conversationID uint, principal *auth.Principal, limit, offset int) ([]models.Message, error) {
	if _, err := authorizeConversation(ctx, s.conversations, conversationID, principal); err != nil {
		return nil, err
	}

	messages, err := s.messages.ListByConversation(ctx, conversationID, limit, offset)
	if err != nil {
		return nil, StoreError("list messages", err)
	}
	return messages, nil
}

// DashboardStats counts the conversations and inbound messages principal may see
func (s *InboxService) DashboardStats(ctx context.Context, principal *auth.Principal) (models.DashboardStats, error) {
	ids, err := s.VisibleNumberIDs(ctx, principal)
	if err != nil {
		return models.DashboardStats{}, err
	}
	stats, err := s.conversations.Stats(ctx, ids)
	if err != nil {
		return models.DashboardStats{}, StoreError("load stats", err)
	}
	return stats, nil
}

// AcquireLock grants principal the reply lock of a conversation. A caller
// that already holds the lock gets its TTL refreshed.
func (s *InboxService) AcquireLock(ctx context.Context, conversationID uint, principal *auth.Principal) (*LockStatus, error) {
	if _, err := authorizeConversation(ctx, s.conversations, conversationID, principal); err != nil {
		return nil, err
	}

	// Two attempts: the holder seen after a failed acquire may have expired already.
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := s.locks.Acquire(ctx, conversationID, principal.ID)
		if err != nil {
			return nil, StoreError("acquire lock", err)
		}
		if ok {
			log.Info().Uint("conversation_id", conversationID).Uint("principal_id", principal.ID).Msg("Conversation locked")
			return s.lockStatus(conversationID, principal.ID), nil
		}

		owner, held, err := s.locks.Owner(ctx, conversationID)
		if err != nil {
			return nil, StoreError("read lock owner", err)
		}
		if !held {
			continue
		}
		if owner != principal.ID {
			return nil, Conflict(owner)
		}

		refreshed, err := s.locks.Refresh(ctx, conversationID, principal.ID)
		if err != nil {
			return nil, StoreError("refresh lock", err)
		}
		if refreshed {
			return s.lockStatus(conversationID, principal.ID), nil
		}
	}

	owner, held, err := s.locks.Owner(ctx, conversationID)
	if err != nil {
		return nil, StoreError("read lock owner", err)
	}
	if held && owner != principal.ID {
		return nil, Conflict(owner)
	}
	return nil, StoreError("acquire lock", errors.New("lock changed hands during acquire"))
}

// ReleaseLock frees the reply lock when principal holds it. Releasing a
// free lock succeeds; releasing another principal's lock is a conflict.
func (s *InboxService) ReleaseLock(ctx context.Context, conversationID uint, principal *auth.Principal) error {
	if _, err := authorizeConversation(ctx, s.conversations, conversationID, principal); err != nil {
		return err
	}

	released, err := s.locks.Release(ctx, conversationID, principal.ID)
	if err != nil {
		return StoreError("release lock", err)
	}
	if released {
		log.Info().Uint("conversation_id", conversationID).Uint("principal_id", principal.ID).Msg("Conversation unlocked")
		return nil
	}

	owner, held, err := s.locks.Owner(ctx, conversationID)
	if err != nil {
		return StoreError("read lock owner", err)
	}
	if held && owner != principal.ID {
		return Conflict(owner)
	}
	return nil
}

// LockOwner returns the current holder of the reply lock
func (s *InboxService) LockOwner(ctx context.Context, conversationID uint, principal *auth.Principal) (*LockStatus, error) {
	if _, err := authorizeConversation(ctx, s.conversations, conversationID, principal); err != nil {
		return nil, err
	}

	owner, held, err := s.locks.Owner(ctx, conversationID)
	if err != nil {
		return nil, StoreError("read lock owner", err)
	}
	status := &LockStatus{ConversationID: conversationID}
	if held {
		status.LockedBy = &owner
	}
	return status, nil
}

func (s *InboxService) lockStatus(conversationID, principalID uint) *LockStatus {
	return &LockStatus{
		ConversationID: conversationID,
		LockedBy:       &principalID,
		TTL:            int(s.locks.TTL().Seconds()),
	}
}

// authorizeConversation loads a conversation and checks principal may see its number
func authorizeConversation(ctx context.Context, conversations *repo.ConversationRepository, conversationID uint, principal *auth.Principal) (*models.Conversation, error) {
	conversation, err := conversations.GetByID(ctx, conversationID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NotFound("conversation not found")
	}
	if err != nil {
		return nil, StoreError("load conversation", err)
	}
	if !principal.CanAccess(conversation.WaNumberID) {
		return nil, Forbidden("conversation not visible")
	}
	return conversation, nil
}
