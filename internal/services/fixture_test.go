package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"wainbox/internal/auth"
	"wainbox/internal/broadcast"
	"wainbox/internal/locks"
	"wainbox/internal/repo"
	"wainbox/internal/testutil"
	"wainbox/pkg/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  []string
	id    *string
	err   error
	calls int
}

func (f *fakeSender) SendText(_ context.Context, phoneNumberID, to, text string) (*string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, phoneNumberID+"|"+to+"|"+text)
	return f.id, nil
}

type recordingFanout struct {
	mu     sync.Mutex
	rooms  []string
	events []broadcast.Event
}

func (r *recordingFanout) Broadcast(_ context.Context, room string, event broadcast.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms = append(r.rooms, room)
	r.events = append(r.events, event)
}

type fixture struct {
	db            *gorm.DB
	redis         *miniredis.Miniredis
	numbers       *repo.NumberRepository
	conversations *repo.ConversationRepository
	messages      *repo.MessageRepository
	locks         *locks.Manager
	sender        *fakeSender
	fanout        *recordingFanout
	ingestion     *IngestionService
	replies       *ReplyService
	inbox         *InboxService
	number        *models.WhatsAppNumber
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewDB(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	f := &fixture{
		db:            db,
		redis:         mr,
		numbers:       repo.NewNumberRepository(db),
		conversations: repo.NewConversationRepository(db),
		messages:      repo.NewMessageRepository(db),
		locks:         locks.NewManager(client, locks.DefaultTTL),
		sender:        &fakeSender{},
		fanout:        &recordingFanout{},
	}
	wamid := "wamid.out"
	f.sender.id = &wamid

	f.ingestion = NewIngestionService(f.numbers, f.conversations, f.fanout)
	f.replies = NewReplyService(f.numbers, f.conversations, f.locks, f.sender)
	f.inbox = NewInboxService(f.numbers, f.conversations, f.messages, f.locks)
	f.number = testutil.CreateNumber(t, db, "Sales", "pnid-1")
	return f
}

// conversation inserts a conversation with a fixed id whose last inbound
// message arrived at lastInbound
func (f *fixture) conversation(t *testing.T, id uint, lastInbound time.Time) *models.Conversation {
	t.Helper()
	conversation := &models.Conversation{
		BaseModel:     models.BaseModel{ID: id},
		WaNumberID:    f.number.ID,
		CustomerWaID:  "+1555",
		Status:        models.ConversationOpen,
		LastInboundAt: &lastInbound,
		LastMessageAt: &lastInbound,
	}
	if err := f.db.Create(conversation).Error; err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	return conversation
}

func (f *fixture) messageCount(t *testing.T, conversationID uint) int64 {
	t.Helper()
	count, err := f.messages.CountByConversation(context.Background(), conversationID)
	if err != nil {
		t.Fatalf("CountByConversation() error = %v", err)
	}
	return count
}

func employee(id uint, numberIDs ...uint) *auth.Principal {
	return &auth.Principal{ID: id, Role: models.RoleEmployee, NumberIDs: numberIDs}
}

func admin(id uint) *auth.Principal {
	return &auth.Principal{ID: id, Role: models.RoleAdmin}
}

func wantKind(t *testing.T, err error, kind Kind) *Error {
	t.Helper()
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("error = %v, want kind %s", err, kind)
	}
	if e.Kind != kind {
		t.Fatalf("error kind = %s, want %s (%v)", e.Kind, kind, err)
	}
	return e
}
