package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"wainbox/pkg/models"
)

func TestSendReplyLockConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.conversation(t, 42, time.Now().UTC().Add(-time.Hour))

	agentA := employee(1, f.number.ID)
	agentB := employee(2, f.number.ID)

	if _, err := f.inbox.AcquireLock(ctx, 42, agentA); err != nil {
		t.Fatalf("AcquireLock(A) error = %v", err)
	}

	_, err := f.replies.SendReply(ctx, 42, "from B", agentB)
	conflict := wantKind(t, err, KindConflict)
	if conflict.LockedBy != agentA.ID {
		t.Errorf("LockedBy = %d, want %d", conflict.LockedBy, agentA.ID)
	}
	if f.sender.calls != 0 {
		t.Errorf("provider called %d times for a conflicting reply", f.sender.calls)
	}

	message, err := f.replies.SendReply(ctx, 42, "  from A  ", agentA)
	if err != nil {
		t.Fatalf("SendReply(A) error = %v", err)
	}
	if message.Direction != models.DirectionOut || *message.Body != "from A" {
		t.Errorf("message = %+v, want outbound 'from A'", message)
	}
	if message.MetaMessageID == nil || *message.MetaMessageID != "wamid.out" {
		t.Errorf("meta id = %v, want wamid.out", message.MetaMessageID)
	}
	if got := f.messageCount(t, 42); got != 1 {
		t.Errorf("messages = %d, want 1", got)
	}
	if len(f.sender.sent) != 1 || f.sender.sent[0] != "pnid-1|+1555|from A" {
		t.Errorf("sent = %v", f.sender.sent)
	}
}

func TestSendReplyRefreshesOwnLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.conversation(t, 7, time.Now().UTC())
	agent := employee(1, f.number.ID)

	if _, err := f.inbox.AcquireLock(ctx, 7, agent); err != nil {
		t.Fatalf("AcquireLock() error = %v", err)
	}
	f.redis.FastForward(9 * time.Minute)

	if _, err := f.replies.SendReply(ctx, 7, "hello", agent); err != nil {
		t.Fatalf("SendReply() error = %v", err)
	}
	if ttl := f.redis.TTL("conv_lock:7"); ttl != 10*time.Minute {
		t.Errorf("lock ttl = %v, want refreshed to 10m", ttl)
	}
}

func TestSendReplyWithoutLockProceeds(t *testing.T) {
	f := newFixture(t)
	f.conversation(t, 7, time.Now().UTC())

	if _, err := f.replies.SendReply(context.Background(), 7, "hello", employee(1, f.number.ID)); err != nil {
		t.Fatalf("SendReply() error = %v", err)
	}
}

func TestSendReplyMessagingWindow(t *testing.T) {
	lastInbound := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		elapsed time.Duration
		wantErr bool
	}{
		{name: "23h59m is accepted", elapsed: 23*time.Hour + 59*time.Minute},
		{name: "exactly 24h is accepted", elapsed: 24 * time.Hour},
		{name: "24h1s is rejected", elapsed: 24*time.Hour + time.Second, wantErr: true},
		{name: "a week is rejected", elapsed: 7 * 24 * time.Hour, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.conversation(t, 1, lastInbound)
			f.replies.now = func() time.Time { return lastInbound.Add(tt.elapsed) }

			_, err := f.replies.SendReply(context.Background(), 1, "hello", admin(99))
			if tt.wantErr {
				wantKind(t, err, KindPolicyViolation)
				if f.sender.calls != 0 {
					t.Error("provider called outside the window")
				}
				return
			}
			if err != nil {
				t.Fatalf("SendReply() error = %v", err)
			}
		})
	}
}

func TestSendReplyNeverInbound(t *testing.T) {
	f := newFixture(t)
	conversation := &models.Conversation{WaNumberID: f.number.ID, CustomerWaID: "+1777", Status: models.ConversationOpen}
	if err := f.db.Create(conversation).Error; err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	_, err := f.replies.SendReply(context.Background(), conversation.ID, "hello", admin(99))
	wantKind(t, err, KindPolicyViolation)
}

func TestSendReplyGates(t *testing.T) {
	f := newFixture(t)
	f.conversation(t, 5, time.Now().UTC())

	tests := []struct {
		name           string
		conversationID uint
		text           string
		principalNums  []uint
		want           Kind
	}{
		{name: "empty text", conversationID: 5, text: "", principalNums: []uint{f.number.ID}, want: KindValidation},
		{name: "blank text", conversationID: 5, text: " \n\t ", principalNums: []uint{f.number.ID}, want: KindValidation},
		{name: "unknown conversation", conversationID: 404, text: "hi", principalNums: []uint{f.number.ID}, want: KindNotFound},
		{name: "number not visible", conversationID: 5, text: "hi", principalNums: []uint{f.number.ID + 1}, want: KindForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.replies.SendReply(context.Background(), tt.conversationID, tt.text, employee(1, tt.principalNums...))
			wantKind(t, err, tt.want)
		})
	}
	if f.sender.calls != 0 {
		t.Errorf("provider called %d times", f.sender.calls)
	}
}

func TestSendReplyProviderFailurePersistsNothing(t *testing.T) {
	f := newFixture(t)
	conversation := f.conversation(t, 3, time.Now().UTC().Add(-time.Minute))
	f.sender.err = errors.New("timeout")

	_, err := f.replies.SendReply(context.Background(), 3, "hello", admin(99))
	wantKind(t, err, KindProvider)

	if got := f.messageCount(t, 3); got != 0 {
		t.Errorf("messages = %d, want 0", got)
	}
	reloaded, err := f.conversations.GetByID(context.Background(), 3)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if !reloaded.LastMessageAt.Equal(*conversation.LastMessageAt) {
		t.Errorf("last_message_at moved to %v", reloaded.LastMessageAt)
	}
}

func TestSendReplyToleratesMissingProviderID(t *testing.T) {
	f := newFixture(t)
	f.conversation(t, 3, time.Now().UTC())
	f.sender.id = nil

	message, err := f.replies.SendReply(context.Background(), 3, "hello", admin(99))
	if err != nil {
		t.Fatalf("SendReply() error = %v", err)
	}
	if message.MetaMessageID != nil {
		t.Errorf("meta id = %v, want nil", *message.MetaMessageID)
	}
}

type cancellingSender struct {
	cancel context.CancelFunc
	id     string
}

func (c *cancellingSender) SendText(context.Context, string, string, string) (*string, error) {
	c.cancel()
	return &c.id, nil
}

func TestSendReplyStoresDeliveredMessageAfterCancel(t *testing.T) {
	f := newFixture(t)
	f.conversation(t, 3, time.Now().UTC())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	replies := NewReplyService(f.numbers, f.conversations, f.locks, &cancellingSender{cancel: cancel, id: "wamid.delivered"})

	message, err := replies.SendReply(ctx, 3, "hello", admin(99))
	if err != nil {
		t.Fatalf("SendReply() error = %v", err)
	}
	if ctx.Err() == nil {
		t.Fatal("request context was not cancelled by the sender")
	}

	if got := f.messageCount(t, 3); got != 1 {
		t.Fatalf("messages = %d, want 1", got)
	}
	var stored models.Message
	if err := f.db.Where("conversation_id = ?", 3).First(&stored).Error; err != nil {
		t.Fatalf("load message: %v", err)
	}
	if stored.Direction != models.DirectionOut {
		t.Errorf("direction = %q, want %q", stored.Direction, models.DirectionOut)
	}
	if stored.MetaMessageID == nil || *stored.MetaMessageID != "wamid.delivered" {
		t.Errorf("meta id = %v, want wamid.delivered", stored.MetaMessageID)
	}
	if message.ID != stored.ID {
		t.Errorf("returned id = %d, stored id = %d", message.ID, stored.ID)
	}
}
