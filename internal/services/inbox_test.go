package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"wainbox/internal/auth"
	"wainbox/internal/repo"
	"wainbox/internal/testutil"
)

func TestAcquireLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.conversation(t, 42, time.Now().UTC())

	agentA := employee(1, f.number.ID)
	agentB := employee(2, f.number.ID)

	status, err := f.inbox.AcquireLock(ctx, 42, agentA)
	if err != nil {
		t.Fatalf("AcquireLock(A) error = %v", err)
	}
	if status.LockedBy == nil || *status.LockedBy != agentA.ID || status.TTL != 600 {
		t.Errorf("status = %+v", status)
	}

	// the holder acquiring again refreshes instead of failing
	f.redis.FastForward(5 * time.Minute)
	if _, err := f.inbox.AcquireLock(ctx, 42, agentA); err != nil {
		t.Fatalf("AcquireLock(A) again error = %v", err)
	}
	if ttl := f.redis.TTL("conv_lock:42"); ttl != 10*time.Minute {
		t.Errorf("ttl = %v, want 10m", ttl)
	}

	_, err = f.inbox.AcquireLock(ctx, 42, agentB)
	if conflict := wantKind(t, err, KindConflict); conflict.LockedBy != agentA.ID {
		t.Errorf("LockedBy = %d, want %d", conflict.LockedBy, agentA.ID)
	}

	f.redis.FastForward(11 * time.Minute)
	if _, err := f.inbox.AcquireLock(ctx, 42, agentB); err != nil {
		t.Errorf("AcquireLock(B) after expiry error = %v", err)
	}
}

func TestAcquireLockConcurrent(t *testing.T) {
	f := newFixture(t)
	f.conversation(t, 42, time.Now().UTC())

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := uint(1); i <= 8; i++ {
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			_, err := f.inbox.AcquireLock(context.Background(), 42, admin(id))
			if err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
				return
			}
			if !IsKind(err, KindConflict) {
				t.Errorf("AcquireLock() error = %v, want conflict", err)
			}
		}(i)
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("winners = %d, want 1", winners)
	}
}

func TestAcquireLockChecksAccess(t *testing.T) {
	f := newFixture(t)
	f.conversation(t, 42, time.Now().UTC())

	_, err := f.inbox.AcquireLock(context.Background(), 42, employee(1))
	wantKind(t, err, KindForbidden)

	_, err = f.inbox.AcquireLock(context.Background(), 43, admin(1))
	wantKind(t, err, KindNotFound)
}

func TestReleaseLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.conversation(t, 42, time.Now().UTC())
	agentA := employee(1, f.number.ID)
	agentB := employee(2, f.number.ID)

	if _, err := f.inbox.AcquireLock(ctx, 42, agentA); err != nil {
		t.Fatalf("AcquireLock() error = %v", err)
	}

	err := f.inbox.ReleaseLock(ctx, 42, agentB)
	wantKind(t, err, KindConflict)

	if err := f.inbox.ReleaseLock(ctx, 42, agentA); err != nil {
		t.Fatalf("ReleaseLock(A) error = %v", err)
	}
	status, err := f.inbox.LockOwner(ctx, 42, agentB)
	if err != nil {
		t.Fatalf("LockOwner() error = %v", err)
	}
	if status.LockedBy != nil {
		t.Errorf("LockedBy = %d after release, want nil", *status.LockedBy)
	}

	if err := f.inbox.ReleaseLock(ctx, 42, agentA); err != nil {
		t.Errorf("releasing a free lock error = %v", err)
	}
}

func TestListVisibleNumbers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	support := testutil.CreateNumber(t, f.db, "Support", "pnid-2")
	retired := testutil.CreateNumber(t, f.db, "Retired", "pnid-3")
	if _, err := f.numbers.ToggleActive(ctx, retired.ID); err != nil {
		t.Fatalf("ToggleActive() error = %v", err)
	}

	all, err := f.inbox.ListVisibleNumbers(ctx, admin(1))
	if err != nil {
		t.Fatalf("ListVisibleNumbers(admin) error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("admin sees %d numbers, want 2 active", len(all))
	}

	mine, err := f.inbox.ListVisibleNumbers(ctx, employee(2, support.ID, retired.ID))
	if err != nil {
		t.Fatalf("ListVisibleNumbers(employee) error = %v", err)
	}
	if len(mine) != 1 || mine[0].ID != support.ID {
		t.Errorf("employee sees %+v, want only Support", mine)
	}

	none, err := f.inbox.ListVisibleNumbers(ctx, employee(3))
	if err != nil || len(none) != 0 {
		t.Errorf("unassigned employee sees %+v, %v", none, err)
	}
}

func TestListConversationsAnnotatesLocks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, customer := range []string{"+1", "+2"} {
		if _, err := f.conversations.RecordInbound(ctx, repo.InboundMessage{
			NumberID: f.number.ID, CustomerWaID: customer, SentAt: now.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("RecordInbound() error = %v", err)
		}
	}
	latest, err := f.conversations.FindByNumberAndCustomer(ctx, f.number.ID, "+2")
	if err != nil {
		t.Fatalf("FindByNumberAndCustomer() error = %v", err)
	}
	agent := employee(7, f.number.ID)
	if _, err := f.inbox.AcquireLock(ctx, latest.ID, agent); err != nil {
		t.Fatalf("AcquireLock() error = %v", err)
	}

	list, err := f.inbox.ListConversations(ctx, f.number.ID, agent, 50, 0)
	if err != nil {
		t.Fatalf("ListConversations() error = %v", err)
	}
	if len(list) != 2 || list[0].ID != latest.ID {
		t.Fatalf("list = %+v, want latest first", list)
	}
	if list[0].LockedBy == nil || *list[0].LockedBy != 7 {
		t.Errorf("latest LockedBy = %v, want 7", list[0].LockedBy)
	}
	if list[1].LockedBy != nil {
		t.Errorf("other LockedBy = %v, want nil", *list[1].LockedBy)
	}

	_, err = f.inbox.ListConversations(ctx, f.number.ID, employee(8), 50, 0)
	wantKind(t, err, KindForbidden)

	_, err = f.inbox.ListConversations(ctx, 999, admin(1), 50, 0)
	wantKind(t, err, KindNotFound)
}

func TestListConversationsHidesUnknownNumbers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		numberID  uint
		principal *auth.Principal
		want      Kind
	}{
		{name: "employee asks for unknown number", numberID: 999, principal: employee(8), want: KindForbidden},
		{name: "employee asks for unassigned number", numberID: f.number.ID, principal: employee(8), want: KindForbidden},
		{name: "employee assigned to a deleted number", numberID: 999, principal: employee(8, 999), want: KindNotFound},
		{name: "admin asks for unknown number", numberID: 999, principal: admin(1), want: KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.inbox.ListConversations(ctx, tt.numberID, tt.principal, 50, 0)
			wantKind(t, err, tt.want)
		})
	}
}

func TestListMessagesAndStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conversation := f.conversation(t, 10, time.Now().UTC().Add(-time.Minute))

	if _, err := f.replies.SendReply(ctx, conversation.ID, "hello", admin(1)); err != nil {
		t.Fatalf("SendReply() error = %v", err)
	}
	messages, err := f.inbox.ListMessages(ctx, conversation.ID, employee(2, f.number.ID), 0, 0)
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(messages) != 1 {
		t.Errorf("messages = %d, want 1", len(messages))
	}

	_, err = f.inbox.ListMessages(ctx, conversation.ID, employee(2), 0, 0)
	wantKind(t, err, KindForbidden)

	stats, err := f.inbox.DashboardStats(ctx, admin(1))
	if err != nil {
		t.Fatalf("DashboardStats() error = %v", err)
	}
	if stats.Conversations != 1 || stats.Open != 1 || stats.InboundTotal != 0 {
		t.Errorf("stats = %+v", stats)
	}

	empty, err := f.inbox.DashboardStats(ctx, employee(3))
	if err != nil || empty.Conversations != 0 {
		t.Errorf("unassigned stats = %+v, %v", empty, err)
	}
}

func TestLockStoreUnavailable(t *testing.T) {
	f := newFixture(t)
	f.conversation(t, 42, time.Now().UTC())
	f.redis.Close()

	_, err := f.inbox.AcquireLock(context.Background(), 42, admin(1))
	wantKind(t, err, KindStore)

	_, err = f.replies.SendReply(context.Background(), 42, "hello", admin(1))
	wantKind(t, err, KindStore)
}
