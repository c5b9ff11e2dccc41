package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// EventMessageNew is published after an inbound message is committed
const EventMessageNew = "message:new"

var errPanicked = errors.New("subscriber panicked")

// Event is the JSON payload pushed to room subscribers
type Event struct {
	Event          string    `json:"event"`
	ConversationID uint      `json:"conversation_id"`
	Text           *string   `json:"text"`
	From           string    `json:"from"`
	At             time.Time `json:"at"`
}

// Subscriber is one connected viewer
type Subscriber interface {
	Send(payload []byte) error
}

// Publisher forwards payloads to other processes
type Publisher interface {
	Publish(ctx context.Context, room string, payload []byte) error
	Close() error
}

// RoomForNumber returns the room name of a WhatsApp number
func RoomForNumber(numberID uint) string {
	return "number:" + strconv.FormatUint(uint64(numberID), 10)
}

// Broadcaster keeps the subscribers of every room and delivers events to them.
// Delivery is best effort: a failing subscriber is skipped, never retried.
type Broadcaster struct {
	mu    sync.RWMutex
	rooms map[string]map[Subscriber]struct{}
	relay Publisher
}

// New creates an empty broadcaster
func New() *Broadcaster {
	return &Broadcaster{
		rooms: make(map[string]map[Subscriber]struct{}),
	}
}

// SetRelay makes every broadcast also go out through p
func (b *Broadcaster) SetRelay(p Publisher) {
	b.mu.Lock()
	b.relay = p
	b.mu.Unlock()
}

// Join adds s to room. Joining twice has no further effect.
func (b *Broadcaster) Join(room string, s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	members, ok := b.rooms[room]
	if !ok {
		members = make(map[Subscriber]struct{})
		b.rooms[room] = members
	}
	members[s] = struct{}{}
}

// Leave removes s from room and drops the room once it is empty
func (b *Broadcaster) Leave(room string, s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	members, ok := b.rooms[room]
	if !ok {
		return
	}
	delete(members, s)
	if len(members) == 0 {
		delete(b.rooms, room)
	}
}

// RoomSize returns the number of subscribers in room
func (b *Broadcaster) RoomSize(room string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rooms[room])
}

// Rooms returns the number of rooms with at least one subscriber
func (b *Broadcaster) Rooms() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rooms)
}

// Broadcast delivers event to the local subscribers of room and hands it
// to the relay when one is configured. It never returns an error.
func (b *Broadcaster) Broadcast(ctx context.Context, room string, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("room", room).Msg("Failed to encode broadcast event")
		return
	}

	delivered := b.Deliver(room, payload)
	log.Debug().
		Str("room", room).
		Str("event", event.Event).
		Uint("conversation_id", event.ConversationID).
		Int("delivered", delivered).
		Msg("Broadcast event")

	b.mu.RLock()
	relay := b.relay
	b.mu.RUnlock()
	if relay == nil {
		return
	}
	if err := relay.Publish(ctx, room, payload); err != nil {
		log.Warn().Err(err).Str("room", room).Msg("Failed to relay broadcast event")
	}
}

// Deliver sends payload to the local subscribers of room only and returns
// how many accepted it.
func (b *Broadcaster) Deliver(room string, payload []byte) int {
	b.mu.RLock()
	members := make([]Subscriber, 0, len(b.rooms[room]))
	for s := range b.rooms[room] {
		members = append(members, s)
	}
	b.mu.RUnlock()

	delivered := 0
	for _, s := range members {
		if err := send(s, payload); err != nil {
			log.Debug().Err(err).Str("room", room).Msg("Dropped event for subscriber")
			continue
		}
		delivered++
	}
	return delivered
}

// Close drops every room and shuts the relay down
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	b.rooms = make(map[string]map[Subscriber]struct{})
	relay := b.relay
	b.relay = nil
	b.mu.Unlock()

	if relay != nil {
		return relay.Close()
	}
	return nil
}

// send isolates the caller from a subscriber that panics on a closed connection
func send(s Subscriber, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errPanicked
		}
	}()
	return s.Send(payload)
}
