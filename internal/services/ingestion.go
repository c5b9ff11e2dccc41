package services

import (
	"context"
	"errors"
	"time"

	"wainbox/internal/broadcast"
	"wainbox/internal/repo"
	"wainbox/internal/webhook"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Fanout publishes committed events to realtime viewers
type Fanout interface {
	Broadcast(ctx context.Context, room string, event broadcast.Event)
}

// IngestReport counts what happened to the messages of one payload
type IngestReport struct {
	Changes        int
	UnknownNumbers int
	Messages       int
	Stored         int
	Duplicates     int
	Skipped        int
	Malformed      int
	Failed         int
}

// IngestionService maps verified webhook payloads to store mutations and
// publishes a message:new event for every newly stored message.
type IngestionService struct {
	numbers       *repo.NumberRepository
	conversations *repo.ConversationRepository
	fanout        Fanout
	now           func() time.Time
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(numbers *repo.NumberRepository, conversations *repo.ConversationRepository, fanout Fanout) *IngestionService {
	return &IngestionService{
		numbers:       numbers,
		conversations: conversations,
		fanout:        fanout,
		now:           time.Now,
	}
}

// Ingest processes payload and logs the outcome. It satisfies webhook.Ingester.
func (s *IngestionService) Ingest(ctx context.Context, payload *webhook.Payload) {
	report := s.Process(ctx, payload)

	event := log.Debug()
	if report.Messages > 0 {
		event = log.Info()
	}
	logReport(event, report).Msg("Webhook payload ingested")
}

// Process ingests every entry and change of payload. Each message is
// committed on its own, so a failure never undoes a stored sibling.
func (s *IngestionService) Process(ctx context.Context, payload *webhook.Payload) IngestReport {
	var report IngestReport
	if payload == nil {
		return report
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			report.Changes++
			s.processChange(ctx, change.Value, &report)
		}
	}
	return report
}

func (s *IngestionService) processChange(ctx context.Context, value webhook.Value, report *IngestReport) {
	phoneNumberID := value.Metadata.PhoneNumberID
	if phoneNumberID == "" {
		report.UnknownNumbers++
		return
	}

	number, err := s.numbers.GetActiveByPhoneNumberID(ctx, phoneNumberID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		report.UnknownNumbers++
		log.Debug().Str("phone_number_id", phoneNumberID).Msg("Ignoring change for unknown number")
		return
	}
	if err != nil {
		report.Messages += len(value.Messages)
		report.Failed += len(value.Messages)
		log.Error().Err(err).Str("phone_number_id", phoneNumberID).Msg("Failed to resolve number")
		return
	}

	for _, raw := range value.Messages {
		report.Messages++

		message, err := webhook.DecodeMessage(raw)
		if err != nil {
			report.Malformed++
			log.Warn().Err(err).Uint("number_id", number.ID).Msg("Skipping malformed message")
			continue
		}

		if !message.IsText() {
			report.Skipped++
			continue
		}

		if err := s.ingestMessage(ctx, number.ID, message, report); err != nil {
			report.Failed++
			log.Error().Err(err).
				Uint("number_id", number.ID).
				Str("meta_message_id", message.ID).
				Msg("Failed to store inbound message")
		}
	}
}

func (s *IngestionService) ingestMessage(ctx context.Context, numberID uint, message *webhook.Message, report *IngestReport) error {
	in := repo.InboundMessage{
		NumberID:     numberID,
		CustomerWaID: message.From,
		Body:         message.Body(),
		SentAt:       message.SentAt(s.now()),
	}
	if message.ID != "" {
		metaID := message.ID
		in.MetaMessageID = &metaID
	}

	result, err := s.conversations.RecordInbound(ctx, in)
	if err != nil {
		return StoreError("record inbound message", err)
	}

	if result.Duplicate {
		report.Duplicates++
		log.Debug().
			Uint("conversation_id", result.Conversation.ID).
			Str("meta_message_id", message.ID).
			Msg("Duplicate inbound message suppressed")
		return nil
	}
	report.Stored++

	if result.ConversationCreated {
		log.Info().
			Uint("conversation_id", result.Conversation.ID).
			Uint("number_id", numberID).
			Msg("Conversation created")
	}

	s.fanout.Broadcast(ctx, broadcast.RoomForNumber(numberID), broadcast.Event{
		Event:          broadcast.EventMessageNew,
		ConversationID: result.Conversation.ID,
		Text:           in.Body,
		From:           in.CustomerWaID,
		At:             in.SentAt,
	})
	return nil
}

func logReport(event *zerolog.Event, report IngestReport) *zerolog.Event {
	return event.
		Int("changes", report.Changes).
		Int("unknown_numbers", report.UnknownNumbers).
		Int("messages", report.Messages).
		Int("stored", report.Stored).
		Int("duplicates", report.Duplicates).
		Int("skipped", report.Skipped).
		Int("malformed", report.Malformed).
		Int("failed", report.Failed)
}
