package engine

import (
	"github.com/rs/zerolog"

	"github.com/meridianlabs/meridian-go/model/meridian"
	"github.com/meridianlabs/meridian-go/module"
)

// Message is an inbound event together with the peer it originated from.
type Message struct {
	OriginID meridian.Identifier
	Payload  interface{}
}

// MessageStore abstracts how messages are buffered in memory before being
// handled by the engine.
type MessageStore interface {
	Put(*Message) bool
	Get() (*Message, bool)
}

// Pattern routes matching messages into a message store.
type Pattern struct {
	// Match is a function to match a message to this pattern, typically by
	// payload type.
	Match MatchFunc
	// Store is the message store for messages matching this pattern.
	Store MessageStore
}

type MatchFunc func(*Message) bool

// MessageHandler queues inbound messages by pattern and notifies a consumer
// when new messages are available.
type MessageHandler struct {
	log      zerolog.Logger
	notifier module.Notifier
	patterns []Pattern
}

func NewMessageHandler(log zerolog.Logger, patterns ...Pattern) *MessageHandler {
	return &MessageHandler{
		log:      log.With().Str("component", "message_handler").Logger(),
		notifier: module.NewNotifier(),
		patterns: patterns,
	}
}

// Process stores the message in the first matching pattern's store. Messages
// matching no pattern, and messages dropped by a full store, are discarded
// with a warning.
func (e *MessageHandler) Process(originID meridian.Identifier, payload interface{}) {
	msg := &Message{
		OriginID: originID,
		Payload:  payload,
	}

	log := e.log.Warn().
		Str("origin_id", originID.String())

	for _, pattern := range e.patterns {
		if pattern.Match(msg) {
			ok := pattern.Store.Put(msg)
			if !ok {
				log.Msg("failed to store message - discarding")
				return
			}
			e.notifier.Notify()

			// a message is matched by at most one pattern
			return
		}
	}

	log.Msg("discarding unknown message type")
}

func (e *MessageHandler) GetNotifier() <-chan struct{} {
	return e.notifier.Channel()
}
