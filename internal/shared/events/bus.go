package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/EventStore/EventStore-Client-Go/v4/esdb"
	"github.com/google/uuid"
	"github.com/rdss/casework/internal/shared/config"
	"github.com/rdss/casework/internal/shared/types"
	"go.uber.org/zap"
)

// Event types emitted by the engine.
const (
	TypeCaseOpened          = "case.opened"
	TypeCaseStatusChanged   = "case.status_changed"
	TypeCasePriorityChanged = "case.priority_changed"
	TypeCaseRiskChanged     = "case.risk_changed"
	TypeCaseClosed          = "case.closed"

	TypeAppointmentScheduled   = "appointment.scheduled"
	TypeAppointmentTransition  = "appointment.status_changed"
	TypeAppointmentRescheduled = "appointment.rescheduled"

	TypeComplianceBreached = "compliance.breached"
)

// Event is a domain event produced by a case or appointment mutation, or by
// a compliance run detecting a new breach.
type Event struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Source        string    `json:"source"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`

	CaseID        types.ID `json:"case_id,omitempty"`
	BeneficiaryID types.ID `json:"beneficiary_id,omitempty"`
	PriorityCode  string   `json:"priority_code,omitempty"`
	ActorID       types.ID `json:"actor_id,omitempty"`

	Data map[string]any `json:"data,omitempty"`
}

// NewEvent creates a new event with auto-generated ID and timestamp
func NewEvent(eventType, source string, data map[string]any) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// WithCase attaches the case context used for escalation routing.
func (e Event) WithCase(caseID, beneficiaryID types.ID, priorityCode string) Event {
	e.CaseID = caseID
	e.BeneficiaryID = beneficiaryID
	e.PriorityCode = priorityCode
	return e
}

// WithActor records who triggered the mutation.
func (e Event) WithActor(actorID types.ID) Event {
	e.ActorID = actorID
	return e
}

// Handler is a function that handles an event
type Handler func(ctx context.Context, event Event) error

// Publisher is the write side of the bus. A nil Publisher is tolerated by
// all services: event publication is best-effort and never transactional
// with the mutation that produced it.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Bus provides event publishing and subscription backed by EventStoreDB.
type Bus struct {
	client *esdb.Client
	prefix string
	logger *zap.Logger
}

// NewBus creates a new event bus connected to EventStoreDB.
func NewBus(ctx context.Context, cfg config.EventStoreConfig, logger *zap.Logger) (*Bus, error) {
	settings, err := esdb.ParseConnectionString(connectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	client, err := esdb.NewClient(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create eventstore client: %w", err)
	}

	bus := &Bus{
		client: client,
		prefix: "rdss",
		logger: logger,
	}

	if err := bus.Health(); err != nil {
		bus.Close()
		return nil, err
	}

	return bus, nil
}

func connectionString(cfg config.EventStoreConfig) string {
	var auth string
	if cfg.Username != "" && cfg.Password != "" {
		auth = fmt.Sprintf("%s:%s@", cfg.Username, cfg.Password)
	}

	params := ""
	if cfg.Insecure {
		params = "?tls=false&tlsVerifyCert=false&keepAliveInterval=10000&keepAliveTimeout=10000"
	}

	return fmt.Sprintf("esdb://%s%s:%d%s", auth, cfg.Host, cfg.Port, params)
}

// Publish appends the event to its type stream (rdss-case-status_changed).
func (b *Bus) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	stream := fmt.Sprintf("%s-%s", b.prefix, strings.ReplaceAll(event.Type, ".", "-"))

	eventID, err := uuid.Parse(event.ID)
	if err != nil {
		eventID = uuid.New()
	}

	esdbEvent := esdb.EventData{
		EventType:   event.Type,
		ContentType: esdb.ContentTypeJson,
		Data:        data,
		EventID:     eventID,
	}

	_, err = b.client.AppendToStream(ctx, stream, esdb.AppendToStreamOptions{
		ExpectedRevision: esdb.Any{},
	}, esdbEvent)

	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Subscribe delivers future events whose type matches a wildcard pattern
// (e.g. "case.*") to handler. Delivery starts at the stream end; the
// escalation dispatcher is a monitoring consumer, not a projection.
func (b *Bus) Subscribe(ctx context.Context, pattern string, handler Handler) error {
	sub, err := b.client.SubscribeToAll(ctx, esdb.SubscribeToAllOptions{
		From: esdb.End{},
		Filter: &esdb.SubscriptionFilter{
			Type:  esdb.EventFilterType,
			Regex: patternToRegex(pattern),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to pattern %q: %w", pattern, err)
	}

	go b.pump(ctx, sub, pattern, handler)
	return nil
}

func (b *Bus) pump(ctx context.Context, sub *esdb.Subscription, pattern string, handler Handler) {
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			subEvent := sub.Recv()
			if subEvent.EventAppeared == nil {
				if subEvent.SubscriptionDropped != nil {
					b.logger.Warn("event subscription dropped",
						zap.String("pattern", pattern),
						zap.Error(subEvent.SubscriptionDropped.Error))
					return
				}
				time.Sleep(10 * time.Millisecond)
				continue
			}

			recorded := subEvent.EventAppeared.Event
			if recorded == nil {
				continue
			}

			// Skip system events
			if strings.HasPrefix(recorded.EventType, "$") {
				continue
			}

			if !matchesPattern(recorded.EventType, pattern) {
				continue
			}

			var event Event
			if err := json.Unmarshal(recorded.Data, &event); err != nil {
				b.logger.Warn("failed to decode event",
					zap.String("type", recorded.EventType), zap.Error(err))
				continue
			}
			if event.ID == "" {
				event.ID = recorded.EventID.String()
			}

			if err := handler(ctx, event); err != nil {
				b.logger.Warn("event handler error",
					zap.String("event_id", event.ID),
					zap.String("type", event.Type),
					zap.Error(err))
			}
		}
	}
}

// patternToRegex converts a simple wildcard pattern to regex
func patternToRegex(pattern string) string {
	replaced := strings.ReplaceAll(pattern, ".", `\.`)
	return strings.ReplaceAll(replaced, "*", ".*")
}

// matchesPattern checks if an event type matches a wildcard pattern
func matchesPattern(eventType, pattern string) bool {
	if pattern == "*" {
		return true
	}

	patternParts := strings.Split(pattern, ".")
	typeParts := strings.Split(eventType, ".")

	for i, pp := range patternParts {
		if pp == "*" {
			return true
		}
		if i >= len(typeParts) || pp != typeParts[i] {
			return false
		}
	}

	return len(patternParts) == len(typeParts)
}

// Close closes the event bus connection
func (b *Bus) Close() {
	if b.client != nil {
		b.client.Close()
	}
}

// Health checks the EventStoreDB connection
func (b *Bus) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := b.client.ReadStream(ctx, "$streams", esdb.ReadStreamOptions{
		From:      esdb.Start{},
		Direction: esdb.Forwards,
	}, 1)

	if err != nil {
		return fmt.Errorf("eventstore health check failed: %w", err)
	}
	defer stream.Close()

	return nil
}
