package escalation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	casedomain "github.com/rdss/casework/internal/case/domain"
	"github.com/rdss/casework/internal/notification"
	"github.com/rdss/casework/internal/priority"
	"github.com/rdss/casework/internal/shared/events"
	"github.com/rdss/casework/internal/shared/metrics"
)

// Notifier is the hand-off point to the notification worker pool
type Notifier interface {
	Enqueue(n notification.Notification) bool
}

// Dispatcher translates case, appointment and compliance events into
// notification requests. Dispatch is best-effort: a failure is logged and
// never propagated back to the mutation that produced the event.
type Dispatcher struct {
	cases    casedomain.Repository
	notifier Notifier
	logger   *zap.Logger
}

// NewDispatcher creates an escalation dispatcher
func NewDispatcher(cases casedomain.Repository, notifier Notifier, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{cases: cases, notifier: notifier, logger: logger}
}

// Subscriber registers event handlers on a bus
type Subscriber interface {
	Subscribe(ctx context.Context, pattern string, handler events.Handler) error
}

// Register subscribes the dispatcher to the event streams it consumes
func (d *Dispatcher) Register(ctx context.Context, bus Subscriber) error {
	if err := bus.Subscribe(ctx, "case.*", d.Handle); err != nil {
		return err
	}
	return bus.Subscribe(ctx, "compliance.*", d.Handle)
}

// Handle processes a single event. Always returns nil: escalation never
// fails the pipeline feeding it.
func (d *Dispatcher) Handle(ctx context.Context, event events.Event) error {
	switch event.Type {
	case events.TypeCaseOpened:
		// Assigning a tier at intake escalates like a priority change.
		// An untriaged intake has no tier and nothing to route on.
		if event.PriorityCode == "" {
			return nil
		}
	case events.TypeCaseStatusChanged,
		events.TypeCasePriorityChanged,
		events.TypeCaseRiskChanged,
		events.TypeCaseClosed,
		events.TypeComplianceBreached:
		// escalated below
	default:
		return nil
	}

	if event.CaseID.IsZero() {
		d.logger.Warn("escalation event without case context",
			zap.String("type", event.Type), zap.String("event_id", event.ID))
		return nil
	}

	c, err := d.cases.FindByID(ctx, event.CaseID)
	if err != nil {
		d.logger.Warn("failed to resolve case for escalation",
			zap.String("case_id", event.CaseID.String()),
			zap.String("type", event.Type),
			zap.Error(err))
		return nil
	}

	tierCode := event.PriorityCode
	if tierCode == "" {
		tierCode = c.PriorityCode
	}

	recipients := []notification.Recipient{
		{ID: c.PrimaryWorkerID, Role: notification.RoleWorker},
	}
	// P1-P3 escalate to a supervisory recipient set in addition to the
	// assigned worker.
	if priority.IsSupervisoryCode(tierCode) && !c.SupervisorID.IsZero() {
		recipients = append(recipients, notification.Recipient{
			ID:   c.SupervisorID,
			Role: notification.RoleSupervisor,
		})
	}

	n := notification.Notification{
		EventType:     event.Type,
		CaseID:        c.ID,
		BeneficiaryID: c.BeneficiaryID,
		PriorityCode:  tierCode,
		Recipients:    recipients,
		Subject:       subjectFor(event, tierCode),
		Body:          bodyFor(event, c),
		Payload:       event.Data,
	}

	if !d.notifier.Enqueue(n) {
		d.logger.Warn("escalation notification dropped",
			zap.String("case_id", c.ID.String()),
			zap.String("type", event.Type))
		return nil
	}

	metrics.RecordEscalation(event.Type, tierCode)
	return nil
}

func subjectFor(event events.Event, tierCode string) string {
	prefix := ""
	if tierCode != "" {
		prefix = fmt.Sprintf("[%s] ", tierCode)
	}

	switch event.Type {
	case events.TypeCaseOpened:
		return prefix + "New case opened"
	case events.TypeCaseStatusChanged:
		return prefix + "Case status changed"
	case events.TypeCasePriorityChanged:
		return prefix + "Case priority changed"
	case events.TypeCaseRiskChanged:
		return prefix + "Case risk level changed"
	case events.TypeCaseClosed:
		return prefix + "Case closed"
	case events.TypeComplianceBreached:
		return prefix + "Contact cadence breached"
	}
	return prefix + "Case update"
}

func bodyFor(event events.Event, c *casedomain.Case) string {
	switch event.Type {
	case events.TypeCaseOpened:
		return fmt.Sprintf("Case %q was opened at priority %s.", c.Title, event.PriorityCode)
	case events.TypeComplianceBreached:
		if never, ok := event.Data["never_contacted"].(bool); ok && never {
			return fmt.Sprintf("Case %q has no recorded contact and requires immediate follow-up.", c.Title)
		}
		return fmt.Sprintf("Case %q has exceeded its required contact cadence.", c.Title)
	case events.TypeCaseRiskChanged:
		return fmt.Sprintf("Case %q risk level is now %s.", c.Title, c.RiskLevel)
	case events.TypeCaseClosed:
		return fmt.Sprintf("Case %q was closed: %s", c.Title, c.ClosureReason)
	default:
		return fmt.Sprintf("Case %q was updated (%s).", c.Title, event.Type)
	}
}
