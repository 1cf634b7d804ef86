package escalation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	casedomain "github.com/rdss/casework/internal/case/domain"
	"github.com/rdss/casework/internal/notification"
	"github.com/rdss/casework/internal/shared/errors"
	"github.com/rdss/casework/internal/shared/events"
	"github.com/rdss/casework/internal/shared/types"
)

type fakeCaseRepo struct {
	cases map[types.ID]*casedomain.Case
}

func (r *fakeCaseRepo) Save(_ context.Context, c *casedomain.Case) error {
	r.cases[c.ID] = c
	return nil
}

func (r *fakeCaseRepo) FindByID(_ context.Context, id types.ID) (*casedomain.Case, error) {
	c, ok := r.cases[id]
	if !ok {
		return nil, errors.NotFound("case", id.String())
	}
	return c, nil
}

func (r *fakeCaseRepo) Update(_ context.Context, c *casedomain.Case) error {
	r.cases[c.ID] = c
	return nil
}

func (r *fakeCaseRepo) List(context.Context, casedomain.ListFilter) ([]casedomain.Case, int, error) {
	return nil, 0, nil
}

func (r *fakeCaseRepo) OpenCases(context.Context) ([]casedomain.ComplianceView, error) {
	return nil, nil
}

func (r *fakeCaseRepo) GetEvents(context.Context, types.ID, int, int) ([]casedomain.CaseEvent, error) {
	return nil, nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	enqueued []notification.Notification
	full     bool
}

func (n *fakeNotifier) Enqueue(notif notification.Notification) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.full {
		return false
	}
	n.enqueued = append(n.enqueued, notif)
	return true
}

func (n *fakeNotifier) all() []notification.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]notification.Notification, len(n.enqueued))
	copy(out, n.enqueued)
	return out
}

func newTestDispatcher(t *testing.T, priorityCode string) (*Dispatcher, *fakeNotifier, *casedomain.Case) {
	t.Helper()

	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	c, err := casedomain.NewCase(types.NewID(), "Support case", "", priorityCode, types.NewID(), types.NewID(), now)
	require.NoError(t, err)

	repo := &fakeCaseRepo{cases: map[types.ID]*casedomain.Case{c.ID: c}}
	notifier := &fakeNotifier{}
	return NewDispatcher(repo, notifier, zap.NewNop()), notifier, c
}

func statusEvent(c *casedomain.Case) events.Event {
	return events.NewEvent(events.TypeCaseStatusChanged, "case", map[string]any{
		"old_status": "open", "new_status": "active",
	}).WithCase(c.ID, c.BeneficiaryID, c.PriorityCode)
}

func TestSupervisoryRoutingHighTiers(t *testing.T) {
	for _, code := range []string{"P1", "P2", "P3"} {
		t.Run(code, func(t *testing.T) {
			d, notifier, c := newTestDispatcher(t, code)

			require.NoError(t, d.Handle(context.Background(), statusEvent(c)))

			sent := notifier.all()
			require.Len(t, sent, 1)
			require.Len(t, sent[0].Recipients, 2, "high tiers route to worker and supervisor")

			assert.Equal(t, c.PrimaryWorkerID, sent[0].Recipients[0].ID)
			assert.Equal(t, notification.RoleWorker, sent[0].Recipients[0].Role)
			assert.Equal(t, c.SupervisorID, sent[0].Recipients[1].ID)
			assert.Equal(t, notification.RoleSupervisor, sent[0].Recipients[1].Role)
		})
	}
}

func TestWorkerOnlyRoutingLowTiers(t *testing.T) {
	for _, code := range []string{"P4", "P5", "P6"} {
		t.Run(code, func(t *testing.T) {
			d, notifier, c := newTestDispatcher(t, code)

			require.NoError(t, d.Handle(context.Background(), statusEvent(c)))

			sent := notifier.all()
			require.Len(t, sent, 1)
			require.Len(t, sent[0].Recipients, 1, "low tiers route to the worker only")
			assert.Equal(t, c.PrimaryWorkerID, sent[0].Recipients[0].ID)
		})
	}
}

func TestOpenedWithTierEscalates(t *testing.T) {
	tests := []struct {
		code       string
		recipients int
	}{
		{"P1", 2},
		{"P3", 2},
		{"P5", 1},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			d, notifier, c := newTestDispatcher(t, tt.code)

			event := events.NewEvent(events.TypeCaseOpened, "case", nil).
				WithCase(c.ID, c.BeneficiaryID, c.PriorityCode)
			require.NoError(t, d.Handle(context.Background(), event))

			sent := notifier.all()
			require.Len(t, sent, 1, "tier assignment at intake must notify")
			assert.Len(t, sent[0].Recipients, tt.recipients)
			assert.Contains(t, sent[0].Subject, "["+tt.code+"]")
		})
	}
}

func TestOpenedWithoutTierIsSilent(t *testing.T) {
	d, notifier, c := newTestDispatcher(t, "")

	event := events.NewEvent(events.TypeCaseOpened, "case", nil).
		WithCase(c.ID, c.BeneficiaryID, c.PriorityCode)

	require.NoError(t, d.Handle(context.Background(), event))
	assert.Empty(t, notifier.all(), "untriaged intake has no tier to route on")
}

func TestComplianceBreachEscalation(t *testing.T) {
	d, notifier, c := newTestDispatcher(t, "P2")

	event := events.NewEvent(events.TypeComplianceBreached, "compliance", map[string]any{
		"days_overdue":    42,
		"never_contacted": false,
	}).WithCase(c.ID, c.BeneficiaryID, c.PriorityCode)

	require.NoError(t, d.Handle(context.Background(), event))

	sent := notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, events.TypeComplianceBreached, sent[0].EventType)
	assert.Equal(t, "P2", sent[0].PriorityCode)
	assert.Len(t, sent[0].Recipients, 2)
	assert.Contains(t, sent[0].Subject, "[P2]")
}

func TestIgnoredEventTypes(t *testing.T) {
	// case.transferred is deliberately absent: the receiving team owns the
	// hand-off notice, closure is the only terminal state escalated here.
	for _, eventType := range []string{events.TypeAppointmentScheduled, "case.transferred"} {
		t.Run(eventType, func(t *testing.T) {
			d, notifier, c := newTestDispatcher(t, "P1")

			event := events.NewEvent(eventType, "case", nil).
				WithCase(c.ID, c.BeneficiaryID, c.PriorityCode)

			require.NoError(t, d.Handle(context.Background(), event))
			assert.Empty(t, notifier.all())
		})
	}
}

func TestDispatchNeverPropagatesFailure(t *testing.T) {
	d, notifier, c := newTestDispatcher(t, "P1")

	// Full queue: the event is dropped, not failed
	notifier.full = true
	assert.NoError(t, d.Handle(context.Background(), statusEvent(c)))

	// Unknown case: logged and swallowed
	orphan := events.NewEvent(events.TypeCaseStatusChanged, "case", nil).
		WithCase(types.NewID(), types.NewID(), "P1")
	assert.NoError(t, d.Handle(context.Background(), orphan))
	assert.Empty(t, notifier.all())
}

func TestUntriagedCaseRoutesWorkerOnly(t *testing.T) {
	d, notifier, c := newTestDispatcher(t, "")

	require.NoError(t, d.Handle(context.Background(), statusEvent(c)))

	sent := notifier.all()
	require.Len(t, sent, 1)
	assert.Len(t, sent[0].Recipients, 1)
}
