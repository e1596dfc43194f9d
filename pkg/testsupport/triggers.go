package testsupport

import (
	"context"
	"sync"

	"github.com/goliatone/go-entity/entity"
	"github.com/goliatone/go-entity/privacy"
	"github.com/goliatone/go-entity/schema"
	"github.com/goliatone/go-entity/store"
)

// TriggerCall is one recorded trigger execution.
type TriggerCall struct {
	Name          string
	EntityID      any
	Type          entity.MutationType
	InTransaction bool
	HasCause      bool
}

// CallLog records trigger executions and rule evaluations in call order.
type CallLog struct {
	mu    sync.Mutex
	calls []TriggerCall
}

// Trigger returns a trigger recording its calls under name. It returns err
// from every call.
func (l *CallLog) Trigger(name string, err error) schema.TriggerFunc {
	return func(_ context.Context, qc *store.QueryContext, _ *entity.ViewerContext, ent entity.Entity, info entity.MutationInfo) error {
		l.add(TriggerCall{
			Name:          name,
			EntityID:      ent.ID(),
			Type:          info.Type,
			InTransaction: qc != nil && qc.IsInTransaction(),
			HasCause:      info.Cause != nil,
		})
		return err
	}
}

// Rule returns a privacy rule recording its evaluations under name and
// returning decision.
func (l *CallLog) Rule(name string, decision error) privacy.Rule {
	return privacy.RuleFunc(func(_ context.Context, in privacy.Input) error {
		call := TriggerCall{Name: name, HasCause: in.Cause != nil}
		if in.Entity != nil {
			call.EntityID = in.Entity.ID()
		}
		l.add(call)
		return decision
	})
}

func (l *CallLog) add(call TriggerCall) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

// Calls returns the recorded calls.
func (l *CallLog) Calls() []TriggerCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]TriggerCall(nil), l.calls...)
}

// Names returns the names of the recorded calls.
func (l *CallLog) Names() []string {
	calls := l.Calls()
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.Name
	}
	return names
}

// Count returns how many calls were recorded under name.
func (l *CallLog) Count(name string) int {
	n := 0
	for _, c := range l.Calls() {
		if c.Name == name {
			n++
		}
	}
	return n
}

// Reset drops the recorded calls.
func (l *CallLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = nil
}
