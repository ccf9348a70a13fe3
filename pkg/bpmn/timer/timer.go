// Package timer schedules BPMN timer event definitions.
package timer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pbinitiative/zenflow/pkg/bpmn/model/bpmn20"
)

// Evaluator resolves a timer value that is an expression ("=" prefix).
type Evaluator func(expression string) (any, error)

type Subscription struct {
	Id         uint64
	FlowNodeId string
	stopped    atomic.Bool

	mu    sync.Mutex
	timer *time.Timer
	stop  func() bool
}

func (s *Subscription) Stopped() bool { return s.stopped.Load() }

type Facade struct {
	logger hclog.Logger
	now    func() time.Time

	mu     sync.Mutex
	nextId uint64
	subs   map[uint64]*Subscription
}

func NewFacade(logger hclog.Logger) *Facade {
	return &Facade{
		logger: logger.Named("timer-facade"),
		now:    time.Now,
		subs:   map[uint64]*Subscription{},
	}
}

// ResolveValue returns the textual timer value, evaluating expressions.
func ResolveValue(definition bpmn20.TTimerEventDefinition, evaluate Evaluator) (string, error) {
	value := definition.GetValue()
	if value == "" {
		return "", fmt.Errorf("timer definition %q has no value", definition.Id)
	}
	if !strings.HasPrefix(value, "=") || evaluate == nil {
		return value, nil
	}
	result, err := evaluate(value)
	if err != nil {
		return "", fmt.Errorf("failed to evaluate timer expression %q: %w", value, err)
	}
	switch v := result.(type) {
	case string:
		return v, nil
	case time.Time:
		return v.Format(time.RFC3339), nil
	default:
		return fmt.Sprint(v), nil
	}
}

// DueTime computes when a duration or date timer fires, measured from
// reference. Cycles return their first fire time.
func DueTime(definition bpmn20.TTimerEventDefinition, reference time.Time, evaluate Evaluator) (time.Time, error) {
	value, err := ResolveValue(definition, evaluate)
	if err != nil {
		return time.Time{}, err
	}
	switch definition.GetTimerType() {
	case bpmn20.TimerTypeDate:
		return ParseDate(value)
	case bpmn20.TimerTypeCycle:
		schedule, err := ParseCycle(value)
		if err != nil {
			return time.Time{}, err
		}
		next, ok := schedule.Next(reference)
		if !ok {
			return time.Time{}, fmt.Errorf("timer cycle %q never fires", value)
		}
		return next, nil
	default:
		d, err := ParseDuration(value)
		if err != nil {
			return time.Time{}, err
		}
		return d.Shift(reference), nil
	}
}

// InitializeTimer calls onElapsed when the timer fires. Duration and date
// timers fire once, measured from reference; a due time in the past fires
// immediately. Cycles fire until their schedule is exhausted. The
// subscription stops when ctx is done or it is cancelled.
func (f *Facade) InitializeTimer(ctx context.Context, flowNodeId string, definition bpmn20.TTimerEventDefinition, reference time.Time, evaluate Evaluator, onElapsed func(firedAt time.Time)) (*Subscription, error) {
	sub := f.register(flowNodeId)

	if definition.GetTimerType() == bpmn20.TimerTypeCycle {
		value, err := ResolveValue(definition, evaluate)
		if err != nil {
			f.unregister(sub)
			return nil, err
		}
		schedule, err := ParseCycle(value)
		if err != nil {
			f.unregister(sub)
			return nil, err
		}
		f.scheduleCycle(sub, schedule, reference, onElapsed)
	} else {
		due, err := DueTime(definition, reference, evaluate)
		if err != nil {
			f.unregister(sub)
			return nil, err
		}
		f.arm(sub, due, func(firedAt time.Time) {
			f.CancelTimerSubscription(sub)
			onElapsed(firedAt)
		})
	}

	stopOnDone := context.AfterFunc(ctx, func() { f.CancelTimerSubscription(sub) })
	sub.mu.Lock()
	sub.stop = stopOnDone
	sub.mu.Unlock()
	return sub, nil
}

func (f *Facade) scheduleCycle(sub *Subscription, schedule Schedule, from time.Time, onElapsed func(firedAt time.Time)) {
	next, ok := schedule.Next(from)
	if !ok {
		f.logger.Debug("timer cycle exhausted", "flowNodeId", sub.FlowNodeId)
		f.unregister(sub)
		return
	}
	f.arm(sub, next, func(firedAt time.Time) {
		onElapsed(firedAt)
		// measured from the planned time so the cycle does not drift
		f.scheduleCycle(sub, schedule, next, onElapsed)
	})
}

func (f *Facade) arm(sub *Subscription, due time.Time, fire func(firedAt time.Time)) {
	wait := max(due.Sub(f.now()), 0)
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.Stopped() {
		return
	}
	sub.timer = time.AfterFunc(wait, func() {
		if sub.Stopped() {
			return
		}
		fire(f.now())
	})
}

// CancelTimerSubscription stops a subscription. Cancelling twice is a no-op.
func (f *Facade) CancelTimerSubscription(sub *Subscription) {
	if sub == nil || !sub.stopped.CompareAndSwap(false, true) {
		return
	}
	sub.mu.Lock()
	if sub.timer != nil {
		sub.timer.Stop()
	}
	if sub.stop != nil {
		sub.stop()
	}
	sub.mu.Unlock()
	f.unregister(sub)
}

// Stop cancels every active subscription.
func (f *Facade) Stop() {
	f.mu.Lock()
	subs := make([]*Subscription, 0, len(f.subs))
	for _, sub := range f.subs {
		subs = append(subs, sub)
	}
	f.mu.Unlock()
	for _, sub := range subs {
		f.CancelTimerSubscription(sub)
	}
}

// ActiveSubscriptions returns the number of subscriptions that may still fire.
func (f *Facade) ActiveSubscriptions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *Facade) register(flowNodeId string) *Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextId++
	sub := &Subscription{Id: f.nextId, FlowNodeId: flowNodeId}
	f.subs[sub.Id] = sub
	return sub
}

func (f *Facade) unregister(sub *Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, sub.Id)
}

// Wait blocks until due or until ctx is done, in which case it returns the
// cancellation cause.
func Wait(ctx context.Context, due time.Time) error {
	wait := time.Until(due)
	if wait <= 0 {
		return nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}
