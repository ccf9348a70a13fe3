// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"context"
	"sync"
	"time"

	"github.com/pbinitiative/zenflow/pkg/bpmn/messaging"
)

type runningInstance struct {
	ctx           context.Context
	cancel        context.CancelCauseFunc
	subscriptions []*messaging.Subscription
}

// instanceRegistry owns the context of every process instance driven by
// this engine. Termination and error broadcasts cancel it with a typed cause.
type instanceRegistry struct {
	aggregator messaging.EventAggregator
	joins      *joinRegistry

	mu        sync.Mutex
	instances map[string]*runningInstance
}

func newInstanceRegistry(aggregator messaging.EventAggregator, joins *joinRegistry) *instanceRegistry {
	return &instanceRegistry{
		aggregator: aggregator,
		joins:      joins,
		instances:  map[string]*runningInstance{},
	}
}

// register returns the context the instance runs under. Nested instances pass
// the context of their parent activity.
func (r *instanceRegistry) register(parent context.Context, processInstanceId string) (context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.instances[processInstanceId]; ok {
		return nil, newValidationErrorf("process instance %s is already running", processInstanceId)
	}
	ctx, cancel := context.WithCancelCause(parent)
	instance := &runningInstance{ctx: ctx, cancel: cancel}
	instance.subscriptions = []*messaging.Subscription{
		r.aggregator.Subscribe(messaging.ProcessInstanceTerminatedTopic(processInstanceId), func(msg messaging.Message) {
			cause := msg.Err
			if !isTermination(cause) {
				cause = &TerminationError{ProcessInstanceId: processInstanceId, Reason: "terminated"}
			}
			cancel(cause)
		}),
		r.aggregator.Subscribe(messaging.ProcessInstanceErrorTopic(processInstanceId), func(msg messaging.Message) {
			cancel(&ProcessInstanceError{ProcessInstanceId: processInstanceId, Err: msg.Err})
		}),
	}
	r.instances[processInstanceId] = instance
	return ctx, nil
}

func (r *instanceRegistry) unregister(processInstanceId string) {
	r.mu.Lock()
	instance, ok := r.instances[processInstanceId]
	delete(r.instances, processInstanceId)
	r.mu.Unlock()
	if !ok {
		return
	}
	for _, sub := range instance.subscriptions {
		r.aggregator.Unsubscribe(sub)
	}
	instance.cancel(nil)
	r.joins.removeProcessInstance(processInstanceId)
}

func (r *instanceRegistry) isRunning(processInstanceId string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.instances[processInstanceId]
	return ok
}

func (r *instanceRegistry) runningIds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.instances))
	for id := range r.instances {
		ids = append(ids, id)
	}
	return ids
}

// waitIdle blocks until every instance unregistered or the timeout elapsed.
func (r *instanceRegistry) waitIdle(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		r.mu.Lock()
		idle := len(r.instances) == 0
		r.mu.Unlock()
		if idle {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(10 * time.Millisecond)
	}
}
