// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
	"github.com/pbinitiative/zenflow/pkg/bpmn/timer"
	otelPkg "github.com/pbinitiative/zenflow/pkg/otel"
)

type cronjob struct {
	processModelId string
	startEventId   string
	expression     string
	subscription   *timer.Subscription
}

// CronjobService starts process instances from cyclic timer start events of
// the latest deployment of every process.
type CronjobService struct {
	engine *Engine

	mu       sync.Mutex
	cronjobs map[string][]*cronjob
}

// ScheduledCronjob describes one scheduled cyclic start event.
type ScheduledCronjob struct {
	ProcessModelId string
	StartEventId   string
	Expression     string
}

func newCronjobService(engine *Engine) *CronjobService {
	return &CronjobService{
		engine:   engine,
		cronjobs: map[string][]*cronjob{},
	}
}

// Start schedules the cronjobs of every latest deployment.
func (s *CronjobService) Start(ctx context.Context) error {
	definitions, err := s.engine.persistence.FindAllLatestProcessDefinitions(ctx)
	if err != nil {
		return fmt.Errorf("failed to find deployed processes: %w", err)
	}
	for i := range definitions {
		if err := s.AddOrUpdate(&definitions[i]); err != nil {
			return err
		}
	}
	return nil
}

// AddOrUpdate replaces the cronjobs of the definition's process when its
// cyclic start events changed.
func (s *CronjobService) AddOrUpdate(definition *runtime.ProcessDefinition) error {
	modelFacade := s.engine.modelFacade(definition)
	var next []*cronjob
	if modelFacade.IsExecutable() {
		for _, start := range modelFacade.GetCyclicTimerStartEvents() {
			next = append(next, &cronjob{
				processModelId: definition.ProcessModelId,
				startEventId:   start.Id,
				expression:     start.TimerEventDefinition.GetValue(),
			})
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.cronjobs[definition.ProcessModelId]
	if sameCronjobs(current, next) {
		return nil
	}
	s.stopLocked(definition.ProcessModelId)
	if len(next) == 0 {
		return nil
	}
	for _, job := range next {
		start := modelFacade.GetStartEventById(job.startEventId)
		sub, err := s.engine.timers.InitializeTimer(s.engine.ctx, job.startEventId, *start.TimerEventDefinition, time.Now(), nil, s.fire(job))
		if err != nil {
			s.stopJobs(next)
			return fmt.Errorf("failed to schedule cronjob %s of %s: %w", job.startEventId, job.processModelId, err)
		}
		job.subscription = sub
	}
	s.cronjobs[definition.ProcessModelId] = next
	s.engine.logger.Info("cronjobs scheduled", "processModelId", definition.ProcessModelId, "count", len(next))
	return nil
}

// Remove stops the cronjobs of a process.
func (s *CronjobService) Remove(processModelId string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(processModelId)
}

// Stop stops every cronjob.
func (s *CronjobService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for processModelId := range s.cronjobs {
		s.stopLocked(processModelId)
	}
}

// Scheduled lists the cronjobs of every process ordered by process and start event.
func (s *CronjobService) Scheduled() []ScheduledCronjob {
	s.mu.Lock()
	defer s.mu.Unlock()
	var scheduled []ScheduledCronjob
	for _, jobs := range s.cronjobs {
		for _, job := range jobs {
			scheduled = append(scheduled, ScheduledCronjob{
				ProcessModelId: job.processModelId,
				StartEventId:   job.startEventId,
				Expression:     job.expression,
			})
		}
	}
	sort.Slice(scheduled, func(i, j int) bool {
		if scheduled[i].ProcessModelId != scheduled[j].ProcessModelId {
			return scheduled[i].ProcessModelId < scheduled[j].ProcessModelId
		}
		return scheduled[i].StartEventId < scheduled[j].StartEventId
	})
	return scheduled
}

func (s *CronjobService) stopLocked(processModelId string) {
	s.stopJobs(s.cronjobs[processModelId])
	delete(s.cronjobs, processModelId)
}

func (s *CronjobService) stopJobs(jobs []*cronjob) {
	for _, job := range jobs {
		if job.subscription != nil {
			s.engine.timers.CancelTimerSubscription(job.subscription)
		}
	}
}

// fire starts an instance without waiting for it and records the start.
func (s *CronjobService) fire(job *cronjob) func(time.Time) {
	return func(firedAt time.Time) {
		ctx := s.engine.ctx
		entry := runtime.CronjobHistoryEntry{
			ProcessModelId:    job.processModelId,
			StartEventId:      job.startEventId,
			CrontabExpression: job.expression,
			ExecutedAt:        firedAt.UTC(),
		}
		started, err := s.engine.executeProcess.Start(ctx, StartRequest{
			ProcessModelId: job.processModelId,
			StartEventId:   job.startEventId,
		})
		if err != nil {
			entry.Error = err.Error()
			s.engine.logger.Error("cronjob failed to start process", "processModelId", job.processModelId, "startEventId", job.startEventId, "err", err)
		} else {
			entry.ProcessInstanceId = started.ProcessInstanceId
			entry.CorrelationId = started.CorrelationId
		}
		if err := s.engine.persistence.SaveCronjobHistoryEntry(ctx, entry); err != nil {
			s.engine.logger.Error("failed to save cronjob history", "processModelId", job.processModelId, "err", err)
		}
		s.engine.metrics.CronjobsFired.Add(ctx, 1, metric.WithAttributes(attribute.String(otelPkg.AttributeProcessModelId, job.processModelId)))
	}
}

func sameCronjobs(current, next []*cronjob) bool {
	if len(current) != len(next) {
		return false
	}
	for i := range current {
		if current[i].startEventId != next[i].startEventId || current[i].expression != next[i].expression {
			return false
		}
	}
	return true
}
