// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/pbinitiative/zenflow/pkg/bpmn/model/bpmn20"
	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
	"github.com/pbinitiative/zenflow/pkg/storage"
)

// ResumeProcessService continues process instances from their persisted flow
// node history after the engine stopped.
type ResumeProcessService struct {
	engine *Engine
}

func newResumeProcessService(engine *Engine) *ResumeProcessService {
	return &ResumeProcessService{engine: engine}
}

// FindAndResumeInterruptedProcessInstances resumes every running top-level
// instance that this engine does not run. It returns once all resumptions
// have been started, failures are logged.
func (s *ResumeProcessService) FindAndResumeInterruptedProcessInstances(ctx context.Context, identity runtime.Identity) ([]string, error) {
	running, err := s.engine.correlations.GetProcessInstancesByState(ctx, runtime.CorrelationRunning)
	if err != nil {
		return nil, err
	}
	var group errgroup.Group
	var resumed []string
	for _, correlation := range running {
		if correlation.IsNested() || s.engine.instances.isRunning(correlation.ProcessInstanceId) {
			continue
		}
		pid := correlation.ProcessInstanceId
		resumed = append(resumed, pid)
		group.Go(func() error {
			if err := s.ResumeProcessInstanceById(ctx, identity, pid); err != nil {
				return fmt.Errorf("failed to resume process instance %s: %w", pid, err)
			}
			return nil
		})
	}
	go func() {
		if err := group.Wait(); err != nil {
			s.engine.logger.Error("failed to resume interrupted process instances", "err", err)
		}
	}()
	return resumed, nil
}

// ResumeProcessInstanceById replays the persisted history of one running
// instance and blocks until it finishes, fails or the engine stops. An empty
// identity falls back to the identity the instance was started with.
func (s *ResumeProcessService) ResumeProcessInstanceById(ctx context.Context, identity runtime.Identity, processInstanceId string) error {
	correlation, err := s.engine.correlations.GetByProcessInstanceId(ctx, processInstanceId)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return errors.Join(newValidationErrorf("process instance %s does not exist", processInstanceId), err)
		}
		return err
	}
	if correlation.State != runtime.CorrelationRunning {
		return newValidationErrorf("process instance %s is %s", processInstanceId, correlation.State)
	}
	if correlation.IsNested() {
		return newValidationErrorf("process instance %s is nested and resumes with its parent %s", processInstanceId, correlation.ParentProcessInstanceId)
	}
	if s.engine.instances.isRunning(processInstanceId) {
		return newValidationErrorf("process instance %s is already running", processInstanceId)
	}
	if identity.UserId == "" && len(identity.Claims) == 0 {
		identity = correlation.Identity
	}
	definition, err := s.engine.findDefinition(ctx, correlation.ProcessModelId, correlation.ProcessModelHash)
	if err != nil {
		return err
	}
	modelFacade := s.engine.modelFacade(definition)

	instances, err := s.engine.flowNodes.QueryByProcessInstance(ctx, processInstanceId)
	if err != nil {
		return err
	}
	if orphan, ok := orphanedOutcome(instances); ok {
		s.engine.logger.Info("finalizing orphaned process instance", "processInstanceId", processInstanceId, "flowNodeId", orphan.FlowNodeId)
		if _, err := s.engine.instances.register(s.engine.ctx, processInstanceId); err != nil {
			return err
		}
		s.engine.metrics.ProcessesRunning.Add(ctx, 1)
		result, runErr := orphanResult(orphan)
		s.engine.finalizeInstance(correlation, runErr, result)
		return nil
	}

	instanceCtx, err := s.engine.instances.register(s.engine.ctx, processInstanceId)
	if err != nil {
		return err
	}
	s.engine.metrics.ProcessesRunning.Add(ctx, 1)
	s.engine.logger.Info("resuming process instance", "processInstanceId", processInstanceId, "flowNodeInstances", len(instances))
	tokenFacade := runtime.NewTokenFacade(processInstanceId, correlation.ProcessModelId, correlation.CorrelationId, identity)
	ends := s.engine.watchEndEvents(processInstanceId)
	runErr := s.engine.drive(instanceCtx, correlation, modelFacade, tokenFacade, identity)
	ends.stop()
	var result any
	if runErr == nil {
		result, runErr = s.engine.instanceResult(context.Background(), processInstanceId, ends, tokenFacade)
	}
	s.engine.finalizeInstance(correlation, runErr, result)
	if isShutdown(runErr) {
		return nil
	}
	return runErr
}

// orphanedOutcome finds the instance that decided the outcome of a process
// whose finalization was lost: nothing is active any more but an end event
// finished, or a node failed or was terminated.
func orphanedOutcome(instances []runtime.FlowNodeInstance) (runtime.FlowNodeInstance, bool) {
	var latest *runtime.FlowNodeInstance
	for i := range instances {
		instance := &instances[i]
		if instance.IsActive() {
			return runtime.FlowNodeInstance{}, false
		}
		decisive := instance.State == runtime.FlowNodeError || instance.State == runtime.FlowNodeTerminated ||
			(instance.State == runtime.FlowNodeFinished && instance.FlowNodeType == string(bpmn20.ElementTypeEndEvent))
		if decisive && (latest == nil || instance.UpdatedAt.After(latest.UpdatedAt)) {
			latest = instance
		}
	}
	if latest == nil {
		return runtime.FlowNodeInstance{}, false
	}
	return *latest, true
}

func orphanResult(instance runtime.FlowNodeInstance) (any, error) {
	switch instance.State {
	case runtime.FlowNodeError:
		return nil, fromFlowNodeFailure(instance.ProcessInstanceId, instance.Error)
	case runtime.FlowNodeTerminated:
		reason := ""
		if instance.Error != nil {
			reason = instance.Error.Message
		}
		return nil, &TerminationError{ProcessInstanceId: instance.ProcessInstanceId, FlowNodeId: instance.FlowNodeId, Reason: reason}
	}
	if last := instance.GetLastToken(); last != nil {
		return runtime.DeepCopy(last.Payload), nil
	}
	return nil, nil
}
