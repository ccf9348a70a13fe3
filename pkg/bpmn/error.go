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

	"github.com/pbinitiative/zenflow/pkg/bpmn/model/bpmn20"
	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
	"github.com/pbinitiative/zenflow/pkg/script"
)

type BpmnEngineError struct {
	Msg string
}

func (e *BpmnEngineError) Error() string {
	return e.Msg
}

// newEngineErrorf uses fmt.Sprintf(format, a...) to format the message
func newEngineErrorf(format string, a ...interface{}) error {
	return &BpmnEngineError{
		Msg: fmt.Sprintf(format, a...),
	}
}

type BpmnEngineUnmarshallingError struct {
	Msg string
	Err error
}

func (e *BpmnEngineUnmarshallingError) Error() string {
	if len(e.Msg) > 0 {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

func (e *BpmnEngineUnmarshallingError) Unwrap() error { return e.Err }

type ExpressionEvaluationError struct {
	Msg string
	Err error
}

func (e *ExpressionEvaluationError) Error() string {
	if e.Err != nil {
		return e.Msg + "\nerror: " + e.Err.Error()
	}
	return e.Msg
}

func (e *ExpressionEvaluationError) Unwrap() error { return e.Err }

// ValidationError marks a model or request that cannot be executed.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func newValidationErrorf(format string, a ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, a...)}
}

// BpmnError is a business error raised by an error end event, a script or a
// task handler. Error boundary events catch it by code or name.
type BpmnError struct {
	Code    string
	Name    string
	Message string
}

func (e *BpmnError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("bpmn error %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("bpmn error %s", e.Code)
}

// TerminationError ends every handler of a process instance and of the
// instances nested in it.
type TerminationError struct {
	ProcessInstanceId string
	FlowNodeId        string
	Reason            string
}

func (e *TerminationError) Error() string {
	msg := fmt.Sprintf("process instance %s terminated", e.ProcessInstanceId)
	if e.FlowNodeId != "" {
		msg += " at " + e.FlowNodeId
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// ProcessInstanceError is the cancellation cause of branches whose process
// instance failed elsewhere.
type ProcessInstanceError struct {
	ProcessInstanceId string
	Err               error
}

func (e *ProcessInstanceError) Error() string {
	return fmt.Sprintf("process instance %s failed: %v", e.ProcessInstanceId, e.Err)
}

func (e *ProcessInstanceError) Unwrap() error { return e.Err }

// boundaryInterrupt is the cancellation cause of an activity interrupted by
// one of its boundary events.
type boundaryInterrupt struct {
	boundary *bpmn20.TBoundaryEvent
	instance runtime.FlowNodeInstance
}

func (e *boundaryInterrupt) Error() string {
	return fmt.Sprintf("interrupted by boundary event %s", e.boundary.Id)
}

// isTermination also covers boundary interrupts, which terminate the
// interrupted activity and everything nested in it.
func isTermination(err error) bool {
	var termination *TerminationError
	var interrupt *boundaryInterrupt
	return errors.As(err, &termination) || errors.As(err, &interrupt)
}

// isShutdown reports a plain cancellation without a typed cause. The flow
// node stays resumable.
func isShutdown(err error) bool {
	if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var instanceErr *ProcessInstanceError
	return !isTermination(err) && !errors.As(err, &instanceErr)
}

// asBpmnError converts script errors so error boundaries can match them.
func asBpmnError(err error) (*BpmnError, bool) {
	var bpmnErr *BpmnError
	if errors.As(err, &bpmnErr) {
		return bpmnErr, true
	}
	var thrown *script.ThrownError
	if errors.As(err, &thrown) {
		return &BpmnError{Code: thrown.Code, Name: thrown.Name, Message: thrown.Message}, true
	}
	return nil, false
}

func toFlowNodeFailure(err error) *runtime.FlowNodeFailure {
	if err == nil {
		return nil
	}
	var validation *ValidationError
	switch {
	case isTermination(err):
		return &runtime.FlowNodeFailure{Kind: runtime.ErrorKindTermination, Message: err.Error()}
	case errors.As(err, &validation):
		return &runtime.FlowNodeFailure{Kind: runtime.ErrorKindValidation, Message: err.Error()}
	}
	if bpmnErr, ok := asBpmnError(err); ok {
		return &runtime.FlowNodeFailure{Kind: runtime.ErrorKindBusiness, Code: bpmnErr.Code, Name: bpmnErr.Name, Message: bpmnErr.Message}
	}
	return &runtime.FlowNodeFailure{Kind: runtime.ErrorKindInfrastructure, Message: err.Error()}
}

// fromFlowNodeFailure rebuilds a typed error from its persisted form.
func fromFlowNodeFailure(processInstanceId string, fe *runtime.FlowNodeFailure) error {
	if fe == nil {
		return newEngineErrorf("process instance %s failed without a recorded error", processInstanceId)
	}
	switch fe.Kind {
	case runtime.ErrorKindTermination:
		return &TerminationError{ProcessInstanceId: processInstanceId, Reason: fe.Message}
	case runtime.ErrorKindValidation:
		return &ValidationError{Msg: fe.Message}
	case runtime.ErrorKindBusiness:
		return &BpmnError{Code: fe.Code, Name: fe.Name, Message: fe.Message}
	}
	return &BpmnEngineError{Msg: fe.Message}
}
