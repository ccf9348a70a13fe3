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
	"strings"

	"github.com/pbinitiative/zenflow/pkg/bpmn/model/bpmn20"
)

// exclusivelyFilterByConditionExpression
// [From BPMN 2.0 Specification, chapter 10.5.2 Exclusive Gateway]
// A diverging Exclusive Gateway (Decision) is used to create alternative paths within a Process flow. For a given
// instance of the Process, only one of the paths can be taken.
// A default path can optionally be identified, to be taken in the event that none of the conditional Expressions evaluate
// to true. If a default path is not specified and the Process is executed such that none of the conditional Expressions
// evaluates to true, a runtime exception occurs.
func exclusivelyFilterByConditionExpression(ctx context.Context, evaluator *expressionEvaluator, flows []*bpmn20.TSequenceFlow, defaultFlowId string, scope map[string]any) ([]*bpmn20.TSequenceFlow, error) {
	var defaultFlow, unconditional *bpmn20.TSequenceFlow
	flowIds := strings.Builder{}
	for _, flow := range flows {
		if flow.Id == defaultFlowId {
			defaultFlow = flow
			continue
		}
		if !flow.HasCondition() {
			if unconditional == nil {
				unconditional = flow
			}
			continue
		}
		flowIds.WriteString(fmt.Sprintf("[id='%s',name='%s']", flow.Id, flow.Name))
		ok, err := evaluator.evaluateCondition(ctx, flow.ConditionExpression.GetText(), scope)
		if err != nil {
			return nil, &ExpressionEvaluationError{
				Msg: fmt.Sprintf("Error evaluating expression in flow element id='%s' name='%s'", flow.Id, flow.Name),
				Err: err,
			}
		}
		if ok {
			return []*bpmn20.TSequenceFlow{flow}, nil
		}
	}
	switch {
	case unconditional != nil:
		return []*bpmn20.TSequenceFlow{unconditional}, nil
	case defaultFlow != nil:
		return []*bpmn20.TSequenceFlow{defaultFlow}, nil
	}
	return nil, &ExpressionEvaluationError{
		Msg: fmt.Sprintf("No default flow, nor matching expressions found, for flow elements: %s", flowIds.String()),
	}
}

// inclusivelyFilterByConditionExpression
// [From BPMN 2.0 Specification, chapter 10.5.3 Inclusive Gateway]
// A diverging Inclusive Gateway (Inclusive Decision) can be used to create alternative but also parallel paths within a
// Process flow. Unlike the Exclusive Gateway, all condition Expressions are evaluated. All Sequence Flows with
// a true evaluation will be traversed by a token.
func inclusivelyFilterByConditionExpression(ctx context.Context, evaluator *expressionEvaluator, gatewayId string, flows []*bpmn20.TSequenceFlow, defaultFlowId string, scope map[string]any) ([]*bpmn20.TSequenceFlow, error) {
	var ret []*bpmn20.TSequenceFlow
	var defaultFlow *bpmn20.TSequenceFlow
	for _, flow := range flows {
		if flow.Id == defaultFlowId {
			defaultFlow = flow
			continue
		}
		if !flow.HasCondition() {
			ret = append(ret, flow)
			continue
		}
		ok, err := evaluator.evaluateCondition(ctx, flow.ConditionExpression.GetText(), scope)
		if err != nil {
			return nil, &ExpressionEvaluationError{
				Msg: fmt.Sprintf("Error evaluating expression in flow element id='%s' name='%s'", flow.Id, flow.Name),
				Err: err,
			}
		}
		if ok {
			ret = append(ret, flow)
		}
	}
	if len(ret) == 0 {
		if defaultFlow == nil {
			return nil, &ExpressionEvaluationError{
				Msg: fmt.Sprintf("No default flow, nor matching expressions found for gateway: %s", gatewayId),
			}
		}
		ret = append(ret, defaultFlow)
	}
	return ret, nil
}
