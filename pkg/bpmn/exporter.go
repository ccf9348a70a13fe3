package bpmn

import (
	"time"

	"github.com/pbinitiative/zenflow/pkg/bpmn/exporter"
	"github.com/pbinitiative/zenflow/pkg/bpmn/model/bpmn20"
	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
)

// AddEventExporter registers an EventExporter instance
func (engine *Engine) AddEventExporter(exporter exporter.EventExporter) {
	engine.exporters = append(engine.exporters, exporter)
}

func (engine *Engine) exportNewProcessEvent(definition runtime.ProcessDefinition, xmlData []byte) {
	event := exporter.ProcessEvent{
		ProcessModelId: definition.ProcessModelId,
		Version:        definition.Version,
		XmlData:        xmlData,
		ResourceName:   definition.ResourceName,
		Checksum:       definition.Hash,
		Intent:         exporter.ProcessDeployed,
		Timestamp:      time.Now().UTC(),
	}
	for _, exp := range engine.exporters {
		exp.NewProcessEvent(&event)
	}
}

func (engine *Engine) exportProcessInstanceEvent(processModelId, processInstanceId, correlationId string, intent exporter.Intent, payload any, err error) {
	event := newProcessInstanceEvent(processModelId, processInstanceId, correlationId, intent, payload)
	if err != nil {
		event.Error = err.Error()
	}
	for _, exp := range engine.exporters {
		exp.NewProcessInstanceEvent(&event)
	}
}

func (engine *Engine) exportElementEvent(token *runtime.ProcessToken, element bpmn20.FlowNode, flowNodeInstanceId string, intent exporter.Intent) {
	if len(engine.exporters) == 0 {
		return
	}
	event := newProcessInstanceEvent(token.ProcessModelId, token.ProcessInstanceId, token.CorrelationId, intent, token.Payload)
	info := exporter.ElementInfo{
		BpmnElementType:    string(element.GetType()),
		ElementId:          element.GetId(),
		FlowNodeInstanceId: flowNodeInstanceId,
		Intent:             intent,
	}
	for _, exp := range engine.exporters {
		exp.NewElementEvent(&event, &info)
	}
}

func newProcessInstanceEvent(processModelId, processInstanceId, correlationId string, intent exporter.Intent, payload any) exporter.ProcessInstanceEvent {
	return exporter.ProcessInstanceEvent{
		ProcessModelId:    processModelId,
		ProcessInstanceId: processInstanceId,
		CorrelationId:     correlationId,
		Intent:            intent,
		Payload:           runtime.DeepCopy(payload),
		Timestamp:         time.Now().UTC(),
	}
}
