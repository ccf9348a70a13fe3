// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package exporter

import "time"

// EventExporter receives observability events. Exporters must not block and
// must not be used for coordination between handlers.
type EventExporter interface {
	NewProcessEvent(event *ProcessEvent)
	NewProcessInstanceEvent(event *ProcessInstanceEvent)
	NewElementEvent(event *ProcessInstanceEvent, elementInfo *ElementInfo)
}

type Intent string

const (
	ProcessDeployed   Intent = "PROCESS_DEPLOYED"
	ProcessStarted    Intent = "PROCESS_STARTED"
	ProcessFinished   Intent = "PROCESS_FINISHED"
	ProcessError      Intent = "PROCESS_ERROR"
	ProcessTerminated Intent = "PROCESS_TERMINATED"

	ElementActivated       Intent = "ELEMENT_ACTIVATED"
	ElementCompleted       Intent = "ELEMENT_COMPLETED"
	UserTaskReached        Intent = "USER_TASK_REACHED"
	UserTaskFinished       Intent = "USER_TASK_FINISHED"
	ManualTaskReached      Intent = "MANUAL_TASK_REACHED"
	ManualTaskFinished     Intent = "MANUAL_TASK_FINISHED"
	EndEventReached        Intent = "END_EVENT_REACHED"
	BoundaryEventTriggered Intent = "BOUNDARY_EVENT_TRIGGERED"
)

type ProcessEvent struct {
	ProcessModelId string
	Version        int32
	XmlData        []byte
	ResourceName   string
	Checksum       string
	Intent         Intent
	Timestamp      time.Time
}

type ProcessInstanceEvent struct {
	ProcessModelId    string
	ProcessInstanceId string
	CorrelationId     string
	Intent            Intent
	Payload           any
	Error             string
	Timestamp         time.Time
}

type ElementInfo struct {
	BpmnElementType    string
	ElementId          string
	FlowNodeInstanceId string
	Intent             Intent
}
