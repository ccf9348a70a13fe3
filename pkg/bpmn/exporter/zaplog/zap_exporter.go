// Package zaplog writes observability events as structured zap log lines.
package zaplog

import (
	"github.com/pbinitiative/zenflow/pkg/bpmn/exporter"
	"go.uber.org/zap"
)

type Exporter struct {
	logger *zap.Logger
}

var _ exporter.EventExporter = &Exporter{}

// New returns an exporter writing to logger.
func New(logger *zap.Logger) *Exporter {
	return &Exporter{logger: logger.Named("audit")}
}

// NewDefault builds a production or development zap logger.
func NewDefault(development bool) (*Exporter, error) {
	var logger *zap.Logger
	var err error
	if development {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return New(logger), nil
}

func (e *Exporter) NewProcessEvent(event *exporter.ProcessEvent) {
	e.logger.Info(string(event.Intent),
		zap.String("processModelId", event.ProcessModelId),
		zap.Int32("version", event.Version),
		zap.String("resourceName", event.ResourceName),
		zap.String("checksum", event.Checksum),
		zap.Time("timestamp", event.Timestamp),
	)
}

func (e *Exporter) NewProcessInstanceEvent(event *exporter.ProcessInstanceEvent) {
	fields := processInstanceFields(event)
	if event.Error != "" {
		e.logger.Warn(string(event.Intent), append(fields, zap.String("error", event.Error))...)
		return
	}
	e.logger.Info(string(event.Intent), fields...)
}

func (e *Exporter) NewElementEvent(event *exporter.ProcessInstanceEvent, elementInfo *exporter.ElementInfo) {
	fields := append(processInstanceFields(event),
		zap.String("elementType", elementInfo.BpmnElementType),
		zap.String("elementId", elementInfo.ElementId),
		zap.String("flowNodeInstanceId", elementInfo.FlowNodeInstanceId),
	)
	e.logger.Debug(string(elementInfo.Intent), fields...)
}

func (e *Exporter) Sync() error {
	return e.logger.Sync()
}

func processInstanceFields(event *exporter.ProcessInstanceEvent) []zap.Field {
	return []zap.Field{
		zap.String("processModelId", event.ProcessModelId),
		zap.String("processInstanceId", event.ProcessInstanceId),
		zap.String("correlationId", event.CorrelationId),
		zap.Time("timestamp", event.Timestamp),
	}
}
