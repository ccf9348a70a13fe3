package bpmn

import (
	"errors"
	"sync"
	"time"

	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
)

// ActivatedJob represents an abstraction for the activated job
// don't forget to call Fail, ThrowError or Complete when your task worker job is complete or not.
type ActivatedJob interface {
	// Key the flow node instance id, a unique identifier for the job
	Key() string

	ProcessInstanceId() string

	CorrelationId() string

	ProcessModelId() string

	// ElementId Get element id of the job
	ElementId() string

	// Variable reads a top level key of the token payload
	Variable(key string) any

	// Payload is a copy of the token payload
	Payload() any

	// Token is the branch history in the form scripts see it
	Token() map[string]any

	Identity() runtime.Identity

	// CreatedAt when the job was created
	CreatedAt() time.Time

	// Fail ends the task with an error, Fail, ThrowError and Complete mutually exclude each other
	Fail(err error)

	// ThrowError ends the task with a business error error boundary events can catch
	ThrowError(code, message string)

	// Complete ends the task successfully, result becomes the new payload
	Complete(result any)
}

type jobOutcome struct {
	result any
	err    error
}

type activatedJob struct {
	key               string
	processInstanceId string
	correlationId     string
	processModelId    string
	elementId         string
	createdAt         time.Time
	payload           any
	token             map[string]any
	identity          runtime.Identity

	once    sync.Once
	outcome chan jobOutcome
}

func newActivatedJob(exec *execution) *activatedJob {
	return &activatedJob{
		key:               exec.instance.Id,
		processInstanceId: exec.token.ProcessInstanceId,
		correlationId:     exec.token.CorrelationId,
		processModelId:    exec.token.ProcessModelId,
		elementId:         exec.flowNode.GetId(),
		createdAt:         exec.instance.CreatedAt,
		payload:           runtime.DeepCopy(exec.token.Payload),
		token:             exec.tokenFacade.GetOldTokenFormat(),
		identity:          exec.identity,
		outcome:           make(chan jobOutcome, 1),
	}
}

func (aj *activatedJob) Key() string               { return aj.key }
func (aj *activatedJob) ProcessInstanceId() string { return aj.processInstanceId }
func (aj *activatedJob) CorrelationId() string     { return aj.correlationId }
func (aj *activatedJob) ProcessModelId() string    { return aj.processModelId }
func (aj *activatedJob) ElementId() string         { return aj.elementId }
func (aj *activatedJob) CreatedAt() time.Time      { return aj.createdAt }
func (aj *activatedJob) Payload() any              { return runtime.DeepCopy(aj.payload) }
func (aj *activatedJob) Token() map[string]any     { return aj.token }
func (aj *activatedJob) Identity() runtime.Identity {
	return aj.identity
}

// Variable implements ActivatedJob
func (aj *activatedJob) Variable(key string) any {
	if variables, ok := aj.payload.(map[string]any); ok {
		return variables[key]
	}
	return nil
}

// Fail implements ActivatedJob
func (aj *activatedJob) Fail(err error) {
	if err == nil {
		err = errors.New("job failed")
	}
	aj.finish(jobOutcome{err: err})
}

// ThrowError implements ActivatedJob
func (aj *activatedJob) ThrowError(code, message string) {
	aj.finish(jobOutcome{err: &BpmnError{Code: code, Message: message}})
}

// Complete implements ActivatedJob
func (aj *activatedJob) Complete(result any) {
	aj.finish(jobOutcome{result: result})
}

func (aj *activatedJob) finish(outcome jobOutcome) {
	aj.once.Do(func() {
		aj.outcome <- outcome
	})
}
