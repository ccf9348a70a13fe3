package error

import (
	"errors"
	"net/http"

	"github.com/pbinitiative/zenflow/pkg/bpmn"
	"github.com/pbinitiative/zenflow/pkg/storage"
)

const (
	TypeBadRequest = "BAD_REQUEST"
	TypeNotFound   = "NOT_FOUND"
	TypeConflict   = "CONFLICT"
	TypeError      = "ERROR"
)

type ApiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (e ApiError) Error() string {
	return e.Type + ": " + e.Message
}

// FromError classifies an engine error and returns the HTTP status it is
// reported with.
func FromError(err error) (int, ApiError) {
	var (
		validationErr  *bpmn.ValidationError
		unmarshalErr   *bpmn.BpmnEngineUnmarshallingError
		bpmnErr        *bpmn.BpmnError
		terminationErr *bpmn.TerminationError
	)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, ApiError{Message: err.Error(), Type: TypeNotFound}
	case errors.As(err, &validationErr), errors.As(err, &unmarshalErr):
		return http.StatusBadRequest, ApiError{Message: err.Error(), Type: TypeBadRequest}
	case errors.As(err, &bpmnErr), errors.As(err, &terminationErr):
		return http.StatusConflict, ApiError{Message: err.Error(), Type: TypeConflict}
	}
	return http.StatusInternalServerError, ApiError{Message: err.Error(), Type: TypeError}
}
