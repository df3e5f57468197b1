package protocol

import (
	"errors"
	"fmt"

	"github.com/dukex/orchestra/pkg/models"
)

const (
	KindComponentNotFound    = "ComponentNotFound"
	KindConditionEvaluation  = "ConditionEvaluationError"
	KindNoPathSelected       = "NoPathSelected"
	KindJoinMisconfigured    = "JoinMisconfigured"
	KindComponentExecution   = "ComponentExecutionError"
	KindArrivalNotAwaited    = "ArrivalNotAwaited"
	KindLateArrival          = "LateArrival"
	KindIncompatibleNodeType = "IncompatibleNodeType"
	KindInvalidConfiguration = "InvalidConfiguration"
	KindStateTimeout         = "StateTimeout"
)

var (
	ErrComponentNotFound    = errors.New("component not found")
	ErrConditionEvaluation  = errors.New("condition evaluation failed")
	ErrNoPathSelected       = errors.New("no condition met and no default path defined")
	ErrJoinMisconfigured    = errors.New("join misconfigured")
	ErrComponentExecution   = errors.New("component execution failed")
	ErrArrivalNotAwaited    = errors.New("arrival is not awaited by this join")
	ErrLateArrival          = errors.New("arrival after the barrier fired")
	ErrIncompatibleNodeType = errors.New("component does not support node type")
	ErrInvalidConfiguration = errors.New("invalid component configuration")
	ErrStateTimeout         = errors.New("node execution timed out")
)

var kinds = []struct {
	kind string
	err  error
}{
	{KindComponentNotFound, ErrComponentNotFound},
	{KindConditionEvaluation, ErrConditionEvaluation},
	{KindNoPathSelected, ErrNoPathSelected},
	{KindJoinMisconfigured, ErrJoinMisconfigured},
	{KindComponentExecution, ErrComponentExecution},
	{KindArrivalNotAwaited, ErrArrivalNotAwaited},
	{KindLateArrival, ErrLateArrival},
	{KindIncompatibleNodeType, ErrIncompatibleNodeType},
	{KindInvalidConfiguration, ErrInvalidConfiguration},
	{KindStateTimeout, ErrStateTimeout},
}

// ComponentError is a failure reported by or about a component.
type ComponentError struct {
	Kind    string
	Message string
	Err     error
}

func (e *ComponentError) Error() string {
	if e.Message == "" {
		return e.Err.Error()
	}

	return e.Message
}

func (e *ComponentError) Unwrap() error {
	return e.Err
}

// Errorf wraps sentinel with a formatted message.
func Errorf(sentinel error, format string, args ...any) error {
	return &ComponentError{
		Kind:    KindOf(sentinel),
		Message: fmt.Sprintf(format, args...),
		Err:     sentinel,
	}
}

// KindOf classifies err. Errors outside the taxonomy are execution errors.
func KindOf(err error) string {
	var componentErr *ComponentError
	if errors.As(err, &componentErr) && componentErr.Kind != "" {
		return componentErr.Kind
	}

	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}

	return KindComponentExecution
}

// ToPayload converts err into its wire form.
func ToPayload(err error) *models.ErrorPayload {
	if err == nil {
		return nil
	}

	return &models.ErrorPayload{Kind: KindOf(err), Message: err.Error()}
}

// FromPayload rebuilds an error that matches the taxonomy sentinels with errors.Is.
func FromPayload(payload *models.ErrorPayload) error {
	if payload == nil {
		return nil
	}

	sentinel := ErrComponentExecution

	for _, k := range kinds {
		if k.kind == payload.Kind {
			sentinel = k.err

			break
		}
	}

	return &ComponentError{Kind: payload.Kind, Message: payload.Message, Err: sentinel}
}
