package typed

import (
	"errors"
	"fmt"
)

// ErrType is the type-error kind shared by definition and assignment
// failures. Match it with errors.Is.
var ErrType = errors.New("typed: type error")

// ErrSealed indicates an attempt to change the shape of a sealed object,
// either by writing an undeclared key or by decorating it a second time.
var ErrSealed = errors.New("typed: object is sealed")

// ErrNilTarget indicates Decorate was called without a target.
var ErrNilTarget = errors.New("typed: decorate target must not be nil")

// DefinitionError reports a template field whose value is a function.
type DefinitionError struct {
	Object string
	Key    string
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("can't define property <%s>.%s, methods are not permitted on typed objects.", e.Object, e.Key)
}

// Is makes DefinitionError match ErrType.
func (e *DefinitionError) Is(target error) bool {
	return target == ErrType
}

// AssignmentError reports a write whose value is not assignable to the
// declared kind of the key. The store keeps its previous value.
type AssignmentError struct {
	Object   string
	Key      string
	Expected Kind
	Actual   Kind
}

func (e *AssignmentError) Error() string {
	return fmt.Sprintf("can't set property <%s>.%s, type %q is not assignable to type %q", e.Object, e.Key, e.Actual, e.Expected)
}

// Is makes AssignmentError match ErrType.
func (e *AssignmentError) Is(target error) bool {
	return target == ErrType
}
