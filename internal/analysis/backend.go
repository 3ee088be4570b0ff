// Package analysis holds the code-analysis backends the worker's methods
// delegate to.
package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/morezero/weaver/pkg/depcheck"
	"github.com/morezero/weaver/pkg/schema"
)

// Backend answers the worker's analysis methods.
type Backend interface {
	// Name identifies the backend in project-status.
	Name() string
	ListDiagnostics(ctx context.Context) ([]schema.Diagnostic, error)
	Onboard(ctx context.Context) (string, error)
	// Check reports one record per external requirement. It never fails;
	// problems are reported in the records.
	Check(ctx context.Context) []schema.DependencyCheck
}

// DependencyError reports that an external requirement of a backend is
// missing or unusable. Its code reaches the client as error_code.
type DependencyError struct {
	Code depcheck.Code
	Msg  string
	Err  error
}

func (e *DependencyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *DependencyError) Unwrap() error { return e.Err }

// ErrorCode returns the dependency code.
func (e *DependencyError) ErrorCode() string { return string(e.Code) }

// checkFromError builds a failed dependency-check record.
func checkFromError(name, required string, found *string, err error) schema.DependencyCheck {
	c := schema.DependencyCheck{
		Type:     schema.KindDependencyCheck,
		Name:     name,
		Required: required,
		Found:    found,
		OK:       err == nil,
	}
	if err != nil {
		c.Message = err.Error()
		var de *DependencyError
		if errors.As(err, &de) {
			c.ErrorCode = de.ErrorCode()
		}
	}
	return c
}
