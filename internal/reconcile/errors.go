package reconcile

import "fmt"

// UpstreamGatewayError reports a failed gateway admin API call made while
// converging a route. Err is the underlying gateway or transport error.
type UpstreamGatewayError struct {
	Op        string
	RouteName string
	Err       error
}

// Error implements the error interface.
func (e *UpstreamGatewayError) Error() string {
	if e.RouteName != "" {
		return fmt.Sprintf("gateway %s failed for %s: %v", e.Op, e.RouteName, e.Err)
	}
	return fmt.Sprintf("gateway %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *UpstreamGatewayError) Unwrap() error {
	return e.Err
}

func upstream(op, routeName string, err error) error {
	return &UpstreamGatewayError{Op: op, RouteName: routeName, Err: err}
}
