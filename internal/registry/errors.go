package registry

import (
	"fmt"
	"time"
)

// ThrottleError — сервис инференса попросил подождать (Retry-After).
// Reliability-обертка использует его вместо стандартного бэкоффа.
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}
