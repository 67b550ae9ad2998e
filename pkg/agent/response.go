package agent

import "errors"

// OutcomeFailed and OutcomeInvalid label runs that returned an error.
const (
	OutcomeFailed  = "failed"
	OutcomeInvalid = "invalid"
)

// Response is the tool-boundary shape of a run: the Result fields flattened
// next to a success flag and, for failed runs, the error text.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	*Result
}

// NewResponse wraps the return values of Run. A blocked or budget-exhausted
// run is still a successful invocation; only errors set Success to false.
func NewResponse(res *Result, err error) Response {
	if err != nil {
		return Response{Success: false, Error: err.Error(), Result: res}
	}
	return Response{Success: true, Result: res}
}

// Outcome labels a finished invocation for metrics and logs.
func Outcome(res *Result, err error) string {
	switch {
	case errors.Is(err, ErrConfiguration):
		return OutcomeInvalid
	case err != nil:
		return OutcomeFailed
	case res == nil:
		return OutcomeFailed
	default:
		return string(res.Status)
	}
}
