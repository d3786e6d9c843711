package apiclient

import "net/http"

// Outcome is what the response interceptor does with one attempt.
type Outcome int

const (
	OutcomeSucceed Outcome = iota + 1
	OutcomeRefreshThenRetry
	OutcomeFail
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceed:
		return "succeed"
	case OutcomeRefreshThenRetry:
		return "refresh_then_retry"
	case OutcomeFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Decide maps one attempt to an outcome. Only a 401 on a request that has not
// been retried yet, and that did not opt out of the refresh protocol, leads to
// a refresh. Transport errors, 403 and 5xx always fail without touching the
// session.
func Decide(req Request, status int, transportErr error, retried bool) Outcome {
	if transportErr != nil {
		return OutcomeFail
	}
	if status >= 200 && status < 300 {
		return OutcomeSucceed
	}
	if status == http.StatusUnauthorized && !retried && !req.SkipAuthRefresh {
		return OutcomeRefreshThenRetry
	}
	return OutcomeFail
}
