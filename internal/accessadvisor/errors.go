package accessadvisor

import (
	"errors"
	"fmt"

	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/awsretry"
)

// ErrPollLimitExceeded is returned when a job is still running after MaxPolls status checks.
var ErrPollLimitExceeded = errors.New("access advisor job poll limit exceeded")

// JobFailedError is returned when iam reports the access advisor job as FAILED.
type JobFailedError struct {
	PrincipalArn string
	JobId        string
	Code         string
	Message      string
}

func (e *JobFailedError) Error() string {
	msg := fmt.Sprintf("access advisor job [%s] failed for [%s]", e.JobId, e.PrincipalArn)
	if e.Code != "" || e.Message != "" {
		msg += fmt.Sprintf(": %s %s", e.Code, e.Message)
	}
	return msg
}

// TransientError wraps the last error of an api call that kept failing after all retries.
type TransientError struct {
	Operation    string
	PrincipalArn string
	Err          error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s failed for [%s]: %v", e.Operation, e.PrincipalArn, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// WrapApiError tags the last error of op with the principal. Only errors that
// were retried become a TransientError.
func WrapApiError(op string, principalArn string, err error) error {
	if awsretry.IsRetryable(err) {
		return &TransientError{Operation: op, PrincipalArn: principalArn, Err: err}
	}
	return fmt.Errorf("%s failed for [%s]: %w", op, principalArn, err)
}
