package accessadvisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamTypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/awsretry"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/iamapi"
	"github.com/rs/zerolog"
)

const DefaultPollInterval = 10 * time.Second

const (
	opGenerate = "GenerateServiceLastAccessedDetails"
	opGet      = "GetServiceLastAccessedDetails"
)

type State int

const (
	Starting State = iota
	Polling
	Paginating
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Starting:
		return "STARTING"
	case Polling:
		return "POLLING"
	case Paginating:
		return "PAGINATING"
	case Done:
		return "DONE"
	case Failed:
		return "FAILED"
	}
	return "UNKNOWN"
}

type FetcherConfig struct {
	PollInterval time.Duration // wait between status checks of a running job
	MaxPolls     int           // 0 means no limit
	Retry        awsretry.Policy
}

// DefaultFetcherConfig polls every 10 seconds without limit and retries each call 5 times, 5 seconds apart.
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		PollInterval: DefaultPollInterval,
		Retry:        awsretry.DefaultPolicy(),
	}
}

// Fetcher retrieves the full service-last-accessed report of a principal.
type Fetcher struct {
	iamApi iamapi.IamApi
	config FetcherConfig
}

func NewFetcher(api iamapi.IamApi, config FetcherConfig) (*Fetcher, error) {
	if api == nil {
		return nil, errors.New("invalid fetcher config: iam api is required")
	}
	if config.PollInterval < 0 {
		return nil, errors.New("invalid fetcher config: poll interval must not be negative")
	}
	if config.MaxPolls < 0 {
		return nil, errors.New("invalid fetcher config: max polls must not be negative")
	}
	return &Fetcher{
		iamApi: api,
		config: config,
	}, nil
}

// one run of the job state machine
type fetch struct {
	*Fetcher
	principalArn string
	state        State
	jobId        string
	polls        int
	page         *iam.GetServiceLastAccessedDetailsOutput
	records      []ServiceAccessRecord
	llog         zerolog.Logger
}

// Fetch starts an access advisor job for principalArn, waits for it to finish
// and returns every record of every page, in the order received. On error no
// records are returned.
func (f *Fetcher) Fetch(ctx context.Context, principalArn string) ([]ServiceAccessRecord, error) {
	if principalArn == "" {
		return nil, errors.New("principal arn is required")
	}

	run := &fetch{
		Fetcher:      f,
		principalArn: principalArn,
		state:        Starting,
		llog:         zerolog.Ctx(ctx).With().Str("principalArn", principalArn).Logger(),
	}

	for {
		var err error
		switch run.state {
		case Starting:
			err = run.start(ctx)
		case Polling:
			err = run.poll(ctx)
		case Paginating:
			err = run.paginate(ctx)
		case Done:
			run.llog.Debug().Str("jobId", run.jobId).Int("records", len(run.records)).Msg("access advisor report retrieved")
			return run.records, nil
		}
		if err != nil {
			run.transition(Failed)
			run.llog.Error().Str("jobId", run.jobId).Err(err).Msg("access advisor fetch failed")
			return nil, err
		}
	}
}

func (r *fetch) transition(next State) {
	r.llog.Trace().Str("jobId", r.jobId).Stringer("from", r.state).Stringer("state", next).Msg("fetch state change")
	r.state = next
}

func (r *fetch) start(ctx context.Context) error {
	var out *iam.GenerateServiceLastAccessedDetailsOutput
	err := awsretry.Do(ctx, r.config.Retry, opGenerate, func(ctx context.Context) error {
		var err error
		out, err = r.iamApi.GenerateServiceLastAccessedDetails(ctx, &iam.GenerateServiceLastAccessedDetailsInput{
			Arn: aws.String(r.principalArn),
		})
		return err
	})
	if err != nil {
		return WrapApiError(opGenerate, r.principalArn, err)
	}
	if out == nil || aws.ToString(out.JobId) == "" {
		return fmt.Errorf("%s failed for [%s]: empty job id", opGenerate, r.principalArn)
	}
	r.jobId = aws.ToString(out.JobId)
	r.transition(Polling)
	return nil
}

func (r *fetch) poll(ctx context.Context) error {
	if r.config.MaxPolls > 0 && r.polls >= r.config.MaxPolls {
		return fmt.Errorf("job [%s] for [%s]: %w", r.jobId, r.principalArn, ErrPollLimitExceeded)
	}
	if r.polls > 0 {
		if err := r.wait(ctx); err != nil {
			return err
		}
	}
	r.polls++

	out, err := r.getDetails(ctx, nil)
	if err != nil {
		return err
	}

	switch out.JobStatus {
	case iamTypes.JobStatusTypeInProgress:
		r.llog.Debug().Str("jobId", r.jobId).Int("polls", r.polls).Msg("access advisor job in progress")
		return nil
	case iamTypes.JobStatusTypeFailed:
		jobErr := &JobFailedError{PrincipalArn: r.principalArn, JobId: r.jobId}
		if out.Error != nil {
			jobErr.Code = aws.ToString(out.Error.Code)
			jobErr.Message = aws.ToString(out.Error.Message)
		}
		return jobErr
	}

	r.page = out
	r.transition(Paginating)
	return nil
}

func (r *fetch) paginate(ctx context.Context) error {
	r.records = append(r.records, newServiceAccessRecords(r.page.ServicesLastAccessed)...)
	for r.page.IsTruncated {
		marker := r.page.Marker
		if aws.ToString(marker) == "" {
			return fmt.Errorf("%s failed for [%s]: truncated page without marker", opGet, r.principalArn)
		}
		out, err := r.getDetails(ctx, marker)
		if err != nil {
			return err
		}
		r.page = out
		r.records = append(r.records, newServiceAccessRecords(out.ServicesLastAccessed)...)
	}
	r.transition(Done)
	return nil
}

func (r *fetch) getDetails(ctx context.Context, marker *string) (*iam.GetServiceLastAccessedDetailsOutput, error) {
	var out *iam.GetServiceLastAccessedDetailsOutput
	err := awsretry.Do(ctx, r.config.Retry, opGet, func(ctx context.Context) error {
		var err error
		out, err = r.iamApi.GetServiceLastAccessedDetails(ctx, &iam.GetServiceLastAccessedDetailsInput{
			JobId:  aws.String(r.jobId),
			Marker: marker,
		})
		return err
	})
	if err != nil {
		return nil, WrapApiError(opGet, r.principalArn, err)
	}
	if out == nil {
		return nil, fmt.Errorf("%s failed for [%s]: empty response", opGet, r.principalArn)
	}
	return out, nil
}

func (r *fetch) wait(ctx context.Context) error {
	if r.config.PollInterval <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(r.config.PollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
