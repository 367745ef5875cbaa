package worker

import (
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	configservicetypes "github.com/aws/aws-sdk-go-v2/service/configservice/types"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/accessadvisor"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/evaluator"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/shared"
)

// UnusedServicesWorker fetches the access advisor report of each requested
// principal, evaluates it and forwards the evaluation to the config evaluation worker.
type UnusedServicesWorker struct {
	policyName                           string
	policyConfig                         evaluator.PolicyConfig
	fetcherConfig                        accessadvisor.FetcherConfig
	configEvaluationWorkerRequestChannel chan interface{} // channel to send evaluations to
	Worker                               Worker           // worker interface
}

type UnusedServicesWorkerConfig struct {
	PolicyName                           string                 // evaluator policy, default policy when empty
	PolicyConfig                         evaluator.PolicyConfig // iam api is set per request account
	FetcherConfig                        accessadvisor.FetcherConfig
	ConfigEvaluationWorkerRequestChannel chan interface{}
	WorkerConfig                         WorkerConfig
}

type UnusedServicesWorkerRequest struct {
	AccountId         string // account owning the principal
	ResourceType      string // AWS::IAM::Role, AWS::IAM::User or AWS::IAM::Group
	ResourceId        string // compliance resource id reported to aws config
	PrincipalArn      string
	OrderingTimestamp time.Time
}

func NewUnusedServicesWorker(config UnusedServicesWorkerConfig) (*UnusedServicesWorker, error) {
	worker, err := NewWorker(config.WorkerConfig)
	if err != nil {
		return nil, errors.New("invalid worker config: " + err.Error())
	}
	if config.ConfigEvaluationWorkerRequestChannel == nil {
		return nil, errors.New("config evaluation worker request channel is required")
	}

	if err := evaluator.ValidatePolicyName(config.PolicyName); err != nil {
		return nil, errors.New("invalid policy config: " + err.Error())
	}

	unusedServicesWorker := &UnusedServicesWorker{
		policyName:                           config.PolicyName,
		policyConfig:                         config.PolicyConfig,
		fetcherConfig:                        config.FetcherConfig,
		configEvaluationWorkerRequestChannel: config.ConfigEvaluationWorkerRequestChannel,
		Worker:                               worker,
	}

	worker.SetRequestHandler(unusedServicesWorker)
	worker.Start()

	return unusedServicesWorker, nil
}

func (usw *UnusedServicesWorker) Handle(params interface{}) {
	errorChan := usw.Worker.GetErrorChannel()
	request, ok := params.(UnusedServicesWorkerRequest)
	if !ok {
		errorChan <- errors.New("unused services worker received unexpected request type")
		return
	}

	evaluation, err := usw.evaluate(request)
	if err != nil {
		errorChan <- fmt.Errorf("account [%s] principal [%s]: %w", request.AccountId, request.PrincipalArn, err)
		return
	}
	usw.configEvaluationWorkerRequestChannel <- ConfigEvaluationWorkerRequest{
		ConfigEvaluation: evaluation,
	}
}

func (usw *UnusedServicesWorker) evaluate(request UnusedServicesWorkerRequest) (configservicetypes.Evaluation, error) {
	ctx := usw.Worker.GetContext()
	llog := shared.WorkerLog(ctx, usw.Worker.GetId())

	iamApi, err := usw.Worker.GetSDKClientMgr().GetIamApi(request.AccountId)
	if err != nil {
		return configservicetypes.Evaluation{}, err
	}

	fetcher, err := accessadvisor.NewFetcher(iamApi, usw.fetcherConfig)
	if err != nil {
		return configservicetypes.Evaluation{}, err
	}
	policyConfig := usw.policyConfig
	policyConfig.IamApi = iamApi
	policy, err := evaluator.NewPolicy(usw.policyName, policyConfig)
	if err != nil {
		return configservicetypes.Evaluation{}, err
	}

	records, err := fetcher.Fetch(ctx, request.PrincipalArn)
	if err != nil {
		return configservicetypes.Evaluation{}, err
	}
	verdict, err := policy.Evaluate(ctx, request.PrincipalArn, records)
	if err != nil {
		return configservicetypes.Evaluation{}, err
	}

	llog.Info().
		Str("principalArn", request.PrincipalArn).
		Str("policy", policy.Name()).
		Str("compliance", string(verdict.Compliance)).
		Int("services", len(records)).
		Msg("principal evaluated")

	return NewEvaluation(request.ResourceType, request.ResourceId, verdict.Compliance, verdict.Annotation, request.OrderingTimestamp), nil
}

// NewEvaluation builds an aws config evaluation with a bounded annotation.
// A zero timestamp is replaced by the current time.
func NewEvaluation(resourceType string, resourceId string, compliance configservicetypes.ComplianceType, annotation string, orderingTimestamp time.Time) configservicetypes.Evaluation {
	if orderingTimestamp.IsZero() {
		orderingTimestamp = time.Now()
	}
	return configservicetypes.Evaluation{
		ComplianceResourceId:   aws.String(resourceId),
		ComplianceResourceType: aws.String(resourceType),
		ComplianceType:         compliance,
		Annotation:             aws.String(shared.ValidateAnnotation(annotation, shared.MaxAnnotationLength)),
		OrderingTimestamp:      aws.Time(orderingTimestamp),
	}
}
