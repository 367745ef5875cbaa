package configserviceapi

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/configservice"
)

type ConfigServiceApi interface {
	// put evaluations
	PutEvaluations(ctx context.Context, params *configservice.PutEvaluationsInput, optFns ...func(*configservice.Options)) (*configservice.PutEvaluationsOutput, error)
	// get evaluation results of a config rule
	GetComplianceDetailsByConfigRule(ctx context.Context, params *configservice.GetComplianceDetailsByConfigRuleInput, optFns ...func(*configservice.Options)) (*configservice.GetComplianceDetailsByConfigRuleOutput, error)
	// get current configuration items, at most 100 keys per call
	BatchGetResourceConfig(ctx context.Context, params *configservice.BatchGetResourceConfigInput, optFns ...func(*configservice.Options)) (*configservice.BatchGetResourceConfigOutput, error)
}

type _ConfigServiceApi struct {
	client *configservice.Client
}

func NewConfigServiceApi(client *configservice.Client) ConfigServiceApi {
	return &_ConfigServiceApi{
		client: client,
	}
}

func (configApi *_ConfigServiceApi) PutEvaluations(ctx context.Context, params *configservice.PutEvaluationsInput, optFns ...func(*configservice.Options)) (*configservice.PutEvaluationsOutput, error) {
	return configApi.client.PutEvaluations(ctx, params, optFns...)
}

func (configApi *_ConfigServiceApi) GetComplianceDetailsByConfigRule(ctx context.Context, params *configservice.GetComplianceDetailsByConfigRuleInput, optFns ...func(*configservice.Options)) (*configservice.GetComplianceDetailsByConfigRuleOutput, error) {
	return configApi.client.GetComplianceDetailsByConfigRule(ctx, params, optFns...)
}

func (configApi *_ConfigServiceApi) BatchGetResourceConfig(ctx context.Context, params *configservice.BatchGetResourceConfigInput, optFns ...func(*configservice.Options)) (*configservice.BatchGetResourceConfigOutput, error) {
	return configApi.client.BatchGetResourceConfig(ctx, params, optFns...)
}
