package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/configservice"
	configservicetypes "github.com/aws/aws-sdk-go-v2/service/configservice/types"
	"github.com/aws/smithy-go"
)

var (
	TestRuleName      = "IAM_ALLOWS_UNUSED_SERVICES"
	TestResultToken   = "test-result-token"
	TestErrorRuleName = "test-error-rule-name"
)

// MockConfigService records evaluations and serves rule results and configuration items.
type MockConfigService struct {
	// evaluation results keyed by rule name
	ComplianceResults map[string][]configservicetypes.EvaluationResult
	ResultsPageSize   int
	// configuration items keyed by resource id
	ConfigurationItems map[string]configservicetypes.BaseConfigurationItem
	PutEvaluationsErr  error

	mu            sync.Mutex
	evaluations   []configservicetypes.Evaluation
	putBatchSizes []int
	batchGetSizes []int
	resultsCalls  int
	testModes     []bool
}

func NewMockConfigService() *MockConfigService {
	return &MockConfigService{
		ComplianceResults:  map[string][]configservicetypes.EvaluationResult{},
		ConfigurationItems: map[string]configservicetypes.BaseConfigurationItem{},
	}
}

// EvaluationResult builds a NON_COMPLIANT result of ruleName for a resource.
func EvaluationResult(ruleName string, resourceType string, resourceId string, annotation string) configservicetypes.EvaluationResult {
	return configservicetypes.EvaluationResult{
		EvaluationResultIdentifier: &configservicetypes.EvaluationResultIdentifier{
			EvaluationResultQualifier: &configservicetypes.EvaluationResultQualifier{
				ConfigRuleName: aws.String(ruleName),
				ResourceType:   aws.String(resourceType),
				ResourceId:     aws.String(resourceId),
			},
			OrderingTimestamp: aws.Time(time.Now()),
		},
		ComplianceType: configservicetypes.ComplianceTypeNonCompliant,
		Annotation:     aws.String(annotation),
	}
}

func (m *MockConfigService) PutEvaluations(ctx context.Context, params *configservice.PutEvaluationsInput, optFns ...func(*configservice.Options)) (*configservice.PutEvaluationsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PutEvaluationsErr != nil {
		return nil, m.PutEvaluationsErr
	}
	if len(params.Evaluations) > 100 {
		return nil, &smithy.GenericAPIError{Code: "ValidationException", Message: "at most 100 evaluations per call"}
	}
	if aws.ToString(params.ResultToken) == "" {
		return nil, errors.New("result token is required")
	}
	m.evaluations = append(m.evaluations, params.Evaluations...)
	m.putBatchSizes = append(m.putBatchSizes, len(params.Evaluations))
	m.testModes = append(m.testModes, params.TestMode)
	return &configservice.PutEvaluationsOutput{}, nil
}

func (m *MockConfigService) GetComplianceDetailsByConfigRule(ctx context.Context, params *configservice.GetComplianceDetailsByConfigRuleInput, optFns ...func(*configservice.Options)) (*configservice.GetComplianceDetailsByConfigRuleOutput, error) {
	m.mu.Lock()
	m.resultsCalls++
	m.mu.Unlock()

	ruleName := aws.ToString(params.ConfigRuleName)
	if ruleName == TestErrorRuleName {
		return nil, &smithy.GenericAPIError{Code: "NoSuchConfigRuleException", Message: "rule " + ruleName + " does not exist"}
	}

	results := []configservicetypes.EvaluationResult{}
	for _, result := range m.ComplianceResults[ruleName] {
		if len(params.ComplianceTypes) == 0 || containsComplianceType(params.ComplianceTypes, result.ComplianceType) {
			results = append(results, result)
		}
	}

	start, end, next := page(len(results), m.ResultsPageSize, params.NextToken)
	out := &configservice.GetComplianceDetailsByConfigRuleOutput{
		EvaluationResults: results[start:end],
	}
	if next != "" {
		out.NextToken = aws.String(next)
	}
	return out, nil
}

func (m *MockConfigService) BatchGetResourceConfig(ctx context.Context, params *configservice.BatchGetResourceConfigInput, optFns ...func(*configservice.Options)) (*configservice.BatchGetResourceConfigOutput, error) {
	m.mu.Lock()
	m.batchGetSizes = append(m.batchGetSizes, len(params.ResourceKeys))
	m.mu.Unlock()

	if len(params.ResourceKeys) > 100 {
		return nil, &smithy.GenericAPIError{Code: "ValidationException", Message: "at most 100 resource keys per call"}
	}
	items := []configservicetypes.BaseConfigurationItem{}
	for _, key := range params.ResourceKeys {
		if item, ok := m.ConfigurationItems[aws.ToString(key.ResourceId)]; ok {
			items = append(items, item)
		}
	}
	return &configservice.BatchGetResourceConfigOutput{
		BaseConfigurationItems: items,
	}, nil
}

// Evaluations returns every evaluation accepted by PutEvaluations.
func (m *MockConfigService) Evaluations() []configservicetypes.Evaluation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]configservicetypes.Evaluation{}, m.evaluations...)
}

// PutBatchSizes returns the number of evaluations of each PutEvaluations call.
func (m *MockConfigService) PutBatchSizes() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int{}, m.putBatchSizes...)
}

// TestModes returns the test mode flag of each PutEvaluations call.
func (m *MockConfigService) TestModes() []bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]bool{}, m.testModes...)
}

// BatchGetSizes returns the number of keys of each BatchGetResourceConfig call.
func (m *MockConfigService) BatchGetSizes() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int{}, m.batchGetSizes...)
}

func (m *MockConfigService) ResultsCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resultsCalls
}

func containsComplianceType(types []configservicetypes.ComplianceType, t configservicetypes.ComplianceType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}
