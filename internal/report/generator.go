package report

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/configservice"
	configservicetypes "github.com/aws/aws-sdk-go-v2/service/configservice/types"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/annotation"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/configserviceapi"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/shared"
	"github.com/rs/zerolog"
)

// config accepts at most 100 keys per BatchGetResourceConfig call
const maxResourceKeysPerCall = 100

var CsvHeaders = []string{"resource_name", "resource_type", "resource_arn", "services", "users"}

// Resource is one non compliant resource of the report.
type Resource struct {
	RuleName     string
	ResourceId   string
	ResourceType string
	ResourceName string
	ResourceArn  string
	Services     []string
	Truncated    bool // the annotation did not list every service
	Users        []string
}

// AccountId is the account of the resource arn, empty when the arn is unknown.
func (r Resource) AccountId() string {
	accountId, err := shared.ExtractAWSAccountFromARN(r.ResourceArn)
	if err != nil {
		return ""
	}
	return accountId
}

func (r Resource) CsvRecord() []string {
	services := strings.Join(r.Services, ", ")
	if r.Truncated {
		services += ", " + annotation.TruncationMarker
	}
	return []string{
		r.ResourceName,
		r.ResourceType,
		r.ResourceArn,
		services,
		strings.Join(r.Users, ", "),
	}
}

type GeneratorConfig struct {
	ConfigServiceApi configserviceapi.ConfigServiceApi
	Resolvers        *ResolverRegistry
}

// Generator collects the NON_COMPLIANT resources of config rules.
type Generator struct {
	configServiceApi configserviceapi.ConfigServiceApi
	resolvers        *ResolverRegistry
}

func NewGenerator(config GeneratorConfig) (*Generator, error) {
	if config.ConfigServiceApi == nil {
		return nil, errors.New("invalid generator config: config service api is required")
	}
	resolvers := config.Resolvers
	if resolvers == nil {
		resolvers = NewResolverRegistry(nil)
	}
	return &Generator{
		configServiceApi: config.ConfigServiceApi,
		resolvers:        resolvers,
	}, nil
}

// NonCompliantResources returns the resources each rule currently reports as NON_COMPLIANT.
func (g *Generator) NonCompliantResources(ctx context.Context, ruleNames ...string) ([]Resource, error) {
	llog := zerolog.Ctx(ctx)
	resources := []Resource{}
	for _, ruleName := range ruleNames {
		results, err := g.evaluationResults(ctx, ruleName)
		if err != nil {
			return nil, fmt.Errorf("get compliance details of rule [%s]: %w", ruleName, err)
		}

		ruleResources := []Resource{}
		for _, result := range results {
			ruleResources = append(ruleResources, parseEvaluationResult(ctx, ruleName, result))
		}

		if err := g.attachConfiguration(ctx, ruleResources); err != nil {
			return nil, fmt.Errorf("get resource config of rule [%s]: %w", ruleName, err)
		}

		for i := range ruleResources {
			details := g.resolvers.Resolve(ctx, ruleResources[i].AccountId(), ruleResources[i].ResourceType, ruleResources[i].ResourceName)
			ruleResources[i].Users = details.Users
		}
		llog.Info().Str("rule", ruleName).Int("resources", len(ruleResources)).Msg("collected non compliant resources")
		resources = append(resources, ruleResources...)
	}
	return resources, nil
}

func (g *Generator) evaluationResults(ctx context.Context, ruleName string) ([]configservicetypes.EvaluationResult, error) {
	results := []configservicetypes.EvaluationResult{}
	var nextToken *string
	for {
		out, err := g.configServiceApi.GetComplianceDetailsByConfigRule(ctx, &configservice.GetComplianceDetailsByConfigRuleInput{
			ConfigRuleName:  aws.String(ruleName),
			ComplianceTypes: []configservicetypes.ComplianceType{configservicetypes.ComplianceTypeNonCompliant},
			NextToken:       nextToken,
		})
		if err != nil {
			return nil, err
		}
		results = append(results, out.EvaluationResults...)
		if aws.ToString(out.NextToken) == "" {
			break
		}
		nextToken = out.NextToken
	}
	return results, nil
}

func parseEvaluationResult(ctx context.Context, ruleName string, result configservicetypes.EvaluationResult) Resource {
	resource := Resource{RuleName: ruleName, Services: []string{}}
	if result.EvaluationResultIdentifier != nil && result.EvaluationResultIdentifier.EvaluationResultQualifier != nil {
		qualifier := result.EvaluationResultIdentifier.EvaluationResultQualifier
		resource.ResourceId = aws.ToString(qualifier.ResourceId)
		resource.ResourceType = aws.ToString(qualifier.ResourceType)
	}

	parsed, err := annotation.Parse(aws.ToString(result.Annotation))
	if err != nil {
		zerolog.Ctx(ctx).Warn().Str("resourceId", resource.ResourceId).Str("annotation", aws.ToString(result.Annotation)).Err(err).Msg("unable to parse annotation")
		return resource
	}
	resource.Services = parsed.Services
	resource.Truncated = parsed.Truncated
	return resource
}

// attachConfiguration fills in name and arn from the current configuration items.
func (g *Generator) attachConfiguration(ctx context.Context, resources []Resource) error {
	items := map[string]configservicetypes.BaseConfigurationItem{}
	for start := 0; start < len(resources); start += maxResourceKeysPerCall {
		end := start + maxResourceKeysPerCall
		if end > len(resources) {
			end = len(resources)
		}

		keys := []configservicetypes.ResourceKey{}
		for _, resource := range resources[start:end] {
			keys = append(keys, configservicetypes.ResourceKey{
				ResourceId:   aws.String(resource.ResourceId),
				ResourceType: configservicetypes.ResourceType(resource.ResourceType),
			})
		}

		out, err := g.configServiceApi.BatchGetResourceConfig(ctx, &configservice.BatchGetResourceConfigInput{
			ResourceKeys: keys,
		})
		if err != nil {
			return err
		}
		for _, item := range out.BaseConfigurationItems {
			items[aws.ToString(item.ResourceId)] = item
		}
		if len(out.UnprocessedResourceKeys) > 0 {
			zerolog.Ctx(ctx).Warn().Int("unprocessed", len(out.UnprocessedResourceKeys)).Msg("resource keys left unprocessed")
		}
	}

	for i := range resources {
		item, ok := items[resources[i].ResourceId]
		if !ok {
			zerolog.Ctx(ctx).Warn().Str("resourceId", resources[i].ResourceId).Msg("no configuration item for resource")
			resources[i].ResourceName = resources[i].ResourceId
			continue
		}
		resources[i].ResourceName = aws.ToString(item.ResourceName)
		resources[i].ResourceArn = aws.ToString(item.Arn)
	}
	return nil
}
