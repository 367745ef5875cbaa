package main

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	configservicetypes "github.com/aws/aws-sdk-go-v2/service/configservice/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/mock"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/report"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/sdkapimgr"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/shared"
)

const testSecondRuleName = "IAM_ALLOWS_UNUSED_SERVICES_STALE"

func newReportApiMgr(t *testing.T) (sdkapimgr.SdkApiMgr, *mock.MockS3Api) {
	configApi := mock.NewMockConfigService()
	configApi.ComplianceResults[mock.TestRuleName] = []configservicetypes.EvaluationResult{
		mock.EvaluationResult(mock.TestRuleName, shared.AwsIamRole, mock.TestRoleId, "Services 'lambda' have never been accessed"),
		mock.EvaluationResult(mock.TestRuleName, shared.AwsIamGroup, mock.TestGroupId, "Services 'ec2', 'sqs' have never been accessed"),
	}
	configApi.ComplianceResults[testSecondRuleName] = []configservicetypes.EvaluationResult{
		mock.EvaluationResult(testSecondRuleName, shared.AwsIamGroup, mock.TestGroupId, "Services 'ec2' have not been accessed in the last 90 days"),
	}
	configApi.ConfigurationItems[mock.TestRoleId] = configservicetypes.BaseConfigurationItem{
		ResourceId:   aws.String(mock.TestRoleId),
		ResourceName: aws.String(mock.TestRoleName),
		ResourceType: configservicetypes.ResourceType(shared.AwsIamRole),
		Arn:          aws.String(mock.TestRoleArn),
	}
	configApi.ConfigurationItems[mock.TestGroupId] = configservicetypes.BaseConfigurationItem{
		ResourceId:   aws.String(mock.TestGroupId),
		ResourceName: aws.String(mock.TestGroupName),
		ResourceType: configservicetypes.ResourceType(shared.AwsIamGroup),
		Arn:          aws.String(mock.TestGroupArn),
	}

	s3Api := mock.NewMockS3Api()
	mgr := sdkapimgr.NewAwsApiMgr()
	require.NoError(t, mgr.SetApi(mock.TestAccountId, sdkapimgr.ConfigService, configApi))
	require.NoError(t, mgr.SetApi(mock.TestAccountId, sdkapimgr.IamService, mock.NewMockIamApi()))
	require.NoError(t, mgr.SetApi(mock.TestAccountId, sdkapimgr.S3Service, s3Api))
	return mgr, s3Api
}

func TestRunReport(t *testing.T) {
	assertion := assert.New(t)
	mgr, s3Api := newReportApiMgr(t)
	outputFile := filepath.Join(t.TempDir(), "reports", "report.csv")

	summary, err := runReport(context.Background(), mgr, reportOptions{
		AccountId:  mock.TestAccountId,
		RuleNames:  []string{mock.TestRuleName, testSecondRuleName},
		OutputFile: outputFile,
		BucketName: mock.TestBucketName,
		Prefix:     mock.TestObjectPrefix,
	})
	require.NoError(t, err)

	assertion.Equal(3, summary.Resources)
	assertion.Equal(map[string]int{mock.TestRuleName: 2, testSecondRuleName: 1}, summary.ByRule)
	assertion.Equal(map[string]int{shared.AwsIamRole: 1, shared.AwsIamGroup: 2}, summary.ByType)
	// group members are listed once for both rules
	assertion.Equal(int32(1), summary.CacheHits)
	assertion.Equal(int32(1), summary.CacheMisses)
	assertion.Equal("test-prefix/report.csv", summary.ObjectKey)

	local, err := os.ReadFile(outputFile)
	require.NoError(t, err)
	rows, err := csv.NewReader(strings.NewReader(string(local))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assertion.Equal(report.CsvHeaders, rows[0])
	assertion.Equal([]string{mock.TestRoleName, shared.AwsIamRole, mock.TestRoleArn, "lambda", ""}, rows[1])
	assertion.Equal([]string{mock.TestGroupName, shared.AwsIamGroup, mock.TestGroupArn, "ec2, sqs", mock.TestUserName}, rows[2])
	assertion.Equal([]string{mock.TestGroupName, shared.AwsIamGroup, mock.TestGroupArn, "ec2", mock.TestUserName}, rows[3])

	uploaded, ok := s3Api.Object(mock.TestBucketName, "test-prefix/report.csv")
	require.True(t, ok)
	assertion.Equal(local, uploaded)

	rendered := renderSummary(summary)
	assertion.Contains(rendered, mock.TestRuleName)
	assertion.Contains(rendered, shared.AwsIamGroup)
}

func TestRunReportLocalOnly(t *testing.T) {
	mgr, s3Api := newReportApiMgr(t)
	outputFile := filepath.Join(t.TempDir(), "report.csv")

	summary, err := runReport(context.Background(), mgr, reportOptions{
		AccountId:  mock.TestAccountId,
		RuleNames:  []string{testSecondRuleName},
		OutputFile: outputFile,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Resources)
	assert.Empty(t, summary.ObjectKey)
	assert.Empty(t, s3Api.Keys())
	assert.FileExists(t, outputFile)
}

func TestRunReportErrors(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newReportApiMgr(t)
	outputFile := filepath.Join(t.TempDir(), "report.csv")

	_, err := runReport(ctx, mgr, reportOptions{AccountId: mock.TestAccountId, OutputFile: outputFile})
	assert.Error(t, err)

	_, err = runReport(ctx, mgr, reportOptions{AccountId: mock.TestMemberAccountId, RuleNames: []string{mock.TestRuleName}, OutputFile: outputFile})
	assert.Error(t, err)

	_, err = runReport(ctx, mgr, reportOptions{
		AccountId:  mock.TestAccountId,
		RuleNames:  []string{mock.TestRuleName},
		OutputFile: outputFile,
		BucketName: mock.TestErrorBucket,
	})
	assert.Error(t, err)
	assert.FileExists(t, outputFile)
}

func TestRootCmdFlags(t *testing.T) {
	cmd := newRootCmd()
	rules, err := cmd.Flags().GetStringSlice("rule")
	require.NoError(t, err)
	assert.Equal(t, []string{shared.DefaultRuleName}, rules)

	require.NoError(t, cmd.Flags().Parse([]string{"--rule", "A", "--rule", "B", "--bucket", "b", "--prefix", "p"}))
	rules, err = cmd.Flags().GetStringSlice("rule")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, rules)
	assert.Error(t, cmd.Args(cmd, []string{"a.csv", "b.csv"}))
}
