package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/sdkapimgr"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/shared"
)

const defaultOutputFile = "./report.csv"

func newRootCmd() *cobra.Command {
	options := reportOptions{}
	var profile string
	var region string

	cmd := &cobra.Command{
		Use:   "unusedservicesreport [report.csv]",
		Short: "Report IAM principals flagged NON_COMPLIANT for unused services",
		Long: "Collects the resources that AWS Config rules report as NON_COMPLIANT, lists the services " +
			"they never used and the members of flagged groups, and writes them to a csv file.",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, llog := shared.NewLogWithContext(cmd.Context())
			options.OutputFile = defaultOutputFile
			if len(args) == 1 {
				options.OutputFile = args[0]
			}

			cfg, err := loadConfig(ctx, profile, region)
			if err != nil {
				return err
			}
			identity, err := sts.NewFromConfig(cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
			if err != nil {
				return fmt.Errorf("resolving caller identity: %w", err)
			}
			options.AccountId = aws.ToString(identity.Account)
			llog.Info().Str("accountId", options.AccountId).Strs("rules", options.RuleNames).Msg("generating report")

			awsClientMgr, err := sdkapimgr.InitAwsClientMgr(sdkapimgr.SDKApiMgrConfig{
				Cfg:           cfg,
				MainAccountId: options.AccountId,
			})
			if err != nil {
				return err
			}

			spinner, _ := pterm.DefaultSpinner.Start("Collecting non compliant resources...")
			summary, err := runReport(ctx, awsClientMgr, options)
			if err != nil {
				spinner.Fail(err.Error())
				return err
			}
			spinner.Success(fmt.Sprintf("Wrote %d resources to %s", summary.Resources, options.OutputFile))
			if options.BucketName != "" {
				pterm.Info.Printfln("Uploaded to s3://%s/%s", options.BucketName, summary.ObjectKey)
			}
			pterm.Println(renderSummary(summary))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&options.RuleNames, "rule", []string{shared.DefaultRuleName}, "AWS Config rule to report on, repeatable")
	cmd.Flags().StringVar(&options.BucketName, "bucket", "", "S3 bucket to upload the report to")
	cmd.Flags().StringVar(&options.Prefix, "prefix", "", "S3 key prefix of the uploaded report")
	cmd.Flags().StringVarP(&region, "region", "r", "", "AWS region to use")
	cmd.Flags().StringVarP(&profile, "profile", "p", "", "AWS profile to use")

	return cmd
}

// loadConfig loads an AWS config with optional profile and region overrides.
func loadConfig(ctx context.Context, profile string, region string) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRetryMode(aws.RetryModeStandard),
		config.WithRetryMaxAttempts(3),
	}
	if profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	if cfg.Region == "" {
		cfg.Region = shared.DefaultRegion
	}
	return cfg, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
