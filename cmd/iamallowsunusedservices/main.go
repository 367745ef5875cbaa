package main

import (
	"context"
	"errors"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/handlers"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/s3api"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/shared"
)

func handler(ctx context.Context, event events.ConfigEvent) error {
	ctx, llog := shared.NewLogWithContext(ctx)
	llog.Info().
		Str("configRuleName", event.ConfigRuleName).
		Str("accountId", event.AccountID).
		Bool("eventLeftScope", event.EventLeftScope).
		Msg("incoming event")

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(shared.LookupEnvWithDefault(shared.EnvAwsRegion, shared.DefaultRegion)),
		config.WithRetryMode(aws.RetryModeStandard),
		config.WithRetryMaxAttempts(3))
	// return errors
	if err != nil {
		return errors.New("failed to load aws config : " + err.Error())
	}

	iamAllowsUnusedServicesHandler, err := handlers.NewIamAllowsUnusedServicesHandler(handlers.IamAllowsUnusedServicesHandlerConfig{
		S3Api:         s3api.NewS3SDKClient(s3.NewFromConfig(cfg)),
		BucketName:    os.Getenv(shared.EnvBucketName),
		ConfigFileKey: os.Getenv(shared.EnvConfigFileKey),
		NewSdkApiMgr:  handlers.NewSdkApiMgrFactory(cfg),
	})
	if err != nil {
		llog.Error().Err(err).Msg("error creating handler")
		return err
	}

	err = iamAllowsUnusedServicesHandler.Handle(ctx, handlers.IamAllowsUnusedServicesEvent{
		ConfigEvent: event,
	})
	if err != nil {
		llog.Error().Err(err).Msg("error handling event")
		return err
	}

	return nil
}

func main() {
	lambda.Start(handler)
}
