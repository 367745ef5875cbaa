package sdkapimgr

import (
	"errors"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/configservice"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/configserviceapi"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/iamapi"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/keyvaluestore"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/s3api"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/shared"
)

type SdkApiMgr interface {
	GetApi(accountId string, serviceName string) (interface{}, bool)
	SetApi(accountId string, serviceName string, client interface{}) error
	// typed lookups
	GetIamApi(accountId string) (iamapi.IamApi, error)
	GetConfigServiceApi(accountId string) (configserviceapi.ConfigServiceApi, error)
	GetS3Api(accountId string) (s3api.S3Api, error)
	// account ids with an iam api registered, sorted
	GetAccountIds() []string
}

type awsApiMgr struct {
	apiMap     keyvaluestore.KeyValueStore[interface{}]
	mu         sync.Mutex
	accountIds map[string]bool
}

type SDKApiMgrConfig struct {
	Cfg           aws.Config
	MainAccountId string
	AwsAccounts   []shared.AWSAccount
}

const (
	S3Service     string = "s3"             // simple storage service (s3)
	ConfigService string = "config-service" // AWS Config service
	IamService    string = "iam"            // identity and access management (iam)
)

// initialize instance of aws client mgr.  The main account always gets iam, config & s3 apis.
// Member accounts get an iam api through an assumed role.
func InitAwsClientMgr(config SDKApiMgrConfig) (SdkApiMgr, error) {
	if config.MainAccountId == "" {
		return nil, errors.New("main account id is required")
	}
	if config.Cfg.Credentials == nil {
		return nil, errors.New("valid config credentials provider required")
	}
	for _, awsAccount := range config.AwsAccounts {
		if !shared.IsValidAwsAccountId(awsAccount.AccountId) {
			return nil, errors.New("invalid aws account id: [" + awsAccount.AccountId + "]")
		}
		if awsAccount.AccountId != config.MainAccountId && awsAccount.RoleArn == "" {
			return nil, errors.New("role arn required for account [" + awsAccount.AccountId + "]")
		}
	}

	awscm := NewAwsApiMgr()
	mainCfg := config.Cfg.Copy()

	if err := awscm.SetApi(config.MainAccountId, ConfigService, configserviceapi.NewConfigServiceApi(configservice.NewFromConfig(mainCfg))); err != nil {
		return nil, err
	}
	if err := awscm.SetApi(config.MainAccountId, S3Service, s3api.NewS3SDKClient(s3.NewFromConfig(mainCfg))); err != nil {
		return nil, err
	}
	if err := awscm.SetApi(config.MainAccountId, IamService, iamapi.NewIamApi(iam.NewFromConfig(mainCfg))); err != nil {
		return nil, err
	}

	stsClient := sts.NewFromConfig(mainCfg) // sts client for assume role operations
	for _, awsAccount := range config.AwsAccounts {
		if awsAccount.AccountId == config.MainAccountId {
			continue
		}
		memberCfg := config.Cfg.Copy()
		memberCfg.Credentials = aws.NewCredentialsCache(stscreds.NewAssumeRoleProvider(stsClient, awsAccount.RoleArn))
		if err := awscm.SetApi(awsAccount.AccountId, IamService, iamapi.NewIamApi(iam.NewFromConfig(memberCfg))); err != nil {
			return nil, err
		}
	}

	return awscm, nil
}

func NewAwsApiMgr() SdkApiMgr {
	return &awsApiMgr{
		apiMap:     keyvaluestore.NewKeyValueStore[interface{}](),
		accountIds: make(map[string]bool),
	}
}

// get sdk client
func (awscm *awsApiMgr) GetApi(accountId string, serviceName string) (interface{}, bool) {
	if accountId == "" || serviceName == "" {
		return nil, false
	}
	return awscm.apiMap.Get(shared.Key{
		PrimaryKey: accountId,
		SortKey:    serviceName,
	})
}

// set sdk client
func (awscm *awsApiMgr) SetApi(accountId string, serviceName string, client interface{}) error {
	if accountId == "" || serviceName == "" || client == nil {
		return errors.New("required field(s) cannot be empty")
	}

	switch serviceName {
	case S3Service:
		if _, ok := client.(s3api.S3Api); !ok {
			return errors.New("invalid s3 client")
		}
	case ConfigService:
		if _, ok := client.(configserviceapi.ConfigServiceApi); !ok {
			return errors.New("invalid config service client")
		}
	case IamService:
		if _, ok := client.(iamapi.IamApi); !ok {
			return errors.New("invalid iam client")
		}
		awscm.mu.Lock()
		awscm.accountIds[accountId] = true
		awscm.mu.Unlock()
	default:
		return errors.New("invalid service name")
	}

	awscm.apiMap.Set(shared.Key{
		PrimaryKey: accountId,
		SortKey:    serviceName,
	}, client)
	return nil
}

func (awscm *awsApiMgr) GetIamApi(accountId string) (iamapi.IamApi, error) {
	result, ok := awscm.GetApi(accountId, IamService)
	if !ok {
		return nil, errors.New("no iam api for account [" + accountId + "]")
	}
	return result.(iamapi.IamApi), nil
}

func (awscm *awsApiMgr) GetConfigServiceApi(accountId string) (configserviceapi.ConfigServiceApi, error) {
	result, ok := awscm.GetApi(accountId, ConfigService)
	if !ok {
		return nil, errors.New("no config service api for account [" + accountId + "]")
	}
	return result.(configserviceapi.ConfigServiceApi), nil
}

func (awscm *awsApiMgr) GetS3Api(accountId string) (s3api.S3Api, error) {
	result, ok := awscm.GetApi(accountId, S3Service)
	if !ok {
		return nil, errors.New("no s3 api for account [" + accountId + "]")
	}
	return result.(s3api.S3Api), nil
}

func (awscm *awsApiMgr) GetAccountIds() []string {
	awscm.mu.Lock()
	defer awscm.mu.Unlock()
	ids := make([]string, 0, len(awscm.accountIds))
	for id := range awscm.accountIds {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
