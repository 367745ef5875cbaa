package shared

const (
	AwsIamRole  string = "AWS::IAM::Role"
	AwsIamUser  string = "AWS::IAM::User"
	AwsIamGroup string = "AWS::IAM::Group"

	// variables for retrieving config file from s3
	EnvBucketName    string = "CONFIG_FILE_BUCKET_NAME"
	EnvConfigFileKey string = "CONFIG_FILE_KEY"
	EnvLogLevel      string = "LOG_LEVEL"
	EnvAwsRegion     string = "AWS_REGION"

	DefaultRegion   string = "us-east-1"
	DefaultRuleName string = "IAM_ALLOWS_UNUSED_SERVICES"

	// aws config rejects annotations longer than 256 characters
	MaxAnnotationLength int = 220
)

type Key struct {
	PrimaryKey string `json:"primaryKey"`
	SortKey    string `json:"sortKey"`
}

type AWSAccount struct {
	AccountId string `json:"accountId" yaml:"accountId" toml:"accountId"`
	RoleArn   string `json:"roleArn" yaml:"roleArn" toml:"roleArn"`
}

func (k *Key) ToString() string {
	return k.PrimaryKey + "||" + k.SortKey
}

// IsIamPrincipalType reports whether the config resource type is one this rule evaluates.
func IsIamPrincipalType(resourceType string) bool {
	switch resourceType {
	case AwsIamRole, AwsIamUser, AwsIamGroup:
		return true
	}
	return false
}
