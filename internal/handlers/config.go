package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/accessadvisor"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/awsretry"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/evaluator"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/shared"
	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

// aws config message types
const (
	ConfigurationItemChangeNotification          = "ConfigurationItemChangeNotification"
	OversizedConfigurationItemChangeNotification = "OversizedConfigurationItemChangeNotification"
	ScheduledNotification                        = "ScheduledNotification"

	ResourceDeleted            = "ResourceDeleted"
	ResourceDeletedNotRecorded = "ResourceDeletedNotRecorded"
)

// rule parameter names
const (
	policyRuleParameter         = "policy"
	maxDaysSinceAccessParameter = "maxDaysSinceAccess"
)

// RuleConfig is the rule configuration file stored in s3.
type RuleConfig struct {
	AWSAccounts         []shared.AWSAccount `json:"awsAccounts" yaml:"awsAccounts" toml:"awsAccounts"`
	TestMode            bool                `json:"testMode" yaml:"testMode" toml:"testMode"`
	Prefix              string              `json:"prefix" yaml:"prefix" toml:"prefix"`
	Policy              string              `json:"policy" yaml:"policy" toml:"policy"`
	MaxDaysSinceAccess  int                 `json:"maxDaysSinceAccess" yaml:"maxDaysSinceAccess" toml:"maxDaysSinceAccess"`
	ToleratedPolicies   []string            `json:"toleratedPolicies" yaml:"toleratedPolicies" toml:"toleratedPolicies"`
	PollIntervalSeconds int                 `json:"pollIntervalSeconds" yaml:"pollIntervalSeconds" toml:"pollIntervalSeconds"`
	MaxPolls            int                 `json:"maxPolls" yaml:"maxPolls" toml:"maxPolls"`
	RetryAttempts       int                 `json:"retryAttempts" yaml:"retryAttempts" toml:"retryAttempts"`
	RetryDelaySeconds   int                 `json:"retryDelaySeconds" yaml:"retryDelaySeconds" toml:"retryDelaySeconds"`
	ExcludedPrincipals  []string            `json:"excludedPrincipals" yaml:"excludedPrincipals" toml:"excludedPrincipals"`
}

// ParseRuleConfig decodes the config file. The format follows the key extension:
// .json, .yaml, .yml or .toml.
func ParseRuleConfig(key string, content []byte) (RuleConfig, error) {
	var config RuleConfig
	var err error

	switch ext := strings.ToLower(path.Ext(key)); ext {
	case ".json":
		err = json.Unmarshal(content, &config)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(content, &config)
	case ".toml":
		err = toml.Unmarshal(content, &config)
	default:
		return RuleConfig{}, fmt.Errorf("unsupported config file format [%s] for key [%s]", ext, key)
	}
	if err != nil {
		return RuleConfig{}, fmt.Errorf("invalid config file [%s]: %w", key, err)
	}
	return config, nil
}

// ApplyRuleParameters overrides the policy settings with the aws config rule parameters.
// Parameter values may be json strings or numbers.
func (c *RuleConfig) ApplyRuleParameters(ruleParameters string) error {
	if strings.TrimSpace(ruleParameters) == "" {
		return nil
	}
	params := map[string]interface{}{}
	if err := json.Unmarshal([]byte(ruleParameters), &params); err != nil {
		return fmt.Errorf("invalid rule parameters: %w", err)
	}

	if value, ok := params[policyRuleParameter]; ok {
		if policy := strings.TrimSpace(fmt.Sprint(value)); policy != "" {
			c.Policy = policy
		}
	}
	if value, ok := params[maxDaysSinceAccessParameter]; ok {
		c.MaxDaysSinceAccess = shared.ParsePositiveInt(fmt.Sprint(value), c.MaxDaysSinceAccess)
	}
	return nil
}

// Validate checks the values the handler cannot default.
func (c RuleConfig) Validate() error {
	if err := evaluator.ValidatePolicyName(c.Policy); err != nil {
		return err
	}
	if c.MaxDaysSinceAccess < 0 || c.PollIntervalSeconds < 0 || c.MaxPolls < 0 || c.RetryAttempts < 0 || c.RetryDelaySeconds < 0 {
		return errors.New("numeric config values cannot be negative")
	}
	for _, awsAccount := range c.AWSAccounts {
		if !shared.IsValidAwsAccountId(awsAccount.AccountId) {
			return errors.New("invalid aws account id: [" + awsAccount.AccountId + "]")
		}
	}
	for _, principal := range c.ExcludedPrincipals {
		if principal == "" {
			continue
		}
		if !shared.IsValidIamIdentityArn(principal) {
			return errors.New("excluded principal(s) are invalid: " + principal)
		}
	}
	return nil
}

// AccountIds returns the configured accounts, or the main account when none are configured.
func (c RuleConfig) AccountIds(mainAccountId string) []string {
	if len(c.AWSAccounts) == 0 {
		return []string{mainAccountId}
	}
	ids := make([]string, 0, len(c.AWSAccounts))
	seen := map[string]bool{}
	for _, awsAccount := range c.AWSAccounts {
		if seen[awsAccount.AccountId] {
			continue
		}
		seen[awsAccount.AccountId] = true
		ids = append(ids, awsAccount.AccountId)
	}
	return ids
}

// ExcludedPrincipalSet indexes the excluded principal arns.
func (c RuleConfig) ExcludedPrincipalSet() map[string]bool {
	excluded := make(map[string]bool, len(c.ExcludedPrincipals))
	for _, principal := range c.ExcludedPrincipals {
		if principal != "" {
			excluded[principal] = true
		}
	}
	return excluded
}

func (c RuleConfig) RetryPolicy() awsretry.Policy {
	policy := awsretry.DefaultPolicy()
	if c.RetryAttempts > 0 {
		policy.Attempts = uint(c.RetryAttempts)
	}
	if c.RetryDelaySeconds > 0 {
		policy.Delay = time.Duration(c.RetryDelaySeconds) * time.Second
	}
	return policy
}

func (c RuleConfig) FetcherConfig() accessadvisor.FetcherConfig {
	fetcherConfig := accessadvisor.DefaultFetcherConfig()
	if c.PollIntervalSeconds > 0 {
		fetcherConfig.PollInterval = time.Duration(c.PollIntervalSeconds) * time.Second
	}
	fetcherConfig.MaxPolls = c.MaxPolls
	fetcherConfig.Retry = c.RetryPolicy()
	return fetcherConfig
}

// PolicyConfig leaves the iam api unset, it is resolved per account by the worker.
func (c RuleConfig) PolicyConfig() evaluator.PolicyConfig {
	return evaluator.PolicyConfig{
		MaxDaysSinceAccess: c.MaxDaysSinceAccess,
		ToleratedPolicies:  c.ToleratedPolicies,
		Retry:              c.RetryPolicy(),
	}
}

// InvokingEvent is the json document aws config passes in events.ConfigEvent.InvokingEvent.
type InvokingEvent struct {
	MessageType              string             `json:"messageType"`
	ConfigurationItem        *ConfigurationItem `json:"configurationItem"`
	ConfigurationItemSummary *ConfigurationItem `json:"configurationItemSummary"`
	NotificationCreationTime string             `json:"notificationCreationTime"`
}

type ConfigurationItem struct {
	AwsAccountId                 string `json:"awsAccountId"`
	ResourceType                 string `json:"resourceType"`
	ResourceId                   string `json:"resourceId"`
	ResourceName                 string `json:"resourceName"`
	ARN                          string `json:"ARN"`
	ConfigurationItemStatus      string `json:"configurationItemStatus"`
	ConfigurationItemCaptureTime string `json:"configurationItemCaptureTime"`
	Configuration                struct {
		Arn string `json:"arn"`
	} `json:"configuration"`
}

func ParseInvokingEvent(invokingEvent string) (InvokingEvent, error) {
	var event InvokingEvent
	if strings.TrimSpace(invokingEvent) == "" {
		return event, errors.New("invoking event is empty")
	}
	if err := json.Unmarshal([]byte(invokingEvent), &event); err != nil {
		return event, fmt.Errorf("invalid invoking event: %w", err)
	}
	return event, nil
}

// ChangedItem returns the configuration item of a change notification, nil for any other message.
func (e InvokingEvent) ChangedItem() *ConfigurationItem {
	switch e.MessageType {
	case ConfigurationItemChangeNotification:
		return e.ConfigurationItem
	case OversizedConfigurationItemChangeNotification:
		return e.ConfigurationItemSummary
	}
	return nil
}

// PrincipalArn prefers the arn of the recorded configuration.
func (ci ConfigurationItem) PrincipalArn() string {
	if ci.Configuration.Arn != "" {
		return ci.Configuration.Arn
	}
	return ci.ARN
}

// AccountId returns the recorded account, or the account of the principal arn
// when the item does not carry one.
func (ci ConfigurationItem) AccountId() (string, error) {
	if ci.AwsAccountId != "" {
		return ci.AwsAccountId, nil
	}
	return shared.ExtractAWSAccountFromARN(ci.PrincipalArn())
}

func (ci ConfigurationItem) Deleted() bool {
	switch ci.ConfigurationItemStatus {
	case ResourceDeleted, ResourceDeletedNotRecorded:
		return true
	}
	return false
}

// OrderingTimestamp returns the capture time of the item, falling back to the notification time.
func (e InvokingEvent) OrderingTimestamp() time.Time {
	if item := e.ChangedItem(); item != nil {
		if ts, err := time.Parse(time.RFC3339, item.ConfigurationItemCaptureTime); err == nil {
			return ts
		}
	}
	if ts, err := time.Parse(time.RFC3339, e.NotificationCreationTime); err == nil {
		return ts
	}
	return time.Time{}
}
