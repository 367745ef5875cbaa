package evaluator

import (
	"context"
	"errors"
	"fmt"
	"time"

	configservicetypes "github.com/aws/aws-sdk-go-v2/service/configservice/types"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/accessadvisor"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/awsretry"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/iamapi"
)

const (
	NeverAccessedPolicyName         = "never-accessed"
	StaleAccessPolicyName           = "stale-access"
	FilteredNeverAccessedPolicyName = "never-accessed-filtered"

	DefaultPolicyName         = FilteredNeverAccessedPolicyName
	DefaultMaxDaysSinceAccess = 180
	DefaultToleratedPolicy    = "ReadOnlyAccess"
)

// Verdict is the outcome of evaluating one principal.
type Verdict struct {
	Compliance configservicetypes.ComplianceType
	Annotation string
}

func compliant(annotation string) Verdict {
	return Verdict{Compliance: configservicetypes.ComplianceTypeCompliant, Annotation: annotation}
}

func nonCompliant(annotation string) Verdict {
	return Verdict{Compliance: configservicetypes.ComplianceTypeNonCompliant, Annotation: annotation}
}

// Policy classifies a principal from its access advisor records.
type Policy interface {
	Name() string
	Evaluate(ctx context.Context, principalArn string, records []accessadvisor.ServiceAccessRecord) (Verdict, error)
}

type PolicyConfig struct {
	IamApi             iamapi.IamApi // required by never-accessed-filtered
	MaxDaysSinceAccess int
	ToleratedPolicies  []string
	Retry              awsretry.Policy
	Now                func() time.Time
}

// NewPolicy returns the policy registered under name. An empty name selects DefaultPolicyName.
func NewPolicy(name string, config PolicyConfig) (Policy, error) {
	if name == "" {
		name = DefaultPolicyName
	}
	switch name {
	case NeverAccessedPolicyName:
		return &NeverAccessedPolicy{}, nil
	case StaleAccessPolicyName:
		days := config.MaxDaysSinceAccess
		if days <= 0 {
			days = DefaultMaxDaysSinceAccess
		}
		return &StaleAccessPolicy{
			MaxAge: time.Duration(days) * 24 * time.Hour,
			Now:    config.Now,
		}, nil
	case FilteredNeverAccessedPolicyName:
		if config.IamApi == nil {
			return nil, errors.New("invalid policy config: iam api is required for " + name)
		}
		tolerated := config.ToleratedPolicies
		if len(tolerated) == 0 {
			tolerated = []string{DefaultToleratedPolicy}
		}
		return &FilteredNeverAccessedPolicy{
			IamApi:            config.IamApi,
			ToleratedPolicies: tolerated,
			Retry:             config.Retry,
		}, nil
	}
	return nil, fmt.Errorf("unknown policy [%s]", name)
}

// PolicyNames lists the registered policies.
func PolicyNames() []string {
	return []string{NeverAccessedPolicyName, StaleAccessPolicyName, FilteredNeverAccessedPolicyName}
}

// ValidatePolicyName fails for names that are not registered. An empty name is valid.
func ValidatePolicyName(name string) error {
	if name == "" {
		return nil
	}
	for _, registered := range PolicyNames() {
		if name == registered {
			return nil
		}
	}
	return fmt.Errorf("unknown policy [%s]", name)
}
