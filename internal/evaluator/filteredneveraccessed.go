package evaluator

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/accessadvisor"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/annotation"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/awsretry"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/iamapi"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/shared"
	"github.com/rs/zerolog"
)

// iam accepts at most 10 service namespaces per ListPoliciesGrantingServiceAccess call
const maxNamespacesPerCall = 10

// FilteredNeverAccessedPolicy is NeverAccessedPolicy ignoring services that are
// only granted by tolerated policies, ReadOnlyAccess by default.
type FilteredNeverAccessedPolicy struct {
	IamApi            iamapi.IamApi
	ToleratedPolicies []string
	Retry             awsretry.Policy
}

func (p *FilteredNeverAccessedPolicy) Name() string {
	return FilteredNeverAccessedPolicyName
}

func (p *FilteredNeverAccessedPolicy) Evaluate(ctx context.Context, principalArn string, records []accessadvisor.ServiceAccessRecord) (Verdict, error) {
	llog := zerolog.Ctx(ctx)
	neverAccessed := neverAccessedServices(records)
	if len(neverAccessed) == 0 {
		return compliant(annotation.AllServicesAccessed), nil
	}

	granting, err := p.grantingPolicies(ctx, principalArn, neverAccessed)
	if err != nil {
		return Verdict{}, err
	}

	tolerated := map[string]struct{}{}
	for _, name := range p.ToleratedPolicies {
		tolerated[name] = struct{}{}
	}

	flagged := []string{}
	for _, service := range neverAccessed {
		if onlyTolerated(granting[service], tolerated) {
			llog.Debug().Str("principalArn", principalArn).Str("service", service).Strs("policies", granting[service]).Msg("service only granted by tolerated policies")
			continue
		}
		flagged = append(flagged, service)
	}

	if len(flagged) == 0 {
		return compliant(annotation.AllServicesAccessed), nil
	}
	return nonCompliant(annotation.Encode(annotation.Annotation{
		Kind:     annotation.NeverAccessed,
		Services: flagged,
	}, shared.MaxAnnotationLength)), nil
}

// true when every policy is tolerated, including when there are none
func onlyTolerated(policies []string, tolerated map[string]struct{}) bool {
	for _, policy := range policies {
		if _, ok := tolerated[policy]; !ok {
			return false
		}
	}
	return true
}

// grantingPolicies returns the names of the policies granting principalArn
// access to each namespace.
func (p *FilteredNeverAccessedPolicy) grantingPolicies(ctx context.Context, principalArn string, namespaces []string) (map[string][]string, error) {
	granting := map[string][]string{}
	for start := 0; start < len(namespaces); start += maxNamespacesPerCall {
		end := start + maxNamespacesPerCall
		if end > len(namespaces) {
			end = len(namespaces)
		}
		chunk := namespaces[start:end]

		var marker *string
		for {
			var out *iam.ListPoliciesGrantingServiceAccessOutput
			err := awsretry.Do(ctx, p.Retry, "ListPoliciesGrantingServiceAccess", func(ctx context.Context) error {
				var err error
				out, err = p.IamApi.ListPoliciesGrantingServiceAccess(ctx, &iam.ListPoliciesGrantingServiceAccessInput{
					Arn:               aws.String(principalArn),
					ServiceNamespaces: chunk,
					Marker:            marker,
				})
				return err
			})
			if err != nil {
				return nil, accessadvisor.WrapApiError("ListPoliciesGrantingServiceAccess", principalArn, err)
			}

			for _, entry := range out.PoliciesGrantingServiceAccess {
				namespace := aws.ToString(entry.ServiceNamespace)
				for _, policy := range entry.Policies {
					granting[namespace] = append(granting[namespace], aws.ToString(policy.PolicyName))
				}
			}

			if !out.IsTruncated || aws.ToString(out.Marker) == "" {
				break
			}
			marker = out.Marker
		}
	}
	return granting, nil
}
