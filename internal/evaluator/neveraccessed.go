package evaluator

import (
	"context"

	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/accessadvisor"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/annotation"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/shared"
	"github.com/rs/zerolog"
)

// NeverAccessedPolicy flags principals allowed to use services they never authenticated to.
type NeverAccessedPolicy struct{}

func (p *NeverAccessedPolicy) Name() string {
	return NeverAccessedPolicyName
}

func (p *NeverAccessedPolicy) Evaluate(ctx context.Context, principalArn string, records []accessadvisor.ServiceAccessRecord) (Verdict, error) {
	neverAccessed := neverAccessedServices(records)
	if len(neverAccessed) == 0 {
		return compliant(annotation.AllServicesAccessed), nil
	}
	zerolog.Ctx(ctx).Debug().Str("principalArn", principalArn).Strs("services", neverAccessed).Msg("never accessed services found")
	return nonCompliant(annotation.Encode(annotation.Annotation{
		Kind:     annotation.NeverAccessed,
		Services: neverAccessed,
	}, shared.MaxAnnotationLength)), nil
}

// namespaces of records without a last authenticated timestamp, in record order
func neverAccessedServices(records []accessadvisor.ServiceAccessRecord) []string {
	services := []string{}
	seen := map[string]struct{}{}
	for _, record := range records {
		if record.Accessed() {
			continue
		}
		if _, ok := seen[record.ServiceNamespace]; ok {
			continue
		}
		seen[record.ServiceNamespace] = struct{}{}
		services = append(services, record.ServiceNamespace)
	}
	return services
}
