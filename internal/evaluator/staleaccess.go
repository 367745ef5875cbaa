package evaluator

import (
	"context"
	"time"

	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/accessadvisor"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/annotation"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/shared"
	"github.com/rs/zerolog"
)

// StaleAccessPolicy flags principals whose last use of a service is older than MaxAge.
// Services never accessed are left to the never accessed policies.
type StaleAccessPolicy struct {
	MaxAge time.Duration
	Now    func() time.Time // defaults to time.Now
}

func (p *StaleAccessPolicy) Name() string {
	return StaleAccessPolicyName
}

func (p *StaleAccessPolicy) maxAge() time.Duration {
	if p.MaxAge <= 0 {
		return DefaultMaxDaysSinceAccess * 24 * time.Hour
	}
	return p.MaxAge
}

func (p *StaleAccessPolicy) now() time.Time {
	if p.Now == nil {
		return time.Now().UTC()
	}
	return p.Now().UTC()
}

func (p *StaleAccessPolicy) Evaluate(ctx context.Context, principalArn string, records []accessadvisor.ServiceAccessRecord) (Verdict, error) {
	now := p.now()
	maxAge := p.maxAge()
	days := int(maxAge / (24 * time.Hour))

	stale := []string{}
	for _, record := range records {
		if !record.Accessed() {
			continue
		}
		if now.Sub(record.LastAuthenticated.UTC()) > maxAge {
			stale = append(stale, record.ServiceNamespace)
		}
	}

	if len(stale) == 0 {
		return compliant(annotation.AllServicesAccessedIn(days)), nil
	}
	zerolog.Ctx(ctx).Debug().Str("principalArn", principalArn).Strs("services", stale).Int("days", days).Msg("stale services found")
	return nonCompliant(annotation.Encode(annotation.Annotation{
		Kind:     annotation.NotAccessedRecently,
		Services: stale,
		Days:     days,
	}, shared.MaxAnnotationLength)), nil
}
