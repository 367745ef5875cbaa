package accessadvisor

import (
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	iamTypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
)

// ServiceAccessRecord is one service entry of an access advisor report.
type ServiceAccessRecord struct {
	ServiceName                string     `json:"serviceName"`
	ServiceNamespace           string     `json:"serviceNamespace"`
	LastAuthenticated          *time.Time `json:"lastAuthenticated,omitempty"`
	LastAuthenticatedEntity    string     `json:"lastAuthenticatedEntity,omitempty"`
	LastAuthenticatedRegion    string     `json:"lastAuthenticatedRegion,omitempty"`
	TotalAuthenticatedEntities int32      `json:"totalAuthenticatedEntities"`
}

// Accessed reports whether the service was ever authenticated to.
func (r ServiceAccessRecord) Accessed() bool {
	return r.LastAuthenticated != nil
}

func newServiceAccessRecord(s iamTypes.ServiceLastAccessed) ServiceAccessRecord {
	record := ServiceAccessRecord{
		ServiceName:             aws.ToString(s.ServiceName),
		ServiceNamespace:        aws.ToString(s.ServiceNamespace),
		LastAuthenticatedEntity: aws.ToString(s.LastAuthenticatedEntity),
		LastAuthenticatedRegion: aws.ToString(s.LastAuthenticatedRegion),
	}
	if s.LastAuthenticated != nil {
		t := s.LastAuthenticated.UTC()
		record.LastAuthenticated = &t
	}
	if s.TotalAuthenticatedEntities != nil {
		record.TotalAuthenticatedEntities = *s.TotalAuthenticatedEntities
	}
	return record
}

func newServiceAccessRecords(services []iamTypes.ServiceLastAccessed) []ServiceAccessRecord {
	records := make([]ServiceAccessRecord, 0, len(services))
	for _, s := range services {
		records = append(records, newServiceAccessRecord(s))
	}
	return records
}
