package annotation

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	var (
		tests = []struct {
			name       string
			annotation Annotation
			expected   string
		}{
			{
				"single never accessed service",
				Annotation{Kind: NeverAccessed, Services: []string{"lambda"}},
				"Services 'lambda' have never been accessed",
			},
			{
				"multiple never accessed services",
				Annotation{Kind: NeverAccessed, Services: []string{"lambda", "ec2", "sqs"}},
				"Services 'lambda', 'ec2', 'sqs' have never been accessed",
			},
			{
				"stale services",
				Annotation{Kind: NotAccessedRecently, Services: []string{"s3", "dynamodb"}, Days: 180},
				"Services 's3', 'dynamodb' have not been accessed in the last 180 days",
			},
		}
	)

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assertion := assert.New(t)
			assertion.Equal(test.expected, Encode(test.annotation, 220))
			assertion.Equal(test.expected, test.annotation.String())
		})
	}
}

func TestEncodeTruncates(t *testing.T) {
	assertion := assert.New(t)

	services := []string{}
	for i := 0; i < 30; i++ {
		services = append(services, fmt.Sprintf("service%02d", i))
	}

	encoded := Encode(Annotation{Kind: NeverAccessed, Services: services}, 220)
	assertion.LessOrEqual(len(encoded), 220)
	assertion.True(strings.HasPrefix(encoded, "Services 'service00', "))
	assertion.True(strings.HasSuffix(encoded, ", 'service13', ... have never been accessed"))

	parsed, err := Parse(encoded)
	require.NoError(t, err)
	assertion.True(parsed.Truncated)
	assertion.Equal(services[:14], parsed.Services)
}

func TestEncodeNoLimit(t *testing.T) {
	services := []string{}
	for i := 0; i < 30; i++ {
		services = append(services, fmt.Sprintf("service%02d", i))
	}
	encoded := Encode(Annotation{Kind: NeverAccessed, Services: services}, 0)
	assert.Equal(t, 422, len(encoded))
}

func TestParse(t *testing.T) {
	var (
		tests = []struct {
			name          string
			text          string
			expected      Annotation
			expectedError bool
		}{
			{
				"quoted services",
				"Services 'lambda', 'ec2' have never been accessed",
				Annotation{Kind: NeverAccessed, Services: []string{"lambda", "ec2"}},
				false,
			},
			{
				"unquoted services",
				"Services lambda, ec2 have never been accessed",
				Annotation{Kind: NeverAccessed, Services: []string{"lambda", "ec2"}},
				false,
			},
			{
				"stale services",
				"Services 's3' have not been accessed in the last 90 days",
				Annotation{Kind: NotAccessedRecently, Services: []string{"s3"}, Days: 90},
				false,
			},
			{
				"truncated",
				"Services 'a', 'b', ... have never been accessed",
				Annotation{Kind: NeverAccessed, Services: []string{"a", "b"}, Truncated: true},
				false,
			},
			{"compliant message", AllServicesAccessed, Annotation{}, true},
			{"missing suffix", "Services 'a', 'b'", Annotation{}, true},
			{"bad window", "Services 'a' have not been accessed in the last many days", Annotation{}, true},
			{"empty", "", Annotation{}, true},
		}
	)

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assertion := assert.New(t)
			parsed, err := Parse(test.text)
			if test.expectedError {
				assertion.ErrorIs(err, ErrUnrecognizedAnnotation)
				return
			}
			assertion.NoError(err)
			assertion.Equal(test.expected, parsed)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	assertion := assert.New(t)
	original := Annotation{Kind: NotAccessedRecently, Services: []string{"s3", "kms", "sts"}, Days: 180}
	parsed, err := Parse(Encode(original, 220))
	assertion.NoError(err)
	assertion.Equal(original, parsed)
}

func TestCompliantMessages(t *testing.T) {
	assertion := assert.New(t)
	assertion.Equal("IAM entity has accessed all allowed services in the last 180 days", AllServicesAccessedIn(180))
	assertion.Equal("NEVER_ACCESSED", NeverAccessed.String())
	assertion.Equal("NOT_ACCESSED_RECENTLY", NotAccessedRecently.String())
	assertion.Equal(1, FormatVersion)
}
