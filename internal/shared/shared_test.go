package shared

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractAWSAccountFromARN(t *testing.T) {
	tests := []struct {
		name     string
		arn      string
		expected string
		isError  bool
	}{
		{"role", "arn:aws:iam::111111111111:role/example", "111111111111", false},
		{"role with path", "arn:aws:iam::222222222222:role/service-role/example", "222222222222", false},
		{"group", "arn:aws:iam::111111111111:group/admins", "111111111111", false},
		{"no account", "arn:aws:iam:::role/example", "", true},
		{"invalid", "not-an-arn", "", true},
		{"empty", "", "", true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			accountId, err := ExtractAWSAccountFromARN(test.arn)
			if test.isError {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, test.expected, accountId)
		})
	}
}

func TestIsValidIamIdentityArn(t *testing.T) {
	assertion := assert.New(t)

	assertion.True(IsValidIamIdentityArn("arn:aws:iam::111111111111:role/example"))
	assertion.True(IsValidIamIdentityArn("arn:aws:iam::111111111111:role/service-role/example"))
	assertion.True(IsValidIamIdentityArn("arn:aws:iam::111111111111:user/alice"))
	assertion.True(IsValidIamIdentityArn("arn:aws:iam::111111111111:group/admins"))
	assertion.False(IsValidIamIdentityArn("arn:aws:iam::111111111111:policy/ReadOnlyAccess"))
	assertion.False(IsValidIamIdentityArn("arn:aws:iam::1111:role/example"))

	assertion.True(IsValidAwsAccountId("012345678910"))
	assertion.False(IsValidAwsAccountId("invalid-aws-account-id"))
}

func TestValidateAnnotation(t *testing.T) {
	assertion := assert.New(t)

	assertion.Equal("N/A", ValidateAnnotation("", 10))
	assertion.Equal("short", ValidateAnnotation("short", 10))

	long := strings.Repeat("a", 300)
	validated := ValidateAnnotation(long, MaxAnnotationLength)
	assertion.Len(validated, MaxAnnotationLength)
	assertion.True(strings.HasSuffix(validated, "..."))
}

func TestParsePositiveInt(t *testing.T) {
	assertion := assert.New(t)

	assertion.Equal(180, ParsePositiveInt("", 180))
	assertion.Equal(90, ParsePositiveInt("90", 180))
	assertion.Equal(180, ParsePositiveInt("-1", 180))
	assertion.Equal(180, ParsePositiveInt("abc", 180))
	assertion.True(IsIamPrincipalType(AwsIamGroup))
	assertion.False(IsIamPrincipalType("AWS::IAM::Policy"))
}
