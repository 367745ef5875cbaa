package shared

import (
	"regexp"
)

var (
	awsAccountIdRegex = regexp.MustCompile(`^\d{12}$`)

	// iam principal arns, path segments allowed: arn:aws:iam::<account-id>:<type>/<path>/<name>
	awsIamUserArnRegex  = regexp.MustCompile(`^arn:aws[a-z-]*:iam::\d{12}:user\/([\w+=,.@-]+\/)*[\w+=,.@-]+$`)
	awsIamRoleArnRegex  = regexp.MustCompile(`^arn:aws[a-z-]*:iam::\d{12}:role\/([\w+=,.@-]+\/)*[\w+=,.@-]+$`)
	awsIamGroupArnRegex = regexp.MustCompile(`^arn:aws[a-z-]*:iam::\d{12}:group\/([\w+=,.@-]+\/)*[\w+=,.@-]+$`)
)

// validate aws account Id
func IsValidAwsAccountId(accountId string) bool {
	return awsAccountIdRegex.MatchString(accountId)
}

// validate iam principal arn (user, role or group)
func IsValidIamIdentityArn(identityArn string) bool {
	return IsValidIamRoleArn(identityArn) || IsValidIamUserArn(identityArn) || IsValidIamGroupArn(identityArn)
}

// valid iam role arn
func IsValidIamRoleArn(roleArn string) bool {
	return awsIamRoleArnRegex.MatchString(roleArn)
}

// valid iam user arn
func IsValidIamUserArn(userArn string) bool {
	return awsIamUserArnRegex.MatchString(userArn)
}

// valid iam group arn
func IsValidIamGroupArn(groupArn string) bool {
	return awsIamGroupArnRegex.MatchString(groupArn)
}

// ValidateAnnotation returns a non empty annotation no longer than maxLength.
func ValidateAnnotation(str string, maxLength int) string {
	if str != "" {
		return truncateString(str, maxLength)
	}
	return "N/A"
}

func truncateString(str string, maxLength int) string {
	if len(str) > maxLength {
		if maxLength > 3 {
			return str[:maxLength-3] + "..."
		}
		return str[:maxLength]
	}
	return str
}
