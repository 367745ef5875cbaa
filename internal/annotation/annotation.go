// Package annotation encodes and parses the text attached to IAM_ALLOWS_UNUSED_SERVICES
// evaluations. The report reads the service list back out of the annotation, so
// both sides go through this package.
package annotation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// FormatVersion identifies the annotation layout below.
const FormatVersion = 1

const (
	prefix              = "Services "
	separator           = ", "
	quote               = "'"
	neverAccessedSuffix = " have never been accessed"
	staleSuffixPrefix   = " have not been accessed in the last "
	staleSuffixUnit     = " days"

	// TruncationMarker replaces the services dropped to fit the length limit.
	TruncationMarker = "..."
)

// compliant annotations
const (
	AllServicesAccessed         = "IAM entity has accessed all allowed services"
	ExcludedPrincipal           = "IAM entity is excluded from unused services checks"
	PrincipalDeleted            = "IAM entity has been deleted"
	allServicesAccessedInWindow = "IAM entity has accessed all allowed services in the last %d days"
)

var ErrUnrecognizedAnnotation = errors.New("unrecognized annotation")

type Kind int

const (
	NeverAccessed Kind = iota
	NotAccessedRecently
)

func (k Kind) String() string {
	switch k {
	case NeverAccessed:
		return "NEVER_ACCESSED"
	case NotAccessedRecently:
		return "NOT_ACCESSED_RECENTLY"
	}
	return "UNKNOWN"
}

// Annotation is the structured form of a non compliant annotation.
type Annotation struct {
	Kind      Kind
	Services  []string
	Days      int  // window of NotAccessedRecently
	Truncated bool // some services were dropped to fit the length limit
}

// AllServicesAccessedIn is the compliant annotation of a stale access check over days.
func AllServicesAccessedIn(days int) string {
	return fmt.Sprintf(allServicesAccessedInWindow, days)
}

func (a Annotation) suffix() string {
	if a.Kind == NotAccessedRecently {
		return staleSuffixPrefix + strconv.Itoa(a.Days) + staleSuffixUnit
	}
	return neverAccessedSuffix
}

func render(services []string, truncated bool, suffix string) string {
	items := make([]string, 0, len(services)+1)
	for _, s := range services {
		items = append(items, quote+s+quote)
	}
	if truncated {
		items = append(items, TruncationMarker)
	}
	return prefix + strings.Join(items, separator) + suffix
}

// String renders the annotation without a length limit.
func (a Annotation) String() string {
	return render(a.Services, a.Truncated, a.suffix())
}

// Encode renders the annotation in at most maxLen characters. When the full
// list does not fit, trailing services are replaced by TruncationMarker.
// maxLen <= 0 means no limit.
func Encode(a Annotation, maxLen int) string {
	full := a.String()
	if maxLen <= 0 || len(full) <= maxLen {
		return full
	}

	suffix := a.suffix()
	for keep := len(a.Services) - 1; keep >= 0; keep-- {
		candidate := render(a.Services[:keep], true, suffix)
		if len(candidate) <= maxLen {
			return candidate
		}
	}
	// not even the wrapper fits
	return full[:maxLen]
}

// Parse recovers the structured annotation from its encoded form.
func Parse(text string) (Annotation, error) {
	if !strings.HasPrefix(text, prefix) {
		return Annotation{}, ErrUnrecognizedAnnotation
	}
	body := strings.TrimPrefix(text, prefix)

	var a Annotation
	switch {
	case strings.HasSuffix(body, neverAccessedSuffix):
		a.Kind = NeverAccessed
		body = strings.TrimSuffix(body, neverAccessedSuffix)
	case strings.HasSuffix(body, staleSuffixUnit) && strings.Contains(body, staleSuffixPrefix):
		idx := strings.LastIndex(body, staleSuffixPrefix)
		days, err := strconv.Atoi(strings.TrimSuffix(body[idx+len(staleSuffixPrefix):], staleSuffixUnit))
		if err != nil {
			return Annotation{}, ErrUnrecognizedAnnotation
		}
		a.Kind = NotAccessedRecently
		a.Days = days
		body = body[:idx]
	default:
		return Annotation{}, ErrUnrecognizedAnnotation
	}

	a.Services = []string{}
	for _, item := range strings.Split(body, separator) {
		item = strings.TrimSpace(item)
		if item == TruncationMarker {
			a.Truncated = true
			continue
		}
		item = strings.TrimSuffix(strings.TrimPrefix(item, quote), quote)
		if item == "" {
			continue
		}
		a.Services = append(a.Services, item)
	}
	return a, nil
}
