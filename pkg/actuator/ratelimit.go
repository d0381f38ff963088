package actuator

import (
	"regexp"
	"strings"
)

// RateLimitSignature recognises the vendor's "slow down" answer.
type RateLimitSignature struct {
	Codes   []string
	Pattern *regexp.Regexp
}

func DefaultRateLimitSignature() RateLimitSignature {
	return RateLimitSignature{
		Codes:   []string{"429", "rate_limited"},
		Pattern: regexp.MustCompile(`(?i)rate[ _-]?limit|too many requests`),
	}
}

// Match is false for successful outcomes.
func (s RateLimitSignature) Match(o Outcome) bool {
	if o.Success {
		return false
	}
	for _, c := range s.Codes {
		if c != "" && strings.EqualFold(strings.TrimSpace(o.ErrorCode), c) {
			return true
		}
	}
	return s.Pattern != nil && s.Pattern.MatchString(o.Error)
}
