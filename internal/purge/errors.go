package purge

import (
	"errors"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
)

// IsQuotaError reports whether err means the Gmail quota is spent, as
// opposed to a transient failure worth a short retry. Structured API errors
// are checked first; the substring match catches wrapped errors from layers
// that only preserve text.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests {
			return true
		}
		if apiErr.Code == http.StatusForbidden {
			for _, item := range apiErr.Errors {
				switch item.Reason {
				case "quotaExceeded", "dailyLimitExceeded", "rateLimitExceeded", "userRateLimitExceeded":
					return true
				}
			}
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "quota")
}
