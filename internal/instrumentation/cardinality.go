package instrumentation

import "github.com/teemow/inboxglance/internal/logging"

// unknownDomain labels addresses logging.ExtractDomain cannot parse.
const unknownDomain = "unknown"

// domainLabel reduces an email address to its domain for use as a metric
// label.
func domainLabel(email string) string {
	if domain := logging.ExtractDomain(email); domain != "" {
		return domain
	}
	return unknownDomain
}

// Google API operations recorded by the backend.
const (
	OperationList     = "list"
	OperationGet      = "get"
	OperationUserinfo = "userinfo"
	OperationExchange = "exchange"
)
