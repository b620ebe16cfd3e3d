// SDK error classification shared by provider implementations.

package llm

import (
	"github.com/richinex/quizforge/remote"
)

// classifyStatus maps an HTTP status from a provider SDK to an error kind.
// Auth, validation, and quota failures must not be retried; server-side
// failures are transient.
func classifyStatus(status int) remote.ErrorKind {
	switch {
	case status == 401 || status == 403:
		return remote.KindAuth
	case status == 429:
		return remote.KindQuota
	case status == 400 || status == 404 || status == 422:
		return remote.KindValidation
	case status >= 500:
		return remote.KindServer
	default:
		return remote.KindTransport
	}
}
