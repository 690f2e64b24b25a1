package google

import (
	gmail "google.golang.org/api/gmail/v1"
)

// Scopes are requested on every consent screen. profile and email let the
// callback resolve the account's address; the Gmail scopes cover reading the
// inbox and sending on the user's behalf.
var Scopes = []string{
	"profile",
	"email",
	gmail.GmailReadonlyScope,
	gmail.GmailSendScope,
}
