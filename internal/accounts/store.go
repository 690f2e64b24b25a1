package accounts

import (
	"context"
	"errors"

	"golang.org/x/oauth2"

	"github.com/teemow/inboxglance/internal/gmail"
)

// ErrInvalidEmail is returned when an account has no email.
var ErrInvalidEmail = errors.New("account email is required")

// Account is a connected Gmail identity with its token set and the messages
// fetched when it was connected.
type Account struct {
	Email    string                `json:"email"`
	Token    *oauth2.Token         `json:"-"`
	Messages []gmail.MessageRecord `json:"messages"`
}

// Store is an insertion-ordered set of accounts keyed by email.
type Store interface {
	// UpsertIfAbsent appends acct unless an account with the same email is
	// already stored, in which case nothing changes. It reports whether acct
	// was inserted.
	UpsertIfAbsent(ctx context.Context, acct Account) (bool, error)

	// List returns a snapshot of all accounts in insertion order.
	List(ctx context.Context) ([]Account, error)

	// Remove deletes the account with email. Removing an unknown email is
	// not an error.
	Remove(ctx context.Context, email string) (bool, error)

	Close() error
}

func validate(acct Account) error {
	if acct.Email == "" {
		return ErrInvalidEmail
	}
	return nil
}

func cloneToken(tok *oauth2.Token) *oauth2.Token {
	if tok == nil {
		return nil
	}
	cp := *tok
	return &cp
}
