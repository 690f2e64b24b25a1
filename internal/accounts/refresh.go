package accounts

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/teemow/inboxglance/internal/gmail"
)

// TokenSourcer turns a stored token set into a refreshing token source.
type TokenSourcer interface {
	TokenSource(ctx context.Context, tok *oauth2.Token) oauth2.TokenSource
}

// InboxFetcher reads the newest messages of the mailbox behind ts.
type InboxFetcher interface {
	FetchRecent(ctx context.Context, ts oauth2.TokenSource, limit int) ([]gmail.MessageRecord, error)
}

// RefreshAll fetches a fresh inbox for every stored account, in store order.
// The first failing account fails the whole refresh. Fetched messages are
// returned only; the store keeps the messages captured at connection time.
func RefreshAll(ctx context.Context, store Store, tokens TokenSourcer, fetcher InboxFetcher, limit int) ([]gmail.Inbox, error) {
	accts, err := store.List(ctx)
	if err != nil {
		return nil, err
	}

	inboxes := make([]gmail.Inbox, 0, len(accts))
	for i, acct := range accts {
		if acct.Token == nil {
			return nil, fmt.Errorf("account %d has no stored token", i)
		}
		messages, err := fetcher.FetchRecent(ctx, tokens.TokenSource(ctx, acct.Token), limit)
		if err != nil {
			return nil, fmt.Errorf("failed to refresh inbox of account %d: %w", i, err)
		}
		inboxes = append(inboxes, gmail.Inbox{Email: acct.Email, Messages: messages})
	}
	return inboxes, nil
}
