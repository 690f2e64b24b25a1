// Package gmail reads the newest messages of a Gmail mailbox and normalizes
// them into MessageRecords for the frontend.
//
// Extract is a pure function over a full-format *gmail.Message. Fetcher
// lists the newest message IDs, fetches the details concurrently, and joins
// the results in list order.
//
//	f := gmail.NewFetcher(gmail.WithLogger(logger), gmail.WithMetrics(metrics))
//	records, err := f.FetchRecent(ctx, tokenSource, gmail.DefaultLimit)
package gmail
