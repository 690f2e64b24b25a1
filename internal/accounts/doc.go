// Package accounts keeps the list of connected Gmail accounts and refreshes
// their inboxes.
//
// A Store holds Accounts in connection order, keyed by email. MemoryStore
// lives for the process; SQLiteStore persists accounts across restarts and
// can encrypt token sets at rest. RefreshAll re-reads every stored account's
// inbox on demand.
package accounts
