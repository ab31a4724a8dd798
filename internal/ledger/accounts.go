package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// AccountTable maps client ids to their accounts.
//
// Accounts are created by deposits only and are never removed. Snapshots are
// returned in creation order.
type AccountTable struct {
	accounts map[ClientID]*accountEntry
	order    []ClientID
}

type accountEntry struct {
	account Account
	created int64 // sequence number of the event that opened the account
}

// NewAccountTable returns an empty table.
func NewAccountTable() *AccountTable {
	return &AccountTable{accounts: make(map[ClientID]*accountEntry)}
}

// Find returns the account for client, or nil if it has never received a
// deposit.
func (t *AccountTable) Find(client ClientID) *Account {
	e, ok := t.accounts[client]
	if !ok {
		return nil
	}
	return &e.account
}

// FindOrCreate returns the account for client, opening an empty unlocked one
// if needed. seq orders the account among its peers in snapshots.
func (t *AccountTable) FindOrCreate(client ClientID, seq int64) *Account {
	if e, ok := t.accounts[client]; ok {
		return &e.account
	}
	e := &accountEntry{
		account: Account{
			Client:    client,
			Available: decimal.Zero,
			Held:      decimal.Zero,
			Total:     decimal.Zero,
		},
		created: seq,
	}
	t.accounts[client] = e
	t.order = append(t.order, client)
	return &e.account
}

// Len returns the number of accounts.
func (t *AccountTable) Len() int {
	return len(t.order)
}

// Snapshot returns copies of all accounts in creation order.
func (t *AccountTable) Snapshot() []Account {
	out := make([]Account, 0, len(t.order))
	for _, client := range t.order {
		out = append(out, t.accounts[client].account)
	}
	return out
}

// mergeAccounts combines the tables of independent shards into one
// creation-ordered snapshot.
func mergeAccounts(tables ...*AccountTable) []Account {
	var entries []accountEntry
	for _, t := range tables {
		for _, client := range t.order {
			entries = append(entries, *t.accounts[client])
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].created < entries[j].created
	})

	out := make([]Account, len(entries))
	for i, e := range entries {
		out[i] = e.account
	}
	return out
}
