package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ClientID identifies a client account.
type ClientID uint16

// TxID identifies a deposit or withdrawal. Dispute, resolve and chargeback
// events carry the id of the transaction they reference.
type TxID uint32

// Kind is the type of a ledger event.
type Kind uint8

const (
	KindDeposit Kind = iota + 1
	KindWithdraw
	KindDispute
	KindResolve
	KindChargeback
)

var kindNames = map[Kind]string{
	KindDeposit:    "deposit",
	KindWithdraw:   "withdraw",
	KindDispute:    "dispute",
	KindResolve:    "resolve",
	KindChargeback: "chargeback",
}

// Kinds lists every event kind in declaration order.
func Kinds() []Kind {
	return []Kind{KindDeposit, KindWithdraw, KindDispute, KindResolve, KindChargeback}
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// CarriesAmount reports whether events of this kind move money themselves.
func (k Kind) CarriesAmount() bool {
	return k == KindDeposit || k == KindWithdraw
}

// ParseKind parses an event type name, ignoring case and surrounding space.
func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("invalid event type %q", s)
}

// DisputeState tracks where a logged transaction is in the dispute lifecycle.
type DisputeState uint8

const (
	Undisputed DisputeState = iota
	Disputed
	ChargedBack
)

func (s DisputeState) String() string {
	switch s {
	case Undisputed:
		return "undisputed"
	case Disputed:
		return "disputed"
	case ChargedBack:
		return "charged_back"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Event is a single record of the input stream.
//
// Once logged, only State changes.
type Event struct {
	Kind   Kind
	Client ClientID
	Tx     TxID
	Amount decimal.NullDecimal // Valid only for deposits and withdrawals
	State  DisputeState
}

// NewDeposit returns a deposit event.
func NewDeposit(client ClientID, tx TxID, amount decimal.Decimal) Event {
	return Event{Kind: KindDeposit, Client: client, Tx: tx, Amount: decimal.NewNullDecimal(amount)}
}

// NewWithdrawal returns a withdraw event.
func NewWithdrawal(client ClientID, tx TxID, amount decimal.Decimal) Event {
	return Event{Kind: KindWithdraw, Client: client, Tx: tx, Amount: decimal.NewNullDecimal(amount)}
}

// NewDispute returns a dispute referencing tx.
func NewDispute(client ClientID, tx TxID) Event {
	return Event{Kind: KindDispute, Client: client, Tx: tx}
}

// NewResolve returns a resolve referencing tx.
func NewResolve(client ClientID, tx TxID) Event {
	return Event{Kind: KindResolve, Client: client, Tx: tx}
}

// NewChargeback returns a chargeback referencing tx.
func NewChargeback(client ClientID, tx TxID) Event {
	return Event{Kind: KindChargeback, Client: client, Tx: tx}
}

func (e Event) String() string {
	if e.Amount.Valid {
		return fmt.Sprintf("%s client=%d tx=%d amount=%s", e.Kind, e.Client, e.Tx, e.Amount.Decimal.String())
	}
	return fmt.Sprintf("%s client=%d tx=%d", e.Kind, e.Client, e.Tx)
}

// Account holds the balances of one client.
//
// Available may be negative after a deposit is disputed once its funds have
// already been withdrawn.
type Account struct {
	Client    ClientID
	Available decimal.Decimal
	Held      decimal.Decimal
	Total     decimal.Decimal
	Locked    bool
}

// Balanced reports whether Total equals Available plus Held.
func (a Account) Balanced() bool {
	return a.Total.Equal(a.Available.Add(a.Held))
}
