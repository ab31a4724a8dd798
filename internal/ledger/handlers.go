package ledger

// handlers.go implements the five event handlers.
//
// Every handler checks all of its preconditions before touching a balance,
// so a rejected event leaves both the account table and the event log exactly
// as they were.

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// deposit credits the client's available and total funds, opening the account
// on first use. Locked accounts still accept deposits.
func deposit(accounts *AccountTable, ev *Event, seq int64) error {
	if !ev.Amount.Valid {
		return fmt.Errorf("deposit tx %d: %w", ev.Tx, ErrMissingAmount)
	}
	amount := ev.Amount.Decimal

	acct := accounts.FindOrCreate(ev.Client, seq)
	acct.Available = acct.Available.Add(amount)
	acct.Total = acct.Total.Add(amount)
	return nil
}

// withdraw debits available and total funds. It fails without side effects
// when the client has no account or not enough available funds.
func withdraw(accounts *AccountTable, ev *Event) error {
	if !ev.Amount.Valid {
		return fmt.Errorf("withdraw tx %d: %w", ev.Tx, ErrMissingAmount)
	}
	amount := ev.Amount.Decimal

	acct := accounts.Find(ev.Client)
	if acct == nil {
		return fmt.Errorf("withdraw client %d: %w", ev.Client, ErrAccountNotFound)
	}
	if amount.GreaterThan(acct.Available) {
		return fmt.Errorf("withdraw %s with %s available: %w", amount, acct.Available, ErrInsufficientFunds)
	}

	acct.Available = acct.Available.Sub(amount)
	acct.Total = acct.Total.Sub(amount)
	return nil
}

// dispute places the referenced transaction under investigation.
//
// A disputed deposit moves its amount from available to held. A disputed
// withdrawal has already left available, so its amount is credited back into
// held and total until the dispute is settled.
func dispute(accounts *AccountTable, events *EventLog, ev *Event) error {
	target, amount, err := referencedTransaction(events, ev)
	if err != nil {
		return err
	}

	switch target.State {
	case Disputed:
		return fmt.Errorf("dispute tx %d: %w", ev.Tx, ErrAlreadyDisputed)
	case ChargedBack:
		return fmt.Errorf("dispute tx %d already charged back: %w", ev.Tx, ErrNotDisputable)
	}

	acct, err := referencedAccount(accounts, ev, target)
	if err != nil {
		return err
	}

	switch target.Kind {
	case KindDeposit:
		acct.Available = acct.Available.Sub(amount)
		acct.Held = acct.Held.Add(amount)
	case KindWithdraw:
		acct.Held = acct.Held.Add(amount)
		acct.Total = acct.Total.Add(amount)
	default:
		return fmt.Errorf("dispute %s tx %d: %w", target.Kind, ev.Tx, ErrNotDisputable)
	}

	target.State = Disputed
	return nil
}

// resolve settles a dispute in the client's favour and releases the held
// amount back to available. Total is unchanged across a dispute/resolve pair
// for deposits.
func resolve(accounts *AccountTable, events *EventLog, ev *Event) error {
	target, amount, err := referencedTransaction(events, ev)
	if err != nil {
		return err
	}
	if target.State != Disputed {
		return fmt.Errorf("resolve tx %d (%s): %w", ev.Tx, target.State, ErrNotUnderDispute)
	}

	acct, err := referencedAccount(accounts, ev, target)
	if err != nil {
		return err
	}

	switch target.Kind {
	case KindDeposit, KindWithdraw:
		acct.Held = acct.Held.Sub(amount)
		acct.Available = acct.Available.Add(amount)
	default:
		return fmt.Errorf("resolve %s tx %d: %w", target.Kind, ev.Tx, ErrNotResolvable)
	}

	target.State = Undisputed
	return nil
}

// chargeback reverses a disputed transaction: the held amount leaves the
// account and the account is locked. Locking never blocks later events,
// including further chargebacks.
func chargeback(accounts *AccountTable, events *EventLog, ev *Event) error {
	target, amount, err := referencedTransaction(events, ev)
	if err != nil {
		return err
	}
	if target.State != Disputed {
		return fmt.Errorf("chargeback tx %d (%s): %w", ev.Tx, target.State, ErrNotUnderDispute)
	}

	acct, err := referencedAccount(accounts, ev, target)
	if err != nil {
		return err
	}

	switch target.Kind {
	case KindDeposit, KindWithdraw:
		acct.Held = acct.Held.Sub(amount)
		acct.Total = acct.Total.Sub(amount)
		acct.Locked = true
	default:
		return fmt.Errorf("chargeback %s tx %d: %w", target.Kind, ev.Tx, ErrNotChargebackable)
	}

	target.State = ChargedBack
	return nil
}

// referencedTransaction looks up the first event logged under ev's id. The
// target may be of any kind, but never ev itself; one without an amount
// cannot be referenced.
func referencedTransaction(events *EventLog, ev *Event) (*Event, decimal.Decimal, error) {
	target, ok := events.Find(ev.Client, ev.Tx)
	if !ok || target == ev {
		return nil, decimal.Decimal{}, fmt.Errorf("%s tx %d: %w", ev.Kind, ev.Tx, ErrTransactionNotFound)
	}
	if !target.Amount.Valid {
		return nil, decimal.Decimal{}, fmt.Errorf("%s tx %d: %w", ev.Kind, ev.Tx, ErrMissingAmount)
	}
	return target, target.Amount.Decimal, nil
}

// referencedAccount returns the account owning target. The referencing event
// must name the same client.
func referencedAccount(accounts *AccountTable, ev, target *Event) (*Account, error) {
	if ev.Client != target.Client {
		return nil, fmt.Errorf("%s client %d for tx %d of client %d: %w",
			ev.Kind, ev.Client, ev.Tx, target.Client, ErrAccountNotFound)
	}
	acct := accounts.Find(target.Client)
	if acct == nil {
		return nil, fmt.Errorf("%s client %d: %w", ev.Kind, ev.Client, ErrAccountNotFound)
	}
	return acct, nil
}
