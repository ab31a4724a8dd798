package store

import (
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/payments/internal/ledger"
)

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

// toNumeric converts without going through a string or float.
func toNumeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{
		Int:   new(big.Int).Set(d.Coefficient()),
		Exp:   d.Exponent(),
		Valid: true,
	}
}

func fromNumeric(n pgtype.Numeric) (decimal.Decimal, error) {
	if !n.Valid {
		return decimal.Decimal{}, fmt.Errorf("unexpected NULL numeric")
	}
	if n.NaN || n.InfinityModifier != pgtype.Finite {
		return decimal.Decimal{}, fmt.Errorf("non-finite numeric")
	}
	return decimal.NewFromBigInt(n.Int, n.Exp), nil
}

func scanRun(row pgx.Row) (Run, error) {
	var (
		run Run
		id  pgtype.UUID
	)
	err := row.Scan(&id, &run.Source, &run.StartedAt, &run.FinishedAt,
		&run.Events, &run.Applied, &run.Failed, &run.BytesRead)
	if err != nil {
		return Run{}, err
	}
	run.ID = uuid.UUID(id.Bytes)
	return run, nil
}

func scanAccount(row pgx.Row) (ledger.Account, error) {
	var (
		client                 int32
		available, held, total pgtype.Numeric
		acct                   ledger.Account
		err                    error
	)
	if err = row.Scan(&client, &available, &held, &total, &acct.Locked); err != nil {
		return ledger.Account{}, err
	}

	acct.Client = ledger.ClientID(client)
	if acct.Available, err = fromNumeric(available); err != nil {
		return ledger.Account{}, fmt.Errorf("available: %w", err)
	}
	if acct.Held, err = fromNumeric(held); err != nil {
		return ledger.Account{}, fmt.Errorf("held: %w", err)
	}
	if acct.Total, err = fromNumeric(total); err != nil {
		return ledger.Account{}, fmt.Errorf("total: %w", err)
	}
	return acct, nil
}
