package csv

import (
	stdcsv "encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/JonMunkholm/payments/internal/ledger"
)

// AccountHeader is the header row of the account table.
var AccountHeader = []string{"client", "available", "held", "total", "locked"}

// WriteAccounts writes accounts as CSV, one row per account in the order
// given. The header is always written, even when accounts is empty.
// Amounts are printed with exactly places fractional digits.
func WriteAccounts(w io.Writer, accounts []ledger.Account, places int32) error {
	cw := stdcsv.NewWriter(w)

	if err := cw.Write(AccountHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	row := make([]string, len(AccountHeader))
	for _, acct := range accounts {
		row[0] = strconv.FormatUint(uint64(acct.Client), 10)
		row[1] = acct.Available.StringFixed(places)
		row[2] = acct.Held.StringFixed(places)
		row[3] = acct.Total.StringFixed(places)
		row[4] = strconv.FormatBool(acct.Locked)
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing client %d: %w", acct.Client, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing accounts: %w", err)
	}
	return nil
}
