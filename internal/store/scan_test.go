package store

import (
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumericRoundTrip(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"0", "1.5", "-2.0001", "123456789012.3456", "0.0000"} {
		t.Run(in, func(t *testing.T) {
			t.Parallel()

			d := decimal.RequireFromString(in)
			got, err := fromNumeric(toNumeric(d))
			require.NoError(t, err)
			assert.True(t, d.Equal(got), "got %s", got)
		})
	}
}

func TestFromNumeric_Rejects(t *testing.T) {
	t.Parallel()

	_, err := fromNumeric(pgtype.Numeric{})
	require.Error(t, err)

	_, err = fromNumeric(pgtype.Numeric{NaN: true, Valid: true})
	require.Error(t, err)
}

func TestToNumeric_DoesNotAlias(t *testing.T) {
	t.Parallel()

	d := decimal.RequireFromString("7.25")
	n := toNumeric(d)
	n.Int.SetInt64(0)

	assert.Equal(t, "7.25", d.String())
}

func TestDatabaseName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ledger", DatabaseName("postgres://u:p@localhost:5432/ledger?sslmode=disable"))
	assert.Equal(t, "", DatabaseName("postgres://localhost"))
}
