package csv

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/JonMunkholm/payments/internal/ledger"
)

// ============================================================================
// Conversion Benchmarks
// ============================================================================

// BenchmarkParseAmount runs once per deposit and withdraw.
func BenchmarkParseAmount(b *testing.B) {
	testCases := []string{
		"1",
		"2.5",
		"  10.12345 ",
		"-0.0001",
		".75",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, tc := range testCases {
			_, _ = ParseAmount(tc, DefaultAmountPlaces)
		}
	}
}

func BenchmarkParseClient(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_, _ = ParseClient("65535")
	}
}

func BenchmarkMakeHeaderIndex(b *testing.B) {
	header := []string{" Type", "CLIENT ", "tx", "Amount"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = MakeHeaderIndex(header)
	}
}

// ============================================================================
// Reader Benchmarks
// ============================================================================

func benchInput(rows int) string {
	var sb strings.Builder
	sb.WriteString("type, client, tx, amount\n")
	for i := 1; i <= rows; i++ {
		client := i%500 + 1
		switch i % 5 {
		case 0:
			fmt.Fprintf(&sb, "withdraw, %d, %d, 0.5\n", client, i)
		case 3:
			fmt.Fprintf(&sb, "dispute, %d, %d,\n", client, i-1)
		default:
			fmt.Fprintf(&sb, "deposit, %d, %d, %d.%04d\n", client, i, i%100, i%10000)
		}
	}
	return sb.String()
}

// BenchmarkReader measures decoding alone.
func BenchmarkReader(b *testing.B) {
	input := benchInput(10000)
	b.SetBytes(int64(len(input)))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r := NewReader(Wrap(strings.NewReader(input)))
		for {
			if _, err := r.Next(); err == io.EOF {
				break
			} else if err != nil {
				b.Fatal(err)
			}
		}
	}
}

// BenchmarkReaderEngine measures decoding plus applying every event.
func BenchmarkReaderEngine(b *testing.B) {
	input := benchInput(10000)
	b.SetBytes(int64(len(input)))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e := ledger.New()
		if err := e.Run(b.Context(), NewReader(Wrap(strings.NewReader(input)))); err != nil {
			b.Fatal(err)
		}
	}
}
