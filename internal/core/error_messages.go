package core

// error_messages.go maps technical errors to coded messages for users.
//
// # Error Codes Reference
//
// Codes are grouped by category. Users quote the code; support staff look it
// up here and in the logs.
//
// # Ledger Errors (LED001-LED099)
//
// A single event was rejected and skipped. These never abort a run:
//
//	LED001 - Missing amount: deposit or withdraw without an amount
//	LED002 - Account not found: no account for the client, or the referenced
//	         transaction belongs to another client
//	LED003 - Insufficient funds: withdraw larger than the available balance
//	LED004 - Transaction not found: dispute, resolve or chargeback of an
//	         unknown transaction id
//	LED005 - Already disputed: second dispute of the same transaction
//	LED006 - Not under dispute: resolve or chargeback without a dispute
//	LED007 - Not disputable: transaction was charged back
//	LED008 - Not resolvable: referenced record cannot be resolved
//	LED009 - Not chargebackable: referenced record cannot be charged back
//	LED010 - Unknown event kind
//
// # Validation Errors (VAL001-VAL099)
//
// Malformed records. Any of these aborts the run:
//
//	VAL002 - Invalid number             Patterns: "invalid number"
//	VAL003 - Required field             Patterns: "required field"
//	VAL004 - Missing column             Patterns: "missing required column"
//	VAL006 - Invalid event type         Patterns: "invalid event type"
//	VAL007 - Invalid client id          Patterns: "invalid client id"
//	VAL008 - Invalid transaction id     Patterns: "invalid transaction id"
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large            Patterns: "file too large", "request body too large"
//	FILE002 - Invalid CSV               Patterns: "invalid csv"
//	FILE004 - No file                   Patterns: "no file provided"
//
// # Run Errors (RUN001-RUN099)
//
//	RUN001 - Run cancelled              Patterns: "run cancelled"
//	RUN002 - System busy                Patterns: "too many concurrent runs"
//	RUN003 - Run not found              Patterns: "run not found"
//	RUN004 - Run store disabled         Patterns: "run store disabled"
//
// # Request and Database Errors
//
//	UPL004 - Request cancelled          Patterns: "context canceled"
//	UPL005 - Request timeout            Patterns: "context deadline exceeded"
//	DB004  - Connection refused         Patterns: "connection refused"
//	DB006  - Timeout                    Patterns: "timeout"
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Check the logs for the technical error.
//
// Ledger errors are matched with errors.Is. Everything else is matched
// case-insensitively with strings.Contains, first match wins.

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/payments/internal/ledger"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

type sentinelMessage struct {
	err error
	msg UserMessage
}

var ledgerMessages = []sentinelMessage{
	{ledger.ErrMissingAmount, UserMessage{
		Message: "Transaction has no amount",
		Action:  "Deposits and withdrawals need a value in the amount column",
		Code:    "LED001",
	}},
	{ledger.ErrAccountNotFound, UserMessage{
		Message: "Account not found for this client",
		Action:  "Check the client id; accounts are opened by a first deposit",
		Code:    "LED002",
	}},
	{ledger.ErrInsufficientFunds, UserMessage{
		Message: "Insufficient available funds",
		Action:  "The withdrawal exceeds the available balance and was skipped",
		Code:    "LED003",
	}},
	{ledger.ErrTransactionNotFound, UserMessage{
		Message: "Referenced transaction not found",
		Action:  "Check the tx id of the dispute, resolve or chargeback",
		Code:    "LED004",
	}},
	{ledger.ErrAlreadyDisputed, UserMessage{
		Message: "Transaction is already under dispute",
		Action:  "Resolve or charge back the open dispute first",
		Code:    "LED005",
	}},
	{ledger.ErrNotUnderDispute, UserMessage{
		Message: "Transaction is not under dispute",
		Action:  "Only disputed transactions can be resolved or charged back",
		Code:    "LED006",
	}},
	{ledger.ErrNotDisputable, UserMessage{
		Message: "Transaction cannot be disputed",
		Action:  "Charged back transactions are final",
		Code:    "LED007",
	}},
	{ledger.ErrNotResolvable, UserMessage{
		Message: "Transaction cannot be resolved",
		Action:  "Check that the tx id refers to a deposit or withdrawal",
		Code:    "LED008",
	}},
	{ledger.ErrNotChargebackable, UserMessage{
		Message: "Transaction cannot be charged back",
		Action:  "Check that the tx id refers to a deposit or withdrawal",
		Code:    "LED009",
	}},
	{ledger.ErrUnknownKind, UserMessage{
		Message: "Unknown event type",
		Action:  "Use deposit, withdraw, dispute, resolve or chargeback",
		Code:    "LED010",
	}},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns is ordered: specific patterns before general ones.
var errorPatterns = []errorPattern{
	// Validation
	{
		pattern: "invalid number",
		msg: UserMessage{
			Message: "Invalid number format detected",
			Action:  "Use a plain decimal amount such as 12.5 without currency symbols",
			Code:    "VAL002",
		},
	},
	{
		pattern: "required field",
		msg: UserMessage{
			Message: "Required field is empty",
			Action:  "Every record needs a type, client and tx",
			Code:    "VAL003",
		},
	},
	{
		pattern: "missing required column",
		msg: UserMessage{
			Message: "Required column is missing from CSV",
			Action:  "The header must name the type, client and tx columns",
			Code:    "VAL004",
		},
	},
	{
		pattern: "invalid event type",
		msg: UserMessage{
			Message: "Unknown event type",
			Action:  "Use deposit, withdraw, dispute, resolve or chargeback",
			Code:    "VAL006",
		},
	},
	{
		pattern: "invalid client id",
		msg: UserMessage{
			Message: "Invalid client id",
			Action:  "Client ids are whole numbers from 0 to 65535",
			Code:    "VAL007",
		},
	},
	{
		pattern: "invalid transaction id",
		msg: UserMessage{
			Message: "Invalid transaction id",
			Action:  "Transaction ids are whole numbers from 0 to 4294967295",
			Code:    "VAL008",
		},
	},

	// File
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the file into smaller runs",
			Code:    "FILE001",
		},
	},
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the file into smaller runs",
			Code:    "FILE001",
		},
	},
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Check the quoting around the reported line",
			Code:    "FILE002",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was provided",
			Action:  "Send the CSV as the request body or as the file form field",
			Code:    "FILE004",
		},
	},

	// Run
	{
		pattern: "run cancelled",
		msg: UserMessage{
			Message: "Run was cancelled before it finished",
			Action:  "No accounts were written. Start the run again",
			Code:    "RUN001",
		},
	},
	{
		pattern: "too many concurrent runs",
		msg: UserMessage{
			Message: "System is busy processing other runs",
			Action:  "Please wait a moment and try again",
			Code:    "RUN002",
		},
	},
	{
		pattern: "run not found",
		msg: UserMessage{
			Message: "Run not found",
			Action:  "Check the run id returned when the run was submitted",
			Code:    "RUN003",
		},
	},
	{
		pattern: "run store disabled",
		msg: UserMessage{
			Message: "Stored runs are not available",
			Action:  "Configure DATABASE_URL to keep run results",
			Code:    "RUN004",
		},
	},

	// Request
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "UPL004",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or raise UPLOAD_TIMEOUT",
			Code:    "UPL005",
		},
	},

	// Database
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Please try again later",
			Code:    "DB006",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message. Ledger
// errors are matched by identity, the rest by message. A nil error maps to
// the zero UserMessage.
//
//	msg := MapError(fmt.Errorf("withdraw tx 4: %w", ledger.ErrInsufficientFunds))
//	// msg.Code == "LED003"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range ledgerMessages {
		if errors.Is(err, sm.err) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError formats err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific code rather than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
