package models

import (
	"time"

	"github.com/google/uuid"
)

// Credit ledger entry types. Amount is a signed delta: negative for
// generation debits, positive for top-ups and grants. The ledger is the
// append-only system of record; users.credit_balance must always equal
// the sum of a user's deltas.
const (
	CreditEntryGenerationDebit = "generation_debit"
	CreditEntryAdminTopup      = "admin_topup"
	CreditEntrySignupGrant     = "signup_grant"
)

type CreditLedger struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	GenerationID *uuid.UUID `json:"generation_id,omitempty"`
	EntryType    string     `json:"entry_type"`
	Amount       int        `json:"amount"`
	BalanceAfter int        `json:"balance_after"`
	Cause        string     `json:"cause"`
	CreatedAt    time.Time  `json:"created_at"`
}
