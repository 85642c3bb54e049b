// Package tokenomics models the wallet shown next to a user's profile. The
// backend ledger is not live yet, so MockLedger stands in for it.
package tokenomics

import (
	"context"
	"time"
)

// KSHPerHBAR is the fixed display exchange rate.
const KSHPerHBAR = 50

// ToKSH converts an HBAR amount to shillings.
func ToKSH(hbar float64) float64 { return hbar * KSHPerHBAR }

// ToHBAR converts a shilling amount to HBAR.
func ToHBAR(ksh float64) float64 { return ksh / KSHPerHBAR }

// Transaction types.
const (
	TypeTipSent     = "tip_sent"
	TypeTipReceived = "tip_received"
	TypeDeposit     = "deposit"
	TypeWithdrawal  = "withdrawal"
	TypeReward      = "reward"
)

const StatusCompleted = "completed"

// Balance is a wallet balance in both currencies.
type Balance struct {
	HBAR float64 `json:"hbar"`
	KSH  float64 `json:"ksh"`
}

// Transaction is one ledger entry.
type Transaction struct {
	ID              string    `json:"id"`
	Type            string    `json:"type"`
	Amount          float64   `json:"amount"`
	KSHAmount       float64   `json:"ksh_amount"`
	RecipientID     int       `json:"recipient_id,omitempty"`
	Message         string    `json:"message,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	Status          string    `json:"status"`
	TransactionHash string    `json:"transaction_hash"`
	Description     string    `json:"description,omitempty"`
}

// TransactionPage is one page of history, newest first.
type TransactionPage struct {
	Transactions []Transaction `json:"transactions"`
	Page         int           `json:"page"`
	Limit        int           `json:"limit"`
	Total        int           `json:"total"`
	HasMore      bool          `json:"has_more"`
}

// ExchangeRate is the pair of conversion factors.
type ExchangeRate struct {
	HBARToKSH float64 `json:"hbar_to_ksh"`
	KSHToHBAR float64 `json:"ksh_to_hbar"`
}

// Ledger is the wallet capability.
type Ledger interface {
	Balance(ctx context.Context) (Balance, error)
	SendTip(ctx context.Context, recipientID int, amount float64, message string) (*Transaction, error)
	Transactions(ctx context.Context, page, limit int) (*TransactionPage, error)
	Deposit(ctx context.Context, amount float64) (*Transaction, error)
	Withdraw(ctx context.Context, amount float64) (*Transaction, error)
	ExchangeRate() ExchangeRate
}
