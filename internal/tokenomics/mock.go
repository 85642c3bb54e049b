package tokenomics

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/on-cure/oncare/internal/errors"
	"github.com/on-cure/oncare/internal/log"
	"github.com/on-cure/oncare/internal/metrics"
)

const (
	historyTotal = 100
	historyPages = 5
	defaultLimit = 20
)

// Latencies simulates network round trips per operation.
type Latencies struct {
	Balance      time.Duration
	Tip          time.Duration
	Transactions time.Duration
	Transfer     time.Duration
}

// DefaultLatencies approximate the hosted ledger.
var DefaultLatencies = Latencies{
	Balance:      500 * time.Millisecond,
	Tip:          time.Second,
	Transactions: 800 * time.Millisecond,
	Transfer:     1500 * time.Millisecond,
}

// MockOption configures a MockLedger.
type MockOption func(*MockLedger)

// WithLatencies overrides the simulated latencies. Zero disables a delay.
func WithLatencies(l Latencies) MockOption {
	return func(m *MockLedger) { m.latency = l }
}

// WithRand seeds the ledger's randomness, for reproducible output.
func WithRand(r *rand.Rand) MockOption {
	return func(m *MockLedger) { m.rng = r }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) MockOption {
	return func(m *MockLedger) { m.now = now }
}

func WithLedgerLogger(l *log.Logger) MockOption {
	return func(m *MockLedger) { m.logger = l }
}

func WithLedgerMetrics(mt *metrics.Metrics) MockOption {
	return func(m *MockLedger) { m.metrics = mt }
}

// MockLedger is an in-memory Ledger with random balances and synthetic
// history. Every call honours ctx while it sleeps.
type MockLedger struct {
	latency Latencies
	now     func() time.Time
	logger  *log.Logger
	metrics *metrics.Metrics

	mu  sync.Mutex
	rng *rand.Rand
}

// NewMockLedger returns a mock with DefaultLatencies.
func NewMockLedger(opts ...MockOption) *MockLedger {
	m := &MockLedger{
		latency: DefaultLatencies,
		now:     time.Now,
		logger:  log.Discard(),
		rng:     rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x0ca7e)),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.WithComponent("ledger")
	return m
}

var _ Ledger = (*MockLedger)(nil)

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MockLedger) intN(n int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.IntN(n)
}

func (m *MockLedger) float() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.Float64()
}

func (m *MockLedger) hash() string {
	b := make([]byte, 32)
	m.mu.Lock()
	for i := range b {
		b[i] = byte(m.rng.UintN(256))
	}
	m.mu.Unlock()
	return "0x" + hex.EncodeToString(b)
}

// Balance returns a random balance between 100 and 1099 HBAR.
func (m *MockLedger) Balance(ctx context.Context) (Balance, error) {
	if err := sleep(ctx, m.latency.Balance); err != nil {
		return Balance{}, err
	}
	hbar := float64(m.intN(1000) + 100)
	return Balance{HBAR: hbar, KSH: ToKSH(hbar)}, nil
}

func validateAmount(amount float64) error {
	if amount <= 0 {
		return errors.New(errors.ErrCodeInvalidAmount, "Amount must be greater than 0").
			WithSuggestion("Pass a positive amount, e.g. --amount 2.5")
	}
	return nil
}

// SendTip records a completed tip to recipientID.
func (m *MockLedger) SendTip(ctx context.Context, recipientID int, amount float64, message string) (*Transaction, error) {
	tx, err := m.sendTip(ctx, recipientID, amount, message)
	m.metrics.RecordTip(err)
	if err != nil {
		return nil, err
	}
	m.logger.Info("tip sent", "recipient_id", recipientID, "amount_hbar", amount, "tx_id", tx.ID)
	return tx, nil
}

func (m *MockLedger) sendTip(ctx context.Context, recipientID int, amount float64, message string) (*Transaction, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if recipientID <= 0 {
		return nil, errors.New(errors.ErrCodeInvalidRecipient, "recipient is required").
			WithSuggestion("Pass the recipient's user id")
	}
	if err := sleep(ctx, m.latency.Tip); err != nil {
		return nil, err
	}
	return &Transaction{
		ID:              "tip_" + uuid.NewString(),
		Type:            TypeTipSent,
		Amount:          amount,
		KSHAmount:       ToKSH(amount),
		RecipientID:     recipientID,
		Message:         message,
		Timestamp:       m.now().UTC(),
		Status:          StatusCompleted,
		TransactionHash: m.hash(),
	}, nil
}

// Deposit records a completed deposit.
func (m *MockLedger) Deposit(ctx context.Context, amount float64) (*Transaction, error) {
	return m.transfer(ctx, TypeDeposit, amount)
}

// Withdraw records a completed withdrawal.
func (m *MockLedger) Withdraw(ctx context.Context, amount float64) (*Transaction, error) {
	return m.transfer(ctx, TypeWithdrawal, amount)
}

func (m *MockLedger) transfer(ctx context.Context, typ string, amount float64) (*Transaction, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if err := sleep(ctx, m.latency.Transfer); err != nil {
		return nil, err
	}
	return &Transaction{
		ID:              typ + "_" + uuid.NewString(),
		Type:            typ,
		Amount:          amount,
		KSHAmount:       ToKSH(amount),
		Timestamp:       m.now().UTC(),
		Status:          StatusCompleted,
		TransactionHash: m.hash(),
		Description:     describe(typ),
	}, nil
}

var historyTypes = []string{TypeTipSent, TypeTipReceived, TypeDeposit, TypeWithdrawal, TypeReward}

func describe(typ string) string {
	switch typ {
	case TypeTipSent:
		return "Tip sent to user"
	case TypeTipReceived:
		return "Tip received from user"
	case TypeDeposit:
		return "Account deposit"
	case TypeWithdrawal:
		return "Account withdrawal"
	default:
		return "Weekly reward"
	}
}

// Transactions returns a page of synthetic history from the last week.
// Pages start at 1; limit defaults to 20.
func (m *MockLedger) Transactions(ctx context.Context, page, limit int) (*TransactionPage, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if err := sleep(ctx, m.latency.Transactions); err != nil {
		return nil, err
	}

	now := m.now().UTC()
	week := 7 * 24 * time.Hour
	txs := make([]Transaction, 0, limit)
	for i := 0; i < limit; i++ {
		typ := historyTypes[m.intN(len(historyTypes))]
		amount := float64(m.intN(100) + 1)
		txs = append(txs, Transaction{
			ID:              fmt.Sprintf("tx_%d_%d", now.UnixMilli(), (page-1)*limit+i),
			Type:            typ,
			Amount:          amount,
			KSHAmount:       ToKSH(amount),
			Timestamp:       now.Add(-time.Duration(m.float() * float64(week))),
			Status:          StatusCompleted,
			TransactionHash: m.hash(),
			Description:     describe(typ),
		})
	}
	sort.Slice(txs, func(i, j int) bool { return txs[i].Timestamp.After(txs[j].Timestamp) })

	return &TransactionPage{
		Transactions: txs,
		Page:         page,
		Limit:        limit,
		Total:        historyTotal,
		HasMore:      page < historyPages,
	}, nil
}

// ExchangeRate returns the fixed rate.
func (m *MockLedger) ExchangeRate() ExchangeRate {
	return ExchangeRate{HBARToKSH: KSHPerHBAR, KSHToHBAR: 1.0 / KSHPerHBAR}
}
