// Package stub provides an in-memory billing service that speaks the
// currencies API, for local development and end-to-end tests.
package stub

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/alexbotov/gaming-billing/pkg/billing"
	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalid           = errors.New("invalid request")
	ErrNotPending        = errors.New("transaction is not pending")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// amountPlaces is the number of decimal places amounts are rendered with
const amountPlaces = 4

// ExchangeRule converts FromUnit into ToUnit at Rate
type ExchangeRule struct {
	FromUnit string
	ToUnit   string
	Rate     string
}

type account struct {
	holderID  string
	unit      string
	amount    *big.Rat
	createdAt time.Time
}

func (a *account) view(holderType string) billing.Account {
	return billing.Account{
		HolderID:     a.holderID,
		HolderType:   holderType,
		CurrencyUnit: a.unit,
		Amount:       formatAmount(a.amount),
		CreatedAt:    a.createdAt,
	}
}

// kind is the family a transaction belongs to
type kind string

const (
	kindAdjustment kind = "adjustments"
	kindTransfer   kind = "transfers"
	kindExchange   kind = "exchanges"
)

// change is one balance movement applied on confirm
type change struct {
	account *account
	delta   *big.Rat
}

type transaction struct {
	id              uuid.UUID
	kind            kind
	service         string
	status          billing.TransactionStatus
	statusDesc      string
	description     string
	createdAt       time.Time
	closedAt        *time.Time
	autoRejectAfter time.Time
	changes         []change

	// family specific fields kept for listing
	holderID   string
	toHolderID string
	unit       string
	toUnit     string
	rule       string
	amount     *big.Rat
	toAmount   *big.Rat
}

// Ledger holds the state of the stub service. It is safe for concurrent use.
type Ledger struct {
	mu sync.Mutex

	clock             billing.Clock
	defaultHolderType string
	autoReject        time.Duration

	holders       map[string]*billing.Holder
	units         map[string]billing.Unit
	accounts      map[string]*account
	transactions  map[uuid.UUID]*transaction
	transferRules map[string]string
	exchangeRules map[string]ExchangeRule

	notify func(Event)
}

// NewLedger creates an empty ledger using the units and rules of cfg.
// An exchange rule must convert between two different units.
func NewLedger(cfg *Config) (*Ledger, error) {
	l := &Ledger{
		clock:             cfg.Clock,
		defaultHolderType: cfg.DefaultHolderType,
		autoReject:        cfg.AutoReject,
		holders:           make(map[string]*billing.Holder),
		units:             make(map[string]billing.Unit),
		accounts:          make(map[string]*account),
		transactions:      make(map[uuid.UUID]*transaction),
		transferRules:     make(map[string]string),
		exchangeRules:     make(map[string]ExchangeRule),
	}
	if l.clock == nil {
		l.clock = billing.SystemClock{}
	}
	for _, u := range cfg.Units {
		l.units[u.Symbol] = u
	}
	for name, unit := range cfg.TransferRules {
		l.transferRules[name] = unit
	}
	for name, rule := range cfg.ExchangeRules {
		if rule.FromUnit == rule.ToUnit {
			return nil, fmt.Errorf("%w: exchange rule %s converts %s to itself", ErrInvalid, name, rule.FromUnit)
		}
		l.exchangeRules[name] = rule
	}
	return l, nil
}

// OnEvent registers fn to receive every transaction state change.
// fn runs with the ledger locked and must not block.
func (l *Ledger) OnEvent(fn func(Event)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notify = fn
}

// emit reports tx's current state. Callers hold l.mu.
func (l *Ledger) emit(tx *transaction, at time.Time) {
	if l.notify == nil {
		return
	}
	l.notify(Event{
		Kind:   string(tx.kind),
		UUID:   tx.id,
		Status: tx.status,
		At:     at,
	})
}

func accountKey(holderID, unit string) string {
	return holderID + "\x00" + unit
}

func parseAmount(a billing.Amount) (*big.Rat, error) {
	r, ok := new(big.Rat).SetString(string(a))
	if !ok {
		return nil, fmt.Errorf("%w: amount %q", ErrInvalid, string(a))
	}
	return r, nil
}

func formatAmount(r *big.Rat) billing.Amount {
	if r == nil {
		return ""
	}
	return billing.Amount(r.FloatString(amountPlaces))
}

// now is the ledger clock reading truncated the way it is reported
func (l *Ledger) now() time.Time {
	return l.clock.Now().UTC().Truncate(time.Microsecond)
}

// CreateHolder returns the holder with req.HolderID, creating it if needed
func (l *Ledger) CreateHolder(req *billing.HolderCreate) (billing.Holder, error) {
	if req.HolderID == "" {
		return billing.Holder{}, fmt.Errorf("%w: holder_id is required", ErrInvalid)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if h, ok := l.holders[req.HolderID]; ok {
		return *h, nil
	}

	holderType := req.HolderType
	if holderType == "" {
		holderType = l.defaultHolderType
	}
	info := req.Info
	if info == nil {
		info = map[string]any{}
	}

	h := &billing.Holder{
		HolderID:   req.HolderID,
		HolderType: holderType,
		Enabled:    true,
		Info:       info,
		CreatedAt:  l.now(),
	}
	l.holders[h.HolderID] = h
	return *h, nil
}

// Holder returns one holder
func (l *Ledger) Holder(holderID string) (billing.Holder, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	h, ok := l.holders[holderID]
	if !ok {
		return billing.Holder{}, fmt.Errorf("%w: holder %s", ErrNotFound, holderID)
	}
	return *h, nil
}

// UpdateHolder changes the enabled flag and/or info of a holder
func (l *Ledger) UpdateHolder(holderID string, upd billing.HolderUpdate) (billing.Holder, error) {
	if upd.Enabled == nil && upd.Info == nil {
		return billing.Holder{}, fmt.Errorf("%w: no parameters are set", ErrInvalid)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	h, ok := l.holders[holderID]
	if !ok {
		return billing.Holder{}, fmt.Errorf("%w: holder %s", ErrNotFound, holderID)
	}
	if upd.Enabled != nil {
		h.Enabled = *upd.Enabled
	}
	if upd.Info != nil {
		h.Info = upd.Info
	}
	return *h, nil
}

// Holders lists holders matching f, newest first
func (l *Ledger) Holders(f *ListFilter) []billing.Holder {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]billing.Holder, 0, len(l.holders))
	for _, h := range l.holders {
		if !f.matchString("holder_type", h.HolderType) || !f.matchTime("created_at", &h.CreatedAt) {
			continue
		}
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].HolderID < out[j].HolderID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Units lists the configured units ordered by symbol
func (l *Ledger) Units() []billing.Unit {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]billing.Unit, 0, len(l.units))
	for _, u := range l.units {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// openAccount returns the account, creating it when create is set.
// Callers hold l.mu.
func (l *Ledger) openAccount(holderID, unit string, create bool) (*account, error) {
	if _, ok := l.holders[holderID]; !ok {
		return nil, fmt.Errorf("%w: holder %s", ErrNotFound, holderID)
	}
	if _, ok := l.units[unit]; !ok {
		return nil, fmt.Errorf("%w: unit %s", ErrNotFound, unit)
	}

	key := accountKey(holderID, unit)
	if a, ok := l.accounts[key]; ok {
		return a, nil
	}
	if !create {
		return nil, fmt.Errorf("%w: account %s/%s", ErrNotFound, holderID, unit)
	}

	a := &account{holderID: holderID, unit: unit, amount: new(big.Rat), createdAt: l.now()}
	l.accounts[key] = a
	return a, nil
}

// CreateAccount returns the holder's account in unit, opening it if needed
func (l *Ledger) CreateAccount(req *billing.AccountCreate) (billing.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, err := l.openAccount(req.HolderID, req.UnitSymbol, true)
	if err != nil {
		return billing.Account{}, err
	}
	return a.view(l.holders[a.holderID].HolderType), nil
}

// Account returns the holder's account in unit
func (l *Ledger) Account(holderID, unit string) (billing.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, err := l.openAccount(holderID, unit, false)
	if err != nil {
		return billing.Account{}, err
	}
	return a.view(l.holders[a.holderID].HolderType), nil
}

// Accounts lists accounts matching f ordered by holder and unit
func (l *Ledger) Accounts(f *ListFilter) []billing.Account {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]billing.Account, 0, len(l.accounts))
	for _, a := range l.accounts {
		holderType := l.holders[a.holderID].HolderType
		if !f.matchString("holder_id", a.holderID) ||
			!f.matchString("unit", a.unit) ||
			!f.matchString("holder_type", holderType) {
			continue
		}
		out = append(out, a.view(holderType))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].HolderID == out[j].HolderID {
			return out[i].CurrencyUnit < out[j].CurrencyUnit
		}
		return out[i].HolderID < out[j].HolderID
	})
	return out
}

func (l *Ledger) deadline(now time.Time, timeout int) (time.Time, error) {
	if timeout < 0 {
		return time.Time{}, fmt.Errorf("%w: auto_reject_timeout must be positive", ErrInvalid)
	}
	if timeout == 0 {
		return now.Add(l.autoReject), nil
	}
	return now.Add(time.Duration(timeout) * time.Second), nil
}

func (l *Ledger) open(tx *transaction) billing.Transaction {
	l.transactions[tx.id] = tx
	l.emit(tx, tx.createdAt)
	return billing.Transaction{UUID: tx.id, Status: tx.status, Amount: formatAmount(tx.amount)}
}

// CreateAdjustment opens a pending adjustment on an existing account
func (l *Ledger) CreateAdjustment(service string, req *billing.AdjustmentCreate) (billing.Transaction, error) {
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return billing.Transaction{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	a, err := l.openAccount(req.HolderID, req.UnitSymbol, false)
	if err != nil {
		return billing.Transaction{}, fmt.Errorf("%w: account not found", ErrInvalid)
	}
	now := l.now()
	deadline, err := l.deadline(now, req.AutoRejectTimeout)
	if err != nil {
		return billing.Transaction{}, err
	}

	return l.open(&transaction{
		id:              uuid.New(),
		kind:            kindAdjustment,
		service:         service,
		status:          billing.StatusPending,
		description:     req.Description,
		createdAt:       now,
		autoRejectAfter: deadline,
		changes:         []change{{account: a, delta: amount}},
		holderID:        req.HolderID,
		unit:            req.UnitSymbol,
		amount:          amount,
	}), nil
}

// CreateTransfer opens a pending transfer in the unit of the named rule
func (l *Ledger) CreateTransfer(service string, req *billing.TransferCreate) (billing.Transaction, error) {
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return billing.Transaction{}, err
	}
	if amount.Sign() <= 0 {
		return billing.Transaction{}, fmt.Errorf("%w: amount must be positive", ErrInvalid)
	}
	if req.FromHolderID == req.ToHolderID {
		return billing.Transaction{}, fmt.Errorf("%w: cannot transfer to the same holder", ErrInvalid)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	unit, ok := l.transferRules[req.TransferRule]
	if !ok {
		return billing.Transaction{}, fmt.Errorf("%w: unknown transfer rule %s", ErrInvalid, req.TransferRule)
	}
	from, err := l.openAccount(req.FromHolderID, unit, true)
	if err != nil {
		return billing.Transaction{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	to, err := l.openAccount(req.ToHolderID, unit, true)
	if err != nil {
		return billing.Transaction{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	now := l.now()
	deadline, err := l.deadline(now, req.AutoRejectTimeout)
	if err != nil {
		return billing.Transaction{}, err
	}

	return l.open(&transaction{
		id:              uuid.New(),
		kind:            kindTransfer,
		service:         service,
		status:          billing.StatusPending,
		description:     req.Description,
		createdAt:       now,
		autoRejectAfter: deadline,
		changes: []change{
			{account: from, delta: new(big.Rat).Neg(amount)},
			{account: to, delta: amount},
		},
		holderID:   req.FromHolderID,
		toHolderID: req.ToHolderID,
		unit:       unit,
		rule:       req.TransferRule,
		amount:     amount,
	}), nil
}

// CreateExchange opens a pending exchange between the units of the named rule
func (l *Ledger) CreateExchange(service string, req *billing.ExchangeCreate) (billing.Transaction, error) {
	fromAmount, err := parseAmount(req.FromAmount)
	if err != nil {
		return billing.Transaction{}, err
	}
	if fromAmount.Sign() <= 0 {
		return billing.Transaction{}, fmt.Errorf("%w: from_amount must be positive", ErrInvalid)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rule, ok := l.exchangeRules[req.ExchangeRule]
	if !ok {
		return billing.Transaction{}, fmt.Errorf("%w: unknown exchange rule %s", ErrInvalid, req.ExchangeRule)
	}
	if rule.FromUnit != req.FromUnit || rule.ToUnit != req.ToUnit {
		return billing.Transaction{}, fmt.Errorf("%w: exchange rule %s converts %s to %s",
			ErrInvalid, req.ExchangeRule, rule.FromUnit, rule.ToUnit)
	}
	rate, ok := new(big.Rat).SetString(rule.Rate)
	if !ok {
		return billing.Transaction{}, fmt.Errorf("%w: exchange rule %s has rate %q", ErrInvalid, req.ExchangeRule, rule.Rate)
	}

	from, err := l.openAccount(req.HolderID, req.FromUnit, true)
	if err != nil {
		return billing.Transaction{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	to, err := l.openAccount(req.HolderID, req.ToUnit, true)
	if err != nil {
		return billing.Transaction{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	now := l.now()
	deadline, err := l.deadline(now, req.AutoRejectTimeout)
	if err != nil {
		return billing.Transaction{}, err
	}

	toAmount := new(big.Rat).Mul(fromAmount, rate)
	return l.open(&transaction{
		id:              uuid.New(),
		kind:            kindExchange,
		service:         service,
		status:          billing.StatusPending,
		description:     req.Description,
		createdAt:       now,
		autoRejectAfter: deadline,
		changes: []change{
			{account: from, delta: new(big.Rat).Neg(fromAmount)},
			{account: to, delta: toAmount},
		},
		holderID: req.HolderID,
		unit:     req.FromUnit,
		toUnit:   req.ToUnit,
		rule:     req.ExchangeRule,
		amount:   fromAmount,
		toAmount: toAmount,
	}), nil
}

// pending returns the pending transaction id of kind k, rejecting it first
// if its deadline has passed. Callers hold l.mu.
func (l *Ledger) pending(k kind, id uuid.UUID, now time.Time) (*transaction, error) {
	tx, ok := l.transactions[id]
	if !ok || tx.kind != k {
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, k, id)
	}
	l.expire(tx, now)
	if tx.status != billing.StatusPending {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotPending, id, tx.status)
	}
	return tx, nil
}

func (l *Ledger) expire(tx *transaction, now time.Time) {
	if tx.status == billing.StatusPending && !now.Before(tx.autoRejectAfter) {
		tx.status = billing.StatusRejected
		tx.statusDesc = "auto rejected"
		closed := tx.autoRejectAfter
		tx.closedAt = &closed
		l.emit(tx, closed)
	}
}

// Confirm applies a pending transaction's balance changes
func (l *Ledger) Confirm(k kind, id uuid.UUID, statusDescription string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	tx, err := l.pending(k, id, now)
	if err != nil {
		return err
	}

	results := make([]*big.Rat, len(tx.changes))
	for i, c := range tx.changes {
		results[i] = new(big.Rat).Add(c.account.amount, c.delta)
		if results[i].Sign() < 0 {
			return fmt.Errorf("%w: %s/%s", ErrInsufficientFunds, c.account.holderID, c.account.unit)
		}
	}
	for i, c := range tx.changes {
		c.account.amount = results[i]
	}

	tx.status = billing.StatusConfirmed
	tx.statusDesc = statusDescription
	tx.closedAt = &now
	l.emit(tx, now)
	return nil
}

// Reject closes a pending transaction without touching balances
func (l *Ledger) Reject(k kind, id uuid.UUID, statusDescription string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	tx, err := l.pending(k, id, now)
	if err != nil {
		return err
	}

	tx.status = billing.StatusRejected
	tx.statusDesc = statusDescription
	tx.closedAt = &now
	l.emit(tx, now)
	return nil
}

// transactionsOf lists transactions of kind k matching f, newest first
func (l *Ledger) transactionsOf(k kind, f *ListFilter) []*transaction {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	var out []*transaction
	for _, tx := range l.transactions {
		if tx.kind != k {
			continue
		}
		l.expire(tx, now)
		holderMatch := f.matchString("holder", tx.holderID) || (tx.toHolderID != "" && f.matchString("holder", tx.toHolderID))
		unitMatch := f.matchString("currency_unit", tx.unit) || (tx.toUnit != "" && f.matchString("currency_unit", tx.toUnit))
		if !holderMatch || !unitMatch || !f.matchAmount(tx.amount) ||
			!f.matchString("service", tx.service) ||
			!f.matchString("status", string(tx.status)) ||
			!f.matchTime("created_at", &tx.createdAt) ||
			!f.matchTime("closed_at", tx.closedAt) {
			continue
		}
		cp := *tx
		out = append(out, &cp)
	}
	sortTransactions(out, f.Ordering)
	return out
}

func sortTransactions(txs []*transaction, ordering string) {
	oldestFirst := ordering == "created_at"
	sort.Slice(txs, func(i, j int) bool {
		a, b := txs[i], txs[j]
		if a.createdAt.Equal(b.createdAt) {
			return a.id.String() < b.id.String()
		}
		if oldestFirst {
			return a.createdAt.Before(b.createdAt)
		}
		return a.createdAt.After(b.createdAt)
	})
}

func optionalTime(t time.Time) *time.Time {
	return &t
}

// Adjustments lists adjustments matching f
func (l *Ledger) Adjustments(f *ListFilter) []billing.Adjustment {
	txs := l.transactionsOf(kindAdjustment, f)
	out := make([]billing.Adjustment, len(txs))
	for i, tx := range txs {
		out[i] = billing.Adjustment{
			UUID:            tx.id,
			Service:         tx.service,
			Status:          tx.status,
			HolderID:        tx.holderID,
			Unit:            tx.unit,
			Amount:          formatAmount(tx.amount),
			Description:     tx.description,
			CreatedAt:       tx.createdAt,
			ClosedAt:        tx.closedAt,
			AutoRejectAfter: optionalTime(tx.autoRejectAfter),
		}
	}
	return out
}

// Transfers lists transfers matching f
func (l *Ledger) Transfers(f *ListFilter) []billing.Transfer {
	txs := l.transactionsOf(kindTransfer, f)
	out := make([]billing.Transfer, len(txs))
	for i, tx := range txs {
		out[i] = billing.Transfer{
			UUID:            tx.id,
			Service:         tx.service,
			Status:          tx.status,
			FromHolderID:    tx.holderID,
			ToHolderID:      tx.toHolderID,
			TransferRule:    tx.rule,
			Amount:          formatAmount(tx.amount),
			Description:     tx.description,
			CreatedAt:       tx.createdAt,
			ClosedAt:        tx.closedAt,
			AutoRejectAfter: optionalTime(tx.autoRejectAfter),
		}
	}
	return out
}

// Exchanges lists exchanges matching f
func (l *Ledger) Exchanges(f *ListFilter) []billing.Exchange {
	txs := l.transactionsOf(kindExchange, f)
	out := make([]billing.Exchange, len(txs))
	for i, tx := range txs {
		out[i] = billing.Exchange{
			UUID:            tx.id,
			Service:         tx.service,
			Status:          tx.status,
			HolderID:        tx.holderID,
			ExchangeRule:    tx.rule,
			FromUnit:        tx.unit,
			ToUnit:          tx.toUnit,
			FromAmount:      formatAmount(tx.amount),
			ToAmount:        formatAmount(tx.toAmount),
			Description:     tx.description,
			CreatedAt:       tx.createdAt,
			ClosedAt:        tx.closedAt,
			AutoRejectAfter: optionalTime(tx.autoRejectAfter),
		}
	}
	return out
}
