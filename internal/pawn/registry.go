package pawn

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/Additional-Code/pawnshop/pkg/errorbank"
)

// Changeset is everything one operation commits. Orders and Escrows hold the
// post-operation rows that changed; Pool is the resulting pool balance.
// Version is the journal version the changeset was staged on: a journal must
// refuse it unless its stored version still equals Version, and store
// Version+1 when it accepts it.
type Changeset struct {
	Version   uint64
	Orders    []Order
	Escrows   []Escrow
	Pool      Amount
	Movements []Movement
	Events    []Event
}

//go:generate mockgen -source=registry.go -destination=mocks/journal.go -package=mocks

// Journal durably records a changeset. If Commit fails the registry discards
// the operation, so memory never runs ahead of the journal.
type Journal interface {
	Commit(ctx context.Context, cs Changeset) error
}

type discardJournal struct{}

func (discardJournal) Commit(context.Context, Changeset) error { return nil }

// CreateOrderParams describes a new loan request.
type CreateOrderParams struct {
	Price       Amount
	ItemName    string
	Description string
	Grade       Grade
}

type entry struct {
	order  Order
	escrow *Escrow
}

// Registry is the single writer for orders, escrows and the pool. Every
// mutating call runs under one lock and either commits fully or not at all.
type Registry struct {
	mu         sync.Mutex
	entries    []*entry
	byAddress  map[string]uint64
	pool       Amount
	version    uint64
	deriver    AddressDeriver
	settlement Settlement
	journal    Journal
	now        func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

func WithJournal(j Journal) Option {
	return func(r *Registry) {
		if j != nil {
			r.journal = j
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

func WithSettlement(s Settlement) Option {
	return func(r *Registry) {
		if s != nil {
			r.settlement = s
		}
	}
}

func WithAddressDeriver(d AddressDeriver) Option {
	return func(r *Registry) {
		r.deriver = d
	}
}

// NewRegistry returns an empty registry with a zero pool.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		byAddress:  make(map[string]uint64),
		deriver:    AddressDeriver{Prefix: DefaultAddressPrefix},
		settlement: RefundSettlement{},
		journal:    discardJournal{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Restore replaces the registry state with a previously journaled snapshot
// taken at version.
func (r *Registry) Restore(version uint64, pool Amount, orders []Order, escrows []Escrow) error {
	entries := make([]*entry, len(orders))
	for i, o := range orders {
		if o.ID != uint64(i+1) {
			return fmt.Errorf("restore: order ids are not contiguous at position %d (id %d)", i, o.ID)
		}
		entries[i] = &entry{order: o}
	}
	byAddress := make(map[string]uint64, len(escrows))
	for _, e := range escrows {
		if e.OrderID == 0 || e.OrderID > uint64(len(entries)) {
			return fmt.Errorf("restore: escrow references unknown order %d", e.OrderID)
		}
		escrow := e
		entries[e.OrderID-1].escrow = &escrow
		byAddress[e.Address] = e.OrderID
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = entries
	r.byAddress = byAddress
	r.pool = pool
	r.version = version
	return nil
}

// Version returns the journal version of the last committed changeset.
func (r *Registry) Version() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.version
}

func (r *Registry) lookup(id uint64) (*entry, error) {
	if id == 0 || id > uint64(len(r.entries)) {
		return nil, errorbank.NotFound(fmt.Sprintf("order %d not found", id), errorbank.WithDetail("order_id", id))
	}
	return r.entries[id-1], nil
}

// begin prepares a machine over copies of the entry and pool.
func (r *Registry) begin(e *entry) *machine {
	pool := r.pool
	m := &machine{
		now:        r.now(),
		settlement: r.settlement,
	}
	m.ledger = &ledger{pool: &pool, at: m.now}
	if e != nil {
		order := e.order
		m.order = &order
		if e.escrow != nil {
			escrow := *e.escrow
			m.escrow = &escrow
			m.ledger.escrow = m.escrow
		}
	}
	return m
}

// commit journals the machine's work and publishes it to the in-memory state.
// The caller holds r.mu.
func (r *Registry) commit(ctx context.Context, e *entry, m *machine) error {
	if !m.dirty && len(m.ledger.moves) == 0 {
		return nil
	}

	before := r.pool
	after := *m.ledger.pool
	if e != nil && e.escrow != nil {
		before = before.Add(e.escrow.Balance)
	}
	if m.escrow != nil {
		after = after.Add(m.escrow.Balance)
	}
	if err := checkConservation(before, after, m.ledger.moves); err != nil {
		return err
	}

	cs := Changeset{
		Version:   r.version,
		Pool:      *m.ledger.pool,
		Movements: m.ledger.moves,
		Events:    m.events,
	}
	if m.order != nil {
		cs.Orders = []Order{*m.order}
	}
	if m.escrow != nil {
		cs.Escrows = []Escrow{*m.escrow}
	}
	if err := r.journal.Commit(ctx, cs); err != nil {
		return errorbank.Internal("failed to journal operation", errorbank.WithCause(err))
	}

	r.version++
	r.pool = *m.ledger.pool
	if m.order == nil {
		return nil
	}
	if e == nil {
		e = &entry{}
		r.entries = append(r.entries, e)
	}
	e.order = *m.order
	if m.escrow != nil {
		escrow := *m.escrow
		e.escrow = &escrow
		r.byAddress[escrow.Address] = escrow.OrderID
	}
	return nil
}

// apply runs fn against order id under the registry lock.
func (r *Registry) apply(ctx context.Context, id uint64, fn func(*machine) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.lookup(id)
	if err != nil {
		return err
	}
	m := r.begin(e)
	if err := fn(m); err != nil {
		return err
	}
	return r.commit(ctx, e, m)
}

// CreateOrder registers a PENDING order and returns its id.
func (r *Registry) CreateOrder(ctx context.Context, p CreateOrderParams) (uint64, error) {
	if p.Price.IsZero() {
		return 0, errorbank.InvalidInput("price must be greater than zero")
	}
	if _, err := LookupTier(p.Grade); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.begin(nil)
	m.order = &Order{
		ID:          uint64(len(r.entries)) + 1,
		Price:       p.Price,
		ItemName:    p.ItemName,
		Description: p.Description,
		Grade:       p.Grade,
		Status:      StatusPending,
		CreatedAt:   m.now,
		UpdatedAt:   m.now,
	}
	m.dirty = true
	m.emit(EventOrderCreated, p.Price)

	if err := r.commit(ctx, nil, m); err != nil {
		return 0, err
	}
	return m.order.ID, nil
}

// AcceptOrder creates the escrow and funds the owner stake from the pool.
func (r *Registry) AcceptOrder(ctx context.Context, id uint64) error {
	return r.apply(ctx, id, func(m *machine) error {
		address, err := r.deriver.Derive(id)
		if err != nil {
			return errorbank.Internal("derive escrow address", errorbank.WithCause(err))
		}
		return m.accept(address)
	})
}

// Transfer is one external payment into an escrow handle. A non-empty ID is
// journaled with the deposit movement, which lets the journal refuse a replay.
type Transfer struct {
	ID      string
	Address string
	From    string
	Amount  Amount
}

// Deposit records an external transfer into the escrow at address.
func (r *Registry) Deposit(ctx context.Context, address, from string, amount Amount) (Escrow, error) {
	return r.ApplyTransfer(ctx, Transfer{Address: address, From: from, Amount: amount})
}

// ApplyTransfer records t into the escrow at t.Address.
func (r *Registry) ApplyTransfer(ctx context.Context, t Transfer) (Escrow, error) {
	address := strings.ToLower(strings.TrimSpace(t.Address))
	if err := r.deriver.Validate(address); err != nil {
		return Escrow{}, err
	}
	from := t.From
	if from == "" {
		from = string(PartyPawner)
	}
	amount := t.Amount

	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byAddress[address]
	if !ok {
		return Escrow{}, errorbank.NotFound("no escrow at address", errorbank.WithDetail("address", address))
	}
	e := r.entries[id-1]
	m := r.begin(e)
	m.ledger.transferID = strings.TrimSpace(t.ID)
	if err := m.deposit(from, amount); err != nil {
		return Escrow{}, err
	}
	if err := r.commit(ctx, e, m); err != nil {
		return Escrow{}, err
	}
	return *m.escrow, nil
}

func (r *Registry) AssignPawnerShippingHash(ctx context.Context, id uint64, trackingNumber *big.Int) error {
	return r.apply(ctx, id, func(m *machine) error {
		return m.assignPawnerShippingHash(trackingNumber)
	})
}

func (r *Registry) AssignOwnerShippingHash(ctx context.Context, id uint64, trackingNumber *big.Int) error {
	return r.apply(ctx, id, func(m *machine) error {
		return m.assignOwnerShippingHash(trackingNumber)
	})
}

// OwnerConfirmShipping starts the loan clock and pays the principal to the pawner.
func (r *Registry) OwnerConfirmShipping(ctx context.Context, id uint64) error {
	return r.apply(ctx, id, func(m *machine) error {
		return m.ownerConfirmShipping()
	})
}

// PawnerConfirmShipping settles a repaid loan once the collateral is back.
func (r *Registry) PawnerConfirmShipping(ctx context.Context, id uint64) error {
	return r.apply(ctx, id, func(m *machine) error {
		return m.pawnerConfirmShipping()
	})
}

// OwnerWithdrawStakeEarly expires an order the pawner has not shipped yet.
func (r *Registry) OwnerWithdrawStakeEarly(ctx context.Context, id uint64) error {
	return r.apply(ctx, id, func(m *machine) error {
		return m.ownerWithdrawStakeEarly()
	})
}

// DeleteOrder expires a STAKED order. The id stays allocated.
func (r *Registry) DeleteOrder(ctx context.Context, id uint64) error {
	return r.apply(ctx, id, func(m *machine) error {
		return m.deleteOrder()
	})
}

// CheckRepayAmount recomputes and stores the current repayment while the loan runs.
func (r *Registry) CheckRepayAmount(ctx context.Context, id uint64) (Amount, error) {
	var amount Amount
	err := r.apply(ctx, id, func(m *machine) error {
		var err error
		amount, err = m.checkRepayAmount()
		return err
	})
	return amount, err
}

// FundPool records an owner deposit into the pool.
func (r *Registry) FundPool(ctx context.Context, from string, amount Amount) (Amount, error) {
	if from == "" {
		from = string(PartyOwner)
	}
	return r.applyPool(ctx, EventPoolFunded, amount, func(l *ledger) error {
		return l.fundPool(from, amount)
	})
}

// WithdrawPool records an owner withdrawal from the pool.
func (r *Registry) WithdrawPool(ctx context.Context, to string, amount Amount) (Amount, error) {
	if to == "" {
		to = string(PartyOwner)
	}
	return r.applyPool(ctx, EventPoolWithdrawn, amount, func(l *ledger) error {
		return l.withdrawPool(to, amount)
	})
}

func (r *Registry) applyPool(ctx context.Context, typ EventType, amount Amount, fn func(*ledger) error) (Amount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.begin(nil)
	if err := fn(m.ledger); err != nil {
		return Amount{}, err
	}
	m.emit(typ, amount)
	if err := r.commit(ctx, nil, m); err != nil {
		return Amount{}, err
	}
	return r.pool, nil
}

// GetOrder returns the order snapshot.
func (r *Registry) GetOrder(id uint64) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.lookup(id)
	if err != nil {
		return Order{}, err
	}
	return e.order, nil
}

// GetSubContractOrder returns the order as observed through its escrow,
// or the plain order when none exists yet.
func (r *Registry) GetSubContractOrder(id uint64) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.lookup(id)
	if err != nil {
		return Order{}, err
	}
	if e.escrow == nil {
		return e.order, nil
	}
	return e.escrow.overlay(e.order), nil
}

// GetAllOrders returns every order in id order.
func (r *Registry) GetAllOrders() []Order {
	r.mu.Lock()
	defer r.mu.Unlock()

	orders := make([]Order, 0, len(r.entries))
	for _, e := range r.entries {
		if e.escrow != nil {
			orders = append(orders, e.escrow.overlay(e.order))
			continue
		}
		orders = append(orders, e.order)
	}
	return orders
}

// GetSubContractAddress returns the escrow handle, or "" when the order has none.
func (r *Registry) GetSubContractAddress(id uint64) (string, error) {
	escrow, err := r.escrowOf(id)
	if err != nil {
		return "", err
	}
	if escrow == nil {
		return "", nil
	}
	return escrow.Address, nil
}

// GetSubContractVars returns the loan terms of the order's escrow.
func (r *Registry) GetSubContractVars(id uint64) (Vars, error) {
	escrow, err := r.escrowOf(id)
	if err != nil {
		return Vars{}, err
	}
	if escrow == nil {
		return Vars{}, errorbank.NotFound(fmt.Sprintf("order %d has no escrow", id), errorbank.WithDetail("order_id", id))
	}
	return escrow.Vars(), nil
}

// GetEscrow returns a copy of the order's escrow.
func (r *Registry) GetEscrow(id uint64) (Escrow, error) {
	escrow, err := r.escrowOf(id)
	if err != nil {
		return Escrow{}, err
	}
	if escrow == nil {
		return Escrow{}, errorbank.NotFound(fmt.Sprintf("order %d has no escrow", id), errorbank.WithDetail("order_id", id))
	}
	return *escrow, nil
}

// EscrowBalance returns the escrow's custody, zero when none exists.
func (r *Registry) EscrowBalance(id uint64) (Amount, error) {
	escrow, err := r.escrowOf(id)
	if err != nil || escrow == nil {
		return Amount{}, err
	}
	return escrow.Balance, nil
}

func (r *Registry) escrowOf(id uint64) (*Escrow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	if e.escrow == nil {
		return nil, nil
	}
	escrow := *e.escrow
	return &escrow, nil
}

// PoolBalance returns the registry pool.
func (r *Registry) PoolBalance() Amount {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pool
}

// TotalCustody is the pool plus every escrow balance.
func (r *Registry) TotalCustody() Amount {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := r.pool
	for _, e := range r.entries {
		if e.escrow != nil {
			total = total.Add(e.escrow.Balance)
		}
	}
	return total
}

// VerifyShipment reports whether trackingNumber opens the party's stored commitment.
func (r *Registry) VerifyShipment(id uint64, party Party, trackingNumber *big.Int) (bool, error) {
	order, err := r.GetSubContractOrder(id)
	if err != nil {
		return false, err
	}
	switch party {
	case PartyPawner:
		return order.PawnerShippingHash.Matches(trackingNumber), nil
	case PartyOwner:
		return order.OwnerShippingHash.Matches(trackingNumber), nil
	default:
		return false, errorbank.InvalidInput(fmt.Sprintf("unknown party %q", party))
	}
}

// Overdue lists running loans whose term ended before now. Nothing is transitioned.
func (r *Registry) Overdue(now time.Time) []Escrow {
	r.mu.Lock()
	defer r.mu.Unlock()

	var overdue []Escrow
	for _, e := range r.entries {
		if e.escrow == nil || e.escrow.Status != StatusStaked || !e.escrow.ClockRunning() {
			continue
		}
		if now.Unix() > e.escrow.ExpireDate() {
			overdue = append(overdue, *e.escrow)
		}
	}
	return overdue
}

// Len returns the number of orders ever created.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
