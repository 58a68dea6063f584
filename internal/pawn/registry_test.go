package pawn

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/pawnshop/pkg/errorbank"
)

const weiPerUnit = 1_000_000_000_000_000_000

func units(n uint64) Amount {
	return NewAmount(n).Mul(weiPerUnit)
}

func wei(t *testing.T, s string) Amount {
	t.Helper()
	a, err := ParseAmount(s)
	require.NoError(t, err)
	return a
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingJournal struct {
	changesets []Changeset
}

func (j *recordingJournal) Commit(_ context.Context, cs Changeset) error {
	j.changesets = append(j.changesets, cs)
	return nil
}

func (j *recordingJournal) payouts() Amount {
	total := Amount{}
	for _, cs := range j.changesets {
		for _, m := range cs.Movements {
			if m.Kind == MovementRelease && m.To == string(PartyPawner) {
				total = total.Add(m.Amount)
			}
		}
	}
	return total
}

func (j *recordingJournal) events(typ EventType) []Event {
	var out []Event
	for _, cs := range j.changesets {
		for _, e := range cs.Events {
			if e.Type == typ {
				out = append(out, e)
			}
		}
	}
	return out
}

type fixture struct {
	reg     *Registry
	clock   *testClock
	journal *recordingJournal
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{clock: newTestClock(), journal: &recordingJournal{}}
	opts = append([]Option{WithClock(f.clock.Now), WithJournal(f.journal)}, opts...)
	f.reg = NewRegistry(opts...)
	_, err := f.reg.FundPool(context.Background(), "owner", units(15))
	require.NoError(t, err)
	return f
}

func (f *fixture) create(t *testing.T) uint64 {
	t.Helper()
	id, err := f.reg.CreateOrder(context.Background(), CreateOrderParams{
		Price:       units(1),
		ItemName:    "car",
		Description: "its a car",
		Grade:       GradeSilver,
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) accept(t *testing.T, id uint64) string {
	t.Helper()
	require.NoError(t, f.reg.AcceptOrder(context.Background(), id))
	addr, err := f.reg.GetSubContractAddress(id)
	require.NoError(t, err)
	return addr
}

func (f *fixture) stake(t *testing.T) (uint64, string) {
	t.Helper()
	id := f.create(t)
	addr := f.accept(t, id)
	_, err := f.reg.Deposit(context.Background(), addr, "pawner", units(1))
	require.NoError(t, err)
	return id, addr
}

func assertKind(t *testing.T, err error, kind errorbank.Kind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, errorbank.From(err).Kind(), err.Error())
}

func TestCreateOrderStartsPending(t *testing.T) {
	f := newFixture(t)

	id := f.create(t)
	order, err := f.reg.GetOrder(id)

	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)
	assert.Equal(t, StatusPending, order.Status)
	assert.Zero(t, order.StartDate)
	assert.Equal(t, units(1), order.Price)
	assert.Equal(t, "car", order.ItemName)
	assert.False(t, order.PawnerShippingHash.IsSet())
	assert.False(t, order.OwnerShippingHash.IsSet())

	addr, err := f.reg.GetSubContractAddress(id)
	require.NoError(t, err)
	assert.Empty(t, addr)
}

func TestCreateOrderRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.reg.CreateOrder(ctx, CreateOrderParams{Price: Amount{}, Grade: GradeGold})
	assertKind(t, err, errorbank.KindInvalidInput)

	_, err = f.reg.CreateOrder(ctx, CreateOrderParams{Price: units(1), Grade: "BRONZE"})
	assertKind(t, err, errorbank.KindInvalidInput)

	assert.Zero(t, f.reg.Len())
}

func TestAcceptOrderFundsOwnerStake(t *testing.T) {
	f := newFixture(t)
	id := f.create(t)

	addr := f.accept(t, id)

	vars, err := f.reg.GetSubContractVars(id)
	require.NoError(t, err)
	assert.Equal(t, units(1), vars.Price)
	assert.Equal(t, units(1), vars.PawnerStake)
	assert.Equal(t, units(2), vars.OwnerStake)
	assert.Equal(t, uint64(15), vars.InterestPercent)
	assert.Equal(t, uint64(604800), vars.LoanLength)
	assert.Zero(t, vars.StartDate)
	assert.Zero(t, vars.ExpireDate)

	assert.Equal(t, units(13), f.reg.PoolBalance())
	balance, err := f.reg.EscrowBalance(id)
	require.NoError(t, err)
	assert.Equal(t, units(2), balance)
	assert.NotEmpty(t, addr)

	order, err := f.reg.GetOrder(id)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, order.Status)
}

func TestAcceptOrderTwiceFails(t *testing.T) {
	f := newFixture(t)
	id := f.create(t)
	f.accept(t, id)

	err := f.reg.AcceptOrder(context.Background(), id)

	assertKind(t, err, errorbank.KindInvalidState)
	assert.Equal(t, units(13), f.reg.PoolBalance())
}

func TestAcceptOrderWithThinPoolLeavesNothingBehind(t *testing.T) {
	clock := newTestClock()
	reg := NewRegistry(WithClock(clock.Now))
	ctx := context.Background()
	_, err := reg.FundPool(ctx, "owner", units(1))
	require.NoError(t, err)
	id, err := reg.CreateOrder(ctx, CreateOrderParams{Price: units(1), Grade: GradeGold})
	require.NoError(t, err)

	err = reg.AcceptOrder(ctx, id)

	assertKind(t, err, errorbank.KindInsufficientFunds)
	order, err := reg.GetOrder(id)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, order.Status)
	assert.Equal(t, units(1), reg.PoolBalance())
	addr, err := reg.GetSubContractAddress(id)
	require.NoError(t, err)
	assert.Empty(t, addr)
}

func TestUnknownOrderIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.reg.GetOrder(42)
	assertKind(t, err, errorbank.KindNotFound)
	assertKind(t, f.reg.AcceptOrder(ctx, 0), errorbank.KindNotFound)
	assertKind(t, f.reg.DeleteOrder(ctx, 9), errorbank.KindNotFound)
	_, err = f.reg.CheckRepayAmount(ctx, 3)
	assertKind(t, err, errorbank.KindNotFound)
}

func TestDepositReachingTargetStakes(t *testing.T) {
	f := newFixture(t)
	id := f.create(t)
	addr := f.accept(t, id)
	ctx := context.Background()

	escrow, err := f.reg.Deposit(ctx, addr, "pawner", wei(t, "400000000000000000"))
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, escrow.Status)

	escrow, err = f.reg.Deposit(ctx, addr, "pawner", wei(t, "600000000000000000"))
	require.NoError(t, err)
	assert.Equal(t, StatusStaked, escrow.Status)
	assert.Equal(t, units(3), escrow.Balance)
	assert.Equal(t, units(1), escrow.PawnerDeposited)

	order, err := f.reg.GetOrder(id)
	require.NoError(t, err)
	assert.Equal(t, StatusStaked, order.Status)
	assert.Len(t, f.journal.events(EventOrderStaked), 1)
}

func TestDepositRejections(t *testing.T) {
	f := newFixture(t)
	_, addr := f.stake(t)
	ctx := context.Background()

	_, err := f.reg.Deposit(ctx, addr, "pawner", units(1))
	assertKind(t, err, errorbank.KindInvalidState)

	_, err = f.reg.Deposit(ctx, addr, "pawner", Amount{})
	assertKind(t, err, errorbank.KindInvalidState)

	_, err = f.reg.Deposit(ctx, "not-an-address", "pawner", units(1))
	assertKind(t, err, errorbank.KindInvalidInput)

	unknown, err := AddressDeriver{Prefix: DefaultAddressPrefix}.Derive(99)
	require.NoError(t, err)
	_, err = f.reg.Deposit(ctx, unknown, "pawner", units(1))
	assertKind(t, err, errorbank.KindNotFound)
}

func TestZeroDepositIsInvalidInput(t *testing.T) {
	f := newFixture(t)
	id := f.create(t)
	addr := f.accept(t, id)

	_, err := f.reg.Deposit(context.Background(), addr, "pawner", Amount{})

	assertKind(t, err, errorbank.KindInvalidInput)
}

func TestHappyPathMatchesReferenceTrace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, addr := f.stake(t)

	balance, err := f.reg.EscrowBalance(id)
	require.NoError(t, err)
	assert.Equal(t, units(3), balance)

	require.NoError(t, f.reg.AssignPawnerShippingHash(ctx, id, big.NewInt(1234)))
	order, err := f.reg.GetOrder(id)
	require.NoError(t, err)
	assert.Equal(t, "0xea05319122ecf34a553669191848370ff785fe00ee6f01d3d9a8e4be7eee5249", order.PawnerShippingHash.String())

	require.NoError(t, f.reg.OwnerConfirmShipping(ctx, id))
	start := f.clock.Now().Unix()
	balance, err = f.reg.EscrowBalance(id)
	require.NoError(t, err)
	assert.Equal(t, units(2), balance)
	sub, err := f.reg.GetSubContractOrder(id)
	require.NoError(t, err)
	assert.Equal(t, start, sub.StartDate)
	assert.Equal(t, PhaseInProgress, sub.Phase())

	vars, err := f.reg.GetSubContractVars(id)
	require.NoError(t, err)
	assert.Equal(t, start+604800, vars.ExpireDate)

	f.clock.Advance(3 * time.Second)
	repay, err := f.reg.CheckRepayAmount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, wei(t, "1000000744047619047"), repay)
	assert.Len(t, f.journal.events(EventLoanRepayAmount), 1)

	escrow, err := f.reg.Deposit(ctx, addr, "pawner", repay)
	require.NoError(t, err)
	assert.Equal(t, StatusPayed, escrow.Status)
	assert.Equal(t, wei(t, "3000000744047619047"), escrow.Balance)

	require.NoError(t, f.reg.AssignOwnerShippingHash(ctx, id, big.NewInt(4321)))
	order, err = f.reg.GetOrder(id)
	require.NoError(t, err)
	assert.Equal(t, "0x626b1d519825bf661d804eedbb1a31b9ba072f6e77358478fd6e15e3423c38b9", order.OwnerShippingHash.String())

	require.NoError(t, f.reg.PawnerConfirmShipping(ctx, id))

	order, err = f.reg.GetSubContractOrder(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, order.Status)
	balance, err = f.reg.EscrowBalance(id)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
	assert.Equal(t, wei(t, "15000000744047619047"), f.reg.PoolBalance())
	assert.Equal(t, units(2), f.journal.payouts())

	repay, err = f.reg.CheckRepayAmount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, wei(t, "1000000744047619047"), repay)
}

func TestRepaymentMayArriveInParts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, addr := f.stake(t)
	require.NoError(t, f.reg.AssignPawnerShippingHash(ctx, id, big.NewInt(1)))
	require.NoError(t, f.reg.OwnerConfirmShipping(ctx, id))

	escrow, err := f.reg.Deposit(ctx, addr, "pawner", wei(t, "500000000000000000"))
	require.NoError(t, err)
	assert.Equal(t, StatusStaked, escrow.Status)

	f.clock.Advance(time.Hour)
	escrow, err = f.reg.Deposit(ctx, addr, "pawner", units(1))
	require.NoError(t, err)
	assert.Equal(t, StatusPayed, escrow.Status)
	assert.Equal(t, RequiredRepayment(escrow, f.clock.Now()), escrow.RepayAmount)

	f.clock.Advance(24 * time.Hour)
	frozen, err := f.reg.CheckRepayAmount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, escrow.RepayAmount, frozen)

	_, err = f.reg.Deposit(ctx, addr, "pawner", units(1))
	assertKind(t, err, errorbank.KindInvalidState)

	require.NoError(t, f.reg.AssignOwnerShippingHash(ctx, id, big.NewInt(2)))
	require.NoError(t, f.reg.PawnerConfirmShipping(ctx, id))

	overpaid, ok := escrow.Repaid.Sub(escrow.RepayAmount)
	require.True(t, ok)
	assert.Equal(t, units(1).Add(units(1)).Add(overpaid), f.journal.payouts())
	assert.Equal(t, units(15).Add(escrow.RepayAmount).SaturatingSub(units(1)), f.reg.PoolBalance())
}

func TestOwnerWithdrawStakeEarly(t *testing.T) {
	ctx := context.Background()

	t.Run("after stake", func(t *testing.T) {
		f := newFixture(t)
		id, _ := f.stake(t)

		require.NoError(t, f.reg.OwnerWithdrawStakeEarly(ctx, id))

		order, err := f.reg.GetSubContractOrder(id)
		require.NoError(t, err)
		assert.Equal(t, StatusExpired, order.Status)
		balance, err := f.reg.EscrowBalance(id)
		require.NoError(t, err)
		assert.True(t, balance.IsZero())
		assert.Equal(t, units(15), f.reg.PoolBalance())
		assert.Equal(t, units(1), f.journal.payouts())
	})

	t.Run("before stake", func(t *testing.T) {
		f := newFixture(t)
		id := f.create(t)
		f.accept(t, id)

		require.NoError(t, f.reg.OwnerWithdrawStakeEarly(ctx, id))

		assert.Equal(t, units(15), f.reg.PoolBalance())
		assert.True(t, f.journal.payouts().IsZero())
	})

	t.Run("locked once pawner shipped", func(t *testing.T) {
		f := newFixture(t)
		id, _ := f.stake(t)
		require.NoError(t, f.reg.AssignPawnerShippingHash(ctx, id, big.NewInt(1234)))

		err := f.reg.OwnerWithdrawStakeEarly(ctx, id)

		assertKind(t, err, errorbank.KindInvalidState)
		assert.Equal(t, msgStakesLocked, errorbank.From(err).Message())
		order, err := f.reg.GetOrder(id)
		require.NoError(t, err)
		assert.Equal(t, StatusStaked, order.Status)
		balance, err := f.reg.EscrowBalance(id)
		require.NoError(t, err)
		assert.Equal(t, units(3), balance)
	})

	t.Run("pending order", func(t *testing.T) {
		f := newFixture(t)
		id := f.create(t)

		assertKind(t, f.reg.OwnerWithdrawStakeEarly(ctx, id), errorbank.KindInvalidState)
	})
}

func TestForfeitSettlementDrainsToPool(t *testing.T) {
	f := newFixture(t, WithSettlement(ForfeitSettlement{}))
	id, _ := f.stake(t)

	require.NoError(t, f.reg.OwnerWithdrawStakeEarly(context.Background(), id))

	assert.Equal(t, units(16), f.reg.PoolBalance())
	assert.True(t, f.journal.payouts().IsZero())
}

func TestDeleteOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.create(t)
	addr := f.accept(t, id)

	err := f.reg.DeleteOrder(ctx, id)
	assertKind(t, err, errorbank.KindInvalidState)
	assert.Equal(t, msgNotStaked, errorbank.From(err).Message())

	_, err = f.reg.Deposit(ctx, addr, "pawner", units(1))
	require.NoError(t, err)
	require.NoError(t, f.reg.DeleteOrder(ctx, id))

	balance, err := f.reg.EscrowBalance(id)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
	assert.Equal(t, units(15), f.reg.PoolBalance())

	next := f.create(t)
	assert.Equal(t, uint64(2), next)
	old, err := f.reg.GetSubContractAddress(id)
	require.NoError(t, err)
	assert.Equal(t, addr, old)

	assertKind(t, f.reg.DeleteOrder(ctx, id), errorbank.KindInvalidState)
}

func TestDeleteDefaultedLoan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, _ := f.stake(t)
	require.NoError(t, f.reg.AssignPawnerShippingHash(ctx, id, big.NewInt(7)))
	require.NoError(t, f.reg.OwnerConfirmShipping(ctx, id))
	f.clock.Advance(8 * 24 * time.Hour)

	overdue := f.reg.Overdue(f.clock.Now())
	require.Len(t, overdue, 1)
	assert.Equal(t, id, overdue[0].OrderID)

	require.NoError(t, f.reg.DeleteOrder(ctx, id))

	// the owner keeps the collateral and recovers the un-lent stake
	assert.Equal(t, units(14), f.reg.PoolBalance())
	assert.Equal(t, units(2), f.journal.payouts())
	assert.Empty(t, f.reg.Overdue(f.clock.Now()))
}

func TestShippingHashesAreSetOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, addr := f.stake(t)

	require.NoError(t, f.reg.AssignPawnerShippingHash(ctx, id, big.NewInt(1234)))
	first, err := f.reg.GetOrder(id)
	require.NoError(t, err)

	err = f.reg.AssignPawnerShippingHash(ctx, id, big.NewInt(9999))
	assertKind(t, err, errorbank.KindInvalidState)
	second, err := f.reg.GetOrder(id)
	require.NoError(t, err)
	assert.Equal(t, first.PawnerShippingHash, second.PawnerShippingHash)

	require.NoError(t, f.reg.OwnerConfirmShipping(ctx, id))
	_, err = f.reg.Deposit(ctx, addr, "pawner", units(2))
	require.NoError(t, err)
	require.NoError(t, f.reg.AssignOwnerShippingHash(ctx, id, big.NewInt(4321)))
	err = f.reg.AssignOwnerShippingHash(ctx, id, big.NewInt(4321))
	assertKind(t, err, errorbank.KindInvalidState)
}

func TestCommitmentIsReproducibleAcrossOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, _ := f.stake(t)
	b, _ := f.stake(t)

	require.NoError(t, f.reg.AssignPawnerShippingHash(ctx, a, big.NewInt(1234)))
	require.NoError(t, f.reg.AssignPawnerShippingHash(ctx, b, big.NewInt(1234)))

	oa, err := f.reg.GetOrder(a)
	require.NoError(t, err)
	ob, err := f.reg.GetOrder(b)
	require.NoError(t, err)
	assert.Equal(t, oa.PawnerShippingHash, ob.PawnerShippingHash)

	ok, err := f.reg.VerifyShipment(a, PartyPawner, big.NewInt(1234))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.reg.VerifyShipment(a, PartyPawner, big.NewInt(1235))
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = f.reg.VerifyShipment(a, PartyOwner, big.NewInt(1234))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOutOfOrderOperationsAreRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	pending := f.create(t)
	staked, _ := f.stake(t)

	tests := []struct {
		name string
		call func() error
		kind errorbank.Kind
	}{
		{"pawner hash on pending", func() error { return f.reg.AssignPawnerShippingHash(ctx, pending, big.NewInt(1)) }, errorbank.KindInvalidState},
		{"owner confirm before ship", func() error { return f.reg.OwnerConfirmShipping(ctx, staked) }, errorbank.KindInvalidState},
		{"repay amount before clock", func() error { _, err := f.reg.CheckRepayAmount(ctx, staked); return err }, errorbank.KindInvalidState},
		{"owner hash before payment", func() error { return f.reg.AssignOwnerShippingHash(ctx, staked, big.NewInt(1)) }, errorbank.KindInvalidState},
		{"pawner confirm before payment", func() error { return f.reg.PawnerConfirmShipping(ctx, staked) }, errorbank.KindInvalidState},
		{"delete pending", func() error { return f.reg.DeleteOrder(ctx, pending) }, errorbank.KindInvalidState},
		{"negative tracking number", func() error { return f.reg.AssignPawnerShippingHash(ctx, staked, big.NewInt(-5)) }, errorbank.KindInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := f.reg.TotalCustody()
			assertKind(t, tt.call(), tt.kind)
			assert.Equal(t, before, f.reg.TotalCustody())
		})
	}

	_, err := f.reg.GetSubContractVars(pending)
	assertKind(t, err, errorbank.KindNotFound)
}

func TestOwnerConfirmShippingOnlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, _ := f.stake(t)
	require.NoError(t, f.reg.AssignPawnerShippingHash(ctx, id, big.NewInt(1)))
	require.NoError(t, f.reg.OwnerConfirmShipping(ctx, id))

	err := f.reg.OwnerConfirmShipping(ctx, id)

	assertKind(t, err, errorbank.KindInvalidState)
	balance, err := f.reg.EscrowBalance(id)
	require.NoError(t, err)
	assert.Equal(t, units(2), balance)
}

func TestPoolWithdrawal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pool, err := f.reg.WithdrawPool(ctx, "owner", units(5))
	require.NoError(t, err)
	assert.Equal(t, units(10), pool)

	_, err = f.reg.WithdrawPool(ctx, "owner", units(11))
	assertKind(t, err, errorbank.KindInsufficientFunds)
	assert.Equal(t, units(10), f.reg.PoolBalance())
}

func TestRestoreFromJournal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, addr := f.stake(t)
	f.create(t)

	orders := map[uint64]Order{}
	escrows := map[uint64]Escrow{}
	var pool Amount
	for _, cs := range f.journal.changesets {
		for _, o := range cs.Orders {
			orders[o.ID] = o
		}
		for _, e := range cs.Escrows {
			escrows[e.OrderID] = e
		}
		pool = cs.Pool
	}
	orderList := []Order{orders[1], orders[2]}
	escrowList := []Escrow{escrows[1]}

	restored := NewRegistry(WithClock(f.clock.Now))
	require.NoError(t, restored.Restore(f.reg.Version(), pool, orderList, escrowList))

	assert.Equal(t, f.reg.GetAllOrders(), restored.GetAllOrders())
	assert.Equal(t, f.reg.PoolBalance(), restored.PoolBalance())
	require.NoError(t, restored.AssignPawnerShippingHash(ctx, id, big.NewInt(1)))
	_, err := restored.Deposit(ctx, addr, "pawner", units(1))
	assertKind(t, err, errorbank.KindInvalidState)

	next, err := restored.CreateOrder(ctx, CreateOrderParams{Price: units(1), Grade: GradeGold})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), next)

	assert.Error(t, NewRegistry().Restore(0, Amount{}, []Order{{ID: 2}}, nil))
	assert.Error(t, NewRegistry().Restore(0, Amount{}, []Order{{ID: 1}}, []Escrow{{OrderID: 5}}))
}

func TestGetAllOrdersKeepsIDOrder(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 4; i++ {
		f.create(t)
	}
	require.NoError(t, f.reg.AcceptOrder(context.Background(), 3))

	orders := f.reg.GetAllOrders()

	require.Len(t, orders, 4)
	for i, o := range orders {
		assert.Equal(t, uint64(i+1), o.ID)
	}
	assert.Equal(t, StatusAccepted, orders[2].Status)
}

func TestChangesetsCarryJournalVersion(t *testing.T) {
	f := newFixture(t)
	f.stake(t)

	require.Len(t, f.journal.changesets, 4)
	for i, cs := range f.journal.changesets {
		assert.Equal(t, uint64(i), cs.Version)
	}
	assert.Equal(t, uint64(4), f.reg.Version())

	_, err := f.reg.GetOrder(1)
	require.NoError(t, err)
	_, err = f.reg.CheckRepayAmount(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, uint64(4), f.reg.Version())
}

func TestRestoredRegistryContinuesFromVersion(t *testing.T) {
	journal := &recordingJournal{}
	reg := NewRegistry(WithJournal(journal))
	require.NoError(t, reg.Restore(41, units(15), nil, nil))

	_, err := reg.FundPool(context.Background(), "owner", units(1))
	require.NoError(t, err)

	require.Len(t, journal.changesets, 1)
	assert.Equal(t, uint64(41), journal.changesets[0].Version)
	assert.Equal(t, uint64(42), reg.Version())
}

func TestApplyTransferJournalsTransferID(t *testing.T) {
	f := newFixture(t)
	id := f.create(t)
	addr := f.accept(t, id)

	escrow, err := f.reg.ApplyTransfer(context.Background(), Transfer{
		ID: " tx-77 ", Address: addr, From: "pawner", Amount: units(1),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusStaked, escrow.Status)

	last := f.journal.changesets[len(f.journal.changesets)-1]
	require.Len(t, last.Movements, 1)
	assert.Equal(t, MovementDeposit, last.Movements[0].Kind)
	assert.Equal(t, "tx-77", last.Movements[0].TransferID)

	accept := f.journal.changesets[len(f.journal.changesets)-2]
	require.Len(t, accept.Movements, 1)
	assert.Empty(t, accept.Movements[0].TransferID)
}
