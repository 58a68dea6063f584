package pawn

import (
	"context"
	"math/big"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Random operation sequences must never create or destroy value and never
// move an order backwards through its lifecycle.
func TestRandomSequencesConserveValue(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		seed := seed
		t.Run("", func(t *testing.T) {
			runRandomSequence(t, seed)
		})
	}
}

func runRandomSequence(t *testing.T, seed int64) {
	rnd := rand.New(rand.NewSource(seed))
	ctx := context.Background()
	f := newFixture(t)
	rank := map[uint64]int{}

	for step := 0; step < 200; step++ {
		n := uint64(f.reg.Len())
		id := uint64(1)
		if n > 0 {
			id = uint64(rnd.Int63n(int64(n))) + 1
		}
		addr, _ := f.reg.GetSubContractAddress(id)
		small := NewAmount(uint64(rnd.Int63n(3)+1) * weiPerUnit / 2)

		switch rnd.Intn(13) {
		case 0, 1:
			_, _ = f.reg.CreateOrder(ctx, CreateOrderParams{Price: NewAmount(uint64(rnd.Int63n(2)+1) * weiPerUnit), Grade: GradePlatinum})
		case 2, 3:
			_ = f.reg.AcceptOrder(ctx, id)
		case 4, 5:
			if addr != "" {
				_, _ = f.reg.Deposit(ctx, addr, "pawner", small)
			}
		case 6:
			_ = f.reg.AssignPawnerShippingHash(ctx, id, big.NewInt(rnd.Int63()))
		case 7:
			_ = f.reg.OwnerConfirmShipping(ctx, id)
		case 8:
			_, _ = f.reg.CheckRepayAmount(ctx, id)
		case 9:
			_ = f.reg.AssignOwnerShippingHash(ctx, id, big.NewInt(rnd.Int63()))
		case 10:
			_ = f.reg.PawnerConfirmShipping(ctx, id)
		case 11:
			_ = f.reg.OwnerWithdrawStakeEarly(ctx, id)
		case 12:
			if rnd.Intn(2) == 0 {
				_ = f.reg.DeleteOrder(ctx, id)
			} else {
				_, _ = f.reg.FundPool(ctx, "owner", small)
			}
		}
		f.clock.Advance(time.Duration(rnd.Int63n(3600)) * time.Second)

		in, out := Amount{}, Amount{}
		for _, cs := range f.journal.changesets {
			for _, m := range cs.Movements {
				switch m.external() {
				case 1:
					in = in.Add(m.Amount)
				case -1:
					out = out.Add(m.Amount)
				}
			}
		}
		expected, ok := in.Sub(out)
		require.True(t, ok, "seed %d step %d: outflow exceeds inflow", seed, step)
		require.True(t, expected.Equal(f.reg.TotalCustody()), "seed %d step %d: custody %s, want %s", seed, step, f.reg.TotalCustody(), expected)

		for _, o := range f.reg.GetAllOrders() {
			r := statusRank[o.Status]
			assert.GreaterOrEqual(t, r, rank[o.ID], "order %d regressed to %s", o.ID, o.Status)
			rank[o.ID] = r
		}
	}
}
