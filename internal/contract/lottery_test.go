package contract

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poolwager/internal/entropy"
	"poolwager/internal/ledger"
	"poolwager/internal/models"
)

var (
	self    = models.MustParseAddress("0x00000000000000000000000000000000000000c0")
	manager = models.MustParseAddress("0x00000000000000000000000000000000000000a0")
	alice   = models.MustParseAddress("0x00000000000000000000000000000000000000a1")
	bob     = models.MustParseAddress("0x00000000000000000000000000000000000000b2")
	carol   = models.MustParseAddress("0x00000000000000000000000000000000000000c3")
)

func call(caller models.Address, ether string) models.Call {
	c := models.Call{
		Caller: caller,
		Block:  models.BlockContext{Number: 1, Timestamp: time.Unix(1700000000, 0)},
	}
	if ether != "" {
		c.Value = models.MustParseEther(ether)
	}
	return c
}

// deposit mirrors what the host does before Enter: the stake lands on the
// contract address first.
func enter(t *testing.T, l *Lottery, lg *ledger.Ledger, caller models.Address, ether string) {
	t.Helper()
	c := call(caller, ether)
	require.NoError(t, lg.Credit(self, c.Value))
	require.NoError(t, l.Enter(c))
}

func TestNew(t *testing.T) {
	l := New(self, manager, ledger.New())
	assert.Equal(t, manager, l.Manager())
	assert.Equal(t, self, l.Address())
	assert.Empty(t, l.Players())
	assert.Equal(t, 0, l.Balance().Sign())
	assert.Equal(t, 0, l.MinimumStake().Cmp(DefaultMinimumStake))
}

func TestEnter(t *testing.T) {
	t.Run("allows one account to enter", func(t *testing.T) {
		l := New(self, manager, ledger.New())
		require.NoError(t, l.Enter(call(alice, "0.02")))
		assert.Equal(t, []models.Address{alice}, l.Players())
		assert.Equal(t, "0.02", models.FormatEther(l.Balance()))
	})

	t.Run("keeps entry order across accounts", func(t *testing.T) {
		l := New(self, manager, ledger.New())
		for _, p := range []models.Address{alice, bob, carol, manager} {
			require.NoError(t, l.Enter(call(p, "0.02")))
		}
		assert.Equal(t, []models.Address{alice, bob, carol, manager}, l.Players())
		assert.Equal(t, "0.08", models.FormatEther(l.Balance()))
	})

	t.Run("allows duplicate entries", func(t *testing.T) {
		l := New(self, manager, ledger.New())
		require.NoError(t, l.Enter(call(alice, "0.01")))
		require.NoError(t, l.Enter(call(alice, "0.05")))
		assert.Equal(t, []models.Address{alice, alice}, l.Players())
		assert.Equal(t, "0.06", models.FormatEther(l.Balance()))
	})

	t.Run("accepts exactly the minimum", func(t *testing.T) {
		l := New(self, manager, ledger.New())
		require.NoError(t, l.Enter(call(alice, "0.01")))
	})

	for _, stake := range []string{"0.001", "0.009999999999999999", "0", ""} {
		t.Run("rejects stake "+stake, func(t *testing.T) {
			l := New(self, manager, ledger.New())
			require.NoError(t, l.Enter(call(bob, "0.02")))

			err := l.Enter(call(alice, stake))
			assert.ErrorIs(t, err, ErrInsufficientStake)
			assert.Equal(t, []models.Address{bob}, l.Players())
			assert.Equal(t, "0.02", models.FormatEther(l.Balance()))
		})
	}

	t.Run("honours a configured minimum", func(t *testing.T) {
		l := New(self, manager, ledger.New(), WithMinimumStake(models.MustParseEther("1")))
		assert.ErrorIs(t, l.Enter(call(alice, "0.5")), ErrInsufficientStake)
		require.NoError(t, l.Enter(call(alice, "1")))
	})
}

func TestPickWinner(t *testing.T) {
	t.Run("pays the pool and resets", func(t *testing.T) {
		lg := ledger.New()
		l := New(self, manager, lg, WithEntropy(entropy.Fixed(3)))
		enter(t, l, lg, alice, "0.02")
		enter(t, l, lg, bob, "0.02")

		res, err := l.PickWinner(call(manager, ""))
		require.NoError(t, err)

		// 3 mod 2 == 1
		assert.Equal(t, 1, res.Index)
		assert.Equal(t, bob, res.Winner)
		assert.Equal(t, "0.04", models.FormatEther(res.Amount))
		assert.Equal(t, "0.04", models.FormatEther(lg.BalanceOf(bob)))
		assert.Equal(t, 0, lg.BalanceOf(self).Sign())
		assert.Empty(t, l.Players())
		assert.Equal(t, 0, l.Balance().Sign())
	})

	t.Run("winner is reproducible from block inputs", func(t *testing.T) {
		pick := func() models.Address {
			lg := ledger.New()
			l := New(self, manager, lg)
			enter(t, l, lg, alice, "0.02")
			enter(t, l, lg, bob, "0.02")
			enter(t, l, lg, carol, "0.02")
			res, err := l.PickWinner(call(manager, ""))
			require.NoError(t, err)
			return res.Winner
		}
		assert.Equal(t, pick(), pick())
	})

	t.Run("rejects non-manager", func(t *testing.T) {
		lg := ledger.New()
		l := New(self, manager, lg)
		enter(t, l, lg, alice, "0.02")

		_, err := l.PickWinner(call(alice, ""))
		assert.ErrorIs(t, err, ErrUnauthorized)
		assert.Equal(t, []models.Address{alice}, l.Players())
		assert.Equal(t, "0.02", models.FormatEther(l.Balance()))
		assert.Equal(t, "0.02", models.FormatEther(lg.BalanceOf(self)))
	})

	t.Run("rejects empty list", func(t *testing.T) {
		l := New(self, manager, ledger.New())
		_, err := l.PickWinner(call(manager, ""))
		assert.ErrorIs(t, err, ErrNoParticipants)
	})

	t.Run("unauthorized takes precedence over empty list", func(t *testing.T) {
		l := New(self, manager, ledger.New())
		_, err := l.PickWinner(call(alice, ""))
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("transfer failure changes nothing", func(t *testing.T) {
		lg := ledger.New()
		l := New(self, manager, lg, WithEntropy(entropy.Fixed(0)))
		enter(t, l, lg, alice, "0.02")
		enter(t, l, lg, bob, "0.03")
		lg.Reject(alice, true)

		_, err := l.PickWinner(call(manager, ""))
		assert.ErrorIs(t, err, ErrTransferFailure)
		assert.ErrorIs(t, err, ledger.ErrRecipientRejected)
		assert.Equal(t, []models.Address{alice, bob}, l.Players())
		assert.Equal(t, "0.05", models.FormatEther(l.Balance()))
		assert.Equal(t, "0.05", models.FormatEther(lg.BalanceOf(self)))
	})

	t.Run("entropy failure changes nothing", func(t *testing.T) {
		lg := ledger.New()
		broken := entropy.SourceFunc(func(models.BlockContext, []models.Address) (*big.Int, error) {
			return nil, assert.AnError
		})
		l := New(self, manager, lg, WithEntropy(broken))
		enter(t, l, lg, alice, "0.02")

		_, err := l.PickWinner(call(manager, ""))
		assert.ErrorIs(t, err, assert.AnError)
		assert.Equal(t, []models.Address{alice}, l.Players())
	})

	t.Run("missing seed changes nothing", func(t *testing.T) {
		lg := ledger.New()
		empty := entropy.SourceFunc(func(models.BlockContext, []models.Address) (*big.Int, error) {
			return nil, nil
		})
		l := New(self, manager, lg, WithEntropy(empty))
		enter(t, l, lg, alice, "0.02")

		var err error
		assert.NotPanics(t, func() { _, err = l.PickWinner(call(manager, "")) })
		assert.ErrorIs(t, err, ErrNoSeed)
		assert.Equal(t, []models.Address{alice}, l.Players())
		assert.Equal(t, "0.02", models.FormatEther(l.Balance()))
		assert.Equal(t, "0.02", models.FormatEther(lg.BalanceOf(self)))
	})

	t.Run("supports repeated rounds", func(t *testing.T) {
		lg := ledger.New()
		l := New(self, manager, lg, WithEntropy(entropy.Fixed(0)))
		for round := 0; round < 3; round++ {
			enter(t, l, lg, carol, "0.02")
			res, err := l.PickWinner(call(manager, ""))
			require.NoError(t, err)
			assert.Equal(t, carol, res.Winner)
		}
		assert.Equal(t, "0.06", models.FormatEther(lg.BalanceOf(carol)))
	})
}

func TestSnapshotRestore(t *testing.T) {
	l := New(self, manager, ledger.New())
	require.NoError(t, l.Enter(call(alice, "0.02")))
	snap := l.Snapshot()

	require.NoError(t, l.Enter(call(bob, "0.02")))
	l.Restore(snap)

	assert.Equal(t, []models.Address{alice}, l.Players())
	assert.Equal(t, "0.02", models.FormatEther(l.Balance()))
}
