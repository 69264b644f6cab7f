// Package contract implements the pooled-wager lottery state machine.
//
// A Lottery is Idle while its participant list is empty and Open otherwise.
// Every operation either applies all of its effects or none of them; the
// host that owns the instance serializes calls, so the type holds no lock.
package contract

import (
	"errors"
	"fmt"
	"math/big"

	"poolwager/internal/entropy"
	"poolwager/internal/models"
)

var (
	ErrInsufficientStake = errors.New("insufficient stake")
	ErrUnauthorized      = errors.New("caller is not the manager")
	ErrNoParticipants    = errors.New("no participants")
	ErrTransferFailure   = errors.New("transfer to winner failed")
	ErrNoSeed            = errors.New("entropy source returned no seed")
)

// DefaultMinimumStake is 0.01 ether.
var DefaultMinimumStake = models.MustParseEther("0.01")

// Ledger moves the pooled balance out of the contract.
type Ledger interface {
	Transfer(from, to models.Address, amount *big.Int) error
}

// Option configures a Lottery.
type Option func(*Lottery)

// WithMinimumStake overrides DefaultMinimumStake.
func WithMinimumStake(min *big.Int) Option {
	return func(l *Lottery) {
		l.minimumStake = new(big.Int).Set(min)
	}
}

// WithEntropy overrides the default BlockHash seed source.
func WithEntropy(src entropy.Source) Option {
	return func(l *Lottery) {
		l.entropy = src
	}
}

// Lottery holds the state of one deployed instance.
type Lottery struct {
	address      models.Address
	manager      models.Address
	players      []models.Address
	balance      *big.Int
	minimumStake *big.Int
	ledger       Ledger
	entropy      entropy.Source
}

// New constructs an Idle lottery at address, managed by manager.
func New(address, manager models.Address, ledger Ledger, opts ...Option) *Lottery {
	l := &Lottery{
		address:      address,
		manager:      manager,
		players:      make([]models.Address, 0),
		balance:      new(big.Int),
		minimumStake: new(big.Int).Set(DefaultMinimumStake),
		ledger:       ledger,
		entropy:      entropy.BlockHash{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Address returns the contract's own identity on the ledger.
func (l *Lottery) Address() models.Address {
	return l.address
}

// Manager returns the identity that deployed the lottery.
func (l *Lottery) Manager() models.Address {
	return l.manager
}

// MinimumStake returns the smallest accepted stake.
func (l *Lottery) MinimumStake() *big.Int {
	return new(big.Int).Set(l.minimumStake)
}

// Players returns the participants in entry order.
func (l *Lottery) Players() []models.Address {
	out := make([]models.Address, len(l.players))
	copy(out, l.players)
	return out
}

// Balance returns the pooled balance.
func (l *Lottery) Balance() *big.Int {
	return new(big.Int).Set(l.balance)
}

// Enter records call.Caller as a participant. The stake itself has already
// been moved to the contract address by the host.
func (l *Lottery) Enter(call models.Call) error {
	stake := call.Value
	if stake == nil {
		stake = new(big.Int)
	}
	if stake.Cmp(l.minimumStake) < 0 {
		return fmt.Errorf("%w: got %s ether, minimum is %s ether",
			ErrInsufficientStake, models.FormatEther(stake), models.FormatEther(l.minimumStake))
	}

	l.players = append(l.players, call.Caller)
	l.balance = new(big.Int).Add(l.balance, stake)
	return nil
}

// PickWinner pays the whole pool to a pseudo-randomly selected participant
// and resets the participant list. Only the manager may call it.
func (l *Lottery) PickWinner(call models.Call) (*models.WinnerResult, error) {
	if call.Caller != l.manager {
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, call.Caller)
	}
	if len(l.players) == 0 {
		return nil, ErrNoParticipants
	}

	seed, err := l.entropy.Seed(call.Block, l.Players())
	if err != nil {
		return nil, fmt.Errorf("draw seed: %w", err)
	}
	if seed == nil {
		return nil, ErrNoSeed
	}
	index := int(new(big.Int).Mod(seed, big.NewInt(int64(len(l.players)))).Int64())
	winner := l.players[index]
	amount := new(big.Int).Set(l.balance)

	if err := l.ledger.Transfer(l.address, winner, amount); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransferFailure, err)
	}

	l.players = make([]models.Address, 0)
	l.balance = new(big.Int)

	return &models.WinnerResult{Winner: winner, Index: index, Amount: amount}, nil
}

// Snapshot captures the mutable state for Restore.
type Snapshot struct {
	players []models.Address
	balance *big.Int
}

// Snapshot returns a copy of the participant list and pooled balance.
func (l *Lottery) Snapshot() Snapshot {
	return Snapshot{players: l.Players(), balance: l.Balance()}
}

// Restore undoes every change made since s was taken. The host uses it when
// a step after a successful operation fails within the same transaction.
func (l *Lottery) Restore(s Snapshot) {
	l.players = append(make([]models.Address, 0, len(s.players)), s.players...)
	l.balance = new(big.Int).Set(s.balance)
}
