// Package host is an in-process execution environment for lottery
// contracts, in the spirit of a local development chain: it provisions
// funded accounts, deploys instances, mines one block per transaction and
// serializes every call. A call that fails leaves no trace on the contract
// or the ledger; only its receipt remains.
package host

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/google/logger"
	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"

	"poolwager/internal/contract"
	"poolwager/internal/entropy"
	"poolwager/internal/ledger"
	"poolwager/internal/models"
	"poolwager/internal/randutil"
)

// Method names as they appear on receipts.
const (
	MethodConstructor = "constructor"
	MethodEnter       = "enter"
	MethodPickWinner  = "pickWinner"
)

var (
	ErrUnknownContract = errors.New("unknown contract")
	ErrInvalidValue    = errors.New("invalid value")
	ErrInvalidCaller   = errors.New("invalid caller")
)

// Journal records receipts. A receipt is journaled before its transaction
// commits; a journal error aborts the transaction.
type Journal interface {
	WriteReceipt(ctx context.Context, r models.Receipt) error
}

type discardJournal struct{}

func (discardJournal) WriteReceipt(context.Context, models.Receipt) error { return nil }

// Option configures a Host.
type Option func(*Host)

// WithClock sets the clock used for block timestamps.
func WithClock(clock quartz.Clock) Option {
	return func(h *Host) { h.clock = clock }
}

// WithJournal sets where receipts are recorded.
func WithJournal(j Journal) Option {
	return func(h *Host) { h.journal = j }
}

// WithEntropy sets the seed source given to every deployed lottery.
func WithEntropy(src entropy.Source) Option {
	return func(h *Host) { h.entropy = src }
}

// WithMinimumStake sets the minimum stake of every deployed lottery.
func WithMinimumStake(min *big.Int) Option {
	return func(h *Host) { h.minimumStake = new(big.Int).Set(min) }
}

// Host owns the ledger and every deployed lottery.
type Host struct {
	mu           sync.Mutex
	clock        quartz.Clock
	ledger       *ledger.Ledger
	journal      Journal
	entropy      entropy.Source
	minimumStake *big.Int
	contracts    map[models.Address]*contract.Lottery
	nonces       map[models.Address]uint64
	block        models.BlockContext

	subsMu sync.Mutex
	subs   map[chan models.Receipt]struct{}
}

// New creates a host with an empty ledger at block zero.
func New(opts ...Option) *Host {
	h := &Host{
		clock:        quartz.NewReal(),
		ledger:       ledger.New(),
		journal:      discardJournal{},
		entropy:      entropy.BlockHash{},
		minimumStake: new(big.Int).Set(contract.DefaultMinimumStake),
		contracts:    make(map[models.Address]*contract.Lottery),
		nonces:       make(map[models.Address]uint64),
		subs:         make(map[chan models.Receipt]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.block.Timestamp = h.clock.Now().UTC().Truncate(time.Second)
	return h
}

// MinimumStake returns the minimum stake new lotteries are deployed with.
func (h *Host) MinimumStake() *big.Int {
	return new(big.Int).Set(h.minimumStake)
}

// Provision creates n accounts derived from seed, each credited with funding.
// The same seed always yields the same addresses.
func (h *Host) Provision(n int, funding *big.Int, seed int64) ([]models.Address, error) {
	if funding.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative funding", ErrInvalidValue)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	rng := randutil.New(seed)
	accounts := make([]models.Address, 0, n)
	for len(accounts) < n {
		addr := models.BytesToAddress(randutil.Bytes(rng, models.AddressLength))
		if addr.IsZero() {
			continue
		}
		if err := h.ledger.Credit(addr, funding); err != nil {
			return nil, err
		}
		accounts = append(accounts, addr)
	}
	logger.Infof("Provisioned %d accounts with %s ether each", n, models.FormatEther(funding))
	return accounts, nil
}

// Reject marks addr as unable to receive funds.
func (h *Host) Reject(addr models.Address, reject bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ledger.Reject(addr, reject)
}

// BalanceOf returns the committed ledger balance of any address. It waits
// for an in-flight transaction to finish.
func (h *Host) BalanceOf(addr models.Address) *big.Int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ledger.BalanceOf(addr)
}

// Deploy creates a new lottery managed by from.
func (h *Host) Deploy(ctx context.Context, from models.Address) (models.Address, models.Receipt, error) {
	if from.IsZero() {
		return models.ZeroAddress, models.Receipt{}, ErrInvalidCaller
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	addr := contractAddress(from, h.nonces[from])
	h.nonces[from]++
	block := h.nextBlock()

	opts := []contract.Option{
		contract.WithMinimumStake(h.minimumStake),
		contract.WithEntropy(h.entropy),
	}
	lottery := contract.New(addr, from, h.ledger, opts...)

	receipt := h.newReceipt(addr, from, MethodConstructor, nil, block)
	receipt.Status = models.StatusSuccess
	receipt.Events = []models.Event{{Name: models.EventDeployed, Player: from}}

	if err := h.journal.WriteReceipt(ctx, receipt); err != nil {
		h.nonces[from]--
		return models.ZeroAddress, receipt, fmt.Errorf("journal receipt: %w", err)
	}
	h.contracts[addr] = lottery
	h.publish(receipt)

	logger.Infof("Deployed lottery %s managed by %s", addr, from)
	return addr, receipt, nil
}

// Enter submits a stake of value from from into the lottery at addr.
func (h *Host) Enter(ctx context.Context, addr, from models.Address, value *big.Int) (models.Receipt, error) {
	if value == nil || value.Sign() < 0 {
		return models.Receipt{}, fmt.Errorf("%w: stake must be non-negative", ErrInvalidValue)
	}
	return h.transact(ctx, addr, from, MethodEnter, value, func(l *contract.Lottery, call models.Call) ([]models.Event, error) {
		if err := l.Enter(call); err != nil {
			return nil, err
		}
		return []models.Event{{Name: models.EventEntered, Player: call.Caller, Amount: call.Value}}, nil
	})
}

// PickWinner asks the lottery at addr to pay out, on behalf of from.
func (h *Host) PickWinner(ctx context.Context, addr, from models.Address) (models.Receipt, *models.WinnerResult, error) {
	var result *models.WinnerResult
	receipt, err := h.transact(ctx, addr, from, MethodPickWinner, new(big.Int), func(l *contract.Lottery, call models.Call) ([]models.Event, error) {
		res, err := l.PickWinner(call)
		if err != nil {
			return nil, err
		}
		result = res
		return []models.Event{{Name: models.EventWinnerPicked, Player: res.Winner, Amount: res.Amount, Index: res.Index}}, nil
	})
	if err != nil {
		return receipt, nil, err
	}
	logger.Infof("Lottery %s paid %s ether to %s", addr, models.FormatEther(result.Amount), result.Winner)
	return receipt, result, nil
}

// Players returns the participants of the lottery at addr.
func (h *Host) Players(addr models.Address) ([]models.Address, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.contracts[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownContract, addr)
	}
	return l.Players(), nil
}

// Manager returns the manager of the lottery at addr.
func (h *Host) Manager(addr models.Address) (models.Address, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.contracts[addr]
	if !ok {
		return models.ZeroAddress, fmt.Errorf("%w: %s", ErrUnknownContract, addr)
	}
	return l.Manager(), nil
}

// ContractBalance returns the pooled balance of the lottery at addr.
func (h *Host) ContractBalance(addr models.Address) (*big.Int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.contracts[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownContract, addr)
	}
	return l.Balance(), nil
}

type operation func(l *contract.Lottery, call models.Call) ([]models.Event, error)

// transact runs op inside a ledger transaction. The stake is moved to the
// contract before op runs; any failure rolls the ledger back and restores
// the contract, so the caller's funds come back untouched.
func (h *Host) transact(ctx context.Context, addr, from models.Address, method string, value *big.Int, op operation) (models.Receipt, error) {
	if from.IsZero() {
		return models.Receipt{}, ErrInvalidCaller
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	lottery, ok := h.contracts[addr]
	if !ok {
		return models.Receipt{}, fmt.Errorf("%w: %s", ErrUnknownContract, addr)
	}

	tx, err := h.ledger.Begin()
	if err != nil {
		return models.Receipt{}, err
	}
	block := h.nextBlock()
	receipt := h.newReceipt(addr, from, method, value, block)
	snapshot := lottery.Snapshot()

	events, opErr := func() ([]models.Event, error) {
		if err := h.ledger.Transfer(from, addr, value); err != nil {
			return nil, err
		}
		return op(lottery, models.Call{Caller: from, Value: new(big.Int).Set(value), Block: block})
	}()

	if opErr != nil {
		lottery.Restore(snapshot)
		if err := tx.Rollback(); err != nil {
			return receipt, errors.Join(opErr, err)
		}
		receipt.Status = models.StatusReverted
		receipt.Reason = opErr.Error()
		logger.Warningf("Reverted %s on %s from %s: %v", method, addr, from, opErr)

		if err := h.journal.WriteReceipt(ctx, receipt); err != nil {
			return receipt, errors.Join(opErr, fmt.Errorf("journal receipt: %w", err))
		}
		h.publish(receipt)
		return receipt, opErr
	}

	receipt.Status = models.StatusSuccess
	receipt.Events = events
	if err := h.journal.WriteReceipt(ctx, receipt); err != nil {
		lottery.Restore(snapshot)
		if rbErr := tx.Rollback(); rbErr != nil {
			return receipt, errors.Join(err, rbErr)
		}
		return receipt, fmt.Errorf("journal receipt: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return receipt, err
	}
	h.publish(receipt)
	return receipt, nil
}

// nextBlock mines a block for the next transaction. Must hold mu.
func (h *Host) nextBlock() models.BlockContext {
	prev := h.block
	next := models.BlockContext{Number: prev.Number + 1}

	next.Timestamp = h.clock.Now().UTC().Truncate(time.Second)
	if next.Timestamp.Before(prev.Timestamp) {
		next.Timestamp = prev.Timestamp
	}

	hash := sha3.NewLegacyKeccak256()
	hash.Write(prev.PrevRandao[:])
	var num [8]byte
	binary.BigEndian.PutUint64(num[:], next.Number)
	hash.Write(num[:])
	copy(next.PrevRandao[:], hash.Sum(nil))

	h.block = next
	return next
}

func (h *Host) newReceipt(addr, from models.Address, method string, value *big.Int, block models.BlockContext) models.Receipt {
	if value == nil {
		value = new(big.Int)
	}
	return models.Receipt{
		TxID:        uuid.NewString(),
		Contract:    addr,
		From:        from,
		Method:      method,
		Value:       new(big.Int).Set(value),
		BlockNumber: block.Number,
		Timestamp:   block.Timestamp,
	}
}

// contractAddress is keccak256(deployer ++ nonce)[12:].
func contractAddress(from models.Address, nonce uint64) models.Address {
	h := sha3.NewLegacyKeccak256()
	h.Write(from[:])
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], nonce)
	h.Write(n[:])
	return models.BytesToAddress(h.Sum(nil))
}
