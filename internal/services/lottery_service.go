package services

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/google/logger"

	"poolwager/internal/abi"
	"poolwager/internal/host"
	"poolwager/internal/models"
)

// ErrInvalidRequest is returned for malformed service calls.
var ErrInvalidRequest = errors.New("invalid request")

// ReceiptStore is the read and maintenance side of the receipt journal.
type ReceiptStore interface {
	ListReceipts(ctx context.Context, contract models.Address) ([]models.Receipt, error)
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Deployment tracks one lottery deployed through the service.
type Deployment struct {
	Address      models.Address `json:"address"`
	Manager      models.Address `json:"manager"`
	DeployedAt   time.Time      `json:"deployedAt"`
	LastActivity time.Time      `json:"lastActivity"`
	Entries      int            `json:"entries"`
	Rounds       int            `json:"rounds"`
}

// Option configures a LotteryService.
type Option func(*LotteryService)

// WithReceiptStore enables receipt listing and pruning.
func WithReceiptStore(rs ReceiptStore) Option {
	return func(s *LotteryService) { s.receipts = rs }
}

// WithClock sets the clock for activity stamps and the janitor.
func WithClock(clock quartz.Clock) Option {
	return func(s *LotteryService) { s.clock = clock }
}

// WithRetention sets how long receipts are kept.
func WithRetention(d time.Duration) Option {
	return func(s *LotteryService) { s.retention = d }
}

// WithAccountSeed sets the first seed used to derive provisioned accounts.
func WithAccountSeed(seed int64) Option {
	return func(s *LotteryService) { s.nextSeed = seed }
}

// LotteryService is the entry point the transport layer talks to.
type LotteryService struct {
	host      *host.Host
	receipts  ReceiptStore
	clock     quartz.Clock
	retention time.Duration

	mu          sync.RWMutex
	deployments map[models.Address]*Deployment // Key: contract address
	nextSeed    int64
}

// NewLotteryService creates and initializes a new LotteryService.
func NewLotteryService(h *host.Host, opts ...Option) *LotteryService {
	s := &LotteryService{
		host:        h,
		clock:       quartz.NewReal(),
		retention:   24 * time.Hour,
		deployments: make(map[models.Address]*Deployment),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ABI returns the contract's interface description.
func (s *LotteryService) ABI() abi.Artifact {
	return abi.Describe()
}

// MinimumStake returns the stake threshold of new deployments.
func (s *LotteryService) MinimumStake() *big.Int {
	return s.host.MinimumStake()
}

// ProvisionAccounts creates count funded accounts. Each call derives its
// accounts from a fresh seed.
func (s *LotteryService) ProvisionAccounts(count int, funding *big.Int) ([]models.Address, error) {
	if count < 1 || count > 100 {
		return nil, ErrInvalidRequest
	}
	s.mu.Lock()
	seed := s.nextSeed
	s.nextSeed++
	s.mu.Unlock()
	return s.host.Provision(count, funding, seed)
}

// AccountBalance returns the ledger balance of any address.
func (s *LotteryService) AccountBalance(addr models.Address) *big.Int {
	return s.host.BalanceOf(addr)
}

// Deploy creates a lottery managed by from.
func (s *LotteryService) Deploy(ctx context.Context, from models.Address) (*Deployment, error) {
	addr, _, err := s.host.Deploy(ctx, from)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	d := &Deployment{Address: addr, Manager: from, DeployedAt: now, LastActivity: now}

	s.mu.Lock()
	s.deployments[addr] = d
	s.mu.Unlock()

	copied := *d
	return &copied, nil
}

// Deployments lists every deployment, newest first.
func (s *LotteryService) Deployments() []Deployment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Deployment, 0, len(s.deployments))
	for _, d := range s.deployments {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DeployedAt.Equal(out[j].DeployedAt) {
			return out[i].Address.String() < out[j].Address.String()
		}
		return out[i].DeployedAt.After(out[j].DeployedAt)
	})
	return out
}

// Enter submits a stake into the lottery at addr.
func (s *LotteryService) Enter(ctx context.Context, addr, from models.Address, value *big.Int) (models.Receipt, error) {
	receipt, err := s.host.Enter(ctx, addr, from, value)
	if err == nil {
		s.touch(addr, func(d *Deployment) { d.Entries++ })
	}
	return receipt, err
}

// GetPlayers returns the participants of the lottery at addr.
func (s *LotteryService) GetPlayers(addr models.Address) ([]models.Address, error) {
	return s.host.Players(addr)
}

// Manager returns the manager of the lottery at addr.
func (s *LotteryService) Manager(addr models.Address) (models.Address, error) {
	return s.host.Manager(addr)
}

// Balance returns the pooled balance of the lottery at addr.
func (s *LotteryService) Balance(addr models.Address) (*big.Int, error) {
	return s.host.ContractBalance(addr)
}

// PickWinner draws the winner of the lottery at addr on behalf of from.
func (s *LotteryService) PickWinner(ctx context.Context, addr, from models.Address) (*models.WinnerResult, models.Receipt, error) {
	receipt, result, err := s.host.PickWinner(ctx, addr, from)
	if err != nil {
		return nil, receipt, err
	}
	s.touch(addr, func(d *Deployment) { d.Rounds++ })
	return result, receipt, nil
}

// Receipts returns the journaled receipts of the lottery at addr.
func (s *LotteryService) Receipts(ctx context.Context, addr models.Address) ([]models.Receipt, error) {
	if _, err := s.host.Manager(addr); err != nil {
		return nil, err
	}
	if s.receipts == nil {
		return []models.Receipt{}, nil
	}
	return s.receipts.ListReceipts(ctx, addr)
}

// Subscribe streams receipts as transactions complete.
func (s *LotteryService) Subscribe(buffer int) (<-chan models.Receipt, func()) {
	return s.host.Subscribe(buffer)
}

// PruneReceipts removes receipts older than the retention window.
func (s *LotteryService) PruneReceipts(ctx context.Context) (int64, error) {
	if s.receipts == nil {
		return 0, nil
	}
	n, err := s.receipts.PruneBefore(ctx, s.clock.Now().Add(-s.retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Infof("Pruned %d receipts older than %s", n, s.retention)
	}
	return n, nil
}

// RunJanitor prunes receipts every interval until ctx is done.
func (s *LotteryService) RunJanitor(ctx context.Context, interval time.Duration) error {
	w := s.clock.TickerFunc(ctx, interval, func() error {
		if _, err := s.PruneReceipts(ctx); err != nil {
			logger.Errorf("Receipt cleanup failed: %v", err)
		}
		return nil
	}, "janitor")
	err := w.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *LotteryService) touch(addr models.Address, update func(*Deployment)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.deployments[addr]; ok {
		d.LastActivity = s.clock.Now()
		update(d)
	}
}
