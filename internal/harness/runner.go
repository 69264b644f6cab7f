package harness

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"slices"

	"github.com/google/logger"

	"poolwager/internal/contract"
	"poolwager/internal/entropy"
	"poolwager/internal/host"
	"poolwager/internal/ledger"
	"poolwager/internal/models"
)

// errorNames maps the names scenarios use in `error:` to the errors they
// stand for.
var errorNames = map[string]error{
	"InsufficientStake": contract.ErrInsufficientStake,
	"Unauthorized":      contract.ErrUnauthorized,
	"NoParticipants":    contract.ErrNoParticipants,
	"TransferFailure":   contract.ErrTransferFailure,
	"InsufficientFunds": ledger.ErrInsufficientFunds,
}

// Result summarizes a finished run.
type Result struct {
	Name     string
	Accounts []models.Address
	Contract models.Address
	Winners  []models.Address
	Steps    int
}

type run struct {
	scenario *Scenario
	host     *host.Host
	accounts []models.Address
	contract models.Address
	result   *Result
}

// Run executes s against a fresh host, stopping at the first failed step.
func Run(ctx context.Context, s *Scenario, opts ...host.Option) (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	hostOpts := []host.Option{}
	if s.MinimumStake != "" {
		min, err := models.ParseEther(s.MinimumStake)
		if err != nil {
			return nil, fmt.Errorf("scenario %q: minimumStake: %w", s.Name, err)
		}
		hostOpts = append(hostOpts, host.WithMinimumStake(min))
	}
	if s.DrawSeed != nil {
		hostOpts = append(hostOpts, host.WithEntropy(entropy.Fixed(*s.DrawSeed)))
	}
	h := host.New(append(hostOpts, opts...)...)

	funding := new(big.Int)
	if s.Funding != "" {
		var err error
		if funding, err = models.ParseEther(s.Funding); err != nil {
			return nil, fmt.Errorf("scenario %q: funding: %w", s.Name, err)
		}
	}
	accounts, err := h.Provision(s.Accounts, funding, s.Seed)
	if err != nil {
		return nil, fmt.Errorf("scenario %q: %w", s.Name, err)
	}

	r := &run{
		scenario: s,
		host:     h,
		accounts: accounts,
		result:   &Result{Name: s.Name, Accounts: accounts},
	}
	for i, step := range s.Steps {
		name, _ := step.action()
		if err := r.step(ctx, step); err != nil {
			return r.result, fmt.Errorf("scenario %q: step %d (%s): %w", s.Name, i, name, err)
		}
		r.result.Steps++
	}
	logger.Infof("Scenario %q passed (%d steps)", s.Name, r.result.Steps)
	return r.result, nil
}

func (r *run) step(ctx context.Context, step Step) error {
	switch {
	case step.Deploy != nil:
		from, err := r.account(step.Deploy.From)
		if err != nil {
			return err
		}
		addr, _, err := r.host.Deploy(ctx, from)
		if err != nil {
			return err
		}
		r.contract = addr
		r.result.Contract = addr
		return nil

	case step.Enter != nil:
		from, err := r.account(step.Enter.From)
		if err != nil {
			return err
		}
		value, err := models.ParseEther(step.Enter.Value)
		if err != nil {
			return err
		}
		_, err = r.host.Enter(ctx, r.contract, from, value)
		return expectError(step.Enter.Error, err)

	case step.PickWinner != nil:
		return r.pickWinner(ctx, step.PickWinner)

	case step.Reject != nil:
		addr, err := r.account(step.Reject.Account)
		if err != nil {
			return err
		}
		r.host.Reject(addr, step.Reject.Reject)
		return nil

	case step.ExpectPlayers != nil:
		want := make([]models.Address, 0, len(*step.ExpectPlayers))
		for _, idx := range *step.ExpectPlayers {
			addr, err := r.account(idx)
			if err != nil {
				return err
			}
			want = append(want, addr)
		}
		got, err := r.host.Players(r.contract)
		if err != nil {
			return err
		}
		if !slices.Equal(want, got) {
			return fmt.Errorf("players = %v, want %v", got, want)
		}
		return nil

	case step.ExpectManager != nil:
		want, err := r.account(*step.ExpectManager)
		if err != nil {
			return err
		}
		got, err := r.host.Manager(r.contract)
		if err != nil {
			return err
		}
		if got != want {
			return fmt.Errorf("manager = %s, want %s", got, want)
		}
		return nil

	case step.ExpectPool != nil:
		got, err := r.host.ContractBalance(r.contract)
		if err != nil {
			return err
		}
		return compareEther("pool", got, *step.ExpectPool)

	case step.ExpectBalance != nil:
		addr, err := r.account(step.ExpectBalance.Account)
		if err != nil {
			return err
		}
		return compareEther(fmt.Sprintf("balance of account %d", step.ExpectBalance.Account),
			r.host.BalanceOf(addr), step.ExpectBalance.Ether)
	}
	return errors.New("empty step")
}

func (r *run) pickWinner(ctx context.Context, step *PickWinnerStep) error {
	from, err := r.account(step.From)
	if err != nil {
		return err
	}

	before := make(map[models.Address]*big.Int, len(r.accounts))
	for _, a := range r.accounts {
		before[a] = r.host.BalanceOf(a)
	}

	_, result, err := r.host.PickWinner(ctx, r.contract, from)
	if err := expectError(step.Error, err); err != nil || step.Error != "" {
		return err
	}
	r.result.Winners = append(r.result.Winners, result.Winner)

	if len(step.WinnerIn) > 0 {
		allowed := false
		for _, idx := range step.WinnerIn {
			addr, err := r.account(idx)
			if err != nil {
				return err
			}
			allowed = allowed || addr == result.Winner
		}
		if !allowed {
			return fmt.Errorf("winner %s is not one of accounts %v", result.Winner, step.WinnerIn)
		}
	}

	if step.Payout != "" {
		prior, ok := before[result.Winner]
		if !ok {
			return fmt.Errorf("winner %s is not a provisioned account", result.Winner)
		}
		gain := new(big.Int).Sub(r.host.BalanceOf(result.Winner), prior)
		if err := compareEther("payout", gain, step.Payout); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) account(idx int) (models.Address, error) {
	if idx < 0 || idx >= len(r.accounts) {
		return models.ZeroAddress, fmt.Errorf("account %d out of range (have %d)", idx, len(r.accounts))
	}
	return r.accounts[idx], nil
}

func expectError(name string, err error) error {
	if name == "" {
		return err
	}
	want, ok := errorNames[name]
	if !ok {
		return fmt.Errorf("unknown error name %q", name)
	}
	if err == nil {
		return fmt.Errorf("expected %s, call succeeded", name)
	}
	if !errors.Is(err, want) {
		return fmt.Errorf("expected %s, got %w", name, err)
	}
	return nil
}

func compareEther(what string, got *big.Int, wantEther string) error {
	want, err := models.ParseEther(wantEther)
	if err != nil {
		return err
	}
	if got.Cmp(want) != 0 {
		return fmt.Errorf("%s = %s ether, want %s ether", what, models.FormatEther(got), models.FormatEther(want))
	}
	return nil
}
