package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/Cogwheel-Validator/spectra-index-portal/portal/models"
)

// Reader performs read-only eth_calls against one chain.
type Reader struct {
	caller ethereum.ContractCaller
}

// NewReader wraps any contract caller, usually an *ethclient.Client.
func NewReader(caller ethereum.ContractCaller) *Reader {
	return &Reader{caller: caller}
}

// ReadContract packs method and args with contractABI, calls addr at the latest
// block and returns the unpacked outputs in ABI order.
func (r *Reader) ReadContract(ctx context.Context, addr common.Address, contractABI abi.ABI, method string, args ...any) ([]any, error) {
	m, ok := contractABI.Methods[method]
	if !ok {
		return nil, fmt.Errorf("method %s not found in abi", method)
	}
	data, err := Pack(contractABI, method, args...)
	if err != nil {
		return nil, err
	}
	out, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, addr.Hex(), err)
	}
	outputs, err := m.Outputs.Unpack(out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return outputs, nil
}

// readOne reads a single-output method and asserts its Go type.
func readOne[T any](ctx context.Context, r *Reader, addr common.Address, contractABI abi.ABI, method string, args ...any) (T, error) {
	var zero T
	out, err := r.ReadContract(ctx, addr, contractABI, method, args...)
	if err != nil {
		return zero, err
	}
	if len(out) == 0 {
		return zero, fmt.Errorf("%s returned no values", method)
	}
	v, ok := out[0].(T)
	if !ok {
		return zero, fmt.Errorf("%s returned %T, want %T", method, out[0], zero)
	}
	return v, nil
}

// SetMetadata reads the seven index fields concurrently and joins them.
// isInitializedModule is asked for issuanceModule.
func (r *Reader) SetMetadata(ctx context.Context, set, issuanceModule common.Address) (*models.SetMetadata, error) {
	meta := &models.SetMetadata{Address: set}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		meta.Name, err = readOne[string](ctx, r, set, SetTokenABI, "name")
		return err
	})
	g.Go(func() (err error) {
		meta.Symbol, err = readOne[string](ctx, r, set, SetTokenABI, "symbol")
		return err
	})
	g.Go(func() (err error) {
		meta.TotalSupply, err = readOne[*big.Int](ctx, r, set, SetTokenABI, "totalSupply")
		return err
	})
	g.Go(func() (err error) {
		meta.Decimals, err = readOne[uint8](ctx, r, set, SetTokenABI, "decimals")
		return err
	})
	g.Go(func() (err error) {
		meta.Components, err = readOne[[]common.Address](ctx, r, set, SetTokenABI, "getComponents")
		return err
	})
	g.Go(func() (err error) {
		meta.Manager, err = readOne[common.Address](ctx, r, set, SetTokenABI, "manager")
		return err
	})
	g.Go(func() (err error) {
		meta.IsInitializedModule, err = readOne[bool](ctx, r, set, SetTokenABI, "isInitializedModule", issuanceModule)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to read index %s: %w", set.Hex(), err)
	}
	return meta, nil
}

// ComponentDetails reads symbol and decimals of every component. The result
// keeps the order of components.
func (r *Reader) ComponentDetails(ctx context.Context, components []common.Address) ([]models.ComponentInfo, error) {
	infos := make([]models.ComponentInfo, len(components))
	g, ctx := errgroup.WithContext(ctx)

	for i, c := range components {
		infos[i].Address = c
		g.Go(func() (err error) {
			infos[i].Symbol, err = readOne[string](ctx, r, c, ERC20ABI, "symbol")
			return err
		})
		g.Go(func() (err error) {
			infos[i].Decimals, err = readOne[uint8](ctx, r, c, ERC20ABI, "decimals")
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to read component details: %w", err)
	}
	return infos, nil
}

// RequiredComponentUnits asks the issuance module how much of each component
// issuing quantity index tokens takes.
func (r *Reader) RequiredComponentUnits(ctx context.Context, module, set common.Address, quantity *big.Int) (models.ComponentUnits, error) {
	out, err := r.ReadContract(ctx, module, BasicIssuanceModuleABI, "getRequiredComponentUnitsForIssue", set, quantity)
	if err != nil {
		return models.ComponentUnits{}, err
	}
	if len(out) != 2 {
		return models.ComponentUnits{}, fmt.Errorf("getRequiredComponentUnitsForIssue returned %d values", len(out))
	}
	addrs, ok := out[0].([]common.Address)
	if !ok {
		return models.ComponentUnits{}, fmt.Errorf("unexpected component list type %T", out[0])
	}
	units, ok := out[1].([]*big.Int)
	if !ok {
		return models.ComponentUnits{}, fmt.Errorf("unexpected units type %T", out[1])
	}
	return models.NewComponentUnits(addrs, units)
}

// Sets lists every index registered on the controller.
func (r *Reader) Sets(ctx context.Context, controller common.Address) ([]common.Address, error) {
	return readOne[[]common.Address](ctx, r, controller, ControllerABI, "getSets")
}

// BalanceOf reads an ERC-20 balance.
func (r *Reader) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	return readOne[*big.Int](ctx, r, token, ERC20ABI, "balanceOf", owner)
}

// MultichainBalance reads the balance of one bridged asset on every chain of
// mapping. The owner on each chain is the account's address there, falling
// back to the account owner when the account has no deployment on that chain.
func MultichainBalance(ctx context.Context, readers map[uint64]*Reader, mapping models.TokenMapping, account models.MultichainAccount) (models.BalanceSnapshot, error) {
	type result struct {
		chainID uint64
		balance *big.Int
	}
	results := make([]result, 0, len(mapping))
	for chainID := range mapping {
		results = append(results, result{chainID: chainID})
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := range results {
		chainID := results[i].chainID
		reader, ok := readers[chainID]
		if !ok {
			return nil, fmt.Errorf("no rpc client for chain %d", chainID)
		}
		owner, ok := account.AddressOn(chainID)
		if !ok {
			owner = account.Owner
		}
		g.Go(func() (err error) {
			results[i].balance, err = reader.BalanceOf(ctx, mapping[chainID], owner)
			if err != nil {
				return fmt.Errorf("chain %d: %w", chainID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snapshot := make(models.BalanceSnapshot, len(results))
	for _, res := range results {
		snapshot[res.chainID] = res.balance
	}
	return snapshot, nil
}
