package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"escrow/apps/escrow/internal/model"
)

// Vesting escrow view ABI
const EscrowViewABI = `[
	{"name": "unclaimed", "type": "function", "stateMutability": "view", "inputs": [], "outputs": [{"type": "uint256"}]},
	{"name": "locked", "type": "function", "stateMutability": "view", "inputs": [], "outputs": [{"type": "uint256"}]},
	{"name": "total_claimed", "type": "function", "stateMutability": "view", "inputs": [], "outputs": [{"type": "uint256"}]},
	{"name": "total_locked", "type": "function", "stateMutability": "view", "inputs": [], "outputs": [{"type": "uint256"}]},
	{"name": "owner", "type": "function", "stateMutability": "view", "inputs": [], "outputs": [{"type": "address"}]},
	{"name": "disabled_at", "type": "function", "stateMutability": "view", "inputs": [], "outputs": [{"type": "uint256"}]},
	{"name": "end_time", "type": "function", "stateMutability": "view", "inputs": [], "outputs": [{"type": "uint256"}]},
	{"name": "start_time", "type": "function", "stateMutability": "view", "inputs": [], "outputs": [{"type": "uint256"}]},
	{"name": "cliff_length", "type": "function", "stateMutability": "view", "inputs": [], "outputs": [{"type": "uint256"}]},
	{"name": "open_claim", "type": "function", "stateMutability": "view", "inputs": [], "outputs": [{"type": "bool"}]}
]`

// Reader fetches live contract state for escrows. Batch fetches are chunked
// to respect upstream request-size limits; batches run in parallel and a
// failed escrow degrades to "no live data" without failing its siblings.
type Reader struct {
	client    *ethclient.Client
	escrowABI abi.ABI
	erc20ABI  abi.ABI
	batchSize int
	logger    *zap.Logger
}

// NewReader creates a Reader on top of an RPC endpoint.
func NewReader(rpcURL string, batchSize int, logger *zap.Logger) (*Reader, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum client: %w", err)
	}

	parsedEscrowABI, err := abi.JSON(strings.NewReader(EscrowViewABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse escrow ABI: %w", err)
	}

	parsedERC20ABI, err := abi.JSON(strings.NewReader(ERC20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC20 ABI: %w", err)
	}

	if batchSize <= 0 {
		batchSize = 20
	}

	return &Reader{
		client:    client,
		escrowABI: parsedEscrowABI,
		erc20ABI:  parsedERC20ABI,
		batchSize: batchSize,
		logger:    logger,
	}, nil
}

// Client exposes the underlying RPC client for components that need raw
// access (transaction builder, receipt watcher).
func (r *Reader) Client() *ethclient.Client {
	return r.client
}

// FetchLive reads the full view-function set of one escrow. Any failed call
// fails the whole snapshot; a partially read escrow must never be merged.
func (r *Reader) FetchLive(ctx context.Context, escrowAddress string) (*model.LiveEscrowData, error) {
	address := common.HexToAddress(escrowAddress)

	unclaimed, err := r.callUint(ctx, address, "unclaimed")
	if err != nil {
		return nil, err
	}
	locked, err := r.callUint(ctx, address, "locked")
	if err != nil {
		return nil, err
	}
	totalClaimed, err := r.callUint(ctx, address, "total_claimed")
	if err != nil {
		return nil, err
	}
	totalLocked, err := r.callUint(ctx, address, "total_locked")
	if err != nil {
		return nil, err
	}
	owner, err := r.callAddress(ctx, address, "owner")
	if err != nil {
		return nil, err
	}
	disabledAt, err := r.callUint(ctx, address, "disabled_at")
	if err != nil {
		return nil, err
	}
	endTime, err := r.callUint(ctx, address, "end_time")
	if err != nil {
		return nil, err
	}
	startTime, err := r.callUint(ctx, address, "start_time")
	if err != nil {
		return nil, err
	}
	cliffLength, err := r.callUint(ctx, address, "cliff_length")
	if err != nil {
		return nil, err
	}
	openClaim, err := r.callBool(ctx, address, "open_claim")
	if err != nil {
		return nil, err
	}

	return &model.LiveEscrowData{
		Unclaimed:    unclaimed,
		Locked:       locked,
		TotalClaimed: totalClaimed,
		TotalLocked:  totalLocked,
		Owner:        owner.Hex(),
		DisabledAt:   disabledAt.Int64(),
		EndTime:      endTime.Int64(),
		StartTime:    startTime.Int64(),
		CliffLength:  cliffLength.Int64(),
		OpenClaim:    openClaim,
	}, nil
}

// FetchLiveBatch reads live data for many escrows, keyed by lowercase
// address. Escrows whose reads failed are simply absent from the result.
func (r *Reader) FetchLiveBatch(ctx context.Context, escrowAddresses []string) map[string]*model.LiveEscrowData {
	result := make(map[string]*model.LiveEscrowData)
	if len(escrowAddresses) == 0 {
		return result
	}

	var mu sync.Mutex
	var wg sync.WaitGroup

	for start := 0; start < len(escrowAddresses); start += r.batchSize {
		end := start + r.batchSize
		if end > len(escrowAddresses) {
			end = len(escrowAddresses)
		}
		batch := escrowAddresses[start:end]

		wg.Add(1)
		go func(batch []string) {
			defer wg.Done()
			for _, address := range batch {
				live, err := r.FetchLive(ctx, address)
				if err != nil {
					r.logger.Warn("Failed to read live escrow data",
						zap.String("escrow", address),
						zap.Error(err))
					continue
				}
				mu.Lock()
				result[strings.ToLower(address)] = live
				mu.Unlock()
			}
		}(batch)
	}

	wg.Wait()
	return result
}

func (r *Reader) callUint(ctx context.Context, contract common.Address, method string) (*big.Int, error) {
	data, err := r.escrowABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	output, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}

	var value *big.Int
	if err := r.escrowABI.UnpackIntoInterface(&value, method, output); err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}

	return value, nil
}

func (r *Reader) callAddress(ctx context.Context, contract common.Address, method string) (common.Address, error) {
	data, err := r.escrowABI.Pack(method)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	output, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to call %s: %w", method, err)
	}

	var value common.Address
	if err := r.escrowABI.UnpackIntoInterface(&value, method, output); err != nil {
		return common.Address{}, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}

	return value, nil
}

func (r *Reader) callBool(ctx context.Context, contract common.Address, method string) (bool, error) {
	data, err := r.escrowABI.Pack(method)
	if err != nil {
		return false, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	output, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return false, fmt.Errorf("failed to call %s: %w", method, err)
	}

	var value bool
	if err := r.escrowABI.UnpackIntoInterface(&value, method, output); err != nil {
		return false, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}

	return value, nil
}
