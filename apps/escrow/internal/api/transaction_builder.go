package api

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"escrow/apps/escrow/internal/constants"
)

// Vesting escrow write ABI
const escrowWriteABI = `[
	{"name": "claim", "type": "function", "stateMutability": "nonpayable", "inputs": [{"name": "beneficiary", "type": "address"}, {"name": "amount", "type": "uint256"}], "outputs": []},
	{"name": "revoke", "type": "function", "stateMutability": "nonpayable", "inputs": [{"name": "beneficiary", "type": "address"}, {"name": "ts", "type": "uint256"}], "outputs": []},
	{"name": "disown", "type": "function", "stateMutability": "nonpayable", "inputs": [], "outputs": []}
]`

// Factory ABI
const factoryABI = `[
	{"name": "deploy_vesting_contract", "type": "function", "stateMutability": "nonpayable", "inputs": [
		{"name": "token", "type": "address"},
		{"name": "recipient", "type": "address"},
		{"name": "amount", "type": "uint256"},
		{"name": "vesting_duration", "type": "uint256"},
		{"name": "vesting_start", "type": "uint256"},
		{"name": "cliff_length", "type": "uint256"},
		{"name": "open_claim", "type": "bool"},
		{"name": "support_vyper", "type": "uint256"},
		{"name": "owner", "type": "address"}
	], "outputs": [{"type": "address"}]}
]`

// ERC20 approve ABI
const erc20WriteABI = `[
	{"name": "approve", "type": "function", "stateMutability": "nonpayable", "inputs": [{"name": "_spender", "type": "address"}, {"name": "_value", "type": "uint256"}], "outputs": [{"type": "bool"}]}
]`

// Fixed gas limits per action. Estimation against un-broadcast state is
// unreliable for these contracts, so the limits are generous constants.
const (
	gasLimitClaim   = 200_000
	gasLimitRevoke  = 150_000
	gasLimitDisown  = 80_000
	gasLimitApprove = 80_000
	gasLimitDeploy  = 700_000
)

// maxUint256 is the claim-everything sentinel the escrow contract caps to
// the actual unclaimed balance.
var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// TransactionBuilder assembles unsigned transactions for the wallet to sign.
// The server never holds keys; it only packs calldata and fills in the gas
// price and nonce.
type TransactionBuilder struct {
	client         *ethclient.Client
	escrowABI      abi.ABI
	factoryABI     abi.ABI
	erc20ABI       abi.ABI
	factoryAddress common.Address
	logger         *zap.Logger
}

func NewTransactionBuilder(client *ethclient.Client, factoryAddress string, logger *zap.Logger) (*TransactionBuilder, error) {
	parsedEscrowABI, err := abi.JSON(strings.NewReader(escrowWriteABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse escrow write ABI: %w", err)
	}

	parsedFactoryABI, err := abi.JSON(strings.NewReader(factoryABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse factory ABI: %w", err)
	}

	parsedERC20ABI, err := abi.JSON(strings.NewReader(erc20WriteABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC20 write ABI: %w", err)
	}

	return &TransactionBuilder{
		client:         client,
		escrowABI:      parsedEscrowABI,
		factoryABI:     parsedFactoryABI,
		erc20ABI:       parsedERC20ABI,
		factoryAddress: common.HexToAddress(factoryAddress),
		logger:         logger,
	}, nil
}

// BuildClaim packs claim(beneficiary, MaxUint256). The sentinel amount makes
// the contract pay out everything currently unclaimed.
func (b *TransactionBuilder) BuildClaim(ctx context.Context, escrowAddress, beneficiary, walletAddress string) (*UnsignedTransaction, error) {
	data, err := b.escrowABI.Pack("claim", common.HexToAddress(beneficiary), maxUint256)
	if err != nil {
		return nil, fmt.Errorf("failed to pack claim call: %w", err)
	}

	return b.build(ctx, common.HexToAddress(escrowAddress), walletAddress, data, gasLimitClaim)
}

// BuildRevoke packs revoke(zero-address, 0): unvested tokens return to the
// owner and the revocation takes effect immediately.
func (b *TransactionBuilder) BuildRevoke(ctx context.Context, escrowAddress, walletAddress string) (*UnsignedTransaction, error) {
	data, err := b.escrowABI.Pack("revoke", common.HexToAddress(constants.ZeroAddress), big.NewInt(0))
	if err != nil {
		return nil, fmt.Errorf("failed to pack revoke call: %w", err)
	}

	return b.build(ctx, common.HexToAddress(escrowAddress), walletAddress, data, gasLimitRevoke)
}

// BuildDisown packs disown().
func (b *TransactionBuilder) BuildDisown(ctx context.Context, escrowAddress, walletAddress string) (*UnsignedTransaction, error) {
	data, err := b.escrowABI.Pack("disown")
	if err != nil {
		return nil, fmt.Errorf("failed to pack disown call: %w", err)
	}

	return b.build(ctx, common.HexToAddress(escrowAddress), walletAddress, data, gasLimitDisown)
}

// BuildApprove packs approve(factory, amount) on the token contract.
func (b *TransactionBuilder) BuildApprove(ctx context.Context, tokenAddress, walletAddress string, amount *big.Int) (*UnsignedTransaction, error) {
	data, err := b.erc20ABI.Pack("approve", b.factoryAddress, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack approve call: %w", err)
	}

	return b.build(ctx, common.HexToAddress(tokenAddress), walletAddress, data, gasLimitApprove)
}

// BuildDeploy packs a factory deployment of a new vesting escrow. The caller
// becomes the owner; donationBps is zero unless the funder opted in.
func (b *TransactionBuilder) BuildDeploy(ctx context.Context, req DeployRequest, amount *big.Int) (*UnsignedTransaction, error) {
	donationBps := big.NewInt(0)
	if req.SupportDonation {
		donationBps = big.NewInt(constants.DonationBps)
	}

	data, err := b.factoryABI.Pack("deploy_vesting_contract",
		common.HexToAddress(req.TokenAddress),
		common.HexToAddress(req.Recipient),
		amount,
		big.NewInt(req.VestingDuration),
		big.NewInt(req.VestingStart),
		big.NewInt(req.CliffLength),
		req.OpenClaim,
		donationBps,
		common.HexToAddress(req.WalletAddress))
	if err != nil {
		return nil, fmt.Errorf("failed to pack deploy_vesting_contract call: %w", err)
	}

	return b.build(ctx, b.factoryAddress, req.WalletAddress, data, gasLimitDeploy)
}

func (b *TransactionBuilder) build(ctx context.Context, to common.Address, walletAddress string, data []byte, gasLimit uint64) (*UnsignedTransaction, error) {
	gasPrice, err := b.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	nonce, err := b.client.PendingNonceAt(ctx, common.HexToAddress(walletAddress))
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	return &UnsignedTransaction{
		To:       to.Hex(),
		Data:     hexutil.Encode(data),
		Value:    "0",
		GasLimit: strconv.FormatUint(gasLimit, 10),
		GasPrice: gasPrice.String(),
		ChainID:  constants.EthereumChainID,
		Nonce:    strconv.FormatUint(nonce, 10),
	}, nil
}
