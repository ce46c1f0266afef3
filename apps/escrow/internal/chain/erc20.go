package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"escrow/apps/escrow/internal/constants"
	"escrow/apps/escrow/internal/model"
)

// ERC20 ABI for the create-flow reads
const ERC20ABI = `[
	{"name": "symbol", "type": "function", "stateMutability": "view", "inputs": [], "outputs": [{"type": "string"}]},
	{"name": "name", "type": "function", "stateMutability": "view", "inputs": [], "outputs": [{"type": "string"}]},
	{"name": "decimals", "type": "function", "stateMutability": "view", "inputs": [], "outputs": [{"type": "uint8"}]},
	{"name": "balanceOf", "type": "function", "stateMutability": "view", "inputs": [{"name": "_owner", "type": "address"}], "outputs": [{"type": "uint256"}]},
	{"name": "allowance", "type": "function", "stateMutability": "view", "inputs": [{"name": "_owner", "type": "address"}, {"name": "_spender", "type": "address"}], "outputs": [{"type": "uint256"}]}
]`

// BalanceOf returns the token balance of a wallet in base units.
func (r *Reader) BalanceOf(ctx context.Context, tokenAddress, walletAddress string) (*big.Int, error) {
	token := common.HexToAddress(tokenAddress)

	data, err := r.erc20ABI.Pack("balanceOf", common.HexToAddress(walletAddress))
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf call: %w", err)
	}

	output, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call balanceOf: %w", err)
	}

	var balance *big.Int
	if err := r.erc20ABI.UnpackIntoInterface(&balance, "balanceOf", output); err != nil {
		return nil, fmt.Errorf("failed to unpack balanceOf result: %w", err)
	}

	return balance, nil
}

// Allowance returns the amount a spender may move on behalf of an owner.
func (r *Reader) Allowance(ctx context.Context, tokenAddress, ownerAddress, spenderAddress string) (*big.Int, error) {
	token := common.HexToAddress(tokenAddress)

	data, err := r.erc20ABI.Pack("allowance", common.HexToAddress(ownerAddress), common.HexToAddress(spenderAddress))
	if err != nil {
		return nil, fmt.Errorf("failed to pack allowance call: %w", err)
	}

	output, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call allowance: %w", err)
	}

	var allowance *big.Int
	if err := r.erc20ABI.UnpackIntoInterface(&allowance, "allowance", output); err != nil {
		return nil, fmt.Errorf("failed to unpack allowance result: %w", err)
	}

	return allowance, nil
}

// TokenMetadata reads symbol, name and decimals straight from the token
// contract. Used as a fallback when the static token index has no entry.
func (r *Reader) TokenMetadata(ctx context.Context, tokenAddress string) (*model.TokenMetadata, error) {
	token := common.HexToAddress(tokenAddress)

	var symbol string
	if err := r.callERC20(ctx, token, "symbol", &symbol); err != nil {
		return nil, err
	}

	var name string
	if err := r.callERC20(ctx, token, "name", &name); err != nil {
		return nil, err
	}

	var decimals uint8
	if err := r.callERC20(ctx, token, "decimals", &decimals); err != nil {
		return nil, err
	}

	logoURL := constants.TokenLogoURL(tokenAddress, 128)

	return &model.TokenMetadata{
		Symbol:   symbol,
		Name:     name,
		Decimals: int(decimals),
		LogoURL:  &logoURL,
	}, nil
}

func (r *Reader) callERC20(ctx context.Context, contract common.Address, method string, out interface{}) error {
	data, err := r.erc20ABI.Pack(method)
	if err != nil {
		return fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	output, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", method, err)
	}

	if err := r.erc20ABI.UnpackIntoInterface(out, method, output); err != nil {
		return fmt.Errorf("failed to unpack %s result: %w", method, err)
	}

	return nil
}
