package chaingateway

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ContractClient is a thin, synchronous-looking façade over one contract's
// read and write surface, generalized from the teacher's
// pkg/contractclient usage (bound to a single ethclient.Client + address +
// ABI, exercised there via NewContractClient(client, address, abi)).
type ContractClient interface {
	Call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error)
	Send(ctx context.Context, from common.Address, key *ecdsa.PrivateKey, gasLimit uint64, method string, args ...interface{}) (common.Hash, error)
	FilterLogs(ctx context.Context, eventName string, fromBlock, toBlock uint64) ([]types.Log, error)
	Abi() abi.ABI
	Address() common.Address
}

type ethContractClient struct {
	client  *ethclient.Client
	address common.Address
	abi     abi.ABI
	chainID *big.Int
}

func NewContractClient(client *ethclient.Client, address common.Address, contractABI abi.ABI, chainID *big.Int) ContractClient {
	return &ethContractClient{client: client, address: address, abi: contractABI, chainID: chainID}
}

func (c *ethContractClient) Abi() abi.ABI            { return c.abi }
func (c *ethContractClient) Address() common.Address { return c.address }

func (c *ethContractClient) Call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	msg := ethereum.CallMsg{To: &c.address, Data: data}
	raw, err := c.client.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	out, err := c.abi.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return out, nil
}

// Send signs and submits an EIP-1559 transaction invoking method, and
// returns the transaction hash without waiting for a receipt — receipt
// waiting is the caller's responsibility via TxListener, matching the
// teacher's Swap()/Mint() pattern of Send-then-WaitForTransaction.
func (c *ethContractClient) Send(ctx context.Context, from common.Address, key *ecdsa.PrivateKey, gasLimit uint64, method string, args ...interface{}) (common.Hash, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack %s: %w", method, err)
	}

	// Simulate before sending so a synchronous revert (e.g. "Already paused")
	// surfaces here rather than only showing up in a mined receipt's status.
	if _, err := c.client.CallContract(ctx, ethereum.CallMsg{From: from, To: &c.address, Data: data}, nil); err != nil {
		return common.Hash{}, fmt.Errorf("simulate %s: %w", method, err)
	}

	nonce, err := c.client.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pending nonce: %w", err)
	}

	head, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("latest header: %w", err)
	}
	maxFee, maxPriority := EIP1559FeeParams(head.BaseFee)

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: maxPriority,
		GasFeeCap: maxFee,
		Gas:       gasLimit,
		To:        &c.address,
		Data:      data,
	})

	signer := types.LatestSignerForChainID(c.chainID)
	signedTx, err := types.SignTx(tx, signer, key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign %s: %w", method, err)
	}

	if err := c.client.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("send %s: %w", method, err)
	}

	return signedTx.Hash(), nil
}

func (c *ethContractClient) FilterLogs(ctx context.Context, eventName string, fromBlock, toBlock uint64) ([]types.Log, error) {
	event, ok := c.abi.Events[eventName]
	if !ok {
		return nil, fmt.Errorf("unknown event %s", eventName)
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{c.address},
		Topics:    [][]common.Hash{{event.ID}},
	}

	return c.client.FilterLogs(ctx, query)
}

// EIP1559FeeParams implements the fee formula from §4.1: maxPriorityFee =
// 1.5 gwei, maxFee = 2*baseFee + maxPriorityFee.
func EIP1559FeeParams(baseFee *big.Int) (maxFee, maxPriorityFee *big.Int) {
	maxPriorityFee = new(big.Int).SetUint64(1_500_000_000)
	if baseFee == nil {
		baseFee = new(big.Int)
	}
	maxFee = new(big.Int).Add(new(big.Int).Mul(baseFee, big.NewInt(2)), maxPriorityFee)
	return maxFee, maxPriorityFee
}
