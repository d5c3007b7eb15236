// Package chaingateway is the Chain Gateway component (§4.1): a thin,
// synchronous-looking façade over the node RPC, generalized from the
// teacher's pkg/contractclient + cmd/main.go wiring (ethclient.Dial +
// NewContractClient + NewTxListener, one client per contract address).
package chaingateway

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainsentinel/sentinel/internal/model"
)

var (
	eighteenDecimals = decimal.New(1, 18)
	sixDecimals      = decimal.New(1, 6)
	eightDecimals    = decimal.New(1, 8)
)

// Gas limits per §4.1's "100k-150k depending on the call".
const (
	gasPauseProtocol     = 150_000
	gasBlockLiquidations = 100_000
	gasFlagOracle        = 100_000
	gasPauseAMM          = 100_000
	gasUnpauseAMM        = 100_000
)

// Gateway owns the agent's signing key, one ContractClient per protected
// contract, and the shared TxListener. It is the only component that talks
// to the node.
type Gateway struct {
	client *ethclient.Client

	oracle ContractClient
	amm    ContractClient
	vault  ContractClient

	listener   TxListener
	privateKey *ecdsa.PrivateKey
	myAddress  common.Address
	chainID    *big.Int

	log *zap.SugaredLogger
}

// New dials the RPC endpoint, performs the startup connectivity handshake
// (§2C Supplemented Features: fail fast, loudly, rather than discovering
// the problem on the first tick), and binds the three contract clients.
func New(ctx context.Context, rpcURL string, chainID int64, privateKeyHex, oracleAddr, ammAddr, vaultAddr string, log *zap.SugaredLogger) (*Gateway, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chaingateway: dial %s: %w", rpcURL, err)
	}

	blockNumber, err := client.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("chaingateway: RPC handshake failed: %w", err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("chaingateway: invalid agent private key: %w", err)
	}
	myAddress := crypto.PubkeyToAddress(key.PublicKey)

	oracleABI, err := abi.JSON(strings.NewReader(oracleABIJSON))
	if err != nil {
		return nil, fmt.Errorf("chaingateway: parse oracle ABI: %w", err)
	}
	ammABI, err := abi.JSON(strings.NewReader(ammABIJSON))
	if err != nil {
		return nil, fmt.Errorf("chaingateway: parse amm ABI: %w", err)
	}
	vaultABI, err := abi.JSON(strings.NewReader(vaultABIJSON))
	if err != nil {
		return nil, fmt.Errorf("chaingateway: parse vault ABI: %w", err)
	}

	cid := big.NewInt(chainID)
	gw := &Gateway{
		client:     client,
		oracle:     NewContractClient(client, common.HexToAddress(oracleAddr), oracleABI, cid),
		amm:        NewContractClient(client, common.HexToAddress(ammAddr), ammABI, cid),
		vault:      NewContractClient(client, common.HexToAddress(vaultAddr), vaultABI, cid),
		listener:   NewTxListener(client),
		privateKey: key,
		myAddress:  myAddress,
		chainID:    cid,
		log:        log,
	}

	log.Infow("connected to chain", "block", blockNumber, "chain_id", chainID, "agent_address", myAddress.Hex())
	return gw, nil
}

func (g *Gateway) Address() common.Address { return g.myAddress }

func (g *Gateway) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := g.client.BlockNumber(ctx)
	if err != nil {
		return 0, &RpcReadError{Method: "BlockNumber", Cause: err}
	}
	return n, nil
}

// --- Essential reads (§4.1: propagate RpcReadError on failure) ---

func (g *Gateway) GetPrice(ctx context.Context) (decimal.Decimal, int64, uint64, error) {
	out, err := g.oracle.Call(ctx, "getPrice")
	if err != nil {
		return decimal.Zero, 0, 0, &RpcReadError{Method: "getPrice", Cause: err}
	}
	raw := out[0].(*big.Int)
	ts := out[1].(*big.Int)
	block := out[2].(*big.Int)
	return decimal.NewFromBigInt(raw, 0).Div(eightDecimals), ts.Int64(), block.Uint64(), nil
}

func (g *Gateway) GetReserves(ctx context.Context) (base, quote, spot decimal.Decimal, err error) {
	out, callErr := g.amm.Call(ctx, "getReserves")
	if callErr != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, &RpcReadError{Method: "getReserves", Cause: callErr}
	}
	baseRaw := out[0].(*big.Int)
	quoteRaw := out[1].(*big.Int)
	spotRaw := out[2].(*big.Int)
	base = decimal.NewFromBigInt(baseRaw, 0).Div(eighteenDecimals)
	quote = decimal.NewFromBigInt(quoteRaw, 0).Div(sixDecimals)
	spot = decimal.NewFromBigInt(spotRaw, 0).Div(eightDecimals)
	return base, quote, spot, nil
}

func (g *Gateway) GetBlockSwapStats(ctx context.Context) (swaps int, block uint64, err error) {
	out, callErr := g.amm.Call(ctx, "getBlockSwapStats")
	if callErr != nil {
		return 0, 0, &RpcReadError{Method: "getBlockSwapStats", Cause: callErr}
	}
	return int(out[0].(*big.Int).Int64()), out[1].(*big.Int).Uint64(), nil
}

func (g *Gateway) VaultTotals(ctx context.Context) (collateral, loans decimal.Decimal, err error) {
	collateralOut, callErr := g.vault.Call(ctx, "totalCollateral")
	if callErr != nil {
		return decimal.Zero, decimal.Zero, &RpcReadError{Method: "totalCollateral", Cause: callErr}
	}
	loansOut, callErr := g.vault.Call(ctx, "totalLoans")
	if callErr != nil {
		return decimal.Zero, decimal.Zero, &RpcReadError{Method: "totalLoans", Cause: callErr}
	}
	collateral = decimal.NewFromBigInt(collateralOut[0].(*big.Int), 0).Div(eighteenDecimals)
	loans = decimal.NewFromBigInt(loansOut[0].(*big.Int), 0).Div(sixDecimals)
	return collateral, loans, nil
}

func (g *Gateway) VaultPaused(ctx context.Context) (bool, error) {
	out, err := g.vault.Call(ctx, "paused")
	if err != nil {
		return false, &RpcReadError{Method: "vault.paused", Cause: err}
	}
	return out[0].(bool), nil
}

func (g *Gateway) LiquidationsBlocked(ctx context.Context) (bool, error) {
	out, err := g.vault.Call(ctx, "liquidationsBlocked")
	if err != nil {
		return false, &RpcReadError{Method: "liquidationsBlocked", Cause: err}
	}
	return out[0].(bool), nil
}

// --- Non-essential reads (§4.1: degrade to a soft error; caller decides the fallback) ---

func (g *Gateway) GetTWAP(ctx context.Context) (decimal.Decimal, int64, error) {
	out, err := g.oracle.Call(ctx, "getTWAP")
	if err != nil {
		return decimal.Zero, 0, &RpcReadSoftError{Method: "getTWAP", Cause: err}
	}
	twapRaw := out[0].(*big.Int)
	sampleCount := out[1].(*big.Int).Int64()
	return decimal.NewFromBigInt(twapRaw, 0).Div(eightDecimals), sampleCount, nil
}

func (g *Gateway) OracleUpdatesThisBlock(ctx context.Context) int {
	out, err := g.oracle.Call(ctx, "updatesThisBlock")
	if err != nil {
		return 0
	}
	return int(out[0].(*big.Int).Int64())
}

func (g *Gateway) AMMPaused(ctx context.Context) bool {
	out, err := g.amm.Call(ctx, "paused")
	if err != nil {
		return false
	}
	return out[0].(bool)
}

func (g *Gateway) LiquidationsThisBlock(ctx context.Context) int {
	out, err := g.vault.Call(ctx, "liquidationsThisBlock")
	if err != nil {
		return 0
	}
	return int(out[0].(*big.Int).Int64())
}

func (g *Gateway) GetPriceHistory(ctx context.Context, count int) ([]model.PriceData, error) {
	out, err := g.oracle.Call(ctx, "getPriceHistory", big.NewInt(int64(count)))
	if err != nil {
		return nil, &RpcReadSoftError{Method: "getPriceHistory", Cause: err}
	}
	prices := out[0].([]*big.Int)
	timestamps := out[1].([]*big.Int)
	blocks := out[2].([]*big.Int)

	points := make([]model.PriceData, 0, len(prices))
	for i := range prices {
		if timestamps[i].Sign() <= 0 {
			continue
		}
		points = append(points, model.PriceData{
			PriceUSD:    decimal.NewFromBigInt(prices[i], 0).Div(eightDecimals),
			TimestampS:  timestamps[i].Int64(),
			BlockNumber: blocks[i].Uint64(),
		})
	}
	return points, nil
}

func (g *Gateway) RecentLiquidations(ctx context.Context, blocksBack uint64) ([]model.LiquidationEvent, error) {
	current, err := g.client.BlockNumber(ctx)
	if err != nil {
		return nil, &RpcReadSoftError{Method: "RecentLiquidations.BlockNumber", Cause: err}
	}
	from := uint64(0)
	if current > blocksBack {
		from = current - blocksBack
	}

	logs, err := g.vault.FilterLogs(ctx, "Liquidation", from, current)
	if err != nil {
		return nil, &RpcReadSoftError{Method: "Liquidation logs", Cause: err}
	}

	out := make([]model.LiquidationEvent, 0, len(logs))
	for _, lg := range logs {
		decoded, derr := g.vault.Abi().Unpack("Liquidation", lg.Data)
		if derr != nil {
			continue
		}
		out = append(out, model.LiquidationEvent{
			Liquidator:       common.HexToAddress(lg.Topics[1].Hex()).Hex(),
			User:             common.HexToAddress(lg.Topics[2].Hex()).Hex(),
			DebtRepaid:       decimal.NewFromBigInt(decoded[0].(*big.Int), 0).Div(sixDecimals),
			CollateralSeized: decimal.NewFromBigInt(decoded[1].(*big.Int), 0).Div(eighteenDecimals),
			OraclePrice:      decimal.NewFromBigInt(decoded[2].(*big.Int), 0).Div(eightDecimals),
			BlockNumber:      decoded[3].(*big.Int).Uint64(),
			TimestampS:       decoded[4].(*big.Int).Int64(),
		})
	}
	return out, nil
}

func (g *Gateway) RecentSwaps(ctx context.Context, blocksBack uint64) ([]model.SwapEvent, error) {
	current, err := g.client.BlockNumber(ctx)
	if err != nil {
		return nil, &RpcReadSoftError{Method: "RecentSwaps.BlockNumber", Cause: err}
	}
	from := uint64(0)
	if current > blocksBack {
		from = current - blocksBack
	}

	logs, err := g.amm.FilterLogs(ctx, "Swap", from, current)
	if err != nil {
		return nil, &RpcReadSoftError{Method: "Swap logs", Cause: err}
	}

	out := make([]model.SwapEvent, 0, len(logs))
	for _, lg := range logs {
		decoded, derr := g.amm.Abi().Unpack("Swap", lg.Data)
		if derr != nil {
			continue
		}
		isBaseToQuote := decoded[2].(bool)
		amountIn := decimal.NewFromBigInt(decoded[0].(*big.Int), 0)
		amountOut := decimal.NewFromBigInt(decoded[1].(*big.Int), 0)
		if isBaseToQuote {
			amountIn = amountIn.Div(eighteenDecimals)
			amountOut = amountOut.Div(sixDecimals)
		} else {
			amountIn = amountIn.Div(sixDecimals)
			amountOut = amountOut.Div(eighteenDecimals)
		}
		out = append(out, model.SwapEvent{
			Sender:         common.HexToAddress(lg.Topics[1].Hex()).Hex(),
			AmountIn:       amountIn,
			AmountOut:      amountOut,
			IsBaseToQuote:  isBaseToQuote,
			EffectivePrice: decimal.NewFromBigInt(decoded[3].(*big.Int), 0).Div(eighteenDecimals),
			BlockNumber:    decoded[4].(*big.Int).Uint64(),
		})
	}
	return out, nil
}

// --- Mutating calls (§4.1/§4.5) ---

func (g *Gateway) PauseProtocol(ctx context.Context, reason string) (string, error) {
	return g.sendPauseLike(ctx, g.vault, gasPauseProtocol, "pause", truncateReason(reason))
}

func (g *Gateway) BlockLiquidations(ctx context.Context) (string, error) {
	return g.sendPauseLike(ctx, g.vault, gasBlockLiquidations, "blockLiquidations")
}

func (g *Gateway) FlagOracle(ctx context.Context, reason string) (string, error) {
	return g.sendPauseLike(ctx, g.oracle, gasFlagOracle, "flagManipulation", truncateReason(reason))
}

func (g *Gateway) PauseAMM(ctx context.Context) (string, error) {
	return g.sendPauseLike(ctx, g.amm, gasPauseAMM, "pause")
}

func (g *Gateway) UnpauseAMM(ctx context.Context) (string, error) {
	return g.sendPauseLike(ctx, g.amm, gasUnpauseAMM, "unpause")
}

// sendPauseLike submits a mutating call, waits for its receipt, and applies
// the "Already paused" idempotent-success sentinel from §4.5/§7 uniformly
// across every pause-shaped operation.
func (g *Gateway) sendPauseLike(ctx context.Context, client ContractClient, gasLimit uint64, method string, args ...interface{}) (string, error) {
	hash, err := client.Send(ctx, g.myAddress, g.privateKey, gasLimit, method, args...)
	if err != nil {
		if isAlreadyPaused(err) {
			return "already_paused", nil
		}
		return "", fmt.Errorf("chaingateway: submit %s: %w", method, err)
	}

	receipt, err := g.listener.WaitForTransaction(ctx, hash)
	if err != nil {
		return "", err // *TxTimeoutError on timeout, otherwise the receipt lookup error
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", &TxRevertError{TxHash: hash, Reason: "non-success receipt status"}
	}

	return hash.Hex(), nil
}

// isAlreadyPaused recognizes the idempotent-success sentinel from §4.5/§7:
// a revert reason telling us the desired state already holds is treated as
// success, not failure. Covers both the vault/AMM pause wording and
// blockLiquidations' own "already blocked" wording.
func isAlreadyPaused(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already paused") || strings.Contains(msg, "already blocked")
}

func truncateReason(reason string) string {
	const maxLen = 200
	if len(reason) > maxLen {
		return reason[:maxLen]
	}
	return reason
}
