package chaingateway

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// RpcReadError reports a failed read on an essential field (§4.1, §7): it
// aborts the current tick.
type RpcReadError struct {
	Method string
	Cause  error
}

func (e *RpcReadError) Error() string {
	return fmt.Sprintf("chaingateway: essential read %s failed: %v", e.Method, e.Cause)
}

func (e *RpcReadError) Unwrap() error { return e.Cause }

// RpcReadSoftError reports a failed read on a non-essential field; callers
// recover by substituting an empty/zero value rather than propagating.
type RpcReadSoftError struct {
	Method string
	Cause  error
}

func (e *RpcReadSoftError) Error() string {
	return fmt.Sprintf("chaingateway: soft read %s failed: %v", e.Method, e.Cause)
}

func (e *RpcReadSoftError) Unwrap() error { return e.Cause }

// TxRevertError reports a mined transaction with a non-success receipt
// status. The idempotent-success sentinel ("Already paused"/"Already
// blocked", §4.5 §7) is recognized earlier, at send time, by
// isAlreadyPaused — a revert caught there never reaches this type.
type TxRevertError struct {
	TxHash common.Hash
	Reason string
}

func (e *TxRevertError) Error() string {
	return fmt.Sprintf("chaingateway: tx %s reverted: %s", e.TxHash.Hex(), e.Reason)
}

// TxTimeoutError reports a receipt that was not observed within the 120
// second bound from §4.1/§5.
type TxTimeoutError struct {
	TxHash common.Hash
}

func (e *TxTimeoutError) Error() string {
	return fmt.Sprintf("chaingateway: tx %s not confirmed within timeout", e.TxHash.Hex())
}
