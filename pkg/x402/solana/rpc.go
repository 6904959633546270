package solana

import (
	"context"
	"errors"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/CedrosPay/server/internal/circuitbreaker"
	"github.com/CedrosPay/server/internal/rpcutil"
)

// TokenBalance is one entry of a parsed transaction's pre/post token
// balance snapshot, restricted to the fields the balance-delta parser (C3)
// needs.
type TokenBalance struct {
	AccountIndex int
	Mint         string
	Owner        string
	Amount       string // raw base-unit integer, as a decimal string
	Decimals     uint8
}

// TransactionRecord is the subset of a confirmed transaction this module
// inspects: enough to run the balance-delta algorithm (C3) and to report
// blockTime/slot back to the caller.
type TransactionRecord struct {
	Signature        string
	Failed           bool
	AccountKeys      []string
	PreTokenBalances []TokenBalance
	PostTokenBalances []TokenBalance
	BlockTime        *int64
	Slot             uint64
}

// AccountInfo is the subset of account state the channel verifier (C6)
// needs to decode a ChannelRecord.
type AccountInfo struct {
	Data    []byte
	Owner   string
	Lamports uint64
}

// Ledger is the RPC collaborator every verifier depends on. A fake
// implementation backs unit tests; production wires *RPCClient.
type Ledger interface {
	GetTransaction(ctx context.Context, signature string, commitment string) (*TransactionRecord, error)
	GetAccountInfo(ctx context.Context, address string) (*AccountInfo, error)
}

// RPCClient adapts gagliardetto/solana-go's rpc.Client to the Ledger
// interface, with a per-call circuit breaker and retry wrapper so a flaky
// RPC provider degrades gracefully instead of cascading into every
// verification request.
type RPCClient struct {
	client  *rpc.Client
	breaker *circuitbreaker.Manager
}

// NewRPCClient builds a Ledger backed by a real Solana RPC endpoint.
func NewRPCClient(rpcURL string, breaker *circuitbreaker.Manager) (*RPCClient, error) {
	if rpcURL == "" {
		return nil, errors.New("x402 solana: rpc url required")
	}
	return &RPCClient{
		client:  rpc.New(rpcURL),
		breaker: breaker,
	}, nil
}

func (c *RPCClient) GetTransaction(ctx context.Context, signature string, commitment string) (*TransactionRecord, error) {
	sig, err := solanago.SignatureFromBase58(signature)
	if err != nil {
		return nil, fmt.Errorf("x402 solana: invalid signature: %w", err)
	}

	version := uint64(0)
	opts := &rpc.GetTransactionOpts{
		Commitment:                     commitmentFromString(commitment),
		MaxSupportedTransactionVersion: &version,
	}

	result, err := rpcutil.WithRetry(ctx, func() (*rpc.GetTransactionResult, error) {
		return execute(c.breaker, func() (*rpc.GetTransactionResult, error) {
			return c.client.GetTransaction(ctx, sig, opts)
		})
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}

	record := &TransactionRecord{
		Signature: signature,
		Slot:      result.Slot,
		BlockTime: blockTimeToPtr(result.BlockTime),
	}
	if result.Meta != nil {
		record.Failed = result.Meta.Err != nil
		record.PreTokenBalances = toTokenBalances(result.Meta.PreTokenBalances)
		record.PostTokenBalances = toTokenBalances(result.Meta.PostTokenBalances)
	}
	if tx, err := result.Transaction.GetTransaction(); err == nil && tx != nil {
		for _, key := range tx.Message.AccountKeys {
			record.AccountKeys = append(record.AccountKeys, key.String())
		}
	}

	return record, nil
}

func (c *RPCClient) GetAccountInfo(ctx context.Context, address string) (*AccountInfo, error) {
	pubkey, err := solanago.PublicKeyFromBase58(address)
	if err != nil {
		return nil, fmt.Errorf("x402 solana: invalid address: %w", err)
	}

	result, err := rpcutil.WithRetry(ctx, func() (*rpc.GetAccountInfoResult, error) {
		return execute(c.breaker, func() (*rpc.GetAccountInfoResult, error) {
			return c.client.GetAccountInfo(ctx, pubkey)
		})
	})
	if err != nil {
		if isAccountNotFoundError(err) {
			return nil, nil
		}
		return nil, err
	}
	if result == nil || result.Value == nil {
		return nil, nil
	}

	return &AccountInfo{
		Data:     result.Value.Data.GetBinary(),
		Owner:    result.Value.Owner.String(),
		Lamports: result.Value.Lamports,
	}, nil
}

// execute runs fn through the circuit breaker when one is configured,
// otherwise calls it directly.
func execute[T any](breaker *circuitbreaker.Manager, fn func() (T, error)) (T, error) {
	if breaker == nil {
		return fn()
	}
	result, err := breaker.Execute(circuitbreaker.ServiceLedgerRPC, func() (interface{}, error) {
		return fn()
	})
	var zero T
	if err != nil {
		return zero, err
	}
	if result == nil {
		return zero, nil
	}
	return result.(T), nil
}

func toTokenBalances(in []rpc.TokenBalance) []TokenBalance {
	out := make([]TokenBalance, 0, len(in))
	for _, b := range in {
		owner := ""
		if b.Owner != nil {
			owner = b.Owner.String()
		}
		out = append(out, TokenBalance{
			AccountIndex: int(b.AccountIndex),
			Mint:         b.Mint.String(),
			Owner:        owner,
			Amount:       b.UiTokenAmount.Amount,
			Decimals:     b.UiTokenAmount.Decimals,
		})
	}
	return out
}

func blockTimeToPtr(bt *solanago.UnixTimeSeconds) *int64 {
	if bt == nil {
		return nil
	}
	v := int64(*bt)
	return &v
}
