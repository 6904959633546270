package solana

import (
	"context"
)

// fakeLedger is an in-memory Ledger used across this package's tests, in
// the teacher's style of faking the RPC collaborator rather than hitting
// the network.
type fakeLedger struct {
	transactions map[string]*TransactionRecord
	accounts     map[string]*AccountInfo
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		transactions: make(map[string]*TransactionRecord),
		accounts:     make(map[string]*AccountInfo),
	}
}

func (f *fakeLedger) GetTransaction(_ context.Context, signature string, _ string) (*TransactionRecord, error) {
	tx, ok := f.transactions[signature]
	if !ok {
		return nil, nil
	}
	return tx, nil
}

func (f *fakeLedger) GetAccountInfo(_ context.Context, address string) (*AccountInfo, error) {
	acct, ok := f.accounts[address]
	if !ok {
		return nil, nil
	}
	return acct, nil
}
