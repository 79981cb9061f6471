package hive

import (
	"context"
	"fmt"
	"time"

	"github.com/kamir/giftbot/internal/jsonrpc"
)

// Broadcaster hands unsigned operations to a signing service which holds
// the account keys and pushes the signed transaction to the chain.
type Broadcaster struct {
	rpc *jsonrpc.Client
}

type broadcastParams struct {
	Account    string      `json:"account"`
	Operations []Operation `json:"operations"`
}

type broadcastResult struct {
	ID string `json:"id"`
}

// NewBroadcaster creates a broadcaster for the signing service at url. A
// non-empty token is sent as a bearer credential.
func NewBroadcaster(url, token string, timeout time.Duration) *Broadcaster {
	rpc := jsonrpc.New(url, timeout)
	if token != "" {
		rpc.SetHeader("Authorization", "Bearer "+token)
	}
	return &Broadcaster{rpc: rpc}
}

// Broadcast signs ops with account's keys and returns the transaction id.
func (b *Broadcaster) Broadcast(ctx context.Context, account string, ops ...Operation) (string, error) {
	if len(ops) == 0 {
		return "", fmt.Errorf("broadcast: no operations")
	}
	var res broadcastResult
	err := b.rpc.Call(ctx, "broadcast_operations", broadcastParams{Account: account, Operations: ops}, &res)
	if err != nil {
		return "", err
	}
	return res.ID, nil
}
