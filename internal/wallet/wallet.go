// Package wallet reads Hive-Engine token balances and sends token transfers.
package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/kamir/giftbot/internal/hive"
	"github.com/kamir/giftbot/internal/jsonrpc"
)

// ContractsID is the custom_json id the Hive-Engine sidechain listens to.
const ContractsID = "ssc-mainnet-hive"

// TokenInfo is an account's holding of one token.
type TokenInfo struct {
	Balance float64
	Stake   float64
}

// Broadcaster submits operations on behalf of an account.
type Broadcaster interface {
	Broadcast(ctx context.Context, account string, ops ...hive.Operation) (string, error)
}

type Client struct {
	rpc         *jsonrpc.Client
	broadcaster Broadcaster
}

// New creates a wallet client. contractsURL is the Hive-Engine contracts RPC
// endpoint (for example https://api.hive-engine.com/rpc/contracts).
func New(contractsURL string, timeout time.Duration, broadcaster Broadcaster) *Client {
	return &Client{
		rpc:         jsonrpc.New(contractsURL, timeout),
		broadcaster: broadcaster,
	}
}

type findOneParams struct {
	Contract string            `json:"contract"`
	Table    string            `json:"table"`
	Query    map[string]string `json:"query"`
}

type balanceRow struct {
	Account string `json:"account"`
	Symbol  string `json:"symbol"`
	Balance string `json:"balance"`
	Stake   string `json:"stake"`
}

// GetTokenInfo returns account's balance and stake of token. The boolean is
// false when the account has never held the token.
func (c *Client) GetTokenInfo(ctx context.Context, account, token string) (TokenInfo, bool, error) {
	raw, err := c.rpc.CallRaw(ctx, "findOne", findOneParams{
		Contract: "tokens",
		Table:    "balances",
		Query:    map[string]string{"account": account, "symbol": token},
	})
	if err != nil {
		return TokenInfo{}, false, fmt.Errorf("token info %s/%s: %w", account, token, err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return TokenInfo{}, false, nil
	}

	var row balanceRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return TokenInfo{}, false, fmt.Errorf("token info %s/%s: decode: %w", account, token, err)
	}
	balance, err := parseAmount(row.Balance)
	if err != nil {
		return TokenInfo{}, false, fmt.Errorf("token info %s/%s: balance: %w", account, token, err)
	}
	stake, err := parseAmount(row.Stake)
	if err != nil {
		return TokenInfo{}, false, fmt.Errorf("token info %s/%s: stake: %w", account, token, err)
	}
	return TokenInfo{Balance: balance, Stake: stake}, true, nil
}

func parseAmount(s string) (float64, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

type transferPayload struct {
	Symbol   string `json:"symbol"`
	To       string `json:"to"`
	Quantity string `json:"quantity"`
	Memo     string `json:"memo"`
}

type contractAction struct {
	ContractName    string          `json:"contractName"`
	ContractAction  string          `json:"contractAction"`
	ContractPayload transferPayload `json:"contractPayload"`
}

// TransferOp builds the custom_json operation for a token transfer.
func TransferOp(from, to string, amount float64, token, memo string) (hive.Operation, error) {
	body, err := json.Marshal(contractAction{
		ContractName:   "tokens",
		ContractAction: "transfer",
		ContractPayload: transferPayload{
			Symbol:   token,
			To:       to,
			Quantity: FormatAmount(amount),
			Memo:     memo,
		},
	})
	if err != nil {
		return hive.Operation{}, err
	}
	return hive.NewOperation("custom_json", hive.CustomJSONOp{
		RequiredAuths:        []string{from},
		RequiredPostingAuths: []string{},
		ID:                   ContractsID,
		JSON:                 string(body),
	})
}

// Transfer sends amount of token from one account to another.
func (c *Client) Transfer(ctx context.Context, from, to string, amount float64, token, memo string) error {
	if amount <= 0 {
		return fmt.Errorf("transfer: amount must be positive, got %v", amount)
	}
	if c.broadcaster == nil {
		return fmt.Errorf("transfer: no broadcaster configured")
	}
	op, err := TransferOp(from, to, amount, token, memo)
	if err != nil {
		return fmt.Errorf("transfer: %w", err)
	}
	txID, err := c.broadcaster.Broadcast(ctx, from, op)
	if err != nil {
		return fmt.Errorf("transfer %s %s to %s: %w", FormatAmount(amount), token, to, err)
	}
	slog.Info("Token transfer broadcast", "from", from, "to", to, "amount", amount, "token", token, "tx_id", txID)
	return nil
}

// FormatAmount renders amount without trailing zeros, as the sidechain
// expects quantities as decimal strings.
func FormatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', -1, 64)
}
