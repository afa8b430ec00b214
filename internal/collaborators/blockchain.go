package collaborators

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ocx-labs/plaid/internal/module"
)

// Blockchain implements a generic JSON-RPC passthrough to an EVM node,
// grounded on original_source/runtime/plaid/src/apis/blockchain/evm/mod.rs.
// Only a fixed allow-list of read-only RPC methods is permitted; anything
// else is rejected before it reaches the node.
type Blockchain struct {
	RPCURL       string
	allowedCalls map[string]bool
	client       *http.Client
}

func NewBlockchain(rpcURL string, client *http.Client) *Blockchain {
	return &Blockchain{
		RPCURL: rpcURL,
		allowedCalls: map[string]bool{
			"eth_getBalance":         true,
			"eth_getTransactionByHash": true,
			"eth_blockNumber":        true,
			"eth_call":               true,
			"eth_getLogs":            true,
		},
		client: client,
	}
}

func (b *Blockchain) Name() string { return "blockchain" }

type jsonRPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

func (b *Blockchain) Call(ctx context.Context, caller *module.Module, operation, params string) (string, error) {
	if operation != "json_rpc" {
		return "", fmt.Errorf("%w: blockchain has no operation %q", ErrInvalidParams, operation)
	}
	var p struct {
		Method string        `json:"method"`
		Params []interface{} `json:"params"`
	}
	if err := json.Unmarshal([]byte(params), &p); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if !b.allowedCalls[p.Method] {
		return "", fmt.Errorf("%w: rpc method %q is not allow-listed", ErrInvalidParams, p.Method)
	}
	req := jsonRPCRequest{JSONRPC: "2.0", ID: 1, Method: p.Method, Params: p.Params}
	return doJSON(ctx, b.client, http.MethodPost, b.RPCURL, nil, req)
}
