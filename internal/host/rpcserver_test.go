package host

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type testRPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

// testRPC is a JSON-RPC node good enough for ethclient: calls succeed unless their
// target is listed in reverts, and every raw transaction gets a receipt.
type testRPC struct {
	*httptest.Server
	t *testing.T

	chainID string
	// reverts maps lowercase target addresses to a revert reason.
	reverts       map[string]string
	failReceipts  bool
	missingBlocks bool

	mu      sync.Mutex
	sent    []*types.Transaction
	methods []string
}

func newTestRPC(t *testing.T, chainID int64) *testRPC {
	t.Helper()
	rpc := &testRPC{t: t, chainID: fmt.Sprintf("0x%x", chainID), reverts: map[string]string{}}
	rpc.Server = httptest.NewServer(http.HandlerFunc(rpc.serve))
	t.Cleanup(rpc.Close)
	return rpc
}

func (r *testRPC) revert(target common.Address, reason string) {
	r.reverts[strings.ToLower(target.Hex())] = reason
}

func (r *testRPC) Sent() []*types.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*types.Transaction(nil), r.sent...)
}

func (r *testRPC) Count(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.methods {
		if m == method {
			n++
		}
	}
	return n
}

func (r *testRPC) serve(w http.ResponseWriter, req *http.Request) {
	defer req.Body.Close()
	var in testRPCRequest
	if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	r.mu.Lock()
	r.methods = append(r.methods, in.Method)
	r.mu.Unlock()

	switch in.Method {
	case "eth_chainId":
		r.result(w, in.ID, r.chainID)
	case "eth_call", "eth_estimateGas":
		var arg struct {
			To string `json:"to"`
		}
		if len(in.Params) > 0 {
			_ = json.Unmarshal(in.Params[0], &arg)
		}
		if reason, ok := r.reverts[strings.ToLower(arg.To)]; ok {
			r.fail(w, in.ID, 3, "execution reverted", "0x"+common.Bytes2Hex(encodeErrorString(r.t, reason)))
			return
		}
		if in.Method == "eth_call" {
			r.result(w, in.ID, "0x")
			return
		}
		r.result(w, in.ID, "0x5208")
	case "eth_maxPriorityFeePerGas":
		r.result(w, in.ID, "0x77359400")
	case "eth_getBlockByNumber":
		if r.missingBlocks {
			r.fail(w, in.ID, -32000, "block unavailable", nil)
			return
		}
		r.result(w, in.ID, map[string]any{"baseFeePerGas": "0x3b9aca00"})
	case "eth_getTransactionCount":
		r.mu.Lock()
		n := len(r.sent)
		r.mu.Unlock()
		r.result(w, in.ID, fmt.Sprintf("0x%x", n))
	case "eth_sendRawTransaction":
		var raw string
		_ = json.Unmarshal(in.Params[0], &raw)
		tx := new(types.Transaction)
		if err := tx.UnmarshalBinary(common.FromHex(raw)); err != nil {
			r.fail(w, in.ID, -32602, err.Error(), nil)
			return
		}
		r.mu.Lock()
		r.sent = append(r.sent, tx)
		r.mu.Unlock()
		r.result(w, in.ID, tx.Hash().Hex())
	case "eth_getTransactionReceipt":
		var hash string
		_ = json.Unmarshal(in.Params[0], &hash)
		status := "0x1"
		if r.failReceipts {
			status = "0x0"
		}
		r.result(w, in.ID, map[string]any{
			"status":            status,
			"cumulativeGasUsed": "0x5208",
			"gasUsed":           "0x5208",
			"logsBloom":         "0x" + strings.Repeat("0", 512),
			"logs":              []any{},
			"transactionHash":   hash,
		})
	default:
		r.fail(w, in.ID, -32601, fmt.Sprintf("method not supported in test: %s", in.Method), nil)
	}
}

func (r *testRPC) result(w http.ResponseWriter, id json.RawMessage, result any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": decodeRPCID(id), "result": result})
}

func (r *testRPC) fail(w http.ResponseWriter, id json.RawMessage, code int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	e := map[string]any{"code": code, "message": message}
	if data != nil {
		e["data"] = data
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": decodeRPCID(id), "error": e})
}

func decodeRPCID(raw json.RawMessage) any {
	if len(raw) == 0 {
		return 1
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return 1
	}
	return out
}

func encodeErrorString(t *testing.T, reason string) []byte {
	t.Helper()
	stringTy, err := abi.NewType("string", "", nil)
	if err != nil {
		t.Fatalf("create abi string type: %v", err)
	}
	encoded, err := abi.Arguments{{Type: stringTy}}.Pack(reason)
	if err != nil {
		t.Fatalf("pack revert reason: %v", err)
	}
	return append(common.FromHex("0x08c379a0"), encoded...)
}
