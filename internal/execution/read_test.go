package execution

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/ethclient"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// newReadRPCServer answers eth_call with a packed balanceOf result and eth_getBalance
// with a fixed balance.
func newReadRPCServer(t *testing.T, balance *big.Int) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		switch req.Method {
		case "eth_call":
			var call struct {
				Input string `json:"input"`
				Data  string `json:"data"`
			}
			_ = json.Unmarshal(req.Params[0], &call)
			input := call.Input
			if input == "" {
				input = call.Data
			}
			if !strings.HasPrefix(input, "0x"+hex.EncodeToString(ERC20ABI.Methods["balanceOf"].ID)) {
				writeRPCError(w, req.ID, -32000, "execution reverted")
				return
			}
			encoded, err := ERC20ABI.Methods["balanceOf"].Outputs.Pack(balance)
			if err != nil {
				t.Fatalf("pack balance response: %v", err)
			}
			writeRPCResult(w, req.ID, "0x"+hex.EncodeToString(encoded))
		case "eth_getBalance":
			writeRPCResult(w, req.ID, fmt.Sprintf("0x%x", balance))
		default:
			writeRPCError(w, req.ID, -32601, fmt.Sprintf("method not supported in test: %s", req.Method))
		}
	}))
}

func writeRPCResult(w http.ResponseWriter, id json.RawMessage, result any) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%q}`, rawID(id), result)
}

func writeRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"error":{"code":%d,"message":%q}}`, rawID(id), code, message)
}

func rawID(id json.RawMessage) string {
	if len(id) == 0 {
		return "1"
	}
	return string(id)
}

func TestReadThroughEthclient(t *testing.T) {
	srv := newReadRPCServer(t, big.NewInt(123456))
	defer srv.Close()

	client, err := ethclient.Dial(srv.URL)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	bal, err := BalanceOf(context.Background(), client, testToken, testAccount)
	if err != nil {
		t.Fatalf("BalanceOf failed: %v", err)
	}
	if bal.Cmp(big.NewInt(123456)) != 0 {
		t.Fatalf("unexpected balance %s", bal)
	}
	native, err := NativeBalance(context.Background(), client, testAccount)
	if err != nil || native.Cmp(big.NewInt(123456)) != 0 {
		t.Fatalf("unexpected native balance %v err=%v", native, err)
	}
	if _, err := Decimals(context.Background(), client, testToken); err == nil {
		t.Fatal("expected revert for unsupported selector")
	}
}
