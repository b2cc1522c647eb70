package host

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"

	clierr "github.com/ggonzalez94/defi-adapters/internal/errors"
)

func decodeRevertData(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	if reason, err := abi.UnpackRevert(data); err == nil {
		return reason
	}
	if len(data) >= 4 {
		return fmt.Sprintf("custom error 0x%x", data[:4])
	}
	return fmt.Sprintf("0x%x", data)
}

// decodeRevertFromError pulls revert data out of a JSON-RPC error when the node sent any.
func decodeRevertFromError(err error) string {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return ""
	}
	switch v := dataErr.ErrorData().(type) {
	case string:
		if !strings.HasPrefix(v, "0x") {
			return ""
		}
		return decodeRevertData(common.FromHex(v))
	case []byte:
		return decodeRevertData(v)
	default:
		return ""
	}
}

// revertMessage is the short human form of a failed call.
func revertMessage(err error) string {
	if reason := decodeRevertFromError(err); reason != "" {
		return reason
	}
	return err.Error()
}

func wrapEVMExecutionError(code clierr.Code, message string, err error) error {
	if reason := decodeRevertFromError(err); reason != "" {
		return clierr.Wrap(code, fmt.Sprintf("%s: execution reverted: %s", message, reason), err)
	}
	return clierr.Wrap(code, message, err)
}
