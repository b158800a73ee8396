package signer

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/sha3"

	"github.com/dappbridge/walletd/internal/wc"
)

// Dev is a deterministic local signer for development and tests. It
// "signs" by hashing the payload with Keccak-256 under the first bound
// account. Real backends (keystore, hardware) implement Signer the
// same way.
type Dev struct{}

var _ Signer = (*Dev)(nil)

// NewDev creates a development signer.
func NewDev() *Dev {
	return &Dev{}
}

// Sign implements Signer.Sign
func (d *Dev) Sign(_ context.Context, kind wc.ActionKind, payload json.RawMessage, binding Binding) (json.RawMessage, error) {
	if len(binding.Accounts) == 0 {
		return nil, fmt.Errorf("no account bound for %s", kind)
	}

	switch kind {
	case wc.KindSignMessage, wc.KindSignTypedData, wc.KindSendTransaction:
		h := sha3.NewLegacyKeccak256()
		h.Write([]byte(binding.Accounts[0]))
		h.Write(payload)
		digest := h.Sum(nil)
		return json.Marshal(fmt.Sprintf("0x%x", digest))
	case wc.KindSwitchChain:
		// Chain switches have no signature; acknowledge with null.
		return json.RawMessage("null"), nil
	default:
		return nil, fmt.Errorf("unsupported action kind: %s", kind)
	}
}
