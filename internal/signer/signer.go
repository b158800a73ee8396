// Package signer is the boundary to the signing backend. The core
// invokes it only after a request has been resolved Approved, and a
// failure here always downgrades the request to rejected.
package signer

import (
	"context"
	"encoding/json"

	"github.com/dappbridge/walletd/internal/wc"
)

// Binding carries the account context a request is signed under.
type Binding struct {
	Accounts []string
	ChainIDs []int64
}

// Signer produces the result payload for an approved request.
type Signer interface {
	// Sign handles one approved request. The payload passes through
	// from the wire untouched; the returned result is sent back to the
	// peer verbatim.
	Sign(ctx context.Context, kind wc.ActionKind, payload json.RawMessage, binding Binding) (json.RawMessage, error)
}
