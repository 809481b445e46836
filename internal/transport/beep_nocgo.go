//go:build !cgo

package transport

import (
	"context"
	"errors"
)

var errCGORequired = errors.New(`the beep transport requires CGO support for audio output.

This error occurs when trying to play audio with a binary built without CGO enabled.

To fix this issue:
1. Ensure CGO_ENABLED=1 (this is the default for native builds)
2. Install a C compiler:
   - Linux: sudo apt-get install build-essential
   - macOS: xcode-select --install
   - Windows: Install MinGW or Visual Studio Build Tools
3. Then rebuild cadenza`)

// Beep is the stub transport for cgo-less builds. Connecting always fails;
// everything else in the module still builds and tests against Fake.
type Beep struct{}

// NewBeep creates the stub transport.
func NewBeep() *Beep {
	return &Beep{}
}

// Connect implements Transport.
func (b *Beep) Connect(ctx context.Context, req ConnectRequest, events EventFunc) (Controls, error) {
	return nil, errCGORequired
}

// Disconnect implements Transport.
func (b *Beep) Disconnect() error {
	return nil
}
