// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"context"
	"fmt"
)

// UnavailableDialer is used when no protocol client is linked in. Every dial fails, the
// phase returns to Idle and search runs in web-only mode.
type UnavailableDialer struct{}

func (UnavailableDialer) Dial(context.Context, DialOptions, Authorizer) (Conn, error) {
	return nil, fmt.Errorf("%w: no protocol client configured", ErrConnectFailure)
}
