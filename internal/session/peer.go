// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"fmt"
	"strconv"
	"strings"
)

// PeerRef addresses a channel by id and access hash.
type PeerRef struct {
	ID         int64
	AccessHash int64
}

// String encodes the reference as "id$accessHash".
func (p PeerRef) String() string {
	return strconv.FormatInt(p.ID, 10) + "$" + strconv.FormatInt(p.AccessHash, 10)
}

// ParsePeerRef decodes "id$accessHash".
func ParsePeerRef(raw string) (PeerRef, error) {
	idPart, hashPart, ok := strings.Cut(raw, "$")
	if !ok {
		return PeerRef{}, fmt.Errorf("%w: %q", ErrInvalidPeer, raw)
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return PeerRef{}, fmt.Errorf("%w: id: %v", ErrInvalidPeer, err)
	}
	hash, err := strconv.ParseInt(hashPart, 10, 64)
	if err != nil {
		return PeerRef{}, fmt.Errorf("%w: access hash: %v", ErrInvalidPeer, err)
	}
	return PeerRef{ID: id, AccessHash: hash}, nil
}
