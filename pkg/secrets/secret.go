// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package secrets keeps credentials sealed in memguard enclaves.
//
// A sealed Secret is encrypted at rest in process memory. Its plaintext
// exists only inside a locked buffer for the duration of a Use call, and
// that buffer is wiped when the call returns.
package secrets

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/awnumar/memguard"
)

// ErrEmpty indicates a Use call on a secret that holds nothing.
var ErrEmpty = errors.New("secret is empty")

// Secret is a sealed credential. The zero value and nil are empty.
//
// Thread Safety: Safe for concurrent use. Every Use opens its own buffer.
type Secret struct {
	enclave *memguard.Enclave
}

// New seals value. An empty value yields an empty Secret.
func New(value string) *Secret {
	return FromBytes([]byte(value))
}

// FromBytes seals b and wipes it. An empty b yields an empty Secret.
func FromBytes(b []byte) *Secret {
	if len(b) == 0 {
		return &Secret{}
	}
	// NewEnclave wipes b after copying it.
	return &Secret{enclave: memguard.NewEnclave(b)}
}

// IsZero reports whether s holds no credential.
func (s *Secret) IsZero() bool {
	return s == nil || s.enclave == nil
}

// Size is the plaintext length in bytes.
func (s *Secret) Size() int {
	if s.IsZero() {
		return 0
	}
	return s.enclave.Size()
}

// Use opens s and passes the plaintext to fn.
//
// Description:
//
//	The plaintext slice is only valid inside fn. It is destroyed as soon
//	as fn returns, so fn must copy anything it needs to keep.
//
// Outputs:
//   - error: ErrEmpty, an enclave failure, or whatever fn returns.
func (s *Secret) Use(fn func(plaintext []byte) error) error {
	if s.IsZero() {
		return ErrEmpty
	}
	buf, err := s.enclave.Open()
	if err != nil {
		return fmt.Errorf("open enclave: %w", err)
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}

// Purge wipes all memguard-allocated memory. Sealed secrets cannot be
// opened afterwards. Call it once during shutdown.
func Purge() {
	memguard.Purge()
	slog.Debug("Purged secure memory")
}
