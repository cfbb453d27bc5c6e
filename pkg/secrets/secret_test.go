// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package secrets

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecret_Use(t *testing.T) {
	s := New("hmac-key")
	require.False(t, s.IsZero())
	assert.Equal(t, 8, s.Size())

	var got string
	err := s.Use(func(p []byte) error {
		got = string(p)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "hmac-key", got)

	// Opening twice yields the same plaintext.
	require.NoError(t, s.Use(func(p []byte) error {
		assert.Equal(t, []byte("hmac-key"), p)
		return nil
	}))
}

func TestSecret_Empty(t *testing.T) {
	tests := []struct {
		name string
		s    *Secret
	}{
		{"nil", nil},
		{"zero value", &Secret{}},
		{"empty string", New("")},
		{"empty bytes", FromBytes(nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.s.IsZero() {
				t.Errorf("IsZero() = false, want true")
			}
			if n := tt.s.Size(); n != 0 {
				t.Errorf("Size() = %d, want 0", n)
			}
			called := false
			err := tt.s.Use(func([]byte) error { called = true; return nil })
			if !errors.Is(err, ErrEmpty) {
				t.Errorf("Use() error = %v, want %v", err, ErrEmpty)
			}
			if called {
				t.Errorf("Use() ran fn on an empty secret")
			}
		})
	}
}

func TestFromBytes_WipesSource(t *testing.T) {
	src := []byte("influx-token")
	s := FromBytes(src)

	assert.Equal(t, make([]byte, len("influx-token")), src)
	require.NoError(t, s.Use(func(p []byte) error {
		assert.True(t, bytes.Equal(p, []byte("influx-token")))
		return nil
	}))
}

func TestSecret_UsePropagatesError(t *testing.T) {
	boom := errors.New("boom")
	err := New("k").Use(func([]byte) error { return boom })
	assert.ErrorIs(t, err, boom)
}
