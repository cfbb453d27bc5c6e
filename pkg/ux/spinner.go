// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"fmt"
	"io"
	"sync"
	"time"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const spinnerInterval = 80 * time.Millisecond

// Spinner animates a braille frame next to a message on stderr while a
// slow step runs. stdout stays clean for tables and JSON.
//
// A Spinner is single use: Start after Stop does nothing.
type Spinner struct {
	mu      sync.Mutex
	message string
	state   spinState

	quit chan struct{}
	done chan struct{}
}

type spinState int

const (
	spinIdle spinState = iota
	spinAnimating
	spinPrinted
	spinStopped
)

// NewSpinner returns an idle spinner.
func NewSpinner(message string) *Spinner {
	return &Spinner{message: message}
}

// Start shows the spinner. Without progress output (machine mode) the
// message is printed once as a PROGRESS line instead.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != spinIdle {
		return
	}
	if !ShouldShowProgress() {
		s.state = spinPrinted
		fmt.Fprintf(stderr(), "PROGRESS: %s\n", s.message)
		return
	}
	s.state = spinAnimating
	s.quit = make(chan struct{})
	s.done = make(chan struct{})
	go s.animate(stderr())
}

func (s *Spinner) animate(w io.Writer) {
	defer close(s.done)
	tick := time.NewTicker(spinnerInterval)
	defer tick.Stop()

	for n := 0; ; n++ {
		select {
		case <-s.quit:
			fmt.Fprint(w, "\r\033[K")
			return
		case <-tick.C:
		}
		s.mu.Lock()
		line := Styles.Highlight.Render(spinnerFrames[n%len(spinnerFrames)]) + " " + s.message
		s.mu.Unlock()
		fmt.Fprint(w, "\r"+line)
	}
}

// Stop clears the spinner line. It blocks until the animation has
// exited, so output written afterwards is not overdrawn.
func (s *Spinner) Stop() {
	s.mu.Lock()
	prev := s.state
	s.state = spinStopped
	s.mu.Unlock()

	if prev == spinAnimating {
		close(s.quit)
		<-s.done
	}
}

// UpdateMessage swaps the text shown next to the frame.
func (s *Spinner) UpdateMessage(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}

// WithSpinner runs fn behind a spinner, then prints a success or error
// line for message.
func WithSpinner(message string, fn func() error) error {
	spin := NewSpinner(message)
	spin.Start()
	err := fn()
	spin.Stop()

	if err != nil {
		Error(fmt.Sprintf("%s: %v", message, err))
		return err
	}
	Success(message)
	return nil
}
