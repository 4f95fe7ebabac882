// Package oracletest provides scripted oracles for tests.
package oracletest

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrScripted is returned by Failing and by Script when a step says so.
var ErrScripted = errors.New("scripted oracle failure")

// Reply is one scripted response.
type Reply struct {
	Text string
	Err  error
}

// Script replays replies in order and records every prompt. When the
// script is exhausted the Fallback reply is used.
type Script struct {
	mu       sync.Mutex
	replies  []Reply
	Fallback Reply
	prompts  []string

	// Match, when set, answers prompts containing a key with the mapped
	// reply before the ordered replies are consulted.
	Match map[string]Reply
}

// NewScript returns a Script that replies with texts in order.
func NewScript(texts ...string) *Script {
	s := &Script{Fallback: Reply{Err: ErrScripted}}
	for _, t := range texts {
		s.replies = append(s.replies, Reply{Text: t})
	}
	return s
}

// Then appends a reply.
func (s *Script) Then(r Reply) *Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, r)
	return s
}

// Complete returns the next scripted reply.
func (s *Script) Complete(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prompts = append(s.prompts, prompt)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	for key, r := range s.Match {
		if strings.Contains(prompt, key) {
			return r.Text, r.Err
		}
	}
	if len(s.replies) == 0 {
		return s.Fallback.Text, s.Fallback.Err
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r.Text, r.Err
}

// Calls returns how many prompts were received.
func (s *Script) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

// Prompts returns a copy of the received prompts.
func (s *Script) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

// Failing is an oracle that always returns ErrScripted and counts calls.
type Failing struct {
	mu    sync.Mutex
	calls int
}

// Complete returns ErrScripted.
func (f *Failing) Complete(context.Context, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return "", ErrScripted
}

// Calls returns how many calls were made.
func (f *Failing) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
