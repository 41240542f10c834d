package sif

import "sync"

// completion is a wait/notify primitive resuming a blocked caller when
// an asynchronous response arrives. complete releases all current and
// future waiters until reinit starts a new generation.
type completion struct {
	mu   sync.Mutex
	ch   chan struct{}
	done bool
}

func newCompletion() *completion {
	return &completion{ch: make(chan struct{})}
}

// reinit starts a new generation; subsequent waits block until the
// next complete.
func (c *completion) reinit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		c.ch = make(chan struct{})
		c.done = false
	}
}

// complete releases all waiters of the current generation.
func (c *completion) complete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.done {
		close(c.ch)
		c.done = true
	}
}

// wait blocks until the current generation completes. There is no
// timeout and no cancellation.
func (c *completion) wait() {
	c.mu.Lock()
	ch := c.ch
	c.mu.Unlock()
	<-ch
}
