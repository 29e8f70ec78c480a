// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package fcp

import (
	"context"
	"errors"
	"sync"
)

// ErrPoolClosed is returned by SessionPool.Get after Close
var ErrPoolClosed = errors.New("fcp: session pool closed")

// SessionPoolDiscardFunc is called with the ID of a session the pool closed and the error that made
// it unusable, if any
type SessionPoolDiscardFunc func(uint64, error)

// SessionPoolConfig holds the settings of a SessionPool
type SessionPoolConfig struct {
	// MaxSessions bounds the number of sessions in use at once; 0 uses the parent's Parallelism
	MaxSessions int
	// DiscardFunc is called whenever a session is dropped from the pool
	DiscardFunc SessionPoolDiscardFunc
}

// SessionPool hands out one idle session per concurrent worker. Sessions are opened on demand
// with the parent session's config, logger and dialer, and sessions that failed are closed
// instead of being reused. The parent session itself is never handed out.
type SessionPool struct {
	config    SessionPoolConfig
	parent    *Connection
	slots     chan struct{}
	idle      []*Connection
	inUse     map[uint64]*Connection
	mutex     sync.Mutex
	closed    bool
	onceClose sync.Once
}

func NewSessionPool(parent *Connection, cfg SessionPoolConfig) *SessionPool {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = max(parent.Config().Parallelism, 1)
	}
	return &SessionPool{
		config: cfg,
		parent: parent,
		slots:  make(chan struct{}, cfg.MaxSessions),
		inUse:  make(map[uint64]*Connection),
	}
}

// Get returns an idle session, opening a new one if none is idle. It blocks while MaxSessions
// sessions are in use.
func (p *SessionPool) Get(ctx context.Context) (*Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	p.mutex.Lock()
	if p.closed {
		p.mutex.Unlock()
		<-p.slots
		return nil, ErrPoolClosed
	}
	if n := len(p.idle); n > 0 {
		conn := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.inUse[conn.Id()] = conn
		p.mutex.Unlock()
		return conn, nil
	}
	p.mutex.Unlock()
	conn, err := p.parent.Inherit()
	if err != nil {
		<-p.slots
		return nil, err
	}
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.closed {
		<-p.slots
		_ = conn.Close()
		return nil, ErrPoolClosed
	}
	p.inUse[conn.Id()] = conn
	p.parent.logger.Debug("opened pooled session",
		"component", "fcp",
		"connection_id", conn.Id(),
		"parent_id", p.parent.Id(),
	)
	return conn, nil
}

// Put returns a session obtained from Get. Sessions that failed or still have a request
// outstanding are closed.
func (p *SessionPool) Put(conn *Connection) {
	p.mutex.Lock()
	if _, ok := p.inUse[conn.Id()]; !ok {
		p.mutex.Unlock()
		return
	}
	delete(p.inUse, conn.Id())
	p.mutex.Unlock()
	err := conn.Err()
	reusable := err == nil && conn.pending == ""
	if reusable {
		// Unread response bodies would desynchronize the next request
		if drainErr := conn.drainPayload(); drainErr != nil {
			reusable = false
			err = drainErr
		}
	}
	p.mutex.Lock()
	if p.closed {
		reusable = false
	}
	if reusable {
		p.idle = append(p.idle, conn)
	}
	p.mutex.Unlock()
	<-p.slots
	if !reusable {
		p.discard(conn, err)
	}
}

// Idle returns the number of idle sessions
func (p *SessionPool) Idle() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.idle)
}

// InUse returns the number of sessions handed out and not yet returned
func (p *SessionPool) InUse() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.inUse)
}

// Close closes all idle sessions. Sessions in use are closed when they are returned.
func (p *SessionPool) Close() error {
	p.onceClose.Do(func() {
		p.mutex.Lock()
		p.closed = true
		idle := p.idle
		p.idle = nil
		p.mutex.Unlock()
		for _, conn := range idle {
			p.discard(conn, nil)
		}
	})
	return nil
}

func (p *SessionPool) discard(conn *Connection, err error) {
	_ = conn.Close()
	if p.config.DiscardFunc != nil {
		p.config.DiscardFunc(conn.Id(), err)
	}
}
