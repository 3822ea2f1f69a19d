// Package proxy hands out ready-to-use proxy endpoints for browser sessions.
// Provisioning (geography, pool grouping, credentials) happens upstream; this
// package only cycles through whatever endpoints configuration supplies.
package proxy

import "sync"

// Handle is one usable proxy endpoint in scheme://host:port form. An empty
// handle means "direct connection".
type Handle struct {
	Server string
}

// Provider yields the next proxy handle for a fresh session.
type Provider interface {
	Next() Handle
}

// RoundRobin cycles through a fixed endpoint list. Safe for concurrent use.
type RoundRobin struct {
	mu      sync.Mutex
	servers []string
	next    int
}

// NewRoundRobin builds a provider over the configured endpoints. With no
// endpoints every handle is a direct connection.
func NewRoundRobin(servers []string) *RoundRobin {
	return &RoundRobin{servers: append([]string(nil), servers...)}
}

// Next returns the next handle in rotation.
func (p *RoundRobin) Next() Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.servers) == 0 {
		return Handle{}
	}
	h := Handle{Server: p.servers[p.next%len(p.servers)]}
	p.next++
	return h
}
