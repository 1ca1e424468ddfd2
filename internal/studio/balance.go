package studio

import "sync"

// BalanceCache owns the client's view of the credit balance. The only
// mutation path is Set with a server-returned authoritative value;
// consumers read via Balance or a Subscribe channel. Local arithmetic on
// the cached value is deliberately impossible: other sessions of the
// same user may be spending concurrently, so subtraction would drift.
type BalanceCache struct {
	mu      sync.Mutex
	balance int
	known   bool
	subs    []chan int
}

func NewBalanceCache() *BalanceCache {
	return &BalanceCache{}
}

// Set overwrites the cached balance with an authoritative server value
// and notifies subscribers. Setting the same value twice is a no-op
// after the first application.
func (c *BalanceCache) Set(balance int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.known && c.balance == balance {
		return
	}
	c.balance = balance
	c.known = true
	for _, ch := range c.subs {
		// Non-blocking: a slow subscriber keeps only the freshest value.
		select {
		case ch <- balance:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- balance:
			default:
			}
		}
	}
}

// Balance returns the cached balance and whether any authoritative
// value has been observed yet.
func (c *BalanceCache) Balance() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balance, c.known
}

// Subscribe returns a channel receiving each new authoritative balance.
// The channel is buffered; readers that fall behind see only the latest.
func (c *BalanceCache) Subscribe() <-chan int {
	ch := make(chan int, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, ch)
	if c.known {
		ch <- c.balance
	}
	return ch
}

// ApplyBatch reconciles the cache after a batch: the last successful
// gateway response's balance wins. A batch with zero successes leaves
// the cache untouched, since no authoritative value was returned.
func (c *BalanceCache) ApplyBatch(res *BatchResult) {
	if res == nil || res.Succeeded == 0 {
		return
	}
	c.Set(res.NewBalance)
}
