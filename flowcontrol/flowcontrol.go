// Package flowcontrol implements per-stream and connection-level
// hop-by-hop flow control windows.
package flowcontrol

import "github.com/katzenpost/strand/errs"

// Controller tracks per-stream windows and one connection-wide window.
// The connection-level window always dominates: a stream with a large
// window can still be starved by a small connection window.
type Controller struct {
	streamWindows     map[uint32]int64
	connectionWindow  int64
	defaultStreamSize int64
}

// NewController returns a controller with the given connection window and
// default per-stream window, both in bytes.
func NewController(connectionWindow, defaultStreamWindow int64) *Controller {
	return &Controller{
		streamWindows:     make(map[uint32]int64),
		connectionWindow:  connectionWindow,
		defaultStreamSize: defaultStreamWindow,
	}
}

// AddStream registers id with the configured default window.
func (c *Controller) AddStream(id uint32) {
	c.streamWindows[id] = c.defaultStreamSize
}

// RemoveStream drops id's window bookkeeping.
func (c *Controller) RemoveStream(id uint32) {
	delete(c.streamWindows, id)
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// Available returns min(stream_window, connection_window) for id.
func (c *Controller) Available(id uint32) int64 {
	return min64(c.streamWindows[id], c.connectionWindow)
}

// Consume debits n bytes from both the stream and connection windows. It
// fails with FlowControlBlocked if n exceeds the currently available
// budget; on success both windows are debited (saturating at 0).
func (c *Controller) Consume(id uint32, n int64) error {
	if n > c.Available(id) {
		return &errs.FlowControlBlocked{ID: id}
	}
	c.streamWindows[id] = satSub(c.streamWindows[id], n)
	c.connectionWindow = satSub(c.connectionWindow, n)
	return nil
}

// Release credits n bytes back to both windows.
func (c *Controller) Release(id uint32, n int64) {
	c.streamWindows[id] += n
	c.connectionWindow += n
}

// UpdateWindow adjusts the stream window for id by delta (which may be
// negative), floored at 0.
func (c *Controller) UpdateWindow(id uint32, delta int64) {
	c.streamWindows[id] = satSub(c.streamWindows[id], -delta)
}

// UpdateConnectionWindow adjusts the connection-wide window by delta
// (which may be negative), floored at 0. A WINDOW_UPDATE naming the
// reserved stream id 0 targets this window instead of a per-stream one.
func (c *Controller) UpdateConnectionWindow(delta int64) {
	c.connectionWindow = satSub(c.connectionWindow, -delta)
}

func satSub(a, b int64) int64 {
	r := a - b
	if r < 0 {
		return 0
	}
	return r
}
