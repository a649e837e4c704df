package serialmux

import (
	"context"
	"net/http"
	"sync"
)

// DisabledSerialMux is a no-op SerialMux implementation used when the rig
// hardware is absent (for --disable-serial). It allows the HTTP server and
// admin routes to run without a real controller. Subscribers are tracked so
// their channels can be deterministically closed on Unsubscribe() or
// Close(), letting readers unblock predictably during shutdown.
type DisabledSerialMux struct {
	mu          sync.Mutex
	subscribers map[string]chan string
	closing     bool
}

func NewDisabledSerialMux() *DisabledSerialMux {
	return &DisabledSerialMux{
		subscribers: make(map[string]chan string),
	}
}

func (d *DisabledSerialMux) Subscribe() (string, chan string) {
	return d.subscribe(make(chan string))
}

// SubscribeBuffered matches the lossless subscription of the real mux. No
// lines ever flow here, so the buffer only exists to satisfy callers.
func (d *DisabledSerialMux) SubscribeBuffered(n int) (string, chan string) {
	return d.subscribe(make(chan string, n))
}

func (d *DisabledSerialMux) subscribe(ch chan string) (string, chan string) {
	id := randomID()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		// already closing: hand back a closed channel so callers don't block
		close(ch)
		return id, ch
	}
	d.subscribers[id] = ch
	return id, ch
}

func (d *DisabledSerialMux) Unsubscribe(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.subscribers[id]; ok {
		close(ch)
		delete(d.subscribers, id)
	}
}

// SendCommand silently accepts and drops commands.
func (d *DisabledSerialMux) SendCommand(string) error { return nil }

// Initialize is a no-op: there is no board to settle or sync.
func (d *DisabledSerialMux) Initialize() error { return nil }

// Monitor produces no lines and blocks until the context ends.
func (d *DisabledSerialMux) Monitor(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (d *DisabledSerialMux) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closing = true
	for id, ch := range d.subscribers {
		close(ch)
		delete(d.subscribers, id)
	}
	return nil
}

// AttachAdminRoutes intentionally registers nothing: with no port there is
// nothing to tail or command.
func (d *DisabledSerialMux) AttachAdminRoutes(*http.ServeMux) {}
