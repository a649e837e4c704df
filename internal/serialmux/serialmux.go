// Package serialmux provides an abstraction over the rig controller's serial
// port with the ability for multiple clients to subscribe to lines from the
// port and send commands to the single controller.
package serialmux

import (
	"bufio"
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"tailscale.com/tsweb"
)

var ErrWriteFailed = fmt.Errorf("failed to write to serial port")

var sendCommandTemplate = template.Must(template.New("send-command").Parse(`<!DOCTYPE html>
<html><head><title>rig console</title></head>
<body>
<h1>Rig controller console</h1>
<form method="POST" action="send-command-api">
<input type="text" name="command" placeholder="command" autofocus>
<button type="submit">Send</button>
</form>
<pre id="tail"></pre>
<script>
const tail = document.getElementById("tail");
const src = new EventSource("tail");
src.onmessage = (e) => { tail.textContent += e.data + "\n"; };
</script>
</body></html>
`))

// SerialMux is a generic serial port multiplexer that allows multiple clients
// to subscribe to lines from a single serial port.
type SerialMux[T SerialPorter] struct {
	port         T
	settle       time.Duration
	subscribers  map[string]subscriber
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	closing      bool
	closingMu    sync.Mutex
}

// subscriber is one fan-out target. Lossless subscribers get blocking sends;
// everyone else gets best-effort delivery and may miss lines when slow.
type subscriber struct {
	ch       chan string
	lossless bool
}

// SerialMuxInterface defines the interface for the SerialMux type.
type SerialMuxInterface interface {
	// Subscribe creates a new channel for receiving line events from the
	// serial port. The channel ID identifies the channel when unsubscribing.
	// Delivery is best-effort: a subscriber that falls behind misses lines.
	Subscribe() (string, chan string)
	// SubscribeBuffered creates a lossless subscription for a writer of
	// record: the monitor blocks rather than dropping when the buffer of n
	// lines fills, so backpressure reaches the serial buffer instead of
	// losing telemetry.
	SubscribeBuffered(n int) (string, chan string)
	// Unsubscribe removes a channel from the list of subscribers.
	Unsubscribe(string)
	// SendCommand writes the provided command to the serial port.
	SendCommand(string) error
	// Monitor reads lines from the serial port and fans them out to
	// subscriber channels until the context is cancelled.
	Monitor(context.Context) error
	// Close closes all subscribed channels and closes the serial port.
	Close() error

	Initialize() error

	// AttachAdminRoutes attaches admin debugging endpoints to the given HTTP
	// mux served at /debug/. These routes are accessible only over
	// localhost/via Tailscale and are not publicly accessible.
	AttachAdminRoutes(*http.ServeMux)
}

// NewSerialMux creates a SerialMux instance backed by the given port. settle
// is how long Initialize waits for the controller to finish its reset; the
// board restarts when the port is opened.
func NewSerialMux[T SerialPorter](port T, settle time.Duration) *SerialMux[T] {
	return &SerialMux[T]{
		port:        port,
		settle:      settle,
		subscribers: make(map[string]subscriber),
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (s *SerialMux[T]) Subscribe() (string, chan string) {
	return s.subscribe(subscriber{ch: make(chan string)})
}

// SubscribeBuffered creates a lossless subscription with a buffer of n lines.
// The buffer smooths per-line latency spikes (a durable write, say); once it
// fills, the monitor blocks on this subscriber instead of dropping.
func (s *SerialMux[T]) SubscribeBuffered(n int) (string, chan string) {
	return s.subscribe(subscriber{ch: make(chan string, n), lossless: true})
}

func (s *SerialMux[T]) subscribe(sub subscriber) (string, chan string) {
	id := randomID()
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = sub
	return id, sub.ch
}

// Unsubscribe removes a subscriber from the serial mux.
func (s *SerialMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if sub, ok := s.subscribers[id]; ok {
		close(sub.ch)
		delete(s.subscribers, id)
	}
}

// Initialize waits out the controller's post-open reset, syncs its clock,
// and enables telemetry streaming. Opening the port toggles DTR, which
// resets the board, so nothing can be sent until the settle delay elapses.
func (s *SerialMux[T]) Initialize() error {
	time.Sleep(s.settle)

	// sync the controller clock to the current UNIX time
	if err := s.SendCommand(fmt.Sprintf("T=%d", time.Now().Unix())); err != nil {
		return fmt.Errorf("failed to synchronize clock: %w", err)
	}

	// start telemetry streaming
	if err := s.SendCommand("S1"); err != nil {
		return fmt.Errorf("failed to start telemetry stream: %w", err)
	}

	return nil
}

// SendCommand sends a command to the serial port.
func (s *SerialMux[T]) SendCommand(command string) error {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}
	n, err := s.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// Monitor frames bytes from the serial port into lines and fans them out to
// subscribers. A partial read produces no line; a scanner error terminates
// the monitor and is returned to the caller.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(s.port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// read from the serial port in a goroutine so the blocking scan.Scan
	// cannot interfere with the outer loop awaiting context cancellation.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			// channel closed means the port hit EOF or the context ended
			if !ok {
				if err := scan.Err(); err != nil {
					return err
				}
				return nil
			}
			s.closingMu.Lock()
			if s.closing {
				s.closingMu.Unlock()
				return nil
			}
			s.closingMu.Unlock()

			s.subscriberMu.Lock()
			for _, sub := range s.subscribers {
				if sub.lossless {
					// block until the writer of record takes the line.
					// While this waits the scanner stops reading, so the
					// serial buffer absorbs the burst instead of the line
					// being lost.
					select {
					case sub.ch <- line:
					case <-ctx.Done():
					}
					continue
				}
				select {
				case sub.ch <- line:
				default:
					// skip a full/blocked subscriber so the fan-out never stalls
				}
			}
			s.subscriberMu.Unlock()
		}
	}
}

func (s *SerialMux[T]) Close() error {
	s.closingMu.Lock()
	s.closing = true
	s.closingMu.Unlock()

	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for id, sub := range s.subscribers {
		close(sub.ch)
		delete(s.subscribers, id)
	}
	return s.port.Close()
}

func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	// Command console with a live tail of the serial feed.
	debug.HandleFunc("send-command", "send a command to the rig controller", func(w http.ResponseWriter, r *http.Request) {
		buf := bytes.NewBuffer(nil)
		if err := sendCommandTemplate.Execute(buf, nil); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
			return
		}
		io.Copy(w, buf)
	})

	// API endpoint to write a command to the serial port
	debug.HandleSilentFunc("send-command-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		if err := s.SendCommand(command); err != nil {
			http.Error(w, "Failed to write command", http.StatusInternalServerError)
			return
		}
		io.WriteString(w, fmt.Sprintf("Wrote command %q to serial port", command))
	})

	// Server-Sent Events stream of lines coming from the serial port.
	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // disable buffering for nginx

		id, c := s.Subscribe()
		defer s.Unsubscribe(id)

		// initial ping to establish the connection
		w.Write([]byte(": ping\n\n"))
		w.(http.Flusher).Flush()

		for {
			select {
			case payload, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				w.(http.Flusher).Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
