package serialmux

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

// testSerialPort implements SerialPorter for exercising the mux without
// hardware. Reads drain a fixed buffer and then block until the port closes.
type testSerialPort struct {
	mu       sync.Mutex
	readData []byte
	readPos  int
	written  bytes.Buffer
	writeErr error
	shortN   int // if > 0, Write reports this count instead of len(p)
	closed   bool
}

func newTestSerialPort(data string) *testSerialPort {
	return &testSerialPort{readData: []byte(data)}
}

func (p *testSerialPort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, io.EOF
	}
	if p.readPos >= len(p.readData) {
		// simulate waiting for more bytes from the device
		p.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		p.mu.Lock()
		if p.closed {
			return 0, io.EOF
		}
		return 0, nil
	}
	n := copy(buf, p.readData[p.readPos:])
	p.readPos += n
	return n, nil
}

func (p *testSerialPort) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	n, err := p.written.Write(data)
	if p.shortN > 0 {
		return p.shortN, err
	}
	return n, err
}

func (p *testSerialPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *testSerialPort) writtenString() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

func TestMonitorFansOutLines(t *testing.T) {
	port := newTestSerialPort("# boot\n1,2,3,4,5,1,6,7,8\n")
	mux := NewSerialMux(port, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	id, ch := mux.Subscribe()
	defer mux.Unsubscribe(id)

	done := make(chan error, 1)
	go func() { done <- mux.Monitor(ctx) }()

	var got []string
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case line := <-ch:
			got = append(got, line)
		case <-timeout:
			t.Fatalf("timed out waiting for lines, got %v", got)
		}
	}
	if got[0] != "# boot" || got[1] != "1,2,3,4,5,1,6,7,8" {
		t.Errorf("unexpected lines: %v", got)
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Errorf("Monitor returned %v, want context.Canceled", err)
	}
}

func TestMonitorDropsLinesForSlowSubscriber(t *testing.T) {
	// an unread subscriber channel must not stall the monitor loop
	port := newTestSerialPort(strings.Repeat("line\n", 20))
	mux := NewSerialMux(port, 0)

	id, _ := mux.Subscribe() // never read from
	defer mux.Unsubscribe(id)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := mux.Monitor(ctx); err != context.DeadlineExceeded {
		t.Errorf("Monitor returned %v, want deadline exceeded", err)
	}
}

func TestBufferedSubscriberReceivesEveryLine(t *testing.T) {
	// the writer of record must see every framed line even when each one
	// takes longer to persist than the next takes to arrive
	const n = 120
	var feed strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&feed, "%d,2,3,4,5,1,6,7,8\n", i)
	}
	port := newTestSerialPort(feed.String())
	mux := NewSerialMux(port, 0)

	id, ch := mux.SubscribeBuffered(8)
	defer mux.Unsubscribe(id)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	timeout := time.After(10 * time.Second)
	for got := 0; got < n; got++ {
		select {
		case line := <-ch:
			time.Sleep(time.Millisecond) // model the per-row flush+fsync
			if !strings.HasPrefix(line, fmt.Sprintf("%d,", got)) {
				t.Fatalf("line %d = %q, lines dropped or reordered", got, line)
			}
		case <-timeout:
			t.Fatalf("received %d of %d lines", got, n)
		}
	}
}

func TestBufferedSubscriberDoesNotBlockShutdown(t *testing.T) {
	// a lossless subscriber that stops reading must not wedge the monitor
	// past context cancellation
	port := newTestSerialPort(strings.Repeat("1,2,3,4,5,1,6,7,8\n", 50))
	mux := NewSerialMux(port, 0)

	id, _ := mux.SubscribeBuffered(2) // never read from
	defer mux.Unsubscribe(id)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := mux.Monitor(ctx); err != context.DeadlineExceeded {
		t.Errorf("Monitor = %v, want deadline exceeded", err)
	}
}

func TestSendCommandAppendsNewline(t *testing.T) {
	port := newTestSerialPort("")
	mux := NewSerialMux(port, 0)

	if err := mux.SendCommand("S1"); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if got := port.writtenString(); got != "S1\n" {
		t.Errorf("wrote %q, want %q", got, "S1\n")
	}

	if err := mux.SendCommand("T=123\n"); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if got := port.writtenString(); got != "S1\nT=123\n" {
		t.Errorf("wrote %q, newline must not double", got)
	}
}

func TestSendCommandShortWrite(t *testing.T) {
	port := newTestSerialPort("")
	port.shortN = 1
	mux := NewSerialMux(port, 0)

	if err := mux.SendCommand("S1"); err != ErrWriteFailed {
		t.Errorf("SendCommand = %v, want ErrWriteFailed", err)
	}
}

func TestInitializeSyncsClockAndStartsStream(t *testing.T) {
	port := newTestSerialPort("")
	mux := NewSerialMux(port, 0)

	if err := mux.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	got := port.writtenString()
	if !strings.HasPrefix(got, "T=") {
		t.Errorf("first command %q, want clock sync", got)
	}
	if !strings.Contains(got, "\nS1\n") {
		t.Errorf("commands %q missing stream start", got)
	}
}

func TestCloseClosesSubscribers(t *testing.T) {
	port := newTestSerialPort("")
	mux := NewSerialMux(port, 0)

	_, ch := mux.Subscribe()
	if err := mux.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := <-ch; ok {
		t.Error("subscriber channel still open after Close")
	}
	if !port.closed {
		t.Error("underlying port not closed")
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	mux := NewSerialMux(newTestSerialPort(""), 0)
	id, ch := mux.Subscribe()
	mux.Unsubscribe(id)
	mux.Unsubscribe(id) // second call must not panic
	if _, ok := <-ch; ok {
		t.Error("channel open after Unsubscribe")
	}
}

func TestDisabledSerialMux(t *testing.T) {
	d := NewDisabledSerialMux()

	if err := d.Initialize(); err != nil {
		t.Errorf("Initialize: %v", err)
	}
	if err := d.SendCommand("anything"); err != nil {
		t.Errorf("SendCommand: %v", err)
	}

	_, ch := d.Subscribe()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.Monitor(ctx); err != context.DeadlineExceeded {
		t.Errorf("Monitor = %v", err)
	}

	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := <-ch; ok {
		t.Error("subscriber channel open after Close")
	}

	// subscribing after close yields an already-closed channel
	_, ch2 := d.Subscribe()
	if _, ok := <-ch2; ok {
		t.Error("post-close Subscribe returned an open channel")
	}
	_, ch3 := d.SubscribeBuffered(4)
	if _, ok := <-ch3; ok {
		t.Error("post-close SubscribeBuffered returned an open channel")
	}
}

func TestMockSerialMuxReplaysLines(t *testing.T) {
	mux := NewMockSerialMux([]string{"1,2,3,4,5,1,6,7,8"}, 5*time.Millisecond)
	defer mux.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	id, ch := mux.Subscribe()
	defer mux.Unsubscribe(id)

	select {
	case line := <-ch:
		if line != "1,2,3,4,5,1,6,7,8" {
			t.Errorf("got %q", line)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no line replayed")
	}
}
