package serialmux

import (
	"bytes"
	"io"
	"sync"
	"time"
)

// MockSerialPort implements SerialPorter by replaying canned controller
// output. Writes (commands) are captured rather than discarded so tests and
// the dev collector can inspect them.
type MockSerialPort struct {
	reader io.ReadCloser

	mu      sync.Mutex
	written bytes.Buffer
	closed  bool
}

func (m *MockSerialPort) Read(p []byte) (int, error) {
	return m.reader.Read(p)
}

func (m *MockSerialPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.written.Write(p)
}

func (m *MockSerialPort) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.reader.Close()
}

// Written returns everything sent to the mock port so far.
func (m *MockSerialPort) Written() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.written.String()
}

// NewMockSerialMux creates a SerialMux backed by a mock port that emits the
// given lines in order, one every interval, looping forever. It stands in
// for the rig when running the collector with -dev.
func NewMockSerialMux(lines []string, interval time.Duration) *SerialMux[*MockSerialPort] {
	r, w := io.Pipe()
	mockPort := &MockSerialPort{reader: r}

	go func() {
		defer w.Close()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		i := 0
		for range ticker.C {
			if len(lines) == 0 {
				return
			}
			line := lines[i%len(lines)]
			if _, err := io.WriteString(w, line+"\n"); err != nil {
				return // pipe closed by Close
			}
			i++
		}
	}()

	// no settle delay: there is no board to reset
	return NewSerialMux(mockPort, 0)
}
