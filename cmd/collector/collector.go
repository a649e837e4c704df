package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/slipbench/internal/api"
	"github.com/banshee-data/slipbench/internal/config"
	"github.com/banshee-data/slipbench/internal/db"
	"github.com/banshee-data/slipbench/internal/monitoring"
	"github.com/banshee-data/slipbench/internal/serialmux"
	"github.com/banshee-data/slipbench/internal/sessionlog"
	"github.com/banshee-data/slipbench/internal/telemetry"
)

var (
	devMode       = flag.Bool("dev", false, "Replay fixture telemetry instead of opening a serial port")
	disableSerial = flag.Bool("disable-serial", false, "Run the HTTP server without any serial source")
	listen        = flag.String("listen", ":8080", "Listen address")
	port          = flag.String("port", "", "Serial port to use (default: autodetect)")
	baud          = flag.Int("baud", 0, "Serial baud rate (default: tuning value)")
	dbFile        = flag.String("db", "slipbench.db", "Session registry database file")
	dataDir       = flag.String("data", "data", "Directory for session CSV files")
	testName      = flag.String("test-name", "", "Session name (default: wheel_test_<timestamp>)")
	tuningFile    = flag.String("tuning", "", "Optional tuning JSON file")
	fixtures      = flag.String("fixtures", "fixtures.txt", "Fixture file for -dev mode")
)

// candidatePorts are probed in order when no -port is given. USB serial
// adapters enumerate as ttyUSB*, boards with native USB as ttyACM*.
var candidatePorts = []string{
	"/dev/ttyUSB0",
	"/dev/ttyUSB1",
	"/dev/ttyACM0",
	"/dev/ttyACM1",
}

// detectPort returns the first candidate device that exists.
func detectPort(candidates []string) (string, error) {
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("no serial device found (tried %v)", candidates)
}

// sessionName returns the explicit name, or a timestamped default.
func sessionName(explicit string, now time.Time) string {
	if explicit != "" {
		return explicit
	}
	return "wheel_test_" + now.Format("20060102_150405")
}

// persistChanBuffer is the lossless subscription depth for the session
// writer. It rides out per-row fsync latency; past it the monitor blocks and
// the serial buffer absorbs the burst.
const persistChanBuffer = 256

// monitorSerial runs the mux monitor for the life of the run. A port failure
// (instrument unplugged, IO error) is fatal to ingestion: it is returned to
// the caller and stop is invoked so the rest of the process shuts down
// cleanly instead of idling with an open session.
func monitorSerial(ctx context.Context, m serialmux.SerialMuxInterface, stop context.CancelFunc) error {
	err := m.Monitor(ctx)
	if err != nil && err != context.Canceled {
		log.Printf("serial connection lost: %v", err)
		stop()
		return err
	}
	return nil
}

func handleLine(w *sessionlog.Writer, raw string) error {
	line := telemetry.ParseLine(raw)
	if line == nil {
		return nil
	}
	if m, ok := line.(telemetry.Malformed); ok {
		monitoring.Logf("skipping malformed line (%s): %q", m.Reason, m.Raw)
		return nil
	}
	return w.Append(line)
}

func buildMux(tuning *config.Tuning) (serialmux.SerialMuxInterface, string, error) {
	if *disableSerial {
		return serialmux.NewDisabledSerialMux(), "", nil
	}
	if *devMode {
		data, err := os.ReadFile(*fixtures)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open fixtures file: %w", err)
		}
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		return serialmux.NewMockSerialMux(lines, 20*time.Millisecond), "mock", nil
	}

	portPath := *port
	if portPath == "" {
		var err error
		portPath, err = detectPort(candidatePorts)
		if err != nil {
			return nil, "", err
		}
		log.Printf("autodetected serial port %s", portPath)
	}

	baudRate := *baud
	if baudRate == 0 {
		baudRate = tuning.GetSerialBaudRate()
	}
	m, err := serialmux.NewRealSerialMux(portPath,
		serialmux.PortOptions{BaudRate: baudRate}, tuning.GetBootSettle())
	if err != nil {
		return nil, "", fmt.Errorf("failed to open serial port %s: %w", portPath, err)
	}
	return m, portPath, nil
}

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	var tuning *config.Tuning
	if *tuningFile != "" {
		var err error
		tuning, err = config.LoadTuning(*tuningFile)
		if err != nil {
			log.Fatalf("failed to load tuning: %v", err)
		}
	}

	mux, portPath, err := buildMux(tuning)
	if err != nil {
		log.Fatalf("failed to create serial mux: %v", err)
	}
	defer mux.Close()

	if err := mux.Initialize(); err != nil {
		log.Fatalf("failed to initialize controller: %v", err)
	}
	log.Printf("initialized controller on %q", portPath)

	registry, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer registry.Close()

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		log.Fatalf("failed to create data directory: %v", err)
	}
	started := time.Now()
	name := sessionName(*testName, started)
	csvPath := filepath.Join(*dataDir, name+".csv")
	writer, err := sessionlog.NewWriter(csvPath)
	if err != nil {
		log.Fatalf("failed to create session log: %v", err)
	}

	baudRate := *baud
	if baudRate == 0 {
		baudRate = tuning.GetSerialBaudRate()
	}
	runID, err := registry.CreateSession(&db.Session{
		Name:       name,
		FilePath:   csvPath,
		SerialPort: portPath,
		BaudRate:   baudRate,
		StartedAt:  started.UTC(),
	})
	if err != nil {
		log.Fatalf("failed to register session: %v", err)
	}
	log.Printf("session %s logging to %s", runID, csvPath)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the serial port
	var monitorErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		monitorErr = monitorSerial(ctx, mux, stop)
		log.Print("monitor routine terminated")
	}()

	// subscribe to the serial lines and persist them to the session log.
	// The subscription is lossless: lines must never be dropped between the
	// port and the session file.
	wg.Add(1)
	go func() {
		defer wg.Done()
		id, c := mux.SubscribeBuffered(persistChanBuffer)
		defer mux.Unsubscribe(id)
		for {
			select {
			case raw := <-c:
				if err := handleLine(writer, raw); err != nil {
					log.Printf("error writing telemetry: %v", err)
				}
			case <-ctx.Done():
				// drain anything still buffered so the session file holds
				// every line that made it off the port
				for {
					select {
					case raw := <-c:
						if err := handleLine(writer, raw); err != nil {
							log.Printf("error writing telemetry: %v", err)
						}
					default:
						log.Printf("subscribe routine terminated")
						return
					}
				}
			}
		}
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		status := func() api.SessionStatus {
			samples, comments := writer.Counts()
			return api.SessionStatus{
				RunID:       runID,
				Name:        name,
				FilePath:    csvPath,
				SerialPort:  portPath,
				Running:     ctx.Err() == nil,
				SampleRows:  samples,
				CommentRows: comments,
				UptimeSecs:  time.Since(started).Seconds(),
			}
		}

		httpMux := api.NewServer(mux, registry, status).ServeMux()
		mux.AttachAdminRoutes(httpMux)
		registry.AttachAdminRoutes(httpMux)

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(httpMux),
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()

	samples, comments := writer.Counts()
	if err := writer.Close(); err != nil {
		log.Printf("failed to close session log: %v", err)
	}
	if err := registry.FinishSession(runID, time.Now().UTC(), samples, comments); err != nil {
		log.Printf("failed to finish session: %v", err)
	}
	log.Printf("Graceful shutdown complete: %d samples, %d comments", samples, comments)

	if monitorErr != nil {
		// the deferred closes never run past os.Exit
		registry.Close()
		mux.Close()
		log.Printf("exiting after serial connection loss: %v", monitorErr)
		os.Exit(1)
	}
}
