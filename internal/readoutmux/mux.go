// Package readoutmux publishes the device's readout lines to any number of
// subscribers and, optionally, to a UART.
package readoutmux

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"go.bug.st/serial"
	"tailscale.com/tsweb"

	"github.com/banshee-data/pulse.lab/internal/monitoring"
	"github.com/banshee-data/pulse.lab/internal/ppg/sim"
)

var ErrWriteFailed = errors.New("failed to write readout line")

// subscriberBuffer is the number of lines a slow subscriber may lag behind
// before lines are dropped for it.
const subscriberBuffer = 16

// Mux fans readout lines out to subscribers. Lines are also written to port
// when one is attached.
type Mux struct {
	port   io.WriteCloser
	portMu sync.Mutex

	subscriberMu sync.Mutex
	subscribers  map[string]chan string
	closing      bool

	latestMu sync.Mutex
	latest   string
}

var _ sim.Sink = (*Mux)(nil)

// New returns a Mux. port may be nil, in which case lines only go to
// subscribers.
func New(port io.WriteCloser) *Mux {
	return &Mux{
		port:        port,
		subscribers: make(map[string]chan string),
	}
}

// OpenSerialPort opens the UART at path with opts.
func OpenSerialPort(path string, opts PortOptions) (serial.Port, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}
	return port, nil
}

// NewSerialMux opens the UART at path and returns a Mux writing to it.
func NewSerialMux(path string, opts PortOptions) (*Mux, error) {
	port, err := OpenSerialPort(path, opts)
	if err != nil {
		return nil, err
	}
	return New(port), nil
}

// Subscribe returns an id and a channel receiving every published line.
// After Close the returned channel is already closed.
func (m *Mux) Subscribe() (string, chan string) {
	id := uuid.NewString()
	ch := make(chan string, subscriberBuffer)

	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	if m.closing {
		close(ch)
		return id, ch
	}
	m.subscribers[id] = ch
	return id, ch
}

// Unsubscribe closes and removes the subscriber's channel.
func (m *Mux) Unsubscribe(id string) {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	if ch, ok := m.subscribers[id]; ok {
		close(ch)
		delete(m.subscribers, id)
	}
}

// Subscribers returns the number of active subscribers.
func (m *Mux) Subscribers() int {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	return len(m.subscribers)
}

// RecordReadout formats r and publishes it. It implements sim.Sink.
func (m *Mux) RecordReadout(r sim.Readout) error {
	return m.Publish(FormatReadout(r))
}

// Publish sends line to every subscriber without blocking and writes it,
// newline terminated, to the port.
func (m *Mux) Publish(line string) error {
	m.latestMu.Lock()
	m.latest = line
	m.latestMu.Unlock()

	m.subscriberMu.Lock()
	if m.closing {
		m.subscriberMu.Unlock()
		return nil
	}
	for id, ch := range m.subscribers {
		select {
		case ch <- line:
		default:
			monitoring.Debugf("readoutmux: subscriber %s is full, dropping line", id)
		}
	}
	m.subscriberMu.Unlock()

	return m.write(line + "\n")
}

func (m *Mux) write(line string) error {
	m.portMu.Lock()
	defer m.portMu.Unlock()
	if m.port == nil {
		return nil
	}
	n, err := m.port.Write([]byte(line))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	if n != len(line) {
		return ErrWriteFailed
	}
	return nil
}

// Latest returns the most recently published line, or "" before the first.
func (m *Mux) Latest() string {
	m.latestMu.Lock()
	defer m.latestMu.Unlock()
	return m.latest
}

// Close closes all subscriber channels and the port. It is safe to call more
// than once.
func (m *Mux) Close() error {
	m.subscriberMu.Lock()
	if m.closing {
		m.subscriberMu.Unlock()
		return nil
	}
	m.closing = true
	for id, ch := range m.subscribers {
		close(ch)
		delete(m.subscribers, id)
	}
	m.subscriberMu.Unlock()

	m.portMu.Lock()
	defer m.portMu.Unlock()
	if m.port == nil {
		return nil
	}
	return m.port.Close()
}

// AttachAdminRoutes mounts the readout debug endpoints under /debug/. They
// are reachable only from localhost or over Tailscale.
func (m *Mux) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("readout", "latest device readout line", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		line := m.Latest()
		if line == "" {
			line = "no readout yet"
		}
		io.WriteString(w, line+"\n")
	})

	// Server-Sent Events stream of readout lines.
	debug.HandleSilentFunc("readout-tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		id, c := m.Subscribe()
		defer m.Unsubscribe(id)

		io.WriteString(w, ": ping\n\n")
		flusher.Flush()

		for {
			select {
			case line, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", line); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
