// Package status tracks backend liveness by polling the status endpoint and,
// optionally, by listening on the status websocket
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/geopol/geopol-go/internal/api"
)

// StreamPath is the websocket endpoint pushing status frames
const StreamPath = "/ws/geopol/status"

// Source says where a snapshot came from
type Source string

const (
	SourcePoll   Source = "poll"
	SourceStream Source = "stream"
)

// Snapshot is one liveness observation
type Snapshot struct {
	Online    bool
	CacheSize int
	LastCheck time.Time
	Err       error
	Source    Source
}

// ConnState is the websocket connection state
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Poller fetches the status payload
type Poller interface {
	Status(ctx context.Context) (*api.Status, error)
}

// Option configures a Monitor
type Option func(*Monitor)

// WithInterval sets the poll interval
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithStream enables push updates from the websocket at streamURL
func WithStream(streamURL string) Option {
	return func(m *Monitor) {
		m.streamURL = streamURL
	}
}

// WithReconnectDelay sets the wait between websocket reconnect attempts
func WithReconnectDelay(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.reconnectDelay = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(log zerolog.Logger) Option {
	return func(m *Monitor) {
		m.log = log
	}
}

// Monitor publishes liveness snapshots. Polling pauses while the websocket
// stream is connected and resumes when it drops.
type Monitor struct {
	poller         Poller
	interval       time.Duration
	streamURL      string
	reconnectDelay time.Duration
	log            zerolog.Logger

	updates chan Snapshot

	mu    sync.RWMutex
	last  Snapshot
	state ConnState

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Monitor
func New(poller Poller, opts ...Option) *Monitor {
	m := &Monitor{
		poller:         poller,
		interval:       30 * time.Second,
		reconnectDelay: 5 * time.Second,
		log:            zerolog.Nop(),
		updates:        make(chan Snapshot, 16),
		state:          StateDisconnected,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StreamURL derives the websocket status URL from the backend base URL
func StreamURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid server URL %q: unsupported scheme", baseURL)
	}
	u.Path = strings.TrimRight(u.Path, "/") + StreamPath
	u.RawQuery = ""
	return u.String(), nil
}

// Updates returns the snapshot channel. It is closed by Stop.
func (m *Monitor) Updates() <-chan Snapshot {
	return m.updates
}

// Last returns the most recent snapshot
func (m *Monitor) Last() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// State returns the websocket connection state
func (m *Monitor) State() ConnState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Monitor) setState(s ConnState) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// Start begins polling and, if configured, streaming
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.pollLoop(ctx)
	}()

	if m.streamURL != "" {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.streamLoop(ctx)
		}()
	}
}

// Stop halts all goroutines and closes the updates channel
func (m *Monitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	m.wg.Wait()
	m.cancel = nil
	close(m.updates)
}

// Check performs one status request and records the result
func (m *Monitor) Check(ctx context.Context) Snapshot {
	snap := Snapshot{LastCheck: time.Now(), Source: SourcePoll}
	st, err := m.poller.Status(ctx)
	if err != nil {
		snap.Err = err
		m.log.Warn().Err(err).Msg("Backend status check failed")
	} else {
		snap.Online = true
		snap.CacheSize = st.Cache.CacheSize
	}
	m.record(snap)
	return snap
}

func (m *Monitor) record(snap Snapshot) {
	m.mu.Lock()
	wasOnline := m.last.Online
	m.last = snap
	m.mu.Unlock()
	if wasOnline != snap.Online {
		m.log.Info().Bool("online", snap.Online).Str("source", string(snap.Source)).Msg("Backend liveness changed")
	}
}

func (m *Monitor) publish(snap Snapshot) {
	m.record(snap)
	select {
	case m.updates <- snap:
	default:
		// Channel full, skip snapshot
	}
}

func (m *Monitor) pollLoop(ctx context.Context) {
	poll := func() {
		if m.State() == StateConnected {
			return
		}
		snap := m.Check(ctx)
		if ctx.Err() != nil {
			return
		}
		select {
		case m.updates <- snap:
		default:
		}
	}

	poll()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			poll()
		}
	}
}

func (m *Monitor) streamLoop(ctx context.Context) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	for {
		if ctx.Err() != nil {
			return
		}

		m.setState(StateConnecting)
		conn, _, err := dialer.DialContext(ctx, m.streamURL, nil)
		if err != nil {
			m.setState(StateDisconnected)
			m.log.Debug().Err(err).Str("url", m.streamURL).Msg("Status stream unavailable")
			select {
			case <-ctx.Done():
				return
			case <-time.After(m.reconnectDelay):
				continue
			}
		}

		m.setState(StateConnected)
		m.log.Debug().Str("url", m.streamURL).Msg("Status stream connected")
		m.readStream(ctx, conn)
		m.setState(StateDisconnected)

		// Wait before reconnecting
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.reconnectDelay):
		}
	}
}

// readStream consumes status frames until the connection fails or ctx ends
func (m *Monitor) readStream(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				m.log.Debug().Err(err).Msg("Status stream closed")
			}
			return
		}

		var st api.Status
		if err := json.Unmarshal(data, &st); err != nil {
			m.log.Debug().Err(err).Msg("Ignoring malformed status frame")
			continue
		}
		m.publish(Snapshot{
			Online:    true,
			CacheSize: st.Cache.CacheSize,
			LastCheck: time.Now(),
			Source:    SourceStream,
		})
	}
}
