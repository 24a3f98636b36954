// Package testutil provides testing utilities for geopol tests
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Failure describes how the mock server should fail an endpoint
type Failure struct {
	// StatusCode, when non-zero, is returned as a bare HTTP error
	StatusCode int
	// Message, when StatusCode is zero, is returned as {"success":false,"error":Message}
	Message string
}

// RecordedRequest tracks a request received by the mock server
type RecordedRequest struct {
	Method    string
	Path      string
	Query     string
	Body      []byte
	Timestamp time.Time
}

// MockServer implements a fake geopol backend
type MockServer struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	entities    []Entity
	receivers   []SDRReceiver
	quakes      []Quake
	weather     map[string][]WeatherPoint
	profiles    map[string]json.RawMessage
	sdrGeoJSON  bool
	cacheSize   int
	validateErr []string

	failures map[string]Failure
	delays   map[string]time.Duration

	statusClients map[*websocket.Conn]bool
	requests      []RecordedRequest

	mu      sync.RWMutex
	running bool
}

// NewMockServer creates a new mock server instance with an empty data set
func NewMockServer() *MockServer {
	return &MockServer{
		weather:       make(map[string][]WeatherPoint),
		profiles:      make(map[string]json.RawMessage),
		sdrGeoJSON:    true,
		failures:      make(map[string]Failure),
		delays:        make(map[string]time.Duration),
		statusClients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Start starts the mock server on a random local port
func (s *MockServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("server already running")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/geopol/entities/geojson", s.wrap(s.handleEntities))
	mux.HandleFunc("/api/sdr/geojson", s.wrap(s.handleSDRGeoJSON))
	mux.HandleFunc("/api/geopol/sdr-receivers", s.wrap(s.handleSDRReceivers))
	mux.HandleFunc("/api/weather/layer/", s.wrap(s.handleWeather))
	mux.HandleFunc("/api/earthquakes/geojson", s.wrap(s.handleEarthquakes))
	mux.HandleFunc("/api/geopol/status", s.wrap(s.handleStatus))
	mux.HandleFunc("/api/geopol/profiles", s.wrap(s.handleProfiles))
	mux.HandleFunc("/api/geopol/profiles/", s.wrap(s.handleProfile))
	mux.HandleFunc("/ws/geopol/status", s.handleStatusWS)

	s.server = httptest.NewServer(mux)
	s.running = true
	return nil
}

// Stop stops the mock server
func (s *MockServer) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	for conn := range s.statusClients {
		conn.Close()
	}
	s.statusClients = make(map[*websocket.Conn]bool)
	srv := s.server
	s.mu.Unlock()

	srv.CloseClientConnections()
	srv.Close()
}

// BaseURL returns the base URL of the mock server
func (s *MockServer) BaseURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.server == nil {
		return ""
	}
	return s.server.URL
}

// --- Data setup ---

// SetEntities replaces the geopolitical entities
func (s *MockServer) SetEntities(entities ...Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities = entities
}

// SetReceivers replaces the SDR receivers
func (s *MockServer) SetReceivers(receivers ...SDRReceiver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receivers = receivers
}

// SetSDRGeoJSON controls whether /api/sdr/geojson carries a geojson field
func (s *MockServer) SetSDRGeoJSON(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sdrGeoJSON = enabled
}

// SetQuakes replaces the earthquake catalogue
func (s *MockServer) SetQuakes(quakes ...Quake) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quakes = quakes
}

// SetWeather replaces the points served for a weather metric
func (s *MockServer) SetWeather(metric string, points ...WeatherPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weather[metric] = points
}

// SetCacheSize sets the cache size reported by the status endpoint
func (s *MockServer) SetCacheSize(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cacheSize = n
}

// PutProfile stores a raw profile document
func (s *MockServer) PutProfile(name string, doc json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[name] = doc
}

// Profile returns a stored profile document
func (s *MockServer) Profile(name string) (json.RawMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.profiles[name]
	return doc, ok
}

// ProfileNames returns the stored profile names, sorted
func (s *MockServer) ProfileNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.profiles))
	for name := range s.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RejectValidation makes the validate endpoint answer valid:false with reasons
func (s *MockServer) RejectValidation(reasons ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validateErr = reasons
}

// --- Failure injection ---

// Fail makes requests whose path starts with prefix fail
func (s *MockServer) Fail(prefix string, f Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[prefix] = f
}

// Recover clears a failure set with Fail
func (s *MockServer) Recover(prefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, prefix)
}

// SetDelay delays responses for paths starting with prefix
func (s *MockServer) SetDelay(prefix string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d <= 0 {
		delete(s.delays, prefix)
		return
	}
	s.delays[prefix] = d
}

// --- Request tracking ---

// Requests returns all requests received so far
func (s *MockServer) Requests() []RecordedRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RecordedRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// RequestCount returns how many requests hit paths starting with prefix
func (s *MockServer) RequestCount(method, prefix string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.requests {
		if (method == "" || r.Method == method) && strings.HasPrefix(r.Path, prefix) {
			n++
		}
	}
	return n
}

// ClearRequests clears all tracked requests
func (s *MockServer) ClearRequests() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
}

// StatusClientCount returns the number of connected status websocket clients
func (s *MockServer) StatusClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.statusClients)
}

// BroadcastStatus pushes a status frame to all websocket clients
func (s *MockServer) BroadcastStatus(cacheSize int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cacheSize = cacheSize
	msg, _ := json.Marshal(statusPayload(cacheSize))
	for conn := range s.statusClients {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			conn.Close()
			delete(s.statusClients, conn)
		}
	}
}

// --- Handlers ---

func (s *MockServer) wrap(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body.Close()
		r.Body = io.NopCloser(strings.NewReader(string(body)))

		s.mu.Lock()
		s.requests = append(s.requests, RecordedRequest{
			Method:    r.Method,
			Path:      r.URL.Path,
			Query:     r.URL.RawQuery,
			Body:      body,
			Timestamp: time.Now(),
		})
		failure, failing := s.match(r.URL.Path, s.failures)
		delay, _ := s.matchDelay(r.URL.Path)
		s.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}

		if failing {
			if failure.StatusCode != 0 {
				http.Error(w, http.StatusText(failure.StatusCode), failure.StatusCode)
				return
			}
			writeJSON(w, map[string]interface{}{"success": false, "error": failure.Message})
			return
		}
		h(w, r)
	}
}

func (s *MockServer) match(path string, failures map[string]Failure) (Failure, bool) {
	best := ""
	for prefix := range failures {
		if strings.HasPrefix(path, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return Failure{}, false
	}
	return failures[best], true
}

func (s *MockServer) matchDelay(path string) (time.Duration, bool) {
	best := ""
	for prefix := range s.delays {
		if strings.HasPrefix(path, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return 0, false
	}
	return s.delays[best], true
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func ok(fields map[string]interface{}) map[string]interface{} {
	fields["success"] = true
	return fields
}

func (s *MockServer) handleEntities(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	fc := EntitiesCollection(s.entities)
	s.mu.RUnlock()
	writeJSON(w, ok(map[string]interface{}{"geojson": fc}))
}

func (s *MockServer) handleSDRGeoJSON(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	enabled := s.sdrGeoJSON
	fc := ReceiversCollection(s.receivers)
	s.mu.RUnlock()
	if !enabled {
		writeJSON(w, ok(map[string]interface{}{}))
		return
	}
	writeJSON(w, ok(map[string]interface{}{"geojson": fc}))
}

func (s *MockServer) handleSDRReceivers(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	receivers := append([]SDRReceiver{}, s.receivers...)
	s.mu.RUnlock()
	writeJSON(w, ok(map[string]interface{}{"receivers": receivers}))
}

func (s *MockServer) handleWeather(w http.ResponseWriter, r *http.Request) {
	metric := strings.TrimPrefix(r.URL.Path, "/api/weather/layer/")
	s.mu.RLock()
	points, known := s.weather[metric]
	fc := WeatherCollection(metric, points)
	s.mu.RUnlock()
	if !known {
		writeJSON(w, map[string]interface{}{"success": false, "error": "unknown layer " + metric})
		return
	}
	writeJSON(w, ok(map[string]interface{}{"geojson": fc}))
}

func (s *MockServer) handleEarthquakes(w http.ResponseWriter, r *http.Request) {
	minMag := 0.0
	if v := r.URL.Query().Get("min_magnitude"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			http.Error(w, "bad min_magnitude", http.StatusBadRequest)
			return
		}
		minMag = f
	}

	s.mu.RLock()
	var selected []Quake
	for _, q := range s.quakes {
		if q.Magnitude >= minMag {
			selected = append(selected, q)
		}
	}
	s.mu.RUnlock()
	writeJSON(w, ok(map[string]interface{}{"geojson": QuakesCollection(selected)}))
}

func statusPayload(cacheSize int) map[string]interface{} {
	return map[string]interface{}{
		"cache": map[string]interface{}{"cache_size": cacheSize},
	}
}

func (s *MockServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	size := s.cacheSize
	s.mu.RUnlock()
	writeJSON(w, statusPayload(size))
}

// handleProfiles handles GET (list) and POST (save) on /api/geopol/profiles
func (s *MockServer) handleProfiles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		names := s.ProfileNames()
		writeJSON(w, ok(map[string]interface{}{"profiles": names}))
	case http.MethodPost:
		body, _ := io.ReadAll(r.Body)
		var doc struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(body, &doc); err != nil || doc.Name == "" {
			writeJSON(w, map[string]interface{}{"success": false, "error": "profile name required"})
			return
		}
		s.PutProfile(doc.Name, json.RawMessage(body))
		writeJSON(w, ok(map[string]interface{}{"message": "saved"}))
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleProfile handles /api/geopol/profiles/{name}, /validate and /from-state
func (s *MockServer) handleProfile(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/api/geopol/profiles/")
	switch {
	case name == "validate" && r.Method == http.MethodPost:
		s.handleValidate(w, r)
	case name == "from-state" && r.Method == http.MethodPost:
		s.handleFromState(w, r)
	case r.Method == http.MethodGet:
		doc, found := s.Profile(name)
		if !found {
			writeJSON(w, map[string]interface{}{"success": false, "error": "profile not found"})
			return
		}
		writeJSON(w, ok(map[string]interface{}{"profile": doc}))
	case r.Method == http.MethodDelete:
		s.mu.Lock()
		_, found := s.profiles[name]
		delete(s.profiles, name)
		s.mu.Unlock()
		if !found {
			writeJSON(w, map[string]interface{}{"success": false, "error": "profile not found"})
			return
		}
		writeJSON(w, ok(map[string]interface{}{"message": "deleted"}))
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *MockServer) handleValidate(w http.ResponseWriter, r *http.Request) {
	var doc map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeJSON(w, ok(map[string]interface{}{"valid": false, "errors": []string{"malformed profile"}}))
		return
	}

	s.mu.RLock()
	reasons := append([]string{}, s.validateErr...)
	s.mu.RUnlock()
	if name, _ := doc["name"].(string); name == "" {
		reasons = append(reasons, "name is required")
	}
	if len(reasons) > 0 {
		writeJSON(w, ok(map[string]interface{}{"valid": false, "errors": reasons}))
		return
	}
	writeJSON(w, ok(map[string]interface{}{"valid": true}))
}

func (s *MockServer) handleFromState(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string                 `json:"name"`
		Description string                 `json:"description"`
		State       map[string]interface{} `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeJSON(w, map[string]interface{}{"success": false, "error": "name and state required"})
		return
	}
	doc := req.State
	if doc == nil {
		doc = map[string]interface{}{}
	}
	doc["name"] = req.Name
	doc["description"] = req.Description
	raw, _ := json.Marshal(doc)
	s.PutProfile(req.Name, raw)
	writeJSON(w, ok(map[string]interface{}{"profile": json.RawMessage(raw)}))
}

// handleStatusWS handles WebSocket connections to /ws/geopol/status
func (s *MockServer) handleStatusWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.statusClients[conn] = true
	size := s.cacheSize
	s.mu.Unlock()

	// initial snapshot
	msg, _ := json.Marshal(statusPayload(size))
	s.mu.Lock()
	conn.WriteMessage(websocket.TextMessage, msg)
	s.mu.Unlock()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.mu.Lock()
	delete(s.statusClients, conn)
	s.mu.Unlock()
	conn.Close()
}
