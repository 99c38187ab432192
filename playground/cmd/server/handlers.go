package main

import (
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mileusna/useragent"
)

type visit struct {
	Code     string    `json:"sessionCode"`
	Visitor  string    `json:"visitorCode"`
	Device   string    `json:"device"`
	Started  time.Time `json:"started"`
	LastSeen time.Time `json:"lastSeen"`
	Hits     int       `json:"hits"`
	Events   int       `json:"events"`
}

// Collector is an in-memory stand-in for the analytics backend. Unknown or
// idle session codes are answered with 401 so the client re-authenticates.
type Collector struct {
	mu         sync.Mutex
	apiKey     string
	timeout    time.Duration
	visits     map[string]*visit
	pushTokens map[string]string
	failStatus int
}

func NewCollector(apiKey string, timeout time.Duration) *Collector {
	return &Collector{
		apiKey:     apiKey,
		timeout:    timeout,
		visits:     make(map[string]*visit),
		pushTokens: make(map[string]string),
	}
}

type response struct {
	Data map[string]any `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response{Data: data})
}

// parse reads the form and applies an injected failure. It reports whether the
// handler should continue.
func (c *Collector) parse(w http.ResponseWriter, r *http.Request) bool {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}

	c.mu.Lock()
	status := c.failStatus
	c.mu.Unlock()
	if status != 0 {
		log.Printf("🔄 Injected status %d for %s", status, r.URL.Path)
		writeJSON(w, status, nil)
		return false
	}
	return true
}

// session resolves the sessionCode of r, answering 401 when it is unknown or expired.
func (c *Collector) session(w http.ResponseWriter, r *http.Request) (*visit, bool) {
	code := r.PostForm.Get("sessionCode")

	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.visits[code]
	if !ok || time.Since(v.LastSeen) > c.timeout {
		delete(c.visits, code)
		log.Printf("🔑 Unknown session %q on %s", code, r.URL.Path)
		writeJSON(w, http.StatusUnauthorized, nil)
		return nil, false
	}
	v.LastSeen = time.Now()
	return v, true
}

func deviceType(ua useragent.UserAgent) string {
	switch {
	case ua.Mobile:
		return "Mobile"
	case ua.Tablet:
		return "Tablet"
	case ua.Desktop:
		return "Desktop"
	case ua.Bot:
		return "Bot"
	default:
		return "Unknown"
	}
}

func (c *Collector) CreateVisit(w http.ResponseWriter, r *http.Request) {
	if !c.parse(w, r) {
		return
	}
	if c.apiKey != "" && r.PostForm.Get("apiKey") != c.apiKey {
		writeJSON(w, http.StatusUnauthorized, nil)
		return
	}

	code := r.PostForm.Get("sessionCode")
	if code == "" {
		http.Error(w, "sessionCode is required", http.StatusBadRequest)
		return
	}

	ua := useragent.Parse(r.UserAgent())
	now := time.Now()
	v := &visit{
		Code:     code,
		Visitor:  r.PostForm.Get("visitorCode"),
		Device:   deviceType(ua),
		Started:  now,
		LastSeen: now,
	}

	c.mu.Lock()
	c.visits[code] = v
	c.mu.Unlock()

	log.Printf("📊 Session %s started by %s (%s, %s %s)", code, v.Visitor, v.Device, ua.Name, ua.Version)
	writeJSON(w, http.StatusOK, map[string]any{"sessionCode": code})
}

func (c *Collector) EndVisit(w http.ResponseWriter, r *http.Request) {
	if !c.parse(w, r) {
		return
	}
	v, ok := c.session(w, r)
	if !ok {
		return
	}

	c.mu.Lock()
	delete(c.visits, v.Code)
	c.mu.Unlock()

	log.Printf("📊 Session %s ended after %v (%d hits, %d events)", v.Code, time.Since(v.Started).Round(time.Second), v.Hits, v.Events)
	writeJSON(w, http.StatusOK, nil)
}

func (c *Collector) CreateHit(w http.ResponseWriter, r *http.Request) {
	if !c.parse(w, r) {
		return
	}
	v, ok := c.session(w, r)
	if !ok {
		return
	}

	c.mu.Lock()
	v.Hits++
	c.mu.Unlock()

	hitCode := uuid.NewString()
	log.Printf("📊 Screen %q (%s) in session %s", r.PostForm.Get("pageTitle"), r.PostForm.Get("path"), v.Code)
	writeJSON(w, http.StatusOK, map[string]any{"hitCode": hitCode})
}

func (c *Collector) EndHit(w http.ResponseWriter, r *http.Request) {
	if !c.parse(w, r) {
		return
	}
	if _, ok := c.session(w, r); !ok {
		return
	}
	log.Printf("📊 Screen %s ended", r.PostForm.Get("hitCode"))
	writeJSON(w, http.StatusOK, nil)
}

func (c *Collector) CreateEvent(w http.ResponseWriter, r *http.Request) {
	if !c.parse(w, r) {
		return
	}
	v, ok := c.session(w, r)
	if !ok {
		return
	}

	c.mu.Lock()
	v.Events++
	c.mu.Unlock()

	log.Printf("📊 Event %s=%s in session %s", r.PostForm.Get("eventKey"), r.PostForm.Get("eventValue"), v.Code)
	writeJSON(w, http.StatusOK, nil)
}

func decodeBatch(w http.ResponseWriter, r *http.Request) ([]map[string]any, bool) {
	var records []map[string]any
	if err := json.Unmarshal([]byte(r.PostForm.Get("data")), &records); err != nil {
		log.Println("Error decoding batch:", err)
		http.Error(w, "Invalid data", http.StatusBadRequest)
		return nil, false
	}
	return records, true
}

func (c *Collector) CreateBatch(w http.ResponseWriter, r *http.Request) {
	if !c.parse(w, r) {
		return
	}
	v, ok := c.session(w, r)
	if !ok {
		return
	}
	records, ok := decodeBatch(w, r)
	if !ok {
		return
	}

	log.Printf("📦 Periodic batch of %d records in session %s", len(records), v.Code)
	writeJSON(w, http.StatusOK, nil)
}

func (c *Collector) CreateOffline(w http.ResponseWriter, r *http.Request) {
	if !c.parse(w, r) {
		return
	}
	records, ok := decodeBatch(w, r)
	if !ok {
		return
	}

	// offline batches carry their own session starts and are accepted without one
	var code string
	now := time.Now()
	c.mu.Lock()
	for _, record := range records {
		if s, ok := record["sessionCode"].(string); ok && s != "" {
			code = s
			if _, exists := c.visits[s]; !exists {
				c.visits[s] = &visit{Code: s, Visitor: r.PostForm.Get("visitorCode"), Device: "Offline", Started: now}
			}
			c.visits[s].LastSeen = now
		}
	}
	c.mu.Unlock()

	log.Printf("📦 Offline batch of %d records, latest session %q", len(records), code)
	writeJSON(w, http.StatusOK, map[string]any{"sessionCode": code})
}

func (c *Collector) SetPushData(w http.ResponseWriter, r *http.Request) {
	if !c.parse(w, r) {
		return
	}
	if _, ok := c.session(w, r); !ok {
		return
	}

	visitor := r.PostForm.Get("visitorCode")
	if pushID := r.PostForm.Get("pushId"); pushID != "" {
		log.Printf("🔔 Push message %s opened by %s", pushID, visitor)
	} else {
		c.mu.Lock()
		c.pushTokens[visitor] = r.PostForm.Get("pushToken")
		c.mu.Unlock()
		log.Printf("🔔 Push token registered for %s", visitor)
	}
	writeJSON(w, http.StatusOK, nil)
}

func (c *Collector) Unregister(w http.ResponseWriter, r *http.Request) {
	if !c.parse(w, r) {
		return
	}
	if _, ok := c.session(w, r); !ok {
		return
	}

	visitor := r.PostForm.Get("visitorCode")
	c.mu.Lock()
	delete(c.pushTokens, visitor)
	c.mu.Unlock()

	log.Printf("🔔 Push token removed for %s", visitor)
	writeJSON(w, http.StatusOK, nil)
}

func (c *Collector) InjectFailure(w http.ResponseWriter, r *http.Request) {
	status, err := strconv.Atoi(mux.Vars(r)["status"])
	if err != nil || status < 400 {
		http.Error(w, "status must be an error code", http.StatusBadRequest)
		return
	}

	c.mu.Lock()
	c.failStatus = status
	c.mu.Unlock()

	log.Printf("⚠️  Every collector request now answers %d", status)
	w.WriteHeader(http.StatusNoContent)
}

func (c *Collector) ClearFailure(w http.ResponseWriter, _ *http.Request) {
	c.mu.Lock()
	c.failStatus = 0
	c.mu.Unlock()

	log.Printf("✅ Failure injection cleared")
	w.WriteHeader(http.StatusNoContent)
}

func (c *Collector) ListSessions(w http.ResponseWriter, _ *http.Request) {
	c.mu.Lock()
	visits := make([]visit, 0, len(c.visits))
	for _, v := range c.visits {
		visits = append(visits, *v)
	}
	c.mu.Unlock()

	sort.Slice(visits, func(i, j int) bool { return visits[i].Started.Before(visits[j].Started) })

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(visits)
}
