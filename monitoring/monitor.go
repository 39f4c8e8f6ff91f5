// Package monitoring turns a running scheduler into an HTTP server that can
// be observed and paused from the outside.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/desim/monitoring/web"
	"github.com/sarchlab/desim/sim"
)

// Status is the snapshot of a scheduler served by the monitor.
type Status struct {
	Now           float64 `json:"now"`
	Queued        int     `json:"queued"`
	Scheduled     uint64  `json:"scheduled"`
	Executed      uint64  `json:"executed"`
	Discarded     uint64  `json:"discarded"`
	Failed        uint64  `json:"failed"`
	LastEventID   uint64  `json:"last_event_id"`
	LastEventTime float64 `json:"last_event_time"`
	Paused        bool    `json:"paused"`
}

// Monitor is a hook that keeps a snapshot of a scheduler and serves it over
// HTTP. The scheduler itself is never touched from the server goroutines;
// everything they need is copied under the monitor's own lock on the
// scheduler's goroutine.
type Monitor struct {
	portNumber int

	mu        sync.Mutex
	scheduler *sim.EventScheduler
	status    Status
	resume    chan struct{}
	objects   map[string]any

	requests       chan func()
	inspectTimeout time.Duration
	streamInterval time.Duration
	metrics        *metrics

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar

	server   *http.Server
	listener net.Listener
}

// NewMonitor creates a new Monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		objects:        make(map[string]any),
		requests:       make(chan func()),
		inspectTimeout: time.Second,
		streamInterval: 250 * time.Millisecond,
		metrics:        newMetrics(),
	}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// RegisterScheduler attaches the monitor to a scheduler. It must be called
// before the scheduler starts running.
func (m *Monitor) RegisterScheduler(s *sim.EventScheduler) {
	m.mu.Lock()
	m.scheduler = s
	m.status.Now = float64(s.CurrentTime())
	m.status.Queued = s.Len()
	m.mu.Unlock()

	s.AcceptHook(m)
}

// RegisterObject makes a model object inspectable under the given name.
func (m *Monitor) RegisterObject(name string, obj any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, found := m.objects[name]; found {
		panic(fmt.Sprintf("object %s already registered", name))
	}

	m.objects[name] = obj
}

// Status returns the latest snapshot.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.status
}

// Pause makes the scheduler block before its next event.
func (m *Monitor) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status.Paused {
		return
	}

	m.status.Paused = true
	m.resume = make(chan struct{})
	m.metrics.paused.Set(1)
}

// Continue releases a paused scheduler.
func (m *Monitor) Continue() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.status.Paused {
		return
	}

	m.status.Paused = false
	close(m.resume)
	m.metrics.paused.Set(0)
}

// Func updates the snapshot. It runs on the scheduler's goroutine.
func (m *Monitor) Func(ctx sim.HookCtx) {
	evt, ok := ctx.Item.(*sim.Event)
	if !ok {
		return
	}

	m.mu.Lock()
	m.updateStatus(ctx.Pos, evt, ctx.Detail)
	m.mu.Unlock()

	if ctx.Pos == sim.HookPosBeforeEvent {
		m.serveRequests()
		m.waitWhilePaused()
	}
}

func (m *Monitor) updateStatus(pos *sim.HookPos, evt *sim.Event, detail any) {
	if m.scheduler != nil {
		m.status.Now = float64(m.scheduler.CurrentTime())
		m.status.Queued = m.scheduler.Len()
	}

	switch pos {
	case sim.HookPosEventScheduled:
		m.status.Scheduled++
		m.metrics.scheduled.Inc()
	case sim.HookPosBeforeEvent:
		m.status.LastEventID = uint64(evt.ID())
		m.status.LastEventTime = float64(evt.Time())
	case sim.HookPosAfterEvent:
		m.status.Executed++
		m.metrics.executed.Inc()

		if err, ok := detail.(error); ok && err != nil {
			m.status.Failed++
			m.metrics.failed.Inc()
		}
	case sim.HookPosEventDiscarded:
		m.status.Discarded++
		m.metrics.discarded.Inc()
	}

	m.metrics.now.Set(m.status.Now)
	m.metrics.queued.Set(float64(m.status.Queued))
}

func (m *Monitor) serveRequests() {
	for {
		select {
		case fn := <-m.requests:
			fn()
		default:
			return
		}
	}
}

func (m *Monitor) waitWhilePaused() {
	for {
		m.mu.Lock()
		paused, resume := m.status.Paused, m.resume
		m.mu.Unlock()

		if !paused {
			return
		}

		select {
		case <-resume:
		case fn := <-m.requests:
			fn()
		}
	}
}

// onLoop runs fn on the scheduler's goroutine if the scheduler reaches an
// event or is paused within the inspect timeout. Otherwise the scheduler is
// considered idle and fn runs on the caller's goroutine.
func (m *Monitor) onLoop(fn func()) {
	done := make(chan struct{})
	wrapped := func() {
		fn()
		close(done)
	}

	select {
	case m.requests <- wrapped:
		<-done
	case <-time.After(m.inspectTimeout):
		fn()
	}
}

// Handler returns the HTTP handler that serves the monitor.
func (m *Monitor) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/pause", m.pauseScheduler)
	r.HandleFunc("/api/continue", m.continueScheduler)
	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/status", m.listStatus)
	r.HandleFunc("/api/objects", m.listObjects)
	r.HandleFunc("/api/object/{name}", m.objectDetails)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.Handle("/metrics", m.metrics.handler())
	r.HandleFunc("/ws/clock", m.streamClock)
	r.PathPrefix("/").Handler(http.FileServer(web.GetAssets()))

	return r
}

// StartServer starts the monitor as a web server.
func (m *Monitor) StartServer() {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	m.listener = listener
	m.server = &http.Server{
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	fmt.Fprintf(os.Stderr, "Monitoring simulation with %s\n", m.URL())

	go func() {
		err := m.server.Serve(listener)
		if err != http.ErrServerClosed {
			dieOnErr(err)
		}
	}()
}

// URL returns the address of the running server, or an empty string if the
// server has not been started.
func (m *Monitor) URL() string {
	if m.listener == nil {
		return ""
	}

	port := m.listener.Addr().(*net.TCPAddr).Port

	return fmt.Sprintf("http://localhost:%d", port)
}

// OpenInBrowser opens the dashboard with the default browser.
func (m *Monitor) OpenInBrowser() error {
	url := m.URL()
	if url == "" {
		return fmt.Errorf("monitoring server is not running")
	}

	return browser.OpenURL(url)
}

// StopServer shuts the server down. A paused scheduler is released first.
func (m *Monitor) StopServer(ctx context.Context) error {
	m.Continue()

	if m.server == nil {
		return nil
	}

	return m.server.Shutdown(ctx)
}

func (m *Monitor) pauseScheduler(w http.ResponseWriter, _ *http.Request) {
	m.Pause()
	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) continueScheduler(w http.ResponseWriter, _ *http.Request) {
	m.Continue()
	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprintf(w, "{\"now\":%.10f}", m.Status().Now)
}

func (m *Monitor) listStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, m.Status())
}

func (m *Monitor) listObjects(w http.ResponseWriter, _ *http.Request) {
	m.mu.Lock()
	names := make([]string, 0, len(m.objects))
	for name := range m.objects {
		names = append(names, name)
	}
	m.mu.Unlock()

	slices.Sort(names)
	writeJSON(w, names)
}

func (m *Monitor) objectDetails(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	m.mu.Lock()
	obj, found := m.objects[name]
	m.mu.Unlock()

	if !found {
		w.WriteHeader(http.StatusNotFound)
		_, err := w.Write([]byte("Object not found"))
		dieOnErr(err)

		return
	}

	depth := 1
	if d, err := strconv.Atoi(r.URL.Query().Get("depth")); err == nil && d > 0 {
		depth = d
	}

	buf := bytes.NewBuffer(nil)

	var err error

	m.onLoop(func() {
		serializer := goseth.NewSerializer()
		serializer.SetRoot(obj)
		serializer.SetMaxDepth(depth)
		err = serializer.Serialize(buf)
	})

	dieOnErr(err)

	_, err = w.Write(buf.Bytes())
	dieOnErr(err)
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	writeJSON(w, m.progressBars)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, r *http.Request) {
	duration := time.Second
	if d, err := time.ParseDuration(r.URL.Query().Get("duration")); err == nil {
		duration = d
	}

	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprintf(w, "Error: %s", err)

		return
	}

	time.Sleep(duration)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
