// Package monitoring serves the chips of a host over HTTP.
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
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/chiplink/addr"
	"github.com/sarchlab/chiplink/chip"
	"github.com/sarchlab/chiplink/detect"
	"github.com/sarchlab/chiplink/idgen"
	"github.com/sarchlab/chiplink/tracing"
)

// Monitor exposes detection records, chip registers and tracer counters.
// Requests may arrive concurrently, so the chips it serves should be
// created with detect.Options.Locked.
type Monitor struct {
	portNumber     int
	profileSeconds time.Duration

	mu      sync.RWMutex
	records []detect.Record
	stats   *tracing.StatsTracer

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar

	server *http.Server
}

// NewMonitor creates a Monitor.
func NewMonitor() *Monitor {
	return &Monitor{profileSeconds: time.Second}
}

// WithPortNumber sets the port of the server. Ports below 1000 are replaced
// by a random one.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is not allowed for the monitoring server, "+
				"using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithProfileDuration sets how long /api/profile samples the CPU.
func (m *Monitor) WithProfileDuration(d time.Duration) *Monitor {
	m.profileSeconds = d
	return m
}

// RegisterRecords adds detection records. Chips are numbered in the order
// they are registered.
func (m *Monitor) RegisterRecords(recs ...detect.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = append(m.records, recs...)
}

// RegisterStats sets the tracer reported by /api/stats.
func (m *Monitor) RegisterStats(t *tracing.StatsTracer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats = t
}

// CreateProgressBar creates a progress bar shown by /api/progress.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        idgen.Get().Generate(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	bars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			bars = append(bars, b)
		}
	}

	m.progressBars = bars
}

// Handler returns the HTTP routes of the monitor.
func (m *Monitor) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/chips", m.listChips).Methods(http.MethodGet)
	r.HandleFunc("/api/chip/{id:[0-9]+}", m.chipDetails).Methods(http.MethodGet)
	r.HandleFunc("/api/chip/{id:[0-9]+}/field/{path}", m.chipField).
		Methods(http.MethodGet)
	r.HandleFunc("/api/chip/{id:[0-9]+}/reg/{name}", m.readReg).
		Methods(http.MethodGet)
	r.HandleFunc("/api/chip/{id:[0-9]+}/axi/{addr}", m.readAxi).
		Methods(http.MethodGet)
	r.HandleFunc("/api/stats", m.listStats).Methods(http.MethodGet)
	r.HandleFunc("/api/progress", m.listProgressBars).Methods(http.MethodGet)
	r.HandleFunc("/api/resource", m.listResources).Methods(http.MethodGet)
	r.HandleFunc("/api/profile", m.collectProfile).Methods(http.MethodGet)

	return r
}

// StartServer listens on the configured port and serves in the background.
// It returns the URL of the server.
func (m *Monitor) StartServer() (string, error) {
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(m.portNumber))
	if err != nil {
		return "", fmt.Errorf("starting monitor: %w", err)
	}

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)

	fmt.Fprintf(os.Stderr, "Monitoring chips with %s\n", url)

	m.server = &http.Server{
		Handler:           m.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		err := m.server.Serve(listener)
		if err != nil && err != http.ErrServerClosed {
			log.Panic(err)
		}
	}()

	return url, nil
}

// Shutdown stops the server.
func (m *Monitor) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}

	return m.server.Shutdown(ctx)
}

type chipRsp struct {
	Index               int    `json:"index"`
	Name                string `json:"name"`
	DeviceID            int    `json:"device_id"`
	Remote              string `json:"remote,omitempty"`
	State               string `json:"state"`
	Reason              string `json:"reason,omitempty"`
	Arch                string `json:"arch,omitempty"`
	FirmwareUnavailable bool   `json:"firmware_unavailable,omitempty"`
	Error               string `json:"error,omitempty"`
}

func (m *Monitor) listChips(w http.ResponseWriter, _ *http.Request) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rsp := make([]chipRsp, 0, len(m.records))

	for i, rec := range m.records {
		c := chipRsp{
			Index:               i,
			Name:                rec.String(),
			DeviceID:            rec.ID,
			State:               rec.State.String(),
			FirmwareUnavailable: rec.FirmwareUnavailable,
		}

		if rec.Remote != nil {
			c.Remote = rec.Remote.String()
		}

		if rec.State == detect.Failed {
			c.Reason = rec.Reason.String()
			c.Error = rec.Err.Error()
		} else {
			c.Arch = rec.Arch.String()
		}

		rsp = append(rsp, c)
	}

	writeJSON(w, rsp)
}

// findChipOr404 returns the verified record at the index of the request.
func (m *Monitor) findChipOr404(w http.ResponseWriter, r *http.Request) *detect.Record {
	i, err := strconv.Atoi(mux.Vars(r)["id"])

	m.mu.RLock()
	defer m.mu.RUnlock()

	if err != nil || i < 0 || i >= len(m.records) || m.records[i].Chip == nil {
		w.WriteHeader(http.StatusNotFound)
		_, err := w.Write([]byte("Chip not found"))
		dieOnErr(err)

		return nil
	}

	rec := m.records[i]

	return &rec
}

func (m *Monitor) chipDetails(w http.ResponseWriter, r *http.Request) {
	rec := m.findChipOr404(w, r)
	if rec == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(rec.Chip)
	serializer.SetMaxDepth(1)

	err := serializer.Serialize(w)
	dieOnErr(err)
}

func (m *Monitor) chipField(w http.ResponseWriter, r *http.Request) {
	rec := m.findChipOr404(w, r)
	if rec == nil {
		return
	}

	fields := strings.Split(mux.Vars(r)["path"], ".")

	serializer := goseth.NewSerializer()
	serializer.SetRoot(rec.Chip)
	serializer.SetMaxDepth(1)

	if err := serializer.SetEntryPoint(fields); err != nil {
		httpError(w, http.StatusBadRequest, err)
		return
	}

	err := serializer.Serialize(w)
	dieOnErr(err)
}

type wordRsp struct {
	Name  string `json:"name,omitempty"`
	Addr  string `json:"addr"`
	Value uint32 `json:"value"`
}

func (m *Monitor) readReg(w http.ResponseWriter, r *http.Request) {
	rec := m.findChipOr404(w, r)
	if rec == nil {
		return
	}

	name := mux.Vars(r)["name"]

	a, err := rec.Chip.Resolver().Resolve(name)
	if err != nil {
		httpError(w, http.StatusNotFound, err)
		return
	}

	v, err := rec.Chip.AxiSRead32(name)
	if err != nil {
		httpError(w, http.StatusBadGateway, err)
		return
	}

	writeJSON(w, wordRsp{Name: name, Addr: a.String(), Value: v})
}

func (m *Monitor) readAxi(w http.ResponseWriter, r *http.Request) {
	rec := m.findChipOr404(w, r)
	if rec == nil {
		return
	}

	raw, err := strconv.ParseUint(mux.Vars(r)["addr"], 0, 32)
	if err != nil {
		httpError(w, http.StatusBadRequest, err)
		return
	}

	a := addr.AxiAddress(raw)

	v, err := chip.Read32(rec.Chip.Interface(), a)
	if err != nil {
		httpError(w, http.StatusBadGateway, err)
		return
	}

	writeJSON(w, wordRsp{Addr: a.String(), Value: v})
}

func (m *Monitor) listStats(w http.ResponseWriter, _ *http.Request) {
	m.mu.RLock()
	stats := m.stats
	m.mu.RUnlock()

	if stats == nil {
		httpError(w, http.StatusNotFound, fmt.Errorf("no tracer registered"))
		return
	}

	writeJSON(w, stats.Snapshot())
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	bars := make([]progressRsp, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		bars = append(bars, b.snapshot())
	}

	writeJSON(w, bars)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		httpError(w, http.StatusInternalServerError, err)
		return
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		httpError(w, http.StatusInternalServerError, err)
		return
	}

	mem, err := proc.MemoryInfo()
	if err != nil {
		httpError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, resourceRsp{CPUPercent: cpuPercent, MemorySize: mem.RSS})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	if err := pprof.StartCPUProfile(buf); err != nil {
		httpError(w, http.StatusConflict, err)
		return
	}

	time.Sleep(m.profileSeconds)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		httpError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(data)
	dieOnErr(err)
}

func httpError(w http.ResponseWriter, code int, err error) {
	w.WriteHeader(code)
	fmt.Fprintf(w, "Error: %s", err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
