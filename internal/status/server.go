// Package status serves the progress of a running scan over HTTP so the rig
// can be watched from another machine while the board is in the beam.
package status

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/OpenTraceLab/OpenTraceSEU/pkg/eeprom"
	"github.com/OpenTraceLab/OpenTraceSEU/pkg/scan"
)

// Progress is the run-level state reported by /api/progress.
type Progress struct {
	Board          int    `json:"board"`
	RunID          string `json:"run_id"`
	State          string `json:"state"`
	Reason         string `json:"reason,omitempty"`
	Pass           int    `json:"pass"`
	Policy         string `json:"policy"`
	ElapsedSeconds int64  `json:"elapsed_seconds"`
	BytesRead      int    `json:"bytes_read"`
	NewFailures    int    `json:"new_failures"`
	TotalFailures  int    `json:"total_failures"`
	ReadErrors     int    `json:"read_errors"`
	SinkErrors     int    `json:"sink_errors"`
	MirrorErrors   int    `json:"mirror_errors"`
}

// DeviceStatus is a copy of one device record taken after a pass.
type DeviceStatus struct {
	Bank     int    `json:"bank"`
	Slot     int    `json:"eeprom"`
	Status   string `json:"status"`
	Capacity int    `json:"capacity"`
	Failures int    `json:"failures"`
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

// Server holds the latest snapshot published by the scan goroutine. Handlers
// only ever see copies, so the engine itself needs no locking.
type Server struct {
	port int

	mu       sync.Mutex
	progress Progress
	devices  []DeviceStatus

	srv *http.Server
}

// NewServer creates a server for one run.
func NewServer(board int, runID string) *Server {
	return &Server{
		progress: Progress{
			Board: board,
			RunID: runID,
			State: scan.Stopped.String(),
		},
	}
}

// WithPortNumber sets the listening port. Privileged ports are refused and
// replaced by a random one.
func (s *Server) WithPortNumber(port int) *Server {
	if port < 1000 {
		if port != 0 {
			fmt.Fprintf(os.Stderr,
				"Port number %d is assigned to the status server, "+
					"which is not allowed. Using a random port instead.\n", port)
		}
		port = 0
	}
	s.port = port
	return s
}

// Update records a finished pass. It must be called on the goroutine that
// owns pop.
func (s *Server) Update(p scan.PassReport, pop *eeprom.Population) {
	devices := make([]DeviceStatus, 0, pop.Len())
	for _, d := range pop.Devices() {
		devices = append(devices, DeviceStatus{
			Bank:     d.Bank,
			Slot:     d.Slot,
			Status:   d.Status().String(),
			Capacity: d.Capacity(),
			Failures: d.Reported(),
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.progress.State = scan.Running.String()
	s.progress.Pass = p.Pass
	s.progress.Policy = p.Policy.String()
	s.progress.ElapsedSeconds = int64(p.Elapsed / time.Second)
	s.progress.BytesRead = p.BytesRead
	s.progress.NewFailures = p.NewFailures
	s.progress.TotalFailures = p.TotalFailures
	s.progress.ReadErrors += p.ReadErrors
	s.progress.SinkErrors += p.SinkErrors
	s.progress.MirrorErrors += p.MirrorErrors
	s.devices = devices
}

// Finish marks the run as stopped.
func (s *Server) Finish(report scan.RunReport) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.progress.State = scan.Stopped.String()
	s.progress.Reason = report.Reason
	s.progress.ElapsedSeconds = int64(report.Elapsed / time.Second)
	s.progress.TotalFailures = report.TotalFailures
}

// Progress returns a copy of the current run state.
func (s *Server) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", s.index)
	r.HandleFunc("/api/progress", s.listProgress)
	r.HandleFunc("/api/devices", s.listDevices)
	r.HandleFunc("/api/device/{bank:[0-9]+}/{slot:[0-9]+}", s.deviceDetails)
	r.HandleFunc("/api/resource", s.listResources)
	r.HandleFunc("/api/profile", s.collectProfile)
	return r
}

// Start listens and serves in the background. It returns the base URL.
func (s *Server) Start() (string, error) {
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(s.port))
	if err != nil {
		return "", fmt.Errorf("status server: %w", err)
	}
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "status server: %v\n", err)
		}
	}()

	return fmt.Sprintf("http://localhost:%d", listener.Addr().(*net.TCPAddr).Port), nil
}

// Close stops the server.
func (s *Server) Close() error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Close()
}

func (s *Server) index(w http.ResponseWriter, _ *http.Request) {
	p := s.Progress()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "Board %d, run %s: %s\n", p.Board, p.RunID, p.State)
	fmt.Fprintf(w, "Pass %d (%s), %ds elapsed\n", p.Pass, p.Policy, p.ElapsedSeconds)
	fmt.Fprintf(w, "Failures: %d total, %d new in the last pass\n", p.TotalFailures, p.NewFailures)
	if p.ReadErrors > 0 || p.SinkErrors > 0 || p.MirrorErrors > 0 {
		fmt.Fprintf(w, "Read errors: %d, dropped records: %d, mirror failures: %d\n",
			p.ReadErrors, p.SinkErrors, p.MirrorErrors)
	}
}

func (s *Server) listProgress(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.Progress())
}

func (s *Server) listDevices(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	devices := append([]DeviceStatus(nil), s.devices...)
	s.mu.Unlock()

	writeJSON(w, devices)
}

func (s *Server) deviceDetails(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	bank, _ := strconv.Atoi(vars["bank"])
	slot, _ := strconv.Atoi(vars["slot"])

	dev, ok := s.findDevice(bank, slot)
	if !ok {
		http.Error(w, fmt.Sprintf("no EEPROM %d in bank %d", slot, bank), http.StatusNotFound)
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(&dev)
	serializer.SetMaxDepth(1)
	if err := serializer.Serialize(w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) findDevice(bank, slot int) (DeviceStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.devices {
		if d.Bank == bank && d.Slot == slot {
			return d, true
		}
	}
	return DeviceStatus{}, false
}

func (s *Server) listResources(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	memory, err := proc.MemoryInfo()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memory.RSS,
	})
}

// collectProfile samples the CPU for one second.
func (s *Server) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)
	if err := pprof.StartCPUProfile(buf); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	time.Sleep(time.Second)
	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}
