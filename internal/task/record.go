package task

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"os/user"
	"runtime"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Provenance is the record captured when a task runs with track=true
// (spec.md §3.6, §4.4 step 23).
type Provenance struct {
	RunID       string
	UserID      string
	SCVersion   string
	ToolVersion string
	StartTime   time.Time
	EndTime     time.Time
	Machine     string
	GatewayIPv4 string
	GatewayMAC  string
	CloudRegion string
	Platform    string
	DistroID    string
	DistroVer   string
	KernelVer   string
	CPUArch     string
}

// Metrics is a per-run collector for task execution instrumentation,
// registered on its own registry rather than the global default so a
// host program can mount several runs' /metrics independently.
type Metrics struct {
	Registry *prometheus.Registry
	Duration *prometheus.HistogramVec
	ExitCode *prometheus.GaugeVec
	Tasks    *prometheus.CounterVec
}

// NewMetrics builds and registers the task metric collectors (spec.md
// §4.4 step 23, ambient instrumentation — see SPEC_FULL.md §4.4).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sc_task_duration_seconds",
			Help:    "Wall-clock duration of a compilation task.",
			Buckets: prometheus.DefBuckets,
		}, []string{"step", "index", "tool"}),
		ExitCode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sc_task_exit_code",
			Help: "Exit code of the last subprocess invocation for a task.",
		}, []string{"step", "index", "tool"}),
		Tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sc_tasks_total",
			Help: "Count of completed tasks by terminal status.",
		}, []string{"status"}),
	}
	reg.MustRegister(m.Duration, m.ExitCode, m.Tasks)
	return m
}

// Observe records one task's completion.
func (m *Metrics) Observe(step, index, tool string, duration time.Duration, exitCode int, status string) {
	if m == nil {
		return
	}
	m.Duration.WithLabelValues(step, index, tool).Observe(duration.Seconds())
	m.ExitCode.WithLabelValues(step, index, tool).Set(float64(exitCode))
	m.Tasks.WithLabelValues(status).Inc()
}

// NewRunID produces a short random identifier for the provenance record,
// avoiding a dependency on a wall-clock read (time.Now is already used
// elsewhere for the start/end timestamps themselves).
func NewRunID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// CollectHostProvenance fills in the machine-identity fields of a
// Provenance record: hostname, default-gateway IPv4/MAC best-effort, cloud
// region hint, distro, kernel, platform family, user, and architecture
// (spec.md §4.4 step 23, SPEC_FULL.md §3.6).
func CollectHostProvenance() Provenance {
	p := Provenance{
		CPUArch:   runtime.GOARCH,
		Platform:  runtime.GOOS,
		KernelVer: kernelVersion(),
	}
	if host, err := os.Hostname(); err == nil {
		p.Machine = host
	}
	if ip, mac, err := defaultGateway(); err == nil {
		p.GatewayIPv4 = ip
		p.GatewayMAC = mac
	}
	if u, err := user.Current(); err == nil {
		p.UserID = u.Username
	}
	p.CloudRegion = cloudRegion()
	p.DistroID, p.DistroVer = distroVersion()
	return p
}

// cloudRegion makes a best-effort guess at the host's cloud region from the
// well-known environment variables the major providers' SDKs/CLIs already
// read, without calling out to any instance-metadata endpoint.
func cloudRegion() string {
	for _, key := range []string{"AWS_REGION", "AWS_DEFAULT_REGION", "GOOGLE_CLOUD_REGION", "GCP_REGION", "AZURE_REGION", "FLY_REGION"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

// distroVersion parses /etc/os-release's ID and VERSION_ID fields on linux;
// on any other platform (or if the file is unreadable) it falls back to
// runtime.GOOS with no version, per SPEC_FULL.md §3.6.
func distroVersion() (id, version string) {
	if runtime.GOOS != "linux" {
		return runtime.GOOS, ""
	}
	f, err := os.Open("/etc/os-release")
	if err != nil {
		return runtime.GOOS, ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "ID="):
			id = unquoteOSRelease(strings.TrimPrefix(line, "ID="))
		case strings.HasPrefix(line, "VERSION_ID="):
			version = unquoteOSRelease(strings.TrimPrefix(line, "VERSION_ID="))
		}
	}
	if id == "" {
		id = runtime.GOOS
	}
	return id, version
}

func unquoteOSRelease(v string) string {
	return strings.Trim(strings.TrimSpace(v), `"'`)
}

// defaultGateway makes a best-effort guess at the host's outward-facing
// interface by opening a UDP "connection" to a public address and
// reading back the local endpoint and its interface's MAC, without
// actually sending a packet.
func defaultGateway() (ip, mac string, err error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", "", err
	}
	defer conn.Close()

	localAddr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", "", fmt.Errorf("unexpected local address type")
	}
	ip = localAddr.IP.String()

	ifaces, err := net.Interfaces()
	if err != nil {
		return ip, "", nil
	}
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if ipNet, ok := a.(*net.IPNet); ok && ipNet.IP.String() == ip {
				return ip, iface.HardwareAddr.String(), nil
			}
		}
	}
	return ip, "", nil
}
