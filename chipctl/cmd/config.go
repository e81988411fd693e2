package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/sarchlab/chiplink/arc"
	"github.com/sarchlab/chiplink/simchip"
)

// Environment variables read by LoadConfig.
const (
	EnvArcTimeout  = "CHIPLINK_ARC_TIMEOUT"
	EnvPollMax     = "CHIPLINK_POLL_MAX"
	EnvTraceDB     = "CHIPLINK_TRACE_DB"
	EnvTraceLog    = "CHIPLINK_TRACE_LOG"
	EnvMonitorPort = "CHIPLINK_MONITOR_PORT"
	EnvSysfsRoot   = "CHIPLINK_SYSFS_ROOT"
	EnvSim         = "CHIPLINK_SIM"
)

// Config holds the settings shared by all commands.
type Config struct {
	ArcTimeout time.Duration
	PollMax    time.Duration

	// TraceDB is the recording path without extension. Empty disables
	// recording.
	TraceDB  string
	TraceLog bool

	MonitorPort int
	SysfsRoot   string

	// Sim selects a simulated host instead of the PCI bus. See
	// ParseTopology.
	Sim string
}

// DefaultConfig is used for variables that are not set.
var DefaultConfig = Config{
	ArcTimeout: arc.DefaultConfig.Timeout,
	PollMax:    arc.DefaultConfig.PollMax,
}

// LoadConfig loads the given env files, or ./.env when none is given and it
// exists, then reads the configuration from the environment. Variables
// already set in the environment win over the files.
func LoadConfig(files ...string) (Config, error) {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err == nil {
			files = []string{".env"}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}

	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return Config{}, fmt.Errorf("loading env files: %w", err)
		}
	}

	cfg := DefaultConfig

	var err error

	if cfg.ArcTimeout, err = envDuration(EnvArcTimeout, cfg.ArcTimeout); err != nil {
		return Config{}, err
	}

	if cfg.PollMax, err = envDuration(EnvPollMax, cfg.PollMax); err != nil {
		return Config{}, err
	}

	if cfg.TraceLog, err = envBool(EnvTraceLog, cfg.TraceLog); err != nil {
		return Config{}, err
	}

	if v, ok := os.LookupEnv(EnvMonitorPort); ok {
		if cfg.MonitorPort, err = strconv.Atoi(v); err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvMonitorPort, err)
		}
	}

	cfg.TraceDB = os.Getenv(EnvTraceDB)
	cfg.SysfsRoot = os.Getenv(EnvSysfsRoot)
	cfg.Sim = os.Getenv(EnvSim)

	return cfg, nil
}

func envDuration(name string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def, nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}

	return d, nil
}

func envBool(name string, def bool) (bool, error) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def, nil
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", name, err)
	}

	return b, nil
}

// ParseTopology reads a simulated host description. "default" is
// simchip.DefaultSystemConfig; otherwise it is a comma separated list of
// key=count with keys gs, bh, wh, unopenable and unknown, plus the flag
// dead.
func ParseTopology(s string) (simchip.SystemConfig, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "default" {
		return simchip.DefaultSystemConfig, nil
	}

	var cfg simchip.SystemConfig

	for _, item := range strings.Split(s, ",") {
		key, val, hasVal := strings.Cut(strings.TrimSpace(item), "=")

		if key == "dead" && !hasVal {
			cfg.DeadFirmware = true
			continue
		}

		n, err := strconv.Atoi(val)
		if !hasVal || err != nil || n < 0 {
			return simchip.SystemConfig{}, fmt.Errorf("bad topology item %q", item)
		}

		switch key {
		case "gs":
			cfg.Grayskull = n
		case "bh":
			cfg.Blackhole = n
		case "wh":
			cfg.WormholeRing = n
		case "unopenable":
			cfg.Unopenable = n
		case "unknown":
			cfg.UnknownArch = n
		default:
			return simchip.SystemConfig{}, fmt.Errorf("unknown topology key %q", key)
		}
	}

	return cfg, nil
}
