// Package config loads the engine's recognized configuration surface (spec
// §6) from a YAML file layered with environment variable overrides, the way
// coachpo/meltica/internal/config resolves its Settings tree.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"gopkg.in/yaml.v3"
)

// Engine selects which Controller implementation drives the topology.
type Engine int

const (
	// EngineArrow is the production multi-threaded arrow engine.
	EngineArrow Engine = 0
	// EngineDebug is the single-threaded bring-up engine.
	EngineDebug Engine = 1
)

// Affinity selects the worker-to-CPU pinning strategy.
type Affinity int

const (
	// AffinityNone performs no CPU pinning.
	AffinityNone Affinity = 0
	// AffinitySequential gives worker i CPU id i and sets PinToCPU, which
	// locks each worker goroutine to its OS thread; no OS CPU affinity is
	// set.
	AffinitySequential Affinity = 1
	// AffinityCoreFill is accepted and handled exactly like
	// AffinitySequential; workers are not packed onto cores or domains.
	AffinityCoreFill Affinity = 2
)

// Settings holds the recognized configuration surface from spec §6.
type Settings struct {
	NThreads           int               `yaml:"nthreads"`
	Engine             Engine            `yaml:"jana:engine"`
	Timeout            time.Duration     `yaml:"jana:timeout"`
	WarmupTimeout      time.Duration     `yaml:"jana:warmup_timeout"`
	ExtendedReport     bool              `yaml:"jana:extended_report"`
	Affinity           Affinity          `yaml:"affinity"`
	RecordCallStack    bool              `yaml:"RECORD_CALL_STACK"`
	DefaultTags        map[string]string `yaml:"-"`
	PollInterval       time.Duration     `yaml:"-"`
	EventPoolCapacity  int               `yaml:"-"`
	LocalityDomainSize int               `yaml:"-"`
}

// Default returns the engine's default configuration, detecting the CPU
// count via gopsutil the way shirou/gopsutil backs node sizing elsewhere in
// the retrieval pack.
func Default() Settings {
	n := detectCPUCount()
	return Settings{
		NThreads:           n,
		Engine:             EngineArrow,
		Timeout:            8 * time.Second,
		WarmupTimeout:      30 * time.Second,
		ExtendedReport:     false,
		Affinity:           AffinityNone,
		RecordCallStack:    false,
		DefaultTags:        map[string]string{},
		PollInterval:       500 * time.Millisecond,
		EventPoolCapacity:  n * 4,
		LocalityDomainSize: 1,
	}
}

func detectCPUCount() int {
	counts, err := cpu.Counts(true)
	if err != nil || counts <= 0 {
		return 4
	}
	return counts
}

// Load reads Settings from a YAML file at path (if non-empty and present),
// then applies environment variable overrides, then validates the result.
func Load(path string) (Settings, error) {
	s := Default()
	if strings.TrimSpace(path) != "" {
		if err := loadYAML(path, &s); err != nil {
			return Settings{}, err
		}
	}
	applyEnvOverrides(&s)
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func loadYAML(path string, s *Settings) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, s)
}

func applyEnvOverrides(s *Settings) {
	if v := os.Getenv("JANA_NTHREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			s.NThreads = n
		}
	}
	if v := os.Getenv("JANA_ENGINE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.Engine = Engine(n)
		}
	}
	if v := os.Getenv("JANA_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			s.Timeout = d
		}
	}
	if v := os.Getenv("JANA_WARMUP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			s.WarmupTimeout = d
		}
	}
	if v := os.Getenv("JANA_EXTENDED_REPORT"); v != "" {
		s.ExtendedReport = v == "true" || v == "1"
	}
	if v := os.Getenv("JANA_RECORD_CALL_STACK"); v != "" {
		s.RecordCallStack = v == "true" || v == "1"
	}
	const deftagPrefix = "JANA_DEFTAG_"
	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, deftagPrefix) {
			continue
		}
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		className := strings.TrimPrefix(parts[0], deftagPrefix)
		if s.DefaultTags == nil {
			s.DefaultTags = map[string]string{}
		}
		s.DefaultTags[className] = parts[1]
	}
}

// Validate checks the configuration is internally consistent.
func (s Settings) Validate() error {
	if s.NThreads <= 0 {
		return errInvalid("nthreads must be positive")
	}
	if s.Timeout <= 0 {
		return errInvalid("jana:timeout must be positive")
	}
	if s.WarmupTimeout <= 0 {
		return errInvalid("jana:warmup_timeout must be positive")
	}
	if s.EventPoolCapacity <= 0 {
		return errInvalid("event pool capacity must be positive")
	}
	if s.LocalityDomainSize <= 0 {
		return errInvalid("locality domain size must be positive")
	}
	return nil
}

type configError string

func (e configError) Error() string { return string(e) }

func errInvalid(msg string) error { return configError("config: " + msg) }
