// Package config loads the abstract key set of spec.md §6 into a
// typed Settings struct. The concrete file format is a thin YAML
// adapter (gopkg.in/yaml.v2, part of the teacher's own dependency
// set) — the config-file parser is named in spec.md §1 as an external
// collaborator, so this package's job is only to produce Settings,
// not to implement a general config language.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Delay groups the selector's retry tunables (spec.md §4.6 SelServer,
// §6 "delay" key).
type Delay struct {
	Lookup   time.Duration `yaml:"lookup"`
	Startup  time.Duration `yaml:"startup"`
	Servers  time.Duration `yaml:"servers"`
	Full     time.Duration `yaml:"full"`
	Suspend  time.Duration `yaml:"suspend"`
	Drop     time.Duration `yaml:"drop"`
	Service  time.Duration `yaml:"service"`
	Overload time.Duration `yaml:"overload"`
	Discard  time.Duration `yaml:"discard"`
}

// SchedWeights groups the by-load score weights (spec.md §4.6).
type SchedWeights struct {
	CPU      float64       `yaml:"cpu"`
	IO       float64       `yaml:"io"`
	Mem      float64       `yaml:"mem"`
	Pag      float64       `yaml:"pag"`
	RunQ     float64       `yaml:"runq"`
	Fuzz     float64       `yaml:"fuzz"`
	MaxLoad  float64       `yaml:"maxload"`
	RefReset time.Duration `yaml:"refreset"`
}

// Space groups the space-floor tunables (spec.md §4.6, §4 supplement
// "space-adjust-per-selection").
type Space struct {
	Linger  time.Duration `yaml:"linger"`
	MinFree int64         `yaml:"min"`
	Adjust  int64         `yaml:"adjust"`
}

// Ping groups the monitoring cadence (spec.md §4.6).
type Ping struct {
	Interval time.Duration `yaml:"interval"`
	LogEvery int           `yaml:"log"`
	Usage    int           `yaml:"usage"`
}

// Prep groups the Prepare Queue tunables (spec.md §4.7).
type Prep struct {
	ResetEvery int           `yaml:"reset"`
	Scrub      time.Duration `yaml:"scrub"`
	Echo       bool          `yaml:"echo"`
	IFProgram  string        `yaml:"ifpgm"`
}

// Threads groups Scheduler sizing (spec.md §4.3).
type Threads struct {
	Max int `yaml:"max"`
	Min int `yaml:"min"`
}

// PathRule is one `path {r|w|rw}[s] <prefix>` declaration.
type PathRule struct {
	Prefix    string `yaml:"prefix"`
	Readable  bool   `yaml:"readable"`
	Writable  bool   `yaml:"writable"`
	Stageable bool   `yaml:"stageable"`
}

// Settings is the fully parsed configuration document.
type Settings struct {
	Port       int           `yaml:"port"`
	UDPManager int           `yaml:"udp_manager"`
	UDPServer  int           `yaml:"udp_server"`
	AdminPath  string        `yaml:"adminpath"`
	AdminGroup string        `yaml:"admingroup"`
	Allow      []string      `yaml:"allow"`
	CachePaths []string      `yaml:"cache"`
	LocalRoot  string        `yaml:"localroot"`
	RemoteRoot string        `yaml:"remoteroot"`
	Paths      []PathRule    `yaml:"paths"`
	Delay      Delay         `yaml:"delay"`
	FXHold     time.Duration `yaml:"fxhold"`
	Sched      SchedWeights  `yaml:"sched"`
	Space      Space         `yaml:"space"`
	Ping       Ping          `yaml:"ping"`
	Prep       Prep          `yaml:"prep"`
	// Subscribe preserves config order as the mandlist preference list
	// (SPEC_FULL.md §4 "mandlist preferred-manager ordering").
	Subscribe []string `yaml:"subscribe"`
	Threads   struct {
		Manager Threads `yaml:"manager"`
		Server  Threads `yaml:"server"`
	} `yaml:"threads"`
	Trace []string `yaml:"trace"`
}

// Default returns a Settings populated with the defaults implied by
// spec.md's prose for each key.
func Default() Settings {
	var s Settings
	s.Port = 1094
	s.Delay = Delay{
		Lookup: 5 * time.Second, Startup: 90 * time.Second, Servers: 10 * time.Second,
		Full: 0, Suspend: 90 * time.Second, Drop: 120 * time.Second,
		Service: 90 * time.Second, Overload: 60 * time.Second, Discard: 3600 * time.Second,
	}
	s.FXHold = 10 * time.Minute
	s.Sched = SchedWeights{CPU: 0, IO: 0, Mem: 0, Pag: 0, RunQ: 0, Fuzz: 5, MaxLoad: 100, RefReset: 60 * time.Second}
	s.Space = Space{MinFree: 0, Adjust: 0}
	s.Ping = Ping{Interval: 60 * time.Second, LogEvery: 8, Usage: 4}
	s.Prep = Prep{ResetEvery: 0, Scrub: 10 * time.Minute}
	s.Threads.Manager = Threads{Max: 128, Min: 4}
	s.Threads.Server = Threads{Max: 256, Min: 8}
	return s
}

// Load reads a YAML config document at path and overlays it onto
// Default().
func Load(path string) (Settings, error) {
	s := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return s, errors.Wrapf(err, "reading config %q", path)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, errors.Wrapf(err, "parsing config %q", path)
	}
	return s, nil
}
