// Package config holds station configuration. Values are layered, lowest
// precedence first: struct defaults, an optional YAML or TOML file, then
// ROLLCALL_* environment variables.
package config

import (
	"time"

	"github.com/abihf/rollcall/detect"
	"github.com/abihf/rollcall/lbph"
)

type Config struct {
	LogLevel string `koanf:"log_level" default:"info"`

	Capture    Capture    `koanf:"capture"`
	Detect     Detect     `koanf:"detect"`
	Dataset    Dataset    `koanf:"dataset"`
	Model      Model      `koanf:"model"`
	Attendance Attendance `koanf:"attendance"`
	Station    Station    `koanf:"station"`
}

type Capture struct {
	Device          string `koanf:"device" default:"/dev/video0"`
	Format          string `koanf:"format" default:"YUYV"`
	Width           uint32 `koanf:"width" default:"640"`
	Height          uint32 `koanf:"height" default:"480"`
	MaxTimeouts     int    `koanf:"max_timeouts" default:"10"`
	SkipBadExposure bool   `koanf:"skip_bad_exposure" default:"true"`
}

type Detect struct {
	Cascade      string  `koanf:"cascade" default:"/usr/share/rollcall/facefinder"`
	MinSize      int     `koanf:"min_size" default:"80"`
	MaxSize      int     `koanf:"max_size" default:"1000"`
	Shift        float64 `koanf:"shift" default:"0.1"`
	Scale        float64 `koanf:"scale" default:"1.1"`
	IoU          float64 `koanf:"iou" default:"0.2"`
	MinNeighbors int     `koanf:"min_neighbors" default:"3"`
	MinQuality   float32 `koanf:"min_quality" default:"5"`
}

type Dataset struct {
	Dir    string `koanf:"dir" default:"/var/lib/rollcall/dataset"`
	Size   int    `koanf:"size" default:"100"`
	Target int    `koanf:"target" default:"30"`
}

type Model struct {
	Path       string `koanf:"path" default:"/var/lib/rollcall/model/face_model.cbor"`
	MinSamples int    `koanf:"min_samples" default:"5"`
	GridX      int    `koanf:"grid_x" default:"8"`
	GridY      int    `koanf:"grid_y" default:"8"`
}

type Attendance struct {
	DSN                string  `koanf:"dsn" default:"/var/lib/rollcall/attendance.db"`
	Threshold          float64 `koanf:"threshold" default:"55"`
	StopAfterFirstMark bool    `koanf:"stop_after_first_mark" default:"false"`
}

type Station struct {
	Socket  string `koanf:"socket" default:"/run/rollcall/rollcalld.sock"`
	PidFile string `koanf:"pid_file" default:"/run/rollcall/rollcalld.pid"`
	// Timeout bounds one MARK session, in seconds.
	Timeout int    `koanf:"timeout" default:"30"`
	OpsAddr string `koanf:"ops_addr"`
	LogFile string `koanf:"log_file"`
	// CPU pins the capture thread; negative leaves it unpinned.
	CPU int `koanf:"cpu" default:"-1"`
}

func (s Station) SessionTimeout() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

func (d Detect) Params() detect.Params {
	return detect.Params{
		MinSize:      d.MinSize,
		MaxSize:      d.MaxSize,
		ShiftFactor:  d.Shift,
		ScaleFactor:  d.Scale,
		IoUThreshold: d.IoU,
		MinNeighbors: d.MinNeighbors,
		MinQuality:   d.MinQuality,
	}
}

func (c *Config) LBPH() lbph.Params {
	return lbph.Params{GridX: c.Model.GridX, GridY: c.Model.GridY, Size: c.Dataset.Size}
}
