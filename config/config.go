package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/calendar"
	"github.com/warp/attendance-engine/recalc"
)

// Config models engine.yml.
type Config struct {
	Store struct {
		Driver        string `yaml:"driver"`
		DSN           string `yaml:"dsn"`
		MongoURI      string `yaml:"mongo_uri"`
		MongoDatabase string `yaml:"mongo_database"`
	} `yaml:"store"`
	Server struct {
		Addr           string   `yaml:"addr"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	Schedule struct {
		DayShift            Window   `yaml:"day_shift"`
		NightShift          Window   `yaml:"night_shift"`
		RegularShiftMinutes int      `yaml:"regular_shift_minutes"`
		Night               Window   `yaml:"night"`
		RestDays            []string `yaml:"rest_days"`
	} `yaml:"schedule"`
	Rounding struct {
		UnitMinutes int    `yaml:"unit_minutes"`
		Mode        string `yaml:"mode"`
		Scope       string `yaml:"scope"`
	} `yaml:"rounding"`
	Recalc struct {
		Workers        int           `yaml:"workers"`
		Timeout        time.Duration `yaml:"timeout"`
		RetryAttempts  int           `yaml:"retry_attempts"`
		RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
		RetryMaxDelay  time.Duration `yaml:"retry_max_delay"`
		PublishPartial bool          `yaml:"publish_partial"`
		SweepInterval  time.Duration `yaml:"sweep_interval"`
		ShardIndex     int           `yaml:"shard_index"`
		ShardCount     int           `yaml:"shard_count"`
	} `yaml:"recalc"`
	Holidays []Holiday `yaml:"holidays"`
}

// Window is a clock range written as HH:MM strings.
type Window struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

type Holiday struct {
	Date      string `yaml:"date"`
	Name      string `yaml:"name"`
	Recurring bool   `yaml:"recurring"`
}

// Validate ensures the config is usable by the engine.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if c.Store.DSN == "" {
			return fmt.Errorf("config.store.dsn is required for sqlite")
		}
	case "mongo":
		if c.Store.MongoURI == "" || c.Store.MongoDatabase == "" {
			return fmt.Errorf("config.store.mongo_uri and mongo_database are required for mongo")
		}
	default:
		return fmt.Errorf("config.store.driver must be memory, sqlite or mongo, got %q", c.Store.Driver)
	}
	if _, err := c.Rules(); err != nil {
		return err
	}
	if err := c.RoundingPolicy().Validate(); err != nil {
		return fmt.Errorf("config.rounding: %w", err)
	}
	if c.Recalc.Workers < 1 {
		return fmt.Errorf("config.recalc.workers must be at least 1")
	}
	if c.Recalc.Timeout <= 0 {
		return fmt.Errorf("config.recalc.timeout must be positive")
	}
	if c.Recalc.RetryAttempts < 1 {
		return fmt.Errorf("config.recalc.retry_attempts must be at least 1")
	}
	if err := c.shard().Validate(); err != nil {
		return fmt.Errorf("config.recalc: %w", err)
	}
	if _, err := c.HolidayList(); err != nil {
		return err
	}
	return nil
}

// Rules converts the schedule section.
func (c *Config) Rules() (calendar.Rules, error) {
	var (
		r   calendar.Rules
		err error
	)
	if r.DayShift, err = shiftWindow("day_shift", c.Schedule.DayShift); err != nil {
		return r, err
	}
	if r.NightShift, err = shiftWindow("night_shift", c.Schedule.NightShift); err != nil {
		return r, err
	}
	night, err := shiftWindow("night", c.Schedule.Night)
	if err != nil {
		return r, err
	}
	r.Night = attendance.NightWindow{Start: night.Start, End: night.End}

	if c.Schedule.RegularShiftMinutes <= 0 || c.Schedule.RegularShiftMinutes > 24*60 {
		return r, fmt.Errorf("config.schedule.regular_shift_minutes %d out of range", c.Schedule.RegularShiftMinutes)
	}
	r.RegularShiftMinutes = c.Schedule.RegularShiftMinutes

	for _, name := range c.Schedule.RestDays {
		wd, ok := weekdays[strings.ToLower(name)]
		if !ok {
			return r, fmt.Errorf("config.schedule.rest_days: unknown weekday %q", name)
		}
		r.RestDays = append(r.RestDays, wd)
	}
	return r, nil
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

func shiftWindow(name string, w Window) (attendance.ShiftWindow, error) {
	start, err := attendance.ParseClock(w.Start)
	if err != nil {
		return attendance.ShiftWindow{}, fmt.Errorf("config.schedule.%s.start: %w", name, err)
	}
	end, err := attendance.ParseClock(w.End)
	if err != nil {
		return attendance.ShiftWindow{}, fmt.Errorf("config.schedule.%s.end: %w", name, err)
	}
	return attendance.ShiftWindow{Start: start, End: end}, nil
}

func (c *Config) RoundingPolicy() attendance.Rounding {
	return attendance.Rounding{
		UnitMinutes: c.Rounding.UnitMinutes,
		Mode:        attendance.RoundingMode(c.Rounding.Mode),
		Scope:       attendance.RoundingScope(c.Rounding.Scope),
	}
}

func (c *Config) shard() recalc.Shard {
	return recalc.Shard{Index: c.Recalc.ShardIndex, Count: c.Recalc.ShardCount}
}

// RecalcOptions converts the recalc and rounding sections.
func (c *Config) RecalcOptions() recalc.Options {
	opts := recalc.DefaultOptions()
	opts.Workers = c.Recalc.Workers
	opts.Timeout = c.Recalc.Timeout
	opts.Retry = recalc.RetryPolicy{
		Attempts:  c.Recalc.RetryAttempts,
		BaseDelay: c.Recalc.RetryBaseDelay,
		MaxDelay:  c.Recalc.RetryMaxDelay,
	}
	opts.Rounding = c.RoundingPolicy()
	opts.PublishPartial = c.Recalc.PublishPartial
	opts.Shard = c.shard()
	return opts
}

// HolidayList converts the holidays section. IDs are derived from the date
// so reloading the same file is idempotent.
func (c *Config) HolidayList() ([]attendance.Holiday, error) {
	out := make([]attendance.Holiday, 0, len(c.Holidays))
	for i, h := range c.Holidays {
		d, err := attendance.ParseDate(h.Date)
		if err != nil {
			return nil, fmt.Errorf("config.holidays[%d]: %w", i, err)
		}
		if h.Name == "" {
			return nil, fmt.Errorf("config.holidays[%d].name is required", i)
		}
		id := "cfg-" + d.String()
		if h.Recurring {
			id = fmt.Sprintf("cfg-%02d-%02d", int(d.Month), d.Day)
		}
		out = append(out, attendance.Holiday{ID: id, Date: d, Name: h.Name, Recurring: h.Recurring})
	}
	return out, nil
}

// Path returns the config file path for a directory.
func Path(dir string) string {
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, "engine.yml")
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(DefaultYAML)).Decode(&cfg)
	return &cfg
}

// FromYAML parses YAML over the defaults and validates the result.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the file does not exist.
func LoadOptional(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

const DefaultYAML = `store:
  driver: sqlite
  dsn: ./attendance.db
  mongo_database: hr

server:
  addr: ":8080"
  allowed_origins:
    - http://localhost:5173
    - http://localhost:8080

schedule:
  day_shift:
    start: "09:00"
    end: "18:00"
  night_shift:
    start: "22:00"
    end: "06:00"
  regular_shift_minutes: 480
  night:
    start: "22:00"
    end: "06:00"
  rest_days: [saturday, sunday]

rounding:
  unit_minutes: 0
  mode: floor
  scope: monthly

recalc:
  workers: 4
  timeout: 30s
  retry_attempts: 3
  retry_base_delay: 100ms
  retry_max_delay: 2s
  publish_partial: true
  sweep_interval: 5m
  shard_index: 0
  shard_count: 1
`
