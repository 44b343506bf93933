package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// Tier is one qualitative boundary: values on the better side of Cutoff
// (inclusive) earn Label. Tables are ordered best tier first; the last
// entry doubles as the fallback label.
type Tier struct {
	Cutoff float64 `json:"cutoff" yaml:"cutoff"`
	Label  string  `json:"label" yaml:"label"`
}

type Config struct {
	LogLevel   string           `json:"log_level" yaml:"log_level"`
	Thresholds ThresholdsConfig `json:"thresholds" yaml:"thresholds"`
	Detection  DetectionConfig  `json:"detection" yaml:"detection"`
	Metrics    MetricsConfig    `json:"metrics" yaml:"metrics"`
	Simulator  SimulatorConfig  `json:"simulator" yaml:"simulator"`
	Ingest     IngestConfig     `json:"ingest" yaml:"ingest"`
	API        APIConfig        `json:"api" yaml:"api"`
	Storage    StorageConfig    `json:"storage" yaml:"storage"`
}

// ThresholdsConfig holds the fixed physical limits used by the static
// checker. Read-only for the engine's lifetime.
type ThresholdsConfig struct {
	TemperatureSetpoint  float64       `json:"temperature_setpoint" yaml:"temperature_setpoint"`
	TemperatureTolerance float64       `json:"temperature_tolerance" yaml:"temperature_tolerance"`
	FlowInactivityLevel  float64       `json:"flow_inactivity_level" yaml:"flow_inactivity_level"`
	FlowInactivityFor    time.Duration `json:"flow_inactivity_for" yaml:"flow_inactivity_for"`
	LevelLow             float64       `json:"level_low" yaml:"level_low"`
	LevelFull            float64       `json:"level_full" yaml:"level_full"`
	PowerHigh            float64       `json:"power_high" yaml:"power_high"`
}

type DetectionConfig struct {
	Window           int           `json:"window" yaml:"window"`
	ZThreshold       float64       `json:"z_threshold" yaml:"z_threshold"`
	MinWindowSamples int           `json:"min_window_samples" yaml:"min_window_samples"`
	GroupTolerance   time.Duration `json:"group_tolerance" yaml:"group_tolerance"`
	RecoveryPolicy   string        `json:"recovery_policy" yaml:"recovery_policy"`
}

// Recovery policies for the response_index metric.
const (
	RecoveryStaticBounds = "static_bounds"
	RecoveryNextReading  = "next_reading"
)

type MetricsConfig struct {
	AvgFlowRatePerUser float64       `json:"avg_flow_rate_per_user" yaml:"avg_flow_rate_per_user"` // L/min per user
	PipeMaxFlow        float64       `json:"pipe_max_flow" yaml:"pipe_max_flow"`                   // L/min
	FlowActiveLevel    float64       `json:"flow_active_level" yaml:"flow_active_level"`           // L/min, service threshold
	PowerActiveLevel   float64       `json:"power_active_level" yaml:"power_active_level"`         // kW, selection threshold
	SampleInterval     time.Duration `json:"sample_interval" yaml:"sample_interval"`
	HeaterEfficiency   float64       `json:"heater_efficiency" yaml:"heater_efficiency"`
	CpWater            float64       `json:"cp_water" yaml:"cp_water"` // kJ/kg·°C
	AmbientTemp        float64       `json:"ambient_temp" yaml:"ambient_temp"`
	PerformanceFloor   float64       `json:"performance_floor" yaml:"performance_floor"`
	Tiers              TiersConfig   `json:"tiers" yaml:"tiers"`
}

// TiersConfig carries the qualitative cut points for every metric.
type TiersConfig struct {
	Availability     []Tier `json:"availability" yaml:"availability"`
	Quality          []Tier `json:"quality" yaml:"quality"`
	LevelUptime      []Tier `json:"level_uptime" yaml:"level_uptime"`
	PerformanceDev   []Tier `json:"performance_dev" yaml:"performance_dev"`
	EnergyRatio      []Tier `json:"energy_ratio" yaml:"energy_ratio"`
	ThermalVariation []Tier `json:"thermal_variation" yaml:"thermal_variation"`
	PeakFlowRatio    []Tier `json:"peak_flow_ratio" yaml:"peak_flow_ratio"`
	MTBA             []Tier `json:"mtba" yaml:"mtba"`
	MTBF             []Tier `json:"mtbf" yaml:"mtbf"`
	ResponseIndex    []Tier `json:"response_index" yaml:"response_index"`
	ResponseTime     []Tier `json:"response_time" yaml:"response_time"`
	NonproductivePct []Tier `json:"nonproductive_pct" yaml:"nonproductive_pct"`
	FailuresCount    []Tier `json:"failures_count" yaml:"failures_count"`
	UsageRate        []Tier `json:"usage_rate" yaml:"usage_rate"`
}

type SimulatorConfig struct {
	Seed          int64   `json:"seed" yaml:"seed"`
	FlowVariation float64 `json:"flow_variation" yaml:"flow_variation"` // fraction, ±
	TempVariation float64 `json:"temp_variation" yaml:"temp_variation"` // °C, ±
	PowerBase     float64 `json:"power_base" yaml:"power_base"`         // kW
	PowerPerDegC  float64 `json:"power_per_deg_c" yaml:"power_per_deg_c"`
	TankCapacityL float64 `json:"tank_capacity_l" yaml:"tank_capacity_l"`
}

type IngestConfig struct {
	ChannelBuffer int         `json:"channel_buffer" yaml:"channel_buffer"`
	Kafka         KafkaConfig `json:"kafka" yaml:"kafka"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Driver string `json:"driver" yaml:"driver"`
	DSN    string `json:"dsn" yaml:"dsn"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Thresholds: ThresholdsConfig{
			TemperatureSetpoint:  60.0,
			TemperatureTolerance: 2.0,
			FlowInactivityLevel:  0.001,
			FlowInactivityFor:    5 * time.Minute,
			LevelLow:             0.2,
			LevelFull:            1.0,
			PowerHigh:            6.5,
		},
		Detection: DetectionConfig{
			Window:           60,
			ZThreshold:       2.0,
			MinWindowSamples: 2,
			GroupTolerance:   1 * time.Minute,
			RecoveryPolicy:   RecoveryStaticBounds,
		},
		Metrics: MetricsConfig{
			AvgFlowRatePerUser: 0.008,
			PipeMaxFlow:        30.0,
			FlowActiveLevel:    0.01,
			PowerActiveLevel:   0.01,
			SampleInterval:     1 * time.Minute,
			HeaterEfficiency:   0.8,
			CpWater:            4.186,
			AmbientTemp:        25.0,
			PerformanceFloor:   0.70,
			Tiers:              defaultTiers(),
		},
		Simulator: SimulatorConfig{
			Seed:          1,
			FlowVariation: 0.2,
			TempVariation: 5.0,
			PowerBase:     5.0,
			PowerPerDegC:  0.1,
			TankCapacityL: 20.0,
		},
		Ingest: IngestConfig{
			ChannelBuffer: 10000,
			Kafka:         KafkaConfig{Enabled: false},
		},
		API:     APIConfig{Enabled: true, Addr: ":8080"},
		Storage: StorageConfig{Driver: "sqlite", DSN: "file:dispenser.db?_pragma=busy_timeout(5000)"},
	}
}

func defaultTiers() TiersConfig {
	percent := []Tier{
		{Cutoff: 98, Label: "excellent"},
		{Cutoff: 90, Label: "good"},
		{Cutoff: 75, Label: "acceptable"},
		{Cutoff: 50, Label: "poor"},
		{Cutoff: 0, Label: "critical"},
	}
	interval := []Tier{
		{Cutoff: 120, Label: "excellent"},
		{Cutoff: 60, Label: "good"},
		{Cutoff: 30, Label: "acceptable"},
		{Cutoff: 10, Label: "poor"},
		{Cutoff: 0, Label: "critical"},
	}
	return TiersConfig{
		Availability: percent,
		Quality:      percent,
		LevelUptime:  percent,
		PerformanceDev: []Tier{
			{Cutoff: 0.05, Label: "excellent"},
			{Cutoff: 0.15, Label: "good"},
			{Cutoff: 0.30, Label: "acceptable"},
			{Cutoff: 0.50, Label: "poor"},
		},
		EnergyRatio: []Tier{
			{Cutoff: 1.5, Label: "excellent"},
			{Cutoff: 3.0, Label: "good"},
			{Cutoff: 10.0, Label: "acceptable"},
			{Cutoff: 20.0, Label: "poor"},
		},
		ThermalVariation: []Tier{
			{Cutoff: 0.5, Label: "excellent"},
			{Cutoff: 1.5, Label: "good"},
			{Cutoff: 3.0, Label: "acceptable"},
			{Cutoff: 5.0, Label: "poor"},
		},
		PeakFlowRatio: []Tier{
			{Cutoff: 1.0, Label: "excellent"},
			{Cutoff: 1.5, Label: "good"},
			{Cutoff: 2.0, Label: "acceptable"},
			{Cutoff: 3.0, Label: "poor"},
		},
		MTBA: interval,
		MTBF: interval,
		ResponseIndex: []Tier{
			{Cutoff: 2, Label: "excellent"},
			{Cutoff: 5, Label: "good"},
			{Cutoff: 15, Label: "acceptable"},
			{Cutoff: 30, Label: "poor"},
		},
		ResponseTime: []Tier{
			{Cutoff: 2, Label: "excellent"},
			{Cutoff: 5, Label: "good"},
			{Cutoff: 10, Label: "acceptable"},
		},
		NonproductivePct: []Tier{
			{Cutoff: 5, Label: "excellent"},
			{Cutoff: 15, Label: "good"},
			{Cutoff: 30, Label: "acceptable"},
			{Cutoff: 50, Label: "poor"},
		},
		FailuresCount: []Tier{
			{Cutoff: 0, Label: "excellent"},
			{Cutoff: 2, Label: "good"},
			{Cutoff: 5, Label: "acceptable"},
			{Cutoff: 10, Label: "poor"},
		},
		UsageRate: []Tier{
			{Cutoff: 4, Label: "excellent"},
			{Cutoff: 2, Label: "good"},
			{Cutoff: 1, Label: "acceptable"},
			{Cutoff: 0.25, Label: "poor"},
		},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.Detection.Window <= 0 {
		cfg.Detection.Window = def.Detection.Window
	}
	if cfg.Detection.ZThreshold <= 0 {
		cfg.Detection.ZThreshold = def.Detection.ZThreshold
	}
	if cfg.Detection.MinWindowSamples < 2 {
		cfg.Detection.MinWindowSamples = def.Detection.MinWindowSamples
	}
	if cfg.Detection.GroupTolerance <= 0 {
		cfg.Detection.GroupTolerance = def.Detection.GroupTolerance
	}
	if cfg.Detection.RecoveryPolicy == "" {
		cfg.Detection.RecoveryPolicy = def.Detection.RecoveryPolicy
	}
	if cfg.Metrics.AvgFlowRatePerUser <= 0 {
		cfg.Metrics.AvgFlowRatePerUser = def.Metrics.AvgFlowRatePerUser
	}
	if cfg.Metrics.SampleInterval <= 0 {
		cfg.Metrics.SampleInterval = def.Metrics.SampleInterval
	}
	if cfg.Metrics.PerformanceFloor <= 0 {
		cfg.Metrics.PerformanceFloor = def.Metrics.PerformanceFloor
	}
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = def.Ingest.ChannelBuffer
	}
	fillTiers(&cfg.Metrics.Tiers, &def.Metrics.Tiers)
}

func fillTiers(t, def *TiersConfig) {
	if len(t.Availability) == 0 {
		t.Availability = def.Availability
	}
	if len(t.Quality) == 0 {
		t.Quality = def.Quality
	}
	if len(t.LevelUptime) == 0 {
		t.LevelUptime = def.LevelUptime
	}
	if len(t.PerformanceDev) == 0 {
		t.PerformanceDev = def.PerformanceDev
	}
	if len(t.EnergyRatio) == 0 {
		t.EnergyRatio = def.EnergyRatio
	}
	if len(t.ThermalVariation) == 0 {
		t.ThermalVariation = def.ThermalVariation
	}
	if len(t.PeakFlowRatio) == 0 {
		t.PeakFlowRatio = def.PeakFlowRatio
	}
	if len(t.MTBA) == 0 {
		t.MTBA = def.MTBA
	}
	if len(t.MTBF) == 0 {
		t.MTBF = def.MTBF
	}
	if len(t.ResponseIndex) == 0 {
		t.ResponseIndex = def.ResponseIndex
	}
	if len(t.ResponseTime) == 0 {
		t.ResponseTime = def.ResponseTime
	}
	if len(t.NonproductivePct) == 0 {
		t.NonproductivePct = def.NonproductivePct
	}
	if len(t.FailuresCount) == 0 {
		t.FailuresCount = def.FailuresCount
	}
	if len(t.UsageRate) == 0 {
		t.UsageRate = def.UsageRate
	}
}

func Validate(cfg *Config) error {
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Thresholds.TemperatureTolerance <= 0 {
		return errors.New("thresholds.temperature_tolerance must be > 0")
	}
	if cfg.Thresholds.FlowInactivityFor <= 0 {
		return errors.New("thresholds.flow_inactivity_for must be > 0")
	}
	if cfg.Thresholds.LevelLow < 0 || cfg.Thresholds.LevelLow >= cfg.Thresholds.LevelFull {
		return errors.New("thresholds.level_low must be in [0, level_full)")
	}
	if cfg.Detection.Window <= 0 {
		return errors.New("detection.window must be > 0")
	}
	if cfg.Detection.ZThreshold <= 0 {
		return errors.New("detection.z_threshold must be > 0")
	}
	switch cfg.Detection.RecoveryPolicy {
	case RecoveryStaticBounds, RecoveryNextReading:
	default:
		return fmt.Errorf("detection.recovery_policy must be %q or %q", RecoveryStaticBounds, RecoveryNextReading)
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	switch strings.ToLower(cfg.Storage.Driver) {
	case "sqlite", "postgres", "postgresql":
	default:
		return fmt.Errorf("storage.driver %q is not supported", cfg.Storage.Driver)
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	if info, err := os.Stat(path); err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

// NewStaticManager wraps an in-memory config, for tests and for running
// without a config file.
func NewStaticManager(cfg *Config) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	applyDefaults(cfg)
	m := &Manager{}
	m.cfg.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	if m.path == "" {
		return m.Get(), nil
	}
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) NeedsReload() (bool, error) {
	if m.path == "" {
		return false, nil
	}
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
