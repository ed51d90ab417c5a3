// Package config loads the rig description and run settings from a YAML
// file, a .env file and SEU_* environment variables, in that order of
// increasing precedence. Command-line flags are applied on top by cmd/seu.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/OpenTraceLab/OpenTraceSEU/pkg/bus"
	"github.com/OpenTraceLab/OpenTraceSEU/pkg/eeprom"
	"github.com/OpenTraceLab/OpenTraceSEU/pkg/scan"
	"github.com/OpenTraceLab/OpenTraceSEU/pkg/sink"
)

// Adapter kinds.
const (
	AdapterCH341     = "ch341"
	AdapterSimulator = "simulator"
)

// Config is the static run configuration, read once at start.
type Config struct {
	NumBanks              int                 `yaml:"num_banks"`
	DevicesPerBank        int                 `yaml:"devices_per_bank"`
	TierSplitSlot         int                 `yaml:"tier_split_slot"`
	CapacityTable         map[int]eeprom.Tier `yaml:"capacity_table"`
	BaselineByte          int                 `yaml:"baseline_byte"`
	ScanPolicy            string              `yaml:"scan_policy"`
	BoundedScanLimitBytes int                 `yaml:"bounded_scan_limit_bytes"`
	RunBudgetSeconds      int                 `yaml:"run_budget_seconds"`
	BoardID               int                 `yaml:"board_id"`
	WriteBaseline         bool                `yaml:"write_baseline"`
	OutputDir             string              `yaml:"output_dir"`

	Adapter AdapterConfig `yaml:"adapter"`
	Sinks   SinksConfig   `yaml:"sinks"`
	Status  StatusConfig  `yaml:"status"`

	boardSet bool
}

// StatusConfig enables the HTTP status server during a run. Port 0 picks a
// free port.
type StatusConfig struct {
	Enabled     bool `yaml:"enabled"`
	Port        int  `yaml:"port"`
	OpenBrowser bool `yaml:"open_browser"`
}

// AdapterConfig selects and tunes the bus backend.
type AdapterConfig struct {
	Kind        string `yaml:"kind"`
	BaseAddress uint16 `yaml:"base_address"`
	TimeoutMS   int    `yaml:"timeout_ms"`
	Speed       string `yaml:"speed"`

	// Simulator only.
	SimUpsets int    `yaml:"sim_upsets"`
	SimSeed   uint64 `yaml:"sim_seed"`
}

type SinksConfig struct {
	SQLite     SQLiteConfig     `yaml:"sqlite"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

type SQLiteConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

type ClickHouseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Default returns a config for the three-bank, eight-socket rig. The
// capacity table is deliberately empty: tier sizes depend on the parts
// fitted and must come from the config file.
func Default() *Config {
	return &Config{
		NumBanks:              3,
		DevicesPerBank:        8,
		TierSplitSlot:         eeprom.DefaultTierSplit,
		BaselineByte:          0xFF,
		ScanPolicy:            scan.Exhaustive.String(),
		BoundedScanLimitBytes: 32000,
		RunBudgetSeconds:      1800,
		WriteBaseline:         true,
		OutputDir:             ".",
		Adapter: AdapterConfig{
			Kind:        AdapterCH341,
			BaseAddress: bus.DefaultBaseAddress,
			TimeoutMS:   int(bus.DefaultTimeout / time.Millisecond),
			Speed:       "100k",
			SimSeed:     1,
		},
		Sinks: SinksConfig{
			MQTT: MQTTConfig{
				Broker:      "tcp://localhost:1883",
				ClientID:    "seu-scanner",
				TopicPrefix: "seu",
				QoS:         1,
			},
			ClickHouse: ClickHouseConfig{
				Addr:     "localhost:9000",
				Database: "default",
				Username: "default",
			},
		},
	}
}

// Load reads path over the defaults, then applies .env and SEU_*
// environment overrides. An empty path falls back to $SEU_CONFIG; with
// neither set only defaults and the environment are used.
func Load(path string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = os.Getenv("SEU_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// Parse decodes YAML over the defaults without consulting the environment.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(data); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	var keys struct {
		BoardID *int `yaml:"board_id"`
	}
	if err := yaml.Unmarshal(data, &keys); err != nil {
		return err
	}
	if keys.BoardID != nil {
		c.boardSet = true
	}
	return nil
}

// BoardSet reports whether the board number was given explicitly rather than
// left at its default. Board 0 is a valid board.
func (c *Config) BoardSet() bool { return c.boardSet }

// SetBoard sets the board number explicitly.
func (c *Config) SetBoard(board int) {
	c.BoardID = board
	c.boardSet = true
}

func (c *Config) applyEnv() {
	if _, err := strconv.Atoi(os.Getenv("SEU_BOARD_ID")); err == nil {
		c.boardSet = true
	}
	c.BoardID = getEnvInt("SEU_BOARD_ID", c.BoardID)
	c.ScanPolicy = getEnv("SEU_SCAN_POLICY", c.ScanPolicy)
	c.BoundedScanLimitBytes = getEnvInt("SEU_BOUNDED_SCAN_LIMIT_BYTES", c.BoundedScanLimitBytes)
	c.RunBudgetSeconds = getEnvInt("SEU_RUN_BUDGET_SECONDS", c.RunBudgetSeconds)
	c.WriteBaseline = getEnvBool("SEU_WRITE_BASELINE", c.WriteBaseline)
	c.OutputDir = getEnv("SEU_OUTPUT_DIR", c.OutputDir)
	c.Adapter.Kind = getEnv("SEU_ADAPTER", c.Adapter.Kind)

	if path := os.Getenv("SEU_SQLITE_PATH"); path != "" {
		c.Sinks.SQLite.Enabled = true
		c.Sinks.SQLite.Path = path
	}

	if broker := os.Getenv("SEU_MQTT_BROKER"); broker != "" {
		c.Sinks.MQTT.Enabled = true
		c.Sinks.MQTT.Broker = broker
	}
	c.Sinks.MQTT.Username = getEnv("SEU_MQTT_USERNAME", c.Sinks.MQTT.Username)
	c.Sinks.MQTT.Password = getEnv("SEU_MQTT_PASSWORD", c.Sinks.MQTT.Password)

	if addr := os.Getenv("SEU_CLICKHOUSE_ADDR"); addr != "" {
		c.Sinks.ClickHouse.Enabled = true
		c.Sinks.ClickHouse.Addr = addr
	}
	c.Sinks.ClickHouse.Database = getEnv("SEU_CLICKHOUSE_DB", c.Sinks.ClickHouse.Database)
	c.Sinks.ClickHouse.Username = getEnv("SEU_CLICKHOUSE_USER", c.Sinks.ClickHouse.Username)
	c.Sinks.ClickHouse.Password = getEnv("SEU_CLICKHOUSE_PASS", c.Sinks.ClickHouse.Password)

	if port := getEnvInt("SEU_STATUS_PORT", -1); port >= 0 {
		c.Status.Enabled = true
		c.Status.Port = port
	}
}

// Validate rejects configurations the run cannot start with. Problems that
// only affect some devices are reported by Warnings instead.
func (c *Config) Validate() error {
	if c.NumBanks <= 0 {
		return &scan.ConfigError{Field: "num_banks", Reason: fmt.Sprintf("must be positive, got %d", c.NumBanks)}
	}
	if c.DevicesPerBank <= 0 {
		return &scan.ConfigError{Field: "devices_per_bank", Reason: fmt.Sprintf("must be positive, got %d", c.DevicesPerBank)}
	}
	if len(c.CapacityTable) == 0 {
		return &scan.ConfigError{Field: "capacity_table", Reason: "no banks configured"}
	}
	for bank, tier := range c.CapacityTable {
		if tier.Low < 0 || tier.High < 0 {
			return &scan.ConfigError{Field: "capacity_table", Reason: fmt.Sprintf("bank %d has a negative size", bank)}
		}
	}
	if c.BaselineByte < 0 || c.BaselineByte > 0xFF {
		return &scan.ConfigError{Field: "baseline_byte", Reason: fmt.Sprintf("0x%X does not fit in a byte", c.BaselineByte)}
	}
	if c.BoardID < 0 {
		return &scan.ConfigError{Field: "board_id", Reason: "must not be negative"}
	}
	switch c.Adapter.Kind {
	case AdapterCH341, AdapterSimulator:
	default:
		return &scan.ConfigError{Field: "adapter.kind", Reason: fmt.Sprintf("unknown adapter %q", c.Adapter.Kind)}
	}
	if _, err := parseSpeed(c.Adapter.Speed); err != nil {
		return err
	}
	if c.Status.Port < 0 || c.Status.Port > 65535 {
		return &scan.ConfigError{Field: "status.port", Reason: fmt.Sprintf("%d is not a TCP port", c.Status.Port)}
	}

	sc, err := c.ScanConfig()
	if err != nil {
		return err
	}
	return sc.Validate()
}

// Warnings lists capacity table gaps. Affected devices are excluded at
// initialization but the run still starts.
func (c *Config) Warnings() []string {
	var warnings []string
	for bank := 0; bank < c.NumBanks; bank++ {
		if _, ok := c.CapacityTable[bank]; !ok {
			warnings = append(warnings, fmt.Sprintf("bank %d has no capacity entry; its devices will be skipped", bank))
		}
	}

	var extra []int
	for bank := range c.CapacityTable {
		if bank < 0 || bank >= c.NumBanks {
			extra = append(extra, bank)
		}
	}
	sort.Ints(extra)
	for _, bank := range extra {
		warnings = append(warnings, fmt.Sprintf("capacity entry for bank %d is outside the %d configured banks", bank, c.NumBanks))
	}
	return warnings
}

// Table returns the capacity table.
func (c *Config) Table() eeprom.CapacityTable {
	banks := make(map[int]eeprom.Tier, len(c.CapacityTable))
	for b, tier := range c.CapacityTable {
		banks[b] = tier
	}
	return eeprom.CapacityTable{Split: c.TierSplitSlot, Banks: banks}
}

// RunBudget returns the run budget as a duration.
func (c *Config) RunBudget() time.Duration {
	return time.Duration(c.RunBudgetSeconds) * time.Second
}

// ScanConfig converts the scan settings. The logger is left unset.
func (c *Config) ScanConfig() (*scan.Config, error) {
	policy, err := scan.ParsePolicy(c.ScanPolicy)
	if err != nil {
		return nil, err
	}

	sc := scan.DefaultConfig()
	sc.Baseline = byte(c.BaselineByte)
	sc.Policy = policy
	sc.BoundedLimit = c.BoundedScanLimitBytes
	sc.RunBudget = c.RunBudget()
	sc.WriteBaseline = c.WriteBaseline
	sc.BaseAddress = c.Adapter.BaseAddress
	return sc, nil
}

// CH341Options converts the adapter settings for bus.NewCH341Bus.
func (c *Config) CH341Options() (bus.CH341Options, error) {
	opts := bus.DefaultCH341Options()
	speed, err := parseSpeed(c.Adapter.Speed)
	if err != nil {
		return opts, err
	}
	opts.Speed = speed
	if c.Adapter.TimeoutMS > 0 {
		opts.Timeout = time.Duration(c.Adapter.TimeoutMS) * time.Millisecond
	}
	return opts, nil
}

// MQTT converts the MQTT sink settings.
func (c *Config) MQTT() sink.MQTTConfig {
	m := sink.DefaultMQTTConfig()
	m.Broker = c.Sinks.MQTT.Broker
	m.ClientID = c.Sinks.MQTT.ClientID
	m.Username = c.Sinks.MQTT.Username
	m.Password = c.Sinks.MQTT.Password
	m.TopicPrefix = c.Sinks.MQTT.TopicPrefix
	m.QoS = c.Sinks.MQTT.QoS
	return m
}

// ClickHouse converts the ClickHouse sink settings.
func (c *Config) ClickHouse() sink.ClickHouseConfig {
	return sink.ClickHouseConfig{
		Addr:     c.Sinks.ClickHouse.Addr,
		Database: c.Sinks.ClickHouse.Database,
		Username: c.Sinks.ClickHouse.Username,
		Password: c.Sinks.ClickHouse.Password,
	}
}

var speeds = map[string]byte{
	"20k":  bus.I2CSpeed20k,
	"100k": bus.I2CSpeed100k,
	"400k": bus.I2CSpeed400k,
	"750k": bus.I2CSpeed750k,
}

func parseSpeed(s string) (byte, error) {
	if s == "" {
		return bus.I2CSpeed100k, nil
	}
	speed, ok := speeds[strings.ToLower(s)]
	if !ok {
		return 0, &scan.ConfigError{Field: "adapter.speed", Reason: fmt.Sprintf("unknown speed %q (20k, 100k, 400k, 750k)", s)}
	}
	return speed, nil
}
