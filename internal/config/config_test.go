package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/OpenTraceLab/OpenTraceSEU/internal/config"
	"github.com/OpenTraceLab/OpenTraceSEU/pkg/bus"
	"github.com/OpenTraceLab/OpenTraceSEU/pkg/eeprom"
	"github.com/OpenTraceLab/OpenTraceSEU/pkg/scan"
)

const rigYAML = `
num_banks: 3
devices_per_bank: 8
capacity_table:
  0: {low: 4096, high: 32768}
  1: {low: 8192, high: 65536}
  2: {low: 16384, high: 65536}
baseline_byte: 0xFF
scan_policy: bounded
bounded_scan_limit_bytes: 20000
run_budget_seconds: 600
board_id: 4
adapter:
  kind: simulator
  base_address: 0x50
  timeout_ms: 250
  speed: 400k
sinks:
  sqlite:
    enabled: true
    path: runs.sqlite3
`

func setEnv(key, value string) {
	Expect(os.Setenv(key, value)).To(Succeed())
	DeferCleanup(os.Unsetenv, key)
}

var _ = Describe("Config", func() {
	Describe("Default", func() {
		It("should describe the stock rig", func() {
			cfg := config.Default()
			Expect(cfg.NumBanks).To(Equal(3))
			Expect(cfg.DevicesPerBank).To(Equal(8))
			Expect(cfg.BaselineByte).To(Equal(0xFF))
			Expect(cfg.RunBudget()).To(Equal(30 * time.Minute))
			Expect(cfg.Adapter.BaseAddress).To(Equal(bus.DefaultBaseAddress))
			Expect(cfg.CapacityTable).To(BeEmpty())
		})

		It("should not validate without a capacity table", func() {
			var cerr *scan.ConfigError
			err := config.Default().Validate()
			Expect(errors.As(err, &cerr)).To(BeTrue())
			Expect(cerr.Field).To(Equal("capacity_table"))
		})
	})

	Describe("Parse", func() {
		It("should read every section", func() {
			cfg, err := config.Parse([]byte(rigYAML))
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Validate()).To(Succeed())

			Expect(cfg.CapacityTable).To(HaveLen(3))
			Expect(cfg.CapacityTable[1]).To(Equal(eeprom.Tier{Low: 8192, High: 65536}))
			Expect(cfg.BoardID).To(Equal(4))
			Expect(cfg.Adapter.Kind).To(Equal(config.AdapterSimulator))
			Expect(cfg.Sinks.SQLite.Enabled).To(BeTrue())
			Expect(cfg.Sinks.MQTT.Enabled).To(BeFalse())
		})

		It("should keep defaults for omitted keys", func() {
			cfg, err := config.Parse([]byte("capacity_table: {0: {low: 16, high: 32}}"))
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.DevicesPerBank).To(Equal(8))
			Expect(cfg.WriteBaseline).To(BeTrue())
			Expect(cfg.ScanPolicy).To(Equal("exhaustive"))
		})

		It("should accept an empty document", func() {
			cfg, err := config.Parse(nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.NumBanks).To(Equal(3))
		})

		It("should reject unknown keys", func() {
			_, err := config.Parse([]byte("num_bank: 2"))
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("conversions", func() {
		var cfg *config.Config

		BeforeEach(func() {
			var err error
			cfg, err = config.Parse([]byte(rigYAML))
			Expect(err).NotTo(HaveOccurred())
		})

		It("should build the capacity table", func() {
			table := cfg.Table()
			size, err := table.Capacity(2, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(size).To(Equal(16384))
			size, err = table.Capacity(2, 4)
			Expect(err).NotTo(HaveOccurred())
			Expect(size).To(Equal(65536))
		})

		It("should build the scan config", func() {
			sc, err := cfg.ScanConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(sc.Policy).To(Equal(scan.Bounded))
			Expect(sc.BoundedLimit).To(Equal(20000))
			Expect(sc.RunBudget).To(Equal(10 * time.Minute))
			Expect(sc.Baseline).To(Equal(byte(0xFF)))
			Expect(sc.BaseAddress).To(Equal(uint16(0x50)))
		})

		It("should build CH341 options", func() {
			opts, err := cfg.CH341Options()
			Expect(err).NotTo(HaveOccurred())
			Expect(opts.Speed).To(Equal(byte(bus.I2CSpeed400k)))
			Expect(opts.Timeout).To(Equal(250 * time.Millisecond))
		})

		It("should reject an unknown I2C speed", func() {
			cfg.Adapter.Speed = "1M"
			Expect(cfg.Validate()).NotTo(Succeed())
		})
	})

	Describe("Validate", func() {
		DescribeTable("rejects",
			func(mod func(*config.Config), field string) {
				cfg, err := config.Parse([]byte(rigYAML))
				Expect(err).NotTo(HaveOccurred())
				mod(cfg)

				var cerr *scan.ConfigError
				Expect(errors.As(cfg.Validate(), &cerr)).To(BeTrue())
				Expect(cerr.Field).To(Equal(field))
			},
			Entry("zero banks", func(c *config.Config) { c.NumBanks = 0 }, "num_banks"),
			Entry("zero devices", func(c *config.Config) { c.DevicesPerBank = 0 }, "devices_per_bank"),
			Entry("baseline over a byte", func(c *config.Config) { c.BaselineByte = 0x100 }, "baseline_byte"),
			Entry("unknown policy", func(c *config.Config) { c.ScanPolicy = "greedy" }, "scan_policy"),
			Entry("unknown adapter", func(c *config.Config) { c.Adapter.Kind = "ftdi" }, "adapter.kind"),
			Entry("negative size", func(c *config.Config) { c.CapacityTable[0] = eeprom.Tier{Low: -1} }, "capacity_table"),
			Entry("zero bounded limit", func(c *config.Config) { c.BoundedScanLimitBytes = 0 }, "bounded_scan_limit_bytes"),
			Entry("status port out of range", func(c *config.Config) { c.Status.Port = 70000 }, "status.port"),
		)
	})

	Describe("Warnings", func() {
		It("should flag missing and stray banks", func() {
			cfg, err := config.Parse([]byte("num_banks: 2\ncapacity_table: {0: {low: 1, high: 1}, 5: {low: 1, high: 1}}"))
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Validate()).To(Succeed())
			Expect(cfg.Warnings()).To(HaveLen(2))
			Expect(cfg.Warnings()[0]).To(ContainSubstring("bank 1"))
			Expect(cfg.Warnings()[1]).To(ContainSubstring("bank 5"))
		})
	})

	Describe("BoardSet", func() {
		It("should be false for the defaults", func() {
			Expect(config.Default().BoardSet()).To(BeFalse())

			cfg, err := config.Parse([]byte("num_banks: 2"))
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.BoardSet()).To(BeFalse())
		})

		It("should treat board_id: 0 as a chosen board", func() {
			cfg, err := config.Parse([]byte("board_id: 0"))
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.BoardID).To(Equal(0))
			Expect(cfg.BoardSet()).To(BeTrue())
		})

		It("should treat SEU_BOARD_ID=0 as a chosen board", func() {
			setEnv("SEU_BOARD_ID", "0")
			path := filepath.Join(GinkgoT().TempDir(), "rig.yaml")
			Expect(os.WriteFile(path, []byte("num_banks: 2"), 0o644)).To(Succeed())

			cfg, err := config.Load(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.BoardID).To(Equal(0))
			Expect(cfg.BoardSet()).To(BeTrue())
		})

		It("should be set by SetBoard", func() {
			cfg := config.Default()
			cfg.SetBoard(0)
			Expect(cfg.BoardSet()).To(BeTrue())
		})
	})

	Describe("Load", func() {
		var path string

		BeforeEach(func() {
			path = filepath.Join(GinkgoT().TempDir(), "rig.yaml")
			Expect(os.WriteFile(path, []byte(rigYAML), 0o644)).To(Succeed())
		})

		It("should read the named file", func() {
			cfg, err := config.Load(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.BoardID).To(Equal(4))
		})

		It("should fall back to SEU_CONFIG", func() {
			setEnv("SEU_CONFIG", path)
			cfg, err := config.Load("")
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.CapacityTable).To(HaveLen(3))
		})

		It("should let the environment override the file", func() {
			setEnv("SEU_BOARD_ID", "9")
			setEnv("SEU_SCAN_POLICY", "exhaustive")
			setEnv("SEU_RUN_BUDGET_SECONDS", "60")
			setEnv("SEU_MQTT_BROKER", "tcp://broker:1883")

			cfg, err := config.Load(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.BoardID).To(Equal(9))
			Expect(cfg.ScanPolicy).To(Equal("exhaustive"))
			Expect(cfg.RunBudget()).To(Equal(time.Minute))
			Expect(cfg.Sinks.MQTT.Enabled).To(BeTrue())
			Expect(cfg.MQTT().Broker).To(Equal("tcp://broker:1883"))
		})

		It("should enable the status server from the environment", func() {
			setEnv("SEU_STATUS_PORT", "8642")
			cfg, err := config.Load(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Status.Enabled).To(BeTrue())
			Expect(cfg.Status.Port).To(Equal(8642))
		})

		It("should ignore malformed numbers in the environment", func() {
			setEnv("SEU_BOARD_ID", "four")
			cfg, err := config.Load(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.BoardID).To(Equal(4))
		})

		It("should fail for a missing file", func() {
			_, err := config.Load(filepath.Join(GinkgoT().TempDir(), "missing.yaml"))
			Expect(err).To(HaveOccurred())
		})
	})
})
