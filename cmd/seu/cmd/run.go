package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/browser"
	"github.com/rs/xid"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceSEU/internal/config"
	"github.com/OpenTraceLab/OpenTraceSEU/internal/status"
	"github.com/OpenTraceLab/OpenTraceSEU/pkg/bus"
	"github.com/OpenTraceLab/OpenTraceSEU/pkg/eeprom"
	"github.com/OpenTraceLab/OpenTraceSEU/pkg/scan"
	"github.com/OpenTraceLab/OpenTraceSEU/pkg/sink"
)

var (
	boardID       int
	adapterType   string
	scanPolicy    string
	boundedLimit  int
	budgetSeconds int
	outputDir     string
	noBaseline    bool
	simUpsets     int
	simSeed       uint64
	sqlitePath    string
	mqttBroker    string
	clickhouseURL string
	statusPort    int
	openBrowser   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Initialize the board and scan until the run budget is spent",
	Long: `Open every EEPROM on the board, write the baseline value, then scan all
devices repeatedly, logging the cumulative number of upset addresses per device
to "board <N> data.csv" after every pass.

The run stops after the first pass that ends past the run budget, or after the
current pass on Ctrl-C.

Examples:
  # Full scan of board 3 for the default 30 minutes
  seu run --config rig.yaml --board 3

  # Bounded scan, one hour, mirrored to MQTT
  seu run -c rig.yaml -b 3 --policy bounded --budget 3600 --mqtt tcp://broker:1883

  # Dry run on the simulator with 5 injected upsets per bank select
  seu run -c rig.yaml -b 1 --adapter simulator --sim-upsets 5 --budget 0`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntVarP(&boardID, "board", "b", 0,
		"board number, names the CSV log (prompted when unset)")
	runCmd.Flags().StringVarP(&adapterType, "adapter", "a", "",
		"bus adapter (ch341, simulator)")
	runCmd.Flags().StringVar(&scanPolicy, "policy", "",
		"scan policy (exhaustive, bounded)")
	runCmd.Flags().IntVar(&boundedLimit, "limit", 0,
		"bytes read per device under the bounded policy")
	runCmd.Flags().IntVar(&budgetSeconds, "budget", 0,
		"run budget in seconds")
	runCmd.Flags().StringVarP(&outputDir, "output", "o", "",
		"directory for the CSV log")
	runCmd.Flags().BoolVar(&noBaseline, "no-baseline", false,
		"skip writing the baseline value at startup")
	runCmd.Flags().IntVar(&simUpsets, "sim-upsets", 0,
		"simulator: random bit flips injected per bank select")
	runCmd.Flags().Uint64Var(&simSeed, "sim-seed", 1,
		"simulator: random seed for injected upsets")
	runCmd.Flags().StringVar(&sqlitePath, "sqlite", "",
		"also record to this SQLite database")
	runCmd.Flags().StringVar(&mqttBroker, "mqtt", "",
		"also publish records to this MQTT broker")
	runCmd.Flags().StringVar(&clickhouseURL, "clickhouse", "",
		"also record to the ClickHouse server at host:port")
	runCmd.Flags().IntVar(&statusPort, "status-port", 0,
		"serve run status over HTTP on this port (0 picks one)")
	runCmd.Flags().BoolVar(&openBrowser, "open", false,
		"open the status page in a browser")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return err
	}
	for _, w := range cfg.Warnings() {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}

	if !cfg.BoardSet() {
		board, err := promptBoard(cmd.InOrStdin())
		if err != nil {
			return err
		}
		cfg.SetBoard(board)
	}

	scanCfg, err := cfg.ScanConfig()
	if err != nil {
		return err
	}
	logger := newCLILogger(verbose)
	scanCfg.Logger = logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The log must exist before any device is touched.
	csvPath := filepath.Join(cfg.OutputDir, sink.FileName(cfg.BoardID))
	csvSink, err := sink.NewCSV(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create log: %w", err)
	}

	runID := xid.New().String()
	out, err := openSinks(ctx, cfg, csvSink, runID)
	if err != nil {
		csvSink.Close()
		return err
	}
	defer func() {
		if err := out.Close(); err != nil {
			logger.Error("closing sinks", "err", err)
		}
	}()

	b, err := openBus(cfg)
	if err != nil {
		return fmt.Errorf("failed to open %s adapter: %w", cfg.Adapter.Kind, err)
	}
	defer b.Close()

	if verbose {
		info, err := b.Info()
		if err == nil {
			fmt.Printf("\nAdapter Information:\n")
			fmt.Printf("  Name: %s\n", info.Name)
			fmt.Printf("  Vendor: %s\n", info.Vendor)
			fmt.Printf("  Model: %s\n", info.Model)
			fmt.Printf("  Banks: %d\n", info.Banks)
			fmt.Printf("  Run ID: %s\n\n", runID)
		}
	}

	pop, err := eeprom.NewPopulation(cfg.NumBanks, cfg.DevicesPerBank)
	if err != nil {
		return err
	}
	defer pop.Close()

	fmt.Printf("Initializing %d EEPROM(s) on board %d...\n", pop.Len(), cfg.BoardID)
	initReport, err := scan.Initialize(ctx, b, pop, cfg.Table(), scanCfg)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	fmt.Printf("  Ready: %d  Partial: %d  Absent: %d  Unconfigured: %d\n",
		initReport.Ready, initReport.Partial, initReport.Absent, initReport.Unconfigured)
	if initReport.Scannable() == 0 {
		fmt.Println("No EEPROM answered; every record will carry the sentinel value.")
	}

	var statusSrv *status.Server
	if cfg.Status.Enabled {
		statusSrv, err = startStatus(cfg, runID)
		if err != nil {
			return err
		}
		defer statusSrv.Close()
	}

	scanner := scan.NewScanner(b, pop, out, scanCfg)
	runner := scan.NewRunner(scanner, scanCfg.RunBudget)
	runner.OnPass = func(p scan.PassReport) {
		if statusSrv != nil {
			statusSrv.Update(p, pop)
		}
		fmt.Printf("Pass %d (%s): %d new, %d total failures, %s elapsed\n",
			p.Pass, p.Policy, p.NewFailures, p.TotalFailures, p.Elapsed.Truncate(time.Second))
		if p.ReadErrors > 0 || p.SinkErrors > 0 {
			fmt.Printf("  %d read error(s), %d dropped record(s)\n", p.ReadErrors, p.SinkErrors)
		}
		if p.MirrorErrors > 0 {
			fmt.Printf("  %d record(s) missing from a mirror sink\n", p.MirrorErrors)
		}
	}

	fmt.Printf("Scanning (%s policy, budget %s)...\n", scanCfg.Policy, scanCfg.RunBudget)
	report, err := runner.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		fmt.Println("Interrupted; stopped after the current pass.")
	}
	if statusSrv != nil {
		statusSrv.Finish(report)
	}

	fmt.Printf("\nCompleted and written to file.\n")
	fmt.Printf("  Log:      %s\n", csvPath)
	fmt.Printf("  Passes:   %d\n", report.Passes)
	fmt.Printf("  Failures: %d\n", report.TotalFailures)
	if report.SinkErrors > 0 {
		fmt.Printf("  Dropped:  %d record(s)\n", report.SinkErrors)
	}
	if report.MirrorErrors > 0 {
		fmt.Printf("  Mirrors:  %d record(s) not mirrored\n", report.MirrorErrors)
	}

	return nil
}

func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("board") {
		cfg.SetBoard(boardID)
	}
	if flags.Changed("adapter") {
		cfg.Adapter.Kind = adapterType
	}
	if flags.Changed("policy") {
		cfg.ScanPolicy = scanPolicy
	}
	if flags.Changed("limit") {
		cfg.BoundedScanLimitBytes = boundedLimit
	}
	if flags.Changed("budget") {
		cfg.RunBudgetSeconds = budgetSeconds
	}
	if flags.Changed("output") {
		cfg.OutputDir = outputDir
	}
	if flags.Changed("no-baseline") {
		cfg.WriteBaseline = !noBaseline
	}
	if flags.Changed("sim-upsets") {
		cfg.Adapter.SimUpsets = simUpsets
	}
	if flags.Changed("sim-seed") {
		cfg.Adapter.SimSeed = simSeed
	}
	if sqlitePath != "" {
		cfg.Sinks.SQLite.Enabled = true
		cfg.Sinks.SQLite.Path = sqlitePath
	}
	if mqttBroker != "" {
		cfg.Sinks.MQTT.Enabled = true
		cfg.Sinks.MQTT.Broker = mqttBroker
	}
	if flags.Changed("status-port") {
		cfg.Status.Enabled = true
		cfg.Status.Port = statusPort
	}
	if openBrowser {
		cfg.Status.Enabled = true
		cfg.Status.OpenBrowser = true
	}
	if clickhouseURL != "" {
		cfg.Sinks.ClickHouse.Enabled = true
		cfg.Sinks.ClickHouse.Addr = clickhouseURL
	}
}

func startStatus(cfg *config.Config, runID string) (*status.Server, error) {
	srv := status.NewServer(cfg.BoardID, runID).WithPortNumber(cfg.Status.Port)
	url, err := srv.Start()
	if err != nil {
		return nil, err
	}
	fmt.Printf("Run status at %s\n", url)

	if cfg.Status.OpenBrowser {
		if err := browser.OpenURL(url); err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not open a browser: %v\n", err)
		}
	}
	return srv, nil
}

// promptBoard asks for the board number the way the bench program always has.
func promptBoard(in io.Reader) (int, error) {
	fmt.Print("Board number: ")
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("no board number given")
	}
	board, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil || board < 0 {
		return 0, fmt.Errorf("invalid board number %q", scanner.Text())
	}
	return board, nil
}

func openSinks(ctx context.Context, cfg *config.Config, primary *sink.CSV, runID string) (*sink.Fanout, error) {
	sinks := []sink.Sink{primary}
	fail := func(err error) (*sink.Fanout, error) {
		for _, s := range sinks[1:] {
			s.Close()
		}
		return nil, err
	}

	if cfg.Sinks.SQLite.Enabled {
		db, err := sink.NewSQLite(cfg.Sinks.SQLite.Path, runID)
		if err != nil {
			return fail(err)
		}
		if verbose {
			fmt.Printf("Recording to SQLite database %s\n", db.Path())
		}
		sinks = append(sinks, db)
	}

	if cfg.Sinks.MQTT.Enabled {
		m, err := sink.DialMQTT(cfg.MQTT(), cfg.BoardID, runID)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, m)
	}

	if cfg.Sinks.ClickHouse.Enabled {
		ch, err := sink.DialClickHouse(ctx, cfg.ClickHouse(), cfg.BoardID, runID)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, ch)
	}

	return sink.NewFanout(sinks...), nil
}

// openBus creates the configured adapter. The simulator gets a device in
// every socket the capacity table sizes.
func openBus(cfg *config.Config) (bus.Bus, error) {
	switch cfg.Adapter.Kind {
	case config.AdapterSimulator:
		if verbose {
			fmt.Println("Using simulator adapter")
		}
		sim := bus.NewSimBus(bus.Info{
			Name:   "I2C Simulator",
			Vendor: "OpenTraceLab",
			Model:  "Sim-1.0",
		}, cfg.NumBanks, cfg.DevicesPerBank)
		sim.Base = cfg.Adapter.BaseAddress

		fill := byte(cfg.BaselineByte)
		if cfg.WriteBaseline {
			fill = 0x00
		}
		table := cfg.Table()
		for b := 0; b < cfg.NumBanks; b++ {
			for s := 0; s < cfg.DevicesPerBank; s++ {
				if capacity, err := table.Capacity(b, s); err == nil {
					sim.Populate(b, s, capacity, fill)
				}
			}
		}
		if cfg.Adapter.SimUpsets > 0 {
			sim.EnableUpsets(cfg.Adapter.SimUpsets, cfg.Adapter.SimSeed)
		}
		return sim, nil

	case config.AdapterCH341:
		opts, err := cfg.CH341Options()
		if err != nil {
			return nil, err
		}
		return bus.NewCH341Bus(opts)

	default:
		return nil, fmt.Errorf("unsupported adapter type: %s", cfg.Adapter.Kind)
	}
}
