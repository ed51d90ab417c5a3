// Package scan implements the single-event-upset scan engine: the one-time
// initialization of every EEPROM in a Population, the repeating scan pass
// that counts deviating addresses, and the run loop that repeats passes
// until the run budget is spent.
//
// # Overview
//
// A run proceeds in three stages:
//  1. Initialize opens each device on its bank, sizes its seen mask from the
//     capacity table and, when configured, writes the baseline byte to every
//     address.
//  2. Scanner.Pass reads each scannable device in bank, slot, address order,
//     counts every address that differs from the baseline the first time it
//     is seen, and appends one record per device to the sink.
//  3. Runner.Run repeats passes until the elapsed time reaches the budget.
//
// # Usage
//
//	cfg := scan.DefaultConfig()
//	cfg.Policy = scan.Bounded
//
//	pop, _ := eeprom.NewPopulation(3, 8)
//	if _, err := scan.Initialize(ctx, b, pop, table, cfg); err != nil {
//		return err
//	}
//	defer pop.Close()
//
//	runner := scan.NewRunner(scan.NewScanner(b, pop, out, cfg), cfg.RunBudget)
//	report, err := runner.Run(ctx)
//
// # Failure handling
//
// Nothing that goes wrong with a single device stops the run. Devices that
// do not answer at initialization are excluded and reported with
// eeprom.SentinelFailures. A failed read skips that address for the pass.
// A failed baseline write leaves the device scannable but marked partial.
// A failed append is retried once after reopening the sink, then dropped.
package scan
