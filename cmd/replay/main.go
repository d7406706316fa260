// Command replay is a thin smoke-test harness around the core replay
// engine: it loads a canonical JSON replay-state document, executes the
// transaction it describes, and prints the resulting effects. If the
// document carries recorded canonical effects, it also prints the C8
// comparison report. This is deliberately not a full CLI front-end (a
// batch/benchmark runner, formatted output modes, and a live StateProvider
// adapter are out of scope) — it exists so the core engine can be exercised
// manually against a fixture file.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"chainreplay/core"
	"chainreplay/pkg/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logrus.WithError(err).Error("replay: command failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "replay",
		Short: "Execute a recorded transaction against a JSON replay-state fixture",
	}
	root.AddCommand(newRunCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var strictCrypto bool
	var gasTolerancePct int
	var versionTolerance uint64

	cmd := &cobra.Command{
		Use:   "run <state.json>",
		Short: "Hydrate a replay-state document and execute its transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read state file: %w", err)
			}

			rs, recordedEffects, err := core.ImportReplayState(data, 0)
			if err != nil {
				return fmt.Errorf("import replay state: %w", err)
			}

			cfg := config.Default()
			cfg.Replay.StrictCrypto = strictCrypto
			cfg.Replay.GasTolerancePct = gasTolerancePct
			cfg.Replay.VersionTolerance = versionTolerance

			fields := core.NewDynamicFieldResolver(rs.Objects, nil, 0, 0, cfg.Cache.ChildEntries)
			// No VMHarness is wired here: a smoke-test fixture has no real
			// compiled module bytecode behind its packages, so MoveCall
			// commands are left unsupported. Every other command kind
			// (TransferObjects, SplitCoins, MergeCoins, MakeVec, Publish,
			// Upgrade) executes fully.
			exec := core.NewPTBExecutor(rs, nil, fields, &cfg)

			handle := core.StartReplay(rs.Transaction.Digest, 0)
			defer core.FinishReplay(handle)

			effects, execErr := exec.Execute(handle)
			if execErr != nil {
				logrus.WithError(execErr).Warn("replay: execution ended in a non-success status")
			}

			out, err := json.Marshal(effects)
			if err != nil {
				return fmt.Errorf("marshal effects: %w", err)
			}
			fmt.Println(string(out))

			if recordedEffects != nil {
				comparator := core.NewEffectsComparator(&cfg)
				report := comparator.Compare(*recordedEffects, effects, rs.ExecutionPath)
				reportJSON, err := json.MarshalIndent(report, "", "  ")
				if err != nil {
					return fmt.Errorf("marshal comparison report: %w", err)
				}
				fmt.Println(string(reportJSON))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strictCrypto, "strict-crypto", false, "refuse category-C native calls instead of mocking them")
	cmd.Flags().IntVar(&gasTolerancePct, "gas-tolerance-pct", 0, "allowed relative gas_used deviation, in percent")
	cmd.Flags().Uint64Var(&versionTolerance, "version-tolerance", 0, "allowed absolute object version deviation")

	return cmd
}
