package core

import "github.com/sirupsen/logrus"

// Gas metering is approximate by design: the spec treats it as a design
// target of being "in the right ballpark" rather than bit-exact, since
// exact on-chain gas costs are explicitly not a target of comparison
// (spec §1 non-goals). DefaultCommandGasCost is charged for any command
// kind without a specific entry below.
const DefaultCommandGasCost uint64 = 1_000

// commandGasTable assigns a flat, approximate gas cost per command kind.
// Charged once per command before it executes; MoveCall additionally
// charges perNativeCallGas per native function it invokes via C7
// (WasmHarness's host_native_dispatch).
var commandGasTable = map[CommandKind]uint64{
	CmdMoveCall:        2_000,
	CmdTransferObjects: 500,
	CmdSplitCoins:      800,
	CmdMergeCoins:      800,
	CmdMakeVec:         300,
	CmdPublish:         50_000,
	CmdUpgrade:         50_000,
}

const perNativeCallGas uint64 = 100

var loggedMissingCommandGas = map[CommandKind]bool{}

// GasCostForCommand returns the approximate base gas cost for a command
// kind. Unknown kinds fall back to DefaultCommandGasCost and are logged
// only on their first occurrence, to avoid flooding logs on a long replay.
func GasCostForCommand(kind CommandKind) uint64 {
	if cost, ok := commandGasTable[kind]; ok {
		return cost
	}
	if !loggedMissingCommandGas[kind] {
		loggedMissingCommandGas[kind] = true
		logrus.WithField("command_kind", kind.String()).Warn("gas: missing cost for command kind, charging default")
	}
	return DefaultCommandGasCost
}

// GasMeter tracks approximate gas usage against a transaction's declared
// budget (spec §4.6, §7: over-budget execution aborts rather than charging
// silently past the limit).
type GasMeter struct {
	used  uint64
	limit uint64
}

// NewGasMeter constructs a meter with the given budget.
func NewGasMeter(budget uint64) *GasMeter {
	return &GasMeter{limit: budget}
}

// Charge deducts amount from the remaining budget. It reports whether the
// charge fit within budget; the caller is responsible for aborting the
// replay on overflow (spec does not define a distinct error kind for this,
// so callers surface it as ContractAbortError with a reserved code).
func (g *GasMeter) Charge(amount uint64) bool {
	if g.used+amount > g.limit {
		g.used = g.limit
		return false
	}
	g.used += amount
	return true
}

// Used returns total gas charged so far.
func (g *GasMeter) Used() uint64 { return g.used }

// Remaining returns the unspent portion of the budget.
func (g *GasMeter) Remaining() uint64 {
	if g.used >= g.limit {
		return 0
	}
	return g.limit - g.used
}
