package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/slotkeeper/internal/flagx"
)

var (
	valueFlags = []string{"-d", "-a", "-e", "-w", "-t", "-l", "-n", "-s", "-r"}
	boolFlags  = []string{"-bind", "-release", "-diagnose", "-pool", "-quota"}
)

// parseFlags populates Config fields from command-line flags.
//
// Supported flags:
//
//	-d string     PostgreSQL DSN
//	-a int        application id
//	-e string     purchaser email
//	-w string     hardware id
//	-t duration   per-operation timeout (e.g. "10s")
//	-l string     log level
//	-n int        diagnose result limit
//	-s int        denied-activation window, days
//	-r int        retry attempts
//	-bind, -release, -diagnose, -pool   operations to run
//	-quota        enforce approved-payment quota on bind
//
// os.Args is first filtered with flagx.FilterArgs so flags owned by other
// parsers (-c/-config) are skipped.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], valueFlags, boolFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.Int64Var(&config.AppID, "a", config.AppID, "application id")
	fs.StringVar(&config.Email, "e", config.Email, "purchaser email")
	fs.StringVar(&config.HardwareID, "w", config.HardwareID, "hardware id")
	fs.DurationVar(&config.OperationTimeout, "t", config.OperationTimeout, "operation timeout")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level (debug, info, warn, error)")
	fs.IntVar(&config.DiagnosticLimit, "n", config.DiagnosticLimit, "diagnose result limit")
	fs.IntVar(&config.DeniedSinceDays, "s", config.DeniedSinceDays, "denied activations window (in days)")
	fs.Uint64Var(&config.RetryAttempts, "r", config.RetryAttempts, "retry attempts")

	fs.BoolVar(&config.Bind, "bind", config.Bind, "bind the hardware id to a slot")
	fs.BoolVar(&config.Release, "release", config.Release, "release the most recently used slot")
	fs.BoolVar(&config.Diagnose, "diagnose", config.Diagnose, "run integrity sweeps")
	fs.BoolVar(&config.Pool, "pool", config.Pool, "list the pair's slots")
	fs.BoolVar(&config.EnforceQuota, "quota", config.EnforceQuota, "enforce approved-payment quota")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
