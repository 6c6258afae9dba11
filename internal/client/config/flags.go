package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/altair/internal/flagx"
)

var clientFlags = []string{"-a", "-i", "-f", "-z", "-l"}

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   address and port of the backend server (default from Config)
//	-i int      online check interval in seconds (default from Config)
//	-f string   local database path
//	-z string   timezone
//	-l string   log level
//
// Note: The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, so subcommand arguments pass through untouched.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], clientFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port to access server")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	fs.StringVar(&cfg.DatabasePath, "f", cfg.DatabasePath, "local database path")
	fs.StringVar(&cfg.Timezone, "z", cfg.Timezone, "timezone of energy budgets")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
}

// CommandArgs returns args without the settings parsed by LoadConfig,
// leaving the subcommand and its own flags.
func CommandArgs(args []string) []string {
	return flagx.StripArgs(args, append([]string{"-c", "-config"}, clientFlags...))
}
