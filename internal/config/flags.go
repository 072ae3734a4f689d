package config

import (
	"flag"
	"os"
	"strings"
	"time"

	"github.com/openpos/companysync/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   sqlite DSN of the local database
//	-r string   comma-separated relay URLs
//	-b string   base URL for invite links
//	-l string   log level
//	-i int      background sync interval in seconds
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-r", "-b", "-l", "-i"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "sqlite DSN of the local database")
	relays := fs.String("r", strings.Join(cfg.Relays, ","), "comma-separated relay URLs")
	fs.StringVar(&cfg.JoinBaseURL, "b", cfg.JoinBaseURL, "base URL for invite links")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level (debug|info|warn|error)")
	syncInterval := fs.Int("i", int(cfg.SyncInterval.Seconds()), "background sync interval (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	if *relays != "" {
		cfg.Relays = strings.Split(*relays, ",")
	}
	cfg.SyncInterval = time.Duration(*syncInterval) * time.Second
}
