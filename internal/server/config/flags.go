package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/groupfiles/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   PostgreSQL DSN
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-w string   public base URL of stored objects
//	-t string   parent directory of temporary workspaces
//	-m string   metrics bind address (empty disables)
//	-l string   log level (debug, info, warn, error)
//	-P string   type policy YAML file
//	-S string   streaming preset YAML file
//	-W int      transcode workers
//	-r int      document render attempts
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes using
//     flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-u", "-p", "-b", "-g", "-e", "-w", "-t", "-m", "-l", "-P", "-S", "-W", "-r"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.S3PublicBaseURL, "w", config.S3PublicBaseURL, "public base URL of stored objects")

	fs.StringVar(&config.TempRoot, "t", config.TempRoot, "temporary workspace root")
	fs.StringVar(&config.MetricsAddr, "m", config.MetricsAddr, "metrics address")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.TypePolicyFile, "P", config.TypePolicyFile, "type policy file")
	fs.StringVar(&config.StreamingPresetFile, "S", config.StreamingPresetFile, "streaming preset file")
	fs.IntVar(&config.TranscodeWorkers, "W", config.TranscodeWorkers, "transcode workers")
	fs.IntVar(&config.RenderAttempts, "r", config.RenderAttempts, "document render attempts")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
