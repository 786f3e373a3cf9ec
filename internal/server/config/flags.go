package config

import (
	"flag"
	"os"
	"strings"
	"time"
)

// filterArgs returns only the allowed flags (and their values) from args.
// Handles both "-f value" and "-f=value" forms. Filtering lets this package
// parse its own flags without tripping over flags owned by other components.
func filterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") {
			name := strings.SplitN(arg, "=", 2)[0]
			if _, ok := allowed[name]; ok {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, ok := allowed[arg]; ok {
			filtered = append(filtered, arg)
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				filtered = append(filtered, args[i+1])
				i++
			}
		}
	}
	return filtered
}

// jsonConfigFile extracts the config file path from the -c/-config flags,
// ignoring everything else on the command line.
func jsonConfigFile() string {
	var config string

	args := filterArgs(os.Args[1:], []string{"-c", "-config"})

	fs := flag.NewFlagSet("json", flag.ContinueOnError)
	fs.StringVar(&config, "config", "", "Path to config file")
	fs.StringVar(&config, "c", "", "Path to config file (short)")
	_ = fs.Parse(args)

	return config
}

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   gRPC bind address (e.g., ":50051")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-k string   path to the platform RS256 private key (PEM)
//	-t int      access token validity, minutes
//	-r int      refresh token validity, hours
//	-w int      max concurrent password hash derivations
func parseFlags(config *Config) {
	args := filterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-k", "-t", "-r", "-w"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.PlatformPrivateKeyFile, "k", config.PlatformPrivateKeyFile, "platform private key PEM file")

	accessValidity := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access token validity (in minutes)")
	refreshValidity := fs.Int("r", int(config.RefreshTokenValidityDuration.Hours()), "refresh token validity (in hours)")
	fs.IntVar(&config.MaxConcurrentHashes, "w", config.MaxConcurrentHashes, "max concurrent password hashes")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessValidity) * time.Minute
	config.RefreshTokenValidityDuration = time.Duration(*refreshValidity) * time.Hour
}
