package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"vocwallet/account"
	"vocwallet/cmd/internal/passphrase"
	"vocwallet/config"
	"vocwallet/crypto"
	"vocwallet/faucet"
	"vocwallet/observability/logging"
	"vocwallet/observability/otel"
	"vocwallet/sdk/client"
	"vocwallet/storage"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

var errUsage = errors.New("usage")

// app carries the state shared by every subcommand.
type app struct {
	cfg        *config.Config
	stdout     io.Writer
	stderr     io.Writer
	logger     *slog.Logger
	passphrase *passphrase.Source
	gateway    account.Gateway
}

type command struct {
	name  string
	args  string
	about string
	run   func(ctx context.Context, a *app, args []string) error
}

var commands = []command{
	{"generate-key", "<keystore>", "create a new encrypted keystore", runGenerateKey},
	{"address", "<keystore>", "print the address held by a keystore", runAddress},
	{"info", "<address>", "print the ledger state of an account", runInfo},
	{"set-info", "[--wait] <keystore> <uri>", "create the account or update its info URI", runSetInfo},
	{"mint", "[--wait] <keystore> <to> <amount>", "mint tokens (treasurer only)", runMint},
	{"faucet-gen", "<keystore> <to> <amount>", "sign a faucet package and print it as JSON", runFaucetGen},
	{"faucet-claim", "[--wait] <keystore> <package.json>", "claim a faucet package", runFaucetClaim},
	{"faucet-inspect", "<package.json>", "decode a faucet package and print its signer", runFaucetInspect},
	{"delegate", "add|del [--wait] <keystore> <address>", "manage account delegates", runDelegate},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("vocwallet", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to the wallet TOML config (created with defaults when missing)")
	rpcURL := fs.String("rpc", "", "Gateway JSON-RPC endpoint (overrides config and "+config.EnvRPCURL+")")
	passEnv := fs.String("pass-env", passphrase.DefaultEnv, "Environment variable holding the keystore passphrase")
	logLevel := fs.String("log-level", "", "Log level: debug, info, warn or error")
	metricsOut := fs.String("metrics-out", "", "Write Prometheus metrics to this textfile on exit")
	fs.Usage = func() { printUsage(stderr, fs) }
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() < 1 {
		printUsage(stderr, fs)
		return exitUsage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	if trimmed := strings.TrimSpace(*rpcURL); trimmed != "" {
		cfg.RPCEndpoint = trimmed
	}
	level := cfg.Log.Level
	if *logLevel != "" {
		level = *logLevel
	}
	logger := logging.Setup(stderr, cfg.Log.Service, cfg.Log.Env, logging.ParseLevel(level))

	shutdownTelemetry, err := otel.Init(ctx, otel.Config{
		ServiceName: cfg.Log.Service,
		Environment: cfg.Log.Env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     otel.ParseHeaders(cfg.Telemetry.Headers),
		Traces:      cfg.Telemetry.Traces,
		Metrics:     cfg.Telemetry.Metrics,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry flush failed", slog.String("error", err.Error()))
		}
	}()

	gw, err := client.New(cfg.RPCEndpoint,
		client.WithAuthToken(cfg.AuthToken),
		client.WithRateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	logger.Debug("gateway configured",
		slog.String("endpoint", gw.Endpoint()),
		logging.MaskField("auth_token", cfg.AuthToken))

	a := &app{
		cfg:        cfg,
		stdout:     stdout,
		stderr:     stderr,
		logger:     logger,
		passphrase: passphrase.NewSource(*passEnv),
		gateway:    gw,
	}

	name := fs.Arg(0)
	code := a.dispatch(ctx, name, fs.Args()[1:])
	if *metricsOut != "" {
		if err := prometheus.WriteToTextfile(*metricsOut, prometheus.DefaultGatherer); err != nil {
			fmt.Fprintf(stderr, "Error: write metrics: %v\n", err)
			if code == exitOK {
				code = exitError
			}
		}
	}
	return code
}

func (a *app) dispatch(ctx context.Context, name string, args []string) int {
	for _, cmd := range commands {
		if cmd.name != name {
			continue
		}
		err := cmd.run(ctx, a, args)
		switch {
		case err == nil:
			return exitOK
		case errors.Is(err, errUsage):
			fmt.Fprintf(a.stderr, "Usage: vocwallet %s %s\n", cmd.name, cmd.args)
			return exitUsage
		case errors.Is(err, flag.ErrHelp):
			return exitOK
		default:
			fmt.Fprintf(a.stderr, "Error: %v\n", err)
			return exitError
		}
	}
	fmt.Fprintf(a.stderr, "Error: unknown command %q\n", name)
	printCommands(a.stderr)
	return exitUsage
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "Usage: vocwallet [global flags] <command> [args]")
	fmt.Fprintln(w)
	printCommands(w)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Global flags:")
	fs.SetOutput(w)
	fs.PrintDefaults()
}

func printCommands(w io.Writer) {
	fmt.Fprintln(w, "Commands (<keystore> defaults to KeystorePath from the config):")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-15s %-40s %s\n", cmd.name, cmd.args, cmd.about)
	}
}

// newFlagSet returns a subcommand flag set whose parse errors are reported on
// stderr. The returned bool pointer is the shared --wait flag when withWait is set.
func (a *app) newFlagSet(name string, withWait bool) (*flag.FlagSet, *bool) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	var wait *bool
	if withWait {
		wait = fs.Bool("wait", false, "Poll the gateway until the change is visible")
	}
	return fs, wait
}

func (a *app) loadKey(path string) (*crypto.PrivateKey, error) {
	pass, err := a.passphrase.Get()
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		return nil, fmt.Errorf("load keystore %s: %w", path, err)
	}
	return key, nil
}

// openAccount loads the keystore and binds it to the gateway. The returned
// closer releases the faucet issuer store, if one is configured.
func (a *app) openAccount(path string) (*account.Account, func(), error) {
	key, err := a.loadKey(path)
	if err != nil {
		return nil, nil, err
	}
	opts := []account.Option{
		account.WithRetryPolicy(a.cfg.RetryPolicy()),
		account.WithLogger(a.logger),
	}
	if a.cfg.Treasurer {
		opts = append(opts, account.WithTreasurer())
	}
	closer := func() {}
	if dir := strings.TrimSpace(a.cfg.DataDir); dir != "" {
		db, err := storage.NewLevelDB(filepath.Join(dir, "faucet"))
		if err != nil {
			return nil, nil, fmt.Errorf("open faucet store: %w", err)
		}
		issuer, err := faucet.NewIssuer(key, db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		opts = append(opts, account.WithIssuer(issuer))
		closer = db.Close
	}
	acc, err := account.New(key, a.gateway, opts...)
	if err != nil {
		closer()
		return nil, nil, err
	}
	return acc, closer, nil
}

// parseArgs parses flags and requires exactly n positional arguments.
func parseArgs(fs *flag.FlagSet, args []string, n int) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, err
		}
		return nil, errUsage
	}
	if fs.NArg() != n {
		return nil, errUsage
	}
	return fs.Args(), nil
}

// keystoreArgs is parseArgs for commands whose first positional argument is
// a keystore path. The path may be left out when the config names one.
func (a *app) keystoreArgs(fs *flag.FlagSet, args []string, n int) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, err
		}
		return nil, errUsage
	}
	rest := fs.Args()
	if def := strings.TrimSpace(a.cfg.KeystorePath); def != "" && len(rest) == n-1 {
		rest = append([]string{def}, rest...)
	}
	if len(rest) != n {
		return nil, errUsage
	}
	return rest, nil
}
