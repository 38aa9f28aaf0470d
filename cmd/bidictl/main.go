package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"webdriver-bidi/internal/infra/config"
	"webdriver-bidi/internal/infra/logger"
	"webdriver-bidi/internal/infra/metrics"
	"webdriver-bidi/internal/infra/tracer"
)

func main() {
	if len(os.Args) < 2 {
		showUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "--help", "-h", "help":
		showUsage()
		return
	case "send":
		err = runSend(os.Args[2:])
	case "listen":
		err = runListen(os.Args[2:])
	case "status":
		err = runStatus(os.Args[2:])
	case "encrypt":
		err = runEncrypt(os.Args[2:])
	case "doctor":
		err = runDoctor(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'bidictl --help' for usage information.\n", os.Args[1])
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`bidictl - WebDriver BiDi command-line client

USAGE:
    bidictl COMMAND [FLAGS] [ARGS]

COMMANDS:
    send METHOD [PARAMS]   Send one command and print its result
                           PARAMS is a JSON object (default: {})
    listen EVENT...        Subscribe to events and print them as JSON lines
    status                 Query session.status without creating a session
    encrypt VALUE          Seal a header value for the config file
                           (passphrase from BIDI_CONFIG_KEY)
    doctor                 Check config and connectivity

FLAGS:
    -h, --help             Show this help message
    --config PATH          Config file path (default: ./bidi.yaml)
    --host HOST            Remote end host
    --port PORT            Remote end port
    --timeout DURATION     Command timeout (e.g. 5s)
    --metrics-addr ADDR    Serve Prometheus metrics on ADDR
    --context ID           Restrict listen to a browsing context (repeatable)

CONFIGURATION:
    Config file: ./bidi.yaml
    Environment: BIDI_* variables override config

EXAMPLES:
    bidictl status --port 9222
    bidictl send browsingContext.getTree
    bidictl send browsingContext.navigate '{"context":"ABC","url":"https://example.com","wait":"complete"}'
    bidictl listen log.entryAdded browsingContext.load`)
}

// cliFlags holds the flags shared by every command.
type cliFlags struct {
	ConfigPath  string
	Host        string
	Port        int
	Timeout     time.Duration
	MetricsAddr string
	Contexts    []string
}

// parseFlags splits args into known flags and positional arguments.
func parseFlags(args []string) (cliFlags, []string, error) {
	var flags cliFlags
	var rest []string

	value := func(i *int, name string) (string, bool) {
		arg := args[*i]
		if strings.HasPrefix(arg, name+"=") {
			return strings.TrimPrefix(arg, name+"="), true
		}
		if arg == name && *i+1 < len(args) {
			*i++
			return args[*i], true
		}
		return "", false
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") {
			rest = append(rest, arg)
			continue
		}
		name, _, _ := strings.Cut(arg, "=")
		v, ok := value(&i, name)
		if !ok {
			return flags, nil, fmt.Errorf("flag %s needs a value", name)
		}
		switch name {
		case "--config":
			flags.ConfigPath = v
		case "--host":
			flags.Host = v
		case "--port":
			port, err := strconv.Atoi(v)
			if err != nil {
				return flags, nil, fmt.Errorf("--port: %w", err)
			}
			flags.Port = port
		case "--timeout":
			d, err := time.ParseDuration(v)
			if err != nil {
				return flags, nil, fmt.Errorf("--timeout: %w", err)
			}
			flags.Timeout = d
		case "--metrics-addr":
			flags.MetricsAddr = v
		case "--context":
			flags.Contexts = append(flags.Contexts, v)
		default:
			return flags, nil, fmt.Errorf("unknown flag %s", name)
		}
	}
	return flags, rest, nil
}

// configPath resolves the config file from the flag, BIDI_CONFIG or the
// default.
func configPath(flags cliFlags) string {
	if flags.ConfigPath != "" {
		return flags.ConfigPath
	}
	if p := os.Getenv("BIDI_CONFIG"); p != "" {
		return p
	}
	return config.DefaultPath
}

// loadConfig loads the config file and applies flag overrides on top.
func loadConfig(flags cliFlags) (*config.Config, error) {
	cfg, err := config.Load(configPath(flags))
	if err != nil {
		return nil, err
	}
	if flags.Host != "" {
		cfg.Connection.Host = flags.Host
	}
	if flags.Port != 0 {
		cfg.Connection.Port = flags.Port
	}
	if flags.Timeout > 0 {
		cfg.Session.CommandTimeout = flags.Timeout
	}
	if flags.MetricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = flags.MetricsAddr
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runtime is the ambient stack shared by the network commands.
type runtime struct {
	flags   cliFlags
	cfg     *config.Config
	log     *slog.Logger
	metrics *metrics.Metrics
	cleanup []func()
}

func (r *runtime) Close() {
	for i := len(r.cleanup) - 1; i >= 0; i-- {
		r.cleanup[i]()
	}
}

// setup loads config and starts logging, tracing and the metrics endpoint.
func setup(args []string) (*runtime, []string, error) {
	flags, rest, err := parseFlags(args)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}

	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	r := &runtime{flags: flags, cfg: cfg, log: log}
	r.cleanup = append(r.cleanup, func() { logCloser() })

	ctx := context.Background()
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		r.Close()
		return nil, nil, fmt.Errorf("tracer: %w", err)
	}
	r.cleanup = append(r.cleanup, func() { tracerShutdown(context.Background()) })

	if cfg.Metrics.Enabled {
		r.metrics = metrics.New(nil)
		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           r.metrics.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server error", "error", err)
			}
		}()
		log.Info("metrics listening", "addr", cfg.Metrics.Addr)
		r.cleanup = append(r.cleanup, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		})
	}

	return r, rest, nil
}
