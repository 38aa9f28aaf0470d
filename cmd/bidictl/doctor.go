package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"webdriver-bidi/internal/infra/config"
	"webdriver-bidi/internal/infra/logger"
	"webdriver-bidi/pkg/bidisdk"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

const doctorTimeout = 3 * time.Second

// runDoctor executes all health checks and reports results.
func runDoctor(args []string) error {
	flags, _, err := parseFlags(args)
	if err != nil {
		return err
	}
	cfgPath := configPath(flags)

	// Some checks work without a loaded config.
	cfg, cfgErr := loadConfig(flags)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "Endpoint", Fn: checkEndpoint},
		{Name: "Remote end", Fn: checkRemoteEnd},
	}

	fmt.Println("bidictl doctor")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println()

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Printf("  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Printf("      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Println()
	fmt.Println(strings.Repeat("-", 50))
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		return fmt.Errorf("%d check(s) failed", fail)
	}
	return nil
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

// checkConfigFile reports on the config file. A missing file is only a
// warning since the defaults are usable.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     fmt.Sprintf("Check %s syntax and permissions (0600)", cfgPath),
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config at %s, using defaults", cfgPath),
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("config loaded from %s", cfgPath),
		}
	}
}

// checkEndpoint verifies the remote end accepts TCP connections.
func checkEndpoint(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check: config not loaded"}
	}
	addr := net.JoinHostPort(cfg.Connection.Host, strconv.Itoa(cfg.Connection.Port))
	conn, err := net.DialTimeout("tcp", addr, doctorTimeout)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("%s unreachable: %v", addr, err),
			Fix:     "Start the browser with remote debugging enabled, e.g. firefox --remote-debugging-port 9222",
		}
	}
	conn.Close()
	return CheckResult{Status: StatusPass, Message: addr + " reachable"}
}

// checkRemoteEnd completes the upgrade and asks session.status.
func checkRemoteEnd(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check: config not loaded"}
	}
	ctx, cancel := context.WithTimeout(context.Background(), doctorTimeout)
	defer cancel()

	c, err := bidisdk.Connect(ctx,
		bidisdk.WithConfig(cfg),
		bidisdk.WithLogger(logger.Discard()),
		bidisdk.WithoutHandshake(),
	)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: err.Error(),
			Fix:     "Check connection.path; Firefox and chromium-bidi serve /session",
		}
	}
	defer c.Close()

	status, err := c.Session().Status(ctx)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: fmt.Sprintf("session.status: %v", err)}
	}
	if !status.Ready {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("remote end not ready: %s", status.Message),
			Fix:     "Another client may hold the only session",
		}
	}
	return CheckResult{Status: StatusPass, Message: "ready for a new session"}
}
