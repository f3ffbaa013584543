// dwdiag is the bench diagnostics tool for DW3000-family radios.
// It probes the chip over a spidev port or a serial bridge MCU, reads and
// writes registers, runs one-shot transmit and receive exchanges, previews
// coexistence timing and serves the live diagnostics API.
//
// Usage:
//
//	dwdiag [--profile dw3000.cfg] <command> [flags]
//
// Commands:
//
//	probe    open a session and report the probed chip identity
//	reg      read or write a register word
//	tx       transmit one frame and wait for the outcome
//	rx       enable the receiver and wait for frames
//	budget   print timing budgets and power boost for a frame shape
//	coex     preview the coexistence schedule for an exchange
//	serve    run the diagnostics server
//	ports    list candidate serial devices
//
// Examples:
//
//	# Probe the first SPI port
//	dwdiag probe
//
//	# Probe through a serial bridge described by a profile
//	dwdiag --profile bridge.cfg probe
//
//	# Exercise the full exchange path without hardware
//	dwdiag --sim tx --data c5a1 --wait-response
//
//	# Serve diagnostics and keep the receiver listening
//	dwdiag --profile dw3000.cfg serve --rx-loop
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var rootOpts struct {
	profile  string
	sim      bool
	logLevel string
	logJSON  bool
}

var rootCmd = &cobra.Command{
	Use:   "dwdiag",
	Short: "DW3000 bench diagnostics",
	Long: `dwdiag drives one DW3000-family radio session for bench work: probing,
register access, one-shot exchanges, timing previews and the diagnostics
server. The transport comes from the profile file; --sim substitutes an
in-memory device model so every command runs without hardware.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&rootOpts.profile, "profile", "c", "", "device profile file")
	pf.BoolVar(&rootOpts.sim, "sim", false, "run against the in-memory device model")
	pf.StringVar(&rootOpts.logLevel, "log-level", defaultLogLevel(), "log level (trace, debug, info, warn, error)")
	pf.BoolVar(&rootOpts.logJSON, "log-json", false, "emit JSON log lines instead of console output")
}

func defaultLogLevel() string {
	if v := os.Getenv("DWDIAG_LOG_LEVEL"); v != "" {
		return v
	}
	return "info"
}

func newLogger() (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(rootOpts.logLevel)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("bad log level %q: %w", rootOpts.logLevel, err)
	}
	var w io.Writer = os.Stderr
	if !rootOpts.logJSON {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

// signalContext cancels on SIGINT or SIGTERM so a blocked exchange wait
// unwinds and releases the transceiver instead of dying mid-exchange.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
