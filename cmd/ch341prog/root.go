package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/moffa90/go-ch341prog/eeprom"
	"github.com/moffa90/go-ch341prog/i2c"
	"github.com/moffa90/go-ch341prog/transport"
	"github.com/moffa90/go-ch341prog/transport/usb"
)

// rootOptions holds the global flags and the injectable backend.
type rootOptions struct {
	device    string
	speed     string
	address   string
	chip      string
	retries   int
	timeout   time.Duration
	journal   string
	logLevel  string
	logFormat string
	quiet     bool

	backend func() transport.Backend
	logger  *slog.Logger
}

func defaultRootOptions() *rootOptions {
	if err := loadDotEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, "Warning: .env:", err)
	}
	return &rootOptions{
		device:    envString("DEVICE", ""),
		speed:     envString("SPEED", i2c.SpeedStandard.String()),
		address:   envString("ADDRESS", "0x50"),
		chip:      envString("CHIP", ""),
		retries:   envInt("RETRIES", 3),
		timeout:   envDuration("TIMEOUT", transport.DefaultTimeout),
		journal:   envString("JOURNAL", ""),
		logLevel:  envString("LOG_LEVEL", "warn"),
		logFormat: envString("LOG_FORMAT", "text"),
		backend:   func() transport.Backend { return usb.NewBackend() },
	}
}

// newRootCmd builds the command tree.
func newRootCmd(o *rootOptions) *cobra.Command {
	root := &cobra.Command{
		Use:   "ch341prog",
		Short: "Program 24Cxx I2C EEPROMs through a CH341A USB bridge.",
		Long: `ch341prog reads, writes, erases and verifies 24Cxx I2C EEPROMs attached ` +
			`to a CH341A USB bridge. Images are exchanged as Intel HEX or raw binary files. ` +
			`Flag defaults can be set with CH341PROG_* environment variables or a .env file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(cmd.ErrOrStderr(), o.logLevel, o.logFormat)
			if err != nil {
				return err
			}
			o.logger = logger
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&o.device, "device", o.device, "adapter ID as shown by list (default: first adapter)")
	pf.StringVar(&o.speed, "speed", o.speed, "bus speed: slow, standard, fast, fastplus")
	pf.StringVar(&o.address, "address", o.address, "device address used with --chip")
	pf.StringVar(&o.chip, "chip", o.chip, "declare the part (e.g. 24C02) instead of detecting it")
	pf.IntVar(&o.retries, "retries", o.retries, "retries for NACKed or timed-out transactions")
	pf.DurationVar(&o.timeout, "timeout", o.timeout, "USB transfer timeout")
	pf.StringVar(&o.journal, "journal", o.journal, "record session events to this SQLite file")
	pf.StringVar(&o.logLevel, "log-level", o.logLevel, "log level: debug, info, warn, error")
	pf.StringVar(&o.logFormat, "log-format", o.logFormat, "log format: text, json")
	pf.BoolVarP(&o.quiet, "quiet", "q", o.quiet, "do not print progress")

	root.AddCommand(
		newListCmd(o),
		newScanCmd(o),
		newDetectCmd(o),
		newReadCmd(o),
		newWriteCmd(o),
		newEraseCmd(o),
		newVerifyCmd(o),
		newHistoryCmd(o),
	)
	return root
}

// newLogger creates the stderr logger for the given level and format.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}

func (o *rootOptions) parseAddress() (uint8, error) {
	v, err := strconv.ParseUint(o.address, 0, 8)
	if err != nil || v > i2c.MaxAddress {
		return 0, fmt.Errorf("%w: %q", i2c.ErrInvalidAddress, o.address)
	}
	return uint8(v), nil
}

func (o *rootOptions) profile() (*eeprom.Profile, error) {
	if o.chip == "" {
		return nil, nil
	}
	p, ok := eeprom.Lookup(o.chip)
	if !ok {
		return nil, fmt.Errorf("unknown chip %q", o.chip)
	}
	return &p, nil
}
