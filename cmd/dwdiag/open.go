package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"dw3000-go/pkg/budget"
	"dw3000-go/pkg/chip"
	"dw3000-go/pkg/chip/chiptest"
	"dw3000-go/pkg/coex"
	"dw3000-go/pkg/config"
	"dw3000-go/pkg/device"
	"dw3000-go/pkg/dwtime"
	"dw3000-go/pkg/hostio"
	"dw3000-go/pkg/serial"
	"dw3000-go/pkg/transport"
	"dw3000-go/pkg/uwberr"
)

// session is an opened device plus the host-side extras the transport
// exposes: the interrupt line when the SPI binding has one, and the model
// handle in simulator mode.
type session struct {
	dev *device.Device
	irq device.EdgeWaiter
	sim *chiptest.Model
	log zerolog.Logger
}

func (s *session) Close() error {
	return s.dev.Close()
}

// withSession is the common command prelude: logger, profile, signal-aware
// context and an open device session, closed when fn returns.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, s *session, prof *config.Profile) error) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	prof, err := loadProfile()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	s, err := openSession(ctx, prof, log)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s, prof)
}

// loadProfile parses the --profile file. Commands run without one; every
// section is optional and the defaults describe the first SPI port.
func loadProfile() (*config.Profile, error) {
	if rootOpts.profile == "" {
		return config.LoadString("")
	}
	return config.Load(rootOpts.profile)
}

// openSession opens the transport the profile describes, or the device model
// with --sim, and probes a session over it.
func openSession(ctx context.Context, prof *config.Profile, log zerolog.Logger) (*session, error) {
	s := &session{log: log}

	var bus transport.Bus
	if rootOpts.sim {
		s.sim = newSimModel()
		bus = s.sim
	} else {
		b, irq, err := openBus(prof, &log)
		if err != nil {
			return nil, err
		}
		bus = b
		s.irq = irq
	}

	coexCfg, err := coexConfig(prof, &log)
	if err != nil {
		bus.Close()
		return nil, err
	}

	cfg := device.Config{
		Bus:    bus,
		Coex:   coexCfg,
		UseCRC: true,
		Log:    &log,
	}
	if sec := prof.GetSectionOptional("device"); sec != nil {
		if cfg.UseCRC, err = sec.GetBool("use_crc", true); err != nil {
			bus.Close()
			return nil, err
		}
		retries, err := sec.GetInt("probe_retries", 0)
		if err != nil {
			bus.Close()
			return nil, err
		}
		cfg.ProbeRetries = retries
		delayMs, err := sec.GetInt("probe_delay_ms", 0)
		if err != nil {
			bus.Close()
			return nil, err
		}
		cfg.ProbeDelay = time.Duration(delayMs) * time.Millisecond
	}

	dev, err := device.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.dev = dev
	return s, nil
}

// openBus opens the register transport: a serial bridge when [device]
// transport is uart, otherwise the spidev binding described by [spi].
func openBus(prof *config.Profile, log *zerolog.Logger) (transport.Bus, device.EdgeWaiter, error) {
	kind := "spi"
	if sec := prof.GetSectionOptional("device"); sec != nil {
		k, err := sec.GetChoice("transport", []string{"spi", "uart"}, "spi")
		if err != nil {
			return nil, nil, err
		}
		kind = k
	}

	if kind == "uart" {
		cfg := serial.DefaultConfig()
		cfg.Log = log
		if sec := prof.GetSectionOptional("uart"); sec != nil {
			var err error
			if cfg.Device, err = sec.Get("device", ""); err != nil {
				return nil, nil, err
			}
			if cfg.BaudRate, err = sec.GetInt("baud", cfg.BaudRate); err != nil {
				return nil, nil, err
			}
		}
		if cfg.Device == "" {
			return nil, nil, fmt.Errorf("no serial device configured; set [uart] device or use --sim")
		}
		b, err := serial.OpenBridge(cfg)
		if err != nil {
			return nil, nil, err
		}
		return b, nil, nil
	}

	cfg := hostio.Config{Log: log}
	if sec := prof.GetSectionOptional("spi"); sec != nil {
		var err error
		if cfg.Port, err = sec.Get("port", ""); err != nil {
			return nil, nil, err
		}
		slow, err := sec.GetInt("slow_hz", 0)
		if err != nil {
			return nil, nil, err
		}
		fast, err := sec.GetInt("fast_hz", 0)
		if err != nil {
			return nil, nil, err
		}
		cfg.SlowHz, cfg.FastHz = int64(slow), int64(fast)
		if cfg.IRQPin, err = sec.Get("irq_pin", ""); err != nil {
			return nil, nil, err
		}
		if cfg.ResetPin, err = sec.Get("reset_pin", ""); err != nil {
			return nil, nil, err
		}
	}
	b, err := hostio.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	var edge device.EdgeWaiter
	if p := b.IRQ(); p != nil {
		edge = p
	}
	return b, edge, nil
}

// coexConfig maps the [coex] section. Absent section means disabled.
func coexConfig(prof *config.Profile, log *zerolog.Logger) (coex.Config, error) {
	cfg := coex.Config{Log: log}
	sec := prof.GetSectionOptional("coex")
	if sec == nil {
		return cfg, nil
	}

	var err error
	if cfg.Enabled, err = sec.GetBool("enabled", true); err != nil {
		return coex.Config{}, err
	}
	if sec.HasOption("pin") {
		minPin, maxPin := 0, 8
		pin, err := sec.GetIntWithBounds("pin", &minPin, &maxPin)
		if err != nil {
			return coex.Config{}, err
		}
		cfg.Pin = uint8(pin)
	} else if cfg.Enabled {
		return coex.Config{}, uwberr.ConfigOptionError("coex", "pin")
	}
	if cfg.ActiveHigh, err = sec.GetBool("active_high", true); err != nil {
		return coex.Config{}, err
	}
	timeUs, err := sec.GetInt("time_us", 0)
	if err != nil {
		return coex.Config{}, err
	}
	marginUs, err := sec.GetInt("margin_us", 0)
	if err != nil {
		return coex.Config{}, err
	}
	cfg.TimeUs, cfg.MarginUs = uint32(timeUs), uint32(marginUs)
	return cfg, nil
}

// newSimModel builds the simulator: a DW3000 with a running time counter and
// one blink frame staged, so receive paths have something to deliver.
func newSimModel() *chiptest.Model {
	m := chiptest.New(chip.DEV_ID_DW3000)
	m.Now = dwtime.DTU(0x10000)
	m.TimeStep = int32(dwtime.MicrosToDTU(5))
	m.LoadRxFrame(
		[]byte{0xc5, 0x01, 0xde, 0xca, 0x30, 0x00, 0x00, 0x00, 0x00, 0x01},
		dwtime.Timestamp40(0x0123456789), true)
	m.SetTxTimestamp(dwtime.Timestamp40(0x0123450000))
	return m
}

// shapeFlags are the frame shape overrides shared by tx, rx and budget.
// Unset flags defer to the [frame] section, then to 128-symbol 6.8M with
// the STS off.
type shapeFlags struct {
	preamble int
	rate     string
	sts      string
}

func addShapeFlags(cmd *cobra.Command, f *shapeFlags) {
	cmd.Flags().IntVar(&f.preamble, "preamble", 0, "preamble length in symbols (32..4096)")
	cmd.Flags().StringVar(&f.rate, "rate", "", "data rate (6.8M or 850K)")
	cmd.Flags().StringVar(&f.sts, "sts", "", "STS segment length (off, 32..2048)")
}

func (f *shapeFlags) resolve(prof *config.Profile) (budget.FrameShape, error) {
	shape := budget.FrameShape{PLen: budget.Plen128, Rate: budget.Rate6M8, STS: budget.STSOff}

	if sec := prof.GetSectionOptional("frame"); sec != nil {
		plen, err := sec.GetInt("preamble", int(shape.PLen))
		if err != nil {
			return budget.FrameShape{}, err
		}
		if shape.PLen, err = parsePreamble(plen); err != nil {
			return budget.FrameShape{}, err
		}
		rate, err := sec.GetChoice("rate", []string{"6.8M", "850K"}, shape.Rate.String())
		if err != nil {
			return budget.FrameShape{}, err
		}
		if shape.Rate, err = parseRate(rate); err != nil {
			return budget.FrameShape{}, err
		}
		sts, err := sec.Get("sts", "off")
		if err != nil {
			return budget.FrameShape{}, err
		}
		if shape.STS, err = parseSTS(sts); err != nil {
			return budget.FrameShape{}, err
		}
	}

	var err error
	if f.preamble != 0 {
		if shape.PLen, err = parsePreamble(f.preamble); err != nil {
			return budget.FrameShape{}, err
		}
	}
	if f.rate != "" {
		if shape.Rate, err = parseRate(f.rate); err != nil {
			return budget.FrameShape{}, err
		}
	}
	if f.sts != "" {
		if shape.STS, err = parseSTS(f.sts); err != nil {
			return budget.FrameShape{}, err
		}
	}
	return shape, nil
}

func parsePreamble(n int) (budget.PreambleLen, error) {
	switch budget.PreambleLen(n) {
	case budget.Plen32, budget.Plen64, budget.Plen72, budget.Plen128, budget.Plen256,
		budget.Plen512, budget.Plen1024, budget.Plen1536, budget.Plen2048, budget.Plen4096:
		return budget.PreambleLen(n), nil
	}
	return 0, fmt.Errorf("preamble length %d is not one of 32/64/72/128/256/512/1024/1536/2048/4096", n)
}

func parseRate(s string) (budget.DataRate, error) {
	switch {
	case strings.EqualFold(s, "6.8M"):
		return budget.Rate6M8, nil
	case strings.EqualFold(s, "850K"):
		return budget.Rate850K, nil
	}
	return 0, fmt.Errorf("data rate %q is not 6.8M or 850K", s)
}

func parseSTS(s string) (budget.STSLen, error) {
	if strings.EqualFold(s, "off") {
		return budget.STSOff, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("STS length %q is not off or a length in microseconds", s)
	}
	for l := budget.STS32; l <= budget.STS2048; l++ {
		if l.Micros() == uint32(n) {
			return l, nil
		}
	}
	return 0, fmt.Errorf("STS length %d is not one of 32/64/128/256/512/1024/2048", n)
}
