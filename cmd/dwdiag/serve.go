package main

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"dw3000-go/pkg/coex"
	"dw3000-go/pkg/config"
	"dw3000-go/pkg/device"
	"dw3000-go/pkg/diag"
	"dw3000-go/pkg/exchange"
	"dw3000-go/pkg/metrics"
	"dw3000-go/pkg/status"
)

var serveOpts struct {
	addr        string
	metricsAddr string
	rxLoop      bool
	timeoutPAC  uint16
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the diagnostics server",
	Long: `Serves the JSON-RPC and websocket diagnostics API for the open session,
with the Prometheus endpoint mounted at /metrics. --metrics-addr adds a
standalone metrics listener for scrape setups that keep the two apart.
With --rx-loop the session keeps the receiver enabled and streams every
exchange outcome to subscribers.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *session, prof *config.Profile) error {
			log := s.log

			addr, metricsAddr := serveOpts.addr, serveOpts.metricsAddr
			if sec := prof.GetSectionOptional("diag"); sec != nil {
				var err error
				if !cmd.Flags().Changed("addr") {
					if addr, err = sec.Get("addr", addr); err != nil {
						return err
					}
				}
				if !cmd.Flags().Changed("metrics-addr") {
					if metricsAddr, err = sec.Get("metrics_addr", metricsAddr); err != nil {
						return err
					}
				}
			}
			coexCfg, err := coexConfig(prof, nil)
			if err != nil {
				return err
			}

			reg := metrics.NewRegistry()
			dm := metrics.NewDriverMetrics(reg)
			dm.DeviceUp.Set(nil, 1)
			dm.UpdateSystem()
			pub := status.NewPublisher(dm.RxErrorsTotal)

			metricsSrv := metrics.NewServer(reg, metricsAddr)
			srv := diag.New(diag.Config{
				Addr:    addr,
				Source:  s.dev,
				Metrics: metricsSrv.Handler(),
				Log:     &log,
			})

			errCh := make(chan error, 2)
			go func() { errCh <- srv.Start() }()
			log.Info().Str("addr", addr).Msg("diagnostics server listening")
			if metricsAddr != "" {
				go func() { errCh <- metricsSrv.Start() }()
				log.Info().Str("addr", metricsAddr).Msg("metrics server listening")
			}

			if s.irq != nil {
				go func() {
					if err := s.dev.RunIRQ(ctx, s.irq); err != nil {
						log.Error().Err(err).Msg("interrupt loop failed")
					}
				}()
			}
			if serveOpts.rxLoop {
				go rxLoop(ctx, s, srv, dm, pub, coexCfg.Enabled, log)
			}

			sysTick := time.NewTicker(10 * time.Second)
			defer sysTick.Stop()
			for {
				select {
				case <-ctx.Done():
					srv.Stop()
					if metricsAddr != "" {
						shCtx, shCancel := context.WithTimeout(context.Background(), 2*time.Second)
						_ = metricsSrv.Shutdown(shCtx)
						shCancel()
					}
					dm.DeviceUp.Set(nil, 0)
					return nil
				case err := <-errCh:
					if err != nil {
						return err
					}
				case <-sysTick.C:
					dm.UpdateSystem()
				}
			}
		})
	},
}

// rxLoop keeps the receiver enabled, mirroring every completion into the
// event stream and the metric set. A failed enable ends the loop; the
// transport is gone and the server keeps running for post-mortem reads.
func rxLoop(ctx context.Context, s *session, srv *diag.Server, dm *metrics.DriverMetrics,
	pub *status.Publisher, coexOn bool, log zerolog.Logger) {
	for ctx.Err() == nil {
		desc := exchange.RxDescriptor{TimeoutPAC: serveOpts.timeoutPAC}
		if err := s.dev.RxEnable(&desc); err != nil {
			log.Error().Err(err).Msg("rx enable failed, stopping loop")
			return
		}
		if coexOn {
			dm.CoexArmsTotal.Inc(nil)
		}

		start := time.Now()
		ev, err := s.dev.WaitExchange(ctx)
		if err != nil {
			s.dev.Abort()
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("exchange wait failed")
			time.Sleep(100 * time.Millisecond)
			continue
		}

		dm.ExchangeSeconds.Observe(nil, time.Since(start).Seconds())
		dm.ExchangesTotal.Inc(metrics.Labels{"result": resultLabel(ev)})
		pub.Publish(s.dev.Counters())
		if state, _ := s.dev.CoexState(); state == coex.Armed {
			dm.CoexArmed.Set(nil, 1)
		} else {
			dm.CoexArmed.Set(nil, 0)
		}

		out := diag.Event{
			Kind:     eventKind(ev),
			StatusLo: ev.Status.Lo,
			StatusHi: ev.Status.Hi,
		}
		if ev.RxGood {
			if frame, err := s.dev.ReadFrame(); err == nil {
				out.RxLen = len(frame.Payload)
				out.Ranging = frame.Ranging
			}
		}
		srv.Publish(out)

		// The model completes enables instantly; pace the loop so the
		// stream stays readable.
		if s.sim != nil {
			time.Sleep(500 * time.Millisecond)
		}
	}
}

func eventKind(ev device.ExchangeEvent) string {
	switch {
	case ev.RxGood:
		return diag.EventRxGood
	case ev.RxTimeout:
		return diag.EventRxTimeout
	case ev.RxError:
		return diag.EventRxError
	}
	return diag.EventTxDone
}

func resultLabel(ev device.ExchangeEvent) string {
	switch {
	case ev.RxGood:
		return "rx_good"
	case ev.RxTimeout:
		return "rx_timeout"
	case ev.RxError:
		return "rx_error"
	}
	return "tx_done"
}

func init() {
	serveCmd.Flags().StringVar(&serveOpts.addr, "addr", ":9822", "diagnostics listen address")
	serveCmd.Flags().StringVar(&serveOpts.metricsAddr, "metrics-addr", "", "standalone metrics listen address (empty serves /metrics on the diagnostics address only)")
	serveCmd.Flags().BoolVar(&serveOpts.rxLoop, "rx-loop", false, "keep the receiver enabled and stream outcomes")
	serveCmd.Flags().Uint16Var(&serveOpts.timeoutPAC, "timeout-pac", 0, "preamble-detect timeout for loop enables in PAC units")
	rootCmd.AddCommand(serveCmd)
}
