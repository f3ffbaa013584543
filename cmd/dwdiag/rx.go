package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"dw3000-go/pkg/config"
	"dw3000-go/pkg/exchange"
)

var rxOpts struct {
	shape        shapeFlags
	timeoutPAC   uint16
	frameTimeout bool
	baseUUS      uint32
	wait         time.Duration
	count        int
}

var rxCmd = &cobra.Command{
	Use:   "rx",
	Short: "Enable the receiver and wait for frames",
	Long: `Enables the receiver and prints each completion. --frame-timeout arms the
frame-wait timeout computed from the frame shape and --base-uus, so a
missing response fails over to a timeout event instead of listening
forever. --count 0 keeps receiving until interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *session, prof *config.Profile) error {
			if rxOpts.frameTimeout {
				shape, err := rxOpts.shape.resolve(prof)
				if err != nil {
					return err
				}
				if err := s.dev.ArmRxTimeout(rxOpts.baseUUS, shape); err != nil {
					return err
				}
			}

			for i := 0; rxOpts.count == 0 || i < rxOpts.count; i++ {
				desc := exchange.RxDescriptor{TimeoutPAC: rxOpts.timeoutPAC}
				if err := s.dev.RxEnable(&desc); err != nil {
					return err
				}

				wctx := ctx
				cancel := context.CancelFunc(func() {})
				if rxOpts.wait > 0 {
					wctx, cancel = context.WithTimeout(ctx, rxOpts.wait)
				}
				ev, err := s.dev.WaitExchange(wctx)
				cancel()
				if err != nil {
					s.dev.Abort()
					if ctx.Err() != nil {
						return nil
					}
					return err
				}

				fmt.Printf("%s (status %#08x)\n", eventName(ev), ev.Status.Lo)
				if ev.RxGood {
					if err := printFrame(s.dev); err != nil {
						return err
					}
				}
			}
			return nil
		})
	},
}

func init() {
	addShapeFlags(rxCmd, &rxOpts.shape)
	rxCmd.Flags().Uint16Var(&rxOpts.timeoutPAC, "timeout-pac", 0, "preamble-detect timeout in PAC units (0 disables)")
	rxCmd.Flags().BoolVar(&rxOpts.frameTimeout, "frame-timeout", false, "arm the frame-wait timeout from the shape budget")
	rxCmd.Flags().Uint32Var(&rxOpts.baseUUS, "base-uus", 0, "base response delay for the timeout budget in UUS")
	rxCmd.Flags().DurationVar(&rxOpts.wait, "wait", 0, "host-side wait bound per frame (0 waits until interrupted)")
	rxCmd.Flags().IntVar(&rxOpts.count, "count", 1, "frames to receive before exiting (0 for no limit)")
	rootCmd.AddCommand(rxCmd)
}
