package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"dw3000-go/pkg/config"
	"dw3000-go/pkg/device"
	"dw3000-go/pkg/dwtime"
	"dw3000-go/pkg/exchange"
)

var txOpts struct {
	data       string
	ranging    bool
	inUs       uint32
	wait       time.Duration
	waitResp   bool
	rxDelayUUS int32
	timeoutPAC uint16
}

var txCmd = &cobra.Command{
	Use:   "tx",
	Short: "Transmit one frame and wait for the outcome",
	Long: `Transmits one frame and waits for the completion. --in-us schedules a
delayed start relative to the current device time. --wait-response arms the
receiver after the transmission, with the turn-on delay and preamble-detect
timeout from --rx-delay-uus and --rx-timeout-pac.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := hex.DecodeString(txOpts.data)
		if err != nil {
			return fmt.Errorf("bad --data: %w", err)
		}
		return withSession(cmd, func(ctx context.Context, s *session, prof *config.Profile) error {
			desc := exchange.TxDescriptor{RxDelayAfterTx: -1}
			if txOpts.ranging {
				desc.Flags |= exchange.TxRanging
			}
			if txOpts.waitResp {
				desc.Flags |= exchange.TxResponseExpected
				desc.RxDelayAfterTx = txOpts.rxDelayUUS
				desc.RxTimeoutPAC = txOpts.timeoutPAC
			}
			if txOpts.inUs > 0 {
				now, err := s.dev.SysTime()
				if err != nil {
					return err
				}
				desc.Flags |= exchange.TxDelayed
				desc.DateDTU = now.Add(int32(dwtime.MicrosToDTU(txOpts.inUs)))
			}

			start := time.Now()
			if err := s.dev.TxFrame(payload, desc); err != nil {
				return err
			}
			wctx, cancel := context.WithTimeout(ctx, txOpts.wait)
			defer cancel()
			ev, err := s.dev.WaitExchange(wctx)
			if err != nil {
				s.dev.Abort()
				return err
			}

			fmt.Printf("%s after %s (status %#08x)\n",
				eventName(ev), time.Since(start).Round(time.Microsecond), ev.Status.Lo)
			if ev.RxGood {
				return printFrame(s.dev)
			}
			return nil
		})
	},
}

// eventName renders the outcome flags of a completed exchange. A
// wait-for-response exchange can complete with both sides set.
func eventName(ev device.ExchangeEvent) string {
	var parts []string
	if ev.TxDone {
		parts = append(parts, "tx done")
	}
	if ev.RxGood {
		parts = append(parts, "rx good")
	}
	if ev.RxTimeout {
		parts = append(parts, "rx timeout")
	}
	if ev.RxError {
		parts = append(parts, "rx error")
	}
	if len(parts) == 0 {
		return "no event"
	}
	return strings.Join(parts, " + ")
}

// printFrame reads out and prints the frame a good reception left behind.
func printFrame(dev *device.Device) error {
	frame, err := dev.ReadFrame()
	if err != nil {
		return err
	}
	fmt.Printf("frame:     %d bytes  %s\n", len(frame.Payload), hex.EncodeToString(frame.Payload))
	fmt.Printf("timestamp: %#010x\n", uint64(frame.Timestamp))
	fmt.Printf("ranging:   %v  preamble_count: %d\n", frame.Ranging, frame.PreambleCount)
	return nil
}

func init() {
	txCmd.Flags().StringVar(&txOpts.data, "data", "c5a1deca", "frame payload as hex")
	txCmd.Flags().BoolVar(&txOpts.ranging, "ranging", false, "set the ranging bit in the PHY header")
	txCmd.Flags().Uint32Var(&txOpts.inUs, "in-us", 0, "delayed start this many microseconds from now")
	txCmd.Flags().DurationVar(&txOpts.wait, "wait", 2*time.Second, "how long to wait for the completion")
	txCmd.Flags().BoolVar(&txOpts.waitResp, "wait-response", false, "arm the receiver after the transmission")
	txCmd.Flags().Int32Var(&txOpts.rxDelayUUS, "rx-delay-uus", 0, "receiver turn-on delay after TX in UUS")
	txCmd.Flags().Uint16Var(&txOpts.timeoutPAC, "rx-timeout-pac", 0, "preamble-detect timeout in PAC units (0 disables)")
	rootCmd.AddCommand(txCmd)
}
