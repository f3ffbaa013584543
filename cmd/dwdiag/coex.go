package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"dw3000-go/pkg/config"
	"dw3000-go/pkg/dwtime"
)

var coexOpts struct {
	inUs uint32
}

var coexCmd = &cobra.Command{
	Use:   "coex",
	Short: "Preview the coexistence schedule for an exchange",
	Long: `Shows what the coexistence arbiter would do to an exchange started now:
the grant lead applied to an immediate start, or the slack slept before the
line rises for a delayed start --in-us from now. Reads the device time but
never drives the grant line.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *session, prof *config.Profile) error {
			cfg, err := coexConfig(prof, nil)
			if err != nil {
				return err
			}
			state, _ := s.dev.CoexState()
			now, err := s.dev.SysTime()
			if err != nil {
				return err
			}

			fmt.Printf("state:    %s\n", state)
			fmt.Printf("sys_time: %#08x\n", uint32(now))
			if !cfg.Enabled {
				fmt.Println("coex:     disabled; exchanges start unmodified")
				return nil
			}

			delayed := coexOpts.inUs > 0
			var date dwtime.DTU
			if delayed {
				date = now.Add(int32(dwtime.MicrosToDTU(coexOpts.inUs)))
				fmt.Printf("request:  delayed start at %#08x (+%d us)\n", uint32(date), coexOpts.inUs)
			} else {
				fmt.Println("request:  immediate start")
			}

			_, granted, wait := cfg.Schedule(now, delayed, date)
			lead := dwtime.DTUToMicros(dwtime.Sub(granted, now))
			fmt.Printf("granted:  delayed start at %#08x (+%d us lead)\n", uint32(granted), lead)
			fmt.Printf("slack:    %s before the line rises\n", wait)
			return nil
		})
	},
}

func init() {
	coexCmd.Flags().Uint32Var(&coexOpts.inUs, "in-us", 0, "preview a delayed start this many microseconds from now")
	rootCmd.AddCommand(coexCmd)
}
