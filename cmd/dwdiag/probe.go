package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"dw3000-go/pkg/chip"
	"dw3000-go/pkg/config"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Open a session and report the probed chip identity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *session, prof *config.Profile) error {
			id := s.dev.DevID()
			now, err := s.dev.SysTime()
			if err != nil {
				return err
			}
			state, _ := s.dev.CoexState()

			fmt.Printf("device:   %s\n", chip.DevIDName(id))
			fmt.Printf("dev_id:   %#08x\n", id)
			fmt.Printf("sys_time: %#08x\n", uint32(now))
			fmt.Printf("coex:     %s\n", state)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(probeCmd)
}
