package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dw3000-go/pkg/serial"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List candidate serial devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := serial.ListPorts()
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			fmt.Println("no serial devices found")
			return nil
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)
}
