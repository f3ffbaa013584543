package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dw3000-go/pkg/budget"
)

var budgetOpts struct {
	shape      shapeFlags
	baseUUS    uint32
	durationUs uint32
}

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Print timing budgets and power boost for a frame shape",
	Long: `Computes the receive-side timing budget for a frame shape: the receiver
turn-on delay and the frame-wait timeout for a response expected after
--base-uus, plus the regulatory TX power boost available to frames of a
given on-air duration. Pure computation; no device is opened.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		prof, err := loadProfile()
		if err != nil {
			return err
		}
		shape, err := budgetOpts.shape.resolve(prof)
		if err != nil {
			return err
		}

		turnOn, err := budget.RxTurnOnDelay(budgetOpts.baseUUS, shape)
		if err != nil {
			return err
		}
		timeout, err := budget.RxTimeoutBudget(budgetOpts.baseUUS, shape)
		if err != nil {
			return err
		}

		fmt.Printf("shape:            plen=%d rate=%s sts=%dus\n",
			shape.PLen, shape.Rate, shape.STS.Micros())
		fmt.Printf("base delay:       %d uus\n", budgetOpts.baseUUS)
		fmt.Printf("rx turn-on delay: %d uus\n", turnOn)
		fmt.Printf("rx frame timeout: %d uus\n", timeout)

		if budgetOpts.durationUs > 0 {
			fmt.Printf("tx power boost:   +%s dB for a %d us frame\n",
				formatBoost(budget.PowerBoostForDuration(budgetOpts.durationUs)), budgetOpts.durationUs)
			return nil
		}
		fmt.Println("tx power boost:")
		for _, d := range []uint32{70, 100, 150, 200, 300, 500, 750, 1000} {
			fmt.Printf("  %4d us frame  +%s dB\n", d, formatBoost(budget.PowerBoostForDuration(d)))
		}
		return nil
	},
}

// formatBoost renders a 0.1 dB boost value as decibels.
func formatBoost(tenths uint8) string {
	return fmt.Sprintf("%d.%d", tenths/10, tenths%10)
}

func init() {
	addShapeFlags(budgetCmd, &budgetOpts.shape)
	budgetCmd.Flags().Uint32Var(&budgetOpts.baseUUS, "base-uus", 0, "base response delay in UUS")
	budgetCmd.Flags().Uint32Var(&budgetOpts.durationUs, "duration-us", 0, "frame duration for a single boost lookup")
	rootCmd.AddCommand(budgetCmd)
}
