package status

import (
	"dw3000-go/pkg/chip"
)

// Counters accumulate classified receive errors. Classify only ever
// increments; owners reset or sample the fields on their own schedule.
type Counters struct {
	NoFrameGood     uint32 // frame-check-good absent from an error status
	ReedSolomon     uint32
	PHYHeader       uint32
	PreambleTimeout uint32
	FilterReject    uint32
	BadCRC          uint32 // frame received without frame-check-good
	RxTimeout       uint32
	SFDTimeout      uint32

	// Sub-reasons decoded from the STS quality word after a composite
	// STS error.
	STSPeakGrowth    uint32
	STSADCCount      uint32
	STSSFDCount      uint32
	STSLateFirstPath uint32
	STSLateCoarse    uint32
	STSCoarseEmpty   uint32
	STSHighNoise     uint32
	STSNonTriangle   uint32
	STSLogRegFailed  uint32
}

// Each calls fn once per counter with its wire name. The names double as
// metric label values and diagnostic stream keys, so they never change.
func (c Counters) Each(fn func(name string, value uint32)) {
	fn("no_frame_good", c.NoFrameGood)
	fn("reed_solomon", c.ReedSolomon)
	fn("phy_header", c.PHYHeader)
	fn("preamble_timeout", c.PreambleTimeout)
	fn("filter_reject", c.FilterReject)
	fn("bad_crc", c.BadCRC)
	fn("rx_timeout", c.RxTimeout)
	fn("sfd_timeout", c.SFDTimeout)
	fn("sts_peak_growth", c.STSPeakGrowth)
	fn("sts_adc_count", c.STSADCCount)
	fn("sts_sfd_count", c.STSSFDCount)
	fn("sts_late_first_path", c.STSLateFirstPath)
	fn("sts_late_coarse", c.STSLateCoarse)
	fn("sts_coarse_empty", c.STSCoarseEmpty)
	fn("sts_high_noise", c.STSHighNoise)
	fn("sts_non_triangle", c.STSNonTriangle)
	fn("sts_log_reg_failed", c.STSLogRegFailed)
}

// STSReader reads the STS quality word for composite error decoding.
type STSReader interface {
	ReadStsStatus() (uint16, error)
}

// Classify folds one low status word into c. Each recognized error bit
// increments its counter; a composite STS error triggers a single
// quality-word read whose set sub-reason bits increment their own counters.
// sts may be nil when statusLo carries no STS error.
func Classify(statusLo uint32, sts STSReader, c *Counters) error {
	if statusLo&chip.SYS_STATUS_RXFCG == 0 {
		c.NoFrameGood++
	}
	if statusLo&chip.SYS_STATUS_RXRFSL != 0 {
		c.ReedSolomon++
	}
	if statusLo&chip.SYS_STATUS_RXPHE != 0 {
		c.PHYHeader++
	}
	if statusLo&chip.SYS_STATUS_RXPTO != 0 {
		c.PreambleTimeout++
	}
	if statusLo&chip.SYS_STATUS_ARFE != 0 {
		c.FilterReject++
	}
	if statusLo&chip.SYS_STATUS_RXFR != 0 && statusLo&chip.SYS_STATUS_RXFCG == 0 {
		c.BadCRC++
	}
	if statusLo&chip.SYS_STATUS_RXFTO != 0 {
		c.RxTimeout++
	}
	if statusLo&chip.SYS_STATUS_RXSTO != 0 {
		c.SFDTimeout++
	}

	if statusLo&chip.SYS_STATUS_CPERR == 0 {
		return nil
	}
	quality, err := sts.ReadStsStatus()
	if err != nil {
		return err
	}
	if quality&chip.STS_STATUS_PEAK_GROWTH != 0 {
		c.STSPeakGrowth++
	}
	if quality&chip.STS_STATUS_ADC_COUNT != 0 {
		c.STSADCCount++
	}
	if quality&chip.STS_STATUS_SFD_COUNT != 0 {
		c.STSSFDCount++
	}
	if quality&chip.STS_STATUS_LATE_FIRST_PATH != 0 {
		c.STSLateFirstPath++
	}
	if quality&chip.STS_STATUS_LATE_COARSE != 0 {
		c.STSLateCoarse++
	}
	if quality&chip.STS_STATUS_COARSE_EMPTY != 0 {
		c.STSCoarseEmpty++
	}
	if quality&chip.STS_STATUS_HIGH_NOISE != 0 {
		c.STSHighNoise++
	}
	if quality&chip.STS_STATUS_NON_TRIANGLE != 0 {
		c.STSNonTriangle++
	}
	if quality&chip.STS_STATUS_LOG_REG_FAILED != 0 {
		c.STSLogRegFailed++
	}
	return nil
}
