// Package chip is the register-access layer for the DW3xxx family: the
// register file map, fast command codes and status bits the timing core
// needs, and the Ops dispatch interface with one implementation per chip
// family. Register bit semantics beyond these interface constants belong to
// the chip documentation, not this driver.
package chip

import "dw3000-go/pkg/transport"

// Register files.
const (
	GEN_CFG_AES_0 transport.RegFile = 0x00
	GEN_CFG_AES_1 transport.RegFile = 0x01
	STS_CFG       transport.RegFile = 0x02
	RX_TUNE       transport.RegFile = 0x03
	EXT_SYNC      transport.RegFile = 0x04
	GPIO_CTRL     transport.RegFile = 0x05
	DRX_CONF      transport.RegFile = 0x06
	RF_CONF       transport.RegFile = 0x07
	TX_CAL        transport.RegFile = 0x08
	FS_CTRL       transport.RegFile = 0x09
	AON           transport.RegFile = 0x0A
	OTP_IF        transport.RegFile = 0x0B
	CIA_0         transport.RegFile = 0x0C
	CIA_1         transport.RegFile = 0x0D
	DIG_DIAG      transport.RegFile = 0x0E
	PMSC          transport.RegFile = 0x0F
	RX_BUFFER_0   transport.RegFile = 0x12
	RX_BUFFER_1   transport.RegFile = 0x13
	TX_BUFFER     transport.RegFile = 0x14
	ACC_MEM       transport.RegFile = 0x15
	SCRATCH_RAM   transport.RegFile = 0x16
)

// GEN_CFG_AES_0 sub-addresses.
const (
	DEV_ID        uint16 = 0x00
	EUI_64        uint16 = 0x04
	PANADR        uint16 = 0x0C
	SYS_CFG       uint16 = 0x10
	FF_CFG        uint16 = 0x14
	SPI_RD_CRC    uint16 = 0x18
	SYS_TIME      uint16 = 0x1C
	TX_FCTRL      uint16 = 0x24
	DX_TIME       uint16 = 0x2C
	DREF_TIME     uint16 = 0x30
	RX_FWTO       uint16 = 0x34
	SYS_CTRL      uint16 = 0x38
	SYS_ENABLE    uint16 = 0x3C
	SYS_STATUS    uint16 = 0x44
	SYS_STATUS_HI uint16 = 0x48
	RX_FINFO      uint16 = 0x4C
	RX_TIME       uint16 = 0x64
	TX_TIME       uint16 = 0x74
)

// GEN_CFG_AES_1 sub-addresses.
const (
	ACK_RESP  uint16 = 0x08
	TX_POWER  uint16 = 0x0C
	CHAN_CTRL uint16 = 0x14
)

// STS_CFG sub-addresses.
const (
	STS_CFG0 uint16 = 0x00
	STS_CTRL uint16 = 0x04
	STS_STS  uint16 = 0x08
	STS_KEY  uint16 = 0x0C
	STS_IV   uint16 = 0x1C
	// STS_STS_ALT is the D0-family (DW3720) location of the STS status
	// word; the diagnostic block moved on that silicon.
	STS_STS_ALT uint16 = 0x28
)

// GPIO_CTRL sub-addresses.
const (
	GPIO_MODE    uint16 = 0x00
	GPIO_PULL_EN uint16 = 0x04
	GPIO_DIR     uint16 = 0x08
	GPIO_OUT     uint16 = 0x0C
	GPIO_RAW     uint16 = 0x10
)

// DRX_CONF sub-addresses.
const (
	DTUNE0     uint16 = 0x00
	RX_SFD_TOC uint16 = 0x02
	PRE_TOC    uint16 = 0x04
)

// PMSC sub-addresses.
const (
	SOFT_RST uint16 = 0x00
	CLK_CTRL uint16 = 0x04
	SEQ_CTRL uint16 = 0x08
)

// SOFT_RST_ALL resets every clock domain block at once.
const SOFT_RST_ALL uint8 = 0x0F

// Device identifiers, read from DEV_ID at the slow probe rate.
const (
	DEV_ID_DW3000      uint32 = 0xDECA0302
	DEV_ID_DW3000_PDOA uint32 = 0xDECA0312
	DEV_ID_DW3720_PDOA uint32 = 0xDECA0314
)

// Fast command codes, strobed through the one-byte header form.
const (
	CMD_TXRXOFF     uint8 = 0x00
	CMD_TX          uint8 = 0x01
	CMD_RX          uint8 = 0x02
	CMD_DTX         uint8 = 0x03
	CMD_DRX         uint8 = 0x04
	CMD_DTX_TS      uint8 = 0x05
	CMD_DRX_TS      uint8 = 0x06
	CMD_DTX_RS      uint8 = 0x07
	CMD_DRX_RS      uint8 = 0x08
	CMD_DTX_REF     uint8 = 0x09
	CMD_DRX_REF     uint8 = 0x0A
	CMD_CCA_TX      uint8 = 0x0B
	CMD_TX_W4R      uint8 = 0x0C
	CMD_DTX_W4R     uint8 = 0x0D
	CMD_DTX_TS_W4R  uint8 = 0x0E
	CMD_DTX_RS_W4R  uint8 = 0x0F
	CMD_DTX_REF_W4R uint8 = 0x10
	CMD_CCA_TX_W4R  uint8 = 0x11
	CMD_CLR_IRQS    uint8 = 0x12
	CMD_DB_TOGGLE   uint8 = 0x13
)

// SYS_STATUS low word bits. Writing a 1 clears the event.
const (
	SYS_STATUS_IRQS     uint32 = 1 << 0  // interrupt request
	SYS_STATUS_CPLOCK   uint32 = 1 << 1  // clock PLL locked
	SYS_STATUS_SPICRCE  uint32 = 1 << 2  // SPI write CRC error
	SYS_STATUS_AAT      uint32 = 1 << 3  // automatic ack trigger
	SYS_STATUS_TXFRB    uint32 = 1 << 4  // TX frame begun
	SYS_STATUS_TXPRS    uint32 = 1 << 5  // TX preamble sent
	SYS_STATUS_TXPHS    uint32 = 1 << 6  // TX PHY header sent
	SYS_STATUS_TXFRS    uint32 = 1 << 7  // TX frame sent
	SYS_STATUS_RXPRD    uint32 = 1 << 8  // RX preamble detected
	SYS_STATUS_RXSFDD   uint32 = 1 << 9  // RX SFD detected
	SYS_STATUS_CIADONE  uint32 = 1 << 10 // CIA processing done
	SYS_STATUS_RXPHD    uint32 = 1 << 11 // RX PHY header detected
	SYS_STATUS_RXPHE    uint32 = 1 << 12 // RX PHY header error
	SYS_STATUS_RXFR     uint32 = 1 << 13 // RX frame ready
	SYS_STATUS_RXFCG    uint32 = 1 << 14 // RX frame check good
	SYS_STATUS_RXFCE    uint32 = 1 << 15 // RX frame check error
	SYS_STATUS_RXRFSL   uint32 = 1 << 16 // RX Reed-Solomon sync loss
	SYS_STATUS_RXFTO    uint32 = 1 << 17 // RX frame wait timeout
	SYS_STATUS_CIAERR   uint32 = 1 << 18 // CIA processing error
	SYS_STATUS_VWARN    uint32 = 1 << 19 // voltage warning
	SYS_STATUS_RXOVRR   uint32 = 1 << 20 // RX buffer overrun
	SYS_STATUS_RXPTO    uint32 = 1 << 21 // RX preamble detect timeout
	SYS_STATUS_SPIRDY   uint32 = 1 << 23 // SPI interface ready
	SYS_STATUS_RCINIT   uint32 = 1 << 24 // RC oscillator startup done
	SYS_STATUS_PLL_HILO uint32 = 1 << 25 // PLL losing lock
	SYS_STATUS_RXSTO    uint32 = 1 << 26 // RX SFD timeout
	SYS_STATUS_HPDWARN  uint32 = 1 << 27 // half period delay warning
	SYS_STATUS_CPERR    uint32 = 1 << 28 // STS quality error (composite)
	SYS_STATUS_ARFE     uint32 = 1 << 29 // auto frame filter rejection
)

// SYS_STATUS high word bits.
const (
	SYS_STATUS_HI_RXPREJ   uint32 = 1 << 0 // RX preamble rejection
	SYS_STATUS_HI_AES_DONE uint32 = 1 << 1
	SYS_STATUS_HI_AES_ERR  uint32 = 1 << 2
	SYS_STATUS_HI_CMD_ERR  uint32 = 1 << 3
	SYS_STATUS_HI_SPI_OVF  uint32 = 1 << 4
	SYS_STATUS_HI_SPI_UNF  uint32 = 1 << 5
	SYS_STATUS_HI_SPIERR   uint32 = 1 << 6
	SYS_STATUS_HI_CCA_FAIL uint32 = 1 << 7
)

// STS status word bits, read after a composite CPERR to name the failed
// quality check.
const (
	STS_STATUS_PEAK_GROWTH     uint16 = 1 << 0
	STS_STATUS_ADC_COUNT       uint16 = 1 << 1
	STS_STATUS_SFD_COUNT       uint16 = 1 << 2
	STS_STATUS_LATE_FIRST_PATH uint16 = 1 << 3
	STS_STATUS_LATE_COARSE     uint16 = 1 << 4
	STS_STATUS_COARSE_EMPTY    uint16 = 1 << 5
	STS_STATUS_HIGH_NOISE      uint16 = 1 << 6
	STS_STATUS_NON_TRIANGLE    uint16 = 1 << 7
	STS_STATUS_LOG_REG_FAILED  uint16 = 1 << 8
)

// TX_FCTRL fields.
const (
	TX_FCTRL_TXFLEN_MASK uint32 = 0x3FF    // frame length including FCS
	TX_FCTRL_TR          uint32 = 1 << 11  // ranging frame bit
	TX_FCTRL_TXB_OFFSET  uint32 = 0x3FF << 16
)

// RX_FINFO fields.
const (
	RX_FINFO_RXFLEN_MASK uint32 = 0x3FF // frame length including FCS
	RX_FINFO_RNG         uint32 = 1 << 15
	RX_FINFO_RXPACC_SHIFT       = 20 // accumulated preamble symbols
)

// ACK_RESP fields.
const (
	ACK_RESP_W4R_TIM_MASK uint32 = 0xFFFFF // wait-for-response delay, UUS
	ACK_RESP_ACK_TIM_SHIFT       = 24      // auto-ack turnaround, preamble symbols
)

// FCS_LEN is the CRC the chip appends to every transmitted frame and
// includes in reported frame lengths.
const FCS_LEN = 2
