package chip

import (
	"dw3000-go/pkg/dwtime"
)

// RxFrameInfo is the decoded RX_FINFO word for a received frame.
type RxFrameInfo struct {
	// PayloadLen is the frame length with the chip-appended FCS removed.
	PayloadLen int

	// Ranging reports the ranging bit of the received PHY header.
	Ranging bool

	// PreambleCount is the number of accumulated preamble symbols, used
	// for first-path diagnostics.
	PreambleCount uint16
}

// Ops is the named register operation dispatch for one chip family. The
// timing core calls these instead of raw transport transactions so family
// variants can substitute their own register encodings while the
// timing/coexistence logic stays shared. An Ops is selected once at probe
// time and held for the life of the device.
//
// All calls are blocking and must be externally serialized: one register
// operation in flight per device.
type Ops interface {
	// ReadDevID reads the device identifier register.
	ReadDevID() (uint32, error)

	// SoftReset resets every clock domain block. The caller allows the
	// chip its wake-up time before the next transaction.
	SoftReset() error

	// ReadSysTime samples the free-running device time counter.
	ReadSysTime() (dwtime.DTU, error)

	// WriteTxData writes the frame payload to the transmit buffer at
	// offset 0.
	WriteTxData(data []byte) error

	// SetTxFrameCtrl programs the payload length (the FCS is added here)
	// and the ranging bit of the next transmission.
	SetTxFrameCtrl(payloadLen int, ranging bool) error

	// SetDelayedTRXTime programs the delayed TX/RX start time.
	SetDelayedTRXTime(t dwtime.DTU) error

	// SetRxAfterTxDelay programs the receiver turn-on delay, in UUS,
	// applied after a wait-for-response transmission.
	SetRxAfterTxDelay(delayUUS uint32) error

	// SetRxTimeout programs the frame-wait timeout in UUS; 0 disables it.
	SetRxTimeout(timeoutUUS uint32) error

	// SetPreambleTimeout programs the preamble-detect timeout in PAC
	// units; 0 disables it.
	SetPreambleTimeout(pac uint16) error

	// SetAckRespDelay programs the auto-ack turnaround time in preamble
	// symbols.
	SetAckRespDelay(symbols uint8) error

	// StartTx triggers a transmission. With delayed set the chip is
	// polled once for the half-period warning; a rejected start forces
	// the transceiver off and returns a HW_REJECTED error.
	StartTx(delayed, waitForResp bool) error

	// RxEnable turns the receiver on. Delayed enables use go-idle-on-late
	// semantics: a late programmed time forces the transceiver off and
	// returns a HW_REJECTED error, never a silent immediate enable.
	RxEnable(delayed bool) error

	// TRXOff forces the transceiver to idle immediately.
	TRXOff() error

	// ReadStatusLo reads the low status word.
	ReadStatusLo() (uint32, error)

	// ReadStatusHi reads the high status word.
	ReadStatusHi() (uint32, error)

	// ClearStatus clears the given low status word events (write 1 to
	// clear).
	ClearStatus(mask uint32) error

	// ReadStsStatus reads the STS quality status word after a composite
	// STS error.
	ReadStsStatus() (uint16, error)

	// ReadRxTimestamp reads the full-resolution RX marker timestamp.
	ReadRxTimestamp() (dwtime.Timestamp40, error)

	// ReadTxTimestamp reads the full-resolution TX marker timestamp.
	ReadTxTimestamp() (dwtime.Timestamp40, error)

	// ReadRxFrameInfo decodes the frame info word of the last reception.
	ReadRxFrameInfo() (RxFrameInfo, error)

	// ReadRxData reads n payload bytes from the receive buffer.
	ReadRxData(n int) ([]byte, error)

	// SetGPIOValue drives the masked GPIO output bits to value.
	SetGPIOValue(mask, value uint16) error

	// ReadGPIOValue samples the raw GPIO pin states.
	ReadGPIOValue() (uint16, error)

	// SetGPIODir configures the masked pins as input (true) or output.
	SetGPIODir(mask uint16, input bool) error

	// SetGPIOMode selects the 3-bit pin function; function 0 is plain
	// GPIO.
	SetGPIOMode(pin uint8, function uint8) error
}
