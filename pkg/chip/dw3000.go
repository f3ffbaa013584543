package chip

import (
	"fmt"

	"github.com/rs/zerolog"

	"dw3000-go/pkg/dwtime"
	"dw3000-go/pkg/transport"
	"dw3000-go/pkg/uwberr"
)

// KnownDevID reports whether id names a chip family this driver handles.
func KnownDevID(id uint32) bool {
	switch id {
	case DEV_ID_DW3000, DEV_ID_DW3000_PDOA, DEV_ID_DW3720_PDOA:
		return true
	}
	return false
}

// DevIDName returns the part name for a device id, or a hex rendering
// when the id is not one this driver handles.
func DevIDName(id uint32) string {
	switch id {
	case DEV_ID_DW3000:
		return "DW3000"
	case DEV_ID_DW3000_PDOA:
		return "DW3000 PDOA"
	case DEV_ID_DW3720_PDOA:
		return "DW3720 PDOA"
	}
	return fmt.Sprintf("unknown (%#08x)", id)
}

// NewOps selects the family implementation for a probed device id.
func NewOps(devID uint32, conn *transport.Conn, log zerolog.Logger) (Ops, error) {
	switch devID {
	case DEV_ID_DW3000, DEV_ID_DW3000_PDOA:
		return &dw3000{conn: conn, log: log}, nil
	case DEV_ID_DW3720_PDOA:
		return &dw3720{dw3000{conn: conn, log: log}}, nil
	}
	return nil, uwberr.ProbeDevIDError(devID)
}

// dw3000 implements Ops for the C0 silicon (DW3000, DW3000 PDOA).
type dw3000 struct {
	conn *transport.Conn
	log  zerolog.Logger
}

func (d *dw3000) ReadDevID() (uint32, error) {
	return d.conn.Read32(GEN_CFG_AES_0, DEV_ID)
}

func (d *dw3000) SoftReset() error {
	return d.conn.Write8(PMSC, SOFT_RST, SOFT_RST_ALL)
}

func (d *dw3000) ReadSysTime() (dwtime.DTU, error) {
	v, err := d.conn.Read32(GEN_CFG_AES_0, SYS_TIME)
	return dwtime.DTU(v), err
}

func (d *dw3000) WriteTxData(data []byte) error {
	if len(data)+FCS_LEN > int(TX_FCTRL_TXFLEN_MASK) {
		return uwberr.FrameError("write_tx_data",
			fmt.Sprintf("payload %d bytes exceeds the transmit buffer", len(data)))
	}
	return d.conn.WriteBytes(TX_BUFFER, 0, data)
}

func (d *dw3000) SetTxFrameCtrl(payloadLen int, ranging bool) error {
	length := uint32(payloadLen+FCS_LEN) & TX_FCTRL_TXFLEN_MASK
	or := length
	if ranging {
		or |= TX_FCTRL_TR
	}
	and := ^(TX_FCTRL_TXFLEN_MASK | TX_FCTRL_TR | TX_FCTRL_TXB_OFFSET)
	return d.conn.MaskedWrite32(GEN_CFG_AES_0, TX_FCTRL, and, or)
}

func (d *dw3000) SetDelayedTRXTime(t dwtime.DTU) error {
	return d.conn.Write32(GEN_CFG_AES_0, DX_TIME, uint32(t))
}

func (d *dw3000) SetRxAfterTxDelay(delayUUS uint32) error {
	return d.conn.MaskedWrite32(GEN_CFG_AES_1, ACK_RESP,
		^ACK_RESP_W4R_TIM_MASK, delayUUS&ACK_RESP_W4R_TIM_MASK)
}

func (d *dw3000) SetRxTimeout(timeoutUUS uint32) error {
	return d.conn.Write32(GEN_CFG_AES_0, RX_FWTO, timeoutUUS)
}

func (d *dw3000) SetPreambleTimeout(pac uint16) error {
	return d.conn.Write16(DRX_CONF, PRE_TOC, pac)
}

func (d *dw3000) SetAckRespDelay(symbols uint8) error {
	return d.conn.MaskedWrite32(GEN_CFG_AES_1, ACK_RESP,
		^(uint32(0xFF) << ACK_RESP_ACK_TIM_SHIFT),
		uint32(symbols)<<ACK_RESP_ACK_TIM_SHIFT)
}

func (d *dw3000) StartTx(delayed, waitForResp bool) error {
	var cmd uint8
	switch {
	case delayed && waitForResp:
		cmd = CMD_DTX_W4R
	case delayed:
		cmd = CMD_DTX
	case waitForResp:
		cmd = CMD_TX_W4R
	default:
		cmd = CMD_TX
	}
	if err := d.conn.FastCmd(cmd); err != nil {
		return err
	}
	if !delayed {
		return nil
	}
	return d.checkDelayedStart("start_tx")
}

func (d *dw3000) RxEnable(delayed bool) error {
	cmd := CMD_RX
	if delayed {
		cmd = CMD_DRX
	}
	if err := d.conn.FastCmd(cmd); err != nil {
		return err
	}
	if !delayed {
		return nil
	}
	return d.checkDelayedStart("rx_enable")
}

// checkDelayedStart polls the half-period warning once after a delayed
// strobe. A set HPDWARN means the programmed time was too close or already
// passed; the transceiver is forced idle and the start reported rejected.
func (d *dw3000) checkDelayedStart(op string) error {
	lo, err := d.ReadStatusLo()
	if err != nil {
		return err
	}
	if lo&SYS_STATUS_HPDWARN == 0 {
		return nil
	}
	d.log.Debug().Uint32("status", lo).Str("op", op).Msg("delayed start rejected")
	if err := d.TRXOff(); err != nil {
		return err
	}
	return uwberr.HWRejectedError(op, "delayed start time too close or already passed")
}

func (d *dw3000) TRXOff() error {
	return d.conn.FastCmd(CMD_TXRXOFF)
}

func (d *dw3000) ReadStatusLo() (uint32, error) {
	return d.conn.Read32(GEN_CFG_AES_0, SYS_STATUS)
}

func (d *dw3000) ReadStatusHi() (uint32, error) {
	v, err := d.conn.Read16(GEN_CFG_AES_0, SYS_STATUS_HI)
	return uint32(v), err
}

func (d *dw3000) ClearStatus(mask uint32) error {
	return d.conn.Write32(GEN_CFG_AES_0, SYS_STATUS, mask)
}

func (d *dw3000) ReadStsStatus() (uint16, error) {
	return d.conn.Read16(STS_CFG, STS_STS)
}

func (d *dw3000) ReadRxTimestamp() (dwtime.Timestamp40, error) {
	b, err := d.conn.ReadBytes(GEN_CFG_AES_0, RX_TIME, dwtime.Timestamp40Bytes)
	if err != nil {
		return 0, err
	}
	return dwtime.UnpackTimestamp40(b), nil
}

func (d *dw3000) ReadTxTimestamp() (dwtime.Timestamp40, error) {
	b, err := d.conn.ReadBytes(GEN_CFG_AES_0, TX_TIME, dwtime.Timestamp40Bytes)
	if err != nil {
		return 0, err
	}
	return dwtime.UnpackTimestamp40(b), nil
}

func (d *dw3000) ReadRxFrameInfo() (RxFrameInfo, error) {
	v, err := d.conn.Read32(GEN_CFG_AES_0, RX_FINFO)
	if err != nil {
		return RxFrameInfo{}, err
	}
	length := int(v & RX_FINFO_RXFLEN_MASK)
	if length < FCS_LEN {
		return RxFrameInfo{}, uwberr.HWFaultError("read_rx_frame_info",
			fmt.Sprintf("reported frame length %d below FCS size", length))
	}
	return RxFrameInfo{
		PayloadLen:    length - FCS_LEN,
		Ranging:       v&RX_FINFO_RNG != 0,
		PreambleCount: uint16(v >> RX_FINFO_RXPACC_SHIFT),
	}, nil
}

func (d *dw3000) ReadRxData(n int) ([]byte, error) {
	return d.conn.ReadBytes(RX_BUFFER_0, 0, n)
}

func (d *dw3000) SetGPIOValue(mask, value uint16) error {
	return d.conn.MaskedWrite16(GPIO_CTRL, GPIO_OUT, ^mask, value&mask)
}

func (d *dw3000) ReadGPIOValue() (uint16, error) {
	return d.conn.Read16(GPIO_CTRL, GPIO_RAW)
}

func (d *dw3000) SetGPIODir(mask uint16, input bool) error {
	if input {
		return d.conn.MaskedWrite16(GPIO_CTRL, GPIO_DIR, 0xFFFF, mask)
	}
	return d.conn.MaskedWrite16(GPIO_CTRL, GPIO_DIR, ^mask, 0)
}

func (d *dw3000) SetGPIOMode(pin uint8, function uint8) error {
	shift := uint(pin) * 3
	return d.conn.MaskedWrite32(GPIO_CTRL, GPIO_MODE,
		^(uint32(0x7) << shift), uint32(function&0x7)<<shift)
}
