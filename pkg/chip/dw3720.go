package chip

// dw3720 implements Ops for the D0 silicon (DW3720 PDOA). It shares the C0
// register programming except where the D0 map diverges.
type dw3720 struct {
	dw3000
}

// ReadStsStatus reads the relocated D0 STS status word.
func (d *dw3720) ReadStsStatus() (uint16, error) {
	return d.conn.Read16(STS_CFG, STS_STS_ALT)
}
