package transport

// CRC-8 guard over transaction bytes, polynomial x^8+x^2+x+1 (0x07),
// initial remainder 0. The table form keeps the per-byte cost to one
// lookup on the write hot path.

var crc8Table [256]byte

func init() {
	for i := 0; i < 256; i++ {
		crc := byte(i)
		for b := 0; b < 8; b++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0x07
			} else {
				crc = crc << 1
			}
		}
		crc8Table[i] = crc
	}
}

// CRC8 folds data into the running remainder init. Chained calls cover a
// transaction in order: CRC8(body, CRC8(header, 0)).
func CRC8(data []byte, init byte) byte {
	crc := init
	for _, b := range data {
		crc = crc8Table[crc^b]
	}
	return crc
}
