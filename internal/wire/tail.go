package wire

// Tail byte layout: the last byte of every frame payload.
const (
	tailStartOfTransfer byte = 0x80
	tailEndOfTransfer   byte = 0x40
	tailToggle          byte = 0x20
	tailTransferIDMask  byte = MaxTransferID

	// TailSize is the per-frame metadata overhead in bytes.
	TailSize = 1
)

func makeTail(start, end, toggle bool, transferID uint8) byte {
	b := transferID & tailTransferIDMask
	if start {
		b |= tailStartOfTransfer
	}
	if end {
		b |= tailEndOfTransfer
	}
	if toggle {
		b |= tailToggle
	}
	return b
}

func parseTail(b byte) (start, end, toggle bool, transferID uint8) {
	return b&tailStartOfTransfer != 0,
		b&tailEndOfTransfer != 0,
		b&tailToggle != 0,
		b & tailTransferIDMask
}
