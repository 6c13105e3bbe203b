// Package wire implements the bit-exact frame layer of the protocol:
// the 29-bit extended identifier layout, the tail byte, and the
// transfer CRC. Everything in this package is pure and stateless.
package wire
