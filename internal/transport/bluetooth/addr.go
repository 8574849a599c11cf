package bluetooth

import "fmt"

// formatMAC renders a kernel bdaddr, which is stored little-endian, in the
// usual "AA:BB:CC:DD:EE:FF" order.
func formatMAC(addr [6]byte) string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X",
		addr[5], addr[4], addr[3], addr[2], addr[1], addr[0])
}

// validChannel reports whether ch is a usable RFCOMM channel.
func validChannel(ch int) bool {
	return ch >= 1 && ch <= 30
}
