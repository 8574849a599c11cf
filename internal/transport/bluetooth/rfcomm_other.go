//go:build !linux

package bluetooth

import "errors"

func listenRFCOMM(channel uint8) (listener, error) {
	return nil, errors.New("RFCOMM sockets are only supported on linux")
}
