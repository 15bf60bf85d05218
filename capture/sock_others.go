//go:build !linux
// +build !linux

package capture

import (
	"errors"
)

// NewSocket is only available on linux
func NewSocket(_ SocketOptions) (Socket, error) {
	return nil, errors.New("raw capture socket is only available on linux")
}
