//go:build !unix && !windows

package udpbus

import "syscall"

func controlBroadcast(network, address string, c syscall.RawConn) error {
	return nil
}
