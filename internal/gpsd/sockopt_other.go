//go:build !unix

package gpsd

import "syscall"

func reuseAddr(network, address string, c syscall.RawConn) error {
	return nil
}
