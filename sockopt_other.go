//go:build !unix

package rlnc

import "syscall"

func controlSocket(bool) func(network, address string, c syscall.RawConn) error {
	return nil
}
