//go:build !unix

package client

import "syscall"

func detachedAttr() *syscall.SysProcAttr { return nil }
