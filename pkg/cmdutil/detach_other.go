//go:build !unix

package cmdutil

import "syscall"

// Sessions are a Unix concept; elsewhere the child simply is not waited on.
func detachedAttr() *syscall.SysProcAttr {
	return nil
}
