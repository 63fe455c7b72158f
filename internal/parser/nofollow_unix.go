//go:build !windows

package parser

import "syscall"

// noFollow makes opening a symlinked transcript fail with ELOOP,
// so a link swapped in after discovery is never read.
const noFollow = syscall.O_NOFOLLOW
