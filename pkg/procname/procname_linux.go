//go:build linux

package procname

import (
	"syscall"
	"unsafe"
)

const prSetName = 15

func setProcessTitle(title string) {
	if len(title) > 15 {
		title = title[:15]
	}
	b := append([]byte(title), 0)
	syscall.Syscall(syscall.SYS_PRCTL, prSetName, uintptr(unsafe.Pointer(&b[0])), 0)
}
