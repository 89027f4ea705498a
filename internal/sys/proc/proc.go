// Package proc provides process lifecycle utilities: a /proc existence
// check and a one-shot wait for another process's termination.
package proc

import (
	"fmt"
	"os"
)

// Alive reports whether a process with the given pid currently exists.
func Alive(pid int) bool {
	_, err := os.Stat(fmt.Sprintf("/proc/%d", pid))
	return err == nil
}
