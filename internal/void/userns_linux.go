//go:build linux

package void

import (
	"fmt"
	"os"

	"voidctl/internal/verror"
)

// voidUserNamespace remaps the calling uid/gid to 0 inside the fresh user
// namespace clone3 already created, regranting the full capability set
// needed by the mount-namespace operations that follow. This must run
// before any other voiding step.
func (b *Builder) voidUserNamespace(uid, gid int) error {
	if err := writeIDMapFile("/proc/self/setgroups", "deny\n"); err != nil {
		return err
	}
	if err := writeIDMapFile("/proc/self/uid_map", fmt.Sprintf("0 %d 1\n", uid)); err != nil {
		return err
	}
	if err := writeIDMapFile("/proc/self/gid_map", fmt.Sprintf("0 %d 1\n", gid)); err != nil {
		return err
	}
	return nil
}

func writeIDMapFile(path, contents string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return verror.Syscall("open("+path+")", err)
	}
	defer f.Close()

	if _, err := f.WriteString(contents); err != nil {
		return verror.Syscall("write("+path+")", err)
	}
	return nil
}
