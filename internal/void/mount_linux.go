//go:build linux

package void

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"voidctl/internal/verror"
)

// voidMountNamespace performs the pivot-root reconstruction of the void's
// filesystem: make / private, mount a fresh tmpfs as the new root, pivot
// into it, reconstruct the configured bind-mounts (plus a default
// /dev/null unless the caller mounted one of their own), optionally
// remount /proc, then detach the old root.
func (b *Builder) voidMountNamespace() error {
	if err := unix.Mount("", "/", "", unix.MS_PRIVATE|unix.MS_REC, ""); err != nil {
		return verror.Syscall("mount(MS_PRIVATE)", err)
	}

	tmpBase := os.Getenv("TMPDIR")
	if tmpBase == "" {
		tmpBase = "/"
	}
	newRoot, err := os.MkdirTemp(tmpBase, "void-")
	if err != nil {
		return verror.Syscall("mkdtemp", err)
	}

	if err := unix.Mount("tmpfs", newRoot, "tmpfs", 0, ""); err != nil {
		return verror.Syscall("mount(tmpfs)", err)
	}

	oldRootRel := "old_root"
	oldRootAbs := filepath.Join(newRoot, oldRootRel)
	if err := os.Mkdir(oldRootAbs, 0o700); err != nil {
		return verror.Syscall("mkdir(old_root)", err)
	}

	if err := unix.PivotRoot(newRoot, oldRootAbs); err != nil {
		return verror.Syscall("pivot_root", err)
	}

	if err := unix.Chdir("/"); err != nil {
		return verror.Syscall("chdir", err)
	}

	oldRoot := "/" + oldRootRel

	mounts := make(map[string]string, len(b.mounts)+1)
	for src, dst := range b.mounts {
		mounts[src] = dst
	}
	if _, ok := mounts["/dev/null"]; !ok && !b.userMountedDevNull {
		mounts["/dev/null"] = "/dev/null"
	}

	for src, dst := range mounts {
		if err := reconstructBindMount(oldRoot, src, dst); err != nil {
			return err
		}
	}

	if b.remountProc {
		if err := unix.Mount("proc", "/proc", "proc", 0, ""); err != nil {
			return verror.Syscall("mount(proc)", err)
		}
	}

	if err := unix.Mount("", oldRoot, "", unix.MS_REC|unix.MS_PRIVATE, ""); err != nil {
		return verror.Syscall("mount(old_root private)", err)
	}
	if err := unix.Unmount(oldRoot, unix.MNT_DETACH); err != nil {
		return verror.Syscall("umount2(old_root)", err)
	}
	if err := os.Remove(oldRoot); err != nil {
		return verror.Syscall("rmdir(old_root)", err)
	}

	return nil
}

// reconstructBindMount resolves src under oldRoot (following at most one
// level of symlink), creates dst as a directory or an empty file to match
// the source's type, and bind-mounts src onto dst.
func reconstructBindMount(oldRoot, src, dst string) error {
	resolvedSrc := filepath.Join(oldRoot, strings.TrimPrefix(src, "/"))

	info, err := os.Lstat(resolvedSrc)
	if err != nil {
		return verror.Syscall("lstat("+resolvedSrc+")", err)
	}

	if info.Mode()&os.ModeSymlink != 0 {
		link, err := os.Readlink(resolvedSrc)
		if err != nil {
			return verror.Syscall("readlink("+resolvedSrc+")", err)
		}
		resolvedSrc = filepath.Join(oldRoot, strings.TrimPrefix(link, "/"))
		info, err = os.Stat(resolvedSrc)
		if err != nil {
			return verror.Syscall("stat("+resolvedSrc+")", err)
		}
	}

	dstAbs := filepath.Join("/", strings.TrimPrefix(dst, "/"))

	if info.IsDir() {
		if err := os.MkdirAll(dstAbs, 0o755); err != nil {
			return verror.Syscall("mkdir("+dstAbs+")", err)
		}
	} else {
		if err := os.MkdirAll(filepath.Dir(dstAbs), 0o755); err != nil {
			return verror.Syscall("mkdir("+filepath.Dir(dstAbs)+")", err)
		}
		f, err := os.OpenFile(dstAbs, os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return verror.Syscall("create("+dstAbs+")", err)
		}
		f.Close()
	}

	if err := unix.Mount(resolvedSrc, dstAbs, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return verror.Syscall("mount(bind "+resolvedSrc+" -> "+dstAbs+")", err)
	}

	return nil
}
