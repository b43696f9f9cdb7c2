//go:build linux

package void

import (
	"golang.org/x/sys/unix"

	"voidctl/internal/verror"
)

// voidUTS sets the void's UTS hostname and domain name, defaulting to
// "void" and "(none)" respectively when the caller didn't configure one.
func (b *Builder) voidUTS() error {
	hostname := b.hostname
	if hostname == "" {
		hostname = "void"
	}
	if err := unix.Sethostname([]byte(hostname)); err != nil {
		return verror.Syscall("sethostname", err)
	}

	domain := b.domainName
	if domain == "" {
		domain = "(none)"
	}
	if err := unix.Setdomainname([]byte(domain)); err != nil {
		return verror.Syscall("setdomainname", err)
	}

	return nil
}
