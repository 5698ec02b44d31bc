// Package fdset provides the opaque FD set abstraction used by the scheduler:
// a union over OS socket handles and pipe/file handles, with the readiness
// overlap tests the dispatch loop needs. The concrete backing (poll(2) on
// Unix, WSAPoll on Windows) lives in the platform-specific wait_*.go files; this file holds the public surface that
// is identical across OSes, following the split the teacher package
// (joeycumines-go-utilpkg/eventloop: poller.go + poller_linux.go/poller_darwin.go)
// uses to keep platform branching out of calling code.
package fdset

import (
	"syscall"
)

// Interest is a bitmask of the readiness conditions a caller wants notified
// for a given descriptor.
type Interest uint8

const (
	// Read indicates interest in the descriptor becoming readable.
	Read Interest = 1 << iota
	// Write indicates interest in the descriptor becoming writable.
	Write
)

// FDSet is an opaque, unordered collection of descriptors and the readiness
// each is registered for. The zero value is not usable; construct with New.
//
// FDSet is not safe for concurrent use. The scheduler that owns one never
// shares it across goroutines, consistent with the single-threaded
// cooperative model described in the scheduler package.
type FDSet struct {
	fds map[int]Interest
}

// New returns an empty FDSet.
func New() *FDSet {
	return &FDSet{fds: make(map[int]Interest)}
}

// Destroy releases the set's resources. After Destroy the set must not be
// used again.
func (s *FDSet) Destroy() {
	s.fds = nil
}

// Zero removes every descriptor from the set, without releasing it.
func (s *FDSet) Zero() {
	for fd := range s.fds {
		delete(s.fds, fd)
	}
}

// CopyFrom replaces the receiver's contents with a copy of other. A nil
// other zeroes the receiver.
func (s *FDSet) CopyFrom(other *FDSet) {
	s.Zero()
	if other == nil {
		return
	}
	for fd, in := range other.fds {
		s.fds[fd] = in
	}
}

// Clone returns a deep copy of s.
func (s *FDSet) Clone() *FDSet {
	c := New()
	c.CopyFrom(s)
	return c
}

// AddSocket registers interest in a socket descriptor. GNUnet's original
// distinguishes "network" from "file/pipe" descriptors only because some
// platforms multiplex them through different primitives; on this
// implementation's backends both reduce to the same integer descriptor, so
// AddSocket and AddFileHandle are equivalent. Both are kept as distinct
// methods to preserve the call-site intent from spec.md §4.1's
// add_read_net/add_read_file family.
func (s *FDSet) AddSocket(fd int, interest Interest) {
	s.fds[fd] |= interest
}

// AddFileHandle registers interest in a pipe or file descriptor. See AddSocket.
func (s *FDSet) AddFileHandle(handle int, interest Interest) {
	s.fds[handle] |= interest
}

// Union adds every descriptor (and its interest bits) from other into s.
func (s *FDSet) Union(other *FDSet) {
	if other == nil {
		return
	}
	for fd, in := range other.fds {
		s.fds[fd] |= in
	}
}

// Overlaps reports whether any descriptor in ready is also present in s
// (the "set we want to be ready" per the original's set_overlaps).
func (s *FDSet) Overlaps(ready *FDSet) bool {
	if ready == nil {
		return false
	}
	if len(s.fds) > len(ready.fds) {
		s, ready = ready, s
	}
	for fd := range s.fds {
		if _, ok := ready.fds[fd]; ok {
			return true
		}
	}
	return false
}

// IsSet reports whether fd is present in the set (for either interest).
func (s *FDSet) IsSet(fd int) bool {
	_, ok := s.fds[fd]
	return ok
}

// Len returns the number of distinct descriptors in the set.
func (s *FDSet) Len() int {
	return len(s.fds)
}

// ForEach calls fn once per descriptor in the set. Iteration order is
// unspecified, matching the original's linked-list traversal order not being
// a documented contract.
func (s *FDSet) ForEach(fn func(fd int, interest Interest)) {
	for fd, in := range s.fds {
		fn(fd, in)
	}
}

// FD extracts the underlying OS descriptor from a net.Conn, os.File, or any
// other syscall.Conn/syscall.RawConn-compatible handle, for use with
// AddSocket/AddFileHandle. The returned descriptor is only valid while conn
// itself is kept alive by the caller.
func FD(conn syscall.Conn) (int, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, err
	}
	var fd int
	var ctrlErr error
	err = raw.Control(func(descriptor uintptr) {
		fd = int(descriptor)
	})
	if err != nil {
		return 0, err
	}
	if ctrlErr != nil {
		return 0, ctrlErr
	}
	return fd, nil
}
