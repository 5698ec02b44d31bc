//go:build windows

package fdset

import (
	"time"

	"golang.org/x/sys/windows"
)

// Forever is the timeout value meaning "block until a descriptor is ready,
// with no deadline".
const Forever time.Duration = -1

// Wait is the Windows backend for the scheduler's readiness multiplexer. It
// uses WSAPoll, which gives the same "pass the whole interest list every
// call" shape unix.Poll does in wait_unix.go, so the scheduler's dispatch
// loop does not need a Windows-specific code path: this file is the one
// place (per spec.md §4.2/§9) allowed to branch on platform.
func Wait(rs, ws *FDSet, timeout time.Duration) (readyRS, readyWS *FDSet, err error) {
	union := make(map[int]Interest)
	if rs != nil {
		rs.ForEach(func(fd int, in Interest) { union[fd] |= Read })
	}
	if ws != nil {
		ws.ForEach(func(fd int, in Interest) { union[fd] |= Write })
	}

	pollfds := make([]windows.WSAPollFd, 0, len(union))
	for fd, in := range union {
		var events int16
		if in&Read != 0 {
			events |= windows.POLLRDNORM
		}
		if in&Write != 0 {
			events |= windows.POLLWRNORM
		}
		pollfds = append(pollfds, windows.WSAPollFd{Fd: windows.Handle(fd), Events: events})
	}

	timeoutMs := timeoutMillis(timeout)

	if _, err = windows.WSAPoll(pollfds, timeoutMs); err != nil {
		return nil, nil, err
	}

	readyRS, readyWS = New(), New()
	for _, pfd := range pollfds {
		if pfd.Revents == 0 {
			continue
		}
		fd := int(pfd.Fd)
		if pfd.Revents&(windows.POLLRDNORM|windows.POLLHUP|windows.POLLERR) != 0 {
			readyRS.AddSocket(fd, Read)
		}
		if pfd.Revents&(windows.POLLWRNORM|windows.POLLERR) != 0 {
			readyWS.AddSocket(fd, Write)
		}
	}
	return readyRS, readyWS, nil
}

func timeoutMillis(timeout time.Duration) int32 {
	if timeout == Forever || timeout < 0 {
		return -1
	}
	return int32(timeout.Milliseconds())
}
