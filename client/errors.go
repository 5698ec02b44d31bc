package client

import "fmt"

// FrameError reports a malformed frame on the wire: a declared size smaller
// than the header it must contain, or one exceeding the configured maximum.
// It is treated as a transport error (spec.md §7): the connection tears
// down and re-dials rather than attempting to resynchronize mid-stream.
type FrameError struct {
	Size int
	Max  int
}

func (e *FrameError) Error() string {
	if e.Max > 0 && e.Size > e.Max {
		return fmt.Sprintf("client: frame size %d exceeds maximum %d", e.Size, e.Max)
	}
	return fmt.Sprintf("client: invalid frame size %d", e.Size)
}
