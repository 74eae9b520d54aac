// Package camera acquires single still frames from a locally attached
// camera. The device is opened, read once and released on every exit path.
package camera

import (
	"errors"
	"fmt"

	"vision2lang/imaging"
)

// ErrDeviceUnavailable reports that the camera could not be opened or read.
var ErrDeviceUnavailable = errors.New("camera device unavailable")

// frameReader is one open camera device. Close must be safe to call after
// a failed read.
type frameReader interface {
	ReadFrame() (*imaging.Image, error)
	Close() error
}

type Source struct {
	deviceID int

	// open is swapped out in tests
	open func(id int) (frameReader, error)
}

// New returns a source reading from the camera with the given device id,
// usually 0 for the default webcam.
func New(deviceID int) *Source {
	return &Source{deviceID: deviceID, open: openDevice}
}

// CaptureFrame opens the device, reads exactly one frame in canonical RGB
// order and releases the device. Every failure wraps ErrDeviceUnavailable.
func (s *Source) CaptureFrame() (*imaging.Image, error) {
	dev, err := s.open(s.deviceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDeviceUnavailable, err)
	}
	defer dev.Close()

	img, err := dev.ReadFrame()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDeviceUnavailable, err)
	}

	return img, nil
}
