package camera

import (
	"errors"
	"testing"

	"vision2lang/imaging"
)

type fakeDevice struct {
	img     *imaging.Image
	readErr error
	closed  bool
}

func (d *fakeDevice) ReadFrame() (*imaging.Image, error) {
	if d.readErr != nil {
		return nil, d.readErr
	}
	return d.img, nil
}

func (d *fakeDevice) Close() error {
	d.closed = true
	return nil
}

func TestCaptureFrame(t *testing.T) {
	dev := &fakeDevice{img: &imaging.Image{Width: 2, Height: 2, Pix: make([]uint8, 12)}}
	s := &Source{open: func(int) (frameReader, error) { return dev, nil }}

	img, err := s.CaptureFrame()
	if err != nil {
		t.Fatalf("Unexpected error %s", err)
	}
	if img != dev.img {
		t.Error("Expected the device frame back")
	}
	if !dev.closed {
		t.Error("Device was not released after a successful read")
	}
}

func TestCaptureFrameReadFailure(t *testing.T) {
	dev := &fakeDevice{readErr: errors.New("sensor fault")}
	s := &Source{open: func(int) (frameReader, error) { return dev, nil }}

	_, err := s.CaptureFrame()
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("Expected ErrDeviceUnavailable, got %v", err)
	}
	if !dev.closed {
		t.Error("Device was not released after a failed read")
	}
}

func TestCaptureFrameOpenFailure(t *testing.T) {
	s := &Source{open: func(int) (frameReader, error) { return nil, errors.New("no such device") }}

	_, err := s.CaptureFrame()
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("Expected ErrDeviceUnavailable, got %v", err)
	}
}
