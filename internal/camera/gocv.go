package camera

import (
	"fmt"

	"gocv.io/x/gocv"

	"vision2lang/imaging"
)

type gocvDevice struct {
	cap *gocv.VideoCapture
}

func openDevice(id int) (frameReader, error) {
	cap, err := gocv.OpenVideoCapture(id)
	if err != nil {
		return nil, fmt.Errorf("opening device %d: %w", id, err)
	}
	if !cap.IsOpened() {
		cap.Close()
		return nil, fmt.Errorf("device %d did not open", id)
	}
	return &gocvDevice{cap: cap}, nil
}

func (d *gocvDevice) ReadFrame() (*imaging.Image, error) {
	mat := gocv.NewMat()
	defer mat.Close()

	if ok := d.cap.Read(&mat); !ok || mat.Empty() {
		return nil, fmt.Errorf("reading frame")
	}

	// Camera frames arrive in BGR order, convert to the canonical RGB
	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(mat, &rgb, gocv.ColorBGRToRGB)

	data, err := rgb.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("copying frame pixels: %w", err)
	}
	pix := make([]uint8, len(data))
	copy(pix, data)

	return &imaging.Image{Width: rgb.Cols(), Height: rgb.Rows(), Pix: pix}, nil
}

func (d *gocvDevice) Close() error {
	return d.cap.Close()
}
