package blip

import (
	"log"
	"os"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Device is the compute device inference runs on.
type Device int

const (
	DeviceCPU Device = iota
	DeviceCUDA
	DeviceCoreML
)

func (d Device) String() string {
	switch d {
	case DeviceCUDA:
		return "cuda"
	case DeviceCoreML:
		return "coreml"
	default:
		return "cpu"
	}
}

var (
	envOnce sync.Once
	envErr  error

	deviceOnce sync.Once
	device     Device
)

// initEnvironment brings up the ONNX Runtime environment once for the
// process. It is never torn down, model handles share it for the process
// lifetime.
func initEnvironment() error {
	envOnce.Do(func() {
		if p := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY"); p != "" {
			ort.SetSharedLibraryPath(p)
		}
		envErr = ort.InitializeEnvironment()
	})
	return envErr
}

// resolveDevice picks the fastest available device in the order
// CUDA, CoreML, CPU. The choice is made once and reused by every model
// handle in the process.
func resolveDevice() Device {
	deviceOnce.Do(func() {
		device = probeDevice()
		log.Printf("blip: using device %s", device)
	})
	return device
}

func probeDevice() Device {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return DeviceCPU
	}
	defer opts.Destroy()

	if cudaOpts, err := ort.NewCUDAProviderOptions(); err == nil {
		defer cudaOpts.Destroy()
		if err := opts.AppendExecutionProviderCUDA(cudaOpts); err == nil {
			return DeviceCUDA
		}
	}

	if runtime.GOOS == "darwin" {
		if err := opts.AppendExecutionProviderCoreML(0); err == nil {
			return DeviceCoreML
		}
	}

	return DeviceCPU
}

// sessionOptions returns session options configured for the resolved
// device. The caller owns the returned options.
func sessionOptions() (*ort.SessionOptions, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, err
	}

	switch resolveDevice() {
	case DeviceCUDA:
		cudaOpts, err := ort.NewCUDAProviderOptions()
		if err != nil {
			break
		}
		defer cudaOpts.Destroy()
		opts.AppendExecutionProviderCUDA(cudaOpts)
	case DeviceCoreML:
		opts.AppendExecutionProviderCoreML(0)
	}

	return opts, nil
}
