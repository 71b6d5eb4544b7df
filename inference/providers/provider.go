// Package providers - ONNX Runtime execution provider selection.
package providers

import (
	"fmt"
	"runtime"
	"strings"

	ort "github.com/yalue/onnxruntime_go"
)

// ProviderBackend represents different ONNX Runtime execution providers.
type ProviderBackend string

const (
	// CPUProviderBackend runs on the default CPU provider.
	CPUProviderBackend ProviderBackend = "cpu"
	// CUDAProviderBackend uses NVIDIA CUDA for inference optimization.
	CUDAProviderBackend ProviderBackend = "cuda"
	// CoreMLProviderBackend uses Apple CoreML for macOS/iOS acceleration.
	CoreMLProviderBackend ProviderBackend = "coreml"
	// OpenVINOProviderBackend uses Intel OpenVINO for inference optimization.
	OpenVINOProviderBackend ProviderBackend = "openvino"
)

// Config selects the execution provider and session tuning for every model session.
type Config struct {
	// Backend specifies the backend to use.
	Backend ProviderBackend `json:"backend" yaml:"backend"`
	// SharedLibraryPath overrides the platform default onnxruntime library location.
	SharedLibraryPath string `json:"shared_library_path" yaml:"shared_library_path"`
	// GraphOptimization is one of "disable", "basic", "extended" or "all".
	GraphOptimization string `json:"graph_optimization" yaml:"graph_optimization"`
	// IntraOpThreads sets threads for parallelizing ops. Zero lets the runtime decide.
	IntraOpThreads int `json:"intra_op_threads" yaml:"intra_op_threads"`
	// InterOpThreads sets threads for parallelizing independent ops.
	InterOpThreads int `json:"inter_op_threads" yaml:"inter_op_threads"`

	CUDA     *CUDAOptions     `json:"cuda,omitempty"     yaml:"cuda,omitempty"`
	CoreML   *CoreMLOptions   `json:"coreml,omitempty"   yaml:"coreml,omitempty"`
	OpenVINO *OpenVINOOptions `json:"openvino,omitempty" yaml:"openvino,omitempty"`
}

// DefaultConfig returns a CPU configuration with extended graph optimizations.
//
// Returns:
//   - Config: The default provider configuration.
func DefaultConfig() Config {
	return Config{
		Backend:           CPUProviderBackend,
		GraphOptimization: "extended",
	}
}

// Validate checks that the backend is known and its options are present.
//
// Returns:
//   - error: A description of the first invalid field.
func (c Config) Validate() error {
	switch c.Backend {
	case CPUProviderBackend, "":
	case CUDAProviderBackend, CoreMLProviderBackend, OpenVINOProviderBackend:
	default:
		return fmt.Errorf("no matching provider backend registered: %s", c.Backend)
	}
	if _, err := c.optimizationLevel(); err != nil {
		return err
	}
	if c.IntraOpThreads < 0 || c.InterOpThreads < 0 {
		return fmt.Errorf("thread counts must not be negative")
	}
	return nil
}

func (c Config) optimizationLevel() (ort.GraphOptimizationLevel, error) {
	switch strings.ToLower(c.GraphOptimization) {
	case "", "extended":
		return ort.GraphOptimizationLevelEnableExtended, nil
	case "disable":
		return ort.GraphOptimizationLevelDisableAll, nil
	case "basic":
		return ort.GraphOptimizationLevelEnableBasic, nil
	case "all":
		return ort.GraphOptimizationLevelEnableAll, nil
	default:
		return 0, fmt.Errorf("unknown graph optimization level %q", c.GraphOptimization)
	}
}

// LibraryPath returns the onnxruntime shared library to load.
//
// Returns:
//   - string: The configured override, or the platform default.
func (c Config) LibraryPath() string {
	if c.SharedLibraryPath != "" {
		return c.SharedLibraryPath
	}
	return DefaultSharedLibPath()
}

// DefaultSharedLibPath returns the path to the shared library for the current platform.
//
// Returns:
//   - string: The path to the shared library.
func DefaultSharedLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "./third_party/onnxruntime.dll"
	case "darwin":
		return "./third_party/libonnxruntime.dylib"
	default:
		if runtime.GOARCH == "arm64" {
			return "./third_party/onnxruntime_arm64.so"
		}
		return "./third_party/onnxruntime.so"
	}
}
