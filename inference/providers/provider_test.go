package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "default", cfg: DefaultConfig()},
		{name: "empty backend", cfg: Config{}},
		{name: "cuda", cfg: Config{Backend: CUDAProviderBackend, CUDA: &CUDAOptions{DeviceID: 1}}},
		{name: "unknown backend", cfg: Config{Backend: "tpu"}, wantErr: true},
		{name: "bad optimization", cfg: Config{GraphOptimization: "max"}, wantErr: true},
		{name: "negative threads", cfg: Config{IntraOpThreads: -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLibraryPathOverride(t *testing.T) {
	assert.Equal(t, "/opt/ort/libonnxruntime.so", Config{SharedLibraryPath: "/opt/ort/libonnxruntime.so"}.LibraryPath())
	assert.Equal(t, DefaultSharedLibPath(), DefaultConfig().LibraryPath())
}

func TestCoreMLFlags(t *testing.T) {
	assert.Equal(t, uint32(0), CoreMLOptions{}.Flags())
	assert.Equal(t, uint32(0x001|0x008), CoreMLOptions{CPUOnly: true, RequireStaticInputShapes: true}.Flags())
}

func TestProviderOptionMaps(t *testing.T) {
	cuda := CUDAOptions{DeviceID: 2, ArenaExtendStrategy: 1, CudnnConvAlgoSearch: 1, UseTF32: true}.Map()
	assert.Equal(t, "2", cuda["device_id"])
	assert.Equal(t, "kSameAsRequested", cuda["arena_extend_strategy"])
	assert.Equal(t, "HEURISTIC", cuda["cudnn_conv_algo_search"])
	assert.Equal(t, "1", cuda["use_tf32"])
	assert.NotContains(t, cuda, "gpu_mem_limit")

	ov := OpenVINOOptions{DeviceType: "GPU", NumOfThreads: 4}.Map()
	assert.Equal(t, map[string]string{"device_type": "GPU", "num_of_threads": "4"}, ov)
}
