//go:build !rkllm && !llama

package npu

// Stub engine compiled when no backend tag is set. It keeps default
// builds and CI CGO-free and refuses to run inference instead of
// mocking it.

type stubEngine struct{}

// NewEngine returns the backend selected by build tags.
func NewEngine() Engine { return stubEngine{} }

func (stubEngine) Load(path string, p Params) (Handle, error) {
	return nil, ErrUnavailable
}
