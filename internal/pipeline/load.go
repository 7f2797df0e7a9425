package pipeline

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

//go:embed default.cue
var defaultCUE string

// LoadError reports a failure to load or decode a pipeline definition.
type LoadError struct {
	Code    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Load error codes.
const (
	ErrCodeNotFound    = "PIPELINE_DIR_NOT_FOUND"
	ErrCodeNoFiles     = "PIPELINE_NO_CUE_FILES"
	ErrCodeLoadFailed  = "PIPELINE_LOAD_FAILED"
	ErrCodeBuildFailed = "PIPELINE_BUILD_FAILED"
	ErrCodeDecodeFailed = "PIPELINE_DECODE_FAILED"
	ErrCodeMissing     = "PIPELINE_FIELD_MISSING"
)

// Default returns the embedded six-flow pipeline definition.
// Panics only if the embedded definition itself is broken, which is a
// build defect, not a runtime condition.
func Default() *Definition {
	ctx := cuecontext.New()
	value := ctx.CompileString(defaultCUE, cue.Filename("default.cue"))
	def, err := decode(value)
	if err != nil {
		panic(fmt.Sprintf("embedded pipeline definition invalid: %v", err))
	}
	if errs := Validate(def); len(errs) > 0 {
		panic(fmt.Sprintf("embedded pipeline definition invalid: %v", errs[0]))
	}
	return def
}

// LoadDir loads a pipeline definition from a directory of CUE files.
// The files are built as one instance; the definition lives under the
// top-level `pipeline` field.
func LoadDir(dir string) (*Definition, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("pipeline directory not found: %s", dir)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing pipeline directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	cueFiles, err := findCUEFiles(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(cueFiles) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}
	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}
	return decode(value)
}

func decode(value cue.Value) (*Definition, error) {
	pipelineVal := value.LookupPath(cue.ParsePath("pipeline"))
	if !pipelineVal.Exists() {
		return nil, &LoadError{Code: ErrCodeMissing, Message: "no top-level `pipeline` field"}
	}
	var def Definition
	if err := pipelineVal.Decode(&def); err != nil {
		return nil, &LoadError{Code: ErrCodeDecodeFailed, Message: fmt.Sprintf("decoding pipeline: %v", err)}
	}
	return &def, nil
}

func findCUEFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".cue") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}
