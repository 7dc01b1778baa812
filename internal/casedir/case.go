package casedir

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/shinji-kodama/caserun/internal/model"
)

// ControlDict is the file every case must contain.
const ControlDict = "system/controlDict"

// MarkerExt is the extension of the visualization marker file.
const MarkerExt = ".foam"

// Well-known entries of a case directory.
const (
	InitialTimeDir = "0"
	SystemDir      = "system"
	ConstantDir    = "constant"
	PolyMeshDir    = "constant/polyMesh"
	PostProcessing = "postProcessing"
	ProcessorGlob  = "processor*"
	LogGlob        = "log.*"
	TemplateSuffix = ".org"
)

var processorRegex = regexp.MustCompile(`^processor(\d+)$`)

// Validate checks that dir looks like a case directory. It returns a
// CLIError with ExitCaseInvalid when it does not.
func Validate(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return model.WrapCLIError(model.ExitCaseInvalid,
			fmt.Sprintf("case directory %s is not accessible", dir), err)
	}
	if !info.IsDir() {
		return model.NewCLIError(model.ExitCaseInvalid,
			fmt.Sprintf("%s is not a directory", dir))
	}

	ctrl := filepath.Join(dir, filepath.FromSlash(ControlDict))
	if _, err := os.Stat(ctrl); err != nil {
		return model.WrapCLIError(model.ExitCaseInvalid,
			fmt.Sprintf("%s is not a case directory (missing %s)", dir, ControlDict), err)
	}
	return nil
}

// ParseTime reports whether name is a time directory name and returns its
// numeric value. "0", "0.5", "100" and "1e-05" are time names; "constant",
// "NaN" and "Inf" are not.
func ParseTime(name string) (float64, bool) {
	v, err := strconv.ParseFloat(name, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, false
	}
	return v, true
}

// TimeDirs returns the time directories of a case, sorted by numeric value.
func TimeDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read case directory %s: %w", dir, err)
	}

	type timeDir struct {
		name  string
		value float64
	}
	var dirs []timeDir
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if v, ok := ParseTime(e.Name()); ok {
			dirs = append(dirs, timeDir{name: e.Name(), value: v})
		}
	}

	sort.SliceStable(dirs, func(i, j int) bool {
		return dirs[i].value < dirs[j].value
	})

	names := make([]string, len(dirs))
	for i, d := range dirs {
		names[i] = d.name
	}
	return names, nil
}

// LatestTime returns the name of the highest time directory.
func LatestTime(dir string) (string, error) {
	dirs, err := TimeDirs(dir)
	if err != nil {
		return "", err
	}
	if len(dirs) == 0 {
		return "", fmt.Errorf("no time directories in %s", dir)
	}
	return dirs[len(dirs)-1], nil
}

// ProcessorDirs returns the processor<N> directories of a decomposed case,
// sorted by partition number.
func ProcessorDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read case directory %s: %w", dir, err)
	}

	type procDir struct {
		name string
		n    int
	}
	var dirs []procDir
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		m := processorRegex.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		dirs = append(dirs, procDir{name: e.Name(), n: n})
	}

	sort.Slice(dirs, func(i, j int) bool { return dirs[i].n < dirs[j].n })

	names := make([]string, len(dirs))
	for i, d := range dirs {
		names[i] = d.name
	}
	return names, nil
}

// MarkerName returns the marker file name for a case: "<basename>.foam".
func MarkerName(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	return filepath.Base(abs) + MarkerExt
}

// Templates returns the initial-condition templates of the 0 directory as
// (template, target) pairs, e.g. ("0/alpha1.org", "0/alpha1").
func Templates(dir string) ([]model.CopySpec, error) {
	entries, err := os.ReadDir(filepath.Join(dir, InitialTimeDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read initial time directory: %w", err)
	}

	var specs []model.CopySpec
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != TemplateSuffix || name == TemplateSuffix {
			continue
		}
		field := name[:len(name)-len(TemplateSuffix)]
		specs = append(specs, model.CopySpec{
			From: InitialTimeDir + "/" + name,
			To:   InitialTimeDir + "/" + field,
		})
	}
	return specs, nil
}
