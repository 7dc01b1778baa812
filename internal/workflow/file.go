package workflow

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/caserun/internal/model"
)

// Format is a workflow file format.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

// FileNames lists the workflow file names searched by Find, in priority
// order.
var FileNames = []string{
	"caserun.yaml",
	"caserun.yml",
	"caserun.json",
	"caserun.jsonc",
	"caserun.toml",
}

// ParseFormat converts a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yaml", "yml":
		return FormatYAML, nil
	case "json", "jsonc":
		return FormatJSON, nil
	case "toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("unsupported workflow format %q (valid: yaml, json, toml)", s)
	}
}

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "", fmt.Errorf("cannot infer workflow format of %s: no file extension", path)
	}
	return ParseFormat(ext)
}

// DefaultFileName returns the file name `caserun init` writes for format.
func DefaultFileName(format Format) string {
	return "caserun." + string(format)
}

// Find returns the path of the workflow file in caseDir. The first name in
// FileNames that exists wins.
//
// Returns a CLIError with ExitWorkflowNotFound if no file exists.
func Find(caseDir string) (string, error) {
	for _, name := range FileNames {
		path := filepath.Join(caseDir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}

	return "", model.NewCLIError(
		model.ExitWorkflowNotFound,
		fmt.Sprintf("no workflow file found in %s (searched %s); use --preset or `caserun init`",
			caseDir, strings.Join(FileNames, ", ")),
	)
}

// Load reads and parses a workflow file. The format follows the extension.
//
// Returns a CLIError with ExitWorkflowNotFound if the file does not exist
// or cannot be parsed.
func Load(path string) (*model.Workflow, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitWorkflowNotFound, "unsupported workflow file", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, model.WrapCLIError(
				model.ExitWorkflowNotFound,
				fmt.Sprintf("workflow file not found: %s", path),
				err,
			)
		}
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}

	wf, err := Parse(data, format)
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitWorkflowNotFound,
			fmt.Sprintf("failed to parse workflow file %s", path),
			err,
		)
	}
	return wf, nil
}

// Parse decodes workflow data in the given format.
func Parse(data []byte, format Format) (*model.Workflow, error) {
	var wf model.Workflow

	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&wf); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("workflow file is empty")
			}
			return nil, err
		}

	case FormatJSON:
		// Comments and trailing commas are stripped before strict decoding.
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&wf); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("workflow file is empty")
			}
			return nil, err
		}

	case FormatTOML:
		md, err := toml.Decode(string(data), &wf)
		if err != nil {
			return nil, err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			sort.Strings(keys)
			return nil, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
		}

	default:
		return nil, fmt.Errorf("unsupported workflow format %q", format)
	}

	return &wf, nil
}

// Marshal serializes a workflow. YAML and TOML output starts with a header
// comment naming the workflow; plain JSON has no comment syntax and is
// written without one.
func Marshal(wf *model.Workflow, format Format) ([]byte, error) {
	header := fmt.Sprintf(
		"# caserun workflow %q\n# Steps run in order; the first failed required step stops the run.\n",
		wf.Name,
	)

	switch format {
	case FormatYAML:
		var buf bytes.Buffer
		buf.WriteString(header)
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(wf); err != nil {
			return nil, fmt.Errorf("failed to serialize workflow YAML: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("failed to serialize workflow YAML: %w", err)
		}
		return buf.Bytes(), nil

	case FormatJSON:
		data, err := json.MarshalIndent(wf, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to serialize workflow JSON: %w", err)
		}
		return append(data, '\n'), nil

	case FormatTOML:
		var buf bytes.Buffer
		buf.WriteString(header)
		enc := toml.NewEncoder(&buf)
		enc.Indent = "  "
		if err := enc.Encode(wf); err != nil {
			return nil, fmt.Errorf("failed to serialize workflow TOML: %w", err)
		}
		return buf.Bytes(), nil

	default:
		return nil, fmt.Errorf("unsupported workflow format %q", format)
	}
}

// Write saves workflow bytes to path, creating parent directories.
func Write(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write workflow file %s: %w", path, err)
	}
	return nil
}
