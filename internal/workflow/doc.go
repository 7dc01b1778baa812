// Package workflow loads, validates and exports caserun workflow files,
// and provides the built-in presets that replace per-tutorial Allrun
// scripts.
//
// A workflow file lives in the case directory and may be written in any
// of three formats, chosen by extension:
//
//   - caserun.yaml / caserun.yml (gopkg.in/yaml.v3)
//   - caserun.json / caserun.jsonc (JSON with comments via github.com/tidwall/jsonc)
//   - caserun.toml (github.com/BurntSushi/toml)
//
// Unknown keys are rejected in every format, so a misspelled modifier such
// as "paralel" fails loudly instead of silently running a serial solver.
package workflow
