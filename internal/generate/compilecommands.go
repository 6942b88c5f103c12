// Package generate implements the auxiliary-artifact generators (C10,
// §4.10) that consume a planned task list without executing it.
package generate

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/google/renameio"

	"github.com/yldrefruz/ebuild/internal/orchestrate"
)

// CompileCommandsEntry is one compilation-database record.
type CompileCommandsEntry struct {
	Directory string `json:"directory"`
	Command   string `json:"command"`
	File      string `json:"file"`
}

// CompileCommandsJSON renders plan's compile tasks into the
// JSON Compilation Database format, one entry per source, with the
// command string equal to the space-joined, shell-escaped argv the
// compiler driver would run (§4.10).
func CompileCommandsJSON(plan *orchestrate.Plan) ([]CompileCommandsEntry, error) {
	var entries []CompileCommandsEntry
	for _, key := range plan.OrderedUnits {
		u := plan.Units[key]
		for _, ct := range u.Compiles {
			argv, err := u.Toolchain.Compiler.Argv(ct.Settings)
			if err != nil {
				return nil, err
			}
			entries = append(entries, CompileCommandsEntry{
				Directory: filepath.Dir(ct.Settings.OutputPath),
				Command:   shellJoin(argv),
				File:      ct.Settings.SourcePath,
			})
		}
	}
	return entries, nil
}

// WriteCompileCommandsJSON renders entries and writes them atomically to
// path — a temporary file plus rename, via github.com/google/renameio, the
// same pattern the teacher uses for meta.binaryproto in cmd/distri/mirror.go
// (§4.10, "written atomically: write to a temporary file and rename").
func WriteCompileCommandsJSON(path string, entries []CompileCommandsEntry) error {
	if entries == nil {
		entries = []CompileCommandsEntry{}
	}
	b, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return renameio.WriteFile(path, b, 0o644)
}

// shellJoin space-joins argv, single-quoting any argument containing a
// character a POSIX shell would otherwise treat specially.
func shellJoin(argv []string) string {
	parts := make([]string, len(argv))
	for i, a := range argv {
		parts[i] = shellQuote(a)
	}
	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n\"'\\$`&|;<>()[]{}*?!~#") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
