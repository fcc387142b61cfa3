package rowdata

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// exprOptions restricts name expressions to side-effect-free evaluation
// over the row's columns.
var exprOptions = []expr.Option{expr.AllowUndefinedVariables()}

// NamePattern derives an output file name for rows that carry no value in
// the reserved Filename column. The pattern is an expression evaluated
// against the row's columns, e.g. `Name + "_" + Amount`.
type NamePattern struct {
	program *vm.Program
}

// CompileNamePattern compiles an output-name expression. An empty pattern
// yields a nil NamePattern, which falls back to positional names.
func CompileNamePattern(pattern string) (*NamePattern, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, nil
	}
	program, err := expr.Compile(pattern, exprOptions...)
	if err != nil {
		return nil, fmt.Errorf("invalid name pattern %q: %w", pattern, err)
	}
	return &NamePattern{program: program}, nil
}

// OutputName resolves the output document name for one record: the reserved
// Filename cell wins, then the compiled pattern, then a positional default.
// The .pdf extension is appended when missing. rowNum is 1-based.
func (p *NamePattern) OutputName(rec Record, rowNum int) (string, error) {
	if name, ok := rec.Filename(); ok {
		return ensurePDFExt(name), nil
	}
	if p == nil || p.program == nil {
		return fmt.Sprintf("row_%04d.pdf", rowNum), nil
	}
	out, err := expr.Run(p.program, rec.Env())
	if err != nil {
		return "", fmt.Errorf("name pattern failed for row %d: %w", rowNum, err)
	}
	name := strings.TrimSpace(fmt.Sprintf("%v", out))
	if name == "" {
		return fmt.Sprintf("row_%04d.pdf", rowNum), nil
	}
	return ensurePDFExt(name), nil
}

func ensurePDFExt(name string) string {
	if strings.EqualFold(filepath.Ext(name), ".pdf") {
		return name
	}
	return name + ".pdf"
}
