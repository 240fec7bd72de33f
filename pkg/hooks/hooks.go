//go:generate mockgen -destination=mocks/hooks.go . Runner

// Package hooks runs package lifecycle scripts with the tengo interpreter.
package hooks

import (
	"context"
	"fmt"
	"maps"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"

	"github.com/glorpus-work/pkgng/internal/logger"
	"github.com/glorpus-work/pkgng/pkg/errors"
	"github.com/glorpus-work/pkgng/pkg/model"
)

// Phase is a point in a package's lifecycle at which scripts run.
type Phase int

// Lifecycle phases.
const (
	PreInstall Phase = iota
	PostInstall
	PreDeinstall
	PostDeinstall
)

// scripts returns the phase's own script type, the combined script type
// that also runs at this phase, and the stage name the combined one sees.
func (p Phase) scripts() (specific, combined model.ScriptType, stage string) {
	switch p {
	case PreInstall:
		return model.ScriptPreInstall, model.ScriptInstall, "PRE-INSTALL"
	case PostInstall:
		return model.ScriptPostInstall, model.ScriptInstall, "POST-INSTALL"
	case PreDeinstall:
		return model.ScriptPreDeinstall, model.ScriptDeinstall, "DEINSTALL"
	default:
		return model.ScriptPostDeinstall, model.ScriptDeinstall, "POST-DEINSTALL"
	}
}

func (p Phase) String() string {
	_, _, stage := p.scripts()
	return stage
}

// Runner runs the scripts of a package for one phase.
type Runner interface {
	Run(ctx context.Context, phase Phase, p *model.Package, upgrade bool) error
}

// TengoExecutor runs package scripts as tengo programs. A script fails the
// job by assigning a string or error to err.
type TengoExecutor struct {
	rootDir string
	modules []string
	vars    map[string]interface{}
}

// NewTengoExecutor creates an executor for packages installed below rootDir.
// vars are made available to every script in addition to the package variables.
func NewTengoExecutor(rootDir string, vars map[string]interface{}) *TengoExecutor {
	return &TengoExecutor{
		rootDir: rootDir,
		modules: []string{"fmt", "os", "text", "times"},
		vars:    maps.Clone(vars),
	}
}

// Run executes the phase's script of p and then the combined install or
// deinstall script, which sees the phase in its stage variable.
func (e *TengoExecutor) Run(ctx context.Context, phase Phase, p *model.Package, upgrade bool) error {
	specific, combined, stage := phase.scripts()
	for _, st := range []model.ScriptType{specific, combined} {
		script, ok := p.Scripts[st]
		if !ok || script == "" {
			continue
		}
		logger.DebugfWithFields(logger.Fields{"origin": p.Origin, "stage": stage}, "running %s script", st)
		if err := e.execute(ctx, st, script, p, stage, upgrade); err != nil {
			return errors.Wrapf(err, "%s %s", p.NameVersion(), st)
		}
	}
	return nil
}

func (e *TengoExecutor) execute(ctx context.Context, st model.ScriptType, script string, p *model.Package, stage string, upgrade bool) error {
	s := tengo.NewScript([]byte(script))
	s.SetImports(stdlib.GetModuleMap(e.modules...))

	vars := map[string]interface{}{
		"pkgName":    p.Name,
		"pkgVersion": p.Version,
		"pkgOrigin":  p.Origin,
		"prefix":     p.Prefix,
		"rootDir":    e.rootDir,
		"stage":      stage,
		"upgrade":    upgrade,
		"err":        tengo.UndefinedValue,
	}
	maps.Copy(vars, e.vars)
	for k, v := range vars {
		if err := s.Add(k, v); err != nil {
			return fmt.Errorf("failed to add variable '%s' to script: %w", k, err)
		}
	}

	compiled, err := s.RunContext(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", st, errors.ErrHookExecution, err)
	}

	switch v := compiled.Get("err").Value().(type) {
	case error:
		return fmt.Errorf("%w: %w", errors.ErrHookScript, v)
	case string:
		if v != "" {
			return fmt.Errorf("%w: %s", errors.ErrHookScript, v)
		}
	}
	return nil
}
