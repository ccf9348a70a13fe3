package js

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dop251/goja"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pbinitiative/zenflow/pkg/script"
)

const compiledProgramCacheSize = 256

type JsRunnerFactory struct {
}

func (JsRunnerFactory) NewRunner() script.Runner {
	return newJsRunner()
}

type JsRuntime struct {
	pool     *script.RunnerPool
	programs *lru.Cache[string, *goja.Program]
}

var _ script.JsRuntime = &JsRuntime{}

func NewJsRuntime(ctx context.Context, maxVmPoolSize int, minVmPoolSize int) (*JsRuntime, error) {
	pool, err := script.NewRunnerPool(ctx, JsRunnerFactory{}, maxVmPoolSize, minVmPoolSize)
	if err != nil {
		return nil, err
	}
	programs, err := lru.New[string, *goja.Program](compiledProgramCacheSize)
	if err != nil {
		return nil, err
	}
	return &JsRuntime{pool: pool, programs: programs}, nil
}

func (r *JsRuntime) RunScript(ctx context.Context, body string, variables map[string]any) (any, bool, error) {
	names := make([]string, 0, len(variables))
	for name := range variables {
		names = append(names, name)
	}
	slices.Sort(names)

	source := fmt.Sprintf("(function(%s) {\n%s\n})", strings.Join(names, ", "), body)
	program, err := r.compile(source)
	if err != nil {
		return nil, false, err
	}

	runner := r.pool.GetRunnerFromPool().(*JsRunner)
	defer r.pool.ReturnRunnerToPool(runner)

	args := make([]any, len(names))
	for i, name := range names {
		args[i] = variables[name]
	}
	return runner.call(ctx, program, args)
}

func (r *JsRuntime) EvaluateExpression(ctx context.Context, expression string, variables map[string]any) (any, error) {
	result, _, err := r.RunScript(ctx, fmt.Sprintf("return (%s);", expression), variables)
	return result, err
}

func (r *JsRuntime) compile(source string) (*goja.Program, error) {
	if program, ok := r.programs.Get(source); ok {
		return program, nil
	}
	program, err := goja.Compile("", source, true)
	if err != nil {
		return nil, fmt.Errorf("error compiling script: %w", err)
	}
	r.programs.Add(source, program)
	return program, nil
}

type JsRunner struct {
	vm *goja.Runtime
}

func (r *JsRunner) Runner() {}

func newJsRunner() *JsRunner {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	return &JsRunner{vm: vm}
}

func (r *JsRunner) call(ctx context.Context, program *goja.Program, args []any) (any, bool, error) {
	stop := context.AfterFunc(ctx, func() {
		r.vm.Interrupt(context.Cause(ctx))
	})
	defer func() {
		stop()
		r.vm.ClearInterrupt()
	}()

	value, err := r.vm.RunProgram(program)
	if err != nil {
		return nil, false, r.convertError(err)
	}
	fn, ok := goja.AssertFunction(value)
	if !ok {
		return nil, false, errors.New("script did not compile to a function")
	}
	values := make([]goja.Value, len(args))
	for i, arg := range args {
		values[i] = r.vm.ToValue(arg)
	}
	result, err := fn(goja.Undefined(), values...)
	if err != nil {
		return nil, false, r.convertError(err)
	}
	if goja.IsUndefined(result) {
		return nil, false, nil
	}
	return result.Export(), true, nil
}

func (r *JsRunner) convertError(err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if cause, ok := interrupted.Value().(error); ok {
			return cause
		}
		return fmt.Errorf("script interrupted: %w", err)
	}
	var exception *goja.Exception
	if errors.As(err, &exception) {
		if thrown := asThrownError(exception.Value()); thrown != nil {
			return thrown
		}
		return fmt.Errorf("error running script: %s", exception.Error())
	}
	return fmt.Errorf("error running script: %w", err)
}

func asThrownError(value goja.Value) *script.ThrownError {
	if value == nil {
		return nil
	}
	exported, ok := value.Export().(map[string]any)
	if !ok {
		return nil
	}
	code, _ := exported["errorCode"].(string)
	if code == "" {
		return nil
	}
	thrown := &script.ThrownError{Code: code}
	thrown.Name, _ = exported["name"].(string)
	thrown.Message, _ = exported["message"].(string)
	return thrown
}
