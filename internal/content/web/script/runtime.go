package script

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/dop251/goja"
)

// Runtime wraps one goja VM with interrupt and recursion limits. A runtime
// serves one execution at a time; the pool hands each caller a runtime of
// its own.
type Runtime struct {
	vm     *goja.Runtime
	config Config
}

// New creates a hardened runtime.
func New(config Config) (*Runtime, error) {
	r := &Runtime{config: config}
	if err := r.Reset(); err != nil {
		return nil, err
	}
	return r, nil
}

// Execute runs source against the given environment. The script is
// interrupted when the configured timeout or ctx expires.
func (r *Runtime) Execute(ctx context.Context, source string, env Env) (*Result, error) {
	r.bind(env)

	start := time.Now()
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		timer := time.NewTimer(r.config.Timeout)
		defer timer.Stop()
		select {
		case <-timer.C:
			r.vm.Interrupt("execution timeout exceeded")
		case <-ctx.Done():
			r.vm.Interrupt("context cancelled")
		case <-stop:
		}
	}()

	val, err := r.vm.RunString(source)
	if err != nil {
		return nil, err
	}
	return &Result{Value: export(val), Duration: time.Since(start)}, nil
}

// Reset discards all VM state. The pool resets a runtime before reuse so
// one guest's globals never leak into another's execution.
func (r *Runtime) Reset() error {
	vm := goja.New()
	if r.config.MaxCallStack > 0 {
		vm.SetMaxCallStackSize(r.config.MaxCallStack)
	}
	r.vm = vm
	r.harden()
	return nil
}

// Close releases the VM.
func (r *Runtime) Close() error {
	r.vm = nil
	return nil
}

// harden removes node-ish globals and neuters timers.
func (r *Runtime) harden() {
	for _, name := range []string{"require", "process", "module", "exports", "globalThis2"} {
		r.vm.Set(name, goja.Undefined())
	}
	noop := func(call goja.FunctionCall) goja.Value { return goja.Undefined() }
	r.vm.Set("setTimeout", noop)
	r.vm.Set("setInterval", noop)
}

func (r *Runtime) bind(env Env) {
	r.bindConsole(env)
	r.bindHost(env)
	r.bindWindow(env)
	r.bindDocument(env)
}

func (r *Runtime) bindConsole(env Env) {
	console := r.vm.NewObject()
	for _, level := range []string{"log", "warn", "error", "info", "debug"} {
		level := level
		console.Set(level, func(call goja.FunctionCall) goja.Value {
			if env.OnConsole != nil {
				parts := make([]string, len(call.Arguments))
				for i, arg := range call.Arguments {
					parts[i] = arg.String()
				}
				env.OnConsole(level, strings.Join(parts, " "))
			}
			return goja.Undefined()
		})
	}
	r.vm.Set("console", console)
}

func (r *Runtime) bindHost(env Env) {
	host := r.vm.NewObject()
	host.Set("send", func(call goja.FunctionCall) goja.Value {
		if env.OnSend == nil || len(call.Arguments) == 0 {
			return goja.Undefined()
		}
		channel := call.Arguments[0].String()
		args := make([]interface{}, 0, len(call.Arguments)-1)
		for _, arg := range call.Arguments[1:] {
			args = append(args, export(arg))
		}
		env.OnSend(channel, args)
		return goja.Undefined()
	})
	messages := make([]map[string]interface{}, len(env.Messages))
	for i, m := range env.Messages {
		messages[i] = map[string]interface{}{"channel": m.Channel, "args": m.Args}
	}
	host.Set("messages", messages)
	if env.NodeIntegration {
		host.Set("platform", "embedos")
		host.Set("integrated", true)
	}
	r.vm.Set("host", host)
}

func (r *Runtime) bindWindow(env Env) {
	window := r.vm.NewObject()
	window.Set("open", func(call goja.FunctionCall) goja.Value {
		if !env.AllowPopups || env.OnOpenWindow == nil || len(call.Arguments) == 0 {
			return goja.Null()
		}
		env.OnOpenWindow(call.Arguments[0].String())
		return goja.Null()
	})

	window.Set("close", func(call goja.FunctionCall) goja.Value {
		if env.OnClose != nil {
			env.OnClose()
		}
		return goja.Undefined()
	})

	location := r.vm.NewObject()
	location.Set("href", env.PageURL)
	window.Set("location", location)

	document := r.vm.NewObject()
	document.Set("requestFullscreen", func(call goja.FunctionCall) goja.Value {
		if env.OnFullscreen != nil {
			env.OnFullscreen()
		}
		return goja.Undefined()
	})
	window.Set("document", document)

	r.vm.Set("window", window)
	r.vm.Set("location", location)
}

func (r *Runtime) bindDocument(env Env) {
	document := r.vm.NewObject()

	find := func(selector string) *goquery.Selection {
		if env.Doc == nil {
			return nil
		}
		return env.Doc.Find(selector)
	}

	document.Set("querySelector", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return goja.Null()
		}
		sel := find(call.Arguments[0].String())
		if sel == nil || sel.Length() == 0 {
			return goja.Null()
		}
		return r.vm.ToValue(elementProxy(sel.First()))
	})
	document.Set("querySelectorAll", func(call goja.FunctionCall) goja.Value {
		var out []map[string]interface{}
		if len(call.Arguments) > 0 {
			if sel := find(call.Arguments[0].String()); sel != nil {
				sel.Each(func(_ int, s *goquery.Selection) {
					out = append(out, elementProxy(s))
				})
			}
		}
		return r.vm.ToValue(out)
	})
	document.Set("getElementById", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return goja.Null()
		}
		sel := find("#" + call.Arguments[0].String())
		if sel == nil || sel.Length() == 0 {
			return goja.Null()
		}
		return r.vm.ToValue(elementProxy(sel.First()))
	})
	if env.Doc != nil {
		document.Set("title", env.Doc.Find("title").First().Text())
	}

	r.vm.Set("document", document)
}

// elementProxy exposes a read-mostly element view to scripts.
func elementProxy(s *goquery.Selection) map[string]interface{} {
	id, _ := s.Attr("id")
	class, _ := s.Attr("class")
	return map[string]interface{}{
		"tagName":     strings.ToUpper(goquery.NodeName(s)),
		"id":          id,
		"className":   class,
		"textContent": s.Text(),
		"getAttribute": func(name string) string {
			v, _ := s.Attr(name)
			return v
		},
	}
}

func export(val goja.Value) interface{} {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil
	}
	return val.Export()
}
