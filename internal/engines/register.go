// Package engines wires every built-in engine into a registry.
package engines

import (
	"github.com/nfrund/hostscript/internal/engines/clr"
	"github.com/nfrund/hostscript/internal/engines/cpython"
	"github.com/nfrund/hostscript/internal/engines/hostengines"
	"github.com/nfrund/hostscript/internal/engines/javascript"
	"github.com/nfrund/hostscript/internal/engines/ruby"
	"github.com/nfrund/hostscript/internal/engines/starpy"
	"github.com/nfrund/hostscript/internal/engines/tengoscript"
	"github.com/nfrund/hostscript/internal/host"
	"github.com/nfrund/hostscript/internal/script"
)

// Options configure the built-in engines.
type Options struct {
	Host      host.Collaborators
	Toolchain clr.Toolchain
	// Python is the interpreter command for python3 scripts.
	Python string
}

// RegisterAll binds every engine tag to its implementation.
func RegisterAll(r *script.EngineRegistry, opts Options) {
	if opts.Toolchain == nil {
		opts.Toolchain = clr.NewDotnetToolchain()
	}
	if opts.Python == "" {
		opts.Python = "python3"
	}
	c := opts.Host

	script.Register(r, script.EngineIronPython, starpy.Version, starpy.New)
	script.Register(r, script.EngineCPython, cpython.DefaultVersion, func() *cpython.Engine {
		e := cpython.New()
		e.Python = opts.Python
		return e
	})
	script.Register(r, script.EngineCSharp, clr.Version, func() *clr.Engine { return clr.New(opts.Toolchain) })
	script.Register(r, script.EngineVisualBasic, clr.Version, func() *clr.Engine { return clr.New(opts.Toolchain) })
	script.Register(r, script.EngineInvoke, clr.Version, func() *clr.InvokeEngine { return clr.NewInvoke(opts.Toolchain) })
	script.Register(r, script.EngineRuby, "unavailable", ruby.New)
	script.Register(r, script.EngineDynamoBIM, hostengines.Version, func() *hostengines.DynamoEngine { return hostengines.NewDynamo(c) })
	script.Register(r, script.EngineGrasshopper, hostengines.Version, func() *hostengines.GrasshopperEngine { return hostengines.NewGrasshopper(c) })
	script.Register(r, script.EngineContent, hostengines.Version, func() *hostengines.ContentEngine { return hostengines.NewContent(c) })
	script.Register(r, script.EngineHyperlink, hostengines.Version, func() *hostengines.HyperlinkEngine { return hostengines.NewHyperlink(c) })
	script.Register(r, script.EngineTengo, tengoscript.Version, tengoscript.New)
	script.Register(r, script.EngineJavaScript, javascript.Version, javascript.New)
}
