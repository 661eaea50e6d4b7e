package clr

import (
	"fmt"
	"io"

	"github.com/h2non/filetype"
	"github.com/nfrund/hostscript/internal/script"
)

// headerSize is enough bytes for file type detection.
const headerSize = 262

// InvokeEngine runs a prebuilt assembly without compiling anything.
type InvokeEngine struct {
	script.BaseEngine

	toolchain Toolchain
}

// NewInvoke returns an engine running assemblies through toolchain.
func NewInvoke(toolchain Toolchain) *InvokeEngine {
	return &InvokeEngine{toolchain: toolchain}
}

// Start rejects files that are not portable executables.
func (e *InvokeEngine) Start(sc *script.ScriptContext) error {
	file := sc.ResolvedSourceFile()
	f, err := sc.Fs().Open(file)
	if err != nil {
		return &script.ExternalInterfaceError{Interface: "assembly", Cause: err}
	}
	defer f.Close()

	header := make([]byte, headerSize)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return &script.ExternalInterfaceError{Interface: "assembly", Cause: err}
	}
	kind, _ := filetype.Match(header[:n])
	if kind == filetype.Unknown || kind.Extension != "exe" {
		return &script.ExternalInterfaceError{
			Interface: "assembly",
			Cause:     fmt.Errorf("%s is not a portable executable", file),
		}
	}
	return nil
}

// Execute implements script.ScriptEngine.
func (e *InvokeEngine) Execute(sc *script.ScriptContext) script.ResultCode {
	return run(e.toolchain, Unit{Assembly: sc.ResolvedSourceFile()}, sc, e)
}
