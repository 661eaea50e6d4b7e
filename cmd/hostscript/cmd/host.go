package cmd

import (
	"io"

	"github.com/nfrund/hostscript/internal/host"
)

// cliHost returns the collaborators available outside a host process. Only
// links can be served; the other host engines report that their host
// interface is missing.
func cliHost(out io.Writer) host.Collaborators {
	return host.Collaborators{Browser: browser{out: out}}
}
