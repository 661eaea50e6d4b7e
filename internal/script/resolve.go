package script

import (
	"bufio"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// extensionEngines maps script file postfixes to engine tags.
var extensionEngines = map[string]EngineType{
	".py":    EngineIronPython,
	".cs":    EngineCSharp,
	".vb":    EngineVisualBasic,
	".rb":    EngineRuby,
	".dyn":   EngineDynamoBIM,
	".gh":    EngineGrasshopper,
	".ghx":   EngineGrasshopper,
	".rfa":   EngineContent,
	".dll":   EngineInvoke,
	".tengo": EngineTengo,
	".js":    EngineJavaScript,
}

// bundleEngines is consulted when the file itself carries no signal.
var bundleEngines = map[BundleType]EngineType{
	BundleInvokeButton:  EngineInvoke,
	BundleURLButton:     EngineHyperlink,
	BundleLinkButton:    EngineHyperlink,
	BundleContentButton: EngineContent,
}

// cpythonMarker selects the CPython engine when found on the first line of a
// python script. This is a plain substring match, so a comment mentioning the
// marker also selects CPython.
const cpythonMarker = "python3"

// ResolveEngineType determines the engine tag for a source file.
func ResolveEngineType(fs afero.Fs, sourceFile string, bundle BundleType) EngineType {
	ext := strings.ToLower(filepath.Ext(sourceFile))
	if engine, ok := extensionEngines[ext]; ok {
		if engine == EngineIronPython && firstLineContains(fs, sourceFile, cpythonMarker) {
			return EngineCPython
		}
		return engine
	}
	if engine, ok := bundleEngines[bundle]; ok {
		return engine
	}
	return EngineUnknown
}

// ExtensionFor returns the canonical file postfix of an engine, if any.
func ExtensionFor(engine EngineType) string {
	if engine == EngineCPython {
		return ".py"
	}
	for ext, e := range extensionEngines {
		if e == engine && ext != ".ghx" {
			return ext
		}
	}
	return ""
}

func firstLineContains(fs afero.Fs, path, marker string) bool {
	file, err := fs.Open(path)
	if err != nil {
		return false
	}
	defer func() {
		_ = file.Close()
	}()

	scanner := bufio.NewScanner(file)
	if !scanner.Scan() {
		return false
	}
	return strings.Contains(strings.ToLower(scanner.Text()), marker)
}
