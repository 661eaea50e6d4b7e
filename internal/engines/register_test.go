package engines

import (
	"testing"

	"github.com/nfrund/hostscript/internal/script"
	"github.com/stretchr/testify/assert"
)

func TestRegisterAllCoversEveryEngineTag(t *testing.T) {
	r := script.NewEngineRegistry()
	RegisterAll(r, Options{})

	assert.Equal(t, []script.EngineType{
		script.EngineContent,
		script.EngineCPython,
		script.EngineCSharp,
		script.EngineDynamoBIM,
		script.EngineGrasshopper,
		script.EngineHyperlink,
		script.EngineInvoke,
		script.EngineIronPython,
		script.EngineJavaScript,
		script.EngineRuby,
		script.EngineTengo,
		script.EngineVisualBasic,
	}, r.Types())
	assert.Equal(t, "tengo/v2.17.0", r.Version(script.EngineTengo))
}
