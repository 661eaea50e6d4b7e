package script

import (
	"sync"
	"testing"

	"github.com/nfrund/hostscript/internal/config"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// fakeEngine counts lifecycle calls and keeps a tiny global scope.
type fakeEngine struct {
	BaseEngine

	mu         sync.Mutex
	bootstraps int
	starts     int
	executes   int
	stops      int
	shutdowns  int

	initErr   error
	startErr  error
	code      ResultCode
	panicWith any
	onExecute func(sc *ScriptContext)

	globals  map[string]string
	lastBind map[string]any
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{globals: make(map[string]string)}
}

func (e *fakeEngine) Init(sc *ScriptContext) error {
	if e.initErr != nil {
		return e.initErr
	}
	return e.BaseEngine.Init(sc)
}

func (e *fakeEngine) Start(sc *ScriptContext) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.starts++
	if !e.RecoveredFromCache() {
		e.bootstraps++
	}
	e.lastBind = BuiltinMap(sc, e)
	return e.startErr
}

func (e *fakeEngine) Execute(sc *ScriptContext) ResultCode {
	e.mu.Lock()
	e.executes++
	e.mu.Unlock()
	if e.panicWith != nil {
		panic(e.panicWith)
	}
	if e.onExecute != nil {
		e.onExecute(sc)
	}
	return e.code
}

func (e *fakeEngine) Stop(sc *ScriptContext) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stops++
	if !sc.Persistent() {
		e.globals = make(map[string]string)
	}
}

func (e *fakeEngine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.shutdowns++
}

func (e *fakeEngine) shutdownCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shutdowns
}

// otherEngine is a second concrete type used to exercise type mismatches.
type otherEngine struct {
	BaseEngine
	shutdowns int
}

func (e *otherEngine) Execute(sc *ScriptContext) ResultCode { return Succeeded }
func (e *otherEngine) Shutdown()                            { e.shutdowns++ }

const testSession = "session-1"

func testEnv() config.Environment {
	return config.Environment{SessionID: testSession, HostVersion: "2024.1.0"}
}

func writeScript(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0644))
}

func testDescriptor(path, extension string) ScriptDescriptor {
	return ScriptDescriptor{
		ScriptPath:    path,
		UniqueID:      extension + "-" + path,
		Name:          "Test Command",
		BundleName:    "Test.pushbutton",
		BundleType:    BundlePushButton,
		ExtensionName: extension,
	}
}

func newTestContext(t *testing.T, fs afero.Fs, desc ScriptDescriptor, rc *RuntimeConfig) *ScriptContext {
	t.Helper()
	if rc == nil {
		rc = &RuntimeConfig{}
	}
	sc, err := NewScriptContext(ContextOptions{
		Descriptor: desc,
		Config:     rc,
		Env:        testEnv(),
		Fs:         fs,
	})
	require.NoError(t, err)
	return sc
}
