package script

import "strconv"

// ResultCode is the stable numeric outcome of one invocation. Values are never
// renumbered or reused.
type ResultCode int

const (
	Succeeded                       ResultCode = 0
	SysExited                       ResultCode = 1
	ExecutionException              ResultCode = 2
	CompileException                ResultCode = 3
	EngineNotImplemented            ResultCode = 4
	ExternalInterfaceNotImplemented ResultCode = 5
	FailedLoadingContent            ResultCode = 6
	BadCommandArguments             ResultCode = 7
	NotSupportedFeature             ResultCode = 8
	UnknownException                ResultCode = 9
	MissingTargetScript             ResultCode = 10
)

var resultCodeNames = map[ResultCode]string{
	Succeeded:                       "Succeeded",
	SysExited:                       "SysExited",
	ExecutionException:              "ExecutionException",
	CompileException:                "CompileException",
	EngineNotImplemented:            "EngineNotImplemented",
	ExternalInterfaceNotImplemented: "ExternalInterfaceNotImplemented",
	FailedLoadingContent:            "FailedLoadingContent",
	BadCommandArguments:             "BadCommandArguments",
	NotSupportedFeature:             "NotSupportedFeature",
	UnknownException:                "UnknownException",
	MissingTargetScript:             "MissingTargetScript",
}

func (c ResultCode) String() string {
	if name, ok := resultCodeNames[c]; ok {
		return name
	}
	return "ResultCode(" + strconv.Itoa(int(c)) + ")"
}

// Failed reports whether the code is anything other than Succeeded.
func (c ResultCode) Failed() bool {
	return c != Succeeded
}
