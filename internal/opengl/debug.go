package opengl

import (
	"unsafe"

	gl "github.com/go-gl/gl/v4.3-core/gl"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// enableDebugOutput routes driver messages of low severity and above into
// log. Notifications are filtered out by the driver.
func enableDebugOutput(log *zap.Logger) {
	log = log.Named("gl")
	gl.Enable(gl.DEBUG_OUTPUT)
	gl.Enable(gl.DEBUG_OUTPUT_SYNCHRONOUS)

	gl.DebugMessageCallback(func(source, gltype, id, severity uint32, _ int32, message string, _ unsafe.Pointer) {
		if ce := log.Check(debugLevel(severity), message); ce != nil {
			ce.Write(
				zap.String("source", debugSource(source)),
				zap.String("type", debugType(gltype)),
				zap.Uint32("id", id))
		}
	}, nil)

	gl.DebugMessageControl(gl.DONT_CARE, gl.DONT_CARE, gl.DONT_CARE, 0, nil, false)
	for _, severity := range []uint32{gl.DEBUG_SEVERITY_LOW, gl.DEBUG_SEVERITY_MEDIUM, gl.DEBUG_SEVERITY_HIGH} {
		gl.DebugMessageControl(gl.DONT_CARE, gl.DONT_CARE, severity, 0, nil, true)
	}
	log.Debug("debug output enabled")
}

func debugLevel(severity uint32) zapcore.Level {
	switch severity {
	case gl.DEBUG_SEVERITY_HIGH:
		return zapcore.ErrorLevel
	case gl.DEBUG_SEVERITY_MEDIUM:
		return zapcore.WarnLevel
	case gl.DEBUG_SEVERITY_LOW:
		return zapcore.InfoLevel
	}
	return zapcore.DebugLevel
}

func debugSource(source uint32) string {
	switch source {
	case gl.DEBUG_SOURCE_API:
		return "api"
	case gl.DEBUG_SOURCE_WINDOW_SYSTEM:
		return "window_system"
	case gl.DEBUG_SOURCE_SHADER_COMPILER:
		return "shader_compiler"
	case gl.DEBUG_SOURCE_THIRD_PARTY:
		return "third_party"
	case gl.DEBUG_SOURCE_APPLICATION:
		return "application"
	}
	return "other"
}

func debugType(gltype uint32) string {
	switch gltype {
	case gl.DEBUG_TYPE_ERROR:
		return "error"
	case gl.DEBUG_TYPE_DEPRECATED_BEHAVIOR:
		return "deprecated"
	case gl.DEBUG_TYPE_UNDEFINED_BEHAVIOR:
		return "undefined"
	case gl.DEBUG_TYPE_PORTABILITY:
		return "portability"
	case gl.DEBUG_TYPE_PERFORMANCE:
		return "performance"
	case gl.DEBUG_TYPE_MARKER:
		return "marker"
	}
	return "other"
}
