package utils

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/mdobak/go-xerrors"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger     *slog.Logger
	loggerOnce sync.Once
)

type stackFrame struct {
	Func   string `json:"func"`
	Source string `json:"source"`
	Line   int    `json:"line"`
}

// GetLogger returns the process-wide structured logger.
//
// Output goes to stdout; when LOG_FILE is set it is mirrored into a rotating
// file. APP_ENV=production switches to the JSON handler.
func GetLogger() *slog.Logger {
	loggerOnce.Do(func() {
		logger = slog.New(newHandler(logWriter()))
	})
	return logger
}

func logWriter() io.Writer {
	path := GetEnv("LOG_FILE", "")
	if path == "" {
		return os.Stdout
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := CreateFolder(dir); err != nil {
			return os.Stdout
		}
	}
	return io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename:   path,
		LocalTime:  true,
		Compress:   true,
		MaxSize:    50,
		MaxAge:     7,
		MaxBackups: 3,
	})
}

func newHandler(w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:       logLevel(GetEnv("LOG_LEVEL", "info")),
		ReplaceAttr: replaceAttr,
	}
	if GetEnv("APP_ENV", "development") == "production" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindAny {
		if err, ok := a.Value.Any().(error); ok {
			a.Value = fmtErr(err)
		}
	}
	return a
}

// fmtErr expands an error into a group with `msg` and, for errors created
// through xerrors, a `trace` of the captured stack.
func fmtErr(err error) slog.Value {
	var groupValues []slog.Attr
	groupValues = append(groupValues, slog.String("msg", err.Error()))

	if frames := marshalStack(err); frames != nil {
		groupValues = append(groupValues, slog.Any("trace", frames))
	}

	return slog.GroupValue(groupValues...)
}

func marshalStack(err error) []stackFrame {
	trace := xerrors.StackTrace(err)
	if len(trace) == 0 {
		return nil
	}

	frames := trace.Frames()
	s := make([]stackFrame, len(frames))
	for i, v := range frames {
		s[i] = stackFrame{
			Source: filepath.Join(filepath.Base(filepath.Dir(v.File)), filepath.Base(v.File)),
			Func:   filepath.Base(v.Function),
			Line:   v.Line,
		}
	}

	return s
}
