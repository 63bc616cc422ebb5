////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// LogLevel sets level of logging. All logs at the set level and below will be
// displayed (e.g., when log level is ERROR, only ERROR, CRITICAL, and FATAL
// messages will be printed).
//
// Log level options:
//
//	TRACE    - 0
//	DEBUG    - 1
//	INFO     - 2
//	WARN     - 3
//	ERROR    - 4
//	CRITICAL - 5
//	FATAL    - 6
//
// The default log level without updates is INFO.
func LogLevel(threshold jww.Threshold) error {
	if threshold < jww.LevelTrace || threshold > jww.LevelFatal {
		return errors.Errorf("log level is not valid: log level: %d", threshold)
	}

	jww.SetLogThreshold(threshold)
	jww.SetStdoutThreshold(threshold)
	if threshold <= jww.LevelDebug {
		jww.SetFlags(log.LstdFlags | log.Lmicroseconds)
	}

	msg := fmt.Sprintf("Log level set to: %s", threshold)
	switch threshold {
	case jww.LevelTrace, jww.LevelDebug, jww.LevelInfo:
		jww.INFO.Print(msg)
	case jww.LevelWarn:
		jww.WARN.Print(msg)
	case jww.LevelError:
		jww.ERROR.Print(msg)
	case jww.LevelCritical:
		jww.CRITICAL.Print(msg)
	case jww.LevelFatal:
		jww.FATAL.Print(msg)
	}

	return nil
}

// ParseLevel converts a level name (e.g., "debug") or number (e.g., "1") to a
// threshold.
func ParseLevel(level string) (jww.Threshold, error) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "TRACE", "0":
		return jww.LevelTrace, nil
	case "DEBUG", "1":
		return jww.LevelDebug, nil
	case "INFO", "2", "":
		return jww.LevelInfo, nil
	case "WARN", "3":
		return jww.LevelWarn, nil
	case "ERROR", "4":
		return jww.LevelError, nil
	case "CRITICAL", "5":
		return jww.LevelCritical, nil
	case "FATAL", "6":
		return jww.LevelFatal, nil
	}
	return 0, errors.Errorf("unknown log level %q", level)
}

// SetLogOutput sends the log to the file at logPath instead of stdout. An
// empty path or "-" keeps logging to stdout. The returned closer closes the
// file.
func SetLogOutput(logPath string) (io.Closer, error) {
	if logPath == "" || logPath == "-" {
		return io.NopCloser(nil), nil
	}

	logOutput, err :=
		os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open log file %q", logPath)
	}

	// Disable stdout output
	jww.SetStdoutOutput(io.Discard)
	jww.SetLogOutput(logOutput)
	return logOutput, nil
}
