// Copyright 2026 The medswitch Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package logging configures the shared logrus instance used across the
// routing core. It provides a compact bracketed formatter and optional
// rotating file output.
package logging

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	setupOnce sync.Once
	writerMu  sync.Mutex
	logWriter *lumberjack.Logger
)

// Formatter defines a custom log format for logrus.
// Format: [2026-08-24 10:12:03] [a1b2c3d4] [info ] [executor.go:88] dispatching model claude-sonnet
type Formatter struct{}

// Format renders a single log entry. Extra fields are appended sorted by
// key so repeated runs diff cleanly.
func (m *Formatter) Format(entry *log.Entry) ([]byte, error) {
	b := entry.Buffer
	if b == nil {
		b = &bytes.Buffer{}
	}

	reqID := "--------"
	if id, ok := entry.Data["request_id"].(string); ok && id != "" {
		reqID = id
	}
	level := entry.Level.String()
	if level == "warning" {
		level = "warn"
	}

	fmt.Fprintf(b, "[%s] [%s] [%-5s]", entry.Time.Format("2006-01-02 15:04:05"), reqID, level)
	if entry.Caller != nil {
		fmt.Fprintf(b, " [%s:%d]", filepath.Base(entry.Caller.File), entry.Caller.Line)
	}
	b.WriteByte(' ')
	b.WriteString(strings.TrimRight(entry.Message, "\r\n"))

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		if k != "request_id" {
			keys = append(keys, k)
		}
	}
	if len(keys) > 0 {
		sort.Strings(keys)
		b.WriteString(" |")
		for _, k := range keys {
			fmt.Fprintf(b, " %s=%v", k, entry.Data[k])
		}
	}
	b.WriteByte('\n')

	return b.Bytes(), nil
}

// Setup configures the shared logrus instance.
// It is safe to call multiple times; initialization happens only once.
func Setup(debug bool) {
	setupOnce.Do(func() {
		log.SetReportCaller(true)
		log.SetFormatter(&Formatter{})
	})
	if debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

// EnableFileLogging redirects log output to a rotating file under dir.
// Rotation keeps at most maxTotalSizeMB megabytes per file with a small
// number of backups, matching a long-running single-process deployment.
func EnableFileLogging(dir string, maxTotalSizeMB int) {
	writerMu.Lock()
	defer writerMu.Unlock()

	if maxTotalSizeMB <= 0 {
		maxTotalSizeMB = 100
	}
	logWriter = &lumberjack.Logger{
		Filename:   filepath.Join(dir, "medswitch.log"),
		MaxSize:    maxTotalSizeMB,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
	log.SetOutput(logWriter)
}

// CloseFileLogging flushes and closes the rotating log writer, if any.
func CloseFileLogging() {
	writerMu.Lock()
	defer writerMu.Unlock()
	if logWriter != nil {
		_ = logWriter.Close()
		logWriter = nil
	}
}
