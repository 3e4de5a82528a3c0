package logging

import (
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatRendersRequestIDAndSortedFields(t *testing.T) {
	entry := &log.Entry{
		Time:    time.Date(2026, 8, 24, 10, 12, 3, 0, time.UTC),
		Level:   log.WarnLevel,
		Message: "dispatch failed\n",
		Data:    log.Fields{"request_id": "a1b2c3d4", "model": "m-a", "hops": 2},
	}

	out, err := (&Formatter{}).Format(entry)
	require.NoError(t, err)
	line := string(out)

	assert.True(t, strings.HasPrefix(line, "[2026-08-24 10:12:03] [a1b2c3d4] [warn ]"))
	assert.Contains(t, line, "dispatch failed | hops=2 model=m-a")
	assert.NotContains(t, line, "request_id=")
	assert.True(t, strings.HasSuffix(line, "\n"))
}

func TestFormatWithoutFields(t *testing.T) {
	entry := &log.Entry{
		Time:    time.Date(2026, 8, 24, 10, 12, 3, 0, time.UTC),
		Level:   log.InfoLevel,
		Message: "ready",
	}

	out, err := (&Formatter{}).Format(entry)
	require.NoError(t, err)
	line := string(out)

	assert.Contains(t, line, "[--------]")
	assert.Contains(t, line, "[info ]")
	assert.True(t, strings.HasSuffix(line, "ready\n"))
	assert.NotContains(t, line, "|")
}
