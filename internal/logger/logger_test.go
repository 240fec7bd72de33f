package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func captureOutput(t *testing.T, level string, format OutputFormat, fn func()) string {
	t.Helper()
	buf := &bytes.Buffer{}
	SetTestOutput(buf)
	defer UnsetTestOutput()

	InitLogger(level, format)
	fn()

	return buf.String()
}

func TestLogger(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		logFn    func()
		contains []string
		excludes []string
	}{
		{
			name:     "info log",
			level:    "info",
			logFn:    func() { Info("catalog opened") },
			contains: []string{"catalog opened", "level=INFO"},
		},
		{
			name:     "debug hidden at info",
			level:    "info",
			logFn:    func() { Debug("merge step") },
			excludes: []string{"merge step"},
		},
		{
			name:     "debug shown at debug",
			level:    "debug",
			logFn:    func() { Debugf("merge step %d", 3) },
			contains: []string{"merge step 3", "level=DEBUG"},
		},
		{
			name:     "warn with fields",
			level:    "warn",
			logFn:    func() { Warn("skipping", Fields{"origin": "www/nginx", "size": 42}) },
			contains: []string{"skipping", "origin=www/nginx", "size=42"},
		},
		{
			name:     "notice",
			level:    "info",
			logFn:    func() { Notice("adding forgotten depends", Fields{"file": "/usr/local/bin/curl"}) },
			contains: []string{"adding forgotten depends", "notice=true", "file=/usr/local/bin/curl"},
		},
		{
			name:     "success",
			level:    "info",
			logFn:    func() { Success("repository updated") },
			contains: []string{"repository updated", "status=success"},
		},
		{
			name:     "error at error level",
			level:    "error",
			logFn:    func() { Errorf("cannot open %s", "repo.sqlite") },
			contains: []string{"cannot open repo.sqlite", "level=ERROR"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := captureOutput(t, tt.level, FormatText, tt.logFn)
			for _, want := range tt.contains {
				assert.Contains(t, out, want)
			}
			for _, notWant := range tt.excludes {
				assert.NotContains(t, out, notWant)
			}
		})
	}
}

func TestJSONFormat(t *testing.T) {
	out := captureOutput(t, "info", FormatJSON, func() {
		InfofWithFields(Fields{"repo": "FreeBSD"}, "fetching %s", "digests.txz")
	})
	assert.Contains(t, out, `"msg":"fetching digests.txz"`)
	assert.Contains(t, out, `"repo":"FreeBSD"`)
}

func TestSetOutputFormatKeepsLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	SetTestOutput(buf)
	defer UnsetTestOutput()

	InitLogger("warn", FormatText)
	SetOutputFormat(FormatJSON)
	Info("dropped")
	Warn("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), `"msg":"kept"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", ParseLevel("Debug").String())
	assert.Equal(t, "WARN", ParseLevel("warning").String())
	assert.Equal(t, "INFO", ParseLevel("bogus").String())
}

func TestGetLoggerInitialisesIfNil(t *testing.T) {
	mu.Lock()
	logger = nil
	mu.Unlock()
	assert.NotNil(t, GetLogger())
}
