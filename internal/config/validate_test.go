package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csvtopg/internal/parser/csv"
)

func validConfig() Config {
	c := Default()
	c.Input.Path = "in.csv"
	c.Storage.DSN = "postgres://localhost/db"
	return c
}

func paths(issues []Issue) []string {
	var out []string
	for _, iss := range issues {
		out = append(out, iss.Path)
	}
	return out
}

func TestValidate_Valid(t *testing.T) {
	t.Parallel()
	assert.Empty(t, validConfig().Validate())
	assert.NoError(t, validConfig().Err())
}

func TestValidate_Issues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mutate   func(*Config)
		path     string
		severity IssueSeverity
	}{
		{"missing dsn", func(c *Config) { c.Storage.DSN = "" }, "storage.dsn", SeverityError},
		{"missing path", func(c *Config) { c.Input.Path = " " }, "input.path", SeverityError},
		{"bad level", func(c *Config) { c.Logging.Level = "LOUD" }, "logging.level", SeverityError},
		{"bad policy", func(c *Config) { c.Policy.OnEmptyLine = "yolo" }, "policy.on_empty_line", SeverityError},
		{"bad wrong-length policy", func(c *Config) { c.Policy.OnWrongLength = "shrug" }, "policy.on_wrong_length", SeverityError},
		{"bad encoding", func(c *Config) { c.Input.Encoding = "klingon-8" }, "input.encoding", SeverityError},
		{"bad encoding mode", func(c *Config) { c.Input.EncodingErrors = "maybe" }, "input.encoding", SeverityError},
		{"zero capacity", func(c *Config) { c.Runtime.ChannelCapacity = 0 }, "runtime.channel_capacity", SeverityError},
		{"zero chunk", func(c *Config) { c.Input.ChunkSize = 0 }, "input.chunk_size", SeverityError},
		{"negative offset", func(c *Config) { c.Input.Offset = -1 }, "input.offset", SeverityError},
		{"empty separator", func(c *Config) { c.Input.LineSep = "" }, "input.line_sep", SeverityError},
		{"long delimiter", func(c *Config) { c.Input.Delimiter = ";;" }, "input.delimiter", SeverityError},
		{"delimiter equals quote", func(c *Config) { c.Input.Delimiter = `"` }, "input.delimiter", SeverityError},
		{"empty table", func(c *Config) { c.Storage.Table = "" }, "storage.table", SeverityError},
		{"unknown storage", func(c *Config) { c.Storage.Kind = "oracle" }, "storage.kind", SeverityWarning},
		{"unknown metrics", func(c *Config) { c.Metrics.Backend = "statsd" }, "metrics.backend", SeverityError},
		{"pushgateway without url", func(c *Config) { c.Metrics.Backend = "pushgateway" }, "metrics.pushgateway_url", SeverityError},
		{"datadog without addr", func(c *Config) { c.Metrics.Backend = "datadog" }, "metrics.datadog_addr", SeverityError},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := validConfig()
			tt.mutate(&c)
			issues := c.Validate()
			require.Len(t, issues, 1, "issues: %v", issues)
			assert.Equal(t, tt.path, issues[0].Path)
			assert.Equal(t, tt.severity, issues[0].Severity)
			assert.Equal(t, tt.severity == SeverityError, HasErrors(issues))
		})
	}
}

func TestValidate_MissingEverythingMessages(t *testing.T) {
	t.Parallel()

	c := Default()
	c.Logging.Level = "Loud"
	err := c.Err()
	require.Error(t, err)
	assert.Equal(t,
		"Invalid configuration:\nMissing input CSV file path.\nMissing database connection string.\nUnknown log level: \"Loud\".",
		err.Error())
}

func TestZapLevel(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]string{
		"CRITICAL": "error", "error": "error", "Warning": "warn",
		"INFO": "info", "debug": "debug", "NOTSET": "debug",
	} {
		got, err := ZapLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ZapLevel("TRACE")
	assert.Error(t, err)
}

func TestReaderOptions(t *testing.T) {
	t.Parallel()

	c := validConfig()
	c.Input.Delimiter = ";"
	c.Input.Escape = `\`
	c.Input.Encoding = "latin1"
	c.Policy.OnEmptyLine = "go_for_it_anyway"
	c.Policy.OnWrongLength = "exception"

	opts, err := c.ReaderOptions()
	require.NoError(t, err)
	assert.Equal(t, csv.Dialect{Delimiter: ';', Quote: '"', Escape: '\\'}, opts.Dialect)
	assert.Equal(t, "windows-1252", opts.Charset.Name())
	assert.Equal(t, csv.Ignore, opts.OnEmptyLine)
	assert.Equal(t, csv.Abort, opts.OnWrongLength)
}
