package config

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"

	"csvtopg/internal/parser/csv"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced to users but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding.
//
// Path is a dotted path into the config (e.g. "storage.dsn").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has error severity.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// knownStorageKinds are the backends compiled into the binary. An unknown
// kind is a warning here and fails at open time.
var knownStorageKinds = map[string]struct{}{
	"postgres": {},
	"sqlite":   {},
	"mssql":    {},
	"mysql":    {},
}

var knownMetricsBackends = map[string]struct{}{
	"":            {},
	"none":        {},
	"pushgateway": {},
	"datadog":     {},
}

// logLevels maps the accepted level names to zap level names.
var logLevels = map[string]string{
	"CRITICAL": "error",
	"ERROR":    "error",
	"WARNING":  "warn",
	"WARN":     "warn",
	"INFO":     "info",
	"DEBUG":    "debug",
	"NOTSET":   "debug",
}

// ZapLevel converts a configured level name (case-insensitive) to a zap
// level name.
func ZapLevel(name string) (string, error) {
	if lvl, ok := logLevels[strings.ToUpper(strings.TrimSpace(name))]; ok {
		return lvl, nil
	}
	return "", errors.Newf("Unknown log level: %q.", name)
}

// Validate performs static validation of c and returns every issue found.
// It does not touch the filesystem or the network.
func (c Config) Validate() []Issue {
	var issues []Issue
	issues = append(issues, validateInput(c.Input)...)
	issues = append(issues, validatePolicy(c.Policy)...)
	issues = append(issues, validateStorage(c.Storage)...)
	if c.Runtime.ChannelCapacity < 1 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.channel_capacity",
			Message:  fmt.Sprintf("must be at least 1 (got %d)", c.Runtime.ChannelCapacity),
		})
	}
	if _, err := ZapLevel(c.Logging.Level); err != nil {
		issues = append(issues, Issue{Severity: SeverityError, Path: "logging.level", Message: err.Error()})
	}
	issues = append(issues, validateMetrics(c.Metrics)...)
	return issues
}

// Err folds the error-severity issues into one error, or returns nil.
func (c Config) Err() error {
	var msgs []string
	for _, iss := range c.Validate() {
		if iss.Severity == SeverityError {
			msgs = append(msgs, iss.Message)
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	return errors.Newf("Invalid configuration:\n%s", strings.Join(msgs, "\n"))
}

func validateInput(in Input) []Issue {
	var issues []Issue
	if strings.TrimSpace(in.Path) == "" {
		issues = append(issues, Issue{Severity: SeverityError, Path: "input.path", Message: "Missing input CSV file path."})
	}
	if in.Offset < 0 {
		issues = append(issues, Issue{Severity: SeverityError, Path: "input.offset", Message: "offset must not be negative"})
	}
	if in.ChunkSize < 1 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "input.chunk_size",
			Message:  fmt.Sprintf("must be at least 1 (got %d)", in.ChunkSize),
		})
	}
	if in.LineSep == "" {
		issues = append(issues, Issue{Severity: SeverityError, Path: "input.line_sep", Message: "line separator must not be empty"})
	}
	if _, err := csv.NewCharset(in.Encoding, in.EncodingErrors); err != nil {
		issues = append(issues, Issue{Severity: SeverityError, Path: "input.encoding", Message: err.Error()})
	}
	if _, err := in.Dialect(); err != nil {
		issues = append(issues, Issue{Severity: SeverityError, Path: "input.delimiter", Message: err.Error()})
	}
	return issues
}

func validatePolicy(p Policy) []Issue {
	var issues []Issue
	if _, err := csv.ParsePolicy(p.OnEmptyLine); err != nil {
		issues = append(issues, Issue{Severity: SeverityError, Path: "policy.on_empty_line", Message: err.Error()})
	}
	if _, err := csv.ParsePolicy(p.OnWrongLength); err != nil {
		issues = append(issues, Issue{Severity: SeverityError, Path: "policy.on_wrong_length", Message: err.Error()})
	}
	return issues
}

func validateStorage(s Storage) []Issue {
	var issues []Issue
	if strings.TrimSpace(s.DSN) == "" {
		issues = append(issues, Issue{Severity: SeverityError, Path: "storage.dsn", Message: "Missing database connection string."})
	}
	if strings.TrimSpace(s.Table) == "" {
		issues = append(issues, Issue{Severity: SeverityError, Path: "storage.table", Message: "table must not be empty"})
	}
	if _, ok := knownStorageKinds[s.Kind]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "storage.kind",
			Message:  fmt.Sprintf("unknown storage kind %q", s.Kind),
		})
	}
	if s.ConnectTimeout < 0 {
		issues = append(issues, Issue{Severity: SeverityError, Path: "storage.connect_timeout", Message: "must not be negative"})
	}
	return issues
}

func validateMetrics(m Metrics) []Issue {
	var issues []Issue
	if _, ok := knownMetricsBackends[m.Backend]; !ok {
		return append(issues, Issue{
			Severity: SeverityError,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unknown metrics backend %q", m.Backend),
		})
	}
	if m.Backend == "pushgateway" && m.PushgatewayURL == "" {
		issues = append(issues, Issue{Severity: SeverityError, Path: "metrics.pushgateway_url", Message: "required for the pushgateway backend"})
	}
	if m.Backend == "datadog" && m.DatadogAddr == "" {
		issues = append(issues, Issue{Severity: SeverityError, Path: "metrics.datadog_addr", Message: "required for the datadog backend"})
	}
	return issues
}

// Dialect converts the single-character settings to a csv.Dialect.
func (in Input) Dialect() (csv.Dialect, error) {
	delim, err := oneRune("delimiter", in.Delimiter, false)
	if err != nil {
		return csv.Dialect{}, err
	}
	quote, err := oneRune("quote", in.Quote, false)
	if err != nil {
		return csv.Dialect{}, err
	}
	esc, err := oneRune("escape", in.Escape, true)
	if err != nil {
		return csv.Dialect{}, err
	}
	if delim == quote || (esc != 0 && (esc == delim || esc == quote)) {
		return csv.Dialect{}, errors.New("delimiter, quote and escape must differ")
	}
	if delim == '\r' || delim == '\n' || quote == '\r' || quote == '\n' {
		return csv.Dialect{}, errors.New("delimiter and quote must not be line breaks")
	}
	return csv.Dialect{Delimiter: delim, Quote: quote, Escape: esc, LazyQuotes: in.LazyQuotes}, nil
}

func oneRune(name, s string, optional bool) (rune, error) {
	if s == "" && optional {
		return 0, nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, errors.Newf("%s must be a single character (got %q)", name, s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

// ReaderOptions resolves the input and policy sections into csv.Options.
func (c Config) ReaderOptions() (csv.Options, error) {
	d, err := c.Input.Dialect()
	if err != nil {
		return csv.Options{}, err
	}
	cs, err := csv.NewCharset(c.Input.Encoding, c.Input.EncodingErrors)
	if err != nil {
		return csv.Options{}, err
	}
	onEmpty, err := csv.ParsePolicy(c.Policy.OnEmptyLine)
	if err != nil {
		return csv.Options{}, errors.Wrap(err, "policy.on_empty_line")
	}
	onWrong, err := csv.ParsePolicy(c.Policy.OnWrongLength)
	if err != nil {
		return csv.Options{}, errors.Wrap(err, "policy.on_wrong_length")
	}
	return csv.Options{Dialect: d, Charset: cs, OnEmptyLine: onEmpty, OnWrongLength: onWrong}, nil
}
