package logger

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// stripANSI removes ANSI color codes from a string for testing
func stripANSI(str string) string {
	ansiRegex := regexp.MustCompile(`\x1b\[[0-9;]*m`)
	return ansiRegex.ReplaceAllString(str, "")
}

// TestMinimalEncoderNeverDiscardsFields ensures the minimal encoder never
// silently discards log fields. Debugging a stuck execution depends on it.
func TestMinimalEncoderNeverDiscardsFields(t *testing.T) {
	encoder := newMinimalEncoder()

	entry := zapcore.Entry{
		Level:      zapcore.InfoLevel,
		Time:       time.Now(),
		LoggerName: "test",
		Message:    "Testing field preservation",
	}

	// Test fields that MUST appear in the output
	testFields := []struct {
		field    zapcore.Field
		mustFind string // What we must find in the output
	}{
		{zap.String("script_id", "scr-main"), "script_id=scr-main"},
		{zap.String("user_id", "u-17"), "user_id=u-17"},
		{zap.Bool("admin", true), "admin=true"},
		{zap.Float64("memory_percent", 80.5), "memory_percent=80.5"},
		{zap.Strings("tokens", []string{"tok1", "tok2"}), "tokens"},

		// Random field names that should NEVER be dropped
		{zap.String("random_field_xyz", "important_data"), "random_field_xyz=important_data"},
		{zap.Int("critical_count", 999), "critical_count=999"},
		{zap.String("error_details", "connection refused"), "error_details=connection refused"},

		// Fields with underscores and dots (edge cases)
		{zap.String("field_with_underscores", "test"), "field_with_underscores=test"},
		{zap.String("field.with.dots", "test2"), "field.with.dots=test2"},

		// Numeric fields
		{zap.Int32("int32_field", 42), "int32_field=42"},
		{zap.Int64("int64_field", 9999999), "int64_field=9999999"},
		{zap.Float32("float32_field", 3.5), "float32_field=3.5"},

		// Boolean fields
		{zap.Bool("success", false), "success=false"},

		// Error fields
		{zap.Error(nil), ""}, // nil error shouldn't crash
		{zap.String("error", "something went wrong"), "error=something went wrong"},

		// Warden's special-cased fields keep their compact formatting
		{zap.String(FieldExecutionID, "exec-9f3"), "exec-9f3"},
		{zap.Int(FieldDurationMS, 42), "42ms"},
		{zap.Int(FieldScanned, 50), "50 scanned"},
	}

	var allFields []zapcore.Field
	for _, tf := range testFields {
		allFields = append(allFields, tf.field)
	}

	buf, err := encoder.EncodeEntry(entry, allFields)
	if err != nil {
		t.Fatalf("Failed to encode entry: %v", err)
	}

	output := buf.String()
	cleanOutput := stripANSI(output)

	missingFields := []string{}
	for _, tf := range testFields {
		if tf.mustFind != "" && !strings.Contains(cleanOutput, tf.mustFind) {
			missingFields = append(missingFields, tf.mustFind)
			t.Errorf("Field was silently discarded from log output: %s", tf.mustFind)
		}
	}

	if len(missingFields) > 0 {
		t.Fatalf("Logger is silently discarding %d fields! Missing: %v\nClean output was: %s",
			len(missingFields), missingFields, cleanOutput)
	}
}

// TestMinimalEncoderFieldCount ensures that every plain field produces a
// key=value pair in the output.
func TestMinimalEncoderFieldCount(t *testing.T) {
	encoder := newMinimalEncoder()

	entry := zapcore.Entry{
		Level:      zapcore.InfoLevel,
		Time:       time.Now(),
		LoggerName: "test",
		Message:    "Field count test",
	}

	fields := []zapcore.Field{
		zap.String("field1", "value1"),
		zap.String("field2", "value2"),
		zap.String("field3", "value3"),
		zap.String("field4", "value4"),
		zap.String("field5", "value5"),
		zap.Int("field6", 6),
		zap.Int("field7", 7),
		zap.Bool("field8", true),
		zap.Float64("field9", 9.9),
		zap.String("field10", "value10"),
	}

	buf, err := encoder.EncodeEntry(entry, fields)
	if err != nil {
		t.Fatalf("Failed to encode: %v", err)
	}

	output := buf.String()

	fieldCount := strings.Count(output, "field1=") +
		strings.Count(output, "field2=") +
		strings.Count(output, "field3=") +
		strings.Count(output, "field4=") +
		strings.Count(output, "field5=") +
		strings.Count(output, "field6=") +
		strings.Count(output, "field7=") +
		strings.Count(output, "field8=") +
		strings.Count(output, "field9=") +
		strings.Count(output, "field10=")

	if fieldCount != 10 {
		t.Errorf("Expected 10 fields in output, but found %d. Output: %s", fieldCount, output)
	}
}

// TestSweepSummaryLogging tests the compact sweep-stats formatting used by
// cleanup pass summaries.
func TestSweepSummaryLogging(t *testing.T) {
	encoder := newMinimalEncoder()

	entry := zapcore.Entry{
		Level:      zapcore.InfoLevel,
		Time:       time.Now(),
		LoggerName: "cleanup",
		Message:    "Sweep completed",
	}

	fields := []zapcore.Field{
		zap.Int(FieldReclaimed, 3),
		zap.Int(FieldRemoved, 2),
		zap.String(FieldSweep, "stale"),
	}

	buf, err := encoder.EncodeEntry(entry, fields)
	if err != nil {
		t.Fatalf("Failed to encode sweep summary: %v", err)
	}

	cleanOutput := stripANSI(buf.String())

	if !strings.Contains(cleanOutput, "(3 reclaimed, 2 removed)") {
		t.Errorf("Sweep stats not formatted: %s", cleanOutput)
	}
	if !strings.Contains(cleanOutput, "sweep=stale") {
		t.Errorf("Sweep name missing: %s", cleanOutput)
	}
}

// TestUnknownFieldTypes tests that the encoder handles all possible field types
// without crashing or silently dropping them
func TestUnknownFieldTypes(t *testing.T) {
	encoder := newMinimalEncoder()

	entry := zapcore.Entry{
		Level:      zapcore.InfoLevel,
		Time:       time.Now(),
		LoggerName: "test",
		Message:    "Testing unknown field types",
	}

	fields := []zapcore.Field{
		zap.Complex128("complex", complex(1.0, 2.0)),
		zap.Complex64("complex64", complex64(complex(3.0, 4.0))),
		zap.Duration("duration", 5*time.Second),
		zap.Time("timestamp", time.Now()),
		zap.Uint("uint", 100),
		zap.Uint8("uint8", 200),
		zap.Uint16("uint16", 30000),
		zap.Uint32("uint32", 4000000),
		zap.Uint64("uint64", 5000000000),
		zap.Uintptr("uintptr", 0xDEADBEEF),
		zap.ByteString("bytes", []byte("hello world")),
		zap.Binary("binary", []byte{0x01, 0x02, 0x03}),
	}

	buf, err := encoder.EncodeEntry(entry, fields)
	if err != nil {
		t.Fatalf("Failed to encode complex types: %v", err)
	}

	cleanOutput := stripANSI(buf.String())

	// Verify that SOME representation of each field appears
	expectedSubstrings := []string{
		"complex",
		"complex64",
		"duration",
		"timestamp",
		"uint",
		"bytes",
		"binary",
	}

	for _, expected := range expectedSubstrings {
		if !strings.Contains(cleanOutput, expected) {
			t.Errorf("Field with key '%s' was completely dropped from output: %s", expected, cleanOutput)
		}
	}
}

// TestLevelBadges verifies WARN/ERROR entries render a level badge while INFO
// stays badge-free.
func TestLevelBadges(t *testing.T) {
	encoder := newMinimalEncoder()

	for _, tc := range []struct {
		level zapcore.Level
		want  string
	}{
		{zapcore.InfoLevel, ""},
		{zapcore.WarnLevel, "WARN"},
		{zapcore.ErrorLevel, "ERROR"},
	} {
		entry := zapcore.Entry{
			Level:      tc.level,
			Time:       time.Now(),
			LoggerName: "monitor",
			Message:    "Runtime unavailable",
		}

		buf, err := encoder.EncodeEntry(entry, nil)
		if err != nil {
			t.Fatalf("Failed to encode: %v", err)
		}
		cleanOutput := stripANSI(buf.String())

		if tc.want == "" {
			if strings.Contains(cleanOutput, "INFO") {
				t.Errorf("INFO entries should not carry a level badge: %s", cleanOutput)
			}
		} else if !strings.Contains(cleanOutput, tc.want) {
			t.Errorf("Expected %s badge in output: %s", tc.want, cleanOutput)
		}
	}
}

// TestAbbreviateName verifies component abbreviation for dotted names.
func TestAbbreviateName(t *testing.T) {
	cases := map[string]string{
		"monitor":         "monitor",
		"dispatch.worker": "d.worker",
		"cleanup.stale":   "c.stale",
	}
	for in, want := range cases {
		if got := abbreviateName(in); got != want {
			t.Errorf("abbreviateName(%q) = %q, want %q", in, got, want)
		}
	}
}
