package logger

import "testing"

func TestShouldOutput(t *testing.T) {
	tests := []struct {
		name      string
		verbosity int
		category  OutputCategory
		want      bool
	}{
		{"results always shown", VerbosityUser, OutputResults, true},
		{"errors always shown", VerbosityUser, OutputErrors, true},
		{"startup hidden at default", VerbosityUser, OutputStartup, false},
		{"startup shown at -v", VerbosityInfo, OutputStartup, true},
		{"config hidden at -v", VerbosityInfo, OutputConfig, false},
		{"config shown at -vv", VerbosityDebug, OutputConfig, true},
		{"sql hidden at -vv", VerbosityDebug, OutputSQLQueries, false},
		{"sql shown at -vvv", VerbosityTrace, OutputSQLQueries, true},
		{"bodies only at -vvvv", VerbosityTrace, OutputResponseBody, false},
		{"bodies shown at -vvvv", VerbosityAll, OutputResponseBody, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldOutput(tt.verbosity, tt.category); got != tt.want {
				t.Errorf("ShouldOutput(%d, %s) = %v, want %v",
					tt.verbosity, CategoryName(tt.category), got, tt.want)
			}
		})
	}
}

func TestEnabledCategoriesGrowWithVerbosity(t *testing.T) {
	prev := 0
	for v := VerbosityUser; v <= VerbosityAll; v++ {
		n := len(EnabledCategories(v))
		if n <= prev && v > VerbosityUser {
			t.Errorf("verbosity %d enables %d categories, want more than %d", v, n, prev)
		}
		prev = n
	}
}
