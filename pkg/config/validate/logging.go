package validate

import (
	"fmt"
	"os"
	"path/filepath"
)

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"console", "json"}
)

// Logging checks the logging section. The output file's directory must
// exist because the logger opens the file before the session starts.
func Logging(level, format, outputFile string) []error {
	var errs []error
	if !oneOf(level, logLevels) {
		errs = append(errs, ValidationError{
			Path:    "logging.level",
			Message: fmt.Sprintf("unknown level %q", level),
			Hint:    fmt.Sprintf("one of %v", logLevels),
		})
	}
	if !oneOf(format, logFormats) {
		errs = append(errs, ValidationError{
			Path:    "logging.format",
			Message: fmt.Sprintf("unknown format %q", format),
			Hint:    fmt.Sprintf("one of %v", logFormats),
		})
	}
	if outputFile != "" {
		dir := filepath.Dir(outputFile)
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			errs = append(errs, ValidationError{
				Path:    "logging.output_file",
				Message: fmt.Sprintf("directory %s does not exist", dir),
			})
		} else if err := Writable(dir); err != nil {
			errs = append(errs, ValidationError{Path: "logging.output_file", Message: err.Error()})
		}
	}
	return errs
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
