// File: internal/roster/roster.go
package roster

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/xkilldash9x/slotrunner/api/schemas"
	"github.com/xkilldash9x/slotrunner/internal/config"
	"go.uber.org/zap"
)

// ErrDataFormat marks a roster that cannot be used at all. It aborts the run.
var ErrDataFormat = errors.New("roster data format error")

// Separator splits the fields of one roster line.
const Separator = "|"

// FieldNames labels the positional fields, in order.
var FieldNames = []string{"name", "day", "month", "year", "phone", "email", "national_id"}

// ParseLine turns one roster line into a profile. Segments are trimmed,
// missing trailing segments become empty strings and extra segments are ignored.
func ParseLine(line string) schemas.Profile {
	var f [7]string
	for i, seg := range strings.SplitN(line, Separator, len(f)+1) {
		if i >= len(f) {
			break
		}
		f[i] = strings.TrimSpace(seg)
	}
	return schemas.Profile{
		Name:       f[0],
		Day:        f[1],
		Month:      f[2],
		Year:       f[3],
		Phone:      f[4],
		Email:      f[5],
		NationalID: f[6],
	}
}

// Parse reads every non-blank line from r. A roster without records is an ErrDataFormat.
func Parse(r io.Reader) ([]schemas.Profile, error) {
	br := bufio.NewReader(r)
	var (
		profiles []schemas.Profile
		lineNo   int
	)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			lineNo++
			if strings.TrimSpace(line) != "" {
				p := ParseLine(strings.TrimRight(line, "\r\n"))
				p.Line = lineNo
				profiles = append(profiles, p)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read failed after line %d: %v", ErrDataFormat, lineNo, err)
		}
	}
	if len(profiles) == 0 {
		return nil, fmt.Errorf("%w: no records found", ErrDataFormat)
	}
	return profiles, nil
}

// Load opens and parses the roster at path. A leading ~ is expanded to the home directory.
func Load(path string) ([]schemas.Profile, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid path %q: %v", ErrDataFormat, path, err)
	}
	f, err := os.Open(expanded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataFormat, err)
	}
	defer f.Close()

	profiles, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", expanded, err)
	}
	return profiles, nil
}

// Missing lists the names of the empty fields of p.
func Missing(p schemas.Profile) []string {
	var missing []string
	for i, v := range p.Fields() {
		if v == "" {
			missing = append(missing, FieldNames[i])
		}
	}
	return missing
}

// Apply enforces the incomplete-record policy. Incomplete records are never
// passed through silently: submit and skip both log a warning per record.
func Apply(profiles []schemas.Profile, policy config.IncompletePolicy, logger *zap.Logger) ([]schemas.Profile, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	kept := make([]schemas.Profile, 0, len(profiles))
	for _, p := range profiles {
		missing := Missing(p)
		if len(missing) == 0 {
			kept = append(kept, p)
			continue
		}
		fields := []zap.Field{
			zap.Int("line", p.Line),
			zap.String("profile", p.Name),
			zap.Strings("missing", missing),
		}
		switch policy {
		case config.IncompleteSubmit:
			logger.Warn("Incomplete roster record will be submitted with blank fields.", fields...)
			kept = append(kept, p)
		case config.IncompleteSkip:
			logger.Warn("Skipping incomplete roster record.", fields...)
		case config.IncompleteReject:
			return nil, fmt.Errorf("%w: line %d is missing %s", ErrDataFormat, p.Line, strings.Join(missing, ", "))
		default:
			return nil, fmt.Errorf("unknown incomplete-record policy %q", policy)
		}
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("%w: no complete records left after applying policy %q", ErrDataFormat, policy)
	}
	return kept, nil
}
