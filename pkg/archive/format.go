package archive

import (
	"fmt"
	"strings"

	"github.com/paulschiretz/pgl-cloudbackup/pkg/util"
)

// Format represents the archive container format.
type Format string

const (
	Zip    Format = "zip"
	TarGz  Format = "tar.gz"
	TarZst Format = "tar.zst"
)

var formatToString = map[Format]string{
	Zip:    "zip",
	TarGz:  "tar.gz",
	TarZst: "tar.zst",
}

var stringToFormat map[string]Format

func init() {
	stringToFormat = util.InvertMap(formatToString)
}

func (f Format) String() string {
	if str, ok := formatToString[f]; ok {
		return str
	}
	return fmt.Sprintf("unknown_archive_format(%s)", string(f))
}

// Extension returns the file extension including the leading dot, e.g. ".tar.gz".
func (f Format) Extension() string {
	return "." + f.String()
}

func ParseFormat(s string) (Format, error) {
	if format, ok := stringToFormat[s]; ok {
		return format, nil
	}
	return "", fmt.Errorf("invalid archive format: %q. Must be 'zip', 'tar.gz', or 'tar.zst'", s)
}

// TrimExtension strips a known archive extension from name. The second result
// reports whether one was found.
func TrimExtension(name string) (string, bool) {
	// Longest first so ".tar.gz" is not mistaken for a bare ".gz".
	for _, f := range []Format{TarZst, TarGz, Zip} {
		if base, ok := strings.CutSuffix(name, f.Extension()); ok {
			return base, true
		}
	}
	return name, false
}
