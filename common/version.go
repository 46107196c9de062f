package common

import (
	_ "embed"
	"strings"
)

//go:embed version.txt
var version string

// Version returns the release version of the slotupdate tools.
func Version() string {
	return strings.TrimSpace(version)
}
