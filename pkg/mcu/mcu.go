// Package mcu classifies whether the firmware of the paired microcontrollers fits the running slot.
package mcu

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	log "github.com/sirupsen/logrus"
)

type Compatibility int

const (
	Compatible Compatibility = iota
	// RecoverablyIncompatible means the expected firmware waits in the secondary slot
	// and a reboot activates it.
	RecoverablyIncompatible
	FatallyIncompatible
)

func (c Compatibility) String() string {
	switch c {
	case Compatible:
		return "compatible"
	case RecoverablyIncompatible:
		return "recoverably-incompatible"
	case FatallyIncompatible:
		return "fatally-incompatible"
	default:
		return fmt.Sprintf("compatibility(%d)", int(c))
	}
}

var ErrNoVersionInfo = errors.New("no microcontroller version information")

// Classifier queries the microcontrollers.
type Classifier interface {
	Classify(ctx context.Context) (Compatibility, error)
}

// Board holds the firmware versions of one microcontroller board.
type Board struct {
	Name      string
	Current   string
	Secondary string
}

// ParseInfo extracts board versions from the output of the mcu utility's info command.
func ParseInfo(out string) ([]Board, error) {
	var boards []Board
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(strings.TrimRight(sc.Text(), "\r"))
		switch {
		case strings.HasSuffix(line, "board:"):
			boards = append(boards, Board{Name: boardName(line)})
		case strings.HasPrefix(line, "current image:") && len(boards) > 0:
			boards[len(boards)-1].Current = extractVersion(strings.TrimPrefix(line, "current image:"))
		case strings.HasPrefix(line, "secondary slot:") && len(boards) > 0:
			boards[len(boards)-1].Secondary = extractVersion(strings.TrimPrefix(line, "secondary slot:"))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(boards) == 0 {
		return nil, ErrNoVersionInfo
	}
	return boards, nil
}

// boardName turns "🚜 Main board:" into "main".
func boardName(line string) string {
	fields := strings.Fields(strings.TrimSuffix(line, "board:"))
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[len(fields)-1])
}

// extractVersion turns " v3.2.15-0x5133a47a (prod)" into "3.2.15".
func extractVersion(v string) string {
	fields := strings.Fields(v)
	if len(fields) == 0 {
		return ""
	}
	version, _, _ := strings.Cut(fields[0], "-")
	return strings.TrimPrefix(version, "v")
}

// Classify compares boards against the expected versions keyed by board name.
// Boards without an expectation are ignored.
func Classify(boards []Board, expected map[string]string) (Compatibility, error) {
	result := Compatible
	for name, want := range expected {
		want = strings.TrimPrefix(want, "v")
		var board *Board
		for i := range boards {
			if boards[i].Name == name {
				board = &boards[i]
			}
		}
		switch {
		case board == nil || board.Current == "":
			return FatallyIncompatible, fmt.Errorf("%w for %s board", ErrNoVersionInfo, name)
		case board.Current == want:
			log.Debugf("%s board runs expected version %s", name, want)
		case board.Secondary == want:
			log.Warnf("%s board runs %s, expected %s is in the secondary slot", name, board.Current, want)
			result = max(result, RecoverablyIncompatible)
		default:
			log.Errorf("%s board runs %s, expected %s", name, board.Current, want)
			result = FatallyIncompatible
		}
	}
	return result, nil
}

// CommandClassifier runs an external utility and classifies its output.
type CommandClassifier struct {
	Command  []string
	Expected map[string]string
}

func (c *CommandClassifier) Classify(ctx context.Context) (Compatibility, error) {
	if len(c.Command) == 0 {
		return FatallyIncompatible, errors.New("no mcu query command configured")
	}
	cmd := exec.CommandContext(ctx, c.Command[0], c.Command[1:]...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return FatallyIncompatible, fmt.Errorf("failed to run %q: %w: %s", c.Command, err, stderr.String())
	}
	boards, err := ParseInfo(string(out))
	if err != nil {
		return FatallyIncompatible, err
	}
	return Classify(boards, c.Expected)
}
