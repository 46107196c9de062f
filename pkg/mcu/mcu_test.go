package mcu

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func infoOutput(main, mainSecondary, sec string) string {
	return fmt.Sprintf("🔮 Orb info:\r\n"+
		"revision:       EVT3\r\n"+
		"🚜 Main board:\r\n"+
		"\tcurrent image:\tv%s-0x12345678 (prod)\r\n"+
		"\tsecondary slot:\tv%s-0x0 (dev)\r\n"+
		"🔐 Security board:\r\n"+
		"\tcurrent image:\tv%s-0x87654321 (prod)\r\n"+
		"\tsecondary slot:\tunused?\r\n"+
		"\tbattery charge: 100%%\r\n", main, mainSecondary, sec)
}

func TestParseInfo(t *testing.T) {
	boards, err := ParseInfo(infoOutput("3.2.15", "3.3.0", "1.0.3"))
	require.NoError(t, err)
	assert.Equal(t, []Board{
		{Name: "main", Current: "3.2.15", Secondary: "3.3.0"},
		{Name: "security", Current: "1.0.3", Secondary: "unused?"},
	}, boards)

	_, err = ParseInfo("")
	assert.ErrorIs(t, err, ErrNoVersionInfo)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		output   string
		expected map[string]string
		want     Compatibility
		wantErr  bool
	}{
		{
			name:     "all match",
			output:   infoOutput("3.2.15", "3.1.0", "1.0.3"),
			expected: map[string]string{"main": "v3.2.15", "security": "1.0.3"},
			want:     Compatible,
		},
		{
			name:     "expected in secondary slot",
			output:   infoOutput("3.1.0", "3.2.15", "1.0.3"),
			expected: map[string]string{"main": "3.2.15", "security": "1.0.3"},
			want:     RecoverablyIncompatible,
		},
		{
			name:     "fatal wins over recoverable",
			output:   infoOutput("3.1.0", "3.2.15", "0.9.0"),
			expected: map[string]string{"main": "3.2.15", "security": "1.0.3"},
			want:     FatallyIncompatible,
		},
		{
			name:     "no expectations",
			output:   infoOutput("3.1.0", "3.2.15", "0.9.0"),
			expected: nil,
			want:     Compatible,
		},
		{
			name:     "missing board",
			output:   "🚜 Main board:\r\n\tcurrent image:\tv1.0.0-0x1 (prod)\r\n",
			expected: map[string]string{"security": "1.0.3"},
			want:     FatallyIncompatible,
			wantErr:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			boards, err := ParseInfo(tt.output)
			require.NoError(t, err)
			got, err := Classify(boards, tt.expected)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCommandClassifier(t *testing.T) {
	c := &CommandClassifier{
		Command:  []string{"printf", "%s", infoOutput("2.0.0", "2.1.0", "1.0.0")},
		Expected: map[string]string{"main": "2.1.0"},
	}
	got, err := c.Classify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RecoverablyIncompatible, got)

	failing := &CommandClassifier{Command: []string{"false"}}
	got, err = failing.Classify(context.Background())
	assert.Error(t, err)
	assert.Equal(t, FatallyIncompatible, got)

	_, err = (&CommandClassifier{}).Classify(context.Background())
	assert.Error(t, err)
}
