//go:build !windows
// +build !windows

package play

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlay_PlayerDrainsAfterEnd(t *testing.T) {
	tests := []struct {
		name     string
		script   string
		timeout  time.Duration
		wantErr  error
		wantData bool
	}{
		{
			name:     "slow player gets every byte",
			script:   "sleep 0.5; cat > %s",
			timeout:  5 * time.Second,
			wantData: true,
		},
		{
			name:    "failing player is reported",
			script:  "cat > %s; exit 3",
			timeout: 5 * time.Second,
			wantErr: ErrPlayerExited,
		},
		{
			name:    "canceled while draining",
			script:  "sleep 30 # %s",
			timeout: 300 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			origin := newOrigin(t)
			main, _ := newMain(t, origin.URL)

			played := filepath.Join(t.TempDir(), "played.ts")
			main.Element.Output = ""
			main.Element.Binary = "sh"
			main.Element.Args = []string{"-c", fmt.Sprintf(tt.script, played), "player"}

			ctx, cancel := context.WithTimeout(context.Background(), tt.timeout)
			defer cancel()

			start := time.Now()
			err := main.Play(ctx, "42")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}

			if tt.wantData {
				assert.GreaterOrEqual(t, time.Since(start), 500*time.Millisecond)

				data, err := os.ReadFile(played)
				require.NoError(t, err)
				assert.Len(t, data, 2*len(segment))
			}
		})
	}
}
