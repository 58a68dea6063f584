package logger

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/Additional-Code/pawnshop/internal/config"
)

func TestBuildHonoursLevel(t *testing.T) {
	tests := []struct {
		level    string
		encoding string
		debug    bool
		warn     bool
	}{
		{"debug", "json", true, true},
		{"warn", "console", false, true},
		{"loud", "json", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.encoding, func(t *testing.T) {
			l, err := Build(config.Observability{LogLevel: tt.level, LogEncoding: tt.encoding, ServiceName: "pawnshop"})
			require.NoError(t, err)
			assert.Equal(t, tt.debug, l.Core().Enabled(zapcore.DebugLevel))
			assert.Equal(t, tt.warn, l.Core().Enabled(zapcore.WarnLevel))
		})
	}
}

func TestIgnoreSyncErr(t *testing.T) {
	assert.NoError(t, ignoreSyncErr(nil))
	assert.NoError(t, ignoreSyncErr(fmt.Errorf("sync /dev/stdout: %w", syscall.EINVAL)))
	assert.Error(t, ignoreSyncErr(errors.New("disk full")))
}
