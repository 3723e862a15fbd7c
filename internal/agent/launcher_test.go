package agent

import (
	"bufio"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLaunchConfig_Resolve(t *testing.T) {
	t.Run("cli auth", func(t *testing.T) {
		name, args, env := LaunchConfig{UseCLIAuth: true}.Resolve()
		if runtime.GOOS == "windows" {
			assert.Equal(t, "npx.cmd", name)
		} else {
			assert.Equal(t, "npx", name)
		}
		assert.Equal(t, []string{"acp-claude-code"}, args)
		assert.Equal(t, []string{"ACP_PERMISSION_MODE=acceptEdits"}, env)
	})

	t.Run("direct", func(t *testing.T) {
		name, args, env := LaunchConfig{}.Resolve()
		assert.Equal(t, "claude-code-acp", name)
		assert.Empty(t, args)
		assert.Empty(t, env)
	})

	t.Run("override", func(t *testing.T) {
		name, args, env := LaunchConfig{
			UseCLIAuth:     true,
			Command:        "my-agent",
			Args:           []string{"--acp"},
			PermissionMode: "plan",
			Env:            []string{"FOO=bar"},
		}.Resolve()
		assert.Equal(t, "my-agent", name)
		assert.Equal(t, []string{"--acp"}, args)
		assert.Equal(t, []string{"FOO=bar", "ACP_PERMISSION_MODE=plan"}, env)
	})
}

func TestProcess_StartAndClose(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires cat")
	}
	p, err := LaunchConfig{Command: "cat"}.Start(t.TempDir())
	require.NoError(t, err)
	assert.Positive(t, p.PID())

	_, err = p.Stdin.Write([]byte("{\"ping\":1}\n"))
	require.NoError(t, err)
	line, err := bufio.NewReader(p.Stdout).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "{\"ping\":1}\n", line)

	assert.NoError(t, p.Close())
	<-p.Exited()
	assert.NoError(t, p.Close())
}

func TestProcess_StartMissingCommand(t *testing.T) {
	_, err := LaunchConfig{Command: "pilot-no-such-agent-binary"}.Start(t.TempDir())
	assert.Error(t, err)
}

func TestTailBuffer(t *testing.T) {
	b := &tailBuffer{max: 4}
	_, _ = b.Write([]byte("abc"))
	_, _ = b.Write([]byte("defg"))
	assert.Equal(t, "defg", b.String())
}
