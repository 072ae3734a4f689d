package flagx

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs(t *testing.T) {
	allowed := []string{"-c", "-config", "-d"}

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "separate value form",
			args: []string{"-c", "conf.json", "-x", "other"},
			want: []string{"-c", "conf.json"},
		},
		{
			name: "equals form",
			args: []string{"-config=alt.json", "-x", "other"},
			want: []string{"-config=alt.json"},
		},
		{
			name: "unknown flags dropped",
			args: []string{"-x", "1", "-y=2", "positional"},
			want: []string{},
		},
		{
			name: "trailing flag without value",
			args: []string{"-c"},
			want: []string{"-c"},
		},
		{
			name: "next flag is not a value",
			args: []string{"-c", "-d", "pos.db"},
			want: []string{"-c", "-d", "pos.db"},
		},
		{
			name: "order and repeats preserved",
			args: []string{"-c", "one.json", "-c", "two.json"},
			want: []string{"-c", "one.json", "-c", "two.json"},
		},
		{
			name: "empty input",
			args: []string{},
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterArgs(tt.args, allowed))
		})
	}
}

func TestJsonConfigFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	t.Run("short form", func(t *testing.T) {
		os.Args = []string{"testbin", "-c", "/path/short.json"}
		assert.Equal(t, "/path/short.json", JsonConfigFlags())
	})

	t.Run("long form", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", "/path/long.json"}
		assert.Equal(t, "/path/long.json", JsonConfigFlags())
	})

	t.Run("absent", func(t *testing.T) {
		os.Args = []string{"testbin", "-x", "1"}
		assert.Empty(t, JsonConfigFlags())
	})

	t.Run("last occurrence wins", func(t *testing.T) {
		os.Args = []string{"testbin", "-c", "/path/1.json", "-config", "/path/2.json"}
		assert.Equal(t, "/path/2.json", JsonConfigFlags())
	})
}
