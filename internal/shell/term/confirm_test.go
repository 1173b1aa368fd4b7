package term

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTerminalConfirmerYes(t *testing.T) {
	var out bytes.Buffer
	c := NewTerminalConfirmer(strings.NewReader("y\n"), &out)

	ok, err := c.Confirm("free port 80?", false)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, out.String(), "[y/N]")
}

func TestTerminalConfirmerNo(t *testing.T) {
	c := NewTerminalConfirmer(strings.NewReader("no\n"), &bytes.Buffer{})

	ok, err := c.Confirm("overwrite data?", true)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTerminalConfirmerBareEnterTakesDefault(t *testing.T) {
	c := NewTerminalConfirmer(strings.NewReader("\n"), &bytes.Buffer{})

	ok, err := c.Confirm("continue?", true)
	require.NoError(t, err)
	assert.True(t, ok)

	c = NewTerminalConfirmer(strings.NewReader("\n"), &bytes.Buffer{})
	ok, err = c.Confirm("continue?", false)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTerminalConfirmerRepromptsOnGarbage(t *testing.T) {
	var out bytes.Buffer
	c := NewTerminalConfirmer(strings.NewReader("maybe\nyes\n"), &out)

	ok, err := c.Confirm("continue?", false)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, out.String(), "please answer y or n")
}

func TestTerminalConfirmerEOFTakesDefault(t *testing.T) {
	c := NewTerminalConfirmer(strings.NewReader(""), &bytes.Buffer{})

	ok, err := c.Confirm("continue?", false)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStaticConfirmer(t *testing.T) {
	ok, err := StaticConfirmer{Answer: true}.Confirm("anything", false)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = StaticConfirmer{Answer: false}.Confirm("anything", true)
	require.NoError(t, err)
	assert.False(t, ok)
}
