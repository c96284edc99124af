package core

import (
	"bytes"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestVisualizeBranches(t *testing.T) {
	reg, echoCmd, holdCmd := testCommands(t)
	undo := reg.MustTag("undo", echo)
	h := NewHistory(WithHistoryDebug(true))

	a, _ := h.Append(nil, echoCmd, 1)
	h.Append(nil, holdCmd)
	h.Append(nil, undo)
	assert.Equal(t, nil, h.Checkout(a))
	c, _ := h.Append(nil, echoCmd, 2)
	assert.Equal(t, nil, h.Toggle(c))

	var buf bytes.Buffer
	assert.Equal(t, nil, Visualize(&buf, h))
	assert.Equal(t, "echo (resolve)\n"+
		"├─ hold (open)\n"+
		"│  └─ undo (resolve)\n"+
		"└─ echo (resolve) [disabled]\n", buf.String())
}

func TestRenderTreeEmpty(t *testing.T) {
	var buf bytes.Buffer
	assert.Equal(t, nil, RenderTree(&buf, nil))
	assert.Equal(t, "", buf.String())
	assert.Equal(t, nil, Visualize(&buf, NewHistory()))
	assert.Equal(t, "", buf.String())
}
