package protocol

import (
	"testing"
	"tinking/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandCodec(t *testing.T) {
	cmds := []Command{
		StartSelection{StepIndex: 2, TagType: models.TagLink, OptionIndex: IntPtr(0)},
		StartSelection{StepIndex: 1},
		StopSelection{},
		FindUniqueSelector{Selector: "a.item", Index: 3, SelectingNodeIndex: 1},
		StartRecording{StepIndex: 4},
		StopRecording{StepIndex: 4},
	}
	for _, cmd := range cmds {
		raw, err := EncodeCommand(cmd)
		require.NoError(t, err)
		got, err := DecodeCommand(raw)
		require.NoError(t, err)
		assert.Equal(t, cmd, got)
	}
}

func TestEventCodec(t *testing.T) {
	events := []Event{
		SelectionUpdated{Selector: "div.x span", TotalSelected: 3, TagName: "span", TagType: models.TagContainer, Content: models.StringPtr("hi"), StepIndex: 1},
		UniqueSelectorResolved{Selector: "#a", Index: 0, SelectingNodeIndex: 2},
		InteractionRecorded{StepIndex: 3, Key: "a"},
	}
	for _, ev := range events {
		raw, err := EncodeEvent(ev)
		require.NoError(t, err)
		got, err := DecodeEvent(raw)
		require.NoError(t, err)
		assert.Equal(t, ev, got)
	}
}

func TestDecodeUnknown(t *testing.T) {
	_, err := DecodeCommand([]byte(`{"type":"reboot"}`))
	assert.ErrorIs(t, err, ErrUnknownMessage)

	_, err = DecodeEvent([]byte(`{"type":"startSelection"}`))
	assert.ErrorIs(t, err, ErrUnknownMessage)

	_, err = DecodeEvent([]byte(`not json`))
	assert.Error(t, err)
}

func TestFocusAccepts(t *testing.T) {
	step := Focus{StepIndex: 2}
	assert.True(t, step.Accepts(2, nil))
	assert.False(t, step.Accepts(3, nil))
	assert.False(t, step.Accepts(2, IntPtr(0)))

	option := Focus{StepIndex: 2, OptionIndex: IntPtr(1)}
	assert.True(t, option.Accepts(2, IntPtr(1)))
	assert.False(t, option.Accepts(2, IntPtr(0)))
	assert.False(t, option.Accepts(2, nil))
}
