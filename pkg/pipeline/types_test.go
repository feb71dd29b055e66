package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAnchor(t *testing.T) {
	tests := []struct {
		in   string
		want Anchor
	}{
		{"center", Anchor{Kind: AnchorCenter}},
		{"", Anchor{Kind: AnchorCenter}},
		{"Top-Left", Anchor{Kind: AnchorTopLeft}},
		{"bottom_right", Anchor{Kind: AnchorBottomRight}},
		{"top-right", Anchor{Kind: AnchorTopRight}},
		{"bottom-left", Anchor{Kind: AnchorBottomLeft}},
		{"10, 20", Anchor{Kind: AnchorOffset, X: 10, Y: 20}},
		{"-5,0", Anchor{Kind: AnchorOffset, X: -5, Y: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAnchor(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAnchor_Invalid(t *testing.T) {
	for _, in := range []string{"middle", "1,2,3", "a,1", "1,b"} {
		_, err := ParseAnchor(in)
		assert.Error(t, err, in)
	}
}

func TestAnchor_StringRoundTrip(t *testing.T) {
	for _, a := range []Anchor{{Kind: AnchorCenter}, {Kind: AnchorOffset, X: 3, Y: 4}} {
		got, err := ParseAnchor(a.String())
		require.NoError(t, err)
		assert.Equal(t, a, got)
	}
}

func TestClampOpacity(t *testing.T) {
	assert.Equal(t, 0, ClampOpacity(-10))
	assert.Equal(t, 55, ClampOpacity(55))
	assert.Equal(t, 100, ClampOpacity(250))
}

func TestWatchConfig_Accepts(t *testing.T) {
	cfg := WatchConfig{Extensions: []string{".JPG", "png"}}

	assert.True(t, cfg.Accepts("/in/photo1.jpg"))
	assert.True(t, cfg.Accepts("/in/PHOTO2.JPG"))
	assert.True(t, cfg.Accepts("/in/shot.png"))
	assert.False(t, cfg.Accepts("/in/notes.txt"))
	assert.False(t, cfg.Accepts("/in/noext"))
}

func TestDestinationLabels(t *testing.T) {
	assert.Equal(t, "", DestinationFromLabel("Default"))
	assert.Equal(t, "", DestinationFromLabel(" default "))
	assert.Equal(t, "Kiosk_Printer", DestinationFromLabel("Kiosk_Printer"))
	assert.Equal(t, DefaultDestinationLabel, DestinationLabel(""))
	assert.Equal(t, "Kiosk_Printer", DestinationLabel("Kiosk_Printer"))
}
