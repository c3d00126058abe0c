package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCursorMode(t *testing.T) {
	tests := []struct {
		name    string
		in      uint32
		want    CursorMode
		show    bool
		wantErr bool
	}{
		{name: "hidden", in: 1, want: CursorHidden},
		{name: "embedded", in: 2, want: CursorEmbedded, show: true},
		{name: "metadata", in: 4, want: CursorMetadata},
		{name: "hidden and embedded", in: 3, want: CursorHidden | CursorEmbedded, show: true},
		{name: "unknown bit", in: 8, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCursorMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.show, got.ShowCursor())
			assert.Equal(t, tt.in, got.Bits())
		})
	}
}

func TestParseSourceType(t *testing.T) {
	s, err := ParseSourceType(5)
	require.NoError(t, err)
	assert.True(t, s.Has(SourceMonitor))
	assert.True(t, s.Has(SourceVirtual))
	assert.False(t, s.Has(SourceWindow))
	assert.Equal(t, "monitor|virtual", s.String())

	_, err = ParseSourceType(16)
	assert.Error(t, err)
}

func TestParsePersistMode(t *testing.T) {
	p, err := ParsePersistMode(2)
	require.NoError(t, err)
	assert.Equal(t, PersistUntilRevoked, p)

	_, err = ParsePersistMode(3)
	assert.Error(t, err)
}

func TestFlagStrings(t *testing.T) {
	assert.Equal(t, "none", CursorMode(0).String())
	assert.Equal(t, "hidden|embedded", (CursorHidden | CursorEmbedded).String())
	assert.Equal(t, "screencast", SessionTypeScreenCast.String())
	assert.Equal(t, "do-not-persist", PersistNone.String())
}

func TestApplyOnlyOverwritesPresentFields(t *testing.T) {
	s := New("/s/1", SessionTypeScreenCast)
	s.RestoreToken = "keep"

	cursor := CursorEmbedded
	multiple := true
	s.Apply(Preferences{CursorMode: &cursor, Multiple: &multiple})

	assert.Equal(t, CursorEmbedded, s.CursorMode)
	assert.True(t, s.Multiple)
	assert.Equal(t, SourceMonitor, s.SourceTypes)
	assert.Equal(t, "keep", s.RestoreToken)
	assert.Equal(t, PersistNone, s.PersistMode)
}
