package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/conneroisu/perfguard/internal/errors"
)

func TestParseRootMargin(t *testing.T) {
	tests := []struct {
		name    string
		margin  string
		want    float64
		wantErr bool
	}{
		{name: "empty", margin: "", want: 0},
		{name: "zero", margin: "0", want: 0},
		{name: "pixels", margin: "50px", want: 50},
		{name: "shorthand", margin: "120px 0px", want: 120},
		{name: "negative", margin: "-10px", want: -10},
		{name: "percent", margin: "10%", wantErr: true},
		{name: "garbage", margin: "apx", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRootMargin(tt.margin)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUnsupportedErrors(t *testing.T) {
	assert.True(t, perrors.IsUnsupported(ErrUnsupported))
	err := UnsupportedEntryType(EntryLongTask)
	assert.True(t, perrors.IsUnsupported(err))
	assert.Contains(t, err.Error(), "longtask")
}
