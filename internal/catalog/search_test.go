package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeSearch(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "Cañería  PVC", want: "caneria pvc"},
		{in: "  TORNILLO ", want: "tornillo"},
		{in: "Émbolo Ácido", want: "embolo acido"},
		{in: "", want: ""},
		{in: "plain", want: "plain"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, NormalizeSearch(tt.in), tt.in)
	}
}

func TestLikePatternEscapes(t *testing.T) {
	require.Equal(t, `%50\% off%`, likePattern("50% off"))
	require.Equal(t, `%a\_b%`, likePattern("a_b"))
}
