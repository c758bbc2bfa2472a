package sqlxrepos

import (
	"database/sql/driver"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_idArray(t *testing.T) {
	id := "0d0a5f3e-5a44-4c1e-9d1b-6f3b1c2e8a77"

	tests := []struct {
		name string
		ids  []string
		want driver.Value
	}{
		{name: "nil", ids: nil, want: "{}"},
		{name: "empty", ids: []string{}, want: "{}"},
		{name: "invalid only", ids: []string{"nope"}, want: "{}"},
		{name: "valid", ids: []string{id, "nope"}, want: `{"` + id + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valuer, ok := idArray(tt.ids).(driver.Valuer)
			require.True(t, ok)
			got, err := valuer.Value()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
