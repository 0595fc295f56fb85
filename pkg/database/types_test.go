package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringArray_Scan(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  StringArray
	}{
		{"json", `["u1","u2"]`, StringArray{"u1", "u2"}},
		{"json bytes", []byte(`["u1"]`), StringArray{"u1"}},
		{"empty json", `[]`, StringArray{}},
		{"postgres", `{u1,u2}`, StringArray{"u1", "u2"}},
		{"postgres quoted", `{"a,b",c}`, StringArray{"a,b", "c"}},
		{"postgres empty", `{}`, StringArray{}},
		{"single", `u1`, StringArray{"u1"}},
		{"nil", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got StringArray
			require.NoError(t, got.Scan(tt.input))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStringArray_ScanUnsupported(t *testing.T) {
	var a StringArray
	assert.Error(t, a.Scan(42))
}

func TestStringArray_Value(t *testing.T) {
	v, err := StringArray{"u1", "u2"}.Value()
	require.NoError(t, err)
	assert.Equal(t, `["u1","u2"]`, v)

	v, err = StringArray(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)
}

func TestStringArray_Helpers(t *testing.T) {
	a := StringArray{"u1", "u2", "u1"}
	assert.True(t, a.Contains("u2"))
	assert.False(t, a.Contains("u3"))
	assert.Equal(t, StringArray{"u2"}, a.Without("u1"))
	assert.Equal(t, StringArray{"u1", "u2", "u1"}, a)
}
