package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAtoiOrDefault(t *testing.T) {
	tests := []struct {
		name string
		in   string
		def  int
		want int
	}{
		{name: "empty string uses default", in: "", def: 10, want: 10},
		{name: "valid positive integer", in: "5", def: 10, want: 5},
		{name: "zero falls back to default", in: "0", def: 10, want: 10},
		{name: "negative falls back to default", in: "-3", def: 10, want: 10},
		{name: "non-numeric falls back to default", in: "abc", def: 10, want: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, atoiOrDefault(tt.in, tt.def))
		})
	}
}
