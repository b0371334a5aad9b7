package dtos

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPreviewDTO(t *testing.T) {
	t.Parallel()

	d := &PreviewDTO{Delimiter: " Comma "}
	d.Normalize("semicolon", "auto")
	require.Equal(t, "comma", d.Delimiter)
	require.Equal(t, "auto", d.Encoding)
	errs, ok := d.Ok()
	require.True(t, ok)
	require.Empty(t, errs)

	d = &PreviewDTO{Delimiter: "pipe", Encoding: "utf-16", Course: -3}
	errs, ok = d.Ok()
	require.False(t, ok)
	require.Equal(t, map[string]string{"Delimiter": "oneof", "Encoding": "oneof", "Course": "gte"}, errs)
}
