package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShortAddress(t *testing.T) {
	assert.Equal(t, "0x1234...cdef", ShortAddress("0x1234567890abcdef1234567890abcdef1234cdef"))
	assert.Equal(t, "0xshort", ShortAddress("0xshort"), "short strings pass through")
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "120.00", FormatAmount(120, 2))
	assert.Equal(t, "50.00K", FormatAmount(50000, 2))
	assert.Equal(t, "1.25M", FormatAmount(1_250_000, 2))
	assert.Equal(t, "0.0", FormatAmount(0, 1))
}

func TestValidURL(t *testing.T) {
	assert.True(t, ValidURL("https://example.com"))
	assert.True(t, ValidURL("http://example.com"))
	assert.False(t, ValidURL("example.com"))
	assert.False(t, ValidURL(""))
}
