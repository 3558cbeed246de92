package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHeaderFilter_ValidAndInvalid(t *testing.T) {
	f, err := ParseHeaderFilter("Content-Type:application/json")
	require.NoError(t, err)
	assert.Equal(t, HeaderFilter{HeaderName: "Content-Type", Substring: "application/json"}, f)

	_, err = ParseHeaderFilter("no-colon-here")
	assert.Error(t, err)

	_, err = ParseHeaderFilter(":missing-name")
	assert.Error(t, err)
}

func TestMaskFor_UnconfiguredProtocolReturnsZeroMask(t *testing.T) {
	c := &Config{Protocols: map[string]CaptureMask{
		"mysql": {SendResp: true, RecvReq: true},
	}}
	assert.Equal(t, CaptureMask{SendResp: true, RecvReq: true}, c.MaskFor("mysql"))
	assert.Equal(t, CaptureMask{}, c.MaskFor("http2"))
}

func TestMaskFor_NilProtocolsMap(t *testing.T) {
	c := &Config{}
	assert.Equal(t, CaptureMask{}, c.MaskFor("mysql"))
}
