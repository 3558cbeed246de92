// Package config provides the control knobs spec §6 names: per-protocol
// capture masks, the HTTP header inclusion filter, the maximum buffered
// bytes per tracker, and the output paths the record emitter writes to.
// It mirrors the teacher's config.New()/defaultConfig pattern: a struct
// decoded from a merged YAML document, not a bespoke flag parser (CLI
// wiring itself stays an external collaborator per spec §1).
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the core's full set of control knobs.
type Config struct {
	Debug          bool            `json:"debug" yaml:"debug"`
	ModuleDebug    map[string]bool `json:"moduleDebug" yaml:"moduleDebug"`
	PollTimeout    time.Duration   `json:"pollTimeout" yaml:"pollTimeout"`
	DrainPeriod    time.Duration   `json:"drainPeriod" yaml:"drainPeriod"`
	RequestMaxAge  time.Duration   `json:"requestMaxAge" yaml:"requestMaxAge"`
	MaxBufferBytes int             `json:"maxBufferBytes" yaml:"maxBufferBytes"`

	Protocols map[string]CaptureMask `json:"protocols" yaml:"protocols"`

	HTTP   HTTPConfig   `json:"http" yaml:"http"`
	Output OutputConfig `json:"output" yaml:"output"`
}

// CaptureMask is the per-protocol capture mask from spec §6: which of the
// four directional roles a tracker actually buffers and parses. Per
// spec §9, exactly one of {SendReq,RecvResp} xor {SendResp,RecvReq} is
// meaningful; any other combination is rejected by conn.DeriveRole.
type CaptureMask struct {
	SendReq  bool `json:"sendReq" yaml:"sendReq"`
	RecvReq  bool `json:"recvReq" yaml:"recvReq"`
	SendResp bool `json:"sendResp" yaml:"sendResp"`
	RecvResp bool `json:"recvResp" yaml:"recvResp"`
}

// HTTPConfig holds the HTTP header inclusion filter: a list of
// `header_name:substring` conjuncts (spec §6). A response passes the
// filter only if every conjunct matches a header on that response.
type HTTPConfig struct {
	IncludeFilters []HeaderFilter `json:"includeFilters" yaml:"includeFilters"`
}

// HeaderFilter is one `header_name:substring` conjunct.
type HeaderFilter struct {
	HeaderName string
	Substring  string
}

// ParseHeaderFilter parses a single `name:substring` conjunct.
func ParseHeaderFilter(s string) (HeaderFilter, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 || parts[0] == "" {
		return HeaderFilter{}, fmt.Errorf("config: invalid header filter %q, want \"name:substring\"", s)
	}
	return HeaderFilter{HeaderName: parts[0], Substring: parts[1]}, nil
}

// UnmarshalYAML lets HTTPConfig.IncludeFilters be written as plain
// `name:substring` strings in YAML instead of nested HeaderName/Substring
// maps.
func (h *HTTPConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw struct {
		IncludeFilters []string `yaml:"includeFilters"`
	}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	h.IncludeFilters = h.IncludeFilters[:0]
	for _, s := range raw.IncludeFilters {
		f, err := ParseHeaderFilter(s)
		if err != nil {
			return err
		}
		h.IncludeFilters = append(h.IncludeFilters, f)
	}
	return nil
}

// OutputConfig is where the record emitter's row appenders write to.
type OutputConfig struct {
	MySQLPath string `json:"mysqlPath" yaml:"mysqlPath"`
	HTTPPath  string `json:"httpPath" yaml:"httpPath"`
}

// MaskFor returns the configured capture mask for protocol, defaulting to
// the zero mask (nothing captured) if unconfigured.
func (c *Config) MaskFor(protocol string) CaptureMask {
	if c.Protocols == nil {
		return CaptureMask{}
	}
	return c.Protocols[protocol]
}
