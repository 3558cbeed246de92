package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// defaultConfig is a variable, not a constant, so an embedder can replace
// it wholesale before calling New() — same knob the teacher's CLI exposes
// via SetDefaultConfig for enterprise default overrides.
var defaultConfig = `
debug: false
moduleDebug: {}
pollTimeout: 1ms
drainPeriod: 5s
requestMaxAge: 30s
maxBufferBytes: 1048576
protocols:
  mysql:
    sendResp: true
    recvReq: true
  http1:
    sendResp: true
    recvReq: true
  http2:
    sendResp: true
    recvReq: true
http:
  includeFilters: []
output:
  mysqlPath: "./mysql.parquet"
  httpPath: "./http.parquet"
`

func GetDefaultConfig() string {
	return defaultConfig
}

func SetDefaultConfig(cfgStr string) {
	defaultConfig = cfgStr
}

// New decodes defaultConfig, then overlays overrideYAML on top of it (an
// empty override leaves the default untouched), mirroring the teacher's
// config.New()-over-a-merged-YAML-document pattern without pulling in a
// dedicated YAML-merge library for what is, here, just two Unmarshal
// passes into the same struct.
func New(overrideYAML string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(defaultConfig), cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse default config: %w", err)
	}
	if overrideYAML == "" {
		return cfg, nil
	}
	if err := yaml.Unmarshal([]byte(overrideYAML), cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse override config: %w", err)
	}
	return cfg, nil
}
