// Copyright 2026 Prometheus Team
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tracing

import (
	"errors"
	"fmt"

	commoncfg "github.com/prometheus/common/config"
	"github.com/prometheus/common/model"
)

type ClientType string

const (
	ClientHTTP ClientType = "http"
	ClientGRPC ClientType = "grpc"

	GzipCompression = "gzip"
)

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (t *ClientType) UnmarshalYAML(unmarshal func(any) error) error {
	*t = ClientType("")
	type plain ClientType
	if err := unmarshal((*plain)(t)); err != nil {
		return err
	}

	switch *t {
	case ClientHTTP, ClientGRPC:
		return nil
	default:
		return fmt.Errorf("expected tracing client type to be %s or %s, but got %s",
			ClientHTTP, ClientGRPC, *t,
		)
	}
}

// Config configures the export of spans to an OTLP endpoint. Tracing is
// disabled without an endpoint.
type Config struct {
	ClientType       ClientType                  `yaml:"client_type,omitempty" json:"client_type,omitempty"`
	Endpoint         string                      `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	SamplingFraction float64                     `yaml:"sampling_fraction,omitempty" json:"sampling_fraction,omitempty"`
	Insecure         bool                        `yaml:"insecure,omitempty" json:"insecure,omitempty"`
	TLSConfig        *commoncfg.TLSConfig        `yaml:"tls_config,omitempty" json:"tls_config,omitempty"`
	Headers          map[string]commoncfg.Secret `yaml:"headers,omitempty" json:"headers,omitempty"`
	Compression      string                      `yaml:"compression,omitempty" json:"compression,omitempty"`
	Timeout          model.Duration              `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// Enabled reports whether spans are exported.
func (c *Config) Enabled() bool {
	return c.Endpoint != ""
}

// SetDirectory joins any relative file paths with dir.
func (c *Config) SetDirectory(dir string) {
	if c.TLSConfig != nil {
		c.TLSConfig.SetDirectory(dir)
	}
}

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (c *Config) UnmarshalYAML(unmarshal func(any) error) error {
	*c = Config{
		ClientType: ClientGRPC,
	}
	type plain Config
	if err := unmarshal((*plain)(c)); err != nil {
		return err
	}

	if c.Endpoint == "" {
		return errors.New("tracing endpoint must be set")
	}
	if c.SamplingFraction < 0 || c.SamplingFraction > 1 {
		return fmt.Errorf("tracing sampling_fraction must be between 0 and 1, got %v", c.SamplingFraction)
	}
	if c.Compression != "" && c.Compression != GzipCompression {
		return fmt.Errorf("invalid compression type %s provided, valid options: %s",
			c.Compression, GzipCompression)
	}
	return nil
}
