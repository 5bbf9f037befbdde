// Copyright (c) 2018 Uber Technologies, Inc.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package inferpipe

import (
	"fmt"

	"gopkg.in/yaml.v2"
)

// Default batch size and helper-queue multiplier. Pool size defaults to
// 3*batchsize+4, enough headroom for one in-flight H2D/Infer/D2H task plus
// a full batch of concurrent post-processing tasks without ever blocking on
// Submit under steady-state load.
const (
	DefaultBatchSize           = 4
	DefaultHelperQueueMultiple = 3
)

// Config configures one Engine: batch size, pool worker count, and the
// trans-data helper's backlog multiplier.
type Config struct {
	BatchSize             int `yaml:"batchSize"`
	PoolWorkers           int `yaml:"poolWorkers"`
	HelperQueueMultiplier int `yaml:"helperQueueMultiplier"`
}

// DefaultConfig returns a Config with batch size 4, pool workers
// 3*batchsize+4, and helper queue multiplier 3.
func DefaultConfig() Config {
	return Config{
		BatchSize:             DefaultBatchSize,
		PoolWorkers:           3*DefaultBatchSize + 4,
		HelperQueueMultiplier: DefaultHelperQueueMultiple,
	}
}

// ParseConfigYAML decodes a Config from YAML on top of DefaultConfig, so any
// field the YAML omits keeps its default value, then validates the result.
// A field set explicitly to zero stays zero and fails validation.
func ParseConfigYAML(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("inferpipe: decoding config: %w", err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("inferpipe: batchSize must be positive, got %d", c.BatchSize)
	}
	if c.PoolWorkers <= 0 {
		return fmt.Errorf("inferpipe: poolWorkers must be positive, got %d", c.PoolWorkers)
	}
	if c.HelperQueueMultiplier <= 0 {
		return fmt.Errorf("inferpipe: helperQueueMultiplier must be positive, got %d", c.HelperQueueMultiplier)
	}
	return nil
}
