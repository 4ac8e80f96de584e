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

package types

import (
	"slices"

	"github.com/cespare/xxhash/v2"
	"github.com/prometheus/common/model"
)

const separatorByte byte = 255

// Fingerprinter derives the identity of an alert from its name and the
// labels that are not declared volatile.
type Fingerprinter struct {
	volatile map[model.LabelName]struct{}
}

// NewFingerprinter returns a Fingerprinter ignoring the given label names.
func NewFingerprinter(volatile ...string) *Fingerprinter {
	f := &Fingerprinter{volatile: make(map[model.LabelName]struct{}, len(volatile))}
	for _, v := range volatile {
		f.volatile[model.LabelName(v)] = struct{}{}
	}
	return f
}

// StableLabels returns the subset of ls that takes part in the fingerprint.
func (f *Fingerprinter) StableLabels(ls model.LabelSet) model.LabelSet {
	out := make(model.LabelSet, len(ls))
	for k, v := range ls {
		if _, ok := f.volatile[k]; ok || k == model.AlertNameLabel {
			continue
		}
		out[k] = v
	}
	return out
}

// Fingerprint returns the identity key of the event.
func (f *Fingerprinter) Fingerprint(e *AlertEvent) model.Fingerprint {
	return f.Sum(e.Name, e.Labels)
}

// Sum hashes name and the stable labels of ls. Label pairs are sorted by
// name so the result does not depend on map iteration order.
func (f *Fingerprinter) Sum(name string, ls model.LabelSet) model.Fingerprint {
	stable := f.StableLabels(ls)
	names := make([]string, 0, len(stable))
	for k := range stable {
		names = append(names, string(k))
	}
	slices.Sort(names)

	h := xxhash.New()
	_, _ = h.WriteString(name)
	_, _ = h.Write([]byte{separatorByte})
	for _, k := range names {
		_, _ = h.WriteString(k)
		_, _ = h.Write([]byte{separatorByte})
		_, _ = h.WriteString(string(stable[model.LabelName(k)]))
		_, _ = h.Write([]byte{separatorByte})
	}
	return model.Fingerprint(h.Sum64())
}
