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

package notify

import (
	"fmt"
	"maps"

	"github.com/alertcore/alertcore/template"
	"github.com/alertcore/alertcore/types"
)

// NewMessage renders the notification announcing the current state of a.
// event is the inbound event that caused the transition and is nil for
// manual operations.
func NewMessage(tmpl *template.Template, a *types.ActiveAlert, event *types.AlertEvent) (*Message, error) {
	m := &Message{
		Fingerprint: a.Fingerprint,
		IncidentID:  a.IncidentID,
		AlertName:   a.Name,
		Status:      a.Status,
		Severity:    a.Severity,
		Service:     a.Service(),
		Labels:      a.Labels.Clone(),
		Annotations: maps.Clone(a.Annotations),
		FirstSeenAt: a.FirstSeenAt,
		ResolvedAt:  a.ResolvedAt,
	}
	if event != nil {
		m.GeneratorURL = event.GeneratorURL
	}

	var err error
	if m.Title, err = tmpl.ExecuteText(template.TitleTemplate, m); err != nil {
		return nil, fmt.Errorf("render title: %w", err)
	}
	if m.Text, err = tmpl.ExecuteText(template.TextTemplate, m); err != nil {
		return nil, fmt.Errorf("render text: %w", err)
	}
	return m, nil
}
