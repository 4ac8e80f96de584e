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

package template

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/common/model"
	"github.com/stretchr/testify/require"
)

type data struct {
	Fingerprint  model.Fingerprint
	AlertName    string
	Status       string
	Severity     string
	Service      string
	Labels       model.LabelSet
	Annotations  map[string]string
	FirstSeenAt  time.Time
	ResolvedAt   *time.Time
	GeneratorURL string
}

func testData() *data {
	resolved := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	return &data{
		Fingerprint: 0x1234,
		AlertName:   "HighErrorRate",
		Status:      "RESOLVED",
		Severity:    "critical",
		Service:     "api",
		Labels:      model.LabelSet{"service": "api", "alertname": "HighErrorRate", "env": "prod"},
		Annotations: map[string]string{"summary": "5xx above 5%"},
		FirstSeenAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		ResolvedAt:  &resolved,
	}
}

func TestDefaultTemplates(t *testing.T) {
	tmpl, err := New()
	require.NoError(t, err)

	title, err := tmpl.ExecuteText(TitleTemplate, testData())
	require.NoError(t, err)
	require.Equal(t, "[RESOLVED] CRITICAL HighErrorRate (api)", title)

	text, err := tmpl.ExecuteText(TextTemplate, testData())
	require.NoError(t, err)
	require.Contains(t, text, "Summary: 5xx above 5%")
	require.Contains(t, text, "Labels: alertname=HighErrorRate, env=prod, service=api")
	require.Contains(t, text, "Resolved: 2026-03-01 11:00:00 UTC")
	require.Contains(t, text, "Fingerprint: 0000000000001234")
	require.NotContains(t, text, "Description:")

	html, err := tmpl.ExecuteHTML(HTMLTemplate, testData())
	require.NoError(t, err)
	require.Contains(t, html, "<td>env</td><td>prod</td>")
}

func TestFromGlobsOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "custom.tmpl"),
		[]byte(`{{ define "alertcore.title" }}{{ .AlertName | toLower }} is {{ .Status | title }}{{ end }}`), 0o644))

	tmpl, err := FromGlobs([]string{filepath.Join(dir, "*.tmpl"), filepath.Join(dir, "missing", "*.tmpl")})
	require.NoError(t, err)

	title, err := tmpl.ExecuteText(TitleTemplate, testData())
	require.NoError(t, err)
	require.Equal(t, "higherrorrate is Resolved", title)
}

func TestSortedPairs(t *testing.T) {
	ps := SortedPairs(map[string]string{"b": "2", "alertname": "X", "a": "1"})
	require.Equal(t, "alertname=X, a=1, b=2", ps.String())
	require.Empty(t, SortedPairs(42))
}
