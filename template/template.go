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

// Package template renders notification titles and bodies. Default
// templates are embedded; operators may add their own definitions from
// files, which override the defaults by name.
package template

import (
	"bytes"
	"embed"
	"encoding/json"
	tmplhtml "html/template"
	"io"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	tmpltext "text/template"
	"time"

	commonTemplates "github.com/prometheus/common/helpers/templates"
	"github.com/prometheus/common/model"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed default.tmpl
var asset embed.FS

// Names of the templates the notification channels render.
const (
	TitleTemplate = "alertcore.title"
	TextTemplate  = "alertcore.text"
	HTMLTemplate  = "alertcore.html"
)

// Template bundles a text and a html template instance.
type Template struct {
	text *tmpltext.Template
	html *tmplhtml.Template
}

// New returns a Template holding the embedded defaults.
func New() (*Template, error) {
	t := &Template{
		text: tmpltext.New("").Option("missingkey=zero").Funcs(tmpltext.FuncMap(DefaultFuncs)),
		html: tmplhtml.New("").Option("missingkey=zero").Funcs(tmplhtml.FuncMap(DefaultFuncs)),
	}
	f, err := asset.Open("default.tmpl")
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := t.Parse(f); err != nil {
		return nil, err
	}
	return t, nil
}

// FromGlobs returns the defaults extended by every file matching paths.
func FromGlobs(paths []string) (*Template, error) {
	t, err := New()
	if err != nil {
		return nil, err
	}
	for _, tp := range paths {
		if err := t.FromGlob(tp); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Parse parses the given text into the template.
func (t *Template) Parse(r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if t.text, err = t.text.Parse(string(b)); err != nil {
		return err
	}
	if t.html, err = t.html.Parse(string(b)); err != nil {
		return err
	}
	return nil
}

// FromGlob parses every file matching path. An empty match is not an error.
func (t *Template) FromGlob(path string) error {
	p, err := filepath.Glob(path)
	if err != nil {
		return err
	}
	if len(p) > 0 {
		if t.text, err = t.text.ParseGlob(path); err != nil {
			return err
		}
		if t.html, err = t.html.ParseGlob(path); err != nil {
			return err
		}
	}
	return nil
}

// ExecuteText renders the named text template.
func (t *Template) ExecuteText(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.text.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ExecuteHTML renders the named html template.
func (t *Template) ExecuteHTML(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.html.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

type FuncMap map[string]any

var DefaultFuncs = FuncMap{
	"toUpper": strings.ToUpper,
	"toLower": strings.ToLower,
	"title": func(text string) string {
		// Casers are not safe for concurrent use.
		return cases.Title(language.AmericanEnglish).String(text)
	},
	"trimSpace": strings.TrimSpace,
	// join is equal to strings.Join but inverts the argument order
	// for easier pipelining in templates.
	"join": func(sep string, s []string) string {
		return strings.Join(s, sep)
	},
	"match": regexp.MatchString,
	"reReplaceAll": func(pattern, repl, text string) string {
		re := regexp.MustCompile(pattern)
		return re.ReplaceAllString(text, repl)
	},
	"date": func(fmt string, t time.Time) string {
		return t.Format(fmt)
	},
	"since":            time.Since,
	"humanizeDuration": commonTemplates.HumanizeDuration,
	"sortedPairs":      SortedPairs,
	"toJson": func(v any) (string, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	},
}

// Pair is a key/value string pair.
type Pair struct {
	Name, Value string
}

// Pairs is a list of key/value string pairs.
type Pairs []Pair

func (ps Pairs) String() string {
	parts := make([]string, 0, len(ps))
	for _, p := range ps {
		parts = append(parts, p.Name+"="+p.Value)
	}
	return strings.Join(parts, ", ")
}

// SortedPairs returns the pairs of a label set or string map sorted by name.
// The alertname label always sorts first.
func SortedPairs(v any) Pairs {
	var ps Pairs
	switch m := v.(type) {
	case model.LabelSet:
		for k, v := range m {
			ps = append(ps, Pair{Name: string(k), Value: string(v)})
		}
	case map[string]string:
		for k, v := range m {
			ps = append(ps, Pair{Name: k, Value: v})
		}
	}
	slices.SortFunc(ps, func(a, b Pair) int {
		switch {
		case a.Name == b.Name:
			return 0
		case a.Name == string(model.AlertNameLabel):
			return -1
		case b.Name == string(model.AlertNameLabel):
			return 1
		}
		return strings.Compare(a.Name, b.Name)
	})
	return ps
}
