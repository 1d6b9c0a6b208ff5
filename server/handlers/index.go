package handlers

import (
	"net/http"

	"github.com/nomis52/cloudstats/stats"
)

// IndexResponse groups every tracked activity by cloud, template and name.
type IndexResponse struct {
	Total  int          `json:"total"`
	Health stats.Health `json:"health"`
	Clouds []CloudGroup `json:"clouds"`
	Names  []NameGroup  `json:"names"`
}

// CloudGroup summarizes the activities of one cloud.
type CloudGroup struct {
	Cloud     string          `json:"cloud"`
	Health    stats.Health    `json:"health"`
	Templates []TemplateGroup `json:"templates"`
}

// TemplateGroup summarizes the activities of one template.
type TemplateGroup struct {
	Template string       `json:"template"`
	Health   stats.Health `json:"health"`
}

// NameGroup lists the fingerprints of activities sharing a display name.
type NameGroup struct {
	Name         string   `json:"name"`
	Fingerprints []string `json:"fingerprints"`
}

// IndexHandler serves the grouped index.
type IndexHandler struct {
	source ActivitySource
}

// NewIndexHandler creates a new IndexHandler.
func NewIndexHandler(source ActivitySource) *IndexHandler {
	return &IndexHandler{source: source}
}

// ServeHTTP implements http.Handler.
func (h *IndexHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newIndexResponse(h.source.Index()))
}

func newIndexResponse(idx *stats.Index) IndexResponse {
	resp := IndexResponse{
		Total:  idx.Len(),
		Clouds: []CloudGroup{},
		Names:  []NameGroup{},
	}

	templates := make(map[string][]TemplateGroup)
	for _, key := range idx.Templates() {
		templates[key.Cloud] = append(templates[key.Cloud], TemplateGroup{
			Template: key.Template,
			Health:   stats.HealthOf(idx.ForTemplate(key.Cloud, key.Template)),
		})
	}

	for _, cloud := range idx.Clouds() {
		activities := idx.ForCloud(cloud)
		health := stats.HealthOf(activities)
		resp.Health.Total += health.Total
		resp.Health.OK += health.OK
		resp.Health.Warn += health.Warn
		resp.Health.Fail += health.Fail

		group := CloudGroup{Cloud: cloud, Health: health, Templates: templates[cloud]}
		if group.Templates == nil {
			group.Templates = []TemplateGroup{}
		}
		resp.Clouds = append(resp.Clouds, group)
	}

	for _, name := range idx.Names() {
		group := NameGroup{Name: name}
		for _, a := range idx.ForName(name) {
			group.Fingerprints = append(group.Fingerprints, fingerprintString(a.ID().Fingerprint()))
		}
		resp.Names = append(resp.Names, group)
	}
	return resp
}
