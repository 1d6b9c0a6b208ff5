package stats

import (
	"cmp"
	"maps"
	"slices"

	"github.com/nomis52/cloudstats/activity"
)

// Index groups a snapshot of activities for presentation.
// Within a group activities keep the order of the snapshot.
type Index struct {
	total      int
	byName     map[string][]*activity.Activity
	byCloud    map[string][]*activity.Activity
	byTemplate map[TemplateKey][]*activity.Activity
}

// TemplateKey names a template within a cloud.
type TemplateKey struct {
	Cloud    string `json:"cloud"`
	Template string `json:"template"`
}

// NewIndex builds an index over activities. Names are read once, so a later rename does
// not move an activity between groups.
func NewIndex(activities []*activity.Activity) *Index {
	idx := &Index{
		total:      len(activities),
		byName:     make(map[string][]*activity.Activity),
		byCloud:    make(map[string][]*activity.Activity),
		byTemplate: make(map[TemplateKey][]*activity.Activity),
	}
	for _, a := range activities {
		id := a.ID()
		name := a.Name()
		idx.byName[name] = append(idx.byName[name], a)
		idx.byCloud[id.Cloud] = append(idx.byCloud[id.Cloud], a)
		if id.Template != "" {
			key := TemplateKey{Cloud: id.Cloud, Template: id.Template}
			idx.byTemplate[key] = append(idx.byTemplate[key], a)
		}
	}
	return idx
}

// Len returns the number of indexed activities.
func (i *Index) Len() int {
	return i.total
}

// Names returns the display names in sorted order.
func (i *Index) Names() []string {
	return slices.Sorted(maps.Keys(i.byName))
}

// ForName returns the activities with the given display name.
func (i *Index) ForName(name string) []*activity.Activity {
	return slices.Clone(i.byName[name])
}

// Clouds returns the cloud names in sorted order.
func (i *Index) Clouds() []string {
	return slices.Sorted(maps.Keys(i.byCloud))
}

// ForCloud returns the activities provisioned by cloud.
func (i *Index) ForCloud(cloud string) []*activity.Activity {
	return slices.Clone(i.byCloud[cloud])
}

// Templates returns the templates in sorted order. Activities without a template are
// only reachable through their cloud.
func (i *Index) Templates() []TemplateKey {
	keys := slices.Collect(maps.Keys(i.byTemplate))
	slices.SortFunc(keys, func(a, b TemplateKey) int {
		if c := cmp.Compare(a.Cloud, b.Cloud); c != 0 {
			return c
		}
		return cmp.Compare(a.Template, b.Template)
	})
	return keys
}

// ForTemplate returns the activities provisioned from template in cloud.
func (i *Index) ForTemplate(cloud, template string) []*activity.Activity {
	return slices.Clone(i.byTemplate[TemplateKey{Cloud: cloud, Template: template}])
}

// Health summarizes the final status of a group of activities.
type Health struct {
	Total int `json:"total"`
	OK    int `json:"ok"`
	Warn  int `json:"warn"`
	Fail  int `json:"fail"`
}

// HealthOf counts activities by status.
func HealthOf(activities []*activity.Activity) Health {
	h := Health{Total: len(activities)}
	for _, a := range activities {
		switch a.Status() {
		case activity.StatusOK:
			h.OK++
		case activity.StatusWarn:
			h.Warn++
		case activity.StatusFail:
			h.Fail++
		}
	}
	return h
}
