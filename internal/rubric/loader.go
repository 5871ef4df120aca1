package rubric

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// latePenaltyKey is a reserved top-level key consumed by assignment wiring.
const latePenaltyKey = "late_penalty"

// itemSource is the declarative form of a rubric item.
type itemSource struct {
	Name             string    `yaml:"name"`
	PointsPerSubitem []float64 `yaml:"points_per_subitem"`
	DescPerSubitem   []string  `yaml:"desc_per_subitem"`
	DeductingFrom    *float64  `yaml:"deducting_from"`
	DependsOn        struct {
		HasRan   []string `yaml:"has_ran"`
		IsGraded []string `yaml:"is_graded"`
	} `yaml:"depends_on"`
}

type pendingDeps struct {
	item     *Item
	hasRan   []string
	isGraded []string
}

// LoadFile reads and parses the rubric stored at path.
func LoadFile(path string) (*Rubric, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rubric %s: %w", path, err)
	}
	r, err := Load(content)
	if err != nil {
		return nil, fmt.Errorf("load rubric %s: %w", path, err)
	}
	return r, nil
}

// Load parses a rubric document (YAML or JSON) of the form
//
//	A:
//	  A1:
//	    name: A1
//	    points_per_subitem: [5, 5]
//	    desc_per_subitem: ["compiles", "runs"]
//	  A2:
//	    name: A2
//	    deducting_from: 10
//	    points_per_subitem: [-3]
//	    desc_per_subitem: ["leaks memory"]
//	    depends_on:
//	      has_ran: [A1]
//
// Tables and items keep their declaration order. Dependencies are resolved to
// item pointers once, after every item is known, and has_ran cycles are
// rejected.
func Load(source []byte) (*Rubric, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(source, &doc); err != nil {
		return nil, NewMalformedRubricError("", "%v", err)
	}

	r := &Rubric{
		tableIndex: make(map[string]*table),
		itemIndex:  make(map[string]*Item),
	}
	if len(doc.Content) == 0 {
		return r, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, NewMalformedRubricError("", "top level must be a mapping of tables")
	}

	subitems := make(map[string]struct{})
	var pending []pendingDeps

	for i := 0; i+1 < len(root.Content); i += 2 {
		tableKey, tableNode := root.Content[i].Value, root.Content[i+1]
		if tableKey == latePenaltyKey {
			var penalty float64
			if err := tableNode.Decode(&penalty); err != nil {
				return nil, NewMalformedRubricError(latePenaltyKey, "%v", err)
			}
			r.latePenalty = &penalty
			continue
		}

		if !IsTableCode(tableKey) || tableKey == AllCode {
			return nil, NewMalformedRubricError(tableKey, "table code must consist of letters and must not be %s", AllCode)
		}
		if _, dup := r.tableIndex[tableKey]; dup {
			return nil, NewMalformedRubricError(tableKey, "table defined twice")
		}
		if tableNode.Kind != yaml.MappingNode {
			return nil, NewMalformedRubricError(tableKey, "table must be a mapping of items")
		}

		t := &table{code: tableKey, index: make(map[string]*Item)}
		r.tables = append(r.tables, t)
		r.tableIndex[tableKey] = t

		for j := 0; j+1 < len(tableNode.Content); j += 2 {
			itemKey, itemNode := tableNode.Content[j].Value, tableNode.Content[j+1]
			item, deps, err := parseItem(tableKey, itemKey, itemNode)
			if err != nil {
				return nil, err
			}
			for _, code := range item.SubitemCodes() {
				if _, dup := subitems[code]; dup {
					return nil, NewMalformedRubricError(code, "rubric subitem defined twice")
				}
				subitems[code] = struct{}{}
			}
			if _, dup := r.itemIndex[item.Code]; dup {
				return nil, NewMalformedRubricError(item.Code, "item defined twice")
			}

			t.items = append(t.items, item)
			t.index[item.Code] = item
			r.itemIndex[item.Code] = item
			pending = append(pending, deps)
		}
	}

	for _, p := range pending {
		var err error
		if p.item.DependsOn.HasRan, err = r.expand(p.item, p.hasRan); err != nil {
			return nil, err
		}
		if p.item.DependsOn.IsGraded, err = r.expand(p.item, p.isGraded); err != nil {
			return nil, err
		}
	}

	if err := r.checkCycles(); err != nil {
		return nil, err
	}

	return r, nil
}

func parseItem(tableCode, key string, node *yaml.Node) (*Item, pendingDeps, error) {
	var src itemSource
	if err := node.Decode(&src); err != nil {
		return nil, pendingDeps{}, NewMalformedRubricError(key, "%v", err)
	}

	code := key
	if src.Name != "" && src.Name != key {
		return nil, pendingDeps{}, NewMalformedRubricError(key, "name %q does not match item key", src.Name)
	}
	if TableCode(code) != tableCode || len(code) == len(tableCode) {
		return nil, pendingDeps{}, NewMalformedRubricError(code, "item code must be table %s followed by an index", tableCode)
	}
	if strings.Contains(code, ".") {
		return nil, pendingDeps{}, NewMalformedRubricError(code, "item code must not contain '.'")
	}
	if len(src.PointsPerSubitem) != len(src.DescPerSubitem) {
		return nil, pendingDeps{}, NewMalformedRubricError(code,
			"%d points but %d descriptions", len(src.PointsPerSubitem), len(src.DescPerSubitem))
	}

	item := &Item{Code: code, Table: tableCode}
	if src.DeductingFrom != nil {
		item.DeductFrom = *src.DeductingFrom
	}
	for i, pts := range src.PointsPerSubitem {
		item.Subitems = append(item.Subitems, Subitem{Points: pts, Description: src.DescPerSubitem[i]})
	}

	deps := pendingDeps{
		item:     item,
		hasRan:   src.DependsOn.HasRan,
		isGraded: src.DependsOn.IsGraded,
	}
	return item, deps, nil
}

// expand resolves dependency references. A table code or AllCode expands to
// every matching item except the declaring one.
func (r *Rubric) expand(owner *Item, refs []string) ([]*Item, error) {
	var out []*Item
	seen := make(map[*Item]struct{})
	add := func(item *Item) {
		if _, dup := seen[item]; dup {
			return
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}

	for _, ref := range refs {
		switch {
		case ref == AllCode:
			for _, item := range r.Items() {
				if item != owner {
					add(item)
				}
			}
		case IsTableCode(ref):
			t, found := r.tableIndex[ref]
			if !found {
				return nil, NewMalformedRubricError(owner.Code, "dependency on unknown table %s", ref)
			}
			for _, item := range t.items {
				if item != owner {
					add(item)
				}
			}
		default:
			item, found := r.itemIndex[ref]
			if !found {
				return nil, NewMalformedRubricError(owner.Code, "dependency on unknown item %s", ref)
			}
			add(item)
		}
	}
	return out, nil
}

// checkCycles walks the has_ran graph with a visited set.
func (r *Rubric) checkCycles() error {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[*Item]int, len(r.itemIndex))

	var visit func(item *Item, path []string) error
	visit = func(item *Item, path []string) error {
		switch state[item] {
		case visiting:
			return NewMalformedRubricError(item.Code, "has_ran dependency cycle: %s",
				strings.Join(append(path, item.Code), " -> "))
		case done:
			return nil
		}
		state[item] = visiting
		for _, dep := range item.DependsOn.HasRan {
			if err := visit(dep, append(path, item.Code)); err != nil {
				return err
			}
		}
		state[item] = done
		return nil
	}

	for _, item := range r.Items() {
		if err := visit(item, nil); err != nil {
			return err
		}
	}
	return nil
}
