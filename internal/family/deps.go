package family

import (
	"context"
	"sort"

	"go.kibob.dev/kibob/internal/etl"
	"go.kibob.dev/kibob/internal/kibana"
	"go.kibob.dev/kibob/internal/logging"
)

// Ref identifies one object across families.
type Ref struct {
	Family kibana.Family
	ID     string
}

// Dependencies returns the direct dependencies of one object. Agents depend
// on the tools in their configuration, tools on the workflow they wrap, and
// workflows on anything their definition references.
func Dependencies(f kibana.Family, obj etl.Object) []Ref {
	switch f {
	case kibana.FamilyAgents:
		return agentDependencies(obj)
	case kibana.FamilyTools:
		return toolDependencies(obj)
	case kibana.FamilyWorkflows:
		return workflowDependencies(obj)
	default:
		return nil
	}
}

// agentDependencies reads configuration.tools, which is either a list of
// tool id strings or a list of objects carrying a tool_ids array.
func agentDependencies(obj etl.Object) []Ref {
	var deps []Ref
	config, _ := obj["configuration"].(map[string]any)
	tools, _ := config["tools"].([]any)
	for _, tool := range tools {
		switch t := tool.(type) {
		case string:
			deps = append(deps, Ref{Family: kibana.FamilyTools, ID: t})
		case map[string]any:
			ids, _ := t["tool_ids"].([]any)
			for _, id := range ids {
				if s, ok := id.(string); ok {
					deps = append(deps, Ref{Family: kibana.FamilyTools, ID: s})
				}
			}
		}
	}
	return deps
}

// toolDependencies reads configuration.workflow_id, set on tools that wrap
// a workflow.
func toolDependencies(obj etl.Object) []Ref {
	config, _ := obj["configuration"].(map[string]any)
	if id, ok := config["workflow_id"].(string); ok && id != "" {
		return []Ref{{Family: kibana.FamilyWorkflows, ID: id}}
	}
	return nil
}

// workflowDependencies scans the whole definition for reference-shaped keys.
// Workflow steps can point at agents, tools, and other workflows anywhere in
// their tree.
func workflowDependencies(obj etl.Object) []Ref {
	seen := map[Ref]bool{}
	scanForRefs(map[string]any(obj), seen)

	refs := make([]Ref, 0, len(seen))
	for ref := range seen {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Family != refs[j].Family {
			return refs[i].Family < refs[j].Family
		}
		return refs[i].ID < refs[j].ID
	})
	return refs
}

func scanForRefs(value any, seen map[Ref]bool) {
	switch v := value.(type) {
	case map[string]any:
		for k, item := range v {
			switch k {
			case "agent_id", "agentId":
				if id, ok := item.(string); ok {
					seen[Ref{Family: kibana.FamilyAgents, ID: id}] = true
				}
			case "tool_id", "toolId", "tool_ids", "toolIds":
				switch t := item.(type) {
				case string:
					seen[Ref{Family: kibana.FamilyTools, ID: t}] = true
				case []any:
					for _, id := range t {
						if s, ok := id.(string); ok {
							seen[Ref{Family: kibana.FamilyTools, ID: s}] = true
						}
					}
				}
			case "workflow_id", "workflowId":
				if id, ok := item.(string); ok {
					seen[Ref{Family: kibana.FamilyWorkflows, ID: id}] = true
				}
			default:
				scanForRefs(item, seen)
			}
		}
	case []any:
		for _, item := range v {
			scanForRefs(item, seen)
		}
	}
}

// Closure fetches the starting refs and walks their dependencies until the
// set is stable. A ref that cannot be fetched is logged and left out;
// self-references and cycles terminate through the seen set.
func Closure(ctx context.Context, space *kibana.SpaceClient, start []Ref) (map[Ref]etl.Object, error) {
	fetched := map[Ref]etl.Object{}
	seen := map[Ref]bool{}
	queue := append([]Ref(nil), start...)

	for len(queue) > 0 {
		ref := queue[0]
		queue = queue[1:]
		if seen[ref] {
			continue
		}
		seen[ref] = true

		obj, err := fetchRef(ctx, space, ref)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logging.Warnf("failed to resolve dependency %s/%s: %v", ref.Family, ref.ID, err)
			continue
		}
		fetched[ref] = obj
		queue = append(queue, Dependencies(ref.Family, obj)...)
	}
	return fetched, nil
}

func fetchRef(ctx context.Context, space *kibana.SpaceClient, ref Ref) (etl.Object, error) {
	switch ref.Family {
	case kibana.FamilyWorkflows:
		return FetchWorkflow(ctx, space, ref.ID)
	default:
		return FetchBuilderObject(ctx, space, ref.Family, ref.ID)
	}
}
