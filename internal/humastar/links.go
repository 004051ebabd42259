package humastar

import (
	"fmt"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
)

// Links holds RFC 8288 link headers derived from an API's OpenAPI paths.
type Links struct {
	mu  sync.RWMutex
	all map[string][]string
}

// NewLinks returns an empty link table; call Build once routes are registered.
func NewLinks() *Links {
	return &Links{all: map[string][]string{}}
}

// Build walks the OpenAPI spec and generates hypermedia links, skipping
// operations tagged skipTag (the Datastar SSE endpoints).
func (l *Links) Build(api huma.API, skipTag string) {
	oapi := api.OpenAPI()

	var collections, items []string
	for p, pi := range oapi.Paths {
		if slices.Contains(primaryTags(pi), skipTag) {
			continue
		}
		if strings.Contains(p, "{") {
			items = append(items, p)
		} else {
			collections = append(collections, p)
		}
	}
	slices.Sort(collections)
	slices.Sort(items)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.all = map[string][]string{}

	// Item → collection, collection → item template, sub-resource → item.
	for _, item := range items {
		parent := path.Dir(item)
		if _, ok := oapi.Paths[parent]; !ok {
			continue
		}
		if strings.Contains(parent, "{") {
			l.add(item, parent, "up")
			continue
		}
		l.add(item, parent, "collection")
		l.add(parent, item, "item")
	}

	// Entry point links every collection plus the service docs.
	for _, coll := range collections {
		if coll == "/health" {
			continue
		}
		l.add("/health", coll, lastSegment(coll))
		l.add(coll, "/health", "up")
	}
	l.add("/health", "/openapi.json", "service-desc")
	l.add("/health", "/docs", "service-doc")
}

// For returns the link headers generated for an operation path.
func (l *Links) For(opPath string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.all[opPath])
}

// Transformer returns a Huma Transformer that injects the Link headers at
// runtime, plus a self link on item endpoints and Actor action links.
func (l *Links) Transformer() huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil {
			return v, nil
		}

		for _, link := range l.For(op.Path) {
			ctx.AppendHeader("Link", link)
		}

		if strings.Contains(op.Path, "{") {
			ctx.AppendHeader("Link", fmt.Sprintf(`<%s>; rel="self"`, ctx.URL().Path))
		}

		if a, ok := v.(Actor); ok {
			for _, action := range a.Actions() {
				ctx.AppendHeader("Link", action.LinkHeader())
			}
		}

		return v, nil
	}
}

func (l *Links) add(from, to, rel string) {
	val := fmt.Sprintf(`<%s>; rel="%s"`, to, rel)
	if slices.Contains(l.all[from], val) {
		return
	}
	l.all[from] = append(l.all[from], val)
}

func primaryTags(pi *huma.PathItem) []string {
	for _, op := range []*huma.Operation{pi.Get, pi.Post, pi.Put, pi.Patch, pi.Delete} {
		if op != nil && len(op.Tags) > 0 {
			return op.Tags
		}
	}
	return nil
}

func lastSegment(p string) string {
	parts := strings.Split(strings.TrimRight(p, "/"), "/")
	return parts[len(parts)-1]
}
