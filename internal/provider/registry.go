package provider

import (
	"fmt"
	"strings"
)

// Registry 是 provider 的只读有序注册表。
// 注册顺序就是 fallback 优先级（可信质量从高到低），不是任意顺序。
type Registry struct {
	ordered []Adapter
	byName  map[string]Adapter
}

func NewRegistry(adapters ...Adapter) (Registry, error) {
	byName := make(map[string]Adapter, len(adapters))
	ordered := make([]Adapter, 0, len(adapters))
	for _, a := range adapters {
		if a == nil {
			return Registry{}, fmt.Errorf("provider 不能为空")
		}
		name := normName(a.Name())
		if name == "" {
			return Registry{}, fmt.Errorf("provider.Name 不能为空")
		}
		if _, ok := byName[name]; ok {
			return Registry{}, fmt.Errorf("重复的 provider：%q", name)
		}
		byName[name] = a
		ordered = append(ordered, a)
	}
	return Registry{ordered: ordered, byName: byName}, nil
}

// Adapters 按优先级返回 provider（副本，调用方可以安全遍历）。
func (r Registry) Adapters() []Adapter {
	return append([]Adapter(nil), r.ordered...)
}

func (r Registry) Names() []string {
	out := make([]string, 0, len(r.ordered))
	for _, a := range r.ordered {
		out = append(out, normName(a.Name()))
	}
	return out
}

func (r Registry) Get(name string) (Adapter, bool) {
	if r.byName == nil {
		return nil, false
	}
	a, ok := r.byName[normName(name)]
	return a, ok
}

func (r Registry) Len() int { return len(r.ordered) }

func normName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
