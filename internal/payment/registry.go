package payment

import (
	"sort"
	"strings"
	"sync"
)

// Registry 按网关名索引的网关注册表
type Registry struct {
	mu       sync.RWMutex
	gateways map[string]Gateway
}

// NewRegistry 创建注册表
func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[string]Gateway, len(gateways))}
	for _, gw := range gateways {
		r.Register(gw)
	}
	return r
}

// Register 注册网关，同名覆盖
func (r *Registry) Register(gw Gateway) {
	if gw == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[normalizeName(gw.Name())] = gw
}

// Get 获取网关
func (r *Registry) Get(name string) (Gateway, error) {
	if r == nil {
		return nil, ErrGatewayNotFound
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	gw, ok := r.gateways[normalizeName(name)]
	if !ok {
		return nil, ErrGatewayNotFound
	}
	return gw, nil
}

// Has 判断网关是否已注册
func (r *Registry) Has(name string) bool {
	_, err := r.Get(name)
	return err == nil
}

// Names 已注册网关名（升序）
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.gateways))
	for name := range r.gateways {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
