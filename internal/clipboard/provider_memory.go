package clipboard

import "sync"

// MemoryProvider is an in-process Provider backing tests and the proxy
// transport mode, where clipboard access is relayed through a control
// channel instead of a real OS clipboard.
type MemoryProvider struct {
	mu      sync.Mutex
	content Content
}

func NewMemoryProvider() *MemoryProvider { return &MemoryProvider{} }

func (m *MemoryProvider) GetContent() (Content, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.content, nil
}

func (m *MemoryProvider) SetContent(c Content) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.content = c
	return nil
}
