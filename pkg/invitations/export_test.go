package invitations

// SetTokenSource overrides token generation.
func (m *Manager) SetTokenSource(next func() string) {
	m.newToken = next
}
