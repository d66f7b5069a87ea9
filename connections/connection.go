package connections

// Connection is a configured authentication method within a tenant.
// Kind is persisted as a string; Strategy interprets it.
type Connection struct {
	ID          string            `json:"id"`
	TenantID    string            `json:"tenantId"`
	Name        string            `json:"name"`
	DisplayName string            `json:"displayName"`
	IconURL     string            `json:"iconUrl"`
	Kind        string            `json:"kind"`
	Options     map[string]string `json:"options,omitempty"`
}

// Strategy returns the typed strategy for the connection.
func (c Connection) Strategy() Strategy {
	return ParseStrategy(c.Kind)
}

// Option is how a connection is offered to the end user when a login begins.
type Option struct {
	ConnectionID string `json:"connection_id"`
	Name         string `json:"name"`
	DisplayName  string `json:"display_name"`
	IconURL      string `json:"icon_url,omitempty"`
	Strategy     string `json:"strategy"`
}

// AsOption describes the connection for a login prompt.
func (c Connection) AsOption() Option {
	return Option{
		ConnectionID: c.ID,
		Name:         c.Name,
		DisplayName:  c.DisplayName,
		IconURL:      c.IconURL,
		Strategy:     c.Strategy().Name(),
	}
}
