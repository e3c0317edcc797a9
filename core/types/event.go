package types

// Event is the generic payload surfaced to external indexers. Attributes are
// stringly typed so the payload can be serialised without schema knowledge.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
