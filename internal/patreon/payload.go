// Package patreon models the inbound webhook wire format and implements
// signature verification for it.
package patreon

import (
	"encoding/json"
	"strconv"
	"strings"
)

// EventType is one of the nine webhook trigger strings Patreon sends in the
// X-Patreon-Event header.
type EventType string

const (
	MembersCreate       EventType = "members:create"
	MembersUpdate       EventType = "members:update"
	MembersDelete       EventType = "members:delete"
	MembersPledgeCreate EventType = "members:pledge:create"
	MembersPledgeUpdate EventType = "members:pledge:update"
	MembersPledgeDelete EventType = "members:pledge:delete"
	PostsPublish        EventType = "posts:publish"
	PostsUpdate         EventType = "posts:update"
	PostsDelete         EventType = "posts:delete"
)

// Payload is the JSON:API-shaped document Patreon delivers: data carries the
// primary resource, included carries side-loaded related resources (notably
// tier definitions) cross-referenced by id. It is transient and never persisted.
type Payload struct {
	Data     Resource   `json:"data"`
	Included []Resource `json:"included,omitempty"`
}

// Resource is one JSON:API resource object. Attributes stays raw because
// Patreon ships several inconsistent shapes for the same logical fields.
type Resource struct {
	ID            string                     `json:"id"`
	Type          string                     `json:"type"`
	Attributes    map[string]json.RawMessage `json:"attributes,omitempty"`
	Relationships map[string]Relationship    `json:"relationships,omitempty"`
}

// Relationship holds either a single resource reference or a collection.
// Patreon uses both forms: members carry currently_entitled_tiers as a list,
// pledges carry tier/patron as single refs.
type Relationship struct {
	Data RelationshipData `json:"data,omitempty"`
}

// ResourceRef is a bare {id, type} pointer into the included set.
type ResourceRef struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// RelationshipData accepts both `"data": {...}` and `"data": [...]`.
type RelationshipData struct {
	Refs []ResourceRef
}

// UnmarshalJSON flattens single-ref and list-ref relationship data into Refs.
func (d *RelationshipData) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		d.Refs = nil
		return nil
	}
	if b[0] == '[' {
		return json.Unmarshal(b, &d.Refs)
	}
	var one ResourceRef
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	d.Refs = []ResourceRef{one}
	return nil
}

// StringAttr returns the named attribute decoded as a string.
func (r Resource) StringAttr(name string) (string, bool) {
	raw, ok := r.Attributes[name]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// IntAttr returns the named attribute decoded as an integer. Patreon sends
// cents fields as both numbers and numeric strings, so both are accepted.
func (r Resource) IntAttr(name string) (int, bool) {
	raw, ok := r.Attributes[name]
	if !ok {
		return 0, false
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if m, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return m, true
		}
	}
	return 0, false
}

// StringSliceAttr returns the named attribute decoded as a list of strings,
// accepting numeric entries as well (attributes.tiers arrives both ways).
func (r Resource) StringSliceAttr(name string) ([]string, bool) {
	raw, ok := r.Attributes[name]
	if !ok {
		return nil, false
	}
	var vals []json.RawMessage
	if err := json.Unmarshal(raw, &vals); err != nil {
		return nil, false
	}
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out = append(out, s)
			continue
		}
		var n json.Number
		if err := json.Unmarshal(v, &n); err == nil {
			out = append(out, n.String())
		}
	}
	return out, true
}

// RelatedRefs returns the refs under the named relationship, if present.
func (r Resource) RelatedRefs(name string) []ResourceRef {
	rel, ok := r.Relationships[name]
	if !ok {
		return nil
	}
	return rel.Data.Refs
}

// FindIncluded locates an included resource by type and id.
func FindIncluded(included []Resource, typ, id string) (Resource, bool) {
	for _, res := range included {
		if res.Type == typ && res.ID == id {
			return res, true
		}
	}
	return Resource{}, false
}
