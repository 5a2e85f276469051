package patreon

import (
	"encoding/json"
	"testing"
)

func TestPayloadDecodeRelationshipShapes(t *testing.T) {
	// members carry a list relationship, pledges a single ref; both must land
	// in Refs.
	raw := `{
		"data": {
			"id": "m1",
			"type": "member",
			"attributes": {"full_name": "Ada"},
			"relationships": {
				"currently_entitled_tiers": {"data": [{"id": "t1", "type": "tier"}, {"id": "t2", "type": "tier"}]},
				"tier": {"data": {"id": "t1", "type": "tier"}},
				"patron": {"data": null}
			}
		},
		"included": [
			{"id": "t1", "type": "tier", "attributes": {"title": "Gold"}}
		]
	}`
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := p.Data.RelatedRefs("currently_entitled_tiers"); len(got) != 2 || got[0].ID != "t1" {
		t.Errorf("list relationship refs = %+v", got)
	}
	if got := p.Data.RelatedRefs("tier"); len(got) != 1 || got[0].ID != "t1" {
		t.Errorf("single relationship refs = %+v", got)
	}
	if got := p.Data.RelatedRefs("patron"); len(got) != 0 {
		t.Errorf("null relationship refs = %+v", got)
	}
	if name, ok := p.Data.StringAttr("full_name"); !ok || name != "Ada" {
		t.Errorf("StringAttr(full_name) = %q, %v", name, ok)
	}
	if inc, ok := FindIncluded(p.Included, "tier", "t1"); !ok {
		t.Error("FindIncluded missed t1")
	} else if title, _ := inc.StringAttr("title"); title != "Gold" {
		t.Errorf("included title = %q", title)
	}
}

func TestIntAttrAcceptsNumberAndString(t *testing.T) {
	res := Resource{Attributes: map[string]json.RawMessage{
		"min_cents_pledged_to_view": json.RawMessage(`1500`),
		"as_string":                 json.RawMessage(`"2500"`),
		"junk":                      json.RawMessage(`"abc"`),
	}}
	if n, ok := res.IntAttr("min_cents_pledged_to_view"); !ok || n != 1500 {
		t.Errorf("numeric = %d, %v", n, ok)
	}
	if n, ok := res.IntAttr("as_string"); !ok || n != 2500 {
		t.Errorf("string = %d, %v", n, ok)
	}
	if _, ok := res.IntAttr("junk"); ok {
		t.Error("junk should not parse")
	}
	if _, ok := res.IntAttr("missing"); ok {
		t.Error("missing should not parse")
	}
}

func TestStringSliceAttrMixedTypes(t *testing.T) {
	res := Resource{Attributes: map[string]json.RawMessage{
		"tiers": json.RawMessage(`["123", 456]`),
	}}
	got, ok := res.StringSliceAttr("tiers")
	if !ok || len(got) != 2 || got[0] != "123" || got[1] != "456" {
		t.Errorf("StringSliceAttr = %v, %v", got, ok)
	}
}
