package models

import (
	"encoding/json"
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// **Property 4: Node id string form**
// For any node id returned by a control plane, the string sent as node_id to
// the local control plane is the decimal text of a number or the raw text of a string.

func TestPropertyNodeIDStringForm(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("numeric ids render as decimal", prop.ForAll(
		func(n int64) bool {
			var id NodeID
			if err := json.Unmarshal([]byte(strconv.FormatInt(n, 10)), &id); err != nil {
				t.Logf("unmarshal: %v", err)
				return false
			}
			return id.String() == strconv.FormatInt(n, 10) && !id.IsZero()
		},
		gen.Int64Range(0, 1<<53),
	))

	properties.Property("string ids render unquoted", prop.ForAll(
		func(s string) bool {
			raw, _ := json.Marshal(s)
			var id NodeID
			if err := json.Unmarshal(raw, &id); err != nil {
				t.Logf("unmarshal: %v", err)
				return false
			}
			return id.String() == s
		},
		gen.AlphaString(),
	))

	properties.Property("ids marshal back unchanged", prop.ForAll(
		func(n int64) bool {
			id := NodeIDFromInt(n)
			out, err := json.Marshal(id)
			return err == nil && string(out) == strconv.FormatInt(n, 10)
		},
		gen.Int64(),
	))

	properties.TestingRun(t)
}

func TestNodeIDZero(t *testing.T) {
	var id NodeID
	if !id.IsZero() {
		t.Error("zero value should be IsZero")
	}
	if err := json.Unmarshal([]byte("null"), &id); err != nil {
		t.Fatalf("unmarshal null: %v", err)
	}
	if !id.IsZero() || id.String() != "" {
		t.Errorf("null id: IsZero=%v String=%q", id.IsZero(), id.String())
	}
	if got := NodeIDFromString("ps-7").String(); got != "ps-7" {
		t.Errorf("NodeIDFromString().String() = %q", got)
	}
}

// **Property 5: Payload shape**
// For any host, region, zone and port, the payload carries the fixed
// storage-controller values and mirrors host into instance_id and http_host.
func TestPropertyRegistrationPayload(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("payload has fixed fields and no version or node_id", prop.ForAll(
		func(host, region, zone string, port int) bool {
			raw, err := json.Marshal(NewRegistrationPayload(host, region, zone, port))
			if err != nil {
				return false
			}
			var m map[string]any
			if err := json.Unmarshal(raw, &m); err != nil {
				return false
			}
			if len(m) != 12 {
				t.Logf("unexpected key count %d: %v", len(m), m)
				return false
			}
			_, hasVersion := m["version"]
			_, hasNodeID := m["node_id"]
			return m["host"] == host &&
				m["instance_id"] == host &&
				m["http_host"] == host &&
				m["region_id"] == region &&
				m["availability_zone_id"] == zone &&
				m["http_port"] == float64(port) &&
				m["port"] == float64(StorageControllerPort) &&
				m["disk_size"] == float64(0) &&
				m["instance_type"] == "" &&
				m["register_reason"] == StorageControllerReason &&
				m["active"] == false &&
				m["is_storage_controller"] == true &&
				!hasVersion && !hasNodeID
		},
		gen.Identifier(),
		gen.Identifier(),
		gen.Identifier(),
		gen.IntRange(1, 65535),
	))

	properties.Property("WithVersion and WithNodeID add fields without mutating the base", prop.ForAll(
		func(version int64, id int64) bool {
			base := NewRegistrationPayload("h", "r", "z", 50051)
			withVersion := base.WithVersion(version)
			local := withVersion.WithNodeID(NodeIDFromInt(id))

			if base.Version != nil || base.NodeID != "" || withVersion.NodeID != "" {
				return false
			}
			return *local.Version == version && local.NodeID == strconv.FormatInt(id, 10)
		},
		gen.Int64Range(0, 1000),
		gen.Int64Range(0, 1<<40),
	))

	properties.TestingRun(t)
}

func TestVersionZeroIsSent(t *testing.T) {
	raw, err := json.Marshal(NewRegistrationPayload("h", "r", "z", 1).WithVersion(0))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v, ok := m["version"]; !ok || v != float64(0) {
		t.Errorf("version = %v (present %v), want 0", v, ok)
	}
}

func TestConsolePageserverMatchesRegion(t *testing.T) {
	tests := []struct {
		regionID string
		want     bool
	}{
		{"aws-us-east-1", true},
		{"aws-us-east-1-new", true},
		{"aws-us-east-1-old", false},
		{"aws-eu-west-1", false},
		{"", false},
	}
	for _, tt := range tests {
		p := ConsolePageserver{RegionID: tt.regionID}
		if got := p.MatchesRegion("aws-us-east-1"); got != tt.want {
			t.Errorf("MatchesRegion(%q) = %v, want %v", tt.regionID, got, tt.want)
		}
	}
}
