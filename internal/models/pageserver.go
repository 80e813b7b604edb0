// Package models defines the pageserver registration payload, node ids and
// the console listing types exchanged with the console and control planes.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Fixed values advertised for a storage controller registered as a pageserver.
const (
	StorageControllerPort     = 6400
	StorageControllerReason   = "Storage Controller Virtual Pageserver"
	RegionSuffixNew           = "-new"
	StorageControllerDiskSize = 0
)

// NodeID is the opaque identifier a control plane assigns to a registered
// pageserver. Services return it as either a JSON number or a JSON string.
type NodeID struct {
	raw json.RawMessage
}

// NodeIDFromString wraps a string identifier.
func NodeIDFromString(s string) NodeID {
	b, _ := json.Marshal(s)
	return NodeID{raw: b}
}

// NodeIDFromInt wraps a numeric identifier.
func NodeIDFromInt(n int64) NodeID {
	return NodeID{raw: json.RawMessage(strconv.FormatInt(n, 10))}
}

// IsZero reports whether the identifier is absent or null.
func (n NodeID) IsZero() bool {
	trimmed := bytes.TrimSpace(n.raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// String renders numbers as their decimal text and strings without quotes.
func (n NodeID) String() string {
	if n.IsZero() {
		return ""
	}
	var s string
	if err := json.Unmarshal(n.raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, n.raw); err != nil {
		return string(n.raw)
	}
	return buf.String()
}

// MarshalJSON emits the identifier exactly as the service returned it.
func (n NodeID) MarshalJSON() ([]byte, error) {
	if n.IsZero() {
		return []byte("null"), nil
	}
	return n.raw, nil
}

// UnmarshalJSON accepts any JSON value.
func (n *NodeID) UnmarshalJSON(data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid node_id %q", data)
	}
	n.raw = append(n.raw[:0], data...)
	return nil
}

// RegistrationPayload is the body POSTed to a control plane to register the
// storage controller as a virtual pageserver.
type RegistrationPayload struct {
	Host                string `json:"host"`
	RegionID            string `json:"region_id"`
	Port                int    `json:"port"`
	DiskSize            int    `json:"disk_size"`
	InstanceID          string `json:"instance_id"`
	HTTPHost            string `json:"http_host"`
	HTTPPort            int    `json:"http_port"`
	AvailabilityZoneID  string `json:"availability_zone_id"`
	InstanceType        string `json:"instance_type"`
	RegisterReason      string `json:"register_reason"`
	Active              bool   `json:"active"`
	IsStorageController bool   `json:"is_storage_controller"`

	// Set once the deployed version is known.
	Version *int64 `json:"version,omitempty"`
	// Only sent to the local control plane.
	NodeID string `json:"node_id,omitempty"`
}

// NewRegistrationPayload builds the fixed payload describing this node.
func NewRegistrationPayload(host, regionID, zone string, httpPort int) RegistrationPayload {
	return RegistrationPayload{
		Host:                host,
		RegionID:            regionID,
		Port:                StorageControllerPort,
		DiskSize:            StorageControllerDiskSize,
		InstanceID:          host,
		HTTPHost:            host,
		HTTPPort:            httpPort,
		AvailabilityZoneID:  zone,
		InstanceType:        "",
		RegisterReason:      StorageControllerReason,
		Active:              false,
		IsStorageController: true,
	}
}

// WithVersion returns a copy of p carrying version.
func (p RegistrationPayload) WithVersion(version int64) RegistrationPayload {
	p.Version = &version
	return p
}

// WithNodeID returns a copy of p carrying the string form of id.
func (p RegistrationPayload) WithNodeID(id NodeID) RegistrationPayload {
	p.NodeID = id.String()
	return p
}

// ConsolePageserver is one entry of the console's admin pageserver listing.
// Only the fields the registrar reads are decoded.
type ConsolePageserver struct {
	RegionID string      `json:"region_id"`
	Version  json.Number `json:"version"`
}

// ConsolePageservers is the console's admin pageserver listing.
type ConsolePageservers struct {
	Data []ConsolePageserver `json:"data"`
}

// MatchesRegion reports whether the entry belongs to region, including the
// "-new" variant used while a region is being migrated.
func (p ConsolePageserver) MatchesRegion(region string) bool {
	return p.RegionID == region || p.RegionID == region+RegionSuffixNew
}
