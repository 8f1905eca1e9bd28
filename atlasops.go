// Package atlasops holds the domain types shared by the scaler and
// cycler jobs: cluster snapshots, instance-size pairs, and the private
// endpoint identifiers linking an AWS VPC to an Atlas endpoint service.
package atlasops

// Remote state labels reported by the Atlas Admin API.
const (
	// StateIdle means the cluster has no pending changes.
	StateIdle = "IDLE"
	// StatusAvailable means a private endpoint connection is established.
	StatusAvailable = "AVAILABLE"
)

// SizePair is the two instance-size labels the scaler toggles between.
type SizePair struct {
	A string
	B string
}

// Other returns the label that is not size. The bool is false when
// size matches neither label.
func (p SizePair) Other(size string) (string, bool) {
	switch size {
	case p.A:
		return p.B, true
	case p.B:
		return p.A, true
	}
	return "", false
}

// Interconnect identifies where one interface VPC endpoint lives.
type Interconnect struct {
	VPCID           string `yaml:"vpc_id"`
	SubnetID        string `yaml:"subnet_id"`
	SecurityGroupID string `yaml:"security_group_id"`
}

// Endpoint is an Atlas-side private endpoint registration. The
// InterconnectID is the AWS VPC endpoint id (vpce-...) it is keyed by.
type Endpoint struct {
	InterconnectID   string
	ConnectionStatus string
}

// Available reports whether the endpoint connection is established.
func (e Endpoint) Available() bool {
	return e.ConnectionStatus == StatusAvailable
}
