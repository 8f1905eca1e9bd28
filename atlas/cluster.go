package atlas

import (
	"context"
	"net/http"
)

// ClusterDescription is the subset of the Atlas cluster resource the
// scaler reads and writes. ReplicationSpecs round-trips through the
// PATCH payload, so unknown sibling fields inside it must be preserved
// by the types below.
type ClusterDescription struct {
	Name             string            `json:"name,omitempty"`
	StateName        string            `json:"stateName,omitempty"`
	ReplicationSpecs []ReplicationSpec `json:"replicationSpecs,omitempty"`
}

// ReplicationSpec is one replication zone of a cluster.
type ReplicationSpec struct {
	ID            string         `json:"id,omitempty"`
	ZoneName      string         `json:"zoneName,omitempty"`
	RegionConfigs []RegionConfig `json:"regionConfigs,omitempty"`
}

// RegionConfig is the per-region hardware layout of a replication spec.
type RegionConfig struct {
	ProviderName   string        `json:"providerName,omitempty"`
	RegionName     string        `json:"regionName,omitempty"`
	Priority       *int          `json:"priority,omitempty"`
	ElectableSpecs *HardwareSpec `json:"electableSpecs,omitempty"`
	ReadOnlySpecs  *HardwareSpec `json:"readOnlySpecs,omitempty"`
	AnalyticsSpecs *HardwareSpec `json:"analyticsSpecs,omitempty"`
}

// HardwareSpec is one node pool within a region config.
type HardwareSpec struct {
	InstanceSize  string   `json:"instanceSize,omitempty"`
	NodeCount     *int     `json:"nodeCount,omitempty"`
	DiskSizeGB    *float64 `json:"diskSizeGB,omitempty"`
	DiskIOPS      *int     `json:"diskIOPS,omitempty"`
	EBSVolumeType string   `json:"ebsVolumeType,omitempty"`
}

// InstanceSize returns the electable instance size of the first region
// config that has one, or "" when none is found.
func (d ClusterDescription) InstanceSize() string {
	for _, spec := range d.ReplicationSpecs {
		for _, region := range spec.RegionConfigs {
			if region.ElectableSpecs != nil && region.ElectableSpecs.InstanceSize != "" {
				return region.ElectableSpecs.InstanceSize
			}
		}
	}
	return ""
}

// GetCluster fetches the current cluster description.
func (c *Client) GetCluster(ctx context.Context, clusterName string) (ClusterDescription, error) {
	var desc ClusterDescription
	err := c.do(ctx, http.MethodGet, c.groupPath("clusters", clusterName), nil, &desc)
	return desc, err
}

// UpdateInstanceSize patches every node pool of every region config to
// the given instance size. The replication specs are re-fetched first
// so the patch is built from the freshest layout.
func (c *Client) UpdateInstanceSize(ctx context.Context, clusterName, size string) error {
	desc, err := c.GetCluster(ctx, clusterName)
	if err != nil {
		return err
	}

	specs := desc.ReplicationSpecs
	for i := range specs {
		for j := range specs[i].RegionConfigs {
			region := &specs[i].RegionConfigs[j]
			if region.ElectableSpecs != nil {
				region.ElectableSpecs.InstanceSize = size
			}
			if region.ReadOnlySpecs != nil {
				region.ReadOnlySpecs.InstanceSize = size
			}
			if region.AnalyticsSpecs != nil {
				region.AnalyticsSpecs.InstanceSize = size
			}
		}
	}

	payload := struct {
		ReplicationSpecs []ReplicationSpec `json:"replicationSpecs"`
	}{specs}
	return c.do(ctx, http.MethodPatch, c.groupPath("clusters", clusterName), payload, nil)
}
