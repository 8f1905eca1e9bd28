package atlas

import (
	"context"
	"fmt"
	"net/http"

	"atlasops"
)

// EndpointService is an Atlas private endpoint service on the AWS side.
type EndpointService struct {
	ID                  string `json:"id"`
	EndpointServiceName string `json:"endpointServiceName"`
	Status              string `json:"status,omitempty"`
}

// endpointResource is the wire shape of one private endpoint.
type endpointResource struct {
	InterfaceEndpointID string `json:"interfaceEndpointId"`
	ConnectionStatus    string `json:"connectionStatus"`
}

func (r endpointResource) domain() atlasops.Endpoint {
	return atlasops.Endpoint{
		InterconnectID:   r.InterfaceEndpointID,
		ConnectionStatus: r.ConnectionStatus,
	}
}

// EndpointServices lists the project's AWS private endpoint services.
func (c *Client) EndpointServices(ctx context.Context) ([]EndpointService, error) {
	var services []EndpointService
	err := c.do(ctx, http.MethodGet,
		c.groupPath("privateEndpoint", "AWS", "endpointService"), nil, &services)
	if err != nil {
		return nil, err
	}
	return services, nil
}

// EndpointService fetches one endpoint service, including the AWS
// service name VPC endpoints attach to.
func (c *Client) EndpointService(ctx context.Context, serviceID string) (EndpointService, error) {
	var service EndpointService
	err := c.do(ctx, http.MethodGet,
		c.groupPath("privateEndpoint", "AWS", "endpointService", serviceID), nil, &service)
	return service, err
}

// Endpoint probes one private endpoint registration. Absence is not an
// error: a 404 returns (zero, false, nil) so callers can treat
// not-found as an ordinary state.
func (c *Client) Endpoint(ctx context.Context, serviceID, interconnectID string) (atlasops.Endpoint, bool, error) {
	var resource endpointResource
	err := c.do(ctx, http.MethodGet,
		c.groupPath("privateEndpoint", "AWS", "endpointService", serviceID, "endpoint", interconnectID),
		nil, &resource)
	if err != nil {
		if IsNotFound(err) {
			return atlasops.Endpoint{}, false, nil
		}
		return atlasops.Endpoint{}, false, err
	}
	return resource.domain(), true, nil
}

// DeleteEndpoint removes a private endpoint registration. Atlas keeps
// reporting the endpoint until its side of the teardown finishes;
// callers poll Endpoint until it is gone.
func (c *Client) DeleteEndpoint(ctx context.Context, serviceID, interconnectID string) error {
	return c.do(ctx, http.MethodDelete,
		c.groupPath("privateEndpoint", "AWS", "endpointService", serviceID, "endpoint", interconnectID),
		nil, nil)
}

// CreateEndpoint registers an AWS VPC endpoint with the endpoint
// service. The connection comes up asynchronously; callers poll
// Endpoint until the status is AVAILABLE.
func (c *Client) CreateEndpoint(ctx context.Context, serviceID, interconnectID string) error {
	if interconnectID == "" {
		return fmt.Errorf("atlas: interconnect id is required")
	}
	payload := struct {
		ID string `json:"id"`
	}{interconnectID}
	return c.do(ctx, http.MethodPost,
		c.groupPath("privateEndpoint", "AWS", "endpointService", serviceID, "endpoint"),
		payload, nil)
}
