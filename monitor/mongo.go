package monitor

import (
	"context"
	"net/url"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoDialer opens real driver connections.
type MongoDialer struct{}

func (MongoDialer) Dial(ctx context.Context, uri string) (Connection, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	return &mongoConn{client: client}, nil
}

type mongoConn struct {
	client *mongo.Client
}

func (c *mongoConn) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}

func (c *mongoConn) ServerInfo(ctx context.Context) (ServerInfo, error) {
	var status bson.M
	err := c.client.Database("admin").
		RunCommand(ctx, bson.D{{Key: "serverStatus", Value: 1}}).
		Decode(&status)
	if err != nil {
		return ServerInfo{}, err
	}

	var info ServerInfo
	if v, ok := status["version"].(string); ok {
		info.Version = v
	}
	if ts, ok := status["transportSecurity"].(bson.M); ok {
		if t, ok := ts["type"].(string); ok {
			info.ConnectionType = t
		}
	}
	return info, nil
}

func (c *mongoConn) Topology(ctx context.Context) (TopologyInfo, error) {
	var reply bson.M
	err := c.client.Database("admin").
		RunCommand(ctx, bson.D{{Key: "isMaster", Value: 1}}).
		Decode(&reply)
	if err != nil {
		return TopologyInfo{}, err
	}

	var topo TopologyInfo
	if b, ok := reply["ismaster"].(bool); ok {
		topo.IsWritablePrimary = b
	}
	if hosts, ok := reply["hosts"].(primitive.A); ok {
		for _, h := range hosts {
			if s, ok := h.(string); ok {
				topo.Hosts = append(topo.Hosts, s)
			}
		}
	}
	return topo, nil
}

func (c *mongoConn) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// redactURI hides credentials so connection strings are safe to log.
func redactURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.User == nil {
		return uri
	}
	u.User = url.User(u.User.Username())
	return u.Redacted()
}
