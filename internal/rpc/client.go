package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client is a typed ProfileService client.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps an existing connection.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Dial connects to addr without transport security.
func Dial(addr string) (*Client, *grpc.ClientConn, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to profile service: %w", err)
	}
	return NewClient(conn), conn, nil
}

func (c *Client) invoke(ctx context.Context, method string, in, out any, opts ...grpc.CallOption) error {
	return c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...)
}

func (c *Client) HealthCheck(ctx context.Context, opts ...grpc.CallOption) (string, error) {
	out := new(wrapperspb.StringValue)
	if err := c.invoke(ctx, "HealthCheck", &emptypb.Empty{}, out, opts...); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

// GetProfile returns the user's profile decoded into plain Go values.
func (c *Client) GetProfile(ctx context.Context, user string, opts ...grpc.CallOption) (map[string]any, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "GetProfile", wrapperspb.String(user), out, opts...); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

func (c *Client) ListUsers(ctx context.Context, opts ...grpc.CallOption) ([]string, error) {
	out := new(structpb.ListValue)
	if err := c.invoke(ctx, "ListUsers", &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return toStrings(out), nil
}

func (c *Client) UsersByTag(ctx context.Context, tag string, opts ...grpc.CallOption) ([]string, error) {
	out := new(structpb.ListValue)
	if err := c.invoke(ctx, "UsersByTag", wrapperspb.String(tag), out, opts...); err != nil {
		return nil, err
	}
	return toStrings(out), nil
}

func toStrings(list *structpb.ListValue) []string {
	out := make([]string, 0, len(list.GetValues()))
	for _, v := range list.GetValues() {
		out = append(out, v.GetStringValue())
	}
	return out
}
