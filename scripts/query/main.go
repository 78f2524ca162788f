package main

import (
	"Go2NetProfile/internal/config"
	"Go2NetProfile/internal/query"
	"Go2NetProfile/internal/rpc"
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	mode := flag.String("mode", "api", "Query mode: 'api' (HTTP), 'grpc' or 'direct' (ClickHouse).")
	user := flag.String("user", "", "Query a single user's profile or history.")
	tag := flag.String("tag", "", "List users carrying this tag.")
	apiAddr := flag.String("api", "http://localhost:5001", "HTTP API base URL.")
	grpcAddr := flag.String("grpc", "localhost:50051", "gRPC server address.")
	chHost := flag.String("ch-host", "localhost", "ClickHouse host for direct mode.")
	chPort := flag.Int("ch-port", 9000, "ClickHouse port for direct mode.")
	flag.Parse()

	log.Printf("Running in '%s' mode.", *mode)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var (
		result any
		err    error
	)
	switch *mode {
	case "api":
		result, err = queryViaAPI(*apiAddr, *user, *tag)
	case "grpc":
		result, err = queryViaGRPC(ctx, *grpcAddr, *user, *tag)
	case "direct":
		result, err = queryDirect(ctx, config.ClickHouseConfig{Host: *chHost, Port: *chPort, Database: "default", Username: "default"}, *user, *tag)
	default:
		log.Fatalf("Invalid mode: %s. Use 'api', 'grpc' or 'direct'.", *mode)
	}
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatalf("Error marshalling result: %v", err)
	}
	log.Println("---")
	fmt.Println(string(out))
}

func queryViaAPI(base, user, tag string) (any, error) {
	path := "/api/stats"
	switch {
	case user != "":
		path = "/api/user_profiles/" + user
	case tag != "":
		path = "/api/tags/" + tag
	}

	resp, err := http.Get(base + path)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}
	return v, nil
}

func queryViaGRPC(ctx context.Context, addr, user, tag string) (any, error) {
	client, conn, err := rpc.Dial(addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	switch {
	case user != "":
		return client.GetProfile(ctx, user)
	case tag != "":
		return client.UsersByTag(ctx, tag)
	default:
		return client.ListUsers(ctx)
	}
}

func queryDirect(ctx context.Context, cfg config.ClickHouseConfig, user, tag string) (any, error) {
	q, err := query.NewClickHouseQuerier(cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Successfully connected to ClickHouse.")

	switch {
	case user != "":
		return q.UserHistory(ctx, user, 0)
	case tag != "":
		return q.UsersWithTag(ctx, tag)
	default:
		return q.TagCounts(ctx)
	}
}
