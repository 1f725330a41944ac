package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"silent-partners/backend/internal/network"
	"silent-partners/backend/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	apiURL := flag.String("api-url", "http://localhost:5000/api", "Base URL of a running API server")
	networkID := flag.String("network-id", "test-1mdb", "Network ID to seed")
	exportPath := flag.String("export", "", "Write the exported network to this file")
	flag.Parse()

	// Initialize logger
	if err := logger.Init("development"); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting network seeding...", zap.String("api_url", *apiURL))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c := &client{base: strings.TrimRight(*apiURL, "/"), http: &http.Client{Timeout: 10 * time.Second}}

	var health map[string]any
	if err := c.do(ctx, http.MethodGet, "/health", nil, &health); err != nil {
		log.Fatal("API is not reachable", zap.Error(err))
	}
	log.Info("API is healthy", zap.Any("networks", health["networks"]), zap.Any("version", health["version"]))

	// Base network, then an incremental batch that links into it
	for i, batch := range []network.SubmitRequest{baseNetwork(*networkID), incrementalBatch(*networkID)} {
		var res submitResponse
		if err := c.do(ctx, http.MethodPost, "/network", batch, &res); err != nil {
			log.Fatal("Failed to submit batch", zap.Int("batch", i), zap.Error(err))
		}
		log.Info("Submitted batch",
			zap.Int("batch", i),
			zap.String("network_id", res.NetworkID),
			zap.Int("added_entities", res.Added.Entities),
			zap.Int("added_relationships", res.Added.Relationships),
			zap.Int("total_entities", res.Total.Entities),
			zap.Int("total_relationships", res.Total.Relationships),
			zap.Int("skipped", len(res.Skipped)),
		)
	}

	var graph network.Graph
	if err := c.do(ctx, http.MethodGet, "/network/"+*networkID+"/export", nil, &graph); err != nil {
		log.Fatal("Failed to export network", zap.Error(err))
	}
	log.Info("Exported network", zap.Int("nodes", len(graph.Nodes)), zap.Int("links", len(graph.Links)))

	var suggested struct {
		Candidates []network.Candidate `json:"candidates"`
	}
	if err := c.do(ctx, http.MethodGet, "/network/"+*networkID+"/candidates", nil, &suggested); err != nil {
		log.Fatal("Failed to list candidates", zap.Error(err))
	}
	for _, cand := range suggested.Candidates {
		log.Info("Suggested connection",
			zap.String("source", cand.Source),
			zap.String("target", cand.Target),
			zap.Float64("confidence", cand.Confidence),
			zap.Strings("methods", cand.Methods),
		)
	}

	if *exportPath != "" {
		data, err := json.MarshalIndent(graph, "", "  ")
		if err != nil {
			log.Fatal("Failed to encode export", zap.Error(err))
		}
		if err := os.WriteFile(*exportPath, data, 0o644); err != nil {
			log.Fatal("Failed to write export", zap.Error(err))
		}
		log.Info("Wrote export", zap.String("path", *exportPath))
	}

	log.Info("Seeding completed successfully!")
}

type counts struct {
	Entities      int `json:"entities"`
	Relationships int `json:"relationships"`
}

type submitResponse struct {
	NetworkID string               `json:"network_id"`
	Added     counts               `json:"added"`
	Total     counts               `json:"total"`
	Skipped   []network.Diagnostic `json:"skipped"`
}

type client struct {
	base string
	http *http.Client
}

func (c *client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return json.Unmarshal(data, out)
}

func rel(source, target, relType, description, status, value string) network.RelationshipInput {
	r := network.NewRelationshipInput(source, target, relType)
	r.Description = &description
	r.Status = &status
	if value != "" {
		v := network.FlexString(value)
		r.Value = &v
	}
	return r
}

func baseNetwork(id string) network.SubmitRequest {
	return network.SubmitRequest{
		NetworkID: id,
		Entities: []network.EntityInput{
			network.NewEntityInput("Jho Low", "person", 5, "Malaysian financier, primary architect of 1MDB fraud"),
			network.NewEntityInput("Najib Razak", "person", 5, "Former Prime Minister of Malaysia"),
			network.NewEntityInput("1MDB", "organization", 5, "Malaysian sovereign wealth fund"),
			network.NewEntityInput("Goldman Sachs", "organization", 4, "Investment bank that arranged bond sales"),
			network.NewEntityInput("Tim Leissner", "person", 3, "Goldman Sachs Southeast Asia chairman"),
		},
		Relationships: []network.RelationshipInput{
			rel("Jho Low", "1MDB", "financial", "Orchestrated systematic looting", "confirmed", "$4.5 billion"),
			rel("Jho Low", "Najib Razak", "personal", "Cultivated relationship with PM", "confirmed", ""),
			rel("Najib Razak", "1MDB", "employment", "Chairman of 1MDB advisory board", "confirmed", ""),
			rel("Goldman Sachs", "1MDB", "financial", "Arranged bond sales", "confirmed", "$6.5 billion raised, $600M fees"),
			rel("Tim Leissner", "Goldman Sachs", "employment", "Southeast Asia chairman", "former", ""),
		},
	}
}

func incrementalBatch(id string) network.SubmitRequest {
	return network.SubmitRequest{
		NetworkID: id,
		Entities: []network.EntityInput{
			network.NewEntityInput("Roger Ng", "person", 3, "Goldman Sachs banker convicted for role in scandal"),
			network.NewEntityInput("Red Granite Pictures", "organization", 2, "Production company that financed Wolf of Wall Street"),
		},
		Relationships: []network.RelationshipInput{
			rel("Roger Ng", "Goldman Sachs", "employment", "Banker involved in 1MDB transactions", "former", ""),
			rel("Jho Low", "Red Granite Pictures", "financial", "Financed film production with stolen funds", "confirmed", ""),
		},
	}
}
