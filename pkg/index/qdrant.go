// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package index

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
)

// QdrantVectorIndex is a VectorIndex over an external Qdrant server, one
// collection per source. Used when the corpus outgrows the embedded store.
type QdrantVectorIndex struct {
	client *qdrant.Client
}

// NewQdrantVectorIndex connects to a Qdrant server over gRPC.
func NewQdrantVectorIndex(host string, port int, apiKey string, useTLS bool) (*QdrantVectorIndex, error) {
	if host == "" {
		host = "localhost"
	}
	if port == 0 {
		port = 6334 // Qdrant gRPC port
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		UseTLS: useTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithKeepaliveParams(keepalive.ClientParameters{
				Time:    30 * time.Second,
				Timeout: 10 * time.Second,
			}),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client for %s:%d: %w", host, port, err)
	}

	return &QdrantVectorIndex{client: client}, nil
}

// QueryVector implements VectorIndex.
func (q *QdrantVectorIndex) QueryVector(ctx context.Context, source string, vector []float32, k int) ([]VectorHit, error) {
	searchRequest := &qdrant.SearchPoints{
		CollectionName: source,
		Vector:         vector,
		Limit:          uint64(k),
		WithPayload:    qdrant.NewWithPayload(false),
	}

	pointsClient := q.client.GetPointsClient()
	searchResult, err := pointsClient.Search(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("vector search failed for %q: %w", source, err)
	}

	hits := make([]VectorHit, 0, len(searchResult.Result))
	for _, point := range searchResult.Result {
		id := ""
		if point.Id != nil {
			switch idType := point.Id.PointIdOptions.(type) {
			case *qdrant.PointId_Uuid:
				id = idType.Uuid
			case *qdrant.PointId_Num:
				id = fmt.Sprintf("%d", idType.Num)
			}
		}
		hits = append(hits, VectorHit{ChunkID: id, Score: point.Score})
	}
	return hits, nil
}

// HasSource implements VectorIndex.
func (q *QdrantVectorIndex) HasSource(ctx context.Context, source string) bool {
	exists, err := q.client.CollectionExists(ctx, source)
	return err == nil && exists
}

// Close implements VectorIndex.
func (q *QdrantVectorIndex) Close() error {
	return q.client.Close()
}

var _ VectorIndex = (*QdrantVectorIndex)(nil)
