package vector

import (
	"context"
	"fmt"

	qdrant "github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// QdrantProvider implements Provider over the Qdrant gRPC API. An API key is
// optional (self-hosted instances usually run without one).
type QdrantProvider struct {
	host   string
	port   int
	apiKey string

	grpcConn    *grpc.ClientConn
	points      qdrant.PointsClient
	collections qdrant.CollectionsClient
}

func NewQdrantProvider(host string, port int, apiKey string) *QdrantProvider {
	if host == "" {
		host = "localhost"
	}
	if port == 0 {
		port = 6334 // default gRPC port
	}
	return &QdrantProvider{host: host, port: port, apiKey: apiKey}
}

func (p *QdrantProvider) Initialize(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", p.host, p.port)

	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to connect to Qdrant: %w", err)
	}

	p.grpcConn = conn
	p.points = qdrant.NewPointsClient(conn)
	p.collections = qdrant.NewCollectionsClient(conn)

	log.Info().Str("address", address).Msg("✅ Connected to Qdrant")
	return nil
}

func (p *QdrantProvider) EnsureCollection(ctx context.Context, name string, vectorSize int) error {
	ctx = p.withAuth(ctx)

	list, err := p.collections.List(ctx, &qdrant.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	for _, c := range list.Collections {
		if c.Name == name {
			return nil
		}
	}

	_, err = p.collections.Create(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(vectorSize),
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	log.Info().Str("collection", name).Int("dims", vectorSize).Msg("✅ Vector collection created")
	return nil
}

func (p *QdrantProvider) Upsert(ctx context.Context, collection string, points []Point) error {
	qdrantPoints := make([]*qdrant.PointStruct, len(points))
	for i, point := range points {
		payload := make(map[string]*qdrant.Value, len(point.Payload))
		for key, val := range point.Payload {
			payload[key] = toQdrantValue(val)
		}

		qdrantPoints[i] = &qdrant.PointStruct{
			Id: &qdrant.PointId{
				PointIdOptions: &qdrant.PointId_Uuid{Uuid: point.ID},
			},
			Vectors: &qdrant.Vectors{
				VectorsOptions: &qdrant.Vectors_Vector{
					Vector: &qdrant.Vector{Data: point.Vector},
				},
			},
			Payload: payload,
		}
	}

	_, err := p.points.Upsert(p.withAuth(ctx), &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         qdrantPoints,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}
	return nil
}

func (p *QdrantProvider) Search(ctx context.Context, collection string, query []float32, limit int, match []MatchCondition) ([]SearchResult, error) {
	req := &qdrant.SearchPoints{
		CollectionName: collection,
		Vector:         query,
		Limit:          uint64(limit),
		WithPayload: &qdrant.WithPayloadSelector{
			SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true},
		},
	}

	if len(match) > 0 {
		must := make([]*qdrant.Condition, len(match))
		for i, cond := range match {
			must[i] = &qdrant.Condition{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key: cond.Key,
						Match: &qdrant.Match{
							MatchValue: &qdrant.Match_Keyword{Keyword: cond.Value},
						},
					},
				},
			}
		}
		req.Filter = &qdrant.Filter{Must: must}
	}

	response, err := p.points.Search(p.withAuth(ctx), req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := make([]SearchResult, len(response.Result))
	for i, hit := range response.Result {
		payload := make(map[string]interface{}, len(hit.Payload))
		for key, val := range hit.Payload {
			payload[key] = fromQdrantValue(val)
		}
		results[i] = SearchResult{
			ID:      hit.Id.GetUuid(),
			Score:   hit.Score,
			Payload: payload,
		}
	}
	return results, nil
}

func (p *QdrantProvider) Delete(ctx context.Context, collection string, ids []string) error {
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = &qdrant.PointId{
			PointIdOptions: &qdrant.PointId_Uuid{Uuid: id},
		}
	}

	_, err := p.points.Delete(p.withAuth(ctx), &qdrant.DeletePoints{
		CollectionName: collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: pointIDs},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete points: %w", err)
	}
	return nil
}

func (p *QdrantProvider) Close() error {
	if p.grpcConn != nil {
		return p.grpcConn.Close()
	}
	return nil
}

func (p *QdrantProvider) withAuth(ctx context.Context) context.Context {
	if p.apiKey == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "api-key", p.apiKey)
}

func toQdrantValue(v interface{}) *qdrant.Value {
	switch val := v.(type) {
	case string:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
	case int:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
	case int64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}
	case float64:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
	default:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: fmt.Sprintf("%v", val)}}
	}
}

func fromQdrantValue(v *qdrant.Value) interface{} {
	switch kind := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	default:
		return nil
	}
}
