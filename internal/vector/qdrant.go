package vector

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/kaiwa/internal/models"
	pb "github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Reserved payload keys. Metadata keys never start with an underscore.
const (
	payloadID       = "_id"
	payloadDocument = "_doc"
	payloadOrdinal  = "_ord"
)

const (
	qdrantAliasPrefix = "kaiwa_"
	qdrantBatchSize   = 256
	qdrantScrollPage  = 512
)

// QdrantStore maps each namespace to a Qdrant alias. Upsert fills a fresh generation collection
// and repoints the alias in one UpdateAliases call, so searches see the old or the new set.
type QdrantStore struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	dimensions  int
	logger      *zap.Logger
	now         func() time.Time
}

// NewQdrantStore creates a store connected to Qdrant at the given gRPC address.
func NewQdrantStore(addr string, dimensions int, logger *zap.Logger) (*QdrantStore, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("vector: dial qdrant %s: %w", addr, err)
	}
	return &QdrantStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		dimensions:  dimensions,
		logger:      logger,
		now:         time.Now,
	}, nil
}

// aliasName maps a namespace to a valid, prefixed Qdrant alias.
func aliasName(namespace string) string {
	var b strings.Builder
	b.WriteString(qdrantAliasPrefix)
	for _, r := range namespace {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// pointID derives a stable UUID for a record id, since Qdrant accepts only UUIDs or integers.
func pointID(id string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

// Upsert builds a new generation collection and swaps the namespace alias onto it.
func (q *QdrantStore) Upsert(ctx context.Context, namespace string, records []models.VectorRecord) error {
	snapshot, err := prepare(q.dimensions, records)
	if err != nil {
		return err
	}
	alias := aliasName(namespace)
	generation := fmt.Sprintf("%s__%d", alias, q.now().UnixNano())

	if _, err := q.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: generation,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(q.dimensions),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	}); err != nil {
		return fmt.Errorf("vector: create collection %s: %w", generation, err)
	}

	if err := q.upsertPoints(ctx, generation, snapshot); err != nil {
		q.dropCollection(context.WithoutCancel(ctx), generation)
		return err
	}

	previous, _, err := q.resolveAlias(ctx, alias)
	if err != nil {
		q.dropCollection(context.WithoutCancel(ctx), generation)
		return err
	}
	actions := []*pb.AliasOperations{}
	if previous != "" {
		actions = append(actions, &pb.AliasOperations{
			Action: &pb.AliasOperations_DeleteAlias{DeleteAlias: &pb.DeleteAlias{AliasName: alias}},
		})
	}
	actions = append(actions, &pb.AliasOperations{
		Action: &pb.AliasOperations_CreateAlias{CreateAlias: &pb.CreateAlias{CollectionName: generation, AliasName: alias}},
	})
	if _, err := q.collections.UpdateAliases(ctx, &pb.ChangeAliases{Actions: actions}); err != nil {
		q.dropCollection(context.WithoutCancel(ctx), generation)
		return fmt.Errorf("vector: swap alias %s: %w", alias, err)
	}
	if previous != "" {
		q.dropCollection(context.WithoutCancel(ctx), previous)
	}
	return nil
}

func (q *QdrantStore) upsertPoints(ctx context.Context, collection string, records []models.VectorRecord) error {
	wait := true
	for start := 0; start < len(records); start += qdrantBatchSize {
		end := start + qdrantBatchSize
		if end > len(records) {
			end = len(records)
		}
		points := make([]*pb.PointStruct, 0, end-start)
		for i := start; i < end; i++ {
			r := records[i]
			payload := make(map[string]*pb.Value, len(r.Metadata)+3)
			for k, v := range r.Metadata {
				payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
			}
			payload[payloadID] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: r.ID}}
			payload[payloadDocument] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: r.Document}}
			payload[payloadOrdinal] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(i)}}
			points = append(points, &pb.PointStruct{
				Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: pointID(r.ID)}},
				Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: r.Vector}}},
				Payload: payload,
			})
		}
		if _, err := q.points.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: collection,
			Wait:           &wait,
			Points:         points,
		}); err != nil {
			return fmt.Errorf("vector: upsert %d points: %w", len(points), err)
		}
	}
	return nil
}

// resolveAlias returns the collection behind alias, or "" when the alias does not exist.
func (q *QdrantStore) resolveAlias(ctx context.Context, alias string) (string, []string, error) {
	resp, err := q.collections.ListAliases(ctx, &pb.ListAliasesRequest{})
	if err != nil {
		return "", nil, fmt.Errorf("vector: list aliases: %w", err)
	}
	var target string
	var all []string
	for _, a := range resp.GetAliases() {
		if strings.HasPrefix(a.GetAliasName(), qdrantAliasPrefix) {
			all = append(all, a.GetAliasName())
		}
		if a.GetAliasName() == alias {
			target = a.GetCollectionName()
		}
	}
	return target, all, nil
}

func (q *QdrantStore) dropCollection(ctx context.Context, collection string) {
	if _, err := q.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: collection}); err != nil && q.logger != nil {
		q.logger.Warn("drop qdrant collection failed", zap.String("collection", collection), zap.Error(err))
	}
}

// Query searches the namespace alias. Equal scores keep insertion order.
func (q *QdrantStore) Query(ctx context.Context, namespace string, vector []float32, k int, filter map[string]string) ([]models.ScoredRecord, error) {
	if len(vector) != q.dimensions {
		return nil, &models.DimensionError{Expected: q.dimensions, Got: len(vector)}
	}
	if k <= 0 {
		return nil, nil
	}
	ok, err := q.Exists(ctx, namespace)
	if err != nil || !ok {
		return nil, err
	}
	resp, err := q.points.Search(ctx, &pb.SearchPoints{
		CollectionName: aliasName(namespace),
		Vector:         vector,
		Limit:          uint64(k),
		Filter:         buildFilter(filter),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("vector: search %s: %w", namespace, err)
	}
	type hit struct {
		rec models.ScoredRecord
		ord int64
	}
	hits := make([]hit, 0, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		rec, ord := recordFromPayload(p.GetPayload())
		sim := float64(p.GetScore())
		hits = append(hits, hit{rec: models.ScoredRecord{Record: rec, Similarity: sim, Distance: 1 - sim}, ord: ord})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].rec.Similarity != hits[j].rec.Similarity {
			return hits[i].rec.Similarity > hits[j].rec.Similarity
		}
		return hits[i].ord < hits[j].ord
	})
	out := make([]models.ScoredRecord, len(hits))
	for i, h := range hits {
		out[i] = h.rec
	}
	return out, nil
}

// Get scrolls every matching point of the namespace. Vectors are not returned.
func (q *QdrantStore) Get(ctx context.Context, namespace string, filter map[string]string) ([]models.VectorRecord, error) {
	ok, err := q.Exists(ctx, namespace)
	if err != nil || !ok {
		return nil, err
	}
	type ordered struct {
		rec models.VectorRecord
		ord int64
	}
	var all []ordered
	limit := uint32(qdrantScrollPage)
	var offset *pb.PointId
	for {
		resp, err := q.points.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: aliasName(namespace),
			Filter:         buildFilter(filter),
			Offset:         offset,
			Limit:          &limit,
			WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		})
		if err != nil {
			return nil, fmt.Errorf("vector: scroll %s: %w", namespace, err)
		}
		for _, p := range resp.GetResult() {
			rec, ord := recordFromPayload(p.GetPayload())
			all = append(all, ordered{rec: rec, ord: ord})
		}
		offset = resp.GetNextPageOffset()
		if offset == nil {
			break
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ord < all[j].ord })
	out := make([]models.VectorRecord, len(all))
	for i, o := range all {
		out[i] = o.rec
	}
	return out, nil
}

// Delete removes the alias and its collection. Deleting an absent namespace is not an error.
func (q *QdrantStore) Delete(ctx context.Context, namespace string) error {
	alias := aliasName(namespace)
	target, _, err := q.resolveAlias(ctx, alias)
	if err != nil {
		return err
	}
	if target == "" {
		return nil
	}
	if _, err := q.collections.UpdateAliases(ctx, &pb.ChangeAliases{Actions: []*pb.AliasOperations{{
		Action: &pb.AliasOperations_DeleteAlias{DeleteAlias: &pb.DeleteAlias{AliasName: alias}},
	}}}); err != nil {
		return fmt.Errorf("vector: delete alias %s: %w", alias, err)
	}
	q.dropCollection(ctx, target)
	return nil
}

// Exists reports whether the namespace alias exists.
func (q *QdrantStore) Exists(ctx context.Context, namespace string) (bool, error) {
	target, _, err := q.resolveAlias(ctx, aliasName(namespace))
	if err != nil {
		return false, err
	}
	return target != "", nil
}

// Namespaces lists the aliases owned by this store, with the prefix removed and sorted.
// Namespaces whose names were sanitized are returned in sanitized form.
func (q *QdrantStore) Namespaces(ctx context.Context) ([]string, error) {
	_, aliases, err := q.resolveAlias(ctx, "")
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(aliases))
	for _, a := range aliases {
		out = append(out, strings.TrimPrefix(a, qdrantAliasPrefix))
	}
	sort.Strings(out)
	return out, nil
}

// Dimensions returns the fixed vector length.
func (q *QdrantStore) Dimensions() int { return q.dimensions }

// Close closes the underlying gRPC connection.
func (q *QdrantStore) Close() error {
	return q.conn.Close()
}

func buildFilter(filter map[string]string) *pb.Filter {
	if len(filter) == 0 {
		return nil
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	must := make([]*pb.Condition, 0, len(keys))
	for _, k := range keys {
		must = append(must, fieldMatch(k, filter[k]))
	}
	return &pb.Filter{Must: must}
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

// recordFromPayload rebuilds a record and its insertion ordinal from a point payload.
func recordFromPayload(payload map[string]*pb.Value) (models.VectorRecord, int64) {
	rec := models.VectorRecord{Metadata: models.Metadata{}}
	var ord int64
	for k, v := range payload {
		switch k {
		case payloadID:
			rec.ID = v.GetStringValue()
		case payloadDocument:
			rec.Document = v.GetStringValue()
		case payloadOrdinal:
			ord = v.GetIntegerValue()
		default:
			rec.Metadata[k] = v.GetStringValue()
		}
	}
	return rec, ord
}
