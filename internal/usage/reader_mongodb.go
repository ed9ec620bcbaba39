package usage

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Summary implements Reader.
func (s *MongoDBStore) Summary(ctx context.Context, q Query) ([]ProviderSummary, error) {
	pipeline := bson.A{}

	match := bson.D{}
	if !q.Since.IsZero() {
		match = append(match, bson.E{Key: "$gte", Value: q.Since.UTC()})
	}
	if !q.Until.IsZero() {
		match = append(match, bson.E{Key: "$lt", Value: q.Until.UTC()})
	}
	if len(match) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: bson.D{{Key: "timestamp", Value: match}}}})
	}

	pipeline = append(pipeline,
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$provider"},
			{Key: "requests", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "errors", Value: bson.D{{Key: "$sum", Value: bson.D{
				{Key: "$cond", Value: bson.A{bson.D{{Key: "$eq", Value: bson.A{"$status", StatusErrored}}}, 1, 0}},
			}}}},
			{Key: "streams", Value: bson.D{{Key: "$sum", Value: bson.D{
				{Key: "$cond", Value: bson.A{"$stream", 1, 0}},
			}}}},
			{Key: "input_tokens", Value: bson.D{{Key: "$sum", Value: "$input_tokens"}}},
			{Key: "output_tokens", Value: bson.D{{Key: "$sum", Value: "$output_tokens"}}},
			{Key: "total_tokens", Value: bson.D{{Key: "$sum", Value: "$total_tokens"}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	)

	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate usage summary: %w", err)
	}
	defer cursor.Close(ctx)

	result := make([]ProviderSummary, 0)
	for cursor.Next(ctx) {
		var row struct {
			Provider     string `bson:"_id"`
			Requests     int64  `bson:"requests"`
			Errors       int64  `bson:"errors"`
			Streams      int64  `bson:"streams"`
			InputTokens  int64  `bson:"input_tokens"`
			OutputTokens int64  `bson:"output_tokens"`
			TotalTokens  int64  `bson:"total_tokens"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("failed to decode usage summary: %w", err)
		}
		result = append(result, ProviderSummary(row))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("error iterating usage summary cursor: %w", err)
	}
	return result, nil
}
