// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/setlist/internal/config"
	"github.com/tomtom215/setlist/internal/models"
)

// Kinds of served output.
const (
	KindRules = "rules"
	KindEdges = "edges"
)

// ErrNotPublished is returned by reads when no generation of a kind is
// served, either before the first publish or after a failed one.
var ErrNotPublished = errors.New("nothing published")

// staleTTL is how long a replaced generation stays readable for in-flight
// readers before Redis expires it.
const staleTTL = 5 * time.Minute

// redisPipelineBatch bounds the commands queued per pipeline round trip.
const redisPipelineBatch = 1000

// RedisStore serves rules and similarity edges from Redis.
//
// Each publish writes a new generation under fresh keys and then moves the
// "current" pointer with a single SET, so readers see either the previous
// complete set or the new one:
//
//	{prefix}{kind}:current          -> generation number
//	{prefix}{kind}:seq              -> generation counter
//	{prefix}{kind}:{gen}:meta       -> hash {created_at, records}
//	{prefix}{kind}:{gen}:sources    -> set of source items
//	{prefix}rules:{gen}:s:{source}  -> hash target -> {"c":confidence,"s":support}
//	{prefix}edges:{gen}:s:{source}  -> sorted set target scored by similarity
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg *config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return &RedisStore{client: client, prefix: keyPrefix(cfg.KeyPrefix)}, nil
}

// Name identifies the store in logs.
func (r *RedisStore) Name() string { return "redis" }

// Close closes the client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

type ruleValue struct {
	Confidence float64 `json:"c"`
	Support    float64 `json:"s"`
}

// PublishRules replaces the served rule set. On failure the previously
// served set is withdrawn.
func (r *RedisStore) PublishRules(ctx context.Context, rules []models.Rule, createdAt time.Time) error {
	return r.publish(ctx, KindRules, createdAt, len(rules), func(pipe redis.Pipeliner, gen int64, i int) (string, error) {
		rule := rules[i]
		val, err := json.Marshal(ruleValue{Confidence: rule.Confidence, Support: rule.Support})
		if err != nil {
			return "", err
		}
		pipe.HSet(ctx, r.sourceKey(KindRules, gen, rule.Source), rule.Target, val)
		return rule.Source, nil
	})
}

// PublishEdges replaces the served similarity edge set.
func (r *RedisStore) PublishEdges(ctx context.Context, edges []models.SimilarityEdge, createdAt time.Time) error {
	return r.publish(ctx, KindEdges, createdAt, len(edges), func(pipe redis.Pipeliner, gen int64, i int) (string, error) {
		e := edges[i]
		pipe.ZAdd(ctx, r.sourceKey(KindEdges, gen, e.Source), redis.Z{Score: e.Similarity, Member: e.Target})
		return e.Source, nil
	})
}

func (r *RedisStore) publish(ctx context.Context, kind string, createdAt time.Time, n int,
	write func(pipe redis.Pipeliner, gen int64, i int) (string, error)) (err error) {
	gen, err := r.client.Incr(ctx, r.key(kind, "seq")).Result()
	if err != nil {
		return fmt.Errorf("allocate %s generation: %w", kind, err)
	}
	defer func() {
		if err != nil {
			r.withdraw(context.WithoutCancel(ctx), kind, gen)
		}
	}()

	sourcesKey := r.genKey(kind, gen, "sources")
	seen := make(map[string]struct{})
	pipe := r.client.Pipeline()
	for i := 0; i < n; i++ {
		source, err := write(pipe, gen, i)
		if err != nil {
			pipe.Discard()
			return fmt.Errorf("encode %s record: %w", kind, err)
		}
		if _, ok := seen[source]; !ok {
			seen[source] = struct{}{}
			pipe.SAdd(ctx, sourcesKey, source)
		}
		if pipe.Len() >= redisPipelineBatch {
			if _, err := pipe.Exec(ctx); err != nil {
				return fmt.Errorf("write %s generation %d: %w", kind, gen, err)
			}
		}
	}
	pipe.HSet(ctx, r.genKey(kind, gen, "meta"),
		"created_at", createdAt.UTC().Format(time.RFC3339Nano),
		"records", n)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write %s generation %d: %w", kind, gen, err)
	}

	prev, err := r.currentGeneration(ctx, kind)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(kind, "current"), gen, 0).Err(); err != nil {
		return fmt.Errorf("swap %s generation: %w", kind, err)
	}
	if prev > 0 {
		r.expireGeneration(ctx, kind, prev)
	}
	return nil
}

// withdraw handles a failed publish of gen. The primary store already holds
// the newer set, so the current pointer is removed and readers fall back to it
// until the next publish. Both the served and the failed generation expire.
func (r *RedisStore) withdraw(ctx context.Context, kind string, gen int64) {
	prev, err := r.currentGeneration(ctx, kind)
	if err == nil && prev > 0 {
		if r.client.Del(ctx, r.key(kind, "current")).Err() == nil && prev != gen {
			r.expireGeneration(ctx, kind, prev)
		}
	}
	r.expireGeneration(ctx, kind, gen)
}

// expireGeneration puts a TTL on every key of a replaced generation. Failures
// only leave stale keys behind.
func (r *RedisStore) expireGeneration(ctx context.Context, kind string, gen int64) {
	sourcesKey := r.genKey(kind, gen, "sources")
	sources, err := r.client.SMembers(ctx, sourcesKey).Result()
	if err != nil {
		return
	}
	pipe := r.client.Pipeline()
	for _, s := range sources {
		pipe.Expire(ctx, r.sourceKey(kind, gen, s), staleTTL)
	}
	pipe.Expire(ctx, sourcesKey, staleTTL)
	pipe.Expire(ctx, r.genKey(kind, gen, "meta"), staleTTL)
	_, _ = pipe.Exec(ctx)
}

// currentGeneration returns the served generation, or 0 when nothing has
// been published.
func (r *RedisStore) currentGeneration(ctx context.Context, kind string) (int64, error) {
	gen, err := r.client.Get(ctx, r.key(kind, "current")).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read %s generation: %w", kind, err)
	}
	return gen, nil
}

// Published reports whether kind has a current generation.
func (r *RedisStore) Published(ctx context.Context, kind string) (bool, error) {
	gen, err := r.currentGeneration(ctx, kind)
	return gen > 0, err
}

func (r *RedisStore) createdAt(ctx context.Context, kind string, gen int64) time.Time {
	raw, err := r.client.HGet(ctx, r.genKey(kind, gen, "meta"), "created_at").Result()
	if err != nil {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

// RulesFromSources returns the served rules whose source is in sources, or
// ErrNotPublished when no rule set is served.
func (r *RedisStore) RulesFromSources(ctx context.Context, sources []string) ([]models.Rule, error) {
	if len(sources) == 0 {
		return []models.Rule{}, nil
	}
	gen, err := r.currentGeneration(ctx, KindRules)
	if err != nil {
		return nil, err
	}
	if gen == 0 {
		return nil, fmt.Errorf("%s: %w", KindRules, ErrNotPublished)
	}
	createdAt := r.createdAt(ctx, KindRules, gen)

	pipe := r.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(sources))
	for i, s := range sources {
		cmds[i] = pipe.HGetAll(ctx, r.sourceKey(KindRules, gen, s))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read rules: %w", err)
	}

	var out []models.Rule
	for i, cmd := range cmds {
		for target, raw := range cmd.Val() {
			var v ruleValue
			if err := json.Unmarshal([]byte(raw), &v); err != nil {
				return nil, fmt.Errorf("decode rule %s -> %s: %w", sources[i], target, err)
			}
			out = append(out, models.Rule{
				CreatedAt:  createdAt,
				Source:     sources[i],
				Target:     target,
				Confidence: v.Confidence,
				Support:    v.Support,
			})
		}
	}
	return out, nil
}

// EdgesFromSources returns the served edges whose source is in sources,
// highest similarity first per source, or ErrNotPublished when no edge set is
// served.
func (r *RedisStore) EdgesFromSources(ctx context.Context, sources []string) ([]models.SimilarityEdge, error) {
	if len(sources) == 0 {
		return []models.SimilarityEdge{}, nil
	}
	gen, err := r.currentGeneration(ctx, KindEdges)
	if err != nil {
		return nil, err
	}
	if gen == 0 {
		return nil, fmt.Errorf("%s: %w", KindEdges, ErrNotPublished)
	}
	createdAt := r.createdAt(ctx, KindEdges, gen)

	pipe := r.client.Pipeline()
	cmds := make([]*redis.ZSliceCmd, len(sources))
	for i, s := range sources {
		cmds[i] = pipe.ZRevRangeWithScores(ctx, r.sourceKey(KindEdges, gen, s), 0, -1)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read similarity edges: %w", err)
	}

	var out []models.SimilarityEdge
	for i, cmd := range cmds {
		for _, z := range cmd.Val() {
			target, _ := z.Member.(string)
			out = append(out, models.SimilarityEdge{
				CreatedAt:  createdAt,
				Source:     sources[i],
				Target:     target,
				Similarity: z.Score,
			})
		}
	}
	return out, nil
}

func keyPrefix(p string) string {
	if p == "" || strings.HasSuffix(p, ":") {
		return p
	}
	return p + ":"
}

func (r *RedisStore) key(kind, name string) string {
	return r.prefix + kind + ":" + name
}

func (r *RedisStore) genKey(kind string, gen int64, name string) string {
	return r.prefix + kind + ":" + strconv.FormatInt(gen, 10) + ":" + name
}

func (r *RedisStore) sourceKey(kind string, gen int64, source string) string {
	return r.genKey(kind, gen, "s:"+source)
}
