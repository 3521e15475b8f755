package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/petrijr/jobseal/pkg/api"
	"github.com/petrijr/jobseal/pkg/store"
)

// Redis is a Backend on top of Redis. It uses the key structure:
//
//	<prefix>rec:<path>:<id>     => msgpack document
//	<prefix>pending:<path>      => LIST of unclaimed IDs, oldest on the right
//	<prefix>claims:<path>       => ZSET of claimed IDs scored by lease expiry (unix ms)
//	<prefix>chan:<path>:<id>    => pub/sub channel carrying every new body, "" on delete
//
// Watch is push based through the pub/sub channel.
type Redis struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedis constructs a Redis-backed Backend.
// prefix is optional but recommended (e.g. "jobseal:").
func NewRedis(client *redis.Client, prefix string, logger *slog.Logger) *Redis {
	if prefix == "" {
		prefix = "jobseal:"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{client: client, prefix: prefix, logger: logger}
}

var (
	_ store.Backend = (*Redis)(nil)
	_ store.Watcher = (*Redis)(nil)
)

// claimScript moves expired claims back to the head of the pending list,
// then pops IDs until one still has a body and claims it.
var claimScript = redis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1])
for _, id in ipairs(expired) do
	redis.call('ZREM', KEYS[2], id)
	redis.call('RPUSH', KEYS[1], id)
end
while true do
	local id = redis.call('RPOP', KEYS[1])
	if not id then
		return false
	end
	local body = redis.call('GET', ARGV[3] .. id)
	if body then
		redis.call('ZADD', KEYS[2], ARGV[2], id)
		return {id, body}
	end
end
`)

// releaseScript pushes a claimed ID back to the head of the pending list,
// or, with a non-zero ARGV[2], moves its claim expiry to that time so the
// claim script requeues it later.
var releaseScript = redis.NewScript(`
if tonumber(ARGV[2]) > 0 then
	if redis.call('ZSCORE', KEYS[2], ARGV[1]) then
		redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
	end
	return 1
end
if redis.call('ZREM', KEYS[2], ARGV[1]) == 1 then
	redis.call('RPUSH', KEYS[1], ARGV[1])
end
return 1
`)

func (r *Redis) keyRecordPrefix(path string) string { return r.prefix + "rec:" + path + ":" }
func (r *Redis) keyRecord(path, id string) string   { return r.keyRecordPrefix(path) + id }
func (r *Redis) keyPending(path string) string      { return r.prefix + "pending:" + path }
func (r *Redis) keyClaims(path string) string       { return r.prefix + "claims:" + path }
func (r *Redis) keyChannel(path, id string) string {
	return r.prefix + "chan:" + path + ":" + id
}

func (r *Redis) Insert(ctx context.Context, path string, doc api.Document) (string, error) {
	body, err := store.EncodeDocument(doc)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.keyRecord(path, id), body, 0)
		pipe.LPush(ctx, r.keyPending(path), id)
		pipe.Publish(ctx, r.keyChannel(path, id), body)
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Redis) Get(ctx context.Context, path, id string) (api.Document, error) {
	body, err := r.client.Get(ctx, r.keyRecord(path, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return store.DecodeDocument(body)
}

func (r *Redis) Put(ctx context.Context, path, id string, doc api.Document) error {
	body, err := store.EncodeDocument(doc)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.keyRecord(path, id), body, 0)
		pipe.Publish(ctx, r.keyChannel(path, id), body)
		return nil
	})
	return err
}

func (r *Redis) Delete(ctx context.Context, path, id string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.keyRecord(path, id))
		pipe.ZRem(ctx, r.keyClaims(path), id)
		pipe.LRem(ctx, r.keyPending(path), 0, id)
		pipe.Publish(ctx, r.keyChannel(path, id), "")
		return nil
	})
	return err
}

func (r *Redis) Claim(ctx context.Context, path string, lease time.Duration) (string, api.Document, error) {
	now := time.Now()
	res, err := claimScript.Run(ctx, r.client,
		[]string{r.keyPending(path), r.keyClaims(path)},
		now.UnixMilli(),
		now.Add(lease).UnixMilli(),
		r.keyRecordPrefix(path),
	).Slice()
	if errors.Is(err, redis.Nil) {
		return "", nil, store.ErrEmpty
	}
	if err != nil {
		return "", nil, err
	}
	if len(res) != 2 {
		return "", nil, fmt.Errorf("redis claim: unexpected result %#v", res)
	}

	id, _ := res[0].(string)
	body, _ := res[1].(string)
	doc, err := store.DecodeDocument([]byte(body))
	if err != nil {
		return "", nil, err
	}
	return id, doc, nil
}

func (r *Redis) Release(ctx context.Context, path, id string, delay time.Duration) error {
	var until int64
	if delay > 0 {
		until = time.Now().Add(delay).UnixMilli()
	}
	return releaseScript.Run(ctx, r.client,
		[]string{r.keyPending(path), r.keyClaims(path)}, id, until).Err()
}

// Watch implements store.Watcher using pub/sub. The subscription is
// confirmed before the current state is read so no change is missed.
func (r *Redis) Watch(ctx context.Context, path, id string) (<-chan api.Document, error) {
	sub := r.client.Subscribe(ctx, r.keyChannel(path, id))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	out := make(chan api.Document, 1)
	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()

		doc, err := r.Get(ctx, path, id)
		switch {
		case errors.Is(err, store.ErrNotFound):
			send(ctx, out, nil)
			return
		case err != nil:
			if ctx.Err() == nil {
				r.logger.WarnContext(ctx, "redis_watch_get_failed",
					slog.String("path", path),
					slog.String("id", id),
					slog.Any("error", err),
				)
			}
			return
		}
		if !send(ctx, out, doc) {
			return
		}

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				if msg.Payload == "" {
					send(ctx, out, nil)
					return
				}
				doc, err := store.DecodeDocument([]byte(msg.Payload))
				if err != nil {
					r.logger.WarnContext(ctx, "redis_watch_decode_failed",
						slog.String("path", path),
						slog.String("id", id),
						slog.Any("error", err),
					)
					continue
				}
				if !send(ctx, out, doc) {
					return
				}
			}
		}
	}()
	return out, nil
}

// Close is a no-op; the caller owns the client.
func (r *Redis) Close() error { return nil }
