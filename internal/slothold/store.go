package slothold

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	domain "github.com/TabarBaptiste/masseuse/internal/domain/booking"
	"github.com/TabarBaptiste/masseuse/internal/httperr"
)

const (
	holdKeyPrefix    = "slothold:"
	webhookKeyPrefix = "webhook:session:"
	maxTxRetries     = 5
)

// Store keeps slot holds in one sorted set per date. Members encode
// "token|start|end" and are scored by their expiry (unix seconds), so
// expired holds are trimmed by score.
type Store struct {
	rdb *redis.Client
	now func() time.Time
}

func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb, now: time.Now}
}

func holdKey(date string) string {
	return holdKeyPrefix + date
}

func member(h domain.Hold) string {
	return fmt.Sprintf("%s|%d|%d", h.Token, h.Interval.Start, h.Interval.End)
}

func parseMember(date, m string) (domain.Hold, bool) {
	parts := strings.Split(m, "|")
	if len(parts) != 3 {
		return domain.Hold{}, false
	}
	start, err1 := strconv.Atoi(parts[1])
	end, err2 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil {
		return domain.Hold{}, false
	}
	return domain.Hold{
		Token:    parts[0],
		Date:     date,
		Interval: domain.Interval{Start: domain.Minute(start), End: domain.Minute(end)},
	}, true
}

// Acquire claims h for ttl unless another live hold overlaps it. The check
// and the write run in one optimistic transaction on the date key.
func (s *Store) Acquire(ctx context.Context, h domain.Hold, ttl time.Duration) error {
	key := holdKey(h.Date)

	txf := func(tx *redis.Tx) error {
		now := s.now()
		live, err := tx.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
			Min: "(" + strconv.FormatInt(now.Unix(), 10),
			Max: "+inf",
		}).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		// The key lives as long as its longest hold; re-acquiring a token
		// with a longer ttl extends it.
		expiresAt := now.Add(ttl).Unix()
		keyExpiry := expiresAt
		for _, z := range live {
			m, _ := z.Member.(string)
			other, ok := parseMember(h.Date, m)
			if !ok || other.Token == h.Token {
				continue
			}
			if other.Interval.Overlaps(h.Interval) {
				return httperr.SlotUnavailable(
					"slot_held",
					"slot %s on %s is held by another checkout",
					h.Interval, h.Date,
				)
			}
			if e := int64(z.Score); e > keyExpiry {
				keyExpiry = e
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(now.Unix(), 10))
			pipe.ZAdd(ctx, key, &redis.Z{
				Score:  float64(expiresAt),
				Member: member(h),
			})
			pipe.ExpireAt(ctx, key, time.Unix(keyExpiry, 0))
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("acquire slot hold %s: too much contention", h.Interval)
}

func (s *Store) Release(ctx context.Context, h domain.Hold) error {
	return s.rdb.ZRem(ctx, holdKey(h.Date), member(h)).Err()
}

// Active lists the unexpired holds of date.
func (s *Store) Active(ctx context.Context, date string) ([]domain.Hold, error) {
	members, err := s.rdb.ZRangeByScore(ctx, holdKey(date), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(s.now().Unix(), 10),
		Max: "+inf",
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	out := make([]domain.Hold, 0, len(members))
	for _, m := range members {
		if h, ok := parseMember(date, m); ok {
			out = append(out, h)
		}
	}
	return out, nil
}

// Claim marks a payment session as being processed. It returns false when
// another delivery already claimed it.
func (s *Store) Claim(ctx context.Context, sessionID string, ttl time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, webhookKeyPrefix+sessionID, s.now().Unix(), ttl).Result()
}

// Forget drops a claim so a failed delivery can be retried.
func (s *Store) Forget(ctx context.Context, sessionID string) error {
	return s.rdb.Del(ctx, webhookKeyPrefix+sessionID).Err()
}

var _ domain.HoldStore = (*Store)(nil)
