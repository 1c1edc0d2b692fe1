package policy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	c      *redis.Client
	prefix string
}

var _ Store = (*RedisStore)(nil)

var (
	redisScriptSRemDelIfEmpty = redis.NewScript(
		"redis.call('SREM', KEYS[1], ARGV[1]); " +
			"if redis.call('SCARD', KEYS[1]) == 0 then redis.call('DEL', KEYS[1]); end; " +
			"return 1",
	)
	redisScriptZRemDelIfEmpty = redis.NewScript(
		"redis.call('ZREM', KEYS[1], ARGV[1]); " +
			"if redis.call('ZCARD', KEYS[1]) == 0 then redis.call('DEL', KEYS[1]); end; " +
			"return 1",
	)
)

func NewRedisStore(c *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "authz:"
	}
	return &RedisStore{c: c, prefix: keyPrefix}
}

func (s *RedisStore) Client() *redis.Client {
	return s.c
}

func (s *RedisStore) Prefix() string {
	return s.prefix
}

func (s *RedisStore) SetMode(deviceID string, m Mode) error {
	if m != ModeOpen && m != ModeRestricted {
		return ErrInvalidMode
	}
	if deviceID == "" {
		return ErrMissingField
	}
	ctx := context.Background()
	key := s.keyMode(deviceID)
	// Missing key means open.
	if m == ModeOpen {
		return s.c.Del(ctx, key).Err()
	}
	return s.c.Set(ctx, key, string(m), 0).Err()
}

func (s *RedisStore) Grant(deviceID, operatorID string, validFrom time.Time, validTo *time.Time) error {
	if err := validateGrantArgs(deviceID, operatorID, validFrom, validTo); err != nil {
		return err
	}

	ctx := context.Background()
	permKey := s.keyPermanent(deviceID)
	expKey := s.keyExpiring(deviceID)

	pipe := s.c.Pipeline()
	if validTo == nil {
		pipe.SAdd(ctx, permKey, operatorID)
		_ = redisScriptZRemDelIfEmpty.Eval(ctx, pipe, []string{expKey}, operatorID)
	} else {
		// Expired members are dropped on every expiring grant.
		pipe.ZRemRangeByScore(ctx, expKey, "-inf", fmt.Sprintf("%d", time.Now().Unix()))
		pipe.ZAdd(ctx, expKey, redis.Z{Score: float64(validTo.Unix()), Member: operatorID})
		_ = redisScriptSRemDelIfEmpty.Eval(ctx, pipe, []string{permKey}, operatorID)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Revoke(deviceID, operatorID string) error {
	if deviceID == "" || operatorID == "" {
		return ErrMissingField
	}
	ctx := context.Background()
	pipe := s.c.Pipeline()

	_ = redisScriptSRemDelIfEmpty.Eval(ctx, pipe, []string{s.keyPermanent(deviceID)}, operatorID)
	_ = redisScriptZRemDelIfEmpty.Eval(ctx, pipe, []string{s.keyExpiring(deviceID)}, operatorID)

	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) SetLockedTypes(deviceID string, types []string) error {
	if deviceID == "" {
		return ErrMissingField
	}
	ctx := context.Background()
	key := s.keyLocked(deviceID)

	members := make([]interface{}, 0, len(types))
	for _, t := range types {
		if t != "" {
			members = append(members, t)
		}
	}

	pipe := s.c.TxPipeline()
	pipe.Del(ctx, key)
	if len(members) > 0 {
		pipe.SAdd(ctx, key, members...)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Decide reads the whole device policy in one round trip. Any error other
// than a missing key is returned so callers can fail closed.
func (s *RedisStore) Decide(deviceID, operatorID, typeName string, now time.Time) (Decision, error) {
	if now.IsZero() {
		now = time.Now()
	}
	ctx := context.Background()

	pipe := s.c.Pipeline()
	lockedCmd := pipe.SIsMember(ctx, s.keyLocked(deviceID), typeName)
	modeCmd := pipe.Get(ctx, s.keyMode(deviceID))
	var permCmd *redis.BoolCmd
	var expCmd *redis.FloatCmd
	if operatorID != "" {
		permCmd = pipe.SIsMember(ctx, s.keyPermanent(deviceID), operatorID)
		expCmd = pipe.ZScore(ctx, s.keyExpiring(deviceID), operatorID)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Decision{}, err
	}

	locked, err := lockedCmd.Result()
	if err != nil {
		return Decision{}, err
	}
	if locked {
		return Decision{Reason: ReasonTypeLocked}, nil
	}

	mode, err := modeFromCmd(modeCmd)
	if err != nil {
		return Decision{}, err
	}
	if mode != ModeRestricted {
		return Decision{Allowed: true}, nil
	}
	if permCmd == nil {
		return Decision{Reason: ReasonNotGranted}, nil
	}
	granted, err := isGranted(permCmd, expCmd, float64(now.Unix()))
	if err != nil {
		return Decision{}, err
	}
	if granted {
		return Decision{Allowed: true}, nil
	}
	return Decision{Reason: ReasonNotGranted}, nil
}

func modeFromCmd(cmd *redis.StringCmd) (Mode, error) {
	v, err := cmd.Result()
	if errors.Is(err, redis.Nil) {
		return ModeOpen, nil
	}
	if err != nil {
		return "", err
	}
	if Mode(v) == ModeRestricted {
		return ModeRestricted, nil
	}
	return ModeOpen, nil
}

func isGranted(permCmd *redis.BoolCmd, expCmd *redis.FloatCmd, nowUnix float64) (bool, error) {
	ok, err := permCmd.Result()
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	score, err := expCmd.Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return nowUnix < score, nil
}

func (s *RedisStore) keyMode(deviceID string) string {
	return fmt.Sprintf("%sdev:%s:mode", s.prefix, deviceID)
}

func (s *RedisStore) keyPermanent(deviceID string) string {
	return fmt.Sprintf("%sdev:%s:perm", s.prefix, deviceID)
}

func (s *RedisStore) keyExpiring(deviceID string) string {
	return fmt.Sprintf("%sdev:%s:exp", s.prefix, deviceID)
}

func (s *RedisStore) keyLocked(deviceID string) string {
	return fmt.Sprintf("%sdev:%s:locked", s.prefix, deviceID)
}
