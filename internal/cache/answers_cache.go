package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// generationTTL outlives any answers entry so a generation never resets
// while an entry written under it is still readable
const generationTTL = 24 * time.Hour

// AnswersCache is a read-through cache of one attempt's answer map. Entries
// are keyed by a generation counter that every write bumps, so a read racing
// a write can only populate an entry nobody will look up again.
type AnswersCache struct {
	helper *CacheHelper
	ttl    time.Duration
}

func NewAnswersCache(cm *CacheManager) *AnswersCache {
	return &AnswersCache{helper: cm.Answers, ttl: AnswersCacheConfig.TTL}
}

func generationKey(studentID string, testID uint) string {
	return fmt.Sprintf("gen:%d:%s", testID, studentID)
}

// Get returns the cached answers or loads them with fetch
func (a *AnswersCache) Get(ctx context.Context, studentID string, testID uint, fetch func() (map[string]string, error)) (map[string]string, error) {
	if !a.helper.Available() {
		return fetch()
	}

	gen, err := a.helper.GetString(ctx, generationKey(studentID, testID))
	switch {
	case errors.Is(err, ErrCacheNotFound):
		gen = "0"
	case err != nil:
		slog.WarnContext(ctx, "Answers generation lookup failed", "error", err, "test_id", testID)
		return fetch()
	}

	var answers map[string]string
	key := fmt.Sprintf("%d:%s:v%s", testID, studentID, gen)
	err = a.helper.CacheOrExecute(ctx, key, &answers, a.ttl, func() (interface{}, error) {
		return fetch()
	})
	if err != nil {
		return nil, err
	}
	if answers == nil {
		answers = map[string]string{}
	}
	return answers, nil
}

// Invalidate makes every previously cached answer map unreachable
func (a *AnswersCache) Invalidate(ctx context.Context, studentID string, testID uint) {
	if !a.helper.Available() {
		return
	}
	if _, err := a.helper.Incr(ctx, generationKey(studentID, testID), generationTTL); err != nil {
		slog.ErrorContext(ctx, "Failed to bump answers generation",
			"error", err,
			"test_id", testID,
			"student_id", studentID)
	}
}
