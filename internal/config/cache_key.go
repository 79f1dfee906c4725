package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ProgressKey returns the cache key for a learner's in-flight checkpoint on a course.
func (r *CacheKeyStruct) ProgressKey(userID, courseID string) string {
	return fmt.Sprintf("cbt:progress:%s:%s", userID, courseID)
}

var CacheKey = NewCacheKeyStruct()
