package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// LocalDataKey returns the cache key holding the local copy of a dataset key
func (r *CacheKeyStruct) LocalDataKey(key string) string {
	return fmt.Sprintf("cloud_%s", key)
}

// LocalDataChannel is the PubSub channel announcing local cache writes
func (r *CacheKeyStruct) LocalDataChannel() string {
	return "cloud_data:changes"
}

// ExamCompletedKey returns the hash of students who already finished an exam
func (r *CacheKeyStruct) ExamCompletedKey(examID string) string {
	return fmt.Sprintf("exam:%s:completed", examID)
}

// ExamViolationsKey returns the hash of violation counts per student for an exam
func (r *CacheKeyStruct) ExamViolationsKey(examID string) string {
	return fmt.Sprintf("exam:%s:violations", examID)
}

// ExamMonitorChannel returns the Redis PubSub channel name for an exam monitor
func (r *CacheKeyStruct) ExamMonitorChannel(examID string) string {
	return fmt.Sprintf("exam:%s:monitor", examID)
}

var CacheKey = NewCacheKeyStruct()
