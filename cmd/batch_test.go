package main

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giftwise/giftwise-cli/internal/model"
)

func TestProcessBatchEmpty(t *testing.T) {
	err := processBatch(context.Background(), nil, 2, func(ctx context.Context, sessionID string) (*model.RunSummary, error) {
		t.Fatal("run should not be called")
		return nil, nil
	})
	assert.NoError(t, err)
}

func TestProcessBatchRunsAllSessions(t *testing.T) {
	sessions := []model.Session{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	var mu sync.Mutex
	seen := make(map[string]int)

	err := processBatch(context.Background(), sessions, 2, func(ctx context.Context, sessionID string) (*model.RunSummary, error) {
		mu.Lock()
		seen[sessionID]++
		mu.Unlock()
		return &model.RunSummary{Success: true}, nil
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"a": 1, "b": 1, "c": 1}, seen)
}

func TestProcessBatchContinuesPastFailures(t *testing.T) {
	sessions := []model.Session{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	var mu sync.Mutex
	var ran []string

	err := processBatch(context.Background(), sessions, 1, func(ctx context.Context, sessionID string) (*model.RunSummary, error) {
		mu.Lock()
		ran = append(ran, sessionID)
		mu.Unlock()
		if sessionID == "b" {
			return nil, errors.New("boom")
		}
		return &model.RunSummary{Success: true}, nil
	})
	require.NoError(t, err)
	assert.Len(t, ran, 3)
}

func TestProcessBatchZeroConcurrency(t *testing.T) {
	err := processBatch(context.Background(), []model.Session{{ID: "a"}}, 0, func(ctx context.Context, sessionID string) (*model.RunSummary, error) {
		return &model.RunSummary{Success: true}, nil
	})
	assert.NoError(t, err)
}
