package main

import (
	"testing"

	"go.uber.org/zap"

	"github.com/procurekit/policyrag/internal/config"
	"github.com/procurekit/policyrag/internal/domain"
	kvMemory "github.com/procurekit/policyrag/internal/kv/memory"
)

func embedderConfig() config.Config {
	cfg := config.Config{}
	cfg.ApplyDefaults()
	cfg.Embedding.APIKey = "test-key"
	cfg.Embedding.Model = "text-embedding-3-small"
	cfg.Embedding.Dimensions = 8
	return cfg
}

func TestBuildEmbedder_WithCacheAndInstruction(t *testing.T) {
	cfg := embedderConfig()
	cache := kvMemory.NewStore()
	defer cache.Close()

	embedder := buildEmbedder(cfg, "passage: ", cache, zap.NewNop())
	if embedder == nil {
		t.Fatal("expected an embedder chain")
	}
	if _, ok := embedder.(*domain.InstructionEmbedder); !ok {
		t.Errorf("with an instruction the outermost layer should be the instruction decorator, got %T", embedder)
	}
}

func TestBuildEmbedder_NoCacheNoInstruction(t *testing.T) {
	cfg := embedderConfig()

	embedder := buildEmbedder(cfg, "", nil, zap.NewNop())
	if embedder == nil {
		t.Fatal("expected an embedder chain")
	}
	if _, ok := embedder.(*domain.InstructionEmbedder); ok {
		t.Error("without an instruction no decorator should be applied")
	}
}
