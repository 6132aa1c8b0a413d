package app

import (
	"context"
	"hash/fnv"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ragchat/internal/model"
	"ragchat/internal/vectorstore"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.Session{},
		&model.Message{},
		&model.KnowledgeBase{},
		&model.KnowledgeDocument{},
		&model.TempFile{},
	))
	return db
}

// testEmbedder maps text deterministically onto unit vectors so similarity
// ordering is stable without a network dependency.
type testEmbedder struct{}

func (testEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return testVector(text), nil
}

func (testEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = testVector(t)
	}
	return out, nil
}

func testVector(text string) []float32 {
	const dim = 8
	v := make([]float32, dim)
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()
	var norm float64
	for i := 0; i < dim; i++ {
		seed = seed*6364136223846793005 + 1442695040888963407
		component := float32(int64(seed>>32)) / float32(math.MaxInt32)
		v[i] = component
		norm += float64(component) * float64(component)
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

func newTestVectorRegistry(t *testing.T) *vectorstore.Registry {
	t.Helper()
	r, err := vectorstore.NewRegistry(t.TempDir(), testEmbedder{}, nil)
	require.NoError(t, err)
	return r
}
