package retrieval

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// #region pg-model
// ChunkEmbedding is one stored passage with its embedding.
type ChunkEmbedding struct {
	ID        uint   `gorm:"primaryKey"`
	Source    string `gorm:"index"`
	Content   string
	Metadata  string          `gorm:"type:jsonb;default:'{}'"`
	Embedding pgvector.Vector `gorm:"type:vector"`
}

func (ChunkEmbedding) TableName() string { return "chunk_embeddings" }

// #endregion pg-model

// #region pg-index
// PGVectorIndex stores passages in Postgres and searches them with pgvector
// cosine distance.
type PGVectorIndex struct {
	db        *gorm.DB
	embedder  Embedder
	threshold float32
}

// OpenPGVector connects to dsn, enables the vector extension and migrates
// the chunk_embeddings table.
func OpenPGVector(dsn string, e Embedder, threshold float32) (*PGVectorIndex, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open pgvector: %w", err)
	}
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return nil, fmt.Errorf("enable vector extension: %w", err)
	}
	if err := db.AutoMigrate(&ChunkEmbedding{}); err != nil {
		return nil, fmt.Errorf("migrate chunk_embeddings: %w", err)
	}
	return &PGVectorIndex{db: db, embedder: e, threshold: threshold}, nil
}

// Close closes the underlying connection pool.
func (p *PGVectorIndex) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Add embeds and inserts passages.
func (p *PGVectorIndex) Add(ctx context.Context, passages ...Passage) error {
	rows := make([]ChunkEmbedding, 0, len(passages))
	for i, ps := range passages {
		vec, err := p.embedder.Embed(ctx, ps.Content)
		if err != nil {
			return fmt.Errorf("embed passage %d: %w", i, err)
		}
		md, err := json.Marshal(ps.Metadata)
		if err != nil || ps.Metadata == nil {
			md = []byte("{}")
		}
		rows = append(rows, ChunkEmbedding{
			Source:    ps.Source,
			Content:   ps.Content,
			Metadata:  string(md),
			Embedding: pgvector.NewVector(vec),
		})
	}
	if len(rows) == 0 {
		return nil
	}
	if err := p.db.WithContext(ctx).CreateInBatches(rows, 100).Error; err != nil {
		return fmt.Errorf("insert chunk embeddings: %w", err)
	}
	return nil
}

// Search returns the k passages closest to query above the similarity threshold.
func (p *PGVectorIndex) Search(ctx context.Context, query string, k int) ([]Result, error) {
	if k <= 0 {
		k = 5
	}
	qv, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	type row struct {
		ChunkEmbedding
		Similarity float64
	}
	var rows []row
	vec := pgvector.NewVector(qv)
	err = p.db.WithContext(ctx).
		Table("chunk_embeddings").
		Select("chunk_embeddings.*, 1 - (embedding <=> ?) as similarity", vec).
		Where("1 - (embedding <=> ?) >= ?", vec, p.threshold).
		Order("similarity DESC").
		Limit(k).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("pgvector search: %w", err)
	}

	results := make([]Result, 0, len(rows))
	for _, r := range rows {
		var md map[string]any
		_ = json.Unmarshal([]byte(r.Metadata), &md)
		if md == nil {
			md = map[string]any{}
		}
		md["id"] = fmt.Sprint(r.ID)
		ps := Passage{Content: r.Content, Source: r.Source, Metadata: md}
		results = append(results, ps.result(r.Similarity, nil))
	}
	return results, nil
}

// #endregion pg-index
