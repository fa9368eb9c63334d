package api

import (
	"fmt"
	"strconv"
	"strings"

	"raggate/chunker"
	"raggate/model"
	"raggate/store"
	"raggate/types"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	maxDocIDLen  = 64
	maxTitleLen  = 200
	blobKeySpace = "chunks/"
)

// IngestHandler owns the ingest flow: chunk, batch-embed, persist blobs,
// upsert vector records.
type IngestHandler struct {
	embedder model.EmbedderInterface
	index    store.VectorIndexer
	blobs    store.BlobStorer
	cfg      types.Config
}

func NewIngestHandler(cfg types.Config, embedder model.EmbedderInterface, index store.VectorIndexer, blobs store.BlobStorer) *IngestHandler {
	return &IngestHandler{
		embedder: embedder,
		index:    index,
		blobs:    blobs,
		cfg:      cfg,
	}
}

func (h *IngestHandler) HandleIngest(c *fiber.Ctx) error {
	if !h.authorized(c) {
		return ErrUnAuthorized("invalid admin token")
	}

	var params types.IngestParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	var records []types.VectorRecord
	stored := 0
	for _, doc := range params.Docs {
		docID := boundedID(doc.ID)
		title := boundedTitle(doc.Title)

		pieces := chunker.Chunk(doc.Text, h.cfg.ChunkSize, h.cfg.ChunkOverlap)
		if len(pieces) == 0 {
			continue
		}

		// One embedding call per document covers all its chunks.
		vectors, err := h.embedder.EmbedBatch(c.Context(), pieces)
		if err != nil {
			return ErrUpstream(err)
		}
		if len(vectors) != len(pieces) {
			return ErrUpstream(fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(pieces)))
		}

		for i, piece := range pieces {
			chunkID := docID + "::" + strconv.Itoa(i)
			blobKey := blobKeySpace + chunkID

			if err := h.blobs.PutBlob(c.Context(), blobKey, piece); err != nil {
				return ErrUpstream(err)
			}
			stored++

			records = append(records, types.VectorRecord{
				ID:     chunkID,
				Values: vectors[i],
				Metadata: types.VectorMetadata{
					DocID:      docID,
					Title:      title,
					ChunkIndex: i,
					BlobKey:    blobKey,
				},
			})
		}
	}

	if len(records) > 0 {
		if err := h.index.UpsertVectors(c.Context(), records); err != nil {
			return ErrUpstream(err)
		}
	}

	return c.JSON(types.IngestResponse{
		OK:              true,
		StoredChunks:    stored,
		UpsertedVectors: len(records),
	})
}

func (h *IngestHandler) authorized(c *fiber.Ctx) bool {
	if h.cfg.AdminToken == "" {
		return false
	}
	return c.Get(fiber.HeaderAuthorization) == "Bearer "+h.cfg.AdminToken
}

func boundedID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return uuid.NewString()
	}
	if len(id) > maxDocIDLen {
		id = id[:maxDocIDLen]
	}
	return id
}

func boundedTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return "untitled"
	}
	if runes := []rune(title); len(runes) > maxTitleLen {
		title = string(runes[:maxTitleLen])
	}
	return title
}
