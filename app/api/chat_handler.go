package api

import (
	"context"
	"log"
	"strings"

	"raggate/app/agent"
	"raggate/model"
	"raggate/policy"
	"raggate/store"
	"raggate/types"

	"github.com/gofiber/fiber/v2"
)

// ChatHandler owns the chat flow: policy check, retrieval, prompt assembly,
// generation and response shaping.
type ChatHandler struct {
	embedder  model.EmbedderInterface
	generator model.GeneratorInterface
	index     store.VectorIndexer
	blobs     store.BlobStorer
	cfg       types.Config
}

func NewChatHandler(cfg types.Config, embedder model.EmbedderInterface, generator model.GeneratorInterface, index store.VectorIndexer, blobs store.BlobStorer) *ChatHandler {
	return &ChatHandler{
		embedder:  embedder,
		generator: generator,
		index:     index,
		blobs:     blobs,
		cfg:       cfg,
	}
}

func (h *ChatHandler) HandleChat(c *fiber.Ctx) error {
	var params types.ChatParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	message := strings.TrimSpace(params.Message)
	if message == "" {
		return NewError(fiber.StatusBadRequest, "message is required")
	}
	if runes := []rune(message); h.cfg.MaxInputChars > 0 && len(runes) > h.cfg.MaxInputChars {
		message = string(runes[:h.cfg.MaxInputChars])
	}

	c.Set(fiber.HeaderCacheControl, "no-store")

	// Denied input is answered, not errored, and costs no external calls.
	if policy.IsDenied(message) {
		return c.JSON(types.ChatResponse{
			Answer:  agent.RefusalAnswer,
			Sources: []types.Source{},
		})
	}

	vectors, err := h.embedder.EmbedBatch(c.Context(), []string{message})
	if err != nil {
		return ErrUpstream(err)
	}
	if len(vectors) != 1 {
		return ErrUpstream(nil)
	}

	matches, err := h.index.QueryVectors(c.Context(), vectors[0], h.cfg.TopK)
	if err != nil {
		return ErrUpstream(err)
	}

	snippets := h.resolveSnippets(c.Context(), matches)

	answer, used, err := agent.Answer(c.Context(), h.generator, message, snippets, h.cfg.MaxOutputChars)
	if err != nil {
		return ErrUpstream(err)
	}

	sources := make([]types.Source, len(used))
	for i, sn := range used {
		sources[i] = types.Source{
			Ref:        sn.Ref,
			Title:      sn.Title,
			DocID:      sn.DocID,
			ChunkIndex: sn.ChunkIndex,
		}
	}
	return c.JSON(types.ChatResponse{
		Answer:  answer,
		Sources: sources,
	})
}

// resolveSnippets fetches chunk text for each match. Matches without a blob
// key or whose blob fetch fails are skipped, not fatal.
func (h *ChatHandler) resolveSnippets(ctx context.Context, matches []types.VectorMatch) []types.Snippet {
	snippets := make([]types.Snippet, 0, len(matches))
	ref := 1
	for _, m := range matches {
		if m.Metadata.BlobKey == "" {
			log.Printf("[CHAT] match %s has no blob key, skipping", m.ID)
			continue
		}
		text, err := h.blobs.GetBlob(ctx, m.Metadata.BlobKey)
		if err != nil {
			log.Printf("[CHAT] blob fetch failed for %s: %v", m.Metadata.BlobKey, err)
			continue
		}
		snippets = append(snippets, types.Snippet{
			Ref:        ref,
			Title:      m.Metadata.Title,
			DocID:      m.Metadata.DocID,
			ChunkIndex: m.Metadata.ChunkIndex,
			Text:       text,
		})
		ref++
	}
	return snippets
}
