package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"raggate/loader/internal"
	"raggate/types"
)

// Service runs the loader pipeline: watch the drop directory, read settled
// files into documents, submit them to the gateway's ingest endpoint, archive
// the originals.
type Service struct {
	logger *slog.Logger
	cfg    types.LoaderConfig
	loader *internal.FileLoader
	client *http.Client
}

func New(cfg types.LoaderConfig) *Service {
	return &Service{
		logger: slog.Default(),
		cfg:    cfg,
		loader: internal.NewFileLoader(cfg),
		client: &http.Client{Timeout: 5 * time.Minute},
	}
}

func (s *Service) Stop() {
	s.logger.Info("Loader Service stopped")
}

func (s *Service) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fileChan := make(chan string, 10)
	docChan := make(chan *internal.LoadedDoc)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(fileChan)
		s.loader.WatchFile(ctx, fileChan)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.loader.ProcessFile(ctx, fileChan, docChan)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.DocumentSubmit(ctx, docChan)
	}()

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)

	<-sigch
	log.Println("Received shutdown signal, shutting down gracefully...")

	cancel()
	signal.Stop(sigch)
	close(sigch)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("All goroutines stopped successfully")
	case <-shutdownCtx.Done():
		log.Println("Timeout waiting for goroutines to stop, forcing shutdown...")
	}

	s.Stop()
}

// DocumentSubmit ships each loaded document to the gateway and archives the
// source file; failed submissions land in the bad directory for inspection.
func (s *Service) DocumentSubmit(ctx context.Context, docChan <-chan *internal.LoadedDoc) {
	for {
		select {
		case <-ctx.Done():
			return
		case loaded, ok := <-docChan:
			if !ok {
				return
			}

			if err := s.submit(ctx, loaded.Doc); err != nil {
				s.logger.Error("document submit failed", "doc", loaded.Doc.ID, "error", err.Error())
				s.loader.MoveToArchive(loaded.SourcePath, 1)
				continue
			}

			s.logger.Info("document ingested", "doc", loaded.Doc.ID, "title", loaded.Doc.Title)
			s.loader.MoveToArchive(loaded.SourcePath, 0)
		}
	}
}

func (s *Service) submit(ctx context.Context, doc types.Document) error {
	body, err := json.Marshal(types.IngestParams{Docs: []types.Document{doc}})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.GatewayURL+"/admin/ingest", bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.AdminToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ingest rejected: status %d, body: %s", resp.StatusCode, string(payload))
	}
	return nil
}
