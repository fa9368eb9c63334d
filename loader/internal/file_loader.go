package internal

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"raggate/types"

	"github.com/google/uuid"
)

// FileLoader watches a drop directory for text documents. A file is picked up
// once it has stopped changing for the configured monitoring time.
type FileLoader struct {
	cfg types.LoaderConfig

	FileMutex       sync.Mutex
	FileFirstSeen   map[string]time.Time
	FilesProcessing map[string]bool
}

func NewFileLoader(cfg types.LoaderConfig) *FileLoader {
	createDirectories(cfg.SourceDir, cfg.ArchiveDir, cfg.BadDir)
	return &FileLoader{
		cfg:             cfg,
		FileFirstSeen:   make(map[string]time.Time),
		FilesProcessing: make(map[string]bool),
	}
}

func (l *FileLoader) WatchFile(ctx context.Context, fileChan chan<- string) {
	fmt.Printf("Start monitoring folder: %s\n", l.cfg.SourceDir)

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	defer fmt.Println("File watcher stopped and cleaned up")

	for {
		select {
		case <-ctx.Done():
			fmt.Println("Stopping file watcher (context cancelled)...")
			return
		case <-ticker.C:
			files, err := os.ReadDir(l.cfg.SourceDir)
			if err != nil {
				fmt.Printf("error while reading source directory: %s\n", err)
				continue
			}

			currentFiles := make(map[string]bool)

			for _, file := range files {
				if file.IsDir() || !loadableFile(file.Name()) {
					continue
				}

				filePath := filepath.Join(l.cfg.SourceDir, file.Name())
				currentFiles[filePath] = true

				l.FileMutex.Lock()
				if l.FilesProcessing[filePath] {
					l.FileMutex.Unlock()
					continue
				}

				if _, exists := l.FileFirstSeen[filePath]; !exists {
					l.FileFirstSeen[filePath] = time.Now()
					fmt.Printf("New file detected: %s\n", filePath)
					l.FileMutex.Unlock()
					continue
				}

				firstSeen := l.FileFirstSeen[filePath]
				l.FileMutex.Unlock()

				if time.Since(firstSeen) > l.cfg.MonitoringTime {
					l.FileMutex.Lock()
					l.FilesProcessing[filePath] = true
					l.FileMutex.Unlock()

					select {
					case fileChan <- filePath:
					case <-ctx.Done():
						return
					}
				}
			}

			// Drop tracking state for files that disappeared from the directory.
			l.FileMutex.Lock()
			for filePath := range l.FileFirstSeen {
				if !currentFiles[filePath] {
					delete(l.FileFirstSeen, filePath)
					delete(l.FilesProcessing, filePath)
				}
			}
			l.FileMutex.Unlock()
		}
	}
}

func (l *FileLoader) ProcessFile(ctx context.Context, fileChan <-chan string, docChan chan<- *LoadedDoc) {
	defer fmt.Println("File processor stopped and cleaned up")

	for {
		select {
		case <-ctx.Done():
			fmt.Println("Stopping file processor (context cancelled)...")
			return
		case filePath, ok := <-fileChan:
			if !ok {
				fmt.Println("File channel closed, stopping processor...")
				return
			}

			fmt.Printf("Processing file: %s\n", filePath)
			doc, err := l.fetchFile(filePath)
			if err != nil {
				fmt.Printf("Error processing file %s: %v\n", filePath, err)
				l.MoveToArchive(filePath, 1)
			} else {
				select {
				case docChan <- doc:
				case <-ctx.Done():
					return
				}
			}

			l.FileMutex.Lock()
			delete(l.FilesProcessing, filePath)
			delete(l.FileFirstSeen, filePath)
			l.FileMutex.Unlock()
		}
	}
}

type LoadedDoc struct {
	Doc        types.Document
	SourcePath string
}

func (l *FileLoader) fetchFile(filePath string) (*LoadedDoc, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	return &LoadedDoc{
		Doc: types.Document{
			ID:    generateDocumentID(filePath),
			Title: generateTitle(filePath),
			Text:  string(data),
		},
		SourcePath: filePath,
	}, nil
}

func loadableFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md":
		return true
	}
	return false
}

func generateTitle(filePath string) string {
	fileName := filepath.Base(filePath)
	fileName = strings.TrimSuffix(fileName, filepath.Ext(fileName))
	fileName = strings.ReplaceAll(fileName, "_", " ")
	fileName = strings.ReplaceAll(fileName, "-", " ")
	return fileName
}

var nonSlugRe = regexp.MustCompile(`[^a-z0-9]+`)

func generateDocumentID(filePath string) string {
	base := strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	slug := strings.Trim(nonSlugRe.ReplaceAllString(strings.ToLower(base), "-"), "-")
	if slug == "" {
		return uuid.NewString()
	}
	if len(slug) > 64 {
		slug = slug[:64]
	}
	return slug
}

// MoveToArchive files the processed document under archive/ (or bad/ when
// fileState is 1), keyed by date, renaming on name conflicts.
func (l *FileLoader) MoveToArchive(filePath string, fileState int) {
	var state string
	switch fileState {
	case 1:
		state = l.cfg.BadDir
	default:
		state = l.cfg.ArchiveDir
	}

	currentDate := time.Now().Format("2006-01-02")
	destDir := filepath.Join(state, currentDate)

	if _, err := os.Stat(destDir); os.IsNotExist(err) {
		if err := os.MkdirAll(destDir, 0755); err != nil {
			fmt.Printf("error creating directory: %s\n", err)
			return
		}
	}

	destPath := filepath.Join(destDir, filepath.Base(filePath))

	counter := 1
	for {
		if _, err := os.Stat(destPath); os.IsNotExist(err) {
			break
		}
		ext := filepath.Ext(destPath)
		baseName := strings.TrimSuffix(filepath.Base(destPath), ext)
		destPath = filepath.Join(destDir, fmt.Sprintf("%s_%d%s", baseName, counter, ext))
		counter++
	}

	in, err := os.Open(filePath)
	if err != nil {
		fmt.Printf("error open file: %s\n", err)
		return
	}
	defer in.Close()

	out, err := os.Create(destPath)
	if err != nil {
		fmt.Printf("error create file: %s\n", err)
		return
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		fmt.Printf("error moving file to archive: %s\n", err)
		return
	}

	fmt.Printf("File moved to archive: %s\n", destPath)
	in.Close()
	os.Remove(filePath)
}

func createDirectories(sourceDir, archiveDir, badDir string) error {
	dirs := []string{sourceDir, archiveDir, badDir}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
