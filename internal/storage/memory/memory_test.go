package memory

import (
	"testing"

	"fintrack/internal/storage"
	"fintrack/internal/storage/storagetest"
)

func TestMemoryStores(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Stores {
		return New()
	})
}
