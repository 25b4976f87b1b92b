package memory

import (
	"testing"

	"github.com/sirosfoundation/go-ebics/internal/storage/storagetest"
)

func TestStore(t *testing.T) {
	storagetest.Run(t, NewStore())
}
