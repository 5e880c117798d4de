package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/zeebo/xxh3"
)

func TestChecksum(t *testing.T) {
	span := []byte("language=go")
	sum := xxh3.Hash128(span)
	want := Checksum{Hi: sum.Hi, Lo: sum.Lo}

	t.Run("CalculateChecksum computes xxh3-128", func(t *testing.T) {
		assert.Equal(t, want, CalculateChecksum(span))
	})

	t.Run("ValidateChecksum accepts matching checksum", func(t *testing.T) {
		assert.True(t, ValidateChecksum(span, want))
	})

	t.Run("ValidateChecksum rejects mismatched checksum", func(t *testing.T) {
		bad := want
		bad.Lo++
		assert.False(t, ValidateChecksum(span, bad))
	})

	t.Run("different spans produce different checksums", func(t *testing.T) {
		assert.NotEqual(t, CalculateChecksum([]byte("a")), CalculateChecksum([]byte("b")))
	})
}
