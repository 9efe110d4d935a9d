package external

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegexAgencyRecordExtractor_ExtractAndStrip(t *testing.T) {
	e := NewRegexAgencyRecordExtractor()

	t.Run("finds and strips the record line", func(t *testing.T) {
		raw := "Paciente: Fulano de Tal\nRegistro ANS: 123.456-7\nIndicação: cirurgia eletiva"
		got, err := e.ExtractAndStrip(raw)
		require.NoError(t, err)
		assert.Equal(t, "123.456-7", got.AgencyRecordNumber)
		assert.NotContains(t, got.CleanedText, "Registro ANS")
		assert.Contains(t, got.CleanedText, "Paciente: Fulano de Tal")
		assert.Contains(t, got.CleanedText, "Indicação: cirurgia eletiva")
	})

	t.Run("missing record number errors", func(t *testing.T) {
		_, err := e.ExtractAndStrip("no identifying markers here")
		assert.Error(t, err)
	})
}

func TestPlainTextPDFExtractor_ExtractText(t *testing.T) {
	e := NewPlainTextPDFExtractor()

	t.Run("returns bytes as text", func(t *testing.T) {
		got, err := e.ExtractText(context.Background(), []byte("hello world"))
		require.NoError(t, err)
		assert.Equal(t, "hello world", got)
	})

	t.Run("empty payload errors", func(t *testing.T) {
		_, err := e.ExtractText(context.Background(), nil)
		assert.Error(t, err)
	})
}
