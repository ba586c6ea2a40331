package delivery

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitEmptyText(t *testing.T) {
	s := NewSplitter(40, 280)
	assert.Nil(t, s.Split(""))
	assert.Nil(t, s.Split("   \n  "))
}

func TestSplitShortTextIsSingleChunk(t *testing.T) {
	s := NewSplitter(40, 280)
	chunks := s.Split("Olá! Como posso ajudar?")
	assert.Equal(t, []string{"Olá! Como posso ajudar?"}, chunks)
}

func TestSplitOnParagraphs(t *testing.T) {
	s := NewSplitter(10, 280)
	text := "Primeiro parágrafo com algum conteúdo.\n\nSegundo parágrafo com mais conteúdo."
	chunks := s.Split(text)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Primeiro parágrafo com algum conteúdo.", chunks[0])
	assert.Equal(t, "Segundo parágrafo com mais conteúdo.", chunks[1])
}

func TestSplitLongParagraphOnSentences(t *testing.T) {
	s := NewSplitter(10, 80)
	text := "Esta é a primeira frase com bastante texto para passar do limite. " +
		"Esta é a segunda frase, também razoavelmente longa para o teste. " +
		"E uma terceira frase fecha o parágrafo inteiro."
	chunks := s.Split(text)
	require.Greater(t, len(chunks), 1)
	assert.True(t, strings.HasPrefix(chunks[0], "Esta é a primeira frase"))
}

func TestSplitMergesShortFragments(t *testing.T) {
	s := NewSplitter(40, 280)
	text := "Aqui vai uma explicação completa sobre o seu pedido de hoje.\n\nOk?"
	chunks := s.Split(text)
	require.Len(t, chunks, 1)
	assert.True(t, strings.HasSuffix(chunks[0], "\nOk?"))
}

func TestSplitNeverBreaksURL(t *testing.T) {
	s := NewSplitter(10, 60)
	url := "https://pay.example.com/checkout?id=abc123&token=xyz.789"
	text := "Segue o link para pagamento. " + url + " Qualquer coisa me avisa. Obrigado pela preferência hoje."
	chunks := s.Split(text)

	var found bool
	for _, c := range chunks {
		if strings.Contains(c, url) {
			found = true
		}
	}
	assert.True(t, found, "URL must survive intact in exactly one chunk: %#v", chunks)
}

func TestSplitNeverBreaksPaymentCode(t *testing.T) {
	s := NewSplitter(10, 60)
	// PIX copy-paste strings routinely exceed 60 chars and contain dots.
	code := "00020126580014br.gov.bcb.pix0136a1b2c3d4e5f6789000520400005303986"
	text := "Segue o código para pagamento. " + code + " Me avisa quando pagar. Obrigado pela atenção até aqui."
	chunks := s.Split(text)

	var found bool
	for _, c := range chunks {
		if strings.Contains(c, code) {
			found = true
		}
	}
	assert.True(t, found, "payment code must survive intact: %#v", chunks)
}

func TestNewSplitterDefaults(t *testing.T) {
	s := NewSplitter(0, 0)
	assert.Equal(t, 40, s.MinLength)
	assert.Greater(t, s.MaxLength, s.MinLength)
}
