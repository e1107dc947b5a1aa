package png

import (
	"bytes"
	stdpng "image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQR(t *testing.T) {
	data, err := QR("https://catalogo-vpfe.dian.gov.co/document/searchqr?documentkey=abc", 0)
	require.NoError(t, err)

	img, err := stdpng.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, DefaultSize, img.Bounds().Dx())
}

func TestQR_CustomSize(t *testing.T) {
	data, err := QR("ala ma kota", 128)
	require.NoError(t, err)

	img, err := stdpng.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 128, img.Bounds().Dx())
}

func TestQR_EmptyContent(t *testing.T) {
	_, err := QR("", 0)
	assert.Error(t, err)
}
