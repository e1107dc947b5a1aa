package png

import (
	"github.com/go-faster/errors"
	"github.com/skip2/go-qrcode"
)

const DefaultSize = 300

// QR renders content as a PNG QR code of size x size pixels.
func QR(content string, size int) ([]byte, error) {
	if content == "" {
		return nil, errors.New("qr content is empty")
	}
	if size <= 0 {
		size = DefaultSize
	}
	data, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		return nil, errors.Wrap(err, "encode qr code")
	}
	return data, nil
}
