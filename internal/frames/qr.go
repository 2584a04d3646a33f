package frames

import (
	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// QRDecoder reads one QR code per frame.
type QRDecoder struct {
	reader gozxing.Reader
	hints  map[gozxing.DecodeHintType]interface{}
}

func NewQRDecoder(tryHarder bool) *QRDecoder {
	d := &QRDecoder{reader: qrcode.NewQRCodeReader()}
	if tryHarder {
		d.hints = map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		}
	}
	return d
}

func (d *QRDecoder) Decode(f Frame) (string, bool) {
	img, err := f.Image()
	if err != nil {
		return "", false
	}
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", false
	}
	defer d.reader.Reset()
	res, err := d.reader.Decode(bmp, d.hints)
	if err != nil {
		return "", false
	}
	return res.GetText(), true
}
